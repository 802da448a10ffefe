package sensors

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/LeonardoBeccarini/sensorbus/internal/edge-agent/hardware"
	"github.com/LeonardoBeccarini/sensorbus/internal/edge-agent/motion"
	"github.com/LeonardoBeccarini/sensorbus/internal/model/entities"
)

type fakeDevice struct {
	mu      sync.Mutex
	samples map[int][]hardware.Sample
	errs    map[int][]error
	calls   map[int]int
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{samples: map[int][]hardware.Sample{}, errs: map[int][]error{}, calls: map[int]int{}}
}

func (f *fakeDevice) ReadRaw(pin int) (hardware.Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[pin]++
	if q := f.errs[pin]; len(q) > 0 {
		err := q[0]
		f.errs[pin] = q[1:]
		if err != nil {
			return nil, err
		}
	}
	q := f.samples[pin]
	if len(q) == 0 {
		return nil, hardware.ErrUnavailable
	}
	s := q[0]
	if len(q) > 1 {
		f.samples[pin] = q[1:]
	}
	return s, nil
}
func (f *fakeDevice) WriteActuator(int, float64) error { return nil }
func (f *fakeDevice) Close() error                     { return nil }

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func fixedRand() Option { return WithRand(rand.New(rand.NewSource(7))) }

func TestRetryAttempts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, 0, func() error { calls++; return errors.New("checksum") })
	if err == nil || calls != 3 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}

	calls = 0
	err = Retry(context.Background(), 3, 0, func() error { calls++; return hardware.ErrUnavailable })
	if !errors.Is(err, hardware.ErrUnavailable) || calls != 1 {
		t.Fatalf("unavailable must not be retried: err=%v calls=%d", err, calls)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls = 0
	_ = Retry(ctx, 5, time.Hour, func() error { calls++; return errors.New("x") })
	if calls != 1 {
		t.Fatalf("cancelled context must stop retrying, calls=%d", calls)
	}
}

func TestClimateRetriesThenSucceeds(t *testing.T) {
	dev := newFakeDevice()
	dev.errs[4] = []error{errors.New("checksum"), errors.New("timeout")}
	dev.samples[4] = []hardware.Sample{{23.46, 51.04}}
	clk := &clock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}

	c := NewClimate(dev, 4, WithRetry(3, 0), WithClock(clk.now))
	f, err := c.Read(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if dev.calls[4] != 3 {
		t.Fatalf("calls=%d", dev.calls[4])
	}
	if f[entities.SensorTemperature] != 23.5 || f[entities.SensorHumidity] != 51 {
		t.Fatalf("fields=%v", f)
	}
	if c.Simulated() {
		t.Fatal("hardware sensor reported as simulated")
	}
}

func TestClimateGivesUpAfterAttempts(t *testing.T) {
	dev := newFakeDevice()
	dev.errs[4] = []error{errors.New("a"), errors.New("b"), errors.New("c")}
	dev.samples[4] = []hardware.Sample{{20, 50}}

	c := NewClimate(dev, 4, WithRetry(3, 0))
	if _, err := c.Read(context.Background()); err == nil {
		t.Fatal("expected failure after 3 attempts")
	}
	if info := c.Info(); info.Errors != 1 || info.Reads != 0 {
		t.Fatalf("info=%+v", info)
	}
}

func TestClimateCachesWithinMinInterval(t *testing.T) {
	dev := newFakeDevice()
	dev.samples[4] = []hardware.Sample{{21, 40}, {25, 45}}
	clk := &clock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	c := NewClimate(dev, 4, WithRetry(1, 0), WithClock(clk.now))

	first, _ := c.Read(context.Background())
	clk.advance(time.Second)
	second, err := c.Read(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if second[entities.SensorTemperature] != first[entities.SensorTemperature] || dev.calls[4] != 1 {
		t.Fatalf("fast poll must return the cached pair: %v calls=%d", second, dev.calls[4])
	}
	clk.advance(2 * time.Second)
	third, _ := c.Read(context.Background())
	if third[entities.SensorTemperature] != 25 {
		t.Fatalf("third=%v", third)
	}
}

func TestClimateFallsBackToSimulation(t *testing.T) {
	dev := newFakeDevice()
	clk := &clock{t: time.Date(2024, 6, 1, 3, 0, 0, 0, time.UTC)}
	c := NewClimate(dev, 4, WithRetry(3, 0), WithClock(clk.now), fixedRand())

	f, err := c.Read(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !c.Simulated() {
		t.Fatal("expected simulation after ErrUnavailable")
	}
	temp, hum := f[entities.SensorTemperature], f[entities.SensorHumidity]
	if temp < 18 || temp > 20 {
		t.Fatalf("night temperature out of range: %v", temp)
	}
	if hum < 30 || hum > 80 {
		t.Fatalf("humidity out of range: %v", hum)
	}
}

func TestDerivedClimateValues(t *testing.T) {
	if got := HeatIndex(22, 50); got != 22 {
		t.Fatalf("heat index below threshold=%v", got)
	}
	if got := HeatIndex(32, 70); got < 38 || got > 42 {
		t.Fatalf("heat index=%v", got)
	}
	if got := DewPoint(25, 60); got < 16.5 || got > 17.1 {
		t.Fatalf("dew point=%v", got)
	}
}

func TestLight(t *testing.T) {
	if got := LuxFromRaw(1023); got != 1000 {
		t.Fatalf("lux=%v", got)
	}
	if got := LuxFromRaw(512); got != 500.49 {
		t.Fatalf("lux=%v", got)
	}

	dev := newFakeDevice()
	dev.samples[0] = []hardware.Sample{{256}}
	l := NewLight(dev, 0, WithRetry(1, 0))
	f, err := l.Read(context.Background())
	if err != nil || f[entities.SensorLight] != 250.24 {
		t.Fatalf("f=%v err=%v", f, err)
	}

	night := &clock{t: time.Date(2024, 6, 1, 23, 0, 0, 0, time.UTC)}
	sim := NewLight(nil, -1, WithClock(night.now), fixedRand())
	f, _ = sim.Read(context.Background())
	if v := f[entities.SensorLight]; v < 5 || v > 30 {
		t.Fatalf("night light=%v", v)
	}
}

func TestPresenceReportsAfterCalibration(t *testing.T) {
	dev := newFakeDevice()
	dev.samples[27] = []hardware.Sample{{1}}
	clk := &clock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	m := motion.New(motion.DefaultConfig(), motion.WithClock(clk.now))
	p := NewPresence(dev, 27, m, WithClock(clk.now))

	if _, err := p.Read(context.Background()); !errors.Is(err, motion.ErrCalibrating) {
		t.Fatalf("want ErrCalibrating, got %v", err)
	}
	clk.advance(3 * time.Second)
	f, err := p.Read(context.Background())
	if err != nil || f[entities.SensorMotion] != 1 {
		t.Fatalf("f=%v err=%v", f, err)
	}
	if info := p.Info(); info.Reads != 1 || info.Errors != 0 {
		t.Fatalf("calibration must not count as an error: %+v", info)
	}
}
