package motion

import (
	"errors"
	"testing"
	"time"

	"github.com/LeonardoBeccarini/sensorbus/internal/model/entities"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func constant(v bool) func() (bool, error) { return func() (bool, error) { return v, nil } }

func newCalibrated(t *testing.T, cfg Config) (*Machine, *clock) {
	t.Helper()
	clk := &clock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	m := New(cfg, WithClock(clk.now))
	clk.advance(cfg.Calibration)
	return m, clk
}

func TestCalibration(t *testing.T) {
	clk := &clock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	m := New(DefaultConfig(), WithClock(clk.now))

	if _, err := m.Read(constant(true)); !errors.Is(err, ErrCalibrating) {
		t.Fatalf("want ErrCalibrating, got %v", err)
	}
	if m.State() != StateCalibrating {
		t.Fatalf("state=%s", m.State())
	}
	clk.advance(2 * time.Second)
	got, err := m.Read(constant(false))
	if err != nil || got {
		t.Fatalf("got=%v err=%v", got, err)
	}
	if m.State() != StateIdle {
		t.Fatalf("state=%s", m.State())
	}
	if m.Stats().TotalReadings != 2 {
		t.Fatalf("calibrating reads still count: %+v", m.Stats())
	}
}

func TestDebounceSkipsSampling(t *testing.T) {
	m, clk := newCalibrated(t, DefaultConfig())
	calls := 0
	sampler := func() (bool, error) { calls++; return true, nil }

	if v, _ := m.Read(sampler); !v {
		t.Fatal("expected motion")
	}
	clk.advance(50 * time.Millisecond)
	if v, _ := m.Read(constant(false)); !v {
		t.Fatal("debounced read must return previous classification")
	}
	if calls != 1 {
		t.Fatalf("sampler calls=%d", calls)
	}
}

func TestStartAndEndWithDuration(t *testing.T) {
	m, clk := newCalibrated(t, DefaultConfig())

	if v, _ := m.Read(constant(true)); !v {
		t.Fatal("expected active")
	}
	start := <-m.Events()
	if start.Kind != entities.MotionStart || start.Sequence != 1 {
		t.Fatalf("start=%+v", start)
	}

	clk.advance(2 * time.Second)
	m.Read(constant(true))
	clk.advance(3 * time.Second)
	if v, _ := m.Read(constant(false)); !v {
		t.Fatal("within timeout the machine stays active")
	}
	clk.advance(3 * time.Second)
	if v, _ := m.Read(constant(false)); v {
		t.Fatal("expected idle after timeout")
	}

	end := <-m.Events()
	if end.Kind != entities.MotionEnd || end.Duration == nil || *end.Duration != 8*time.Second {
		t.Fatalf("end=%+v", end)
	}
	st := m.Stats()
	if st.TotalEvents != 1 || st.AverageDuration != 8*time.Second || st.HistorySize != 2 || st.Active {
		t.Fatalf("stats=%+v", st)
	}
}

func TestStartCountMatchesMotionRuns(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EventBuffer = 64
	m, clk := newCalibrated(t, cfg)

	samples := []bool{true, true, false, true, false, false, true, true, true, false}
	for _, s := range samples {
		clk.advance(6 * time.Second)
		if _, err := m.Read(constant(s)); err != nil {
			t.Fatal(err)
		}
	}

	starts, ends := 0, 0
	for _, ev := range m.History() {
		switch ev.Kind {
		case entities.MotionStart:
			starts++
		case entities.MotionEnd:
			ends++
		}
	}
	if starts != 3 || ends != 3 {
		t.Fatalf("starts=%d ends=%d", starts, ends)
	}
	if m.Stats().TotalEvents != 3 {
		t.Fatalf("events=%d", m.Stats().TotalEvents)
	}
}

func TestHistoryIsBoundedFIFO(t *testing.T) {
	cfg := DefaultConfig()
	cfg.History = 3
	cfg.EventBuffer = 64
	m, clk := newCalibrated(t, cfg)

	for i := 0; i < 3; i++ {
		clk.advance(6 * time.Second)
		m.Read(constant(true))
		clk.advance(6 * time.Second)
		m.Read(constant(false))
	}
	h := m.History()
	if len(h) != 3 {
		t.Fatalf("history=%d", len(h))
	}
	if h[0].Kind != entities.MotionEnd || h[0].Sequence != 2 {
		t.Fatalf("oldest entries not evicted first: %+v", h[0])
	}
	if h[2].Kind != entities.MotionEnd || h[2].Sequence != 3 {
		t.Fatalf("newest=%+v", h[2])
	}
}

func TestFullEventBufferDrops(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EventBuffer = 1
	m, clk := newCalibrated(t, cfg)

	clk.advance(time.Second)
	m.Read(constant(true))
	clk.advance(6 * time.Second)
	m.Read(constant(false))

	if got := m.Stats().DroppedEvents; got != 1 {
		t.Fatalf("dropped=%d", got)
	}
	if ev := <-m.Events(); ev.Kind != entities.MotionStart {
		t.Fatalf("buffered=%+v", ev)
	}
}

func TestSamplerErrorKeepsState(t *testing.T) {
	m, clk := newCalibrated(t, DefaultConfig())
	m.Read(constant(true))
	clk.advance(10 * time.Second)

	boom := errors.New("gpio")
	v, err := m.Read(func() (bool, error) { return false, boom })
	if !errors.Is(err, boom) || !v || m.State() != StateActive {
		t.Fatalf("v=%v err=%v state=%s", v, err, m.State())
	}
}

func TestReset(t *testing.T) {
	m, clk := newCalibrated(t, DefaultConfig())
	m.Read(constant(true))
	clk.advance(time.Minute)
	m.Read(constant(false))
	m.Reset()

	st := m.Stats()
	if st.TotalReadings != 0 || st.TotalEvents != 0 || st.HistorySize != 0 || st.AverageDuration != 0 {
		t.Fatalf("stats after reset=%+v", st)
	}
}

func TestAverageDurationOutlivesHistory(t *testing.T) {
	cfg := DefaultConfig()
	cfg.History = 2
	cfg.EventBuffer = 64
	m, clk := newCalibrated(t, cfg)

	for _, d := range []time.Duration{6 * time.Second, 8 * time.Second, 10 * time.Second} {
		clk.advance(time.Second)
		if v, _ := m.Read(constant(true)); !v {
			t.Fatal("expected active")
		}
		clk.advance(d)
		if v, _ := m.Read(constant(false)); v {
			t.Fatal("expected idle")
		}
	}
	st := m.Stats()
	if st.HistorySize != 2 || st.TotalEvents != 3 || st.AverageDuration != 8*time.Second {
		t.Fatalf("stats=%+v", st)
	}
	m.Reset()
	if st := m.Stats(); st.AverageDuration != 0 {
		t.Fatalf("after reset=%+v", st)
	}
}
