package actuators

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/LeonardoBeccarini/sensorbus/internal/edge-agent/hardware"
)

type write struct {
	pin   int
	level float64
}

type recorder struct {
	mu     sync.Mutex
	writes []write
}

func (r *recorder) ReadRaw(int) (hardware.Sample, error) { return nil, hardware.ErrUnavailable }
func (r *recorder) WriteActuator(pin int, level float64) error {
	r.mu.Lock()
	r.writes = append(r.writes, write{pin, level})
	r.mu.Unlock()
	return nil
}
func (r *recorder) Close() error { return nil }

func TestLEDToggleAndBrightness(t *testing.T) {
	dev := &recorder{}
	led := NewLED(dev, 22)

	if on, err := led.Toggle(); err != nil || !on {
		t.Fatalf("on=%v err=%v", on, err)
	}
	if on, _ := led.Toggle(); on {
		t.Fatal("second toggle must turn off")
	}
	if err := led.SetBrightness(150); err != nil {
		t.Fatal(err)
	}
	if !led.State() || led.Brightness() != 100 {
		t.Fatalf("state=%v brightness=%v", led.State(), led.Brightness())
	}
	if err := led.Close(); err != nil || led.State() {
		t.Fatal("close must leave the led off")
	}
	last := dev.writes[len(dev.writes)-1]
	if last.pin != 22 || last.level != 0 {
		t.Fatalf("last write=%+v", last)
	}
}

func TestSimulatedActuatorTracksState(t *testing.T) {
	b := NewBuzzer(nil, -1)
	if err := b.TurnOn(); err != nil || !b.State() {
		t.Fatal("simulated buzzer must track state")
	}
}

func TestBuzzerPattern(t *testing.T) {
	dev := &recorder{}
	b := NewBuzzer(dev, 25)
	if err := b.Pattern(context.Background(), 3, time.Millisecond, time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if len(dev.writes) != 6 {
		t.Fatalf("writes=%v", dev.writes)
	}
	if b.State() {
		t.Fatal("pattern must end silent")
	}
}

func TestBeepCancelledStillSilences(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := NewBuzzer(&recorder{}, 25)
	if err := b.Beep(ctx, time.Hour); err == nil {
		t.Fatal("expected context error")
	}
	if b.State() {
		t.Fatal("buzzer left on after cancellation")
	}
}
