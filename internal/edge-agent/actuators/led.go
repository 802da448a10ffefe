package actuators

import (
	"context"
	"time"

	"github.com/LeonardoBeccarini/sensorbus/internal/edge-agent/hardware"
)

type LED struct {
	output
}

func NewLED(dev hardware.Device, pin int) *LED {
	return &LED{output: output{name: "led", dev: dev, pin: pin}}
}

// SetBrightness turns the LED on at pct percent (0..100). 0 turns it off.
// Digital backends only distinguish on from off.
func (l *LED) SetBrightness(pct float64) error {
	if pct <= 0 {
		return l.TurnOff()
	}
	if pct > 100 {
		pct = 100
	}
	return l.set(true, pct/100)
}

// Brightness in percent, 0 when off.
func (l *LED) Brightness() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level * 100
}

// Toggle flips the LED and returns the new state.
func (l *LED) Toggle() (bool, error) {
	if l.State() {
		return false, l.TurnOff()
	}
	return true, l.TurnOn()
}

// Blink flashes the LED times times and leaves it off.
func (l *LED) Blink(ctx context.Context, times int, on, off time.Duration) error {
	for i := 0; i < times; i++ {
		if err := l.TurnOn(); err != nil {
			return err
		}
		err := sleep(ctx, on)
		if offErr := l.TurnOff(); offErr != nil {
			return offErr
		}
		if err != nil {
			return err
		}
		if i < times-1 {
			if err := sleep(ctx, off); err != nil {
				return err
			}
		}
	}
	return nil
}

// FlashQuick is the short triple blink used for motion alerts.
func (l *LED) FlashQuick(ctx context.Context) error {
	return l.Blink(ctx, 3, 100*time.Millisecond, 100*time.Millisecond)
}
