package actuators

import (
	"context"
	"time"

	"github.com/LeonardoBeccarini/sensorbus/internal/edge-agent/hardware"
)

const (
	BeepDuration = 200 * time.Millisecond
	BeepGap      = 100 * time.Millisecond
	AlarmBeeps   = 5
)

type Buzzer struct {
	output
}

func NewBuzzer(dev hardware.Device, pin int) *Buzzer {
	return &Buzzer{output: output{name: "buzzer", dev: dev, pin: pin}}
}

// Beep sounds once for d. The buzzer is left off even when ctx is cancelled.
func (b *Buzzer) Beep(ctx context.Context, d time.Duration) error {
	if err := b.TurnOn(); err != nil {
		return err
	}
	err := sleep(ctx, d)
	if offErr := b.TurnOff(); offErr != nil {
		return offErr
	}
	return err
}

// Pattern plays count beeps of length on separated by gap.
func (b *Buzzer) Pattern(ctx context.Context, count int, on, gap time.Duration) error {
	for i := 0; i < count; i++ {
		if err := b.Beep(ctx, on); err != nil {
			return err
		}
		if i < count-1 {
			if err := sleep(ctx, gap); err != nil {
				return err
			}
		}
	}
	return nil
}

// Alarm is a fixed run of AlarmBeeps beeps.
func (b *Buzzer) Alarm(ctx context.Context) error {
	return b.Pattern(ctx, AlarmBeeps, BeepDuration, BeepGap)
}
