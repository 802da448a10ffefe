// Package actuators drives the LED and buzzer. Without a device they only track state.
package actuators

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/LeonardoBeccarini/sensorbus/internal/edge-agent/hardware"
)

type Actuator interface {
	TurnOn() error
	TurnOff() error
	State() bool
	Close() error
}

// output is the shared on/off line handling.
type output struct {
	name string
	dev  hardware.Device
	pin  int

	mu    sync.Mutex
	on    bool
	level float64
}

func (o *output) simulated() bool { return o.dev == nil || o.pin < 0 }

func (o *output) set(on bool, level float64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !on {
		level = 0
	}
	if !o.simulated() {
		if err := o.dev.WriteActuator(o.pin, level); err != nil {
			return err
		}
	}
	o.on = on
	o.level = level
	return nil
}

func (o *output) TurnOn() error  { return o.set(true, 1) }
func (o *output) TurnOff() error { return o.set(false, 0) }

func (o *output) State() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.on
}

// Close turns the output off. The device itself is closed by its owner.
func (o *output) Close() error {
	if err := o.TurnOff(); err != nil {
		log.Printf("actuators: %s off on close: %v", o.name, err)
		return err
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
