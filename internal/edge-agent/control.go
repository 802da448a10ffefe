package edge_agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/LeonardoBeccarini/sensorbus/internal/edge-agent/actuators"
	"github.com/LeonardoBeccarini/sensorbus/internal/model/entities"
	"github.com/LeonardoBeccarini/sensorbus/internal/model/messages"
)

var ErrUnknownCommand = errors.New("edge: unknown device or action")

// Execute applies a control command to the local actuators.
// Beeps and alarms run in the background.
func (a *Agent) Execute(ctx context.Context, cmd messages.ControlCommand) error {
	device := strings.ToLower(strings.TrimSpace(cmd.Device))
	action := strings.ToLower(strings.TrimSpace(cmd.Action))

	switch device {
	case entities.DeviceLED:
		return a.executeLED(action, cmd)
	case entities.DeviceBuzzer:
		return a.executeBuzzer(ctx, action)
	}
	return fmt.Errorf("%w: %s %s", ErrUnknownCommand, cmd.Device, cmd.Action)
}

func (a *Agent) executeLED(action string, cmd messages.ControlCommand) error {
	switch action {
	case entities.StateOn:
		pct, ok, err := cmd.BrightnessValue()
		if err != nil {
			return err
		}
		if !ok {
			pct = 100
		}
		log.Printf("edge: led on at %.0f%%", pct)
		return a.led.SetBrightness(pct)
	case entities.StateOff:
		log.Printf("edge: led off")
		return a.led.TurnOff()
	case "toggle":
		switch cmd.TargetState {
		case entities.StateOn:
			return a.led.TurnOn()
		case entities.StateOff:
			return a.led.TurnOff()
		}
		on, err := a.led.Toggle()
		log.Printf("edge: led toggled, on=%v", on)
		return err
	}
	return fmt.Errorf("%w: led %s", ErrUnknownCommand, action)
}

func (a *Agent) executeBuzzer(ctx context.Context, action string) error {
	switch action {
	case entities.StateOn:
		return a.buzzer.TurnOn()
	case entities.StateOff:
		return a.buzzer.TurnOff()
	case "beep":
		a.async(func() error { return a.buzzer.Beep(ctx, actuators.BeepDuration) })
		return nil
	case "alarm":
		a.async(func() error { return a.buzzer.Alarm(ctx) })
		return nil
	}
	return fmt.Errorf("%w: buzzer %s", ErrUnknownCommand, action)
}
