package entities

import (
	"errors"
	"fmt"
	"strings"
)

// Message types carried in the envelope "type" field.
const (
	TypeSensorData     = "sensor_data"
	TypeControlCommand = "control_command"
	TypeAlert          = "alert"
	TypeStateUpdate    = "state_update"
)

var ErrDuplicateChannel = errors.New("channel binding: logical channels must map to distinct names")

// ChannelBinding maps the three logical channels to physical bus channel names.
type ChannelBinding struct {
	Sensor  string `mapstructure:"sensor" yaml:"sensor"`
	Control string `mapstructure:"control" yaml:"control"`
	Alert   string `mapstructure:"alert" yaml:"alert"`
}

// Validate fails when a name is empty or two logical channels share a name.
func (b ChannelBinding) Validate() error {
	names := map[string]string{
		"sensor":  strings.TrimSpace(b.Sensor),
		"control": strings.TrimSpace(b.Control),
		"alert":   strings.TrimSpace(b.Alert),
	}
	seen := make(map[string]string, len(names))
	for _, logical := range []string{"sensor", "control", "alert"} {
		name := names[logical]
		if name == "" {
			return fmt.Errorf("%w: %s channel is empty", ErrDuplicateChannel, logical)
		}
		if other, ok := seen[name]; ok {
			return fmt.Errorf("%w: %s and %s both use %q", ErrDuplicateChannel, other, logical, name)
		}
		seen[name] = logical
	}
	return nil
}

// Accepts returns the message types allowed on a physical channel, nil if unbound.
func (b ChannelBinding) Accepts(channel string) []string {
	switch channel {
	case b.Sensor:
		return []string{TypeSensorData}
	case b.Control:
		return []string{TypeControlCommand, TypeStateUpdate}
	case b.Alert:
		return []string{TypeAlert}
	default:
		return nil
	}
}

// Channels lists the bound channel names in sensor, control, alert order.
func (b ChannelBinding) Channels() []string {
	return []string{b.Sensor, b.Control, b.Alert}
}
