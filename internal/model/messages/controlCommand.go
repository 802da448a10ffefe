package messages

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/LeonardoBeccarini/sensorbus/internal/model/entities"
)

// ControlCommand travels on the control channel.
// Brightness is kept untyped so the synchronizer can reject non-numeric values itself.
type ControlCommand struct {
	Type        string `json:"type"`
	CommandID   string `json:"command_id,omitempty"`
	Device      string `json:"device"`
	Action      string `json:"action"`
	Brightness  any    `json:"brightness,omitempty"`
	TargetState string `json:"target_state,omitempty"`
	Origin      string `json:"origin,omitempty"`
	Timestamp   string `json:"timestamp,omitempty"`
}

// StateUpdate confirms the state a device reached after a command.
type StateUpdate struct {
	Type          string         `json:"type"`
	CommandID     string         `json:"command_id"`
	Device        string         `json:"device"`
	Action        string         `json:"action"`
	State         string         `json:"state"`
	PreviousState string         `json:"previous_state"`
	Parameters    map[string]any `json:"parameters,omitempty"`
	Origin        string         `json:"origin,omitempty"`
	Timestamp     string         `json:"timestamp,omitempty"`
}

func NewControlCommand(device, action string) ControlCommand {
	return ControlCommand{Type: entities.TypeControlCommand, Device: device, Action: action}
}

var ErrNotNumeric = errors.New("value is not numeric")

// BrightnessValue decodes the untyped brightness field. A JSON number or a
// numeric string is accepted; present is false when the field is absent.
func (c ControlCommand) BrightnessValue() (pct float64, present bool, err error) {
	switch v := c.Brightness.(type) {
	case nil:
		return 0, false, nil
	case float64:
		return v, true, nil
	case float32:
		return float64(v), true, nil
	case int:
		return float64(v), true, nil
	case int64:
		return float64(v), true, nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, true, fmt.Errorf("brightness %q: %w", v, ErrNotNumeric)
		}
		return f, true, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, true, fmt.Errorf("brightness %q: %w", v, ErrNotNumeric)
		}
		return f, true, nil
	default:
		return 0, true, fmt.Errorf("brightness of type %T: %w", v, ErrNotNumeric)
	}
}
