package entities

import "time"

// Logical devices driven by the control synchronizer.
const (
	DeviceLED    = "led"
	DeviceBuzzer = "buzzer"
)

const (
	StateOn  = "on"
	StateOff = "off"
)

// DeviceState is the last known state of one device, keyed by DeviceName.
type DeviceState struct {
	DeviceName  string         `json:"device_name"`
	DeviceType  string         `json:"device_type"`
	State       string         `json:"state"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	LastUpdated time.Time      `json:"last_updated"`
	UpdatedBy   string         `json:"updated_by"`
}

// DeviceHistory is an append-only record of a DeviceState transition.
type DeviceHistory struct {
	DeviceName    string         `json:"device_name"`
	DeviceType    string         `json:"device_type"`
	PreviousState string         `json:"previous_state,omitempty"`
	NewState      string         `json:"new_state"`
	Parameters    map[string]any `json:"parameters,omitempty"`
	ChangedBy     string         `json:"changed_by"`
	Reason        string         `json:"reason,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}
