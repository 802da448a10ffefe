package messages

import (
	"time"

	"github.com/LeonardoBeccarini/sensorbus/internal/model/entities"
)

// SensorData is published on the sensor channel.
// The flat batch form carries one optional key per quantity; the single form uses
// SensorType/Value/Unit. Both may appear in one message.
type SensorData struct {
	Type     string `json:"type"`
	DeviceID string `json:"device_id,omitempty"`
	Location string `json:"location,omitempty"`

	Temperature *float64 `json:"temperature,omitempty"`
	Humidity    *float64 `json:"humidity,omitempty"`
	Light       *float64 `json:"light,omitempty"`
	Motion      *bool    `json:"motion,omitempty"`

	SensorType string   `json:"sensor_type,omitempty"`
	Value      *float64 `json:"value,omitempty"`
	Unit       string   `json:"unit,omitempty"`

	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
}

// NewSensorData starts an empty batch for one device.
func NewSensorData(deviceID, location string, at time.Time) SensorData {
	return SensorData{
		Type:      entities.TypeSensorData,
		DeviceID:  deviceID,
		Location:  location,
		Timestamp: FormatTimestamp(at),
	}
}

// FromReading wraps a single Reading in the single-reading wire form.
func FromReading(r entities.Reading) SensorData {
	v := r.Value
	return SensorData{
		Type:       entities.TypeSensorData,
		DeviceID:   r.DeviceID,
		Location:   r.Location,
		SensorType: r.SensorType,
		Value:      &v,
		Unit:       r.Unit,
		Metadata:   r.Metadata,
		Timestamp:  FormatTimestamp(r.Timestamp),
	}
}

// Empty reports whether the batch carries no quantity at all.
func (s SensorData) Empty() bool {
	return s.Temperature == nil && s.Humidity == nil && s.Light == nil && s.Motion == nil &&
		(s.SensorType == "" || s.Value == nil)
}
