package entities

import "time"

// Sensor types published by the edge agent.
const (
	SensorTemperature = "temperature"
	SensorHumidity    = "humidity"
	SensorLight       = "light"
	SensorMotion      = "motion"
)

const (
	DefaultDeviceID = "unknown"
	DefaultLocation = "living_room"
)

// Reading is a single measurement of one quantity. Never mutated after creation.
type Reading struct {
	SensorType string         `json:"sensor_type"`
	Value      float64        `json:"value"`
	Unit       string         `json:"unit"`
	Location   string         `json:"location"`
	DeviceID   string         `json:"device_id"`
	Timestamp  time.Time      `json:"timestamp"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// UnitFor returns the canonical unit of a sensor type, "" when unknown.
func UnitFor(sensorType string) string {
	switch sensorType {
	case SensorTemperature:
		return "°C"
	case SensorHumidity:
		return "%"
	case SensorLight:
		return "lux"
	case SensorMotion:
		return "boolean"
	default:
		return ""
	}
}

// ReadingSummary aggregates the readings of one (device, sensor type) over a window.
type ReadingSummary struct {
	DeviceID   string    `json:"device_id"`
	SensorType string    `json:"sensor_type"`
	Mean       float64   `json:"mean"`
	Min        float64   `json:"min"`
	Max        float64   `json:"max"`
	Count      int       `json:"count"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
}
