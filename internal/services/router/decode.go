package router

import (
	"maps"
	"strings"
	"time"

	"github.com/LeonardoBeccarini/sensorbus/internal/model"
	"github.com/LeonardoBeccarini/sensorbus/internal/model/entities"
	"github.com/LeonardoBeccarini/sensorbus/internal/model/messages"
)

// readingsFrom fans a sensor_data message out into one Reading per populated field.
// Batch fields come first in temperature, humidity, light, motion order, then the single form.
func readingsFrom(m messages.SensorData, receivedAt time.Time) []model.Reading {
	deviceID := strings.TrimSpace(m.DeviceID)
	if deviceID == "" {
		deviceID = entities.DefaultDeviceID
	}
	location := strings.TrimSpace(m.Location)
	if location == "" {
		location = entities.DefaultLocation
	}
	at := messages.ParseTimestamp(m.Timestamp, receivedAt)

	mk := func(sensorType string, v float64, unit string) model.Reading {
		if unit == "" {
			unit = entities.UnitFor(sensorType)
		}
		return model.Reading{
			SensorType: sensorType,
			Value:      v,
			Unit:       unit,
			Location:   location,
			DeviceID:   deviceID,
			Timestamp:  at,
			Metadata:   maps.Clone(m.Metadata),
		}
	}

	var out []model.Reading
	if m.Temperature != nil {
		out = append(out, mk(entities.SensorTemperature, *m.Temperature, ""))
	}
	if m.Humidity != nil {
		out = append(out, mk(entities.SensorHumidity, *m.Humidity, ""))
	}
	if m.Light != nil {
		out = append(out, mk(entities.SensorLight, *m.Light, ""))
	}
	if m.Motion != nil {
		v := 0.0
		if *m.Motion {
			v = 1
		}
		out = append(out, mk(entities.SensorMotion, v, ""))
	}
	if st := strings.ToLower(strings.TrimSpace(m.SensorType)); st != "" && m.Value != nil {
		out = append(out, mk(st, *m.Value, m.Unit))
	}
	return out
}
