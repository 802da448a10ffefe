package messages

import (
	"strings"
	"time"

	"github.com/LeonardoBeccarini/sensorbus/internal/model/entities"
)

// AlertMessage is the wire form of an alert on the alert channel.
type AlertMessage struct {
	Type           string         `json:"type"`
	AlertType      string         `json:"alert_type"`
	Severity       string         `json:"severity"`
	Title          string         `json:"title,omitempty"`
	Message        string         `json:"message"`
	SensorType     string         `json:"sensor_type,omitempty"`
	Value          *float64       `json:"value,omitempty"`
	ThresholdValue *float64       `json:"threshold_value,omitempty"`
	DeviceID       string         `json:"device_id,omitempty"`
	Location       string         `json:"location,omitempty"`
	Source         string         `json:"source,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Timestamp      string         `json:"timestamp,omitempty"`
}

// NewAlertMessage converts an Alert for publishing.
func NewAlertMessage(a entities.Alert, source string) AlertMessage {
	return AlertMessage{
		Type:           entities.TypeAlert,
		AlertType:      a.AlertType,
		Severity:       string(a.Severity),
		Title:          a.Title,
		Message:        a.Message,
		SensorType:     a.SensorType,
		Value:          a.Value,
		ThresholdValue: a.Threshold,
		DeviceID:       a.DeviceID,
		Source:         source,
		Metadata:       a.Metadata,
		Timestamp:      FormatTimestamp(a.Timestamp),
	}
}

// ToAlert builds the stored form of a received alert.
func (m AlertMessage) ToAlert(receivedAt time.Time) entities.Alert {
	title := strings.TrimSpace(m.Title)
	if title == "" {
		title = entities.TitleFor(m.AlertType)
	}
	meta := m.Metadata
	if m.Location != "" {
		meta = make(map[string]any, len(m.Metadata)+1)
		for k, v := range m.Metadata {
			meta[k] = v
		}
		meta["location"] = m.Location
	}
	return entities.Alert{
		AlertType:  m.AlertType,
		Severity:   entities.ParseSeverity(m.Severity),
		Title:      title,
		Message:    m.Message,
		SensorType: m.SensorType,
		Value:      m.Value,
		Threshold:  m.ThresholdValue,
		DeviceID:   m.DeviceID,
		Timestamp:  ParseTimestamp(m.Timestamp, receivedAt),
		Metadata:   meta,
	}
}
