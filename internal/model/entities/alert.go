package entities

import (
	"strings"
	"time"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// ParseSeverity maps free text to a Severity, defaulting to info.
func ParseSeverity(s string) Severity {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case SeverityWarning:
		return SeverityWarning
	case SeverityCritical:
		return SeverityCritical
	default:
		return SeverityInfo
	}
}

// Alert is created by the alert engine or received from the bus.
// Only the resolution fields change after creation, and never from the pipeline.
type Alert struct {
	ID         int64          `json:"id,omitempty"`
	AlertType  string         `json:"alert_type"`
	Severity   Severity       `json:"severity"`
	Title      string         `json:"title"`
	Message    string         `json:"message"`
	SensorType string         `json:"sensor_type,omitempty"`
	Value      *float64       `json:"value,omitempty"`
	Threshold  *float64       `json:"threshold,omitempty"`
	DeviceID   string         `json:"device_id,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Resolved   bool           `json:"resolved"`
	ResolvedBy string         `json:"resolved_by,omitempty"`
	ResolvedAt *time.Time     `json:"resolved_at,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// TitleFor builds a human title from an alert type: HIGH_TEMPERATURE -> "High Temperature".
func TitleFor(alertType string) string {
	parts := strings.Split(strings.ToLower(alertType), "_")
	out := parts[:0]
	for _, p := range parts {
		if p == "" {
			continue
		}
		out = append(out, strings.ToUpper(p[:1])+p[1:])
	}
	return strings.Join(out, " ")
}
