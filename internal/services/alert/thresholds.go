package alert

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/LeonardoBeccarini/sensorbus/internal/model/entities"
)

// Limit bounds one sensor type. A nil side is not checked.
type Limit struct {
	High *float64 `yaml:"high"`
	Low  *float64 `yaml:"low"`
}

// Thresholds maps a sensor type to its limits.
type Thresholds map[string]Limit

func ptr(v float64) *float64 { return &v }

func DefaultThresholds() Thresholds {
	return Thresholds{
		entities.SensorTemperature: {High: ptr(30), Low: ptr(15)},
		entities.SensorHumidity:    {High: ptr(70), Low: ptr(30)},
		entities.SensorLight:       {Low: ptr(50)},
	}
}

// LoadThresholds reads a YAML table and lays it over the defaults, one sensor type at a time.
// An empty path or a missing file yields the defaults.
func LoadThresholds(path string) (Thresholds, error) {
	t := DefaultThresholds()
	if strings.TrimSpace(path) == "" {
		return t, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Printf("alert: thresholds file %s not found, using defaults", path)
		return t, nil
	}
	if err != nil {
		return t, fmt.Errorf("alert: read thresholds: %w", err)
	}
	var file Thresholds
	if err := yaml.Unmarshal(data, &file); err != nil {
		return t, fmt.Errorf("alert: parse thresholds %s: %w", path, err)
	}
	for sensorType, l := range file {
		t[strings.ToLower(strings.TrimSpace(sensorType))] = l
	}
	t.warnInverted()
	return t, nil
}

// warnInverted logs every type whose low bound is above its high bound.
// Such a table is accepted; at most one of the two alerts can fire per reading.
func (t Thresholds) warnInverted() {
	types := make([]string, 0, len(t))
	for k := range t {
		types = append(types, k)
	}
	sort.Strings(types)
	for _, k := range types {
		l := t[k]
		if l.High != nil && l.Low != nil && *l.Low > *l.High {
			log.Printf("alert: WARNING thresholds for %s have low %v above high %v", k, *l.Low, *l.High)
		}
	}
}

// Check evaluates one value. High is tested before low and at most one alert is returned.
// Comparisons are strict: a value equal to a bound does not alert.
func (t Thresholds) Check(sensorType string, value float64, deviceID string, at time.Time) *entities.Alert {
	l, ok := t[sensorType]
	if !ok {
		return nil
	}
	name := label(sensorType)
	switch {
	case l.High != nil && value > *l.High:
		return newAlert("HIGH", sensorType, entities.SeverityWarning,
			fmt.Sprintf("%s %s exceeds threshold of %s", name, num(value), num(*l.High)),
			value, *l.High, deviceID, at)
	case l.Low != nil && value < *l.Low:
		return newAlert("LOW", sensorType, entities.SeverityInfo,
			fmt.Sprintf("%s %s below threshold of %s", name, num(value), num(*l.Low)),
			value, *l.Low, deviceID, at)
	}
	return nil
}

func newAlert(side, sensorType string, sev entities.Severity, msg string, value, threshold float64, deviceID string, at time.Time) *entities.Alert {
	alertType := side + "_" + strings.ToUpper(sensorType)
	return &entities.Alert{
		AlertType:  alertType,
		Severity:   sev,
		Title:      entities.TitleFor(alertType),
		Message:    msg,
		SensorType: sensorType,
		Value:      &value,
		Threshold:  &threshold,
		DeviceID:   deviceID,
		Timestamp:  at,
	}
}

func label(sensorType string) string {
	if sensorType == "" {
		return ""
	}
	return strings.ToUpper(sensorType[:1]) + sensorType[1:]
}

// num prints a float with at least one decimal: 30 -> "30.0", 31.25 -> "31.25".
func num(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
