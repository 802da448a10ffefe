package messages

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/LeonardoBeccarini/sensorbus/internal/model/entities"
)

func TestParseTimestamp(t *testing.T) {
	fallback := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		in   string
		want time.Time
	}{
		{"2024-05-01T10:00:00Z", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
		{"2024-05-01T12:00:00.5+02:00", time.Date(2024, 5, 1, 10, 0, 0, 500000000, time.UTC)},
		{"2024-05-01T10:00:00.123456", time.Date(2024, 5, 1, 10, 0, 0, 123456000, time.UTC)},
		{"", fallback},
		{"yesterday", fallback},
	}
	for _, c := range cases {
		if got := ParseTimestamp(c.in, fallback); !got.Equal(c.want) {
			t.Errorf("ParseTimestamp(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

func TestBrightnessValue(t *testing.T) {
	decode := func(raw string) ControlCommand {
		var c ControlCommand
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			t.Fatal(err)
		}
		return c
	}
	if v, ok, err := decode(`{"brightness":42.5}`).BrightnessValue(); err != nil || !ok || v != 42.5 {
		t.Fatalf("number: v=%v ok=%v err=%v", v, ok, err)
	}
	if v, ok, err := decode(`{"brightness":" 80 "}`).BrightnessValue(); err != nil || !ok || v != 80 {
		t.Fatalf("numeric string: v=%v ok=%v err=%v", v, ok, err)
	}
	if _, ok, err := decode(`{}`).BrightnessValue(); err != nil || ok {
		t.Fatalf("absent: ok=%v err=%v", ok, err)
	}
	for _, raw := range []string{`{"brightness":"bright"}`, `{"brightness":true}`, `{"brightness":[1]}`} {
		if _, _, err := decode(raw).BrightnessValue(); !errors.Is(err, ErrNotNumeric) {
			t.Fatalf("%s: want ErrNotNumeric, got %v", raw, err)
		}
	}
}

func TestAlertMessageRoundTrip(t *testing.T) {
	v, th := 31.5, 30.0
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	a := entities.Alert{
		AlertType: "HIGH_TEMPERATURE", Severity: entities.SeverityWarning,
		Message: "Temperature 31.5 exceeds threshold of 30.0", SensorType: "temperature",
		Value: &v, Threshold: &th, DeviceID: "pi-01", Timestamp: at,
	}
	raw, err := json.Marshal(NewAlertMessage(a, "hub"))
	if err != nil {
		t.Fatal(err)
	}
	var m AlertMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatal(err)
	}
	if m.Type != entities.TypeAlert || m.Source != "hub" || *m.ThresholdValue != 30 {
		t.Fatalf("wire=%+v", m)
	}
	back := m.ToAlert(time.Now())
	if back.Title != "High Temperature" || !back.Timestamp.Equal(at) || back.Severity != entities.SeverityWarning {
		t.Fatalf("alert=%+v", back)
	}
}
