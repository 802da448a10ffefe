package alert

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/LeonardoBeccarini/sensorbus/internal/model"
	"github.com/LeonardoBeccarini/sensorbus/internal/model/entities"
	"github.com/LeonardoBeccarini/sensorbus/internal/model/messages"
)

var at = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func TestCheck(t *testing.T) {
	th := DefaultThresholds()
	cases := []struct {
		name       string
		sensorType string
		value      float64
		wantType   string
		wantSev    entities.Severity
		wantMsg    string
	}{
		{"hot", "temperature", 31.5, "HIGH_TEMPERATURE", entities.SeverityWarning, "Temperature 31.5 exceeds threshold of 30.0"},
		{"cold", "temperature", 14, "LOW_TEMPERATURE", entities.SeverityInfo, "Temperature 14.0 below threshold of 15.0"},
		{"at high bound", "temperature", 30, "", "", ""},
		{"at low bound", "temperature", 15, "", "", ""},
		{"humid", "humidity", 71, "HIGH_HUMIDITY", entities.SeverityWarning, "Humidity 71.0 exceeds threshold of 70.0"},
		{"dark", "light", 12.25, "LOW_LIGHT", entities.SeverityInfo, "Light 12.25 below threshold of 50.0"},
		{"bright has no high", "light", 5000, "", "", ""},
		{"no table for motion", "motion", 1, "", "", ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			a := th.Check(c.sensorType, c.value, "pi-01", at)
			if c.wantType == "" {
				if a != nil {
					t.Fatalf("unexpected alert %+v", a)
				}
				return
			}
			if a == nil {
				t.Fatal("expected an alert")
			}
			if a.AlertType != c.wantType || a.Severity != c.wantSev || a.Message != c.wantMsg {
				t.Fatalf("got %s/%s %q", a.AlertType, a.Severity, a.Message)
			}
			if a.DeviceID != "pi-01" || !a.Timestamp.Equal(at) || *a.Value != c.value {
				t.Fatalf("alert=%+v", a)
			}
		})
	}
}

func TestCheckInvertedTableRaisesOnlyOne(t *testing.T) {
	th := Thresholds{"temperature": {High: ptr(10), Low: ptr(20)}}
	a := th.Check("temperature", 15, "", at)
	if a == nil || a.AlertType != "HIGH_TEMPERATURE" {
		t.Fatalf("high must win, got %+v", a)
	}
}

func TestLoadThresholds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "thresholds.yaml")
	body := "temperature:\n  high: 28\n  low: 18\nco2:\n  high: 1000\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	th, err := LoadThresholds(path)
	if err != nil {
		t.Fatal(err)
	}
	if *th["temperature"].High != 28 || *th["co2"].High != 1000 || th["co2"].Low != nil {
		t.Fatalf("table=%v", th)
	}
	if *th["humidity"].High != 70 {
		t.Fatal("defaults for types absent from the file must remain")
	}

	missing, err := LoadThresholds(filepath.Join(dir, "nope.yaml"))
	if err != nil || *missing["temperature"].High != 30 {
		t.Fatalf("missing file must give defaults, err=%v", err)
	}

	bad := filepath.Join(dir, "bad.yaml")
	_ = os.WriteFile(bad, []byte("temperature: [1, 2"), 0o644)
	if _, err := LoadThresholds(bad); err == nil {
		t.Fatal("expected parse error")
	}
}

type fakeStore struct {
	saved []model.Alert
	err   error
}

func (s *fakeStore) SaveAlert(_ context.Context, a model.Alert) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.saved = append(s.saved, a)
	return int64(len(s.saved)), nil
}

type fakeBus struct {
	channels []string
	msgs     []any
	err      error
}

func (b *fakeBus) Publish(channel string, m any) error {
	if b.err != nil {
		return b.err
	}
	b.channels = append(b.channels, channel)
	b.msgs = append(b.msgs, m)
	return nil
}

func reading(sensorType string, v float64) model.Reading {
	return model.Reading{SensorType: sensorType, Value: v, DeviceID: "pi-01", Location: "kitchen", Timestamp: at}
}

func TestEngineProcess(t *testing.T) {
	store, bus := &fakeStore{}, &fakeBus{}
	e := NewEngine(nil, store, bus, Options{Channel: "home/alerts", Source: "hub", Publish: true})

	if a := e.Process(context.Background(), reading("temperature", 22)); a != nil {
		t.Fatalf("unexpected alert %+v", a)
	}
	a := e.Process(context.Background(), reading("temperature", 31.5))
	if a == nil || a.ID != 1 || len(store.saved) != 1 {
		t.Fatalf("alert=%+v saved=%d", a, len(store.saved))
	}
	if len(bus.msgs) != 1 || bus.channels[0] != "home/alerts" {
		t.Fatalf("published=%v", bus.channels)
	}
	msg := bus.msgs[0].(messages.AlertMessage)
	if msg.Source != "hub" || msg.Location != "kitchen" || *msg.ThresholdValue != 30 {
		t.Fatalf("msg=%+v", msg)
	}
}

func TestEngineFailuresAreIndependent(t *testing.T) {
	store := &fakeStore{err: errors.New("db down")}
	bus := &fakeBus{}
	e := NewEngine(nil, store, bus, Options{Channel: "home/alerts", Source: "hub", Publish: true})
	if a := e.Process(context.Background(), reading("humidity", 90)); a == nil || a.ID != 0 {
		t.Fatalf("alert=%+v", a)
	}
	if len(bus.msgs) != 1 {
		t.Fatal("persistence failure must not stop the publish")
	}

	quiet := NewEngine(nil, &fakeStore{}, bus, Options{Channel: "home/alerts"})
	quiet.Process(context.Background(), reading("humidity", 90))
	if len(bus.msgs) != 1 {
		t.Fatal("publishing disabled")
	}
}
