package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/LeonardoBeccarini/sensorbus/internal/model/entities"
	"github.com/LeonardoBeccarini/sensorbus/pkg/mqttbus"
)

func setCreds(t *testing.T) {
	t.Helper()
	t.Setenv("MQTT_USER", "edge")
	t.Setenv("MQTT_PASSWORD", "secret")
	t.Setenv("CONFIG_FILE", "")
}

func TestLoadEdgeDefaults(t *testing.T) {
	setCreds(t)
	cfg, err := LoadEdge()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MQTT.Host != "localhost" || cfg.MQTT.Port != 1883 || cfg.MQTT.QoS != 1 {
		t.Fatalf("mqtt=%+v", cfg.MQTT)
	}
	if cfg.Channel.Sensor != "home/sensors" || cfg.Channel.Control != "home/control" || cfg.Channel.Alert != "home/alerts" {
		t.Fatalf("channels=%+v", cfg.Channel)
	}
	if cfg.Edge.ReadInterval != 10*time.Second || cfg.Edge.Retry.Attempts != 3 {
		t.Fatalf("edge=%+v", cfg.Edge)
	}
	if cfg.Edge.Motion.Calibration != 2*time.Second || cfg.Edge.Motion.Debounce != 100*time.Millisecond || cfg.Edge.Motion.History != 100 {
		t.Fatalf("motion=%+v", cfg.Edge.Motion)
	}
	if cfg.Edge.Location != entities.DefaultLocation {
		t.Fatalf("location=%q", cfg.Edge.Location)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	setCreds(t)
	t.Setenv("MQTT_HOST", "broker.lan")
	t.Setenv("CHANNEL_SENSOR", "lab/sensors")
	t.Setenv("EDGE_READ_INTERVAL", "2s")
	t.Setenv("EDGE_GPIO_ENABLED", "true")

	cfg, err := LoadEdge()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MQTT.Host != "broker.lan" || cfg.Channel.Sensor != "lab/sensors" {
		t.Fatalf("overrides not applied: %+v %+v", cfg.MQTT, cfg.Channel)
	}
	if cfg.Edge.ReadInterval != 2*time.Second || !cfg.Edge.GPIO.Enabled {
		t.Fatalf("edge=%+v", cfg.Edge)
	}
}

func TestMissingCredentialsFatal(t *testing.T) {
	t.Setenv("MQTT_USER", "")
	t.Setenv("MQTT_PASSWORD", "")
	t.Setenv("CONFIG_FILE", "")
	_, err := LoadServer()
	if !errors.Is(err, ErrInvalid) || !errors.Is(err, mqttbus.ErrConfig) {
		t.Fatalf("want credentials error, got %v", err)
	}
}

func TestDuplicateChannelsFatal(t *testing.T) {
	setCreds(t)
	t.Setenv("CHANNEL_ALERT", "home/sensors")
	_, err := LoadServer()
	if !errors.Is(err, entities.ErrDuplicateChannel) {
		t.Fatalf("want ErrDuplicateChannel, got %v", err)
	}
}

func TestConfigFile(t *testing.T) {
	setCreds(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "hub.yaml")
	body := "hub:\n  id: hub-lab\n  http_port: 9000\nchannel:\n  control: lab/control\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)

	cfg, err := LoadServer()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Hub.ID != "hub-lab" || cfg.Hub.HTTPPort != 9000 || cfg.Channel.Control != "lab/control" {
		t.Fatalf("file not applied: %+v %+v", cfg.Hub, cfg.Channel)
	}
	if cfg.Hub.DedupMax != 20000 {
		t.Fatalf("defaults lost: %+v", cfg.Hub)
	}
}
