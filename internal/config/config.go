package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/LeonardoBeccarini/sensorbus/internal/model/entities"
	"github.com/LeonardoBeccarini/sensorbus/pkg/mqttbus"
)

var ErrInvalid = errors.New("config: invalid")

// Retry is the fixed-delay policy used for sensor reads.
type Retry struct {
	Attempts int           `mapstructure:"attempts"`
	Delay    time.Duration `mapstructure:"delay"`
}

type Motion struct {
	Calibration time.Duration `mapstructure:"calibration"`
	Debounce    time.Duration `mapstructure:"debounce"`
	Timeout     time.Duration `mapstructure:"timeout"`
	History     int           `mapstructure:"history"`
	Alerts      bool          `mapstructure:"alerts"`
	Beep        bool          `mapstructure:"beep"`
	Flash       bool          `mapstructure:"flash"`
}

// GPIO pins are line offsets on Chip. A negative pin leaves that peripheral unwired.
type GPIO struct {
	Enabled   bool   `mapstructure:"enabled"`
	Chip      string `mapstructure:"chip"`
	DHTPin    int    `mapstructure:"dht_pin"`
	LightPin  int    `mapstructure:"light_pin"`
	PIRPin    int    `mapstructure:"pir_pin"`
	LEDPin    int    `mapstructure:"led_pin"`
	BuzzerPin int    `mapstructure:"buzzer_pin"`
}

type EdgeSettings struct {
	DeviceID     string        `mapstructure:"device_id"`
	Location     string        `mapstructure:"location"`
	ReadInterval time.Duration `mapstructure:"read_interval"`
	MetricsPort  int           `mapstructure:"metrics_port"`
	Retry        Retry         `mapstructure:"retry"`
	Motion       Motion        `mapstructure:"motion"`
	GPIO         GPIO          `mapstructure:"gpio"`
}

// Edge is the configuration of the device-side agent.
type Edge struct {
	MQTT    mqttbus.Config          `mapstructure:"mqtt"`
	Channel entities.ChannelBinding `mapstructure:"channel"`
	Edge    EdgeSettings            `mapstructure:"edge"`
}

type Influx struct {
	URL           string        `mapstructure:"url"`
	Token         string        `mapstructure:"token"`
	Org           string        `mapstructure:"org"`
	Bucket        string        `mapstructure:"bucket"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

type HubSettings struct {
	ID                string        `mapstructure:"id"`
	HTTPPort          int           `mapstructure:"http_port"`
	GRPCPort          int           `mapstructure:"grpc_port"`
	PublishAlerts     bool          `mapstructure:"publish_alerts"`
	ThresholdsFile    string        `mapstructure:"thresholds_file"`
	AggregateInterval time.Duration `mapstructure:"aggregate_interval"`
	DedupTTL          time.Duration `mapstructure:"dedup_ttl"`
	DedupMax          int           `mapstructure:"dedup_max"`
}

// Server is the configuration of the hub.
type Server struct {
	MQTT     mqttbus.Config          `mapstructure:"mqtt"`
	Channel  entities.ChannelBinding `mapstructure:"channel"`
	Hub      HubSettings             `mapstructure:"hub"`
	Postgres struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"postgres"`
	Influx Influx `mapstructure:"influx"`
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("mqtt.host", "localhost")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.user", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("mqtt.presence_topic", "home/presence")
	v.SetDefault("mqtt.connect_retries", 5)
	v.SetDefault("mqtt.publish_timeout", 5*time.Second)

	v.SetDefault("channel.sensor", "home/sensors")
	v.SetDefault("channel.control", "home/control")
	v.SetDefault("channel.alert", "home/alerts")
	return v
}

func readFile(v *viper.Viper) {
	path := strings.TrimSpace(os.Getenv("CONFIG_FILE"))
	if path == "" {
		return
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		log.Printf("config: warning, cannot read %s: %v (using defaults and environment)", path, err)
	}
}

// LoadEdge reads defaults, the optional CONFIG_FILE and the environment.
func LoadEdge() (Edge, error) {
	v := newViper()
	v.SetDefault("mqtt.client_id", firstNonEmpty(os.Getenv("HOSTNAME"), "edge-agent"))

	v.SetDefault("edge.device_id", "pi-01")
	v.SetDefault("edge.location", entities.DefaultLocation)
	v.SetDefault("edge.read_interval", 10*time.Second)
	v.SetDefault("edge.metrics_port", 0)
	v.SetDefault("edge.retry.attempts", 3)
	v.SetDefault("edge.retry.delay", time.Second)
	v.SetDefault("edge.motion.calibration", 2*time.Second)
	v.SetDefault("edge.motion.debounce", 100*time.Millisecond)
	v.SetDefault("edge.motion.timeout", 5*time.Second)
	v.SetDefault("edge.motion.history", 100)
	v.SetDefault("edge.motion.alerts", true)
	v.SetDefault("edge.motion.beep", true)
	v.SetDefault("edge.motion.flash", true)
	v.SetDefault("edge.gpio.enabled", false)
	v.SetDefault("edge.gpio.chip", "gpiochip0")
	v.SetDefault("edge.gpio.dht_pin", 4)
	v.SetDefault("edge.gpio.light_pin", -1)
	v.SetDefault("edge.gpio.pir_pin", 27)
	v.SetDefault("edge.gpio.led_pin", 22)
	v.SetDefault("edge.gpio.buzzer_pin", 25)
	readFile(v)

	var cfg Edge
	if err := v.Unmarshal(&cfg); err != nil {
		return Edge{}, fmt.Errorf("config: decode: %w", err)
	}
	return cfg, cfg.Validate()
}

// LoadServer reads the hub configuration.
func LoadServer() (Server, error) {
	v := newViper()
	v.SetDefault("mqtt.client_id", firstNonEmpty(os.Getenv("HOSTNAME"), "hub"))

	v.SetDefault("hub.id", "hub")
	v.SetDefault("hub.http_port", 8080)
	v.SetDefault("hub.grpc_port", 9090)
	v.SetDefault("hub.publish_alerts", true)
	v.SetDefault("hub.thresholds_file", "")
	v.SetDefault("hub.aggregate_interval", time.Minute)
	v.SetDefault("hub.dedup_ttl", 10*time.Minute)
	v.SetDefault("hub.dedup_max", 20000)
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("influx.url", "")
	v.SetDefault("influx.token", "")
	v.SetDefault("influx.org", "home")
	v.SetDefault("influx.bucket", "sensors")
	v.SetDefault("influx.batch_size", 50)
	v.SetDefault("influx.flush_interval", time.Second)
	readFile(v)

	var cfg Server
	if err := v.Unmarshal(&cfg); err != nil {
		return Server{}, fmt.Errorf("config: decode: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Edge) Validate() error {
	if err := validateBus(c.MQTT, c.Channel); err != nil {
		return err
	}
	if c.Edge.ReadInterval <= 0 {
		return fmt.Errorf("%w: edge.read_interval must be positive", ErrInvalid)
	}
	if c.Edge.Retry.Attempts < 1 {
		return fmt.Errorf("%w: edge.retry.attempts must be at least 1", ErrInvalid)
	}
	return nil
}

func (c Server) Validate() error {
	if err := validateBus(c.MQTT, c.Channel); err != nil {
		return err
	}
	if strings.TrimSpace(c.Hub.ID) == "" {
		return fmt.Errorf("%w: hub.id is empty", ErrInvalid)
	}
	return nil
}

func validateBus(bus mqttbus.Config, ch entities.ChannelBinding) error {
	if err := bus.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := ch.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

func firstNonEmpty(v ...string) string {
	for _, s := range v {
		if strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}
