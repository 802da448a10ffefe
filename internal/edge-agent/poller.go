package edge_agent

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/LeonardoBeccarini/sensorbus/internal/edge-agent/motion"
	"github.com/LeonardoBeccarini/sensorbus/internal/edge-agent/sensors"
	"github.com/LeonardoBeccarini/sensorbus/internal/model/entities"
	"github.com/LeonardoBeccarini/sensorbus/internal/model/messages"
	"github.com/LeonardoBeccarini/sensorbus/internal/observability/metrics"
)

// Poller reads every sensor once per cycle and builds a single batch.
type Poller struct {
	sensors  []sensors.Sensor
	deviceID string
	location string
	now      func() time.Time
}

func NewPoller(deviceID, location string, ss ...sensors.Sensor) *Poller {
	if deviceID == "" {
		deviceID = entities.DefaultDeviceID
	}
	if location == "" {
		location = entities.DefaultLocation
	}
	return &Poller{sensors: ss, deviceID: deviceID, location: location, now: time.Now}
}

// ReadAll reads the sensors serially. A failed sensor is left out of the batch;
// a partial batch is still valid.
func (p *Poller) ReadAll(ctx context.Context) messages.SensorData {
	data := messages.NewSensorData(p.deviceID, p.location, p.now())
	meta := map[string]any{}
	var simulated []string

	for _, s := range p.sensors {
		if ctx.Err() != nil {
			break
		}
		fields, err := s.Read(ctx)
		if err != nil {
			if errors.Is(err, motion.ErrCalibrating) {
				continue
			}
			log.Printf("edge: %s read failed: %v", s.Name(), err)
			metrics.IncSensorReadError(s.Name())
			continue
		}
		for k, v := range fields {
			v := v
			switch k {
			case entities.SensorTemperature:
				data.Temperature = &v
			case entities.SensorHumidity:
				data.Humidity = &v
			case entities.SensorLight:
				data.Light = &v
			case entities.SensorMotion:
				m := v >= 0.5
				data.Motion = &m
			default:
				meta[k] = v
			}
		}
		if s.Simulated() {
			simulated = append(simulated, s.Name())
		}
	}
	if len(simulated) > 0 {
		meta["simulated"] = simulated
	}
	if len(meta) > 0 {
		data.Metadata = meta
	}
	return data
}

// Info returns the read accounting of every sensor.
func (p *Poller) Info() []sensors.Info {
	out := make([]sensors.Info, 0, len(p.sensors))
	for _, s := range p.sensors {
		out = append(out, s.Info())
	}
	return out
}

func (p *Poller) Close() {
	for _, s := range p.sensors {
		if err := s.Close(); err != nil {
			log.Printf("edge: closing %s: %v", s.Name(), err)
		}
	}
}
