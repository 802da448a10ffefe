package sensors

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/LeonardoBeccarini/sensorbus/internal/edge-agent/hardware"
	"github.com/LeonardoBeccarini/sensorbus/internal/model/entities"
)

// DHT22 cannot be sampled more often than this.
const climateMinInterval = 2 * time.Second

// Climate reads temperature and humidity from a DHT22.
type Climate struct {
	base

	lastRead time.Time
	last     Fields
}

func NewClimate(dev hardware.Device, pin int, opts ...Option) *Climate {
	c := &Climate{}
	c.init("dht22", dev, pin, opts)
	return c
}

// Read returns the cached pair when polled faster than the sensor allows.
func (c *Climate) Read(ctx context.Context) (Fields, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.last != nil && now.Sub(c.lastRead) < climateMinInterval {
		return c.withDerived(c.last), nil
	}
	c.lastRead = now

	var t, h float64
	if !c.simulated {
		s, ok, err := c.readRaw(ctx, 2)
		if err != nil {
			return nil, fmt.Errorf("dht22: %w", err)
		}
		if ok {
			t, h = round(s[0], 1), round(s[1], 1)
		}
	}
	if c.simulated {
		t, h = c.simulate(now)
	}
	c.reads++
	c.last = Fields{entities.SensorTemperature: t, entities.SensorHumidity: h}
	return c.withDerived(c.last), nil
}

func (c *Climate) withDerived(f Fields) Fields {
	t, h := f[entities.SensorTemperature], f[entities.SensorHumidity]
	return Fields{
		entities.SensorTemperature: t,
		entities.SensorHumidity:    h,
		"heat_index":               HeatIndex(t, h),
		"dew_point":                DewPoint(t, h),
	}
}

// simulate follows a daily curve: warmer during the day, humidity inverse to temperature.
func (c *Climate) simulate(now time.Time) (float64, float64) {
	hour := now.Hour()
	base := 19.0
	if hour >= 6 && hour <= 18 {
		base = 22.0 + float64(hour-12)*0.5
	}
	t := round(base+uniform(c.rnd, -1, 1), 1)
	h := round(70.0-(t-18.0)*2+uniform(c.rnd, -5, 5), 1)
	return t, clamp(h, 30, 80)
}

// HeatIndex is the feels-like temperature in °C (Rothfusz regression).
// Below 27 °C or 40 % it equals t.
func HeatIndex(t, h float64) float64 {
	if t < 27 || h < 40 {
		return t
	}
	f := t*9/5 + 32
	hi := -42.379 + 2.04901523*f + 10.14333127*h -
		0.22475541*f*h - 0.00683783*f*f - 0.05481717*h*h +
		0.00122874*f*f*h + 0.00085282*f*h*h - 0.00000199*f*f*h*h
	return round((hi-32)*5/9, 1)
}

// DewPoint uses the Magnus approximation.
func DewPoint(t, h float64) float64 {
	if h <= 0 {
		return t
	}
	const a, b = 17.27, 237.7
	alpha := a*t/(b+t) + math.Log(h/100)
	return round(b*alpha/(a-alpha), 1)
}
