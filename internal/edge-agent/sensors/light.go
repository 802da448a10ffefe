package sensors

import (
	"context"
	"fmt"

	"github.com/LeonardoBeccarini/sensorbus/internal/edge-agent/hardware"
	"github.com/LeonardoBeccarini/sensorbus/internal/model/entities"
)

// Light reads an LDR through a 10-bit ADC channel.
type Light struct {
	base
}

func NewLight(dev hardware.Device, pin int, opts ...Option) *Light {
	l := &Light{}
	l.init("ldr", dev, pin, opts)
	return l
}

// LuxFromRaw maps the 0..1023 ADC range onto 0..1000 lux.
func LuxFromRaw(raw float64) float64 {
	return round(raw/1023.0*1000.0, 2)
}

func (l *Light) Read(ctx context.Context) (Fields, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.simulated {
		s, ok, err := l.readRaw(ctx, 1)
		if err != nil {
			return nil, fmt.Errorf("ldr: %w", err)
		}
		if ok {
			l.reads++
			return Fields{entities.SensorLight: LuxFromRaw(s[0])}, nil
		}
	}
	l.reads++
	return Fields{entities.SensorLight: l.simulate()}, nil
}

func (l *Light) simulate() float64 {
	hour := l.now().Hour()
	if hour >= 7 && hour <= 19 {
		return round(300+uniform(l.rnd, 0, 400), 2)
	}
	return round(uniform(l.rnd, 5, 30), 2)
}
