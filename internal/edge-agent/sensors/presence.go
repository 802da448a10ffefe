package sensors

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/LeonardoBeccarini/sensorbus/internal/edge-agent/hardware"
	"github.com/LeonardoBeccarini/sensorbus/internal/edge-agent/motion"
	"github.com/LeonardoBeccarini/sensorbus/internal/model/entities"
)

// Presence reads a PIR line through the motion state machine.
type Presence struct {
	base
	machine  *motion.Machine
	lastTrue time.Time
}

func NewPresence(dev hardware.Device, pin int, m *motion.Machine, opts ...Option) *Presence {
	if m == nil {
		m = motion.New(motion.DefaultConfig())
	}
	p := &Presence{machine: m}
	p.init("pir", dev, pin, opts)
	return p
}

func (p *Presence) Machine() *motion.Machine { return p.machine }

// Read reports motion as 1 or 0. While the sensor calibrates it returns motion.ErrCalibrating.
func (p *Presence) Read(_ context.Context) (Fields, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	active, err := p.machine.Read(p.sample)
	if err != nil {
		if !errors.Is(err, motion.ErrCalibrating) {
			p.errs++
		}
		return nil, err
	}
	p.reads++
	v := 0.0
	if active {
		v = 1
	}
	return Fields{entities.SensorMotion: v}, nil
}

// sample runs under p.mu, inside the machine's lock.
func (p *Presence) sample() (bool, error) {
	if !p.simulated {
		s, err := p.dev.ReadRaw(p.pin)
		switch {
		case errors.Is(err, hardware.ErrUnavailable):
			log.Printf("sensors: pir hardware unavailable on pin %d, switching to simulation", p.pin)
			p.simulated = true
		case err != nil:
			return false, err
		case len(s) == 0:
			return false, errors.New("pir: empty sample")
		default:
			return s[0] >= 0.5, nil
		}
	}
	return p.simulate(), nil
}

// simulate: more motion during waking hours, and a bit more after a quiet minute.
func (p *Presence) simulate() bool {
	now := p.now()
	prob := 0.02
	if h := now.Hour(); h >= 7 && h <= 23 {
		prob = 0.12
	}
	if !p.lastTrue.IsZero() && now.Sub(p.lastTrue) > time.Minute {
		prob *= 1.5
	}
	hit := p.rnd.Float64() < prob
	if hit {
		p.lastTrue = now
	}
	return hit
}
