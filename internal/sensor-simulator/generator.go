package sensor_simulator

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/LeonardoBeccarini/sensorbus/internal/edge-agent/sensors"
	"github.com/LeonardoBeccarini/sensorbus/internal/model/entities"
)

// DataGenerator is a simulated temperature sensor. The value relaxes toward a
// baseline over time and ApplyHeat pushes it away, so thresholds can be crossed on demand.
type DataGenerator struct {
	mu          sync.Mutex
	baseline    float64
	value       float64
	decayPerMin float64 // rate of the exponential return to baseline
	last        time.Time
	now         func() time.Time
	reads       int64
}

// NewDataGenerator starts at the baseline. A zero halfLife keeps any applied heat forever.
func NewDataGenerator(baseline float64, halfLife time.Duration) *DataGenerator {
	g := &DataGenerator{baseline: baseline, value: baseline, now: time.Now}
	if halfLife > 0 {
		g.decayPerMin = math.Log(2) / halfLife.Minutes()
	}
	return g
}

// advance must be called with g.mu held.
func (g *DataGenerator) advance() {
	now := g.now()
	if g.last.IsZero() {
		g.last = now
		return
	}
	dtMin := now.Sub(g.last).Minutes()
	if dtMin < 0 {
		dtMin = 0
	}
	g.value = g.baseline + (g.value-g.baseline)*math.Exp(-g.decayPerMin*dtMin)
	g.last = now
}

// ApplyHeat shifts the current value by delta degrees.
func (g *DataGenerator) ApplyHeat(delta float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.advance()
	g.value += delta
}

func (g *DataGenerator) Name() string { return "sim-temperature" }

func (g *DataGenerator) Read(context.Context) (sensors.Fields, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.advance()
	g.reads++
	return sensors.Fields{entities.SensorTemperature: math.Round(g.value*10) / 10}, nil
}

func (g *DataGenerator) Simulated() bool { return true }

func (g *DataGenerator) Info() sensors.Info {
	g.mu.Lock()
	defer g.mu.Unlock()
	return sensors.Info{Name: g.Name(), Simulated: true, Reads: g.reads, SuccessRate: 100}
}

func (g *DataGenerator) Close() error { return nil }
