package sensor_simulator

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync/atomic"
	"time"

	edgeAgent "github.com/LeonardoBeccarini/sensorbus/internal/edge-agent"
	"github.com/LeonardoBeccarini/sensorbus/internal/edge-agent/sensors"
)

type Publisher interface {
	Publish(channel string, message any) error
}

// Device is one virtual edge node.
type Device struct {
	ID        string
	Poller    *edgeAgent.Poller
	Generator *DataGenerator
}

// NewDevice builds a virtual node with a drifting temperature and a simulated light sensor.
func NewDevice(id, location string, gen *DataGenerator) Device {
	return Device{
		ID:        id,
		Poller:    edgeAgent.NewPoller(id, location, gen, sensors.NewLight(nil, -1)),
		Generator: gen,
	}
}

// SensorSimulator publishes sensor batches for a fleet of virtual devices.
type SensorSimulator struct {
	bus     Publisher
	channel string
	devices []Device
	rnd     *rand.Rand

	published atomic.Int64
	failed    atomic.Int64
}

func NewSensorSimulator(bus Publisher, channel string, devices ...Device) *SensorSimulator {
	return &SensorSimulator{
		bus:     bus,
		channel: channel,
		devices: devices,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// PublishOnce publishes one batch per device and returns how many went out.
func (s *SensorSimulator) PublishOnce(ctx context.Context) int {
	n := 0
	for _, d := range s.devices {
		batch := d.Poller.ReadAll(ctx)
		if batch.Empty() {
			continue
		}
		if err := s.bus.Publish(s.channel, batch); err != nil {
			s.failed.Add(1)
			log.Printf("simulator: %s publish error: %v", d.ID, err)
			continue
		}
		s.published.Add(1)
		n++
	}
	return n
}

// Spike heats one random device by delta and returns its id.
func (s *SensorSimulator) Spike(delta float64) (string, error) {
	if len(s.devices) == 0 {
		return "", fmt.Errorf("simulator: no devices")
	}
	d := s.devices[s.rnd.Intn(len(s.devices))]
	d.Generator.ApplyHeat(delta)
	return d.ID, nil
}

// Start publishes every interval until ctx ends. A positive spikeEvery heats a
// random device by spike degrees on that period.
func (s *SensorSimulator) Start(ctx context.Context, interval, spikeEvery time.Duration, spike float64) {
	var spikeC <-chan time.Time
	if spikeEvery > 0 {
		t := time.NewTicker(spikeEvery)
		defer t.Stop()
		spikeC = t.C
	}
	for {
		select {
		case <-ctx.Done():
			for _, d := range s.devices {
				d.Poller.Close()
			}
			log.Printf("simulator: stopped, %d batches published, %d failed", s.published.Load(), s.failed.Load())
			return
		case <-spikeC:
			if id, err := s.Spike(spike); err == nil {
				log.Printf("simulator: %s heated by %.1f", id, spike)
			}
		case <-time.After(interval):
			s.PublishOnce(ctx)
		}
	}
}
