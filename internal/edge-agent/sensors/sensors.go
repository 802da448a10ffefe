// Package sensors turns raw hardware samples into named measurements,
// falling back to a per-sensor simulation when the hardware is absent.
package sensors

import (
	"context"
	"errors"
	"log"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/LeonardoBeccarini/sensorbus/internal/edge-agent/hardware"
)

// Fields maps a quantity name (temperature, humidity, light, motion, ...) to its value.
type Fields map[string]float64

type Sensor interface {
	Name() string
	Read(ctx context.Context) (Fields, error)
	Simulated() bool
	Info() Info
	Close() error
}

// Info is the per-sensor read accounting.
type Info struct {
	Name        string  `json:"name"`
	Simulated   bool    `json:"simulated"`
	Reads       int64   `json:"reads"`
	Errors      int64   `json:"errors"`
	SuccessRate float64 `json:"success_rate"`
}

// Retry runs fn up to attempts times with a fixed delay. ErrUnavailable is not retried.
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(attempts-1)),
		ctx,
	)
	return backoff.Retry(func() error {
		err := fn()
		if errors.Is(err, hardware.ErrUnavailable) {
			return backoff.Permanent(err)
		}
		return err
	}, bo)
}

type Option func(*base)

func WithClock(now func() time.Time) Option {
	return func(b *base) { b.now = now }
}

func WithRetry(attempts int, delay time.Duration) Option {
	return func(b *base) {
		b.attempts = attempts
		b.delay = delay
	}
}

// WithRand fixes the simulation source.
func WithRand(r *rand.Rand) Option {
	return func(b *base) { b.rnd = r }
}

// base holds what every sensor shares: device, pin, retry policy and counters.
type base struct {
	name     string
	dev      hardware.Device
	pin      int
	attempts int
	delay    time.Duration
	now      func() time.Time
	rnd      *rand.Rand

	mu        sync.Mutex
	simulated bool
	reads     int64
	errs      int64
}

func (b *base) init(name string, dev hardware.Device, pin int, opts []Option) {
	b.name = name
	b.dev = dev
	b.pin = pin
	b.attempts = 3
	b.delay = time.Second
	b.now = time.Now
	for _, o := range opts {
		o(b)
	}
	if b.rnd == nil {
		b.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if dev == nil || pin < 0 {
		b.simulated = true
	}
}

func (b *base) Name() string { return b.name }

func (b *base) Simulated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.simulated
}

func (b *base) Info() Info {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := Info{Name: b.name, Simulated: b.simulated, Reads: b.reads, Errors: b.errs}
	if total := b.reads + b.errs; total > 0 {
		i.SuccessRate = math.Round(float64(b.reads)/float64(total)*1000) / 10
	}
	return i
}

// Close is a no-op: the shared device is owned and closed by the agent.
func (b *base) Close() error { return nil }

// readRaw samples the pin with retries. On ErrUnavailable the sensor switches to
// simulation for good and ok is false. Must be called with b.mu held.
func (b *base) readRaw(ctx context.Context, minLen int) (s hardware.Sample, ok bool, err error) {
	err = Retry(ctx, b.attempts, b.delay, func() error {
		got, rerr := b.dev.ReadRaw(b.pin)
		if rerr != nil {
			return rerr
		}
		if len(got) < minLen {
			return errors.New("short sample")
		}
		s = got
		return nil
	})
	if errors.Is(err, hardware.ErrUnavailable) {
		log.Printf("sensors: %s hardware unavailable on pin %d, switching to simulation", b.name, b.pin)
		b.simulated = true
		return nil, false, nil
	}
	if err != nil {
		b.errs++
		return nil, false, err
	}
	return s, true, nil
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func uniform(r *rand.Rand, lo, hi float64) float64 {
	return lo + r.Float64()*(hi-lo)
}
