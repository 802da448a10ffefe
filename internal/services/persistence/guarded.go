package persistence

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/sony/gobreaker"

	"github.com/LeonardoBeccarini/sensorbus/internal/model"
	"github.com/LeonardoBeccarini/sensorbus/internal/observability/metrics"
)

// BreakerSettings configures the circuit breaker in front of the store.
type BreakerSettings struct {
	Failures uint32        // consecutive failures that open the breaker
	OpenFor  time.Duration // time spent open before a half-open probe
	Interval time.Duration // closed-state counter reset period, 0 never resets
}

func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{Failures: 5, OpenFor: 15 * time.Second, Interval: time.Minute}
}

// Guarded fronts a Store with a circuit breaker and mirrors readings and alerts
// to Influx when a writer is set. Failures are returned, never retried.
type Guarded struct {
	store  Store
	cb     *gobreaker.CircuitBreaker
	mirror *Writer
}

func NewGuarded(store Store, mirror *Writer, s BreakerSettings) *Guarded {
	if s.Failures == 0 {
		s.Failures = DefaultBreakerSettings().Failures
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "store",
		Interval: s.Interval,
		Timeout:  s.OpenFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= s.Failures
		},
		// a missing row says nothing about database health
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("persistence: breaker %s %s -> %s", name, from, to)
		},
	})
	return &Guarded{store: store, cb: cb, mirror: mirror}
}

// BreakerState reports the breaker state for health checks.
func (g *Guarded) BreakerState() gobreaker.State { return g.cb.State() }

func (g *Guarded) Mirror() *Writer { return g.mirror }

func (g *Guarded) do(op string, fn func() error) error {
	_, err := g.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		metrics.IncStoreFailure(op)
	}
	return err
}

func (g *Guarded) SaveReading(ctx context.Context, r model.Reading) error {
	g.mirror.WriteReading(r)
	return g.do("save_reading", func() error { return g.store.SaveReading(ctx, r) })
}

func (g *Guarded) SaveAlert(ctx context.Context, a model.Alert) (int64, error) {
	g.mirror.WriteAlert(a)
	var id int64
	err := g.do("save_alert", func() error {
		var err error
		id, err = g.store.SaveAlert(ctx, a)
		return err
	})
	return id, err
}

func (g *Guarded) UpsertDeviceState(ctx context.Context, s model.DeviceState) error {
	return g.do("upsert_device_state", func() error { return g.store.UpsertDeviceState(ctx, s) })
}

func (g *Guarded) AppendDeviceHistory(ctx context.Context, h model.DeviceHistory) error {
	return g.do("append_device_history", func() error { return g.store.AppendDeviceHistory(ctx, h) })
}

func (g *Guarded) GetDeviceState(ctx context.Context, deviceName string) (model.DeviceState, error) {
	var s model.DeviceState
	err := g.do("get_device_state", func() error {
		var err error
		s, err = g.store.GetDeviceState(ctx, deviceName)
		return err
	})
	return s, err
}

func (g *Guarded) ListDeviceStates(ctx context.Context) ([]model.DeviceState, error) {
	var out []model.DeviceState
	err := g.do("list_device_states", func() error {
		var err error
		out, err = g.store.ListDeviceStates(ctx)
		return err
	})
	return out, err
}

func (g *Guarded) UnresolvedAlerts(ctx context.Context, limit int) ([]model.Alert, error) {
	var out []model.Alert
	err := g.do("unresolved_alerts", func() error {
		var err error
		out, err = g.store.UnresolvedAlerts(ctx, limit)
		return err
	})
	return out, err
}

func (g *Guarded) ResolveAlert(ctx context.Context, id int64, resolvedBy string) error {
	return g.do("resolve_alert", func() error { return g.store.ResolveAlert(ctx, id, resolvedBy) })
}

// Ping bypasses the breaker so readiness reflects the database itself.
func (g *Guarded) Ping(ctx context.Context) error { return g.store.Ping(ctx) }
