package alert

import (
	"context"
	"log"

	"github.com/LeonardoBeccarini/sensorbus/internal/model"
	"github.com/LeonardoBeccarini/sensorbus/internal/model/messages"
	"github.com/LeonardoBeccarini/sensorbus/internal/observability/metrics"
)

type Publisher interface {
	Publish(channel string, message any) error
}

type Store interface {
	SaveAlert(ctx context.Context, a model.Alert) (int64, error)
}

type Options struct {
	Channel string // alert channel
	Source  string // hub id stamped on published alerts
	Publish bool
}

// Engine turns readings into alerts: check, persist, then optionally publish.
type Engine struct {
	thresholds Thresholds
	store      Store
	bus        Publisher
	opts       Options
}

func NewEngine(t Thresholds, store Store, bus Publisher, opts Options) *Engine {
	if t == nil {
		t = DefaultThresholds()
	}
	return &Engine{thresholds: t, store: store, bus: bus, opts: opts}
}

func (e *Engine) Thresholds() Thresholds { return e.thresholds }

// Process returns the alert raised by r, or nil. Persistence and publish
// failures are logged and do not affect each other.
func (e *Engine) Process(ctx context.Context, r model.Reading) *model.Alert {
	a := e.thresholds.Check(r.SensorType, r.Value, r.DeviceID, r.Timestamp)
	if a == nil {
		return nil
	}
	if r.Location != "" {
		a.Metadata = map[string]any{"location": r.Location}
	}
	metrics.IncAlert(a.AlertType, string(a.Severity))
	log.Printf("alert: %s (%s) %s", a.AlertType, a.Severity, a.Message)

	if e.store != nil {
		id, err := e.store.SaveAlert(ctx, *a)
		if err != nil {
			log.Printf("alert: persist %s failed, alert not stored: %v", a.AlertType, err)
		} else {
			a.ID = id
		}
	}

	if e.opts.Publish && e.bus != nil && e.opts.Channel != "" {
		msg := messages.NewAlertMessage(*a, e.opts.Source)
		msg.Location = r.Location
		if err := e.bus.Publish(e.opts.Channel, msg); err != nil {
			metrics.IncPublishFailure(e.opts.Channel)
			log.Printf("alert: publish %s: %v", a.AlertType, err)
		}
	}
	return a
}
