package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/LeonardoBeccarini/sensorbus/internal/model"
	"github.com/LeonardoBeccarini/sensorbus/internal/model/entities"
	"github.com/LeonardoBeccarini/sensorbus/internal/model/messages"
	"github.com/LeonardoBeccarini/sensorbus/internal/observability/metrics"
	"github.com/LeonardoBeccarini/sensorbus/internal/services/control"
	"github.com/LeonardoBeccarini/sensorbus/pkg/dedup"
	"github.com/LeonardoBeccarini/sensorbus/pkg/mqttbus"
)

var (
	ErrUnknownChannel = errors.New("router: unknown channel")
	ErrMalformed      = errors.New("router: malformed message")
	ErrTypeMismatch   = errors.New("router: message type not accepted on channel")
)

type Store interface {
	SaveReading(ctx context.Context, r model.Reading) error
	SaveAlert(ctx context.Context, a model.Alert) (int64, error)
}

type AlertEngine interface {
	Process(ctx context.Context, r model.Reading) *model.Alert
}

type Controller interface {
	Execute(ctx context.Context, cmd messages.ControlCommand, changedBy string) control.Result
}

type Aggregator interface {
	Add(r model.Reading)
}

type Bus interface {
	AddHandler(channel string, fn mqttbus.Handler) bool
	Subscribe(channels []string, withPresence bool) error
}

// Deps are the router's collaborators. Any of them may be nil.
type Deps struct {
	Store      Store
	Alerts     AlertEngine
	Control    Controller
	Aggregator Aggregator
	Deduper    *dedup.Deduper
	HubID      string
	Timeout    time.Duration // per message, default 5s
}

// Stats counts handled messages by outcome.
type Stats struct {
	Messages     int64 `json:"messages"`
	Duplicates   int64 `json:"duplicates"`
	Rejected     int64 `json:"rejected"`
	Readings     int64 `json:"readings"`
	Alerts       int64 `json:"alerts"`
	Commands     int64 `json:"commands"`
	StateUpdates int64 `json:"state_updates"`
}

// Router validates inbound bus messages against the channel binding and dispatches them.
type Router struct {
	binding entities.ChannelBinding
	deps    Deps
	base    atomic.Pointer[context.Context]
	now     func() time.Time

	messages, duplicates, rejected atomic.Int64
	readings, alerts, commands     atomic.Int64
	stateUpdates                   atomic.Int64
}

// New refuses a binding where two logical channels share a name.
func New(binding entities.ChannelBinding, deps Deps) (*Router, error) {
	if err := binding.Validate(); err != nil {
		return nil, err
	}
	if deps.Timeout <= 0 {
		deps.Timeout = 5 * time.Second
	}
	r := &Router{binding: binding, deps: deps, now: time.Now}
	ctx := context.Background()
	r.base.Store(&ctx)
	return r, nil
}

// Bind registers one handler per bound channel and subscribes to all of them.
// ctx bounds every storage call made while handling messages.
func (r *Router) Bind(ctx context.Context, bus Bus) error {
	r.base.Store(&ctx)
	for _, ch := range r.binding.Channels() {
		bus.AddHandler(ch, r.Handle)
	}
	if err := bus.Subscribe(r.binding.Channels(), true); err != nil {
		return fmt.Errorf("router: subscribe: %w", err)
	}
	return nil
}

func (r *Router) Stats() Stats {
	return Stats{
		Messages:     r.messages.Load(),
		Duplicates:   r.duplicates.Load(),
		Rejected:     r.rejected.Load(),
		Readings:     r.readings.Load(),
		Alerts:       r.alerts.Load(),
		Commands:     r.commands.Load(),
		StateUpdates: r.stateUpdates.Load(),
	}
}

// Handle processes one inbound message. Returned errors are logged by the bus layer.
func (r *Router) Handle(channel string, payload []byte) error {
	r.messages.Add(1)
	if !r.deps.Deduper.ShouldProcessMessage(payload) {
		r.duplicates.Add(1)
		metrics.IncBusMessage(channel, metrics.ResultDuplicate)
		return nil
	}
	err := r.route(channel, payload)
	if err != nil {
		r.rejected.Add(1)
		metrics.IncBusMessage(channel, metrics.ResultError)
		return err
	}
	metrics.IncBusMessage(channel, metrics.ResultOK)
	return nil
}

func (r *Router) route(channel string, payload []byte) error {
	accepted := r.binding.Accepts(channel)
	if accepted == nil {
		return fmt.Errorf("%w: %q", ErrUnknownChannel, channel)
	}
	var env messages.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	msgType := strings.TrimSpace(env.Type)
	if msgType == "" {
		return fmt.Errorf("%w: missing type", ErrMalformed)
	}
	if !contains(accepted, msgType) {
		return fmt.Errorf("%w: %q on %q", ErrTypeMismatch, msgType, channel)
	}

	ctx, cancel := context.WithTimeout(*r.base.Load(), r.deps.Timeout)
	defer cancel()

	switch msgType {
	case entities.TypeSensorData:
		var m messages.SensorData
		if err := json.Unmarshal(payload, &m); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return r.onSensorData(ctx, m)
	case entities.TypeAlert:
		var m messages.AlertMessage
		if err := json.Unmarshal(payload, &m); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return r.onAlert(ctx, m)
	case entities.TypeControlCommand:
		var m messages.ControlCommand
		if err := json.Unmarshal(payload, &m); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return r.onCommand(ctx, m)
	case entities.TypeStateUpdate:
		var m messages.StateUpdate
		if err := json.Unmarshal(payload, &m); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		r.stateUpdates.Add(1)
		log.Printf("router: state update %s %s -> %s (command %s, origin %s)", m.Device, m.PreviousState, m.State, m.CommandID, m.Origin)
	}
	return nil
}

func (r *Router) onSensorData(ctx context.Context, m messages.SensorData) error {
	readings := readingsFrom(m, r.now())
	if len(readings) == 0 {
		return fmt.Errorf("%w: no sensor data", ErrMalformed)
	}
	for _, rd := range readings {
		r.readings.Add(1)
		metrics.IncReading(rd.SensorType)
		if r.deps.Store != nil {
			if err := r.deps.Store.SaveReading(ctx, rd); err != nil {
				log.Printf("router: save %s reading: %v", rd.SensorType, err)
			}
		}
		if r.deps.Aggregator != nil {
			r.deps.Aggregator.Add(rd)
		}
		if r.deps.Alerts != nil {
			r.deps.Alerts.Process(ctx, rd)
		}
	}
	return nil
}

func (r *Router) onAlert(ctx context.Context, m messages.AlertMessage) error {
	if strings.TrimSpace(m.AlertType) == "" {
		return fmt.Errorf("%w: alert without alert_type", ErrMalformed)
	}
	if r.deps.HubID != "" && m.Source == r.deps.HubID {
		return nil
	}
	r.alerts.Add(1)
	a := m.ToAlert(r.now())
	metrics.IncAlert(a.AlertType, string(a.Severity))
	log.Printf("router: alert %s (%s) from %s: %s", a.AlertType, a.Severity, firstNonEmpty(m.Source, a.DeviceID, "unknown"), a.Message)
	if r.deps.Store != nil {
		if _, err := r.deps.Store.SaveAlert(ctx, a); err != nil {
			log.Printf("router: save alert %s: %v", a.AlertType, err)
		}
	}
	return nil
}

func (r *Router) onCommand(ctx context.Context, m messages.ControlCommand) error {
	if strings.TrimSpace(m.Device) == "" || strings.TrimSpace(m.Action) == "" {
		return fmt.Errorf("%w: control command needs device and action", ErrMalformed)
	}
	if r.deps.HubID != "" && m.Origin == r.deps.HubID {
		return nil
	}
	r.commands.Add(1)
	if r.deps.Control == nil {
		return nil
	}
	res := r.deps.Control.Execute(ctx, m, firstNonEmpty(m.Origin, "bus"))
	if !res.Success && res.Error != nil {
		log.Printf("router: command %s %s rejected: %s", m.Device, m.Action, res.Error.Message)
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func firstNonEmpty(v ...string) string {
	for _, s := range v {
		if strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}
