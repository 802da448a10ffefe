package control

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/LeonardoBeccarini/sensorbus/internal/model"
	"github.com/LeonardoBeccarini/sensorbus/internal/model/entities"
	"github.com/LeonardoBeccarini/sensorbus/internal/model/messages"
	"github.com/LeonardoBeccarini/sensorbus/internal/observability/metrics"
	"github.com/LeonardoBeccarini/sensorbus/internal/services/persistence"
)

const (
	CodeUnknownDevice    = "unknown_device"
	CodeUnknownAction    = "unknown_action"
	CodeInvalidParameter = "invalid_parameter"
)

// CommandError is a rejected command. It is returned inside a Result, not raised.
type CommandError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *CommandError) Error() string { return e.Code + ": " + e.Message }

type Result struct {
	Success       bool           `json:"success"`
	CommandID     string         `json:"command_id,omitempty"`
	Device        string         `json:"device"`
	Action        string         `json:"action"`
	State         string         `json:"state,omitempty"`
	PreviousState string         `json:"previous_state,omitempty"`
	Parameters    map[string]any `json:"parameters,omitempty"`
	Error         *CommandError  `json:"error,omitempty"`
}

var actions = map[string][]string{
	entities.DeviceLED:    {entities.StateOn, entities.StateOff, "toggle"},
	entities.DeviceBuzzer: {entities.StateOn, entities.StateOff, "beep", "alarm"},
}

type Publisher interface {
	Publish(channel string, message any) error
}

type Store interface {
	UpsertDeviceState(ctx context.Context, s model.DeviceState) error
	AppendDeviceHistory(ctx context.Context, h model.DeviceHistory) error
	GetDeviceState(ctx context.Context, deviceName string) (model.DeviceState, error)
	ListDeviceStates(ctx context.Context) ([]model.DeviceState, error)
}

type Options struct {
	Channel string // control channel
	Origin  string // hub id stamped on the fan-out
}

// Synchronizer validates control commands, records the resulting device state
// and fans the command out to the devices.
type Synchronizer struct {
	store Store
	bus   Publisher
	opts  Options

	mu    sync.Mutex
	now   func() time.Time
	newID func() string
}

func New(store Store, bus Publisher, opts Options) *Synchronizer {
	return &Synchronizer{
		store: store,
		bus:   bus,
		opts:  opts,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

func reject(r Result, code, format string, args ...any) Result {
	r.Success = false
	r.Error = &CommandError{Code: code, Message: fmt.Sprintf(format, args...)}
	metrics.IncControlCommand(r.Device, metrics.ResultError)
	return r
}

// Execute applies cmd. changedBy is recorded in the device history.
func (s *Synchronizer) Execute(ctx context.Context, cmd messages.ControlCommand, changedBy string) Result {
	device := strings.ToLower(strings.TrimSpace(cmd.Device))
	action := strings.ToLower(strings.TrimSpace(cmd.Action))
	res := Result{CommandID: cmd.CommandID, Device: device, Action: action}

	allowed, ok := actions[device]
	if !ok {
		return reject(res, CodeUnknownDevice, "unknown device %q", cmd.Device)
	}
	if !contains(allowed, action) {
		return reject(res, CodeUnknownAction, "unknown action %q for %s", cmd.Action, device)
	}

	params := map[string]any{}
	pct, hasBrightness, err := cmd.BrightnessValue()
	if err != nil {
		return reject(res, CodeInvalidParameter, "brightness must be numeric, got %v", cmd.Brightness)
	}

	var target string
	switch {
	case device == entities.DeviceLED && action == "toggle":
		// optimistic read outside the lock; two concurrent toggles can pick the same target
		if s.lastState(ctx, device) == entities.StateOn {
			target = entities.StateOff
		} else {
			target = entities.StateOn
		}
	default:
		target = action
	}
	if device == entities.DeviceLED && target == entities.StateOn {
		if !hasBrightness {
			pct = 100
		}
		params["brightness"] = clamp(pct, 0, 100)
	}

	if res.CommandID == "" {
		res.CommandID = s.newID()
	}
	res.State = target
	res.Parameters = params
	at := s.now().UTC()

	res.PreviousState = s.record(ctx, device, target, params, changedBy, action, at)
	s.fanOut(res, at)

	res.Success = true
	metrics.IncControlCommand(device, metrics.ResultOK)
	log.Printf("control: %s %s -> %s (command %s)", device, action, target, res.CommandID)
	return res
}

func (s *Synchronizer) lastState(ctx context.Context, device string) string {
	if s.store == nil {
		return entities.StateOff
	}
	st, err := s.store.GetDeviceState(ctx, device)
	if err != nil {
		if !errors.Is(err, persistence.ErrNotFound) {
			log.Printf("control: read %s state: %v", device, err)
		}
		return entities.StateOff
	}
	return st.State
}

// record upserts the state and appends history under the write lock.
// Failures are logged; the command still goes out.
func (s *Synchronizer) record(ctx context.Context, device, state string, params map[string]any, changedBy, reason string, at time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store == nil {
		return ""
	}

	previous := entities.StateOff
	if st, err := s.store.GetDeviceState(ctx, device); err == nil {
		previous = st.State
	}
	if err := s.store.UpsertDeviceState(ctx, model.DeviceState{
		DeviceName:  device,
		DeviceType:  device,
		State:       state,
		Parameters:  params,
		LastUpdated: at,
		UpdatedBy:   changedBy,
	}); err != nil {
		log.Printf("control: persist %s state: %v", device, err)
	}
	if err := s.store.AppendDeviceHistory(ctx, model.DeviceHistory{
		DeviceName:    device,
		DeviceType:    device,
		PreviousState: previous,
		NewState:      state,
		Parameters:    params,
		ChangedBy:     changedBy,
		Reason:        reason,
		Timestamp:     at,
	}); err != nil {
		log.Printf("control: append %s history: %v", device, err)
	}
	return previous
}

// fanOut publishes the resolved command and then the state update. Publish
// failures are logged and never roll back the recorded state.
func (s *Synchronizer) fanOut(res Result, at time.Time) {
	if s.bus == nil || s.opts.Channel == "" {
		return
	}
	ts := messages.FormatTimestamp(at)
	cmd := messages.ControlCommand{
		Type:        entities.TypeControlCommand,
		CommandID:   res.CommandID,
		Device:      res.Device,
		Action:      res.Action,
		TargetState: res.State,
		Origin:      s.opts.Origin,
		Timestamp:   ts,
	}
	if b, ok := res.Parameters["brightness"]; ok {
		cmd.Brightness = b
	}
	if err := s.bus.Publish(s.opts.Channel, cmd); err != nil {
		metrics.IncPublishFailure(s.opts.Channel)
		log.Printf("control: publish command %s: %v", res.CommandID, err)
	}

	update := messages.StateUpdate{
		Type:          entities.TypeStateUpdate,
		CommandID:     res.CommandID,
		Device:        res.Device,
		Action:        res.Action,
		State:         res.State,
		PreviousState: res.PreviousState,
		Parameters:    res.Parameters,
		Origin:        s.opts.Origin,
		Timestamp:     ts,
	}
	if err := s.bus.Publish(s.opts.Channel, update); err != nil {
		metrics.IncPublishFailure(s.opts.Channel)
		log.Printf("control: publish state update %s: %v", res.CommandID, err)
	}
}

// Status lists the last known state of every device. Devices never commanded report off.
func (s *Synchronizer) Status(ctx context.Context) ([]model.DeviceState, error) {
	known := map[string]model.DeviceState{}
	if s.store != nil {
		list, err := s.store.ListDeviceStates(ctx)
		if err != nil {
			return nil, err
		}
		for _, st := range list {
			known[st.DeviceName] = st
		}
	}
	out := make([]model.DeviceState, 0, len(actions))
	for _, name := range []string{entities.DeviceBuzzer, entities.DeviceLED} {
		st, ok := known[name]
		if !ok {
			st = model.DeviceState{DeviceName: name, DeviceType: name, State: entities.StateOff}
		}
		out = append(out, st)
	}
	return out, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
