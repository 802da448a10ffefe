package edge_agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LeonardoBeccarini/sensorbus/internal/edge-agent/actuators"
	"github.com/LeonardoBeccarini/sensorbus/internal/edge-agent/motion"
	"github.com/LeonardoBeccarini/sensorbus/internal/model/entities"
	"github.com/LeonardoBeccarini/sensorbus/internal/model/messages"
	"github.com/LeonardoBeccarini/sensorbus/internal/observability/metrics"
	"github.com/LeonardoBeccarini/sensorbus/pkg/dedup"
	"github.com/LeonardoBeccarini/sensorbus/pkg/mqttbus"
)

// Bus is the part of the bus client the agent uses.
type Bus interface {
	Publish(channel string, message any) error
	AddHandler(channel string, fn mqttbus.Handler) bool
	Subscribe(channels []string, withPresence bool) error
	Unsubscribe(channels ...string) error
}

var ErrShuttingDown = errors.New("edge: agent is shutting down")

// MotionPolicy decides what a motion start triggers locally.
type MotionPolicy struct {
	PublishAlert bool
	Beep         bool
	Flash        bool
}

type Agent struct {
	bus      Bus
	channels entities.ChannelBinding
	poller   *Poller
	motion   *motion.Machine
	policy   MotionPolicy
	led      *actuators.LED
	buzzer   *actuators.Buzzer
	deduper  *dedup.Deduper
	deviceID string
	location string

	// wg counts in-flight commands and actuator goroutines; Add only under mu while !closing.
	mu      sync.Mutex
	ctx     context.Context
	closing bool
	wg      sync.WaitGroup

	cycles        atomic.Int64
	published     atomic.Int64
	publishErrors atomic.Int64
	commands      atomic.Int64
	startedAt     time.Time
}

type Options struct {
	Channels entities.ChannelBinding
	DeviceID string
	Location string
	Motion   *motion.Machine
	Policy   MotionPolicy
	LED      *actuators.LED
	Buzzer   *actuators.Buzzer
}

func NewAgent(bus Bus, poller *Poller, o Options) *Agent {
	if o.LED == nil {
		o.LED = actuators.NewLED(nil, -1)
	}
	if o.Buzzer == nil {
		o.Buzzer = actuators.NewBuzzer(nil, -1)
	}
	return &Agent{
		bus:      bus,
		channels: o.Channels,
		poller:   poller,
		motion:   o.Motion,
		policy:   o.Policy,
		led:      o.LED,
		buzzer:   o.Buzzer,
		deduper:  dedup.New(2*time.Minute, 10000),
		deviceID: o.DeviceID,
		location: o.Location,
		ctx:      context.Background(),
	}
}

// Start subscribes to the control channel and publishes one batch per interval until ctx ends.
func (a *Agent) Start(ctx context.Context, interval time.Duration) {
	a.mu.Lock()
	a.ctx = ctx
	a.startedAt = time.Now()
	a.mu.Unlock()

	a.bus.AddHandler(a.channels.Control, a.handleControl)
	if err := a.bus.Subscribe([]string{a.channels.Control}, true); err != nil {
		log.Printf("edge: subscribe %s: %v", a.channels.Control, err)
	}
	if a.motion != nil && a.enter() {
		go a.watchMotion(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			a.shutdown()
			return
		case <-time.After(interval):
			a.PublishOnce(ctx)
		}
	}
}

// PublishOnce reads all sensors and publishes the batch on the sensor channel.
func (a *Agent) PublishOnce(ctx context.Context) {
	a.cycles.Add(1)
	data := a.poller.ReadAll(ctx)
	if data.Empty() {
		log.Printf("edge: no sensor produced a value, nothing published")
		return
	}
	if err := a.bus.Publish(a.channels.Sensor, data); err != nil {
		a.publishErrors.Add(1)
		metrics.IncPublishFailure(a.channels.Sensor)
		log.Printf("edge: publish sensor data: %v", err)
		return
	}
	a.published.Add(1)
}

func (a *Agent) watchMotion(ctx context.Context) {
	defer a.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-a.motion.Events():
			a.onMotion(ctx, ev)
		}
	}
}

func (a *Agent) onMotion(ctx context.Context, ev entities.MotionEvent) {
	metrics.IncMotionEvent(string(ev.Kind))
	if ev.Kind == entities.MotionEnd {
		if ev.Duration != nil {
			log.Printf("edge: motion ended after %s (event #%d)", ev.Duration.Round(100*time.Millisecond), ev.Sequence)
		} else {
			log.Printf("edge: motion ended (event #%d)", ev.Sequence)
		}
		return
	}
	log.Printf("edge: motion detected (event #%d)", ev.Sequence)

	if a.policy.PublishAlert {
		one := 1.0
		alert := messages.AlertMessage{
			Type:       entities.TypeAlert,
			AlertType:  "MOTION_DETECTED",
			Severity:   string(entities.SeverityInfo),
			Title:      "Motion Detected",
			Message:    fmt.Sprintf("Motion detected at %s", a.location),
			SensorType: entities.SensorMotion,
			Value:      &one,
			DeviceID:   a.deviceID,
			Location:   a.location,
			Metadata:   map[string]any{"event_sequence": ev.Sequence},
			Timestamp:  messages.FormatTimestamp(ev.Timestamp),
		}
		if err := a.bus.Publish(a.channels.Alert, alert); err != nil {
			metrics.IncPublishFailure(a.channels.Alert)
			log.Printf("edge: publish motion alert: %v", err)
		}
	}
	if a.policy.Beep {
		a.async(func() error {
			return a.buzzer.Pattern(ctx, 3, actuators.BeepDuration, actuators.BeepGap)
		})
	}
	if a.policy.Flash {
		a.async(func() error {
			wasOn := a.led.State()
			level := a.led.Brightness()
			if err := a.led.FlashQuick(ctx); err != nil {
				return err
			}
			if wasOn {
				return a.led.SetBrightness(level)
			}
			return nil
		})
	}
}

// enter registers one unit of work, refusing once shutdown has begun.
func (a *Agent) enter() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closing {
		return false
	}
	a.wg.Add(1)
	return true
}

func (a *Agent) async(fn func() error) {
	if !a.enter() {
		log.Printf("edge: actuator task dropped, shutting down")
		return
	}
	go func() {
		defer a.wg.Done()
		if err := fn(); err != nil && err != context.Canceled {
			log.Printf("edge: actuator: %v", err)
		}
	}()
}

func (a *Agent) runContext() context.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ctx
}

func (a *Agent) handleControl(_ string, payload []byte) error {
	if !a.enter() {
		return ErrShuttingDown
	}
	defer a.wg.Done()
	if !a.deduper.ShouldProcessMessage(payload) {
		return nil
	}
	var env messages.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return fmt.Errorf("invalid control message: %w", err)
	}
	switch env.Type {
	case entities.TypeStateUpdate:
		return nil
	case entities.TypeControlCommand:
	default:
		return fmt.Errorf("unexpected message type %q on control channel", env.Type)
	}
	var cmd messages.ControlCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("invalid control command: %w", err)
	}
	// the hub re-publishes a command under the same id once it is recorded
	if cmd.CommandID != "" && !a.deduper.ShouldProcess("command:"+cmd.CommandID) {
		return nil
	}
	a.commands.Add(1)
	return a.Execute(a.runContext(), cmd)
}

// shutdown stops taking commands, waits for running ones, then forces the
// actuators off and logs the session.
func (a *Agent) shutdown() {
	log.Printf("edge: shutting down...")
	a.mu.Lock()
	a.closing = true
	a.mu.Unlock()
	if err := a.bus.Unsubscribe(a.channels.Control); err != nil {
		log.Printf("edge: unsubscribe %s: %v", a.channels.Control, err)
	}
	a.wg.Wait()
	if err := a.led.Close(); err != nil {
		log.Printf("edge: led off: %v", err)
	}
	if err := a.buzzer.Close(); err != nil {
		log.Printf("edge: buzzer off: %v", err)
	}
	a.poller.Close()

	a.mu.Lock()
	uptime := time.Since(a.startedAt).Round(time.Second)
	a.mu.Unlock()
	log.Printf("edge: session %s, %d cycles, %d published, %d publish errors, %d commands",
		uptime, a.cycles.Load(), a.published.Load(), a.publishErrors.Load(), a.commands.Load())
	for _, i := range a.poller.Info() {
		log.Printf("edge: sensor %s simulated=%v reads=%d errors=%d success=%.1f%%",
			i.Name, i.Simulated, i.Reads, i.Errors, i.SuccessRate)
	}
	if a.motion != nil {
		st := a.motion.Stats()
		log.Printf("edge: motion %d events, %d readings, avg duration %s, dropped %d",
			st.TotalEvents, st.TotalReadings, st.AverageDuration.Round(100*time.Millisecond), st.DroppedEvents)
	}
}
