// Package motion classifies raw PIR samples into motion start/end transitions.
package motion

import (
	"errors"
	"sync"
	"time"

	"github.com/LeonardoBeccarini/sensorbus/internal/model/entities"
)

var ErrCalibrating = errors.New("motion: sensor still calibrating")

type State string

const (
	StateCalibrating State = "calibrating"
	StateIdle        State = "idle"
	StateActive      State = "active"
)

type Config struct {
	Calibration time.Duration
	Debounce    time.Duration
	Timeout     time.Duration
	History     int
	EventBuffer int
}

func DefaultConfig() Config {
	return Config{
		Calibration: 2 * time.Second,
		Debounce:    100 * time.Millisecond,
		Timeout:     5 * time.Second,
		History:     100,
		EventBuffer: 16,
	}
}

type Option func(*Machine)

func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// Machine is safe for concurrent use.
type Machine struct {
	cfg Config
	now func() time.Time

	mu         sync.Mutex
	state      State
	startedAt  time.Time
	lastRead   time.Time
	lastMotion time.Time
	readings   int64
	events     int64
	dropped    int64
	history    []entities.MotionEvent

	// running totals of completed motion durations
	durationSum time.Duration
	durations   int64

	out chan entities.MotionEvent
}

func New(cfg Config, opts ...Option) *Machine {
	def := DefaultConfig()
	if cfg.Calibration < 0 {
		cfg.Calibration = def.Calibration
	}
	if cfg.Debounce < 0 {
		cfg.Debounce = def.Debounce
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.History <= 0 {
		cfg.History = def.History
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = def.EventBuffer
	}
	m := &Machine{cfg: cfg, now: time.Now, state: StateCalibrating}
	for _, o := range opts {
		o(m)
	}
	m.startedAt = m.now()
	m.out = make(chan entities.MotionEvent, cfg.EventBuffer)
	return m
}

// Events delivers start and end transitions. A full buffer drops the event.
func (m *Machine) Events() <-chan entities.MotionEvent { return m.out }

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Calibrated reports whether warm-up is over.
func (m *Machine) Calibrated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calibratedLocked(m.now())
}

func (m *Machine) calibratedLocked(now time.Time) bool {
	if m.state != StateCalibrating {
		return true
	}
	if now.Sub(m.startedAt) >= m.cfg.Calibration {
		m.state = StateIdle
		return true
	}
	return false
}

// Read samples the sensor and returns the current motion classification.
// Within the debounce window the previous classification is returned without sampling.
func (m *Machine) Read(sample func() (bool, error)) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.readings++
	now := m.now()
	if !m.calibratedLocked(now) {
		return false, ErrCalibrating
	}
	if !m.lastRead.IsZero() && now.Sub(m.lastRead) < m.cfg.Debounce {
		return m.state == StateActive, nil
	}

	motion, err := sample()
	if err != nil {
		return m.state == StateActive, err
	}
	m.lastRead = now

	switch {
	case motion && m.state == StateIdle:
		m.state = StateActive
		m.lastMotion = now
		m.events++
		m.record(entities.MotionEvent{Timestamp: now, Kind: entities.MotionStart, Sequence: int(m.events)})
	case motion:
		m.lastMotion = now
	case m.state == StateActive && now.Sub(m.lastMotion) > m.cfg.Timeout:
		m.state = StateIdle
		ev := entities.MotionEvent{Timestamp: now, Kind: entities.MotionEnd, Sequence: int(m.events)}
		if n := len(m.history); n > 0 && m.history[n-1].Kind == entities.MotionStart {
			d := now.Sub(m.history[n-1].Timestamp)
			ev.Duration = &d
			m.durationSum += d
			m.durations++
		}
		m.record(ev)
	}
	return m.state == StateActive, nil
}

func (m *Machine) record(ev entities.MotionEvent) {
	m.history = append(m.history, ev)
	if over := len(m.history) - m.cfg.History; over > 0 {
		m.history = append(m.history[:0:0], m.history[over:]...)
	}
	select {
	case m.out <- ev:
	default:
		m.dropped++
	}
}

// History returns a copy, oldest first.
func (m *Machine) History() []entities.MotionEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]entities.MotionEvent, len(m.history))
	copy(out, m.history)
	return out
}

type Stats struct {
	TotalReadings   int64         `json:"total_readings"`
	TotalEvents     int64         `json:"total_motion_events"`
	Active          bool          `json:"motion_active"`
	LastMotion      time.Time     `json:"last_motion_time"`
	SinceLastMotion time.Duration `json:"time_since_last_motion"`
	AverageDuration time.Duration `json:"average_motion_duration"`
	LastMinute      int           `json:"motion_events_last_minute"`
	LastHour        int           `json:"motion_events_last_hour"`
	HistorySize     int           `json:"history_size"`
	Calibrated      bool          `json:"calibration_complete"`
	DroppedEvents   int64         `json:"dropped_events"`
}

func (m *Machine) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	s := Stats{
		TotalReadings: m.readings,
		TotalEvents:   m.events,
		Active:        m.state == StateActive,
		LastMotion:    m.lastMotion,
		LastMinute:    m.startsSince(now.Add(-time.Minute)),
		LastHour:      m.startsSince(now.Add(-time.Hour)),
		HistorySize:   len(m.history),
		Calibrated:    m.calibratedLocked(now),
		DroppedEvents: m.dropped,
	}
	if !m.lastMotion.IsZero() {
		s.SinceLastMotion = now.Sub(m.lastMotion)
	}
	if m.durations > 0 {
		s.AverageDuration = m.durationSum / time.Duration(m.durations)
	}
	return s
}

func (m *Machine) startsSince(cutoff time.Time) int {
	n := 0
	for _, ev := range m.history {
		if ev.Kind == entities.MotionStart && !ev.Timestamp.Before(cutoff) {
			n++
		}
	}
	return n
}

// Reset clears counters and history. The current state is kept.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readings = 0
	m.events = 0
	m.dropped = 0
	m.history = nil
	m.durationSum = 0
	m.durations = 0
}
