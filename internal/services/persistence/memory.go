package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/LeonardoBeccarini/sensorbus/internal/model"
)

const memoryMaxReadings = 10000

// Memory keeps everything in process. Used by tests and when no DSN is configured.
type Memory struct {
	mu       sync.RWMutex
	readings []model.Reading
	alerts   []model.Alert
	states   map[string]model.DeviceState
	history  []model.DeviceHistory
	nextID   int64
	now      func() time.Time
}

func NewMemory() *Memory {
	return &Memory{states: make(map[string]model.DeviceState), now: time.Now}
}

func (m *Memory) SaveReading(_ context.Context, r model.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readings = append(m.readings, r)
	if over := len(m.readings) - memoryMaxReadings; over > 0 {
		m.readings = append(m.readings[:0], m.readings[over:]...)
	}
	return nil
}

func (m *Memory) SaveAlert(_ context.Context, a model.Alert) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	a.ID = m.nextID
	m.alerts = append(m.alerts, a)
	return a.ID, nil
}

func (m *Memory) UpsertDeviceState(_ context.Context, s model.DeviceState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[s.DeviceName] = s
	return nil
}

func (m *Memory) AppendDeviceHistory(_ context.Context, h model.DeviceHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, h)
	return nil
}

func (m *Memory) GetDeviceState(_ context.Context, deviceName string) (model.DeviceState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.states[deviceName]
	if !ok {
		return model.DeviceState{}, ErrNotFound
	}
	return s, nil
}

func (m *Memory) ListDeviceStates(_ context.Context) ([]model.DeviceState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.DeviceState, 0, len(m.states))
	for _, s := range m.states {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceName < out[j].DeviceName })
	return out, nil
}

func (m *Memory) UnresolvedAlerts(_ context.Context, limit int) ([]model.Alert, error) {
	limit = alertLimit(limit)
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []model.Alert{}
	for i := len(m.alerts) - 1; i >= 0 && len(out) < limit; i-- {
		if !m.alerts[i].Resolved {
			out = append(out, m.alerts[i])
		}
	}
	return out, nil
}

func (m *Memory) ResolveAlert(_ context.Context, id int64, resolvedBy string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.alerts {
		if m.alerts[i].ID != id {
			continue
		}
		at := m.now().UTC()
		m.alerts[i].Resolved = true
		m.alerts[i].ResolvedBy = resolvedBy
		m.alerts[i].ResolvedAt = &at
		return nil
	}
	return ErrNotFound
}

func (m *Memory) Ping(context.Context) error { return nil }

// Readings returns a copy of the stored readings.
func (m *Memory) Readings() []model.Reading {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.Reading(nil), m.readings...)
}

// History returns a copy of the device history.
func (m *Memory) History() []model.DeviceHistory {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.DeviceHistory(nil), m.history...)
}
