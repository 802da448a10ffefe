package aggregator

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/LeonardoBeccarini/sensorbus/internal/model"
	"github.com/LeonardoBeccarini/sensorbus/internal/observability/metrics"
)

// Sink receives one summary per (device, sensor type) and cycle.
type Sink interface {
	WriteSummary(s model.ReadingSummary)
}

type key struct {
	deviceID   string
	sensorType string
}

type window struct {
	sum, min, max float64
	count         int
	start, end    time.Time
}

// Aggregator buffers readings and emits mean/min/max/count on a ticker.
type Aggregator struct {
	sink     Sink
	interval time.Duration

	mu     sync.Mutex
	buffer map[key]*window
}

func New(sink Sink, interval time.Duration) *Aggregator {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Aggregator{sink: sink, interval: interval, buffer: make(map[key]*window)}
}

// Add buffers one reading until the next cycle.
func (a *Aggregator) Add(r model.Reading) {
	k := key{deviceID: r.DeviceID, sensorType: r.SensorType}
	a.mu.Lock()
	defer a.mu.Unlock()
	w, ok := a.buffer[k]
	if !ok {
		a.buffer[k] = &window{sum: r.Value, min: r.Value, max: r.Value, count: 1, start: r.Timestamp, end: r.Timestamp}
		return
	}
	w.sum += r.Value
	w.count++
	if r.Value < w.min {
		w.min = r.Value
	}
	if r.Value > w.max {
		w.max = r.Value
	}
	if r.Timestamp.Before(w.start) {
		w.start = r.Timestamp
	}
	if r.Timestamp.After(w.end) {
		w.end = r.Timestamp
	}
}

// Start runs aggregation cycles until ctx ends, then flushes what is left.
func (a *Aggregator) Start(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			a.Flush()
			return
		case <-ticker.C:
			a.Flush()
		}
	}
}

// Flush emits and clears the current windows, sorted by device then sensor type.
func (a *Aggregator) Flush() []model.ReadingSummary {
	a.mu.Lock()
	buf := a.buffer
	a.buffer = make(map[key]*window, len(buf))
	a.mu.Unlock()

	out := make([]model.ReadingSummary, 0, len(buf))
	for k, w := range buf {
		out = append(out, model.ReadingSummary{
			DeviceID:   k.deviceID,
			SensorType: k.sensorType,
			Mean:       w.sum / float64(w.count),
			Min:        w.min,
			Max:        w.max,
			Count:      w.count,
			Start:      w.start,
			End:        w.end,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DeviceID != out[j].DeviceID {
			return out[i].DeviceID < out[j].DeviceID
		}
		return out[i].SensorType < out[j].SensorType
	})

	for _, s := range out {
		metrics.SetReadingSummary(s.DeviceID, s.SensorType, "mean", s.Mean)
		metrics.SetReadingSummary(s.DeviceID, s.SensorType, "min", s.Min)
		metrics.SetReadingSummary(s.DeviceID, s.SensorType, "max", s.Max)
		if a.sink != nil {
			a.sink.WriteSummary(s)
		}
	}
	if len(out) > 0 {
		log.Printf("aggregator: emitted %d summaries", len(out))
	}
	return out
}
