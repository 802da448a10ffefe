package persistence

import (
	"log"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/LeonardoBeccarini/sensorbus/internal/model"
)

const (
	MeasurementReading = "sensor_reading"
	MeasurementAlert   = "alert"
	MeasurementSummary = "reading_summary"
)

// ReadingPoint normalizes a Reading into an Influx point.
func ReadingPoint(r model.Reading) *write.Point {
	tags := map[string]string{"sensor_type": r.SensorType}
	if r.DeviceID != "" {
		tags["device_id"] = r.DeviceID
	}
	if r.Location != "" {
		tags["location"] = r.Location
	}
	if r.Unit != "" {
		tags["unit"] = r.Unit
	}
	return influxdb2.NewPoint(MeasurementReading, tags, map[string]interface{}{"value": r.Value}, r.Timestamp)
}

func AlertPoint(a model.Alert) *write.Point {
	tags := map[string]string{
		"alert_type": a.AlertType,
		"severity":   string(a.Severity),
	}
	if a.DeviceID != "" {
		tags["device_id"] = a.DeviceID
	}
	if a.SensorType != "" {
		tags["sensor_type"] = a.SensorType
	}
	// at least one field, so alerts without a value are still counted
	fields := map[string]interface{}{"count": int64(1)}
	if a.Value != nil {
		fields["value"] = *a.Value
	}
	if a.Threshold != nil {
		fields["threshold"] = *a.Threshold
	}
	return influxdb2.NewPoint(MeasurementAlert, tags, fields, a.Timestamp)
}

func SummaryPoint(s model.ReadingSummary) *write.Point {
	return influxdb2.NewPoint(MeasurementSummary,
		map[string]string{"device_id": s.DeviceID, "sensor_type": s.SensorType},
		map[string]interface{}{
			"mean":  s.Mean,
			"min":   s.Min,
			"max":   s.Max,
			"count": int64(s.Count),
		}, s.End)
}

// pointWriter is the subset of api.WriteAPI the writer needs.
type pointWriter interface {
	WritePoint(point *write.Point)
	Errors() <-chan error
	Flush()
}

// Writer wraps the non-blocking WriteAPI and remembers the last async write error for /readyz.
type Writer struct {
	api     pointWriter
	mu      sync.RWMutex
	lastErr time.Time
	counts  map[string]int64
}

func NewWriter(w pointWriter) *Writer {
	ww := &Writer{
		api:     w,
		lastErr: time.Now().Add(-24 * time.Hour),
		counts:  make(map[string]int64),
	}
	go func() {
		for err := range w.Errors() {
			if err != nil {
				ww.mu.Lock()
				ww.lastErr = time.Now()
				ww.mu.Unlock()
				log.Printf("influx write error: %v", err)
			}
		}
	}()
	return ww
}

func (w *Writer) write(measurement string, p *write.Point) {
	if w == nil {
		return
	}
	w.api.WritePoint(p)
	w.mu.Lock()
	w.counts[measurement]++
	w.mu.Unlock()
}

func (w *Writer) WriteReading(r model.Reading) { w.write(MeasurementReading, ReadingPoint(r)) }

func (w *Writer) WriteAlert(a model.Alert) { w.write(MeasurementAlert, AlertPoint(a)) }

func (w *Writer) WriteSummary(s model.ReadingSummary) { w.write(MeasurementSummary, SummaryPoint(s)) }

// LastErrorAge is the time since the last write error. A nil writer is never failing.
func (w *Writer) LastErrorAge() time.Duration {
	if w == nil {
		return 99999 * time.Hour
	}
	w.mu.RLock()
	t := w.lastErr
	w.mu.RUnlock()
	return time.Since(t)
}

// Count returns how many points of a measurement were handed to the WriteAPI.
func (w *Writer) Count(measurement string) int64 {
	if w == nil {
		return 0
	}
	w.mu.RLock()
	c := w.counts[measurement]
	w.mu.RUnlock()
	return c
}

func (w *Writer) Flush() {
	if w != nil {
		w.api.Flush()
	}
}
