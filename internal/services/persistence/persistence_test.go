package persistence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sony/gobreaker"

	"github.com/LeonardoBeccarini/sensorbus/internal/model"
	"github.com/LeonardoBeccarini/sensorbus/internal/model/entities"
)

func TestMemoryDeviceStateUpsert(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if _, err := m.GetDeviceState(ctx, "led"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	_ = m.UpsertDeviceState(ctx, model.DeviceState{DeviceName: "led", State: "on"})
	_ = m.UpsertDeviceState(ctx, model.DeviceState{DeviceName: "led", State: "off"})
	_ = m.UpsertDeviceState(ctx, model.DeviceState{DeviceName: "buzzer", State: "beep"})

	list, _ := m.ListDeviceStates(ctx)
	if len(list) != 2 || list[0].DeviceName != "buzzer" || list[1].State != "off" {
		t.Fatalf("states=%+v", list)
	}
}

func TestMemoryAlerts(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return fixed }

	for _, typ := range []string{"HIGH_TEMPERATURE", "LOW_LIGHT", "HIGH_HUMIDITY"} {
		if _, err := m.SaveAlert(ctx, model.Alert{AlertType: typ}); err != nil {
			t.Fatal(err)
		}
	}
	if err := m.ResolveAlert(ctx, 2, "ops"); err != nil {
		t.Fatal(err)
	}
	if err := m.ResolveAlert(ctx, 42, "ops"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	open, _ := m.UnresolvedAlerts(ctx, 10)
	if len(open) != 2 || open[0].AlertType != "HIGH_HUMIDITY" || open[1].ID != 1 {
		t.Fatalf("open=%+v", open)
	}
	limited, _ := m.UnresolvedAlerts(ctx, 1)
	if len(limited) != 1 {
		t.Fatalf("limit ignored: %d", len(limited))
	}
}

func TestReadingPoint(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	p := ReadingPoint(model.Reading{SensorType: "temperature", Value: 21.5, Unit: "°C", DeviceID: "pi-01", Timestamp: at})
	if p.Name() != MeasurementReading || !p.Time().Equal(at) {
		t.Fatalf("name=%s time=%v", p.Name(), p.Time())
	}
	tags := map[string]string{}
	for _, tg := range p.TagList() {
		tags[tg.Key] = tg.Value
	}
	if tags["sensor_type"] != "temperature" || tags["device_id"] != "pi-01" {
		t.Fatalf("tags=%v", tags)
	}
	if _, ok := tags["location"]; ok {
		t.Fatal("empty location must not become a tag")
	}
	if f := p.FieldList(); len(f) != 1 || f[0].Key != "value" || f[0].Value != 21.5 {
		t.Fatalf("fields=%v", f)
	}
}

func TestAlertPointAlwaysHasAField(t *testing.T) {
	p := AlertPoint(model.Alert{AlertType: "MOTION_DETECTED", Severity: entities.SeverityInfo})
	if len(p.FieldList()) != 1 || p.FieldList()[0].Key != "count" {
		t.Fatalf("fields=%v", p.FieldList())
	}
}

type fakeWriteAPI struct {
	mu     sync.Mutex
	points []*write.Point
	errs   chan error
}

func newFakeWriteAPI() *fakeWriteAPI { return &fakeWriteAPI{errs: make(chan error, 1)} }

func (f *fakeWriteAPI) WritePoint(p *write.Point) {
	f.mu.Lock()
	f.points = append(f.points, p)
	f.mu.Unlock()
}
func (f *fakeWriteAPI) Errors() <-chan error { return f.errs }
func (f *fakeWriteAPI) Flush()               {}

func TestWriterTracksErrors(t *testing.T) {
	api := newFakeWriteAPI()
	w := NewWriter(api)
	if w.LastErrorAge() < time.Hour {
		t.Fatal("a fresh writer must look healthy")
	}
	w.WriteReading(model.Reading{SensorType: "light", Value: 300})
	w.WriteSummary(model.ReadingSummary{DeviceID: "pi-01", SensorType: "light", Count: 2})
	if w.Count(MeasurementReading) != 1 || w.Count(MeasurementSummary) != 1 || len(api.points) != 2 {
		t.Fatalf("counts reading=%d summary=%d points=%d", w.Count(MeasurementReading), w.Count(MeasurementSummary), len(api.points))
	}

	api.errs <- errors.New("influx down")
	deadline := time.Now().Add(2 * time.Second)
	for w.LastErrorAge() > time.Minute && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if w.LastErrorAge() > time.Minute {
		t.Fatal("write error not recorded")
	}

	var nilWriter *Writer
	nilWriter.WriteAlert(model.Alert{})
	if nilWriter.Count(MeasurementAlert) != 0 {
		t.Fatal("nil writer must be a no-op")
	}
}

type failingStore struct {
	*Memory
	calls int
	err   error
}

func (f *failingStore) SaveReading(context.Context, model.Reading) error {
	f.calls++
	return f.err
}

func TestGuardedOpensAfterConsecutiveFailures(t *testing.T) {
	ctx := context.Background()
	fs := &failingStore{Memory: NewMemory(), err: errors.New("connection refused")}
	g := NewGuarded(fs, nil, BreakerSettings{Failures: 3, OpenFor: time.Hour})

	for i := 0; i < 3; i++ {
		if err := g.SaveReading(ctx, model.Reading{}); err == nil {
			t.Fatal("expected store error")
		}
	}
	if g.BreakerState() != gobreaker.StateOpen {
		t.Fatalf("state=%v", g.BreakerState())
	}
	if err := g.SaveReading(ctx, model.Reading{}); !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected fail-fast, got %v", err)
	}
	if fs.calls != 3 {
		t.Fatalf("store called %d times while open", fs.calls)
	}
}

func TestGuardedNotFoundKeepsBreakerClosed(t *testing.T) {
	ctx := context.Background()
	api := newFakeWriteAPI()
	g := NewGuarded(NewMemory(), NewWriter(api), BreakerSettings{Failures: 1, OpenFor: time.Hour})

	if _, err := g.GetDeviceState(ctx, "led"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v", err)
	}
	if g.BreakerState() != gobreaker.StateClosed {
		t.Fatal("not found must not trip the breaker")
	}
	id, err := g.SaveAlert(ctx, model.Alert{AlertType: "HIGH_TEMPERATURE"})
	if err != nil || id != 1 {
		t.Fatalf("id=%d err=%v", id, err)
	}
	if g.Mirror().Count(MeasurementAlert) != 1 {
		t.Fatal("alert not mirrored")
	}
}
