package aggregator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/LeonardoBeccarini/sensorbus/internal/model"
)

type sinkRecorder struct {
	mu  sync.Mutex
	got []model.ReadingSummary
}

func (s *sinkRecorder) WriteSummary(sum model.ReadingSummary) {
	s.mu.Lock()
	s.got = append(s.got, sum)
	s.mu.Unlock()
}

func (s *sinkRecorder) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

func TestFlushSummarizesPerDeviceAndType(t *testing.T) {
	sink := &sinkRecorder{}
	a := New(sink, time.Minute)
	t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for i, v := range []float64{20, 22, 24} {
		a.Add(model.Reading{DeviceID: "pi-01", SensorType: "temperature", Value: v, Timestamp: t0.Add(time.Duration(i) * time.Second)})
	}
	a.Add(model.Reading{DeviceID: "pi-01", SensorType: "humidity", Value: 50, Timestamp: t0})

	out := a.Flush()
	if len(out) != 2 || out[0].SensorType != "humidity" {
		t.Fatalf("out=%+v", out)
	}
	temp := out[1]
	if temp.Mean != 22 || temp.Min != 20 || temp.Max != 24 || temp.Count != 3 {
		t.Fatalf("temp=%+v", temp)
	}
	if !temp.Start.Equal(t0) || !temp.End.Equal(t0.Add(2*time.Second)) {
		t.Fatalf("window=%v..%v", temp.Start, temp.End)
	}
	if sink.len() != 2 {
		t.Fatalf("sink got %d", sink.len())
	}
	if again := a.Flush(); len(again) != 0 {
		t.Fatal("flush must clear the buffer")
	}
}

func TestStartFlushesOnStop(t *testing.T) {
	sink := &sinkRecorder{}
	a := New(sink, time.Hour)
	a.Add(model.Reading{DeviceID: "pi-01", SensorType: "light", Value: 300})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Start(ctx)
		close(done)
	}()
	cancel()
	<-done
	if sink.len() != 1 {
		t.Fatalf("sink got %d", sink.len())
	}
}
