package app

import (
	"context"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/LeonardoBeccarini/sensorbus/pkg/mqttbus"
)

// ServiceName is the gRPC health service name of the hub. The empty name reports the same status.
const ServiceName = "sensorbus.Hub"

type breakerStater interface {
	BreakerState() gobreaker.State
}

func (g *Gateway) check(ctx context.Context) healthStatus {
	st := healthStatus{
		BusConnected:    g.bus != nil && g.bus.IsConnected(),
		LastWriteErrorS: g.writer.LastErrorAge().Seconds(),
	}
	if g.store != nil {
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		st.StoreOK = g.store.Ping(pctx) == nil
		cancel()
	}
	if b, ok := g.store.(breakerStater); ok {
		st.Breaker = b.BreakerState().String()
	}
	writesOK := g.writer.LastErrorAge() > g.cfg.MinWriteErrorAge
	switch {
	case st.BusConnected && st.StoreOK && writesOK:
		st.Status = "ok"
	case st.BusConnected || st.StoreOK:
		st.Status = "degraded"
	default:
		st.Status = "down"
	}
	return st
}

// HandleHealth always answers 200 and reports ok, degraded or down.
func (g *Gateway) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, g.check(r.Context()))
}

// HandleReady answers 200 only when every dependency is ok.
func (g *Gateway) HandleReady(w http.ResponseWriter, r *http.Request) {
	st := g.check(r.Context())
	ready := st.Status == "ok"
	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]bool{"ready": ready})
}

// HealthService mirrors the bus connection state onto the gRPC health protocol.
type HealthService struct {
	srv *health.Server
}

// NewHealthService starts NOT_SERVING until the bus reports a connection.
func NewHealthService() *HealthService {
	h := &HealthService{srv: health.NewServer()}
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

func (h *HealthService) Server() *health.Server { return h.srv }

// OnBusState is meant to be passed to mqttbus.WithStateListener.
func (h *HealthService) OnBusState(s mqttbus.State) {
	switch s {
	case mqttbus.StateConnected, mqttbus.StateReconnected:
		h.set(healthpb.HealthCheckResponse_SERVING)
	default:
		h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	}
}

func (h *HealthService) set(status healthpb.HealthCheckResponse_ServingStatus) {
	h.srv.SetServingStatus("", status)
	h.srv.SetServingStatus(ServiceName, status)
}

// Shutdown reports NOT_SERVING and ignores later state changes.
func (h *HealthService) Shutdown() { h.srv.Shutdown() }
