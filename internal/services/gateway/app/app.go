package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/LeonardoBeccarini/sensorbus/internal/model"
	"github.com/LeonardoBeccarini/sensorbus/internal/model/messages"
	"github.com/LeonardoBeccarini/sensorbus/internal/services/control"
	"github.com/LeonardoBeccarini/sensorbus/internal/services/persistence"
)

type Config struct {
	RequestTimeout time.Duration
	// readiness fails while the last time-series write error is younger than this
	MinWriteErrorAge time.Duration
}

type BusState interface {
	IsConnected() bool
}

type Controller interface {
	Execute(ctx context.Context, cmd messages.ControlCommand, changedBy string) control.Result
	Status(ctx context.Context) ([]model.DeviceState, error)
}

type AlertStore interface {
	UnresolvedAlerts(ctx context.Context, limit int) ([]model.Alert, error)
	ResolveAlert(ctx context.Context, id int64, resolvedBy string) error
	Ping(ctx context.Context) error
}

// Gateway is the hub's HTTP surface.
type Gateway struct {
	cfg     Config
	bus     BusState
	control Controller
	store   AlertStore
	writer  *persistence.Writer
}

func NewGateway(cfg Config, bus BusState, ctl Controller, store AlertStore, writer *persistence.Writer) *Gateway {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	if cfg.MinWriteErrorAge <= 0 {
		cfg.MinWriteErrorAge = 30 * time.Second
	}
	return &Gateway{cfg: cfg, bus: bus, control: ctl, store: store, writer: writer}
}

func (g *Gateway) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", g.HandleHealth)
	r.Get("/readyz", g.HandleReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/control/{device}", g.HandleControl)
		r.Get("/devices", g.HandleDevices)
		r.Get("/alerts", g.HandleAlerts)
		r.Post("/alerts/{id}/resolve", g.HandleResolve)
	})
	return r
}
