package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/LeonardoBeccarini/sensorbus/internal/config"
	"github.com/LeonardoBeccarini/sensorbus/internal/observability/metrics"
	"github.com/LeonardoBeccarini/sensorbus/internal/services/aggregator"
	"github.com/LeonardoBeccarini/sensorbus/internal/services/alert"
	"github.com/LeonardoBeccarini/sensorbus/internal/services/control"
	"github.com/LeonardoBeccarini/sensorbus/internal/services/gateway/app"
	"github.com/LeonardoBeccarini/sensorbus/internal/services/persistence"
	"github.com/LeonardoBeccarini/sensorbus/internal/services/router"
	"github.com/LeonardoBeccarini/sensorbus/pkg/dedup"
	"github.com/LeonardoBeccarini/sensorbus/pkg/mqttbus"
)

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		log.Fatalf("hub: %v", err)
	}
	metrics.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// === Storage ===
	base, closeStore := openStore(ctx, cfg.Postgres.DSN)
	defer closeStore()
	writer, closeInflux := openInflux(cfg.Influx)
	defer closeInflux()
	store := persistence.NewGuarded(base, writer, persistence.DefaultBreakerSettings())

	thresholds, err := alert.LoadThresholds(cfg.Hub.ThresholdsFile)
	if err != nil {
		log.Fatalf("hub: %v", err)
	}

	// === Bus ===
	hs := app.NewHealthService()
	bus, err := mqttbus.Dial(ctx, cfg.MQTT, mqttbus.WithStateListener(func(s mqttbus.State) {
		log.Printf("hub: bus %s", s)
		metrics.SetBusConnected(s != mqttbus.StateDisconnected)
		hs.OnBusState(s)
	}))
	if err != nil {
		log.Fatalf("hub: bus connection error: %v", err)
	}
	defer bus.Close()

	// === Pipeline ===
	engine := alert.NewEngine(thresholds, store, bus, alert.Options{
		Channel: cfg.Channel.Alert,
		Source:  cfg.Hub.ID,
		Publish: cfg.Hub.PublishAlerts,
	})
	syncer := control.New(store, bus, control.Options{Channel: cfg.Channel.Control, Origin: cfg.Hub.ID})
	agg := aggregator.New(writer, cfg.Hub.AggregateInterval)
	aggDone := make(chan struct{})
	go func() {
		agg.Start(ctx)
		close(aggDone)
	}()

	rtr, err := router.New(cfg.Channel, router.Deps{
		Store:      store,
		Alerts:     engine,
		Control:    syncer,
		Aggregator: agg,
		Deduper:    dedup.New(cfg.Hub.DedupTTL, cfg.Hub.DedupMax),
		HubID:      cfg.Hub.ID,
	})
	if err != nil {
		log.Fatalf("hub: %v", err)
	}
	if err := rtr.Bind(ctx, bus); err != nil {
		log.Fatalf("hub: %v", err)
	}

	// === HTTP ===
	gw := app.NewGateway(app.Config{}, bus, syncer, store, writer)
	httpSrv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Hub.HTTPPort),
		Handler:           gw.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("hub: http listening on %s", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("hub: http serve error: %v", err)
		}
	}()

	// === gRPC health ===
	grpcAddr := ":" + strconv.Itoa(cfg.Hub.GRPCPort)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		log.Fatalf("hub: listen %s: %v", grpcAddr, err)
	}
	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs.Server())
	go func() {
		log.Printf("hub: grpc health on %s", grpcAddr)
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatalf("hub: grpc serve error: %v", err)
		}
	}()

	log.Printf("hub: %s routing %v", cfg.Hub.ID, cfg.Channel.Channels())

	// ---- graceful shutdown ----
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Printf("hub: shutting down")

	hs.Shutdown()
	cancel()
	<-aggDone

	shCtx, shCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shCancel()
	_ = httpSrv.Shutdown(shCtx)
	grpcServer.GracefulStop()

	st := rtr.Stats()
	log.Printf("hub: handled %d messages (%d duplicates, %d rejected), %d readings, %d alerts, %d commands",
		st.Messages, st.Duplicates, st.Rejected, st.Readings, st.Alerts, st.Commands)
}
