package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LeonardoBeccarini/sensorbus/internal/services/persistence"
)

// Creates the hub tables and prints a short summary of what is stored.
func main() {
	dsn := flag.String("dsn", os.Getenv("POSTGRES_DSN"), "postgres connection string")
	timeout := flag.Duration("timeout", 30*time.Second, "overall timeout")
	flag.Parse()
	if *dsn == "" {
		log.Fatalf("persistence: -dsn or POSTGRES_DSN is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	pg, err := persistence.OpenPostgres(ctx, *dsn)
	if err != nil {
		log.Fatalf("persistence: %v", err)
	}
	defer pg.Close()

	if err := pg.EnsureSchema(ctx); err != nil {
		log.Fatalf("persistence: %v", err)
	}
	log.Printf("persistence: schema ready")

	states, err := pg.ListDeviceStates(ctx)
	if err != nil {
		log.Fatalf("persistence: %v", err)
	}
	for _, s := range states {
		log.Printf("persistence: device %s is %s (by %s at %s)", s.DeviceName, s.State, s.UpdatedBy, s.LastUpdated.Format(time.RFC3339))
	}
	alerts, err := pg.UnresolvedAlerts(ctx, 1000)
	if err != nil {
		log.Fatalf("persistence: %v", err)
	}
	log.Printf("persistence: %d devices, %d unresolved alerts", len(states), len(alerts))
}
