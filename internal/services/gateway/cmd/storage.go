package main

import (
	"context"
	"log"
	"strings"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"

	"github.com/LeonardoBeccarini/sensorbus/internal/config"
	"github.com/LeonardoBeccarini/sensorbus/internal/services/persistence"
)

// openStore connects to Postgres when a DSN is configured and falls back to memory otherwise.
func openStore(ctx context.Context, dsn string) (persistence.Store, func()) {
	if strings.TrimSpace(dsn) == "" {
		log.Printf("hub: postgres.dsn not set, keeping state in memory")
		return persistence.NewMemory(), func() {}
	}
	pg, err := persistence.OpenPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("hub: %v", err)
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		log.Fatalf("hub: %v", err)
	}
	log.Printf("hub: postgres ready")
	return pg, func() { _ = pg.Close() }
}

// openInflux returns a nil writer when no URL is configured; every Writer method tolerates nil.
func openInflux(cfg config.Influx) (*persistence.Writer, func()) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, func() {}
	}
	opts := influxdb2.DefaultOptions()
	if cfg.BatchSize > 0 {
		opts.SetBatchSize(uint(cfg.BatchSize))
	}
	if cfg.FlushInterval > 0 {
		opts.SetFlushInterval(uint(cfg.FlushInterval.Milliseconds()))
	}
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)
	w := persistence.NewWriter(client.WriteAPI(cfg.Org, cfg.Bucket))
	log.Printf("hub: mirroring to influx %s (org=%s bucket=%s)", cfg.URL, cfg.Org, cfg.Bucket)
	return w, func() {
		w.Flush()
		client.Close()
	}
}
