// Package main runs the scheduler publisher loop (C4).
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/nucleus/tileindex/internal/bus"
	"github.com/nucleus/tileindex/internal/config"
	"github.com/nucleus/tileindex/internal/registry"
	"github.com/nucleus/tileindex/internal/scheduler"
)

func main() {
	config.LoadDotEnv()
	cfg := config.LoadScheduler()

	store := registry.NewHTTPClient(cfg.RegistryURL)
	defer store.Close()

	b, err := bus.NewNATSBus(cfg.BusURL, bus.Options{})
	if err != nil {
		log.Fatalf("scheduler: connect to bus: %v", err)
	}
	defer b.Close()

	router, err := loadRouter(cfg)
	if err != nil {
		log.Fatalf("scheduler: load routing table: %v", err)
	}

	sched := scheduler.New(store, b, scheduler.Config{
		Interval:    cfg.Interval,
		BatchSize:   cfg.BatchSize,
		ReadyStatus: registry.Status(cfg.ReadyStatus),
		Router:      router,
	}, log.Default())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("scheduler: running, interval=%s batch_size=%d", cfg.Interval, cfg.BatchSize)
	sched.Run(ctx)
	log.Print("scheduler: stopped")
}

// loadRouter prefers the YAML routing file when set (§4.4: "the YAML
// file, when set, takes precedence over the flat string").
func loadRouter(cfg *config.Scheduler) (*scheduler.Router, error) {
	if cfg.RoutingFile != "" {
		return scheduler.LoadRoutingFile(cfg.RoutingFile)
	}
	return scheduler.ParseRoutingTable(cfg.QueueRouting), nil
}
