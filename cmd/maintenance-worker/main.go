// Package main runs the TTL sweep + optimize Temporal worker (C9).
package main

import (
	"context"
	"log"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/nucleus/tileindex/internal/config"
	"github.com/nucleus/tileindex/internal/maintenance"
	"github.com/nucleus/tileindex/internal/registry"
	"github.com/nucleus/tileindex/internal/vectorstore"
)

func main() {
	config.LoadDotEnv()
	cfg := config.LoadMaintenance()

	reg := registry.NewHTTPClient(cfg.RegistryURL)
	defer reg.Close()
	vec := vectorstore.NewHTTPClient(cfg.VectorURL)
	defer vec.Close()

	c, err := client.Dial(client.Options{HostPort: cfg.TemporalAddr, Namespace: cfg.TemporalNS})
	if err != nil {
		log.Fatalf("maintenance-worker: connect to temporal: %v", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.TaskQueue, worker.Options{})

	acts := maintenance.NewActivities(reg, vec)
	w.RegisterActivity(acts.ListExpiredTiles)
	w.RegisterActivity(acts.DeleteVectorRows)
	w.RegisterActivity(acts.DeleteRegistryRows)
	w.RegisterActivity(acts.OptimizeTable)
	w.RegisterActivity(acts.ListTables)

	w.RegisterWorkflow(maintenance.TTLSweepWorkflowFunc)
	w.RegisterWorkflow(maintenance.OptimizeWorkflowFunc)

	log.Printf("maintenance-worker: address=%s namespace=%s queue=%s ttl=%s sweep_every=%s",
		cfg.TemporalAddr, cfg.TemporalNS, cfg.TaskQueue, cfg.TTL, cfg.SweepEvery)

	startSweepWorkflow(c, cfg)
	startOptimizeWorkflow(c, cfg)

	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("maintenance-worker: worker failed: %v", err)
	}
}

// startSweepWorkflow kicks off the long-running TTL sweep with a fixed
// workflow id, so redeploying this process does not spawn a second
// concurrent sweep: Temporal rejects the duplicate start and the
// existing run (or its continue-as-new descendant) keeps going.
func startSweepWorkflow(c client.Client, cfg *config.Maintenance) {
	ctx := context.Background()
	_, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        "tileindex-ttl-sweep",
		TaskQueue: cfg.TaskQueue,
	}, maintenance.TTLSweepWorkflowFunc, maintenance.TTLSweepInput{
		TTLSeconds:    int64(cfg.TTL.Seconds()),
		BatchSize:     500,
		SweepInterval: cfg.SweepEvery,
		NowEpoch:      time.Now().Unix(),
	})
	if err != nil {
		log.Printf("maintenance-worker: start ttl sweep workflow: %v (likely already running)", err)
	}
}

func startOptimizeWorkflow(c client.Client, cfg *config.Maintenance) {
	ctx := context.Background()
	_, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        "tileindex-vector-optimize",
		TaskQueue: cfg.TaskQueue,
	}, maintenance.OptimizeWorkflowFunc, maintenance.OptimizeInput{
		Interval: cfg.SweepEvery,
	})
	if err != nil {
		log.Printf("maintenance-worker: start optimize workflow: %v (likely already running)", err)
	}
}
