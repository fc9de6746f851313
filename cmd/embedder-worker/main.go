// Package main runs the embedder worker consumer loop (C5).
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/nucleus/tileindex/internal/bus"
	"github.com/nucleus/tileindex/internal/config"
	"github.com/nucleus/tileindex/internal/embedder"
	"github.com/nucleus/tileindex/internal/embedding"
	"github.com/nucleus/tileindex/internal/registry"
	"github.com/nucleus/tileindex/internal/vectorstore"
)

func main() {
	config.LoadDotEnv()
	cfg := config.LoadWorker()

	reg := registry.NewHTTPClient(cfg.RegistryURL)
	defer reg.Close()
	vec := vectorstore.NewHTTPClient(cfg.VectorURL)
	defer vec.Close()

	b, err := bus.NewNATSBus(cfg.BusURL, bus.Options{FetchBatch: cfg.PrefetchCount, ConsumeStyle: cfg.ConsumeStyle})
	if err != nil {
		log.Fatalf("embedder-worker: connect to bus: %v", err)
	}
	defer b.Close()

	provider := embedding.Select(embedding.Config{
		Provider: cfg.EmbeddingProvider,
		Dim:      cfg.EmbedDim,
	})

	w := embedder.New(reg, vec, b, provider, nil, embedder.Config{
		ConsumeQueues:         cfg.ConsumeQueues,
		DecodeWorkers:         cfg.DecodeWorkers,
		BatchSize:             cfg.BatchSize,
		FlushInterval:         cfg.FlushInterval,
		JobTimeout:            cfg.JobTimeout,
		ShutdownTimeout:       cfg.ShutdownTimeout,
		RequireIndexBeforeAck: cfg.RequireIndexBeforeAck,
		EmbedDim:              cfg.EmbedDim,
	}, log.Default())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("embedder-worker: running, queues=%s decode_workers=%d batch_size=%d provider=%s",
		cfg.ConsumeQueues, cfg.DecodeWorkers, cfg.BatchSize, provider.ModelName())
	if err := w.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("embedder-worker: run: %v", err)
	}
	log.Print("embedder-worker: stopped")
}
