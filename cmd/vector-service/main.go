// Package main runs the vector index HTTP service (C3).
package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/nucleus/tileindex/internal/config"
	"github.com/nucleus/tileindex/internal/vectorstore"
)

func main() {
	config.LoadDotEnv()
	cfg := config.LoadVector()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	adapter, err := vectorstore.NewPgVectorAdapter(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("vector-service: open adapter: %v", err)
	}
	defer adapter.Close()

	logger := log.Default()
	srv := vectorstore.NewServer(adapter, logger)
	httpSrv := &http.Server{Addr: ":" + cfg.Port, Handler: srv}

	go func() {
		log.Printf("vector-service: listening on :%s", cfg.Port)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("vector-service: listen: %v", err)
		}
	}()

	<-ctx.Done()
	log.Print("vector-service: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("vector-service: shutdown: %v", err)
	}
}
