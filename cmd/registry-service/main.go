// Package main runs the tile registry HTTP service (C1).
package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/nucleus/tileindex/internal/config"
	"github.com/nucleus/tileindex/internal/registry"
)

func main() {
	config.LoadDotEnv()
	cfg := config.LoadRegistry()

	store, err := registry.NewPostgresStore(cfg.DatabaseURL, cfg.MigrationsPath)
	if err != nil {
		log.Fatalf("registry-service: open store: %v", err)
	}
	defer store.Close()

	logger := log.Default()
	srv := registry.NewServer(store, logger)
	httpSrv := &http.Server{Addr: ":" + cfg.Port, Handler: srv}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("registry-service: listening on :%s", cfg.Port)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("registry-service: listen: %v", err)
		}
	}()

	<-ctx.Done()
	log.Print("registry-service: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("registry-service: shutdown: %v", err)
	}
}
