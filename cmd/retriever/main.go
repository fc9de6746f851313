// Package main runs the retriever HTTP service (C6).
package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/nucleus/tileindex/internal/config"
	"github.com/nucleus/tileindex/internal/embedding"
	"github.com/nucleus/tileindex/internal/retriever"
	"github.com/nucleus/tileindex/internal/vectorstore"
)

func main() {
	config.LoadDotEnv()
	cfg := config.LoadRetriever()

	vec := vectorstore.NewHTTPClient(cfg.VectorURL)
	defer vec.Close()

	provider := embedding.Select(embedding.Config{
		Provider: cfg.EmbeddingProvider,
		Dim:      cfg.EmbedDim,
	})

	svc := retriever.New(vec, provider)
	srv := retriever.NewServer(svc, log.Default())
	httpSrv := &http.Server{Addr: ":" + cfg.Port, Handler: srv}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("retriever: listening on :%s", cfg.Port)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("retriever: listen: %v", err)
		}
	}()

	<-ctx.Done()
	log.Print("retriever: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("retriever: shutdown: %v", err)
	}
}
