package embedder

import (
	"context"
	"encoding/json"
	"log"
	"testing"
	"time"

	"github.com/nucleus/tileindex/internal/bus"
	"github.com/nucleus/tileindex/internal/embedding"
	"github.com/nucleus/tileindex/internal/registry"
	"github.com/nucleus/tileindex/internal/vectorstore"
)

func testLogger() *log.Logger {
	return log.New(testWriter{}, "embedder-test: ", 0)
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

func publish(t *testing.T, b bus.Bus, queue string, msg Message) {
	t.Helper()
	payload, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal message: %v", err)
	}
	if err := b.Publish(context.Background(), queue, payload); err != nil {
		t.Fatalf("publish: %v", err)
	}
}

func newHarness(t *testing.T) (*registry.MemoryStore, *vectorstore.MemoryAdapter, *bus.MemoryBus) {
	t.Helper()
	return registry.NewMemoryStore(), vectorstore.NewMemoryAdapter(), bus.NewMemoryBus()
}

func TestWorkerHappyPath(t *testing.T) {
	reg, vec, b := newHarness(t)
	ctx := context.Background()

	tile := registry.Tile{TileID: "orthophoto:0/0/0", ImageID: 1, ImagePath: "/x.png", TileStore: "synthetic", Status: registry.StatusInProcess}
	if err := reg.UpsertTiles(ctx, []registry.Tile{tile}); err != nil {
		t.Fatalf("seed tile: %v", err)
	}

	publish(t, b, "tiles.to_index.pe_core", Message{
		ImageID: 1, TileID: tile.TileID, TileStore: "synthetic", Width: 512, Height: 512, EmbedderModel: "pe_core",
	})

	w := New(reg, vec, b, &embedding.LocalProvider{Dim: 16}, nil, Config{
		ConsumeQueues: "tiles.to_index.pe_core", DecodeWorkers: 2, BatchSize: 4, FlushInterval: 50 * time.Millisecond,
		JobTimeout: time.Second, EmbedDim: 16,
	}, testLogger())

	runCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(runCtx) }()

	waitForStatus(t, reg, tile.TileID, registry.StatusIndexed)
	cancel()
	<-done

	results, err := vec.VectorSearch(ctx, TableName("pe_core", "pe_core"), make([]float32, 16), vectorstore.SearchOptions{K: 10})
	if err != nil {
		t.Fatalf("VectorSearch: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	var normSq float64
	for _, v := range results[0].Embedding {
		normSq += float64(v) * float64(v)
	}
	if normSq < 0.999 || normSq > 1.001 {
		t.Fatalf("embedding norm^2 = %f, want ~1", normSq)
	}
}

func TestWorkerDuplicateDeliveryUpsertsOnce(t *testing.T) {
	reg, vec, b := newHarness(t)
	ctx := context.Background()

	tile := registry.Tile{TileID: "orthophoto:1/2/3", ImageID: 7, ImagePath: "/x.png", TileStore: "synthetic", Status: registry.StatusInProcess}
	_ = reg.UpsertTiles(ctx, []registry.Tile{tile})

	msg := Message{ImageID: 7, TileID: tile.TileID, TileStore: "synthetic", Width: 256, Height: 256, EmbedderModel: "pe_core"}
	publish(t, b, "q", msg)
	publish(t, b, "q", msg)

	w := New(reg, vec, b, &embedding.LocalProvider{Dim: 8}, nil, Config{
		ConsumeQueues: "q", DecodeWorkers: 2, BatchSize: 8, FlushInterval: 30 * time.Millisecond,
		JobTimeout: time.Second, EmbedDim: 8,
	}, testLogger())

	runCtx, cancel := context.WithTimeout(ctx, 400*time.Millisecond)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(runCtx) }()

	waitForStatus(t, reg, tile.TileID, registry.StatusIndexed)
	cancel()
	<-done

	results, err := vec.VectorSearch(ctx, TableName("pe_core", "pe_core"), make([]float32, 8), vectorstore.SearchOptions{
		K: 10, Where: "image_id IN (7)",
	})
	if err != nil {
		t.Fatalf("VectorSearch: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("duplicate delivery produced %d rows, want 1", len(results))
	}
}

func TestWorkerPoisonPayloadMarksFailedAndAcks(t *testing.T) {
	reg, vec, b := newHarness(t)
	ctx := context.Background()

	tile := registry.Tile{TileID: "coco:9/9/9", ImageID: 9, ImagePath: "/x.png", Status: registry.StatusInProcess}
	_ = reg.UpsertTiles(ctx, []registry.Tile{tile})

	// Missing width/height makes this a poison payload (§6).
	payload := []byte(`{"image_id":9,"tile_id":"coco:9/9/9"}`)
	if err := b.Publish(ctx, "q", payload); err != nil {
		t.Fatalf("publish: %v", err)
	}

	w := New(reg, vec, b, &embedding.LocalProvider{Dim: 8}, nil, Config{
		ConsumeQueues: "q", DecodeWorkers: 1, BatchSize: 4, FlushInterval: 30 * time.Millisecond, JobTimeout: time.Second, EmbedDim: 8,
	}, testLogger())

	runCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(runCtx) }()
	<-done

	got, err := reg.Get(ctx, tile.TileID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != registry.StatusFailed {
		t.Fatalf("status = %s, want FAILED", got.Status)
	}
}

func waitForStatus(t *testing.T, reg registry.Store, tileID string, want registry.Status) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		tile, err := reg.Get(context.Background(), tileID)
		if err == nil && tile.Status == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("tile %s never reached status %s", tileID, want)
}
