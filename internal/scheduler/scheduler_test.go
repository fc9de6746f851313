package scheduler

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"testing"
	"time"

	busp "github.com/nucleus/tileindex/internal/bus"
	"github.com/nucleus/tileindex/internal/registry"
)

func TestSchedulerTickTransitionsBeforePublish(t *testing.T) {
	store := registry.NewMemoryStore()
	b := busp.NewMemoryBus()
	defer b.Close()
	ctx := context.Background()

	tile := registry.Tile{TileID: "orthophoto:0/0/0", ImageID: 1, ImagePath: "/x.png", Status: registry.StatusReadyForIndexing, EmbedderModel: "pe_core"}
	if err := store.UpsertTiles(ctx, []registry.Tile{tile}); err != nil {
		t.Fatalf("UpsertTiles: %v", err)
	}

	sched := New(store, b, Config{
		Interval:    50 * time.Millisecond,
		BatchSize:   10,
		ReadyStatus: registry.StatusReadyForIndexing,
		Router:      ParseRoutingTable("pe_core=q1"),
	}, log.New(os.Stderr, "", 0))

	tickCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	sched.tick(tickCtx)

	got, err := store.Get(ctx, tile.TileID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != registry.StatusInProcess {
		t.Fatalf("expected tile to be IN_PROCESS after tick, got %s", got.Status)
	}

	envs, err := b.Consume(tickCtx, "q1")
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	select {
	case env := <-envs:
		var msg Message
		if err := json.Unmarshal(env.Payload(), &msg); err != nil {
			t.Fatalf("unmarshal message: %v", err)
		}
		if msg.TileID != tile.TileID {
			t.Fatalf("unexpected tile id in message: %s", msg.TileID)
		}
	case <-tickCtx.Done():
		t.Fatal("timed out waiting for published message")
	}
}

func TestSchedulerTickNoOpWhenNoReadyTiles(t *testing.T) {
	store := registry.NewMemoryStore()
	b := busp.NewMemoryBus()
	defer b.Close()

	sched := New(store, b, Config{
		Interval:    time.Second,
		BatchSize:   10,
		ReadyStatus: registry.StatusReadyForIndexing,
		Router:      ParseRoutingTable("pe_core=q1"),
	}, log.New(os.Stderr, "", 0))

	sched.tick(context.Background())

	if len(b.QueueNames()) != 0 {
		t.Fatalf("expected no queues touched on empty tick, got %v", b.QueueNames())
	}
}

func TestSchedulerTickRevertsToFailedWhenNoRouteMatches(t *testing.T) {
	store := registry.NewMemoryStore()
	b := busp.NewMemoryBus()
	defer b.Close()
	ctx := context.Background()

	tile := registry.Tile{TileID: "orthophoto:0/0/1", ImageID: 2, ImagePath: "/x.png", Status: registry.StatusReadyForIndexing, EmbedderModel: "unrouted"}
	if err := store.UpsertTiles(ctx, []registry.Tile{tile}); err != nil {
		t.Fatalf("UpsertTiles: %v", err)
	}

	sched := New(store, b, Config{
		Interval:    50 * time.Millisecond,
		BatchSize:   10,
		ReadyStatus: registry.StatusReadyForIndexing,
		Router:      ParseRoutingTable(""),
	}, log.New(os.Stderr, "", 0))

	sched.tick(context.Background())

	got, err := store.Get(ctx, tile.TileID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != registry.StatusFailed {
		t.Fatalf("expected tile reverted to FAILED when unrouted, got %s", got.Status)
	}
}

func TestSchedulerTickNonReentrant(t *testing.T) {
	store := registry.NewMemoryStore()
	b := busp.NewMemoryBus()
	defer b.Close()

	sched := New(store, b, Config{
		Interval:    time.Second,
		BatchSize:   10,
		ReadyStatus: registry.StatusReadyForIndexing,
		Router:      ParseRoutingTable("pe_core=q1"),
	}, log.New(os.Stderr, "", 0))

	sched.running = 1
	sched.tick(context.Background())
	if len(b.QueueNames()) != 0 {
		t.Fatal("expected concurrent tick to be skipped while one is already running")
	}
}
