// Package scheduler implements the publisher (C4): a single-writer tick
// loop that drains READY_FOR_INDEXING tiles, transitions them to
// IN_PROCESS, and publishes routing-aware messages to the bus — in
// transition-before-publish order, so a crashed scheduler never leaves
// a tile duplicated on the bus.
package scheduler

import (
	"context"
	"encoding/json"
	"log"
	"sync/atomic"
	"time"

	"github.com/nucleus/tileindex/internal/bus"
	"github.com/nucleus/tileindex/internal/registry"
)

// Message is the wire shape of a scheduler-published envelope (§6).
type Message struct {
	TileID         string `json:"tile_id"`
	ImageID        int64  `json:"image_id"`
	Source         string `json:"source,omitempty"`
	TileStore      string `json:"tile_store,omitempty"`
	ImagePath      string `json:"image_path,omitempty"`
	RasterPath     string `json:"raster_path,omitempty"`
	PixelPolygon   string `json:"pixel_polygon,omitempty"`
	GeoPolygon     string `json:"geo_polygon,omitempty"`
	Width          int32  `json:"width"`
	Height         int32  `json:"height"`
	EmbedderModel  string `json:"embedder_model,omitempty"`
	RunID          string `json:"run_id,omitempty"`
}

// Config parameterizes a tick: {interval, batch_size, ready_status,
// queue_routing} from §4.4.
type Config struct {
	Interval    time.Duration
	BatchSize   int
	ReadyStatus registry.Status
	Router      *Router
	RunID       string
}

// Scheduler runs the publisher loop against a tile Store and a Bus.
type Scheduler struct {
	store  registry.Store
	bus    bus.Bus
	cfg    Config
	logger *log.Logger

	running int32 // non-reentrant tick guard (max-instances=1, §4.4)
}

// New builds a Scheduler. cfg.Router must be non-nil.
func New(store registry.Store, b bus.Bus, cfg Config, logger *log.Logger) *Scheduler {
	return &Scheduler{store: store, bus: b, cfg: cfg, logger: logger}
}

// Run blocks, ticking every cfg.Interval until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick is non-reentrant: if a prior tick is still running (a slow
// Postgres round trip, say), this tick is skipped rather than queued.
func (s *Scheduler) tick(ctx context.Context) {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return
	}
	defer atomic.StoreInt32(&s.running, 0)

	tiles, err := s.store.ListByStatus(ctx, s.cfg.ReadyStatus, s.cfg.BatchSize, 0)
	if err != nil {
		s.logger.Printf("scheduler: list ready tiles: %v", err)
		return
	}
	if len(tiles) == 0 {
		return
	}

	ids := make([]string, len(tiles))
	for i, t := range tiles {
		ids[i] = t.TileID
	}
	if _, err := s.store.UpdateStatus(ctx, ids, registry.StatusInProcess); err != nil {
		s.logger.Printf("scheduler: transition to IN_PROCESS: %v", err)
		return
	}

	for _, t := range tiles {
		queue, ok := s.cfg.Router.Route(t.EmbedderModel)
		if !ok {
			s.logger.Printf("scheduler: no route for tile %s (embedder_model=%q), dropping", t.TileID, t.EmbedderModel)
			s.revertToFailed(ctx, t.TileID)
			continue
		}
		msg := Message{
			TileID: t.TileID, ImageID: t.ImageID, Source: t.Source, TileStore: t.TileStore,
			ImagePath: t.ImagePath, RasterPath: t.RasterPath, PixelPolygon: t.PixelPolygon,
			GeoPolygon: t.GeoPolygon, Width: t.Width, Height: t.Height,
			EmbedderModel: t.EmbedderModel, RunID: s.cfg.RunID,
		}
		payload, err := json.Marshal(msg)
		if err != nil {
			s.logger.Printf("scheduler: marshal tile %s: %v", t.TileID, err)
			s.revertToFailed(ctx, t.TileID)
			continue
		}
		if err := s.bus.Publish(ctx, queue, payload); err != nil {
			// The tile is already IN_PROCESS; revert it to FAILED so it
			// does not sit stuck there forever. Best-effort: a failure
			// reverting is logged and left for the next tick/operator.
			s.logger.Printf("scheduler: publish tile %s to %s: %v", t.TileID, queue, err)
			s.revertToFailed(ctx, t.TileID)
		}
	}
}

// revertToFailed is the §4.4 "best-effort revert to FAILED" step: it never
// blocks the tick on its own failure, since the tile is already
// IN_PROCESS and a lost revert just means an operator has to look at it.
func (s *Scheduler) revertToFailed(ctx context.Context, tileID string) {
	if _, err := s.store.UpdateStatus(ctx, []string{tileID}, registry.StatusFailed); err != nil {
		s.logger.Printf("scheduler: revert tile %s to FAILED: %v", tileID, err)
	}
}
