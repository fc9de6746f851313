package embedder

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/nucleus/tileindex/internal/bus"
	"github.com/nucleus/tileindex/internal/embedding"
	"github.com/nucleus/tileindex/internal/errs"
	"github.com/nucleus/tileindex/internal/registry"
	"github.com/nucleus/tileindex/internal/vectorstore"
)

// Config parameterizes the worker loop (§4.5, §5).
type Config struct {
	ConsumeQueues         string
	DecodeWorkers         int
	BatchSize             int
	FlushInterval         time.Duration
	JobTimeout            time.Duration
	ShutdownTimeout       time.Duration
	RequireIndexBeforeAck bool
	EmbedDim              int
	RunID                 string
}

func (c Config) withDefaults() Config {
	if c.DecodeWorkers <= 0 {
		c.DecodeWorkers = 8
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 64
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 2 * time.Second
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 30 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 15 * time.Second
	}
	return c
}

// Worker is the embedder consumer (C5): consume -> load -> batch ->
// embed -> upsert -> ack, with the tile registry status transitions in
// §4.1/§4.5 applied along the way.
type Worker struct {
	registry registry.Store
	vectors  vectorstore.Adapter
	bus      bus.Bus
	loader   TileLoader
	provider embedding.Provider
	cfg      Config
	logger   *log.Logger

	seen sync.Map // image_id (int64) -> struct{}, process-local dedup memo
}

// New builds a Worker. loader defaults to NewMultiLoader() when nil.
func New(reg registry.Store, vec vectorstore.Adapter, b bus.Bus, provider embedding.Provider, loader TileLoader, cfg Config, logger *log.Logger) *Worker {
	if loader == nil {
		loader = NewMultiLoader()
	}
	return &Worker{
		registry: reg, vectors: vec, bus: b, loader: loader, provider: provider,
		cfg: cfg.withDefaults(), logger: logger,
	}
}

// decoded is one envelope that has cleared loading and is ready to join
// a batch.
type decoded struct {
	env     bus.Envelope
	msg     Message
	tileID  string
	backend string
	model   string
	pixels  []byte
}

// Run blocks, consuming cfg.ConsumeQueues until ctx is canceled. On
// cancellation it drains the in-flight batch, flushes once with
// force=true, and returns once the decode pool has joined or
// cfg.ShutdownTimeout elapses.
func (w *Worker) Run(ctx context.Context) error {
	envs, err := w.bus.Consume(ctx, w.cfg.ConsumeQueues)
	if err != nil {
		return fmt.Errorf("embedder: consume %s: %w", w.cfg.ConsumeQueues, err)
	}

	decodedCh := make(chan decoded, w.cfg.BatchSize*2)
	sem := semaphore.NewWeighted(int64(w.cfg.DecodeWorkers))
	var inflight sync.WaitGroup

	go func() {
		for env := range envs {
			inflight.Add(1)
			go func(env bus.Envelope) {
				defer inflight.Done()
				if err := sem.Acquire(ctx, 1); err != nil {
					return // ctx canceled while waiting for a decode slot
				}
				defer sem.Release(1)
				w.handleEnvelope(ctx, env, decodedCh)
			}(env)
		}
		inflight.Wait()
		close(decodedCh)
	}()

	err = w.coordinate(ctx, decodedCh)

	// Join the decode pool: discard whatever it still pushes until the
	// dispatcher closes decodedCh, bounded by cfg.ShutdownTimeout.
	poolDone := make(chan struct{})
	go func() {
		for range decodedCh {
		}
		close(poolDone)
	}()
	select {
	case <-poolDone:
	case <-time.After(w.cfg.ShutdownTimeout):
	}
	return err
}

// handleEnvelope validates and decodes one message, pushing the result
// onto decodedCh. Poison payloads and resource-exhaustion failures are
// resolved here (tile marked FAILED, envelope acked) and never reach the
// batch.
func (w *Worker) handleEnvelope(ctx context.Context, env bus.Envelope, decodedCh chan<- decoded) {
	msg, err := ParseMessage(env.Payload())
	if err != nil {
		w.logger.Printf("embedder: poison payload on %s: %v", env.Queue(), err)
		w.markFailed(ctx, tileIDFromRawPayload(env.Payload()))
		_ = env.Ack()
		return
	}

	if _, dup := w.seen.LoadOrStore(msg.ImageID, struct{}{}); dup {
		_ = env.Ack()
		return
	}

	tileID := msg.TileID
	loadCtx, cancel := context.WithTimeout(ctx, w.cfg.JobTimeout)
	pixels, err := w.loader.Load(loadCtx, msg)
	cancel()
	if err != nil {
		w.logger.Printf("embedder: load tile %s: %v", tileID, err)
		w.markFailed(ctx, tileID)
		_ = env.Ack()
		return
	}

	if tileID != "" {
		if _, err := w.registry.UpdateStatus(ctx, []string{tileID}, registry.StatusWaitingForEmbedding); err != nil {
			w.logger.Printf("embedder: mark %s WAITING_FOR_EMBEDDING: %v", tileID, err)
		}
	}

	backend, model := SplitBackendModel(msg.EmbedderModel)
	if backend == "" {
		backend = w.provider.ModelName()
		model = backend
	}
	select {
	case decodedCh <- decoded{env: env, msg: msg, tileID: tileID, backend: backend, model: model, pixels: pixels}:
	case <-ctx.Done():
	}
}

func (w *Worker) markFailed(ctx context.Context, tileID string) {
	if tileID == "" {
		return
	}
	if _, err := w.registry.UpdateStatus(ctx, []string{tileID}, registry.StatusFailed); err != nil {
		w.logger.Printf("embedder: mark %s FAILED: %v", tileID, err)
	}
}

// coordinate is the single coordination goroutine: it owns the batch
// buffer, the size/age flush triggers, and the per-group embed+upsert
// calls. Model inference runs here, serially, intentionally (§5).
func (w *Worker) coordinate(ctx context.Context, decodedCh <-chan decoded) error {
	batch := make([]decoded, 0, w.cfg.BatchSize)
	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()
	batchStarted := time.Now()

	flush := func(force bool) {
		if len(batch) == 0 {
			return
		}
		if !force && len(batch) < w.cfg.BatchSize && time.Since(batchStarted) < w.cfg.FlushInterval {
			return
		}
		w.flush(ctx, batch)
		batch = batch[:0]
		batchStarted = time.Now()
	}

	for {
		select {
		case <-ctx.Done():
			flush(true)
			return nil
		case item, ok := <-decodedCh:
			if !ok {
				flush(true)
				return nil
			}
			if len(batch) == 0 {
				batchStarted = time.Now()
			}
			batch = append(batch, item)
			if len(batch) >= w.cfg.BatchSize {
				flush(true)
			}
		case <-ticker.C:
			// Idle envelopes (no message arrived this tick) also trigger
			// a time-based flush once the batch has aged past the flush
			// interval (§4.5 backpressure rule).
			flush(false)
		}
	}
}

// flush groups a closed batch by (backend, model) and runs the
// embed+upsert path for each group. One group's failure never blocks
// another's.
func (w *Worker) flush(ctx context.Context, batch []decoded) {
	groups := make(map[string][]decoded)
	var order []string
	for _, item := range batch {
		key := item.backend + ":" + item.model
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], item)
	}
	for _, key := range order {
		w.flushGroup(ctx, groups[key])
	}
}

func (w *Worker) flushGroup(ctx context.Context, items []decoded) {
	if len(items) == 0 {
		return
	}
	backend, model := items[0].backend, items[0].model
	table := TableName(backend, model)

	items = w.dropAlreadyIndexed(ctx, table, items)
	if len(items) == 0 {
		return
	}

	images := make([][]byte, len(items))
	for i, it := range items {
		images[i] = it.pixels
	}
	vecs, err := w.provider.EmbedImage(ctx, model, images)
	if err != nil {
		w.logger.Printf("embedder: embed group %s:%s (%d tiles): %v", backend, model, len(items), err)
		// Embedding failure is treated as resource exhaustion: isolate
		// and fail the whole group rather than stall the rest of the
		// batch's other groups.
		for _, it := range items {
			w.markFailed(ctx, it.tileID)
			_ = it.env.Ack()
		}
		return
	}

	ids := make([]string, 0, len(items))
	rows := make([]vectorstore.Row, 0, len(items))
	for i, it := range items {
		if it.tileID != "" {
			ids = append(ids, it.tileID)
		}
		rows = append(rows, vectorstore.Row{
			ID:        RowID(it.tileID, backend, model),
			Embedding: vecs[i],
			Metadata:  w.rowMetadata(it, backend, model),
		})
	}
	if len(ids) > 0 {
		if _, err := w.registry.UpdateStatus(ctx, ids, registry.StatusWaitingForIndex); err != nil {
			w.logger.Printf("embedder: mark group %s:%s WAITING_FOR_INDEX: %v", backend, model, err)
		}
	}

	dim := w.cfg.EmbedDim
	if dim <= 0 && len(vecs) > 0 {
		dim = len(vecs[0])
	}
	if err := w.vectors.CreateOrOpen(ctx, table, dim, vectorstore.MetricCosine); err != nil {
		w.handleUpsertFailure(ctx, items, err)
		return
	}
	if err := w.vectors.Upsert(ctx, table, rows); err != nil {
		w.handleUpsertFailure(ctx, items, err)
		return
	}

	// Only after the upsert returns success are the envelopes acked and
	// tile statuses set to INDEXED (§4.5).
	if len(ids) > 0 {
		if _, err := w.registry.UpdateStatus(ctx, ids, registry.StatusIndexed); err != nil {
			w.logger.Printf("embedder: mark group %s:%s INDEXED: %v", backend, model, err)
			if w.cfg.RequireIndexBeforeAck {
				// require_index_status_before_ack: hold the ack so
				// redelivery retries the INDEXED write too.
				return
			}
		}
	}
	for _, it := range items {
		_ = it.env.Ack()
	}
}

// handleUpsertFailure classifies a vector-store error. A schema conflict
// can never resolve by retrying, so those tiles are failed and acked. Any
// other error leaves the group's envelopes unacked for redelivery and
// drops their image_ids from the seen memo, so a redelivered envelope is
// processed again instead of being acked as a duplicate.
func (w *Worker) handleUpsertFailure(ctx context.Context, items []decoded, err error) {
	if errs.Classify(err) == errs.KindSchemaConflict {
		w.logger.Printf("embedder: schema conflict on upsert: %v", err)
		for _, it := range items {
			w.markFailed(ctx, it.tileID)
			_ = it.env.Ack()
		}
		return
	}
	for _, it := range items {
		w.seen.Delete(it.msg.ImageID)
	}
	w.logger.Printf("embedder: upsert failed, leaving %d envelopes unacked for redelivery: %v", len(items), err)
}

// dropAlreadyIndexed implements the destination-side idempotency check
// (§4.5 step 2): probe the target table for image_ids already present
// and ack those immediately without re-embedding them. The probe uses a
// zero query vector since only the `where image_id IN (...)` filter
// matters for presence, not ranking.
func (w *Worker) dropAlreadyIndexed(ctx context.Context, table string, items []decoded) []decoded {
	ids := make([]string, 0, len(items))
	seen := make(map[int64]bool, len(items))
	for _, it := range items {
		if seen[it.msg.ImageID] {
			continue
		}
		seen[it.msg.ImageID] = true
		ids = append(ids, strconv.FormatInt(it.msg.ImageID, 10))
	}
	if len(ids) == 0 {
		return items
	}
	dim := w.cfg.EmbedDim
	if dim <= 0 {
		return items
	}
	existing, err := w.vectors.VectorSearch(ctx, table, make([]float32, dim), vectorstore.SearchOptions{
		K:       len(ids),
		Where:   "image_id IN (" + strings.Join(ids, ",") + ")",
		Columns: []string{"image_id"},
	})
	if err != nil {
		// Table not open yet, or the probe itself failed: proceed as if
		// nothing is present, the upsert-by-id path still closes the race.
		return items
	}
	present := make(map[int64]bool, len(existing))
	for _, row := range existing {
		if v, ok := row.Metadata["image_id"]; ok {
			present[toInt64(v)] = true
		}
	}
	if len(present) == 0 {
		return items
	}
	out := make([]decoded, 0, len(items))
	for _, it := range items {
		if present[it.msg.ImageID] {
			_ = it.env.Ack()
			continue
		}
		out = append(out, it)
	}
	return out
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	default:
		return 0
	}
}

func (w *Worker) rowMetadata(it decoded, backend, model string) map[string]any {
	m := it.msg
	meta := map[string]any{
		"tile_id":          it.tileID,
		"image_id":         m.ImageID,
		"source":           m.Source,
		"tile_store":       m.TileStore,
		"image_path":       m.ImagePath,
		"raster_path":      m.RasterPath,
		"pixel_polygon":    m.PixelPolygon,
		"geo_polygon":      m.GeoPolygon,
		"utm_zone":         m.UTMZone,
		"run_id":           m.RunID,
		"embedder_backend": backend,
		"embedder_model":   model,
	}
	if m.Lat != nil {
		meta["lat"] = *m.Lat
	}
	if m.Lon != nil {
		meta["lon"] = *m.Lon
	}
	if m.Width > 0 {
		meta["width"] = m.Width
	}
	if m.Height > 0 {
		meta["height"] = m.Height
	}
	return meta
}
