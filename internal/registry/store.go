package registry

import (
	"context"
	"errors"

	"github.com/nucleus/tileindex/internal/errs"
)

var (
	errTileIDRequired    = errors.New("registry: tile_id is required")
	errMissingPixelSource = errors.New("registry: one of image_path, or raster_path+pixel_polygon, is required")
)

// StatusCounts maps a status name to the number of tiles currently in it.
type StatusCounts map[Status]int64

// Store is the tile registry's storage-agnostic contract (§4.1).
// Implementations must be safe for concurrent use.
type Store interface {
	// UpsertTiles inserts or updates rows by tile_id. A tile with no
	// status defaults to StatusReadyForIndexing.
	UpsertTiles(ctx context.Context, tiles []Tile) error

	// ListByStatus pages through tiles in a given status, ordered by
	// tile_id.
	ListByStatus(ctx context.Context, status Status, limit, offset int) ([]Tile, error)

	// UpdateStatus batch-transitions ids to status, returning the number
	// of rows actually changed. An illegal transition for any id returns
	// errs.ErrInvalidState without partially applying the batch.
	UpdateStatus(ctx context.Context, ids []string, status Status) (int64, error)

	// Get returns a single tile, or errs.ErrNotFound.
	Get(ctx context.Context, tileID string) (Tile, error)

	// Delete removes tiles by id, returning the number removed.
	Delete(ctx context.Context, ids []string) (int64, error)

	// StatusCounts returns the number of tiles in each status.
	StatusCounts(ctx context.Context) (StatusCounts, error)

	// ListExpired returns up to limit tiles with indexed_at <= cutoff,
	// for the TTL sweep (C9).
	ListExpired(ctx context.Context, cutoffEpoch int64, limit int) ([]Tile, error)

	Close() error
}

// errNotFound is a convenience re-export so callers in this package don't
// need to import errs directly for the common case.
var errNotFound = errs.ErrNotFound
