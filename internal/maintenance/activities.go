// Package maintenance implements the TTL sweep and table-optimize
// workflow (C9): a Temporal workflow that survives scheduler-process
// restarts because its schedule lives on the Temporal server, not on any
// one process's ticker.
package maintenance

import (
	"context"
	"fmt"

	"github.com/nucleus/tileindex/internal/registry"
	"github.com/nucleus/tileindex/internal/vectorstore"
)

// Activities bundles the registry and vector store handles the sweep and
// optimize workflows call through. One Activities is registered per
// worker process (§9: "runs independently ... not tied to any single
// process's uptime" — the workflow's durability comes from Temporal, not
// from this struct).
type Activities struct {
	Registry registry.Store
	Vectors  vectorstore.Adapter
}

// NewActivities builds an Activities bundle.
func NewActivities(reg registry.Store, vec vectorstore.Adapter) *Activities {
	return &Activities{Registry: reg, Vectors: vec}
}

// ListExpiredInput is the input to ListExpiredTiles.
type ListExpiredInput struct {
	CutoffEpoch int64
	Limit       int
}

// ExpiredTile is the subset of a registry.Tile the sweep needs, kept
// small so it serializes cheaply into Temporal workflow history.
type ExpiredTile struct {
	TileID        string
	EmbedderModel string
}

// ListExpiredTiles returns tiles whose indexed_at is at or before the
// cutoff (§9: the registry is authoritative for indexed_at).
func (a *Activities) ListExpiredTiles(ctx context.Context, in ListExpiredInput) ([]ExpiredTile, error) {
	tiles, err := a.Registry.ListExpired(ctx, in.CutoffEpoch, in.Limit)
	if err != nil {
		return nil, fmt.Errorf("maintenance: list expired: %w", err)
	}
	out := make([]ExpiredTile, len(tiles))
	for i, t := range tiles {
		out[i] = ExpiredTile{TileID: t.TileID, EmbedderModel: t.EmbedderModel}
	}
	return out, nil
}

// DeleteVectorRowsInput names the table and the tile_ids to delete from it.
type DeleteVectorRowsInput struct {
	TableName string
	TileIDs   []string
}

// DeleteVectorRowsResult reports the row counts deleteWhere observed.
type DeleteVectorRowsResult struct {
	RowsBefore int64
	RowsAfter  int64
}

// DeleteVectorRows deletes the given tile_ids from a vector table. Run
// before DeleteRegistryRows in the sweep's ordering (§9): deleting the
// vector rows first means a crash between the two steps leaves the
// registry row as the only surviving reference, which the next sweep
// tick naturally retries, rather than leaving an orphaned vector row
// with no registry row to reconcile it against.
func (a *Activities) DeleteVectorRows(ctx context.Context, in DeleteVectorRowsInput) (DeleteVectorRowsResult, error) {
	if len(in.TileIDs) == 0 {
		return DeleteVectorRowsResult{}, nil
	}
	expr := "tile_id IN (" + quoteList(in.TileIDs) + ")"
	result, err := a.Vectors.DeleteWhere(ctx, in.TableName, expr)
	if err != nil {
		return DeleteVectorRowsResult{}, fmt.Errorf("maintenance: delete vector rows from %s: %w", in.TableName, err)
	}
	return DeleteVectorRowsResult{RowsBefore: result.RowsBefore, RowsAfter: result.RowsAfter}, nil
}

// DeleteRegistryRowsInput names the tile_ids to remove from the registry.
type DeleteRegistryRowsInput struct {
	TileIDs []string
}

// DeleteRegistryRows removes the swept tiles from the registry.
func (a *Activities) DeleteRegistryRows(ctx context.Context, in DeleteRegistryRowsInput) (int64, error) {
	if len(in.TileIDs) == 0 {
		return 0, nil
	}
	n, err := a.Registry.Delete(ctx, in.TileIDs)
	if err != nil {
		return 0, fmt.Errorf("maintenance: delete registry rows: %w", err)
	}
	return n, nil
}

// OptimizeTable triggers compaction on a single vector table.
func (a *Activities) OptimizeTable(ctx context.Context, tableName string) error {
	if err := a.Vectors.Optimize(ctx, tableName); err != nil {
		return fmt.Errorf("maintenance: optimize %s: %w", tableName, err)
	}
	return nil
}

// ListTables returns every table name the vector adapter has created, so
// the optimize workflow can sweep all of them without a hard-coded list.
func (a *Activities) ListTables(ctx context.Context) ([]string, error) {
	return a.Vectors.ListTables(ctx)
}

func quoteList(ids []string) string {
	out := ""
	for i, id := range ids {
		if i > 0 {
			out += ", "
		}
		out += "'" + id + "'"
	}
	return out
}
