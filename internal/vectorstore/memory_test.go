package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nucleus/tileindex/internal/errs"
)

func TestMemoryAdapterCreateOrOpenDimensionConflict(t *testing.T) {
	a := NewMemoryAdapter()
	ctx := context.Background()
	require.NoError(t, a.CreateOrOpen(ctx, "tiles", 4, MetricCosine))
	err := a.CreateOrOpen(ctx, "tiles", 8, MetricCosine)
	require.ErrorIs(t, err, errs.ErrSchemaConflict)
}

func TestMemoryAdapterUpsertEmptyRowsNoop(t *testing.T) {
	a := NewMemoryAdapter()
	ctx := context.Background()
	require.NoError(t, a.Upsert(ctx, "tiles", nil))
	_, err := a.Info(ctx, "tiles")
	require.ErrorIs(t, err, errs.ErrNotFound, "table should not have been created")
}

func TestMemoryAdapterUpsertDimMismatch(t *testing.T) {
	a := NewMemoryAdapter()
	ctx := context.Background()
	require.NoError(t, a.CreateOrOpen(ctx, "tiles", 3, MetricCosine))
	err := a.Upsert(ctx, "tiles", []Row{{ID: "a", Embedding: []float32{1, 2}}})
	require.ErrorIs(t, err, errs.ErrDimMismatch)
}

func TestMemoryAdapterVectorSearchKZeroReturnsEmpty(t *testing.T) {
	a := NewMemoryAdapter()
	ctx := context.Background()
	require.NoError(t, a.CreateOrOpen(ctx, "tiles", 2, MetricCosine))
	require.NoError(t, a.Upsert(ctx, "tiles", []Row{{ID: "a", Embedding: []float32{1, 0}}}))
	results, err := a.VectorSearch(ctx, "tiles", []float32{1, 0}, SearchOptions{K: 0})
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestMemoryAdapterVectorSearchOrdersByDistance(t *testing.T) {
	a := NewMemoryAdapter()
	ctx := context.Background()
	require.NoError(t, a.CreateOrOpen(ctx, "tiles", 2, MetricCosine))
	rows := []Row{
		{ID: "near", Embedding: []float32{1, 0}},
		{ID: "far", Embedding: []float32{0, 1}},
	}
	require.NoError(t, a.Upsert(ctx, "tiles", rows))
	results, err := a.VectorSearch(ctx, "tiles", []float32{1, 0}, SearchOptions{K: 2})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "near", results[0].ID)
}

func TestMemoryAdapterVectorSearchWithWhere(t *testing.T) {
	a := NewMemoryAdapter()
	ctx := context.Background()
	require.NoError(t, a.CreateOrOpen(ctx, "tiles", 2, MetricCosine))
	rows := []Row{
		{ID: "a", Embedding: []float32{1, 0}, Metadata: map[string]any{"source": "sat1"}},
		{ID: "b", Embedding: []float32{1, 0}, Metadata: map[string]any{"source": "sat2"}},
	}
	require.NoError(t, a.Upsert(ctx, "tiles", rows))
	results, err := a.VectorSearch(ctx, "tiles", []float32{1, 0}, SearchOptions{K: 10, Where: "source = 'sat2'"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "b", results[0].ID)
}

func TestMemoryAdapterDeleteWhere(t *testing.T) {
	a := NewMemoryAdapter()
	ctx := context.Background()
	require.NoError(t, a.CreateOrOpen(ctx, "tiles", 2, MetricCosine))
	rows := []Row{
		{ID: "a", Embedding: []float32{1, 0}, Metadata: map[string]any{"status": "stale"}},
		{ID: "b", Embedding: []float32{1, 0}, Metadata: map[string]any{"status": "fresh"}},
	}
	require.NoError(t, a.Upsert(ctx, "tiles", rows))
	result, err := a.DeleteWhere(ctx, "tiles", "status = 'stale'")
	require.NoError(t, err)
	require.EqualValues(t, 2, result.RowsBefore)
	require.EqualValues(t, 1, result.RowsAfter)
}

func TestMemoryAdapterExportJsonlRespectsMaxRows(t *testing.T) {
	a := NewMemoryAdapter()
	ctx := context.Background()
	require.NoError(t, a.CreateOrOpen(ctx, "tiles", 1, MetricCosine))
	rows := []Row{{ID: "a", Embedding: []float32{1}}, {ID: "b", Embedding: []float32{2}}, {ID: "c", Embedding: []float32{3}}}
	require.NoError(t, a.Upsert(ctx, "tiles", rows))
	var seen []string
	n, err := a.ExportJsonl(ctx, "tiles", ExportOptions{MaxRows: 2}, func(r Row) error {
		seen = append(seen, r.ID)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Len(t, seen, 2)
}
