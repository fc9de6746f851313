package maintenance

import (
	"context"
	"testing"

	"go.temporal.io/sdk/testsuite"

	"github.com/nucleus/tileindex/internal/registry"
	"github.com/nucleus/tileindex/internal/vectorstore"
)

func TestTTLSweepWorkflowDeletesVectorRowsThenRegistryRows(t *testing.T) {
	reg := registry.NewMemoryStore()
	vec := vectorstore.NewMemoryAdapter()
	ctx := context.Background()

	indexedAt := int64(1000)
	tile := registry.Tile{
		TileID: "orthophoto:0/0/0", ImageID: 1, ImagePath: "/x.png",
		Status: registry.StatusIndexed, EmbedderModel: "pe_core", IndexedAt: &indexedAt,
	}
	if err := reg.UpsertTiles(ctx, []registry.Tile{tile}); err != nil {
		t.Fatalf("seed registry: %v", err)
	}
	if err := vec.CreateOrOpen(ctx, "pe_core", 4, vectorstore.MetricCosine); err != nil {
		t.Fatalf("CreateOrOpen: %v", err)
	}
	if err := vec.Upsert(ctx, "pe_core", []vectorstore.Row{
		{ID: "orthophoto:0/0/0::pe_core:pe_core", Embedding: []float32{1, 0, 0, 0}, Metadata: map[string]any{"tile_id": tile.TileID}},
	}); err != nil {
		t.Fatalf("seed vector row: %v", err)
	}

	acts := NewActivities(reg, vec)

	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	env.RegisterActivity(acts.ListExpiredTiles)
	env.RegisterActivity(acts.DeleteVectorRows)
	env.RegisterActivity(acts.DeleteRegistryRows)
	env.RegisterWorkflow(TTLSweepWorkflowFunc)

	env.ExecuteWorkflow(TTLSweepWorkflowFunc, TTLSweepInput{
		TTLSeconds: 10, BatchSize: 100, SweepInterval: 0, NowEpoch: 2000,
	})

	if !env.IsWorkflowCompleted() {
		t.Fatal("workflow did not complete")
	}
	if err := env.GetWorkflowError(); err != nil {
		t.Fatalf("workflow error: %v", err)
	}
	var result TTLSweepResult
	if err := env.GetWorkflowResult(&result); err != nil {
		t.Fatalf("GetWorkflowResult: %v", err)
	}
	if result.TilesSwept != 1 {
		t.Fatalf("TilesSwept = %d, want 1", result.TilesSwept)
	}

	if _, err := reg.Get(ctx, tile.TileID); err == nil {
		t.Fatal("expected tile removed from registry after sweep")
	}
	rows, err := vec.VectorSearch(ctx, "pe_core", []float32{1, 0, 0, 0}, vectorstore.SearchOptions{K: 10})
	if err != nil {
		t.Fatalf("VectorSearch: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected vector row removed, got %d", len(rows))
	}
}

func TestTTLSweepWorkflowSkipsTilesNotYetExpired(t *testing.T) {
	reg := registry.NewMemoryStore()
	vec := vectorstore.NewMemoryAdapter()
	ctx := context.Background()

	indexedAt := int64(1995)
	tile := registry.Tile{
		TileID: "orthophoto:1/1/1", ImageID: 2, ImagePath: "/y.png",
		Status: registry.StatusIndexed, EmbedderModel: "pe_core", IndexedAt: &indexedAt,
	}
	if err := reg.UpsertTiles(ctx, []registry.Tile{tile}); err != nil {
		t.Fatalf("seed registry: %v", err)
	}

	acts := NewActivities(reg, vec)

	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	env.RegisterActivity(acts.ListExpiredTiles)
	env.RegisterActivity(acts.DeleteVectorRows)
	env.RegisterActivity(acts.DeleteRegistryRows)
	env.RegisterWorkflow(TTLSweepWorkflowFunc)

	env.ExecuteWorkflow(TTLSweepWorkflowFunc, TTLSweepInput{
		TTLSeconds: 10, BatchSize: 100, SweepInterval: 0, NowEpoch: 2000,
	})

	if err := env.GetWorkflowError(); err != nil {
		t.Fatalf("workflow error: %v", err)
	}
	var result TTLSweepResult
	if err := env.GetWorkflowResult(&result); err != nil {
		t.Fatalf("GetWorkflowResult: %v", err)
	}
	if result.TilesSwept != 0 {
		t.Fatalf("TilesSwept = %d, want 0 (indexed_at=%d, cutoff=%d)", result.TilesSwept, indexedAt, int64(1990))
	}
	if _, err := reg.Get(ctx, tile.TileID); err != nil {
		t.Fatalf("expected tile to survive sweep, got error: %v", err)
	}
}
