package retriever

import (
	"context"
	"testing"

	"github.com/nucleus/tileindex/internal/embedding"
	"github.com/nucleus/tileindex/internal/errs"
	"github.com/nucleus/tileindex/internal/vectorstore"
)

func seedTable(t *testing.T, vec *vectorstore.MemoryAdapter, name string, provider *embedding.LocalProvider, rows []vectorstore.Row) {
	t.Helper()
	ctx := context.Background()
	if err := vec.CreateOrOpen(ctx, name, provider.Dim, vectorstore.MetricCosine); err != nil {
		t.Fatalf("CreateOrOpen: %v", err)
	}
	if err := vec.Upsert(ctx, name, rows); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
}

func TestSearchReturnsRankedRows(t *testing.T) {
	vec := vectorstore.NewMemoryAdapter()
	provider := &embedding.LocalProvider{Dim: 8}
	ctx := context.Background()

	q, _ := provider.EmbedText(ctx, "local-fnv-hash", []string{"rooftop"})
	seedTable(t, vec, "pe_core", provider, []vectorstore.Row{
		{ID: "a", Embedding: q[0], Metadata: map[string]any{"lat": 10.0, "lon": 20.0}},
		{ID: "b", Embedding: []float32{1, 0, 0, 0, 0, 0, 0, 0}, Metadata: map[string]any{"lat": 50.0, "lon": 60.0}},
	})

	svc := New(vec, provider)
	results, err := svc.Search(ctx, Query{QueryText: "rooftop", TableName: "pe_core", K: 5})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if results[0].ID != "a" {
		t.Fatalf("results[0].ID = %s, want a (closest match first)", results[0].ID)
	}
}

func TestSearchUnknownTableIs404Class(t *testing.T) {
	vec := vectorstore.NewMemoryAdapter()
	provider := &embedding.LocalProvider{Dim: 8}
	svc := New(vec, provider)

	_, err := svc.Search(context.Background(), Query{QueryText: "x", TableName: "missing", K: 5})
	if err == nil {
		t.Fatal("expected error for unknown table")
	}
	if errs.HTTPStatus(err) != 404 {
		t.Fatalf("HTTPStatus(err) = %d, want 404", errs.HTTPStatus(err))
	}
}

func TestSearchEmptyResultsIsNotAnError(t *testing.T) {
	vec := vectorstore.NewMemoryAdapter()
	provider := &embedding.LocalProvider{Dim: 8}
	ctx := context.Background()
	if err := vec.CreateOrOpen(ctx, "empty", provider.Dim, vectorstore.MetricCosine); err != nil {
		t.Fatalf("CreateOrOpen: %v", err)
	}

	svc := New(vec, provider)
	results, err := svc.Search(ctx, Query{QueryText: "x", TableName: "empty", K: 5})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("len(results) = %d, want 0", len(results))
	}
}

func TestGeoNMSSuppressesNearbyLowerRankedRows(t *testing.T) {
	results := []vectorstore.SearchResult{
		{Row: vectorstore.Row{ID: "best", Metadata: map[string]any{"lat": 37.7749, "lon": -122.4194}}, Distance: 0.01},
		{Row: vectorstore.Row{ID: "near", Metadata: map[string]any{"lat": 37.7750, "lon": -122.4195}}, Distance: 0.02},
		{Row: vectorstore.Row{ID: "far", Metadata: map[string]any{"lat": 40.0, "lon": -100.0}}, Distance: 0.03},
	}

	kept := geoNMS(results, 500)
	if len(kept) != 2 {
		t.Fatalf("len(kept) = %d, want 2", len(kept))
	}
	if kept[0].ID != "best" || kept[1].ID != "far" {
		t.Fatalf("kept = %+v, want [best far]", kept)
	}
}

func TestGeoNMSKeepsRowsWithoutCoordinates(t *testing.T) {
	results := []vectorstore.SearchResult{
		{Row: vectorstore.Row{ID: "a", Metadata: map[string]any{}}},
		{Row: vectorstore.Row{ID: "b", Metadata: map[string]any{}}},
	}
	kept := geoNMS(results, 500)
	if len(kept) != 2 {
		t.Fatalf("len(kept) = %d, want 2 (no coordinates to cluster on)", len(kept))
	}
}
