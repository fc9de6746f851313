package vectorstore

import (
	"context"
	"log"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nucleus/tileindex/internal/errs"
)

// TestHTTPClientVectorSearchUnknownTableIs404 exercises the real HTTP
// round trip (Server -> HTTPClient) for the deployed retriever/vector
// service topology: a search against a table the adapter has never
// seen must surface as errs.ErrNotFound, not a swallowed empty result.
func TestHTTPClientVectorSearchUnknownTableIs404(t *testing.T) {
	srv := NewServer(NewMemoryAdapter(), log.Default())
	ts := httptest.NewServer(srv)
	defer ts.Close()

	client := NewHTTPClient(ts.URL)
	results, err := client.VectorSearch(context.Background(), "missing", []float32{1, 0}, SearchOptions{K: 1})
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.Nil(t, results)
}
