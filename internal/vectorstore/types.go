// Package vectorstore implements the vector index adapter (C3): typed
// schema, fixed-size vector column, idempotent upsert, ANN search, scalar
// indexes, and maintenance operations, backed by Postgres + pgvector.
package vectorstore

// Metric selects the distance function a table's ANN index is built for.
// Only Cosine is exercised by the retriever (embeddings are unit-norm),
// but L2 and Dot are selectable at create time per §4.3.
type Metric string

const (
	MetricCosine Metric = "cosine"
	MetricL2     Metric = "l2"
	MetricDot    Metric = "dot"
)

// Row is one vector-table row: an id, its embedding, and the projected
// tile metadata columns (§3). Metadata holds whatever catalog columns the
// caller supplied, keyed by column name; unknown keys are dropped silently
// on write, matching the "row columns outside the schema are dropped" rule.
type Row struct {
	ID        string         `json:"id"`
	Embedding []float32      `json:"embedding"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// SearchResult is a Row plus the ANN distance attached by the backend.
type SearchResult struct {
	Row
	Distance float64 `json:"_distance"`
}

// TableInfo describes an open table's schema, for the /tables/{n}/info
// HTTP surface.
type TableInfo struct {
	Name      string   `json:"name"`
	Dimension int      `json:"dimension"`
	Metric    Metric   `json:"metric"`
	RowCount  int64    `json:"row_count"`
	Columns   []string `json:"columns"`
}

// SearchOptions parameterizes vectorSearch (§4.3).
type SearchOptions struct {
	K            int
	Where        string
	Columns      []string
	NProbes      int
	RefineFactor int
}

// DeleteResult reports the row count before and after a deleteWhere call.
type DeleteResult struct {
	RowsBefore int64 `json:"rows_before"`
	RowsAfter  int64 `json:"rows_after"`
}

// ExportOptions parameterizes exportJsonl's offset pagination.
type ExportOptions struct {
	PageSize int
	MaxRows  int
}
