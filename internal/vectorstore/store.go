package vectorstore

import "context"

// Adapter owns vector tables. Implementations must cache table handles by
// name and are safe for concurrent readers with a single writer per table
// (§5), matching the donor codebase's LanceDB adapter contract.
type Adapter interface {
	// CreateOrOpen returns a handle for name, creating it with dimension D
	// if it does not exist. If an existing table has a different
	// dimension, it fails with errs.ErrSchemaConflict.
	CreateOrOpen(ctx context.Context, name string, dim int, metric Metric) error

	// Upsert merge-inserts rows keyed on id_col (default "id"). Empty rows
	// is a no-op that does not create the table (§8 boundary behavior).
	Upsert(ctx context.Context, name string, rows []Row) error

	// VectorSearch runs ANN search. len(q) must equal the table's
	// dimension or it fails with errs.ErrDimMismatch. k=0 returns [].
	VectorSearch(ctx context.Context, name string, q []float32, opts SearchOptions) ([]SearchResult, error)

	// Info returns the table's schema and row count.
	Info(ctx context.Context, name string) (TableInfo, error)

	// ListTables returns the names of every table this adapter has created.
	ListTables(ctx context.Context) ([]string, error)

	// Optimize triggers compaction / index maintenance.
	Optimize(ctx context.Context, name string) error

	// DeleteWhere removes rows matching expr, returning pre/post counts.
	DeleteWhere(ctx context.Context, name string, expr string) (DeleteResult, error)

	// ExportJsonl streams rows as one JSON object per line via emit,
	// honoring opts.PageSize/opts.MaxRows with offset pagination.
	ExportJsonl(ctx context.Context, name string, opts ExportOptions, emit func(Row) error) (int, error)

	Close() error
}
