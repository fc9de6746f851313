package vectorstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nucleus/tileindex/internal/errs"
	"github.com/nucleus/tileindex/internal/schema"
)

// tableHandle is the cached, process-local view of an open table: its
// dimension and the metadata columns observed on it. Invalidated on
// delete/optimize per §5's shared-resource policy.
type tableHandle struct {
	dim    int
	metric Metric
	cols   []string
}

// PgVectorAdapter implements Adapter over Postgres + pgvector, reached
// through a pooled pgx/v5 connection rather than lib/pq (used by C1)
// so the two storage layers are not coupled through one driver's pool.
type PgVectorAdapter struct {
	pool *pgxpool.Pool

	mu     sync.Mutex
	tables map[string]*tableHandle
}

// NewPgVectorAdapter connects to dsn via pgxpool. Per-table DDL happens
// lazily in CreateOrOpen; this constructor only verifies connectivity.
func NewPgVectorAdapter(ctx context.Context, dsn string) (*PgVectorAdapter, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("vectorstore: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		pool.Close()
		return nil, fmt.Errorf("vectorstore: ensure pgvector extension: %w", err)
	}
	return &PgVectorAdapter{pool: pool, tables: make(map[string]*tableHandle)}, nil
}

func (a *PgVectorAdapter) Close() error {
	a.pool.Close()
	return nil
}

func tableIdent(name string) (string, error) {
	if !validIdent(name) {
		return "", fmt.Errorf("vectorstore: invalid table name %q", name)
	}
	return "vt_" + name, nil
}

// CreateOrOpen creates the table if absent, or validates dim against the
// existing table's recorded dimension, failing with ErrSchemaConflict on
// mismatch. The call is idempotent and cheap on the open path: it checks
// the in-process cache first.
func (a *PgVectorAdapter) CreateOrOpen(ctx context.Context, name string, dim int, metric Metric) error {
	ident, err := tableIdent(name)
	if err != nil {
		return err
	}

	a.mu.Lock()
	if h, ok := a.tables[name]; ok {
		a.mu.Unlock()
		if h.dim != dim {
			return fmt.Errorf("vectorstore: table %s has dimension %d, requested %d: %w", name, h.dim, dim, errs.ErrSchemaConflict)
		}
		return nil
	}
	a.mu.Unlock()

	var existingDim int
	err = a.pool.QueryRow(ctx, `
SELECT atttypmod FROM pg_attribute
 WHERE attrelid = $1::regclass AND attname = 'embedding' AND NOT attisdropped
`, ident).Scan(&existingDim)
	tableExists := err == nil
	if tableExists && existingDim > 0 && existingDim != dim {
		return fmt.Errorf("vectorstore: table %s has dimension %d, requested %d: %w", name, existingDim, dim, errs.ErrSchemaConflict)
	}

	if !tableExists {
		cols := schema.VectorSchemaColumns()
		var sb strings.Builder
		fmt.Fprintf(&sb, `CREATE TABLE IF NOT EXISTS %s (`, ident)
		first := true
		for _, c := range cols {
			if !first {
				sb.WriteString(", ")
			}
			first = false
			fmt.Fprintf(&sb, "%s %s", c.Name, pgTypeFor(c.Kind))
			if !c.Nullable {
				sb.WriteString(" NOT NULL")
			}
		}
		fmt.Fprintf(&sb, `, embedding vector(%d) NOT NULL, PRIMARY KEY (id))`, dim)
		if _, err := a.pool.Exec(ctx, sb.String()); err != nil {
			return fmt.Errorf("vectorstore: create table %s: %w", name, err)
		}
		idxOp := metricOpClass(metric)
		idxStmt := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING ivfflat (embedding %s) WITH (lists = 100)`, ident, ident, idxOp)
		if _, err := a.pool.Exec(ctx, idxStmt); err != nil {
			return fmt.Errorf("vectorstore: create ann index on %s: %w", name, err)
		}
	}

	colNames := schema.Names(schema.VectorSchemaColumns())
	a.mu.Lock()
	a.tables[name] = &tableHandle{dim: dim, metric: metric, cols: colNames}
	a.mu.Unlock()
	return nil
}

func metricOpClass(m Metric) string {
	switch m {
	case MetricL2:
		return "vector_l2_ops"
	case MetricDot:
		return "vector_ip_ops"
	default:
		return "vector_cosine_ops"
	}
}

func metricOperator(m Metric) string {
	switch m {
	case MetricL2:
		return "<->"
	case MetricDot:
		return "<#>"
	default:
		return "<=>"
	}
}

func pgTypeFor(kind schema.ColumnKind) string {
	switch kind {
	case schema.KindInt64:
		return "bigint"
	case schema.KindInt32:
		return "integer"
	case schema.KindFloat64, schema.KindFloat32:
		return "double precision"
	default:
		return "text"
	}
}

func (a *PgVectorAdapter) handle(name string) (*tableHandle, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	h, ok := a.tables[name]
	return h, ok
}

// Upsert merge-inserts rows via Postgres's native ON CONFLICT primitive
// (the "backend supports a merge-insert primitive" branch of §4.3's
// upsert rule). The conflict target is the primary key on id created in
// CreateOrOpen; no separate index is created here.
func (a *PgVectorAdapter) Upsert(ctx context.Context, name string, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	h, ok := a.handle(name)
	if !ok {
		return fmt.Errorf("vectorstore: table %s not open: %w", name, errs.ErrNotFound)
	}
	ident, _ := tableIdent(name)

	metaCols := schema.Names(schema.VectorMetadataColumns())
	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, row := range rows {
		if len(row.Embedding) != h.dim {
			return fmt.Errorf("vectorstore: row %s has %d-dim embedding, table is %d: %w", row.ID, len(row.Embedding), h.dim, errs.ErrDimMismatch)
		}
		cols := []string{"id"}
		placeholders := []string{"$1"}
		args := []any{row.ID}
		i := 2
		for _, c := range metaCols {
			v, present := row.Metadata[c]
			if !present {
				continue
			}
			cols = append(cols, c)
			placeholders = append(placeholders, fmt.Sprintf("$%d", i))
			args = append(args, v)
			i++
		}
		cols = append(cols, "embedding")
		placeholders = append(placeholders, fmt.Sprintf("$%d::vector", i))
		args = append(args, vectorLiteral(row.Embedding))

		var setClauses []string
		for _, c := range cols[1:] {
			setClauses = append(setClauses, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
		}
		stmt := fmt.Sprintf(
			`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (id) DO UPDATE SET %s`,
			ident, strings.Join(cols, ","), strings.Join(placeholders, ","), strings.Join(setClauses, ","))
		if _, err := tx.Exec(ctx, stmt, args...); err != nil {
			return fmt.Errorf("vectorstore: upsert %s: %w", row.ID, err)
		}
	}
	return tx.Commit(ctx)
}

func vectorLiteral(v []float32) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.FormatFloat(float64(x), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// VectorSearch runs ANN search against name, ordering by the table's
// configured metric operator.
func (a *PgVectorAdapter) VectorSearch(ctx context.Context, name string, q []float32, opts SearchOptions) ([]SearchResult, error) {
	h, ok := a.handle(name)
	if !ok {
		return nil, fmt.Errorf("vectorstore: table %s not open: %w", name, errs.ErrNotFound)
	}
	if len(q) != h.dim {
		return nil, fmt.Errorf("vectorstore: query vector has %d dims, table is %d: %w", len(q), h.dim, errs.ErrDimMismatch)
	}
	if opts.K <= 0 {
		return []SearchResult{}, nil
	}
	ident, _ := tableIdent(name)
	op := metricOperator(h.metric)
	lit := vectorLiteral(q)

	columns := opts.Columns
	if len(columns) == 0 {
		columns = schema.FilterExisting(schema.VectorMetadataColumns(), schema.Names(schema.VectorMetadataColumns()))
	} else {
		columns = schema.FilterExisting(schema.VectorMetadataColumns(), columns)
	}

	args := []any{}
	selectCols := append([]string{"id"}, columns...)
	whereSQL := ""
	if opts.Where != "" {
		frag, whereArgs, err := parseWhere(opts.Where, 1)
		if err != nil {
			return nil, err
		}
		whereSQL = "WHERE " + frag
		args = append(args, whereArgs...)
	}

	stmt := fmt.Sprintf(
		`SELECT %s, embedding %s '%s'::vector AS _distance FROM %s %s ORDER BY _distance LIMIT %d`,
		strings.Join(selectCols, ","), op, lit, ident, whereSQL, opts.K)

	// SET LOCAL only affects statements in the same transaction as the
	// one that issued it (outside a transaction block it has no effect
	// at all), so the probes tuning and the search itself must run on
	// the same connection inside one transaction, not as two independent
	// pool.Exec/pool.Query calls that pgxpool may hand different
	// connections.
	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: search %s: begin: %w", name, err)
	}
	defer tx.Rollback(ctx)

	if opts.NProbes > 0 {
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL ivfflat.probes = %d", opts.NProbes)); err != nil {
			// Tuning is best-effort: the configured index kind may not
			// support this knob. Accepted, not fatal, per §4.3.
			_ = err
		}
	}

	rows, err := tx.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: search %s: %w", name, err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		r := SearchResult{Row: Row{Metadata: map[string]any{}}}
		r.ID, _ = vals[0].(string)
		for i, c := range columns {
			r.Metadata[c] = vals[i+1]
		}
		if d, ok := vals[len(vals)-1].(float64); ok {
			r.Distance = d
		}
		out = append(out, r)
	}
	if out == nil {
		out = []SearchResult{}
	}
	return out, rows.Err()
}

// Info returns the table's schema and row count.
func (a *PgVectorAdapter) Info(ctx context.Context, name string) (TableInfo, error) {
	h, ok := a.handle(name)
	if !ok {
		return TableInfo{}, fmt.Errorf("vectorstore: table %s not open: %w", name, errs.ErrNotFound)
	}
	ident, _ := tableIdent(name)
	var count int64
	if err := a.pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, ident)).Scan(&count); err != nil {
		return TableInfo{}, err
	}
	return TableInfo{Name: name, Dimension: h.dim, Metric: h.metric, RowCount: count, Columns: h.cols}, nil
}

// ListTables returns the names of every table opened by this adapter
// instance (the process-local cache, per §5).
func (a *PgVectorAdapter) ListTables(ctx context.Context) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	names := make([]string, 0, len(a.tables))
	for n := range a.tables {
		names = append(names, n)
	}
	return names, nil
}

// Optimize runs VACUUM ANALYZE on the table, matching the donor's
// compaction step, and invalidates this adapter's cached metadata column
// list so the next read picks up any catalog-driven additive column.
func (a *PgVectorAdapter) Optimize(ctx context.Context, name string) error {
	if _, ok := a.handle(name); !ok {
		return fmt.Errorf("vectorstore: table %s not open: %w", name, errs.ErrNotFound)
	}
	ident, _ := tableIdent(name)
	if _, err := a.pool.Exec(ctx, fmt.Sprintf(`VACUUM ANALYZE %s`, ident)); err != nil {
		return fmt.Errorf("vectorstore: optimize %s: %w", name, err)
	}
	a.invalidate(name)
	return nil
}

func (a *PgVectorAdapter) invalidate(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if h, ok := a.tables[name]; ok {
		h.cols = schema.Names(schema.VectorSchemaColumns())
	}
}

// DeleteWhere removes rows matching expr and returns pre/post row counts,
// computed in the same transaction as the delete.
func (a *PgVectorAdapter) DeleteWhere(ctx context.Context, name string, expr string) (DeleteResult, error) {
	if _, ok := a.handle(name); !ok {
		return DeleteResult{}, fmt.Errorf("vectorstore: table %s not open: %w", name, errs.ErrNotFound)
	}
	ident, _ := tableIdent(name)
	frag, args, err := parseWhere(expr, 1)
	if err != nil {
		return DeleteResult{}, err
	}
	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return DeleteResult{}, err
	}
	defer tx.Rollback(ctx)

	var before int64
	if err := tx.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, ident)).Scan(&before); err != nil {
		return DeleteResult{}, err
	}
	deleteSQL := fmt.Sprintf(`DELETE FROM %s`, ident)
	if frag != "" {
		deleteSQL += " WHERE " + frag
	}
	if _, err := tx.Exec(ctx, deleteSQL, args...); err != nil {
		return DeleteResult{}, fmt.Errorf("vectorstore: delete %s: %w", name, err)
	}
	var after int64
	if err := tx.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, ident)).Scan(&after); err != nil {
		return DeleteResult{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return DeleteResult{}, err
	}
	a.invalidate(name)
	return DeleteResult{RowsBefore: before, RowsAfter: after}, nil
}

// ExportJsonl pages through the table with offset pagination, calling emit
// once per row, honoring opts.PageSize and opts.MaxRows.
func (a *PgVectorAdapter) ExportJsonl(ctx context.Context, name string, opts ExportOptions, emit func(Row) error) (int, error) {
	if _, ok := a.handle(name); !ok {
		return 0, fmt.Errorf("vectorstore: table %s not open: %w", name, errs.ErrNotFound)
	}
	ident, _ := tableIdent(name)
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 500
	}
	metaCols := schema.Names(schema.VectorMetadataColumns())
	selectCols := append([]string{"id"}, metaCols...)

	var total int
	offset := 0
	for {
		if opts.MaxRows > 0 && total >= opts.MaxRows {
			break
		}
		limit := pageSize
		if opts.MaxRows > 0 && total+limit > opts.MaxRows {
			limit = opts.MaxRows - total
		}
		stmt := fmt.Sprintf(`SELECT %s FROM %s ORDER BY id LIMIT %d OFFSET %d`, strings.Join(selectCols, ","), ident, limit, offset)
		rows, err := a.pool.Query(ctx, stmt)
		if err != nil {
			return total, err
		}
		n := 0
		for rows.Next() {
			vals, err := rows.Values()
			if err != nil {
				rows.Close()
				return total, err
			}
			r := Row{Metadata: map[string]any{}}
			r.ID, _ = vals[0].(string)
			for i, c := range metaCols {
				r.Metadata[c] = vals[i+1]
			}
			if err := emit(r); err != nil {
				rows.Close()
				return total, err
			}
			n++
		}
		rows.Close()
		total += n
		offset += n
		if n < limit {
			break
		}
	}
	return total, nil
}

