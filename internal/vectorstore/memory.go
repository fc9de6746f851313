package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/nucleus/tileindex/internal/errs"
)

// memTable mirrors tableHandle plus the actual row data, for the
// in-memory Adapter used by tests.
type memTable struct {
	dim    int
	metric Metric
	rows   map[string]Row
}

// MemoryAdapter implements Adapter entirely in process, exercising the
// same upsert/search/delete/export semantics as PgVectorAdapter without a
// database, so unit tests don't need a live Postgres instance.
type MemoryAdapter struct {
	mu     sync.Mutex
	tables map[string]*memTable
}

// NewMemoryAdapter returns an empty MemoryAdapter.
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{tables: make(map[string]*memTable)}
}

func (a *MemoryAdapter) Close() error { return nil }

func (a *MemoryAdapter) CreateOrOpen(ctx context.Context, name string, dim int, metric Metric) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if t, ok := a.tables[name]; ok {
		if t.dim != dim {
			return fmt.Errorf("vectorstore: table %s has dimension %d, requested %d: %w", name, t.dim, dim, errs.ErrSchemaConflict)
		}
		return nil
	}
	a.tables[name] = &memTable{dim: dim, metric: metric, rows: make(map[string]Row)}
	return nil
}

func (a *MemoryAdapter) Upsert(ctx context.Context, name string, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	t, ok := a.tables[name]
	if !ok {
		return fmt.Errorf("vectorstore: table %s not open: %w", name, errs.ErrNotFound)
	}
	for _, r := range rows {
		if len(r.Embedding) != t.dim {
			return fmt.Errorf("vectorstore: row %s has %d-dim embedding, table is %d: %w", r.ID, len(r.Embedding), t.dim, errs.ErrDimMismatch)
		}
		cp := r
		cp.Embedding = append([]float32(nil), r.Embedding...)
		t.rows[r.ID] = cp
	}
	return nil
}

func (a *MemoryAdapter) VectorSearch(ctx context.Context, name string, q []float32, opts SearchOptions) ([]SearchResult, error) {
	a.mu.Lock()
	t, ok := a.tables[name]
	a.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("vectorstore: table %s not open: %w", name, errs.ErrNotFound)
	}
	if len(q) != t.dim {
		return nil, fmt.Errorf("vectorstore: query vector has %d dims, table is %d: %w", len(q), t.dim, errs.ErrDimMismatch)
	}
	if opts.K <= 0 {
		return []SearchResult{}, nil
	}

	var matched []Row
	for _, r := range t.rows {
		if opts.Where != "" && !matchesSimpleWhere(r, opts.Where) {
			continue
		}
		matched = append(matched, r)
	}

	results := make([]SearchResult, 0, len(matched))
	for _, r := range matched {
		results = append(results, SearchResult{Row: r, Distance: cosineDistance(q, r.Embedding)})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	if len(results) > opts.K {
		results = results[:opts.K]
	}
	return results, nil
}

func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	cos := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return 1 - cos
}

// matchesSimpleWhere evaluates expr in-process against row metadata. It
// takes the column named before the first " IN ", ">=", "<=" or "=" in
// expr and reports whether that column's value equals one of the values
// parseWhere parsed, so comparison operators are matched by equality; a
// row without the column does not match. An expr that parseWhere rejects,
// or that has none of those operators, matches every row.
func matchesSimpleWhere(r Row, expr string) bool {
	_, args, err := parseWhere(expr, 1)
	if err != nil {
		return true
	}
	// Re-derive the column name from the original expr rather than the
	// rendered SQL fragment, since this path never touches a database.
	for _, op := range []string{" IN ", ">=", "<=", "="} {
		if idxCol := strings.Index(strings.ToUpper(expr), op); idxCol > 0 {
			col := strings.TrimSpace(expr[:idxCol])
			v, ok := r.Metadata[col]
			if !ok {
				return false
			}
			return scalarMatches(v, args)
		}
	}
	return true
}

func scalarMatches(v any, args []any) bool {
	for _, a := range args {
		if fmt.Sprint(v) == fmt.Sprint(a) {
			return true
		}
	}
	return false
}

func (a *MemoryAdapter) Info(ctx context.Context, name string) (TableInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	t, ok := a.tables[name]
	if !ok {
		return TableInfo{}, fmt.Errorf("vectorstore: table %s not open: %w", name, errs.ErrNotFound)
	}
	return TableInfo{Name: name, Dimension: t.dim, Metric: t.metric, RowCount: int64(len(t.rows))}, nil
}

func (a *MemoryAdapter) ListTables(ctx context.Context) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	names := make([]string, 0, len(a.tables))
	for n := range a.tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (a *MemoryAdapter) Optimize(ctx context.Context, name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.tables[name]; !ok {
		return fmt.Errorf("vectorstore: table %s not open: %w", name, errs.ErrNotFound)
	}
	return nil
}

func (a *MemoryAdapter) DeleteWhere(ctx context.Context, name string, expr string) (DeleteResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	t, ok := a.tables[name]
	if !ok {
		return DeleteResult{}, fmt.Errorf("vectorstore: table %s not open: %w", name, errs.ErrNotFound)
	}
	before := int64(len(t.rows))
	for id, r := range t.rows {
		if matchesSimpleWhere(r, expr) {
			delete(t.rows, id)
		}
	}
	return DeleteResult{RowsBefore: before, RowsAfter: int64(len(t.rows))}, nil
}

func (a *MemoryAdapter) ExportJsonl(ctx context.Context, name string, opts ExportOptions, emit func(Row) error) (int, error) {
	a.mu.Lock()
	t, ok := a.tables[name]
	a.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("vectorstore: table %s not open: %w", name, errs.ErrNotFound)
	}
	ids := make([]string, 0, len(t.rows))
	for id := range t.rows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if opts.MaxRows > 0 && len(ids) > opts.MaxRows {
		ids = ids[:opts.MaxRows]
	}
	for i, id := range ids {
		if err := emit(t.rows[id]); err != nil {
			return i, err
		}
	}
	return len(ids), nil
}
