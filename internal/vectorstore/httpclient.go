package vectorstore

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nucleus/tileindex/internal/errs"
)

// HTTPClient implements Adapter by calling a remote vector index Server
// over the §6 HTTP surface. The embedder worker, retriever, and
// maintenance workflow activities use this when the vector index runs
// as its own process.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient returns an Adapter backed by the vector index service at
// baseURL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{baseURL: baseURL, client: &http.Client{Timeout: 60 * time.Second}}
}

func (c *HTTPClient) Close() error { return nil }

func (c *HTTPClient) CreateOrOpen(ctx context.Context, name string, dim int, metric Metric) error {
	// The HTTP surface folds create-or-open into the upsert call (§6); a
	// zero-row upsert would be rejected (400) so callers that only need
	// to ensure the table exists should rely on the first real upsert.
	// This method exists to satisfy the Adapter interface and is a no-op
	// here: the remote server creates tables lazily on first upsert.
	return nil
}

func (c *HTTPClient) Upsert(ctx context.Context, name string, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	dim := len(rows[0].Embedding)
	body, err := json.Marshal(upsertRequest{Rows: rows, Dimension: dim, Metric: MetricCosine})
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, "/tables/"+name+"/upsert", body, nil)
}

func (c *HTTPClient) VectorSearch(ctx context.Context, name string, q []float32, opts SearchOptions) ([]SearchResult, error) {
	body, err := json.Marshal(searchRequest{
		Query: q, K: opts.K, Where: opts.Where, Columns: opts.Columns,
		NProbes: opts.NProbes, RefineFactor: opts.RefineFactor,
	})
	if err != nil {
		return nil, err
	}
	var out struct {
		Results []SearchResult `json:"results"`
	}
	if err := c.do(ctx, http.MethodPost, "/tables/"+name+"/search", body, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

func (c *HTTPClient) Info(ctx context.Context, name string) (TableInfo, error) {
	var info TableInfo
	err := c.do(ctx, http.MethodGet, "/tables/"+name+"/info", nil, &info)
	return info, err
}

func (c *HTTPClient) ListTables(ctx context.Context) ([]string, error) {
	var out struct {
		Tables []string `json:"tables"`
	}
	if err := c.do(ctx, http.MethodGet, "/tables", nil, &out); err != nil {
		return nil, err
	}
	return out.Tables, nil
}

func (c *HTTPClient) Optimize(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodPost, "/tables/"+name+"/optimize", []byte("{}"), nil)
}

func (c *HTTPClient) DeleteWhere(ctx context.Context, name string, expr string) (DeleteResult, error) {
	body, err := json.Marshal(map[string]string{"where": expr})
	if err != nil {
		return DeleteResult{}, err
	}
	var out DeleteResult
	err = c.do(ctx, http.MethodPost, "/tables/"+name+"/delete", body, &out)
	return out, err
}

func (c *HTTPClient) ExportJsonl(ctx context.Context, name string, opts ExportOptions, emit func(Row) error) (int, error) {
	body, err := json.Marshal(map[string]int{"page_size": opts.PageSize, "max_rows": opts.MaxRows})
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tables/"+name+"/export", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("vectorstore: export %s: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return 0, errs.ErrNotFound
	}
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	n := 0
	for scanner.Scan() {
		var row Row
		if err := json.Unmarshal(scanner.Bytes(), &row); err != nil {
			return n, err
		}
		if err := emit(row); err != nil {
			return n, err
		}
		n++
	}
	return n, scanner.Err()
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("vectorstore: request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return errs.ErrNotFound
	}
	if resp.StatusCode >= 300 {
		var e struct {
			Kind string `json:"error_kind"`
			Msg  string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		switch e.Kind {
		case "schema_conflict":
			return fmt.Errorf("vectorstore: %s: %w", e.Msg, errs.ErrSchemaConflict)
		case "dim_mismatch":
			return fmt.Errorf("vectorstore: %s: %w", e.Msg, errs.ErrDimMismatch)
		}
		return fmt.Errorf("vectorstore: %s %s: status=%d %s", method, path, resp.StatusCode, e.Msg)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
