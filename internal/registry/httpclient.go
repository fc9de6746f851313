package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/nucleus/tileindex/internal/errs"
)

// HTTPClient implements Store by calling a remote registry Server over
// the §6 HTTP surface. It is what the scheduler, embedder worker, and
// maintenance workflow activities use to reach the registry when it runs
// as its own process rather than being embedded in-process.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient returns a Store backed by the registry service at baseURL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{baseURL: baseURL, client: &http.Client{Timeout: 30 * time.Second}}
}

func (c *HTTPClient) Close() error { return nil }

func (c *HTTPClient) UpsertTiles(ctx context.Context, tiles []Tile) error {
	body, err := json.Marshal(map[string]any{"tiles": tiles})
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, "/tiles/batch", body, nil)
}

func (c *HTTPClient) ListByStatus(ctx context.Context, status Status, limit, offset int) ([]Tile, error) {
	q := url.Values{}
	q.Set("status", string(status))
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	var out struct {
		Tiles []Tile `json:"tiles"`
	}
	if err := c.do(ctx, http.MethodGet, "/tiles?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out.Tiles, nil
}

func (c *HTTPClient) UpdateStatus(ctx context.Context, ids []string, status Status) (int64, error) {
	body, err := json.Marshal(map[string]any{"ids": ids, "status": status})
	if err != nil {
		return 0, err
	}
	var out struct {
		Changed int64 `json:"changed"`
	}
	if err := c.do(ctx, http.MethodPost, "/tiles/batch/status", body, &out); err != nil {
		return 0, err
	}
	return out.Changed, nil
}

func (c *HTTPClient) Get(ctx context.Context, tileID string) (Tile, error) {
	var t Tile
	err := c.do(ctx, http.MethodGet, "/tiles/"+url.PathEscape(tileID), nil, &t)
	return t, err
}

func (c *HTTPClient) Delete(ctx context.Context, ids []string) (int64, error) {
	var total int64
	for _, id := range ids {
		var out struct {
			Deleted int64 `json:"deleted"`
		}
		if err := c.do(ctx, http.MethodDelete, "/tiles/"+url.PathEscape(id), nil, &out); err != nil {
			return total, err
		}
		total += out.Deleted
	}
	return total, nil
}

func (c *HTTPClient) StatusCounts(ctx context.Context) (StatusCounts, error) {
	var out StatusCounts
	if err := c.do(ctx, http.MethodGet, "/tiles/status/counts", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListExpired has no route of its own on the HTTP surface (§6 lists no
// such route). It fetches one page, ListByStatus(StatusIndexed, limit, 0),
// and keeps the tiles whose IndexedAt is at or before cutoffEpoch; expired
// tiles beyond that first page are not returned. The maintenance worker
// reaches the registry through this client.
func (c *HTTPClient) ListExpired(ctx context.Context, cutoffEpoch int64, limit int) ([]Tile, error) {
	tiles, err := c.ListByStatus(ctx, StatusIndexed, limit, 0)
	if err != nil {
		return nil, err
	}
	out := make([]Tile, 0, len(tiles))
	for _, t := range tiles {
		if t.IndexedAt != nil && *t.IndexedAt <= cutoffEpoch {
			out = append(out, t)
		}
		if len(out) >= limit && limit > 0 {
			break
		}
	}
	return out, nil
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
		return fmt.Errorf("registry: request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return errs.ErrNotFound
	}
	if resp.StatusCode == http.StatusBadRequest {
		var e struct {
			Kind string `json:"error_kind"`
			Msg  string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Kind == "invalid_state" {
			return fmt.Errorf("registry: %s: %w", e.Msg, errs.ErrInvalidState)
		}
		return fmt.Errorf("registry: %s", e.Msg)
	}
	if resp.StatusCode >= 300 {
		var e struct {
			Msg string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("registry: %s %s: status=%d %s", method, path, resp.StatusCode, e.Msg)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
