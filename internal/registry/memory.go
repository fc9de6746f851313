package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nucleus/tileindex/internal/errs"
)

// MemoryStore is an in-process Store used by tests and by the local
// single-instance deployment mode; it has the same transition-validation
// and additive-schema semantics as PostgresStore without a database.
type MemoryStore struct {
	mu    sync.Mutex
	tiles map[string]Tile
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tiles: make(map[string]Tile)}
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) UpsertTiles(ctx context.Context, tiles []Tile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tiles {
		if t.Status == "" {
			t.Status = StatusReadyForIndexing
		}
		s.tiles[t.TileID] = t
	}
	return nil
}

func (s *MemoryStore) ListByStatus(ctx context.Context, status Status, limit, offset int) ([]Tile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matches []Tile
	for _, t := range s.tiles {
		if t.Status == status {
			matches = append(matches, t)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].TileID < matches[j].TileID })
	if limit <= 0 {
		limit = 100
	}
	if offset >= len(matches) {
		return []Tile{}, nil
	}
	end := offset + limit
	if end > len(matches) {
		end = len(matches)
	}
	return append([]Tile{}, matches[offset:end]...), nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, ids []string, status Status) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate the whole batch first so a single illegal transition does
	// not leave other rows in the batch half-applied.
	for _, id := range ids {
		t, ok := s.tiles[id]
		if !ok {
			continue
		}
		if t.Status == status {
			continue
		}
		if !CanTransition(t.Status, status) {
			return 0, errs.ErrInvalidState
		}
	}

	var changed int64
	now := time.Now().Unix()
	for _, id := range ids {
		t, ok := s.tiles[id]
		if !ok || t.Status == status {
			continue
		}
		t.Status = status
		if status == StatusIndexed {
			t.IndexedAt = &now
		} else {
			t.IndexedAt = nil
		}
		s.tiles[id] = t
		changed++
	}
	return changed, nil
}

func (s *MemoryStore) Get(ctx context.Context, tileID string) (Tile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tiles[tileID]
	if !ok {
		return Tile{}, errs.ErrNotFound
	}
	return t, nil
}

func (s *MemoryStore) Delete(ctx context.Context, ids []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, id := range ids {
		if _, ok := s.tiles[id]; ok {
			delete(s.tiles, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) StatusCounts(ctx context.Context) (StatusCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := StatusCounts{}
	for _, t := range s.tiles {
		out[t.Status]++
	}
	return out, nil
}

func (s *MemoryStore) ListExpired(ctx context.Context, cutoffEpoch int64, limit int) ([]Tile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matches []Tile
	for _, t := range s.tiles {
		if t.IndexedAt != nil && *t.IndexedAt <= cutoffEpoch {
			matches = append(matches, t)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].TileID < matches[j].TileID })
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}
