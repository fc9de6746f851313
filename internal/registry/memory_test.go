package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nucleus/tileindex/internal/errs"
)

func TestMemoryStoreUpsertAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.UpsertTiles(ctx, []Tile{{TileID: "t1", ImageID: 1, ImagePath: "/x.png"}}))
	got, err := s.Get(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, StatusReadyForIndexing, got.Status)

	_, err = s.Get(ctx, "missing")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestMemoryStoreUpdateStatusRejectsIllegalTransition(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.UpsertTiles(ctx, []Tile{{TileID: "t1", ImageID: 1, ImagePath: "/x.png", Status: StatusReadyForIndexing}}))

	_, err := s.UpdateStatus(ctx, []string{"t1"}, StatusWaitingForIndex)
	require.ErrorIs(t, err, errs.ErrInvalidState)

	n, err := s.UpdateStatus(ctx, []string{"t1"}, StatusInProcess)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestMemoryStoreUpdateStatusIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.UpsertTiles(ctx, []Tile{{TileID: "t1", ImageID: 1, ImagePath: "/x.png", Status: StatusInProcess}}))

	n, err := s.UpdateStatus(ctx, []string{"t1"}, StatusInProcess)
	require.NoError(t, err)
	require.Equal(t, int64(0), n, "repeating the current status should report 0 changed")
}

func TestMemoryStoreUpdateStatusSetsIndexedAt(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.UpsertTiles(ctx, []Tile{{TileID: "t1", ImageID: 1, ImagePath: "/x.png", Status: StatusWaitingForIndex}}))

	_, err := s.UpdateStatus(ctx, []string{"t1"}, StatusIndexed)
	require.NoError(t, err)
	got, err := s.Get(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, got.IndexedAt)
}

func TestMemoryStoreListExpired(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	old := int64(100)
	recent := int64(100000)
	require.NoError(t, s.UpsertTiles(ctx, []Tile{
		{TileID: "old", ImageID: 1, ImagePath: "/x.png", Status: StatusIndexed, IndexedAt: &old},
		{TileID: "recent", ImageID: 2, ImagePath: "/y.png", Status: StatusIndexed, IndexedAt: &recent},
	}))

	expired, err := s.ListExpired(ctx, 1000, 10)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	require.Equal(t, "old", expired[0].TileID)
}

func TestMemoryStoreStatusCounts(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.UpsertTiles(ctx, []Tile{
		{TileID: "a", ImageID: 1, ImagePath: "/x.png", Status: StatusReadyForIndexing},
		{TileID: "b", ImageID: 2, ImagePath: "/y.png", Status: StatusReadyForIndexing},
		{TileID: "c", ImageID: 3, ImagePath: "/z.png", Status: StatusIndexed},
	}))
	counts, err := s.StatusCounts(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), counts[StatusReadyForIndexing])
	require.Equal(t, int64(1), counts[StatusIndexed])
}
