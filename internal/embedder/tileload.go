package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"os"
)

// TileLoader materializes the pixel bytes for one message. It is the
// tagged-variant boundary described in the design notes: the concrete
// variant (LocalFile | RasterWindow | Synthetic) is picked from
// tile_store plus the presence of image_path vs raster_path+pixel_polygon,
// not from a union type.
type TileLoader interface {
	Load(ctx context.Context, m Message) ([]byte, error)
}

// MultiLoader dispatches to the loader registered for a message's
// tile_store tag, defaulting to the local-file loader when tile_store is
// empty (matching the donor convention that an unset store tag means
// "decoded file already on disk").
type MultiLoader struct {
	byStore map[string]TileLoader
	fallback TileLoader
}

// NewMultiLoader builds the default dispatch table: "local" and ""
// (unset) read image_path directly; "orthophoto" and "strip" read the
// containing raster (cropping itself is a generator concern, out of
// scope per §1); "synthetic" fabricates deterministic bytes for tests
// and demos that never touch a real file.
func NewMultiLoader() *MultiLoader {
	local := &LocalFileLoader{}
	raster := &RasterWindowLoader{}
	synthetic := &SyntheticLoader{}
	return &MultiLoader{
		byStore: map[string]TileLoader{
			"":           local,
			"local":      local,
			"orthophoto": raster,
			"strip":      raster,
			"synthetic":  synthetic,
		},
		fallback: local,
	}
}

func (l *MultiLoader) Load(ctx context.Context, m Message) ([]byte, error) {
	loader, ok := l.byStore[m.TileStore]
	if !ok {
		loader = l.fallback
	}
	return loader.Load(ctx, m)
}

// LocalFileLoader reads a fully decoded image file from disk.
type LocalFileLoader struct{}

func (LocalFileLoader) Load(ctx context.Context, m Message) ([]byte, error) {
	if m.ImagePath == "" {
		return nil, fmt.Errorf("embedder: local loader requires image_path")
	}
	return readFileWithContext(ctx, m.ImagePath)
}

// RasterWindowLoader reads the raster file a tile window is cut from.
// Actual pixel-level cropping against pixel_polygon is the tile
// generator's job (§1 out of scope); this loader's contract is only to
// produce bytes the configured embedder can turn into a vector, so it
// reads the raster file whole and relies on the embedder provider (or a
// downstream real deployment's raster library) to interpret it.
type RasterWindowLoader struct{}

func (RasterWindowLoader) Load(ctx context.Context, m Message) ([]byte, error) {
	if m.RasterPath == "" || m.PixelPolygon == "" {
		return nil, fmt.Errorf("embedder: raster loader requires raster_path and pixel_polygon")
	}
	return readFileWithContext(ctx, m.RasterPath)
}

// SyntheticLoader fabricates deterministic bytes from the message's
// identity fields, for catalog (COCO/DOTA) style tiles and tests that
// never touch a filesystem.
type SyntheticLoader struct{}

func (SyntheticLoader) Load(_ context.Context, m Message) ([]byte, error) {
	h := sha256.New()
	var idBuf [8]byte
	binary.BigEndian.PutUint64(idBuf[:], uint64(m.ImageID))
	h.Write(idBuf[:])
	h.Write([]byte(m.TileID))
	h.Write([]byte(m.Source))
	return h.Sum(nil), nil
}

func readFileWithContext(ctx context.Context, path string) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("embedder: read %s: %w", path, err)
	}
	return data, nil
}
