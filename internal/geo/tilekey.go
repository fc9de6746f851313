// Package geo provides canonical tile identity and WKT polygon helpers
// shared by the registry, embedder, and retriever.
package geo

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// TileKey identifies a tile independent of any particular storage row.
type TileKey struct {
	Source  string
	Z       int
	X       int
	Y       int
	Variant string
}

// CanonicalTileID renders the stable, deterministic tile_id for k.
// Two keys produce the same id iff they are equal field-by-field.
func CanonicalTileID(k TileKey) string {
	id := fmt.Sprintf("%s:%d/%d/%d:%s", k.Source, k.Z, k.X, k.Y, k.Variant)
	return strings.TrimRight(id, ":")
}

// TileIDHash returns a fixed-length short form of id, suitable for
// filenames or index partitioning.
func TileIDHash(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])[:16]
}
