// Package schema is the single source of truth for tile registry columns
// and vector-row metadata columns. Every storage adapter builds its DDL or
// its Arrow-like schema from this catalog instead of hard-coding names.
package schema

// ColumnKind is the logical type of a catalog column, independent of the
// storage engine that ultimately renders it.
type ColumnKind int

const (
	KindString ColumnKind = iota
	KindInt64
	KindInt32
	KindFloat64
	KindFloat32
)

// Column describes one field shared by the tile registry and the vector
// tables. Nullable mirrors the Arrow-like schema rule in the vector store:
// every metadata column is nullable, the embedding column never is.
type Column struct {
	Name     string
	Kind     ColumnKind
	Nullable bool
}

// TileColumns lists every column of the Tile entity (C1 §3), in storage
// order. tile_id is always first because it is the primary key.
var TileColumns = []Column{
	{Name: "tile_id", Kind: KindString, Nullable: false},
	{Name: "image_id", Kind: KindInt64, Nullable: false},
	{Name: "source", Kind: KindString, Nullable: true},
	{Name: "tile_store", Kind: KindString, Nullable: true},
	{Name: "image_path", Kind: KindString, Nullable: true},
	{Name: "raster_path", Kind: KindString, Nullable: true},
	{Name: "pixel_polygon", Kind: KindString, Nullable: true},
	{Name: "geo_polygon", Kind: KindString, Nullable: true},
	{Name: "lat", Kind: KindFloat64, Nullable: true},
	{Name: "lon", Kind: KindFloat64, Nullable: true},
	{Name: "utm_zone", Kind: KindString, Nullable: true},
	{Name: "width", Kind: KindInt32, Nullable: true},
	{Name: "height", Kind: KindInt32, Nullable: true},
	{Name: "status", Kind: KindString, Nullable: false},
	{Name: "indexed_at", Kind: KindInt64, Nullable: true},
	{Name: "embedder_model", Kind: KindString, Nullable: true},
}

// VectorMetadataColumns are the Tile columns projected onto a vector row,
// plus the run/embedder discriminators that only exist on vector rows.
// This is the default projection for vectorSearch per §4.3.
var VectorMetadataColumns = []Column{
	{Name: "image_path", Kind: KindString, Nullable: true},
	{Name: "image_id", Kind: KindInt64, Nullable: true},
	{Name: "width", Kind: KindInt32, Nullable: true},
	{Name: "height", Kind: KindInt32, Nullable: true},
	{Name: "run_id", Kind: KindString, Nullable: true},
	{Name: "tile_id", Kind: KindString, Nullable: true},
	{Name: "source", Kind: KindString, Nullable: true},
	{Name: "raster_path", Kind: KindString, Nullable: true},
	{Name: "pixel_polygon", Kind: KindString, Nullable: true},
	{Name: "geo_polygon", Kind: KindString, Nullable: true},
	{Name: "lat", Kind: KindFloat64, Nullable: true},
	{Name: "lon", Kind: KindFloat64, Nullable: true},
	{Name: "utm_zone", Kind: KindString, Nullable: true},
	{Name: "tile_store", Kind: KindString, Nullable: true},
	{Name: "embedder_backend", Kind: KindString, Nullable: true},
	{Name: "embedder_model", Kind: KindString, Nullable: true},
}

// VectorSchemaColumns is VectorMetadataColumns prefixed with the row id,
// mirroring the original VECTOR_SCHEMA_COLUMNS = (id, *VECTOR_METADATA_COLUMNS).
func VectorSchemaColumns() []Column {
	out := make([]Column, 0, len(VectorMetadataColumns)+1)
	out = append(out, Column{Name: "id", Kind: KindString, Nullable: false})
	out = append(out, VectorMetadataColumns...)
	return out
}

// Names returns the column names in catalog order.
func Names(cols []Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}

// Contains reports whether name appears in cols.
func Contains(cols []Column, name string) bool {
	for _, c := range cols {
		if c.Name == name {
			return true
		}
	}
	return false
}

// FilterExisting keeps only the names that are present in cols, preserving
// the order of names. Used by vectorSearch's default-projection rule:
// "filtered to what exists" (§4.3).
func FilterExisting(cols []Column, names []string) []string {
	allowed := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		allowed[c.Name] = struct{}{}
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := allowed[n]; ok {
			out = append(out, n)
		}
	}
	return out
}
