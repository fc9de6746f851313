// Package registry implements the tile registry (C1): durable metadata and
// lifecycle state for every tile.
package registry

// Status is a tile's position in the indexing lifecycle (§4.1).
type Status string

const (
	StatusReadyForIndexing     Status = "READY_FOR_INDEXING"
	StatusInProcess            Status = "IN_PROCESS"
	StatusWaitingForEmbedding  Status = "WAITING_FOR_EMBEDDING"
	StatusWaitingForIndex      Status = "WAITING_FOR_INDEX"
	StatusIndexed              Status = "INDEXED"
	StatusFailed               Status = "FAILED"
)

// Terminal reports whether s has no outgoing transitions other than a
// re-index (INDEXED) or none at all (FAILED).
func (s Status) Terminal() bool {
	return s == StatusIndexed || s == StatusFailed
}

// transitions enumerates the DAG in §4.1. A transition not listed here,
// and not a same-state no-op, is InvalidState.
var transitions = map[Status]map[Status]bool{
	StatusReadyForIndexing:    {StatusInProcess: true, StatusFailed: true},
	StatusInProcess:           {StatusWaitingForEmbedding: true, StatusFailed: true},
	StatusWaitingForEmbedding: {StatusWaitingForIndex: true, StatusFailed: true},
	StatusWaitingForIndex:     {StatusIndexed: true, StatusFailed: true},
	StatusIndexed:             {StatusReadyForIndexing: true},
	StatusFailed:              {},
}

// CanTransition reports whether moving from 'from' to 'to' is legal.
// Repeating the current status is always legal (idempotent no-op).
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	return transitions[from][to]
}

// Tile is one row of the tile registry (§3).
type Tile struct {
	TileID        string  `json:"tile_id"`
	ImageID       int64   `json:"image_id"`
	Source        string  `json:"source,omitempty"`
	TileStore     string  `json:"tile_store,omitempty"`
	ImagePath     string  `json:"image_path,omitempty"`
	RasterPath    string  `json:"raster_path,omitempty"`
	PixelPolygon  string  `json:"pixel_polygon,omitempty"`
	GeoPolygon    string  `json:"geo_polygon,omitempty"`
	Lat           *float64 `json:"lat,omitempty"`
	Lon           *float64 `json:"lon,omitempty"`
	UTMZone       string  `json:"utm_zone,omitempty"`
	Width         int32   `json:"width,omitempty"`
	Height        int32   `json:"height,omitempty"`
	Status        Status  `json:"status"`
	IndexedAt     *int64  `json:"indexed_at,omitempty"`
	EmbedderModel string  `json:"embedder_model,omitempty"`
}

// Validate checks invariant #2: at least one of image_path, or
// (raster_path + pixel_polygon), must be present.
func (t Tile) Validate() error {
	if t.TileID == "" {
		return errTileIDRequired
	}
	if t.ImagePath != "" {
		return nil
	}
	if t.RasterPath != "" && t.PixelPolygon != "" {
		return nil
	}
	return errMissingPixelSource
}
