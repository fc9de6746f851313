// Package embedder implements the embedder worker (C5): it consumes
// scheduler-published envelopes, loads tile pixels through a bounded
// decode pool, coalesces them into batches by (embedder_backend,
// embedder_model), embeds each batch in one model call, and upserts the
// resulting vectors with exactly-once-by-id semantics before acking.
package embedder

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nucleus/tileindex/internal/errs"
)

// ErrPoisonMessage wraps errs.ErrPoisonPayload with the specific reason a
// payload failed validation, so the worker can log once and ack rather
// than retry.
var ErrPoisonMessage = errs.ErrPoisonPayload

// Message is the wire shape published by the scheduler (§6). Unknown
// fields are ignored by json.Unmarshal. ImageID, Width, and Height are
// always required; unless TileStore is "synthetic", either ImagePath or
// both RasterPath and PixelPolygon are required as well.
type Message struct {
	ImageID       int64   `json:"image_id"`
	TileID        string  `json:"tile_id,omitempty"`
	Source        string  `json:"source,omitempty"`
	TileStore     string  `json:"tile_store,omitempty"`
	ImagePath     string  `json:"image_path,omitempty"`
	RasterPath    string  `json:"raster_path,omitempty"`
	PixelPolygon  string  `json:"pixel_polygon,omitempty"`
	GeoPolygon    string  `json:"geo_polygon,omitempty"`
	Width         int32   `json:"width"`
	Height        int32   `json:"height"`
	OutWidth      int32   `json:"out_width,omitempty"`
	OutHeight     int32   `json:"out_height,omitempty"`
	Lat           *float64 `json:"lat,omitempty"`
	Lon           *float64 `json:"lon,omitempty"`
	UTMZone       string  `json:"utm_zone,omitempty"`
	EmbedderBackend string `json:"embedder_backend,omitempty"`
	EmbedderModel string  `json:"embedder_model,omitempty"`
	RunID         string  `json:"run_id,omitempty"`
}

// ParseMessage decodes payload, returning ErrPoisonMessage wrapped with
// context when the JSON is malformed or a required field is absent.
func ParseMessage(payload []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(payload, &m); err != nil {
		return Message{}, wrapPoison("decode message: " + err.Error())
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}

// Validate checks the §6 required field set and that the tile_store, if
// present, names a loader this worker knows about.
func (m Message) Validate() error {
	if m.ImageID == 0 {
		return wrapPoison("image_id is required")
	}
	if m.Width <= 0 || m.Height <= 0 {
		return wrapPoison("width and height must be positive")
	}
	if m.TileStore != "synthetic" && m.ImagePath == "" && (m.RasterPath == "" || m.PixelPolygon == "") {
		return wrapPoison("one of image_path, or raster_path+pixel_polygon, is required")
	}
	switch m.TileStore {
	case "", "orthophoto", "local", "synthetic", "strip":
	default:
		return wrapPoison("unknown tile_store: " + m.TileStore)
	}
	return nil
}

func wrapPoison(reason string) error {
	return fmt.Errorf("%s: %w", reason, ErrPoisonMessage)
}

// SplitBackendModel separates an "embedder_model" routing value of the
// form "backend:model" into its two parts. A value with no colon is its
// own backend and model (matching the scheduler router's convention).
func SplitBackendModel(embedderModel string) (backend, model string) {
	if embedderModel == "" {
		return "", ""
	}
	if idx := strings.Index(embedderModel, ":"); idx >= 0 {
		return embedderModel[:idx], embedderModel[idx+1:]
	}
	return embedderModel, embedderModel
}

// TableName derives the physical vector-table name for a (backend, model)
// pair, one table per combination in the reference deployment (§6).
func TableName(backend, model string) string {
	raw := backend
	if model != "" && model != backend {
		raw = backend + "_" + model
	}
	if raw == "" {
		raw = "default"
	}
	return sanitizeTableName(raw)
}

func sanitizeTableName(s string) string {
	b := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b = append(b, r)
		case r >= 'A' && r <= 'Z':
			b = append(b, r-'A'+'a')
		default:
			b = append(b, '_')
		}
	}
	return string(b)
}

// RowID is the vector row id: tile_id plus the embedder discriminator
// (§3 invariant: "id ... equal to tile_id + embedder discriminator").
func RowID(tileID, backend, model string) string {
	return tileID + "::" + backend + ":" + model
}

// tileIDFromRawPayload best-effort extracts tile_id from a payload that
// failed full validation, so a poison message that at least names its
// tile can still be marked FAILED in the registry instead of silently
// vanishing.
func tileIDFromRawPayload(payload []byte) string {
	var partial struct {
		TileID string `json:"tile_id"`
	}
	if json.Unmarshal(payload, &partial) != nil {
		return ""
	}
	return partial.TileID
}
