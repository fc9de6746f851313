// Package retriever implements the retriever service (C6): a single
// search endpoint that encodes a text query, runs vectorSearch against a
// named table, and optionally thins the ranked results with a greedy
// geographic non-maximum-suppression pass.
package retriever

import (
	"context"
	"fmt"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"

	"github.com/nucleus/tileindex/internal/embedding"
	"github.com/nucleus/tileindex/internal/vectorstore"
)

// Query is the body of POST /search (§4.6).
type Query struct {
	QueryText     string   `json:"query_text"`
	TableName     string   `json:"table_name"`
	K             int      `json:"k"`
	Where         string   `json:"where,omitempty"`
	Columns       []string `json:"columns,omitempty"`
	ApplyGeoNMS   bool     `json:"apply_geo_nms,omitempty"`
	GeoNMSRadiusM float64  `json:"geo_nms_radius_m,omitempty"`
	EmbedderModel string   `json:"embedder_model,omitempty"`
}

// Service runs the retrieval pipeline: text encode, vectorSearch,
// optional geo-NMS postfilter.
type Service struct {
	vectors  vectorstore.Adapter
	provider embedding.Provider
}

// New builds a Service over an already-constructed vector adapter and
// text-embedding provider.
func New(vectors vectorstore.Adapter, provider embedding.Provider) *Service {
	return &Service{vectors: vectors, provider: provider}
}

// Search runs one query end to end, returning ranked rows with their
// attached ANN distance. An empty result set is not an error (§4.6).
func (s *Service) Search(ctx context.Context, q Query) ([]vectorstore.SearchResult, error) {
	if q.QueryText == "" {
		return nil, fmt.Errorf("retriever: query_text is required")
	}
	if q.TableName == "" {
		return nil, fmt.Errorf("retriever: table_name is required")
	}
	k := q.K
	if k <= 0 {
		k = 10
	}
	model := q.EmbedderModel
	if model == "" {
		model = s.provider.ModelName()
	}
	vecs, err := s.provider.EmbedText(ctx, model, []string{q.QueryText})
	if err != nil {
		return nil, fmt.Errorf("retriever: embed query: %w", err)
	}
	results, err := s.vectors.VectorSearch(ctx, q.TableName, vecs[0], vectorstore.SearchOptions{
		K: k, Where: q.Where, Columns: q.Columns,
	})
	if err != nil {
		return nil, err
	}
	if q.ApplyGeoNMS && q.GeoNMSRadiusM > 0 {
		results = geoNMS(results, q.GeoNMSRadiusM)
	}
	return results, nil
}

// geoNMS runs greedy non-maximum suppression over results, which must
// already be ranked best-first. A result is suppressed if it falls
// within radiusM of a higher-ranked, already-kept result; rows missing
// lat/lon are kept unconditionally since they cannot be clustered.
func geoNMS(results []vectorstore.SearchResult, radiusM float64) []vectorstore.SearchResult {
	kept := make([]vectorstore.SearchResult, 0, len(results))
	keptPoints := make([]orb.Point, 0, len(results))
	for _, r := range results {
		lat, lon, ok := latLon(r)
		if !ok {
			kept = append(kept, r)
			continue
		}
		p := orb.Point{lon, lat}
		suppressed := false
		for _, kp := range keptPoints {
			if orbgeo.Distance(p, kp) <= radiusM {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, r)
			keptPoints = append(keptPoints, p)
		}
	}
	return kept
}

func latLon(r vectorstore.SearchResult) (lat, lon float64, ok bool) {
	latV, latOK := toFloat(r.Metadata["lat"])
	lonV, lonOK := toFloat(r.Metadata["lon"])
	if !latOK || !lonOK {
		return 0, 0, false
	}
	return latV, lonV, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
