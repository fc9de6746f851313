package geo

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/planar"
)

// ErrEmptyGeometry is returned when a WKT string parses to a geometry with
// no rings or points.
var ErrEmptyGeometry = errors.New("geo: empty geometry")

// ParsePolygon parses a WKT POLYGON or MULTIPOLYGON string, rejecting empty
// geometries per the tile-registry invariant that polygons are never blank.
func ParsePolygon(w string) (orb.Geometry, error) {
	g, err := wkt.Unmarshal(w)
	if err != nil {
		return nil, fmt.Errorf("geo: parse wkt: %w", err)
	}
	switch t := g.(type) {
	case orb.Polygon:
		if len(t) == 0 || len(t[0]) == 0 {
			return nil, ErrEmptyGeometry
		}
	case orb.MultiPolygon:
		if len(t) == 0 {
			return nil, ErrEmptyGeometry
		}
	default:
		return nil, fmt.Errorf("geo: unsupported geometry type %T", g)
	}
	return g, nil
}

// BBoxToWKT renders [minLon, minLat, maxLon, maxLat] as a WKT polygon.
func BBoxToWKT(bbox [4]float64) string {
	minLon, minLat, maxLon, maxLat := bbox[0], bbox[1], bbox[2], bbox[3]
	poly := orb.Polygon{orb.Ring{
		{minLon, minLat},
		{maxLon, minLat},
		{maxLon, maxLat},
		{minLon, maxLat},
		{minLon, minLat},
	}}
	return wkt.MarshalString(poly)
}

// Normalize canonicalizes a WKT polygon's ring winding order (outer rings
// clockwise is orb's convention for a "positively oriented" polygon used
// here) and rounds coordinates to a fixed precision, so that two WKT
// strings describing the same polygon compare equal after normalization.
// orb has no buffer-by-zero primitive (a GEOS-specific repair trick); ring
// orientation plus coordinate rounding is the chosen substitute.
func Normalize(w string) (string, error) {
	g, err := ParsePolygon(w)
	if err != nil {
		return "", err
	}
	switch t := g.(type) {
	case orb.Polygon:
		return wkt.MarshalString(normalizePolygon(t)), nil
	case orb.MultiPolygon:
		out := make(orb.MultiPolygon, len(t))
		for i, p := range t {
			out[i] = normalizePolygon(p)
		}
		return wkt.MarshalString(out), nil
	}
	return "", fmt.Errorf("geo: unsupported geometry type %T", g)
}

const roundPrecision = 1e7 // ~1cm at the equator

func normalizePolygon(p orb.Polygon) orb.Polygon {
	out := make(orb.Polygon, len(p))
	for i, ring := range p {
		r := make(orb.Ring, len(ring))
		for j, pt := range ring {
			r[j] = orb.Point{roundTo(pt[0], roundPrecision), roundTo(pt[1], roundPrecision)}
		}
		if i == 0 && r.Orientation() == orb.CCW {
			r.Reverse() // outer ring: clockwise
		}
		out[i] = r
	}
	return out
}

func roundTo(v, precision float64) float64 {
	return math.Round(v*precision) / precision
}

// DedupKey is the SHA-256 hex digest of the normalized WKT plus any extra
// discriminators, used to detect geometrically identical tiles registered
// under different ids.
func DedupKey(w string, discriminators ...string) (string, error) {
	norm, err := Normalize(w)
	if err != nil {
		return "", err
	}
	parts := append([]string{norm}, discriminators...)
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:]), nil
}

// Intersects reports whether query intersects any ring of target.
func Intersects(target, query orb.Geometry) bool {
	tb, qb := target.Bound(), query.Bound()
	if !boundsOverlap(tb, qb) {
		return false
	}
	qp, ok := query.(orb.Polygon)
	if !ok {
		return true // bbox overlap is the best available signal for non-polygon queries
	}
	switch t := target.(type) {
	case orb.Polygon:
		return polygonsOverlap(t, qp)
	case orb.MultiPolygon:
		for _, p := range t {
			if polygonsOverlap(p, qp) {
				return true
			}
		}
	}
	return false
}

// Within reports whether target lies entirely within query.
func Within(target, query orb.Geometry) bool {
	qp, ok := query.(orb.Polygon)
	if !ok {
		return false
	}
	switch t := target.(type) {
	case orb.Polygon:
		for _, ring := range t {
			for _, pt := range ring {
				if !planar.PolygonContains(qp, pt) {
					return false
				}
			}
		}
		return true
	case orb.MultiPolygon:
		for _, p := range t {
			if !Within(p, query) {
				return false
			}
		}
		return true
	}
	return false
}

func polygonsOverlap(a, b orb.Polygon) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	for _, pt := range a[0] {
		if planar.PolygonContains(b, pt) {
			return true
		}
	}
	for _, pt := range b[0] {
		if planar.PolygonContains(a, pt) {
			return true
		}
	}
	return false
}

func boundsOverlap(a, b orb.Bound) bool {
	return a.Min[0] <= b.Max[0] && a.Max[0] >= b.Min[0] &&
		a.Min[1] <= b.Max[1] && a.Max[1] >= b.Min[1]
}
