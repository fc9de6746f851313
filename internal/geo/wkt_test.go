package geo

import "testing"

func TestNormalizeIdempotent(t *testing.T) {
	w := "POLYGON((0 0, 0 1, 1 1, 1 0, 0 0))"
	once, err := Normalize(w)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	twice, err := Normalize(once)
	if err != nil {
		t.Fatalf("Normalize(Normalize(w)): %v", err)
	}
	if once != twice {
		t.Fatalf("normalize not idempotent: %q vs %q", once, twice)
	}
}

func TestParsePolygonRejectsEmpty(t *testing.T) {
	if _, err := ParsePolygon("POLYGON EMPTY"); err == nil {
		t.Fatalf("expected error for empty polygon")
	}
}

func TestBBoxToWKTRoundTrips(t *testing.T) {
	w := BBoxToWKT([4]float64{-1, -1, 1, 1})
	g, err := ParsePolygon(w)
	if err != nil {
		t.Fatalf("ParsePolygon(BBoxToWKT(...)): %v", err)
	}
	if g.Bound().Min[0] != -1 || g.Bound().Max[0] != 1 {
		t.Fatalf("unexpected bound: %+v", g.Bound())
	}
}

func TestDedupKeyStableAcrossDiscriminators(t *testing.T) {
	w := "POLYGON((0 0, 0 1, 1 1, 1 0, 0 0))"
	k1, err := DedupKey(w, "pe_core")
	if err != nil {
		t.Fatalf("DedupKey: %v", err)
	}
	k2, err := DedupKey(w, "clip")
	if err != nil {
		t.Fatalf("DedupKey: %v", err)
	}
	if k1 == k2 {
		t.Fatalf("different discriminators produced the same key")
	}
}

func TestWithinAndIntersects(t *testing.T) {
	outer, err := ParsePolygon("POLYGON((-2 -2, -2 2, 2 2, 2 -2, -2 -2))")
	if err != nil {
		t.Fatalf("ParsePolygon(outer): %v", err)
	}
	inner, err := ParsePolygon("POLYGON((-1 -1, -1 1, 1 1, 1 -1, -1 -1))")
	if err != nil {
		t.Fatalf("ParsePolygon(inner): %v", err)
	}
	if !Within(inner, outer) {
		t.Fatalf("expected inner to be within outer")
	}
	if !Intersects(inner, outer) {
		t.Fatalf("expected inner to intersect outer")
	}

	disjoint, err := ParsePolygon("POLYGON((10 10, 10 11, 11 11, 11 10, 10 10))")
	if err != nil {
		t.Fatalf("ParsePolygon(disjoint): %v", err)
	}
	if Intersects(disjoint, outer) {
		t.Fatalf("expected disjoint polygons to not intersect")
	}
}
