package geo

import "testing"

func TestCanonicalTileID(t *testing.T) {
	cases := []struct {
		name string
		key  TileKey
		want string
	}{
		{"with variant", TileKey{Source: "orthophoto", Z: 0, X: 0, Y: 0, Variant: "rgb"}, "orthophoto:0/0/0:rgb"},
		{"empty variant stripped", TileKey{Source: "orthophoto", Z: 12, X: 4, Y: 9}, "orthophoto:12/4/9"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := CanonicalTileID(c.key); got != c.want {
				t.Fatalf("CanonicalTileID() = %q, want %q", got, c.want)
			}
		})
	}
}

func TestCanonicalTileIDFieldEquality(t *testing.T) {
	k1 := TileKey{Source: "coco", Z: 1, X: 2, Y: 3, Variant: "v1"}
	k2 := k1
	if CanonicalTileID(k1) != CanonicalTileID(k2) {
		t.Fatalf("equal keys produced different ids")
	}
	k2.Variant = "v2"
	if CanonicalTileID(k1) == CanonicalTileID(k2) {
		t.Fatalf("differing keys produced the same id")
	}
}

func TestTileIDHashStable(t *testing.T) {
	id := "orthophoto:0/0/0"
	h1 := TileIDHash(id)
	h2 := TileIDHash(id)
	if h1 != h2 {
		t.Fatalf("hash is not stable: %q vs %q", h1, h2)
	}
	if len(h1) != 16 {
		t.Fatalf("hash length = %d, want 16", len(h1))
	}
}
