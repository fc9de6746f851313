package registry

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusReadyForIndexing, StatusInProcess, true},
		{StatusInProcess, StatusWaitingForEmbedding, true},
		{StatusWaitingForEmbedding, StatusWaitingForIndex, true},
		{StatusWaitingForIndex, StatusIndexed, true},
		{StatusInProcess, StatusFailed, true},
		{StatusIndexed, StatusReadyForIndexing, true},
		{StatusFailed, StatusReadyForIndexing, false},
		{StatusReadyForIndexing, StatusWaitingForIndex, false},
		{StatusIndexed, StatusIndexed, true}, // idempotent no-op
		{StatusFailed, StatusFailed, true},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestTerminal(t *testing.T) {
	if !StatusIndexed.Terminal() || !StatusFailed.Terminal() {
		t.Fatalf("expected INDEXED and FAILED to be terminal")
	}
	if StatusInProcess.Terminal() {
		t.Fatalf("expected IN_PROCESS to not be terminal")
	}
}

func TestTileValidate(t *testing.T) {
	cases := []struct {
		name    string
		tile    Tile
		wantErr bool
	}{
		{"image path", Tile{TileID: "a", ImagePath: "/x.png"}, false},
		{"raster+polygon", Tile{TileID: "a", RasterPath: "/r.tif", PixelPolygon: "POLYGON((0 0,0 1,1 1,1 0,0 0))"}, false},
		{"neither", Tile{TileID: "a"}, true},
		{"raster without polygon", Tile{TileID: "a", RasterPath: "/r.tif"}, true},
		{"missing tile id", Tile{ImagePath: "/x.png"}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.tile.Validate()
			if (err != nil) != c.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, c.wantErr)
			}
		})
	}
}
