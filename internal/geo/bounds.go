package geo

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// Bounds returns the WGS84 bounding box [minLon, minLat, maxLon, maxLat] for
// the slippy-map (z, x, y) addressed by k, ignoring the variant tag.
func Bounds(k TileKey) [4]float64 {
	t := maptile.New(uint32(k.X), uint32(k.Y), maptile.Zoom(k.Z))
	b := t.Bound()
	return [4]float64{b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat()}
}

// Center returns the WGS84 (lon, lat) center point of the tile.
func Center(k TileKey) (lon, lat float64) {
	b := Bounds(k)
	return (b[0] + b[2]) / 2, (b[1] + b[3]) / 2
}

// TileAt returns the slippy-map (z, x, y) of the cell that contains p at
// the given zoom level; building a TileKey (source, variant) from them is
// left to the caller.
func TileAt(p orb.Point, zoom int) (z, x, y int) {
	t := maptile.At(p, maptile.Zoom(zoom))
	return zoom, int(t.X), int(t.Y)
}
