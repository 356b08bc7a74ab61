// Package manifest computes the tile manifest described in spec §4.5: for
// a tileset, the set of (z,x,y) triples that must be produced, derived from
// each contributing dataset's processed-raster coverage and max_lod
// clamping.
package manifest

import (
	"math"
	"sort"

	"github.com/paulmach/orb/maptile"

	"github.com/chartpyramid/chartpyramid/internal/catalog"
)

// PackedTile is (x<<16)|y for a fixed zoom — valid for zooms ≤ 15 per spec
// §3 ("x,y fit in 16 bits for zooms ≤ 15").
type PackedTile uint32

// Pack combines (x,y) into a PackedTile.
func Pack(x, y int) PackedTile { return PackedTile(uint32(x)<<16 | uint32(y&0xFFFF)) }

// Unpack splits a PackedTile back into (x,y).
func (p PackedTile) Unpack() (x, y int) { return int(p >> 16), int(p & 0xFFFF) }

// DatasetExtent is the EPSG:3857 geographic extent (converted to WGS84
// lon/lat) of a dataset's processed raster, as read from its geotransform.
type DatasetExtent struct {
	Dataset *catalog.Dataset
	MinLon  float64
	MinLat  float64
	MaxLon  float64
	MaxLat  float64
}

// Manifest holds, for a tileset, the deduplicated sorted packed-tile set
// per zoom level.
type Manifest struct {
	Tileset  *catalog.Tileset
	ZoomMin  int
	ZoomMax  int
	perZoom  map[int][]PackedTile
}

// Tiles returns the sorted, deduplicated packed tiles at zoom z.
func (m *Manifest) Tiles(z int) []PackedTile { return m.perZoom[z] }

// Contains reports whether (x,y) is present at zoom z, via binary search
// per spec §4.5 ("membership uses binary search").
func (m *Manifest) Contains(z, x, y int) bool {
	tiles := m.perZoom[z]
	target := Pack(x, y)
	i := sort.Search(len(tiles), func(i int) bool { return tiles[i] >= target })
	return i < len(tiles) && tiles[i] == target
}

// Count returns the total number of (z,x,y) triples across all zooms.
func (m *Manifest) Count() int {
	n := 0
	for _, tiles := range m.perZoom {
		n += len(tiles)
	}
	return n
}

// Flatten returns every (z,x,y) triple in the manifest as a single ordered
// vector, per spec §4.4 Phase 1 ("Flatten to a single ordered vector of
// (z,x,y) triples").
func (m *Manifest) Flatten() []maptile.Tile {
	out := make([]maptile.Tile, 0, m.Count())
	for z := m.ZoomMin; z <= m.ZoomMax; z++ {
		for _, pt := range m.perZoom[z] {
			x, y := pt.Unpack()
			out = append(out, maptile.Tile{Z: maptile.Zoom(z), X: uint32(x), Y: uint32(y)})
		}
	}
	return out
}

// Build computes the manifest for a tileset given the extents of its
// datasets' processed rasters (only datasets whose raster currently exists
// on disk should be passed in, per spec §4.5's "for each of its datasets
// whose processed raster exists on disk").
func Build(ts *catalog.Tileset, extents []DatasetExtent) *Manifest {
	m := &Manifest{Tileset: ts, ZoomMin: ts.ZoomMin, ZoomMax: ts.ZoomMax, perZoom: make(map[int][]PackedTile)}

	for _, ext := range extents {
		dsMaxZoom := ext.Dataset.MaxLOD
		if dsMaxZoom > ts.ZoomMax {
			dsMaxZoom = ts.ZoomMax
		}
		if dsMaxZoom < ts.ZoomMin {
			continue
		}

		for z := ts.ZoomMin; z <= dsMaxZoom; z++ {
			for _, box := range splitAntimeridian(ext.MinLon, ext.MinLat, ext.MaxLon, ext.MaxLat) {
				addTilesInBounds(m, z, box)
			}
		}
	}

	for z, tiles := range m.perZoom {
		sort.Slice(tiles, func(i, j int) bool { return tiles[i] < tiles[j] })
		deduped := tiles[:0]
		var last PackedTile
		for i, t := range tiles {
			if i == 0 || t != last {
				deduped = append(deduped, t)
				last = t
			}
		}
		m.perZoom[z] = deduped
	}

	return m
}

type lonLatBox struct{ minLon, minLat, maxLon, maxLat float64 }

// splitAntimeridian splits a bbox crossing the +/-180 meridian into two
// non-crossing slices, per spec §4.5's antimeridian handling and boundary
// Scenario B.
func splitAntimeridian(minLon, minLat, maxLon, maxLat float64) []lonLatBox {
	if minLon <= maxLon {
		return []lonLatBox{{minLon, minLat, maxLon, maxLat}}
	}
	return []lonLatBox{
		{minLon, minLat, 180, maxLat},
		{-180, minLat, maxLon, maxLat},
	}
}

func addTilesInBounds(m *Manifest, z int, box lonLatBox) {
	n := math.Exp2(float64(z))
	minTX, minTY := lonLatToTileXY(box.minLon, box.maxLat, n)
	maxTX, maxTY := lonLatToTileXY(box.maxLon, box.minLat, n)

	maxIdx := int(n) - 1
	clamp := func(v int) int {
		if v < 0 {
			return 0
		}
		if v > maxIdx {
			return maxIdx
		}
		return v
	}
	minTX, maxTX, minTY, maxTY = clamp(minTX), clamp(maxTX), clamp(minTY), clamp(maxTY)

	for y := minTY; y <= maxTY; y++ {
		for x := minTX; x <= maxTX; x++ {
			m.perZoom[z] = append(m.perZoom[z], Pack(x, y))
		}
	}
}

func lonLatToTileXY(lon, lat float64, n float64) (x, y int) {
	x = int(math.Floor((lon + 180.0) / 360.0 * n))
	latRad := lat * math.Pi / 180.0
	y = int(math.Floor((1.0 - math.Log(math.Tan(latRad)+1.0/math.Cos(latRad))/math.Pi) / 2.0 * n))
	return
}
