// Package mosaic builds the per-tileset-per-zoom "zoom-VRT" described in
// spec §4.3: an in-memory ordered mosaic of the processed rasters that
// qualify at a given zoom, ordered by max_lod descending so lower-LOD
// rasters paint last ("on top" in the library's top-most-last convention).
//
// Unlike the source system's on-disk virtual-mosaic file, this package
// keeps the mosaic purely in memory as an ordered slice of open raster
// handles — no corpus library implements an on-disk virtual-raster format,
// so the VRT's *behavior* (qualification, ordering, empty-result sentinel)
// is reproduced without its on-disk file representation. See DESIGN.md.
package mosaic

import (
	"sort"

	"github.com/chartpyramid/chartpyramid/internal/catalog"
	"github.com/chartpyramid/chartpyramid/internal/cog"
)

// Layer is one qualifying dataset's processed raster, open for read.
type Layer struct {
	Dataset *catalog.Dataset
	Reader  *cog.Reader
}

// ZoomMosaic is the ordered layer list for one tileset × zoom. A nil
// *ZoomMosaic is the spec's "sentinel empty-result": no dataset qualified.
type ZoomMosaic struct {
	Tileset *catalog.Tileset
	Zoom    int
	Layers  []Layer
}

// Build selects, from openReaders (dataset name → already-opened processed
// raster), the layers qualifying at zoom z — max_lod ≥ z and a raster
// handle exists — and orders them by max_lod descending. Returns nil if no
// dataset qualifies, per spec §4.3.
func Build(ts *catalog.Tileset, c *catalog.Catalog, z int, openReaders map[string]*cog.Reader) *ZoomMosaic {
	var layers []Layer
	for _, name := range ts.Datasets {
		d, ok := c.Dataset(name)
		if !ok || d.MaxLOD < z {
			continue
		}
		r, ok := openReaders[name]
		if !ok {
			continue
		}
		layers = append(layers, Layer{Dataset: d, Reader: r})
	}
	if len(layers) == 0 {
		return nil
	}

	sort.SliceStable(layers, func(i, j int) bool {
		return layers[i].Dataset.MaxLOD > layers[j].Dataset.MaxLOD
	})

	return &ZoomMosaic{Tileset: ts, Zoom: z, Layers: layers}
}

// SampleRGBA queries the mosaic at a single coordinate expressed in the
// processed rasters' common CRS (the warp target, spec §4.2's "latitude-
// normalized warp" — all layers in a mosaic share it), painting layers in
// mosaic order so later (lower max_lod) layers overwrite earlier ones
// wherever they have opaque data — the composited equivalent of the source
// library's top-most-last VRT rendering rule.
//
// outputResCRS is the destination resolution in CRS units/pixel; each
// layer picks its own best-matching overview level via
// cog.Reader.OverviewForZoom, which is the "library selects the
// appropriate overview level automatically" performance property spec
// §4.4 step 5 calls out — reading a small window at high zoom stays cheap
// because it comes straight from a pre-built overview.
func (zm *ZoomMosaic) SampleRGBA(mx, my, outputResCRS float64) (r, g, b, a uint8, ok bool) {
	for _, layer := range zm.Layers {
		geo := layer.Reader.GeoInfo()
		level := layer.Reader.OverviewForZoom(outputResCRS)
		levelPixelSize := layer.Reader.IFDPixelSize(level)
		fx := (mx - geo.OriginX) / levelPixelSize
		fy := (geo.OriginY - my) / levelPixelSize
		if fx < 0 || fy < 0 || fx > float64(layer.Reader.IFDWidth(level)) || fy > float64(layer.Reader.IFDHeight(level)) {
			continue
		}
		lr, lg, lb, la, err := layer.Reader.SampleBilinear(level, fx, fy)
		if err != nil {
			continue
		}
		if la > 0 {
			r, g, b, a, ok = lr, lg, lb, la, true
		}
	}
	return
}

// Bounds is a rectangle in the CRS shared by every layer in the mosaic
// (the warp target's coordinate space, the same one SampleRGBA's mx,my
// are expressed in).
type Bounds struct {
	MinX, MinY, MaxX, MaxY float64
}

// Bounds returns the union of all layer bounds, used by the tile engine to
// reject tiles wholly disjoint from every contributing dataset (spec §4.4
// step 3).
func (zm *ZoomMosaic) Bounds() Bounds {
	var b Bounds
	for i, layer := range zm.Layers {
		minX, minY, maxX, maxY := layer.Reader.BoundsInCRS()
		if i == 0 {
			b = Bounds{minX, minY, maxX, maxY}
			continue
		}
		if minX < b.MinX {
			b.MinX = minX
		}
		if minY < b.MinY {
			b.MinY = minY
		}
		if maxX > b.MaxX {
			b.MaxX = maxX
		}
		if maxY > b.MaxY {
			b.MaxY = maxY
		}
	}
	return b
}
