package raster

import (
	"github.com/chartpyramid/chartpyramid/internal/catalog"
	"github.com/chartpyramid/chartpyramid/internal/cog"
)

// stageExpandWindow implements spec §4.2 stage 2: fuse palette expansion
// with source windowing. If the source has a palette and the dataset has a
// mask, only the mask's bounding box is materialized (a read-amplification
// optimization); otherwise the whole raster is decoded — the reader's
// ReadTile/ReadRegion path already expands any 1-sample-per-pixel palette
// via IFD.PaletteRGB (see internal/cog/reader.go), so no separate expand
// step is needed once the window is chosen.
func stageExpandWindow(src *cog.Reader, d *catalog.Dataset) (buf *rasterBuffer, wox, woy int, err error) {
	ifd0 := src.DebugIFD(0)
	w, h := src.Width(), src.Height()
	geo := src.GeoInfo()

	hasPalette := ifd0.HasPalette()

	x0, y0, x1, y1 := 0, 0, w, h
	if hasPalette && d.Mask != nil {
		bb := d.Mask.BoundingBox()
		x0 = clampInt(int(bb.Min[0]), 0, w)
		y0 = clampInt(int(bb.Min[1]), 0, h)
		x1 = clampInt(int(bb.Max[0])+1, 0, w)
		y1 = clampInt(int(bb.Max[1])+1, 0, h)
		if x1 <= x0 || y1 <= y0 {
			return nil, 0, 0, &Error{Kind: "expand-failed", Dataset: d.Name, Stage: "expand-window", Err: errBadWindow}
		}
	}

	region, err := src.ReadRegion(0, x0, y0, x1-x0, y1-y0)
	if err != nil {
		return nil, 0, 0, &Error{Kind: "expand-failed", Dataset: d.Name, Stage: "expand-window", Err: err}
	}

	out := &rasterBuffer{
		w: x1 - x0, h: y1 - y0,
		pix: region.Pix,
		geo: cog.GeoInfo{
			EPSG:       geo.EPSG,
			OriginX:    geo.OriginX + float64(x0)*geo.PixelSizeX,
			OriginY:    geo.OriginY - float64(y0)*geo.PixelSizeY,
			PixelSizeX: geo.PixelSizeX,
			PixelSizeY: geo.PixelSizeY,
		},
	}
	// ReadRegion's *image.RGBA may have a stride wider than w*4 if it were
	// built from a sub-rectangle view; ours is always constructed with
	// image.Rect(0,0,w,h) so Pix is already tightly packed (see
	// internal/cog/reader.go's ReadRegion).
	return out, x0, y0, nil
}
