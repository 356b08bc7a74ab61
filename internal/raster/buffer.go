package raster

import (
	"image"

	"github.com/chartpyramid/chartpyramid/internal/cog"
)

// rasterBuffer is the in-flight raster carried between pipeline stages: an
// RGBA pixel buffer plus the geotransform and CRS it currently represents.
// Each stage's "out replaces src" (spec §4.2) is modeled by returning a new
// rasterBuffer rather than mutating in place.
type rasterBuffer struct {
	pix  []byte // RGBA, row-major, len == w*h*4
	w, h int
	geo  cog.GeoInfo // EPSG==0 means "no CRS" (spec §4.2 stage 4's fallback case)
}

func newRasterBuffer(w, h int, geo cog.GeoInfo) *rasterBuffer {
	return &rasterBuffer{pix: make([]byte, w*h*4), w: w, h: h, geo: geo}
}

func (b *rasterBuffer) asRGBA() *image.RGBA {
	return &image.RGBA{Pix: b.pix, Stride: b.w * 4, Rect: image.Rect(0, 0, b.w, b.h)}
}

// cropPixels extracts the rectangle [x0,y0,x1,y1) into a new buffer with the
// geotransform shifted so its origin lands on the window's upper-left
// corner — the shared primitive behind stage 2's bbox windowing, stage 3's
// mask-window extraction, and stage 6's geographic clip.
func (b *rasterBuffer) cropPixels(x0, y0, x1, y1 int) *rasterBuffer {
	nw, nh := x1-x0, y1-y0
	out := &rasterBuffer{
		w: nw, h: nh,
		geo: cog.GeoInfo{
			EPSG:       b.geo.EPSG,
			OriginX:    b.geo.OriginX + float64(x0)*b.geo.PixelSizeX,
			OriginY:    b.geo.OriginY - float64(y0)*b.geo.PixelSizeY,
			PixelSizeX: b.geo.PixelSizeX,
			PixelSizeY: b.geo.PixelSizeY,
		},
		pix: make([]byte, nw*nh*4),
	}
	for y := 0; y < nh; y++ {
		srcOff := ((y+y0)*b.w + x0) * 4
		dstOff := y * nw * 4
		copy(out.pix[dstOff:dstOff+nw*4], b.pix[srcOff:srcOff+nw*4])
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
