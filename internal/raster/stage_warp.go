package raster

import (
	"math"

	"github.com/chartpyramid/chartpyramid/internal/cog"
	"github.com/chartpyramid/chartpyramid/internal/coord"
	"github.com/chartpyramid/chartpyramid/internal/resample"
)

// targetEPSG is the CRS every processed raster is warped into — the tile
// engine and zoom-VRT mosaic both operate in Web Mercator (spec §4.4's "the
// tile's EPSG:3857 extent").
const targetEPSG = 3857

// stageWarp implements spec §4.2 stage 5: warp the buffer into targetEPSG
// at the latitude-normalized resolution `equatorial_resolution(maxLOD) /
// cos(centerLat)`, preventing the Web-Mercator high-latitude oversampling
// that a naive fixed-resolution warp would produce.
func stageWarp(buf *rasterBuffer, maxLOD int, kernel resample.Kernel) (*rasterBuffer, error) {
	srcProj := sourceProjection(buf.geo.EPSG)

	centerX := buf.geo.OriginX + float64(buf.w)/2*buf.geo.PixelSizeX
	centerY := buf.geo.OriginY - float64(buf.h)/2*buf.geo.PixelSizeY
	_, centerLat := srcProj.ToWGS84(centerX, centerY)

	equatorialRes := coord.ResolutionAtLat(0, maxLOD)
	adjustedRes := equatorialRes / math.Cos(centerLat*math.Pi/180)

	dstProj := coord.Projection(&coord.WebMercatorProj{})

	// Reproject the source raster's four corners to find the target extent.
	minSX, minSY := buf.geo.OriginX, buf.geo.OriginY-float64(buf.h)*buf.geo.PixelSizeY
	maxSX, maxSY := buf.geo.OriginX+float64(buf.w)*buf.geo.PixelSizeX, buf.geo.OriginY
	corners := [][2]float64{{minSX, minSY}, {minSX, maxSY}, {maxSX, minSY}, {maxSX, maxSY}}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, c := range corners {
		lon, lat := srcProj.ToWGS84(c[0], c[1])
		tx, ty := dstProj.FromWGS84(lon, lat)
		minX, maxX = math.Min(minX, tx), math.Max(maxX, tx)
		minY, maxY = math.Min(minY, ty), math.Max(maxY, ty)
	}

	dstW := int(math.Ceil((maxX - minX) / adjustedRes))
	dstH := int(math.Ceil((maxY - minY) / adjustedRes))
	if dstW < 1 {
		dstW = 1
	}
	if dstH < 1 {
		dstH = 1
	}

	out := newRasterBuffer(dstW, dstH, cog.GeoInfo{
		EPSG:       targetEPSG,
		OriginX:    minX,
		OriginY:    maxY,
		PixelSizeX: adjustedRes,
		PixelSizeY: adjustedRes,
	})
	warpInto(out, buf, srcProj, dstProj, kernel)
	return out, nil
}

func sourceProjection(epsg int) coord.Projection {
	if epsg == 0 {
		return &coord.WGS84Identity{}
	}
	if p := coord.ForEPSG(epsg); p != nil {
		return p
	}
	return &coord.WGS84Identity{}
}

// warpInto fills dst by, for every destination pixel, inverse-mapping
// through the target and source projections to a source-pixel fractional
// coordinate and sampling with the configured kernel. Average/Mode — which
// only have meaning for a fixed-ratio box downsample — fall back to
// bilinear under a general reprojective warp, since pixel correspondence
// here is not a uniform grid ratio; the tile engine's Phase 2 synthesis
// (always a clean 2:1 downsample) is where Average/Mode's box semantics
// actually apply (see internal/tileengine).
func warpInto(dst, src *rasterBuffer, srcProj, dstProj coord.Projection, kernel resample.Kernel) {
	for dy := 0; dy < dst.h; dy++ {
		destY := dst.geo.OriginY - (float64(dy)+0.5)*dst.geo.PixelSizeY
		for dx := 0; dx < dst.w; dx++ {
			destX := dst.geo.OriginX + (float64(dx)+0.5)*dst.geo.PixelSizeX
			lon, lat := dstProj.ToWGS84(destX, destY)
			sx, sy := srcProj.FromWGS84(lon, lat)

			fx := (sx - src.geo.OriginX) / src.geo.PixelSizeX
			fy := (src.geo.OriginY - sy) / src.geo.PixelSizeY
			if fx < -0.5 || fy < -0.5 || fx > float64(src.w)-0.5 || fy > float64(src.h)-0.5 {
				continue
			}

			r, g, b, a := samplePoint(src, fx, fy, kernel)
			off := (dy*dst.w + dx) * 4
			dst.pix[off], dst.pix[off+1], dst.pix[off+2], dst.pix[off+3] = r, g, b, a
		}
	}
}

// samplePoint samples src at fractional pixel coordinates using kernel's
// weight function over its support radius (Nearest short-circuits).
func samplePoint(src *rasterBuffer, fx, fy float64, kernel resample.Kernel) (r, g, b, a byte) {
	if kernel == resample.Nearest {
		x, y := resample.SampleNearest(fx, fy)
		return src.at(x, y)
	}

	k := kernel
	if k == resample.Average || k == resample.Mode {
		k = resample.Bilinear
	}
	radius := k.Radius()

	x0 := int(math.Floor(fx - radius))
	x1 := int(math.Ceil(fx + radius))
	y0 := int(math.Floor(fy - radius))
	y1 := int(math.Ceil(fy + radius))

	var sr, sg, sb, sa, wsum float64
	for y := y0; y <= y1; y++ {
		wy := k.Weight(float64(y) - fy)
		if wy == 0 {
			continue
		}
		for x := x0; x <= x1; x++ {
			wx := k.Weight(float64(x) - fx)
			w := wx * wy
			if w == 0 {
				continue
			}
			cr, cg, cb, ca := src.at(x, y)
			sr += w * float64(cr)
			sg += w * float64(cg)
			sb += w * float64(cb)
			sa += w * float64(ca)
			wsum += w
		}
	}
	if wsum == 0 {
		return 0, 0, 0, 0
	}
	return clampByte(sr / wsum), clampByte(sg / wsum), clampByte(sb / wsum), clampByte(sa / wsum)
}

func (b *rasterBuffer) at(x, y int) (r, g, bl, a byte) {
	x = clampInt(x, 0, b.w-1)
	y = clampInt(y, 0, b.h-1)
	off := (y*b.w + x) * 4
	return b.pix[off], b.pix[off+1], b.pix[off+2], b.pix[off+3]
}

func clampByte(v float64) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}
