package raster

import (
	"github.com/chartpyramid/chartpyramid/internal/catalog"
	"github.com/chartpyramid/chartpyramid/internal/coord"
)

// stageClip implements spec §4.2 stage 6: if geobound has any side set,
// transform its lon/lat sides into target-EPSG bounds using a dummy
// coordinate equal to the dataset's own center (so tall/skewed projections
// clip along the correct axis), intersect with the current extent, and crop
// if any side actually tightened.
func stageClip(buf *rasterBuffer, d *catalog.Dataset) (*rasterBuffer, error) {
	if !d.GeoBound.HasAny() {
		return buf, nil
	}

	proj := coord.Projection(&coord.WebMercatorProj{})
	centerX := buf.geo.OriginX + float64(buf.w)/2*buf.geo.PixelSizeX
	centerY := buf.geo.OriginY - float64(buf.h)/2*buf.geo.PixelSizeY
	dummyLon, dummyLat := proj.ToWGS84(centerX, centerY)

	curMinX := buf.geo.OriginX
	curMaxY := buf.geo.OriginY
	curMaxX := buf.geo.OriginX + float64(buf.w)*buf.geo.PixelSizeX
	curMinY := buf.geo.OriginY - float64(buf.h)*buf.geo.PixelSizeY

	minX, minY, maxX, maxY := curMinX, curMinY, curMaxX, curMaxY
	tightened := false

	gb := d.GeoBound
	if gb.MinLon != nil {
		x, _ := proj.FromWGS84(*gb.MinLon, dummyLat)
		if x > minX {
			minX, tightened = x, true
		}
	}
	if gb.MaxLon != nil {
		x, _ := proj.FromWGS84(*gb.MaxLon, dummyLat)
		if x < maxX {
			maxX, tightened = x, true
		}
	}
	if gb.MinLat != nil {
		_, y := proj.FromWGS84(dummyLon, *gb.MinLat)
		if y > minY {
			minY, tightened = y, true
		}
	}
	if gb.MaxLat != nil {
		_, y := proj.FromWGS84(dummyLon, *gb.MaxLat)
		if y < maxY {
			maxY, tightened = y, true
		}
	}

	if !tightened {
		return buf, nil
	}

	x0 := clampInt(int((minX-curMinX)/buf.geo.PixelSizeX), 0, buf.w)
	x1 := clampInt(int((maxX-curMinX)/buf.geo.PixelSizeX+0.5), 0, buf.w)
	y0 := clampInt(int((curMaxY-maxY)/buf.geo.PixelSizeY), 0, buf.h)
	y1 := clampInt(int((curMaxY-minY)/buf.geo.PixelSizeY+0.5), 0, buf.h)
	if x1 <= x0 || y1 <= y0 {
		return buf, nil
	}

	return buf.cropPixels(x0, y0, x1, y1), nil
}
