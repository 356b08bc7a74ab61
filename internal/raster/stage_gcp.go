package raster

import (
	"errors"

	"github.com/chartpyramid/chartpyramid/internal/catalog"
	"github.com/chartpyramid/chartpyramid/internal/coord"
)

var (
	errTooFewGCPs    = errors.New("fewer than 3 ground control points")
	errCollinearGCPs = errors.New("ground control points are collinear")
)

// stageGCPAffine implements spec §4.2 stage 4: derive a geotransform from
// ground control points when the dataset defines any. Each GCP's (lon,lat)
// is transformed into the source CRS first (falling back to WGS84 if the
// source has none) — necessary because fitting in lon/lat space distorts at
// high latitude in conic/cylindrical projections — then a best-fit
// axis-aligned scale+offset is computed per axis via ordinary least squares.
//
// The corpus's GeoTIFF geotransform model (internal/cog.GeoInfo) carries no
// rotation terms, so unlike a full 6-parameter affine this fits only
// (origin, pixel size) per axis; a rotation/skew term would be
// unrepresentable by the writer this system shares with every other stage.
// See DESIGN.md.
func stageGCPAffine(buf *rasterBuffer, d *catalog.Dataset, cox, coy int) (*rasterBuffer, error) {
	if len(d.GCPs) == 0 {
		return buf, nil
	}
	if len(d.GCPs) < 3 {
		return nil, &Error{Kind: "insufficient-gcps", Dataset: d.Name, Stage: "gcp-affine", Err: errTooFewGCPs}
	}

	proj := coord.Projection(&coord.WGS84Identity{})
	if buf.geo.EPSG != 0 {
		if p := coord.ForEPSG(buf.geo.EPSG); p != nil {
			proj = p
		}
	}

	n := len(d.GCPs)
	pxs := make([]float64, n)
	pys := make([]float64, n)
	xs := make([]float64, n)
	ys := make([]float64, n)
	for i, g := range d.GCPs {
		sx, sy := proj.FromWGS84(g.Lon, g.Lat)
		pxs[i] = g.PixelX - float64(cox)
		pys[i] = g.PixelY - float64(coy)
		xs[i] = sx
		ys[i] = sy
	}

	if collinear(pxs, pys) {
		return nil, &Error{Kind: "insufficient-gcps", Dataset: d.Name, Stage: "gcp-affine", Err: errCollinearGCPs}
	}

	xSlope, xIntercept, ok1 := leastSquaresFit(pxs, xs)
	ySlope, yIntercept, ok2 := leastSquaresFit(pys, ys)
	if !ok1 || !ok2 {
		return nil, &Error{Kind: "insufficient-gcps", Dataset: d.Name, Stage: "gcp-affine", Err: errCollinearGCPs}
	}

	out := &rasterBuffer{w: buf.w, h: buf.h, pix: buf.pix, geo: buf.geo}
	out.geo.EPSG = proj.EPSG()
	out.geo.OriginX = xIntercept
	out.geo.PixelSizeX = xSlope
	// py increases downward while y (northing) decreases downward, so the
	// fitted slope is negative; PixelSizeY is stored positive per
	// internal/cog.GeoInfo's convention, with OriginY as the top edge.
	out.geo.OriginY = yIntercept
	out.geo.PixelSizeY = -ySlope

	return out, nil
}

// leastSquaresFit computes the ordinary-least-squares slope and intercept
// of y = slope*x + intercept. ok is false when the x values have no
// variance (a degenerate, unsolvable fit).
func leastSquaresFit(x, y []float64) (slope, intercept float64, ok bool) {
	n := float64(len(x))
	var sx, sy, sxx, sxy float64
	for i := range x {
		sx += x[i]
		sy += y[i]
		sxx += x[i] * x[i]
		sxy += x[i] * y[i]
	}
	denom := n*sxx - sx*sx
	if denom == 0 {
		return 0, 0, false
	}
	slope = (n*sxy - sx*sy) / denom
	intercept = (sy - slope*sx) / n
	return slope, intercept, true
}

// collinear reports whether the pixel-space GCPs have no spread in one axis:
// every px is equal, or every py is equal. Points that vary in both axes but
// lie on one slanted line (e.g. a diagonal) are not reported.
func collinear(pxs, pys []float64) bool {
	distinctX, distinctY := false, false
	for i := 1; i < len(pxs); i++ {
		if pxs[i] != pxs[0] {
			distinctX = true
		}
		if pys[i] != pys[0] {
			distinctY = true
		}
	}
	return !distinctX || !distinctY
}
