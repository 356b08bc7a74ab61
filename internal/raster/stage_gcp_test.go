package raster

import (
	"math"
	"testing"

	"github.com/chartpyramid/chartpyramid/internal/catalog"
	"github.com/chartpyramid/chartpyramid/internal/cog"
)

func TestLeastSquaresFitExactLine(t *testing.T) {
	x := []float64{0, 1, 2, 3}
	y := []float64{10, 12, 14, 16}
	slope, intercept, ok := leastSquaresFit(x, y)
	if !ok {
		t.Fatal("expected ok")
	}
	if math.Abs(slope-2) > 1e-9 || math.Abs(intercept-10) > 1e-9 {
		t.Errorf("got slope=%v intercept=%v, want 2,10", slope, intercept)
	}
}

func TestCollinearRejectsConstantAxis(t *testing.T) {
	// Every point shares the same px: no horizontal spread.
	if !collinear([]float64{5, 5, 5}, []float64{1, 2, 3}) {
		t.Error("expected collinear==true for constant px")
	}
	if collinear([]float64{1, 2, 3}, []float64{1, 2, 3}) {
		t.Error("expected collinear==false when both px and py vary")
	}
}

// TestStageGCPAffineInsufficientPoints covers the insufficient-gcps failure
// kind from spec §4.2 stage 4's "Requires >= 3 non-collinear points."
func TestStageGCPAffineInsufficientPoints(t *testing.T) {
	buf := newRasterBuffer(10, 10, cog.GeoInfo{})
	d := &catalog.Dataset{Name: "x", GCPs: []catalog.GCP{
		{PixelX: 0, PixelY: 0, Lon: 0, Lat: 0},
		{PixelX: 1, PixelY: 1, Lon: 1, Lat: 1},
	}}
	_, err := stageGCPAffine(buf, d, 0, 0)
	var perr *Error
	if err == nil {
		t.Fatal("expected an error")
	}
	if !asError(err, &perr) || perr.Kind != "insufficient-gcps" {
		t.Errorf("got %v, want insufficient-gcps", err)
	}
}

func TestStageGCPAffineCollinearPoints(t *testing.T) {
	buf := newRasterBuffer(10, 10, cog.GeoInfo{})
	d := &catalog.Dataset{Name: "x", GCPs: []catalog.GCP{
		{PixelX: 0, PixelY: 0, Lon: 0, Lat: 0},
		{PixelX: 0, PixelY: 1, Lon: 0, Lat: 1},
		{PixelX: 0, PixelY: 2, Lon: 0, Lat: 2},
	}}
	_, err := stageGCPAffine(buf, d, 0, 0)
	var perr *Error
	if err == nil {
		t.Fatal("expected an error")
	}
	if !asError(err, &perr) || perr.Kind != "insufficient-gcps" {
		t.Errorf("got %v, want insufficient-gcps", err)
	}
}

func TestStageGCPAffineFitsOriginAndScale(t *testing.T) {
	buf := newRasterBuffer(10, 10, cog.GeoInfo{})
	buf.geo.EPSG = 4326 // already WGS84, so FromWGS84 is identity
	d := &catalog.Dataset{Name: "x", GCPs: []catalog.GCP{
		{PixelX: 0, PixelY: 0, Lon: 10, Lat: 50},
		{PixelX: 100, PixelY: 0, Lon: 11, Lat: 50},
		{PixelX: 0, PixelY: 100, Lon: 10, Lat: 49},
	}}
	out, err := stageGCPAffine(buf, d, 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(out.geo.OriginX-10) > 1e-6 {
		t.Errorf("OriginX = %v, want 10", out.geo.OriginX)
	}
	if math.Abs(out.geo.PixelSizeX-0.01) > 1e-9 {
		t.Errorf("PixelSizeX = %v, want 0.01", out.geo.PixelSizeX)
	}
}

func asError(err error, target **Error) bool {
	if e, ok := err.(*Error); ok {
		*target = e
		return true
	}
	return false
}
