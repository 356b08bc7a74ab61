package raster

import (
	"testing"

	"github.com/paulmach/orb"

	"github.com/chartpyramid/chartpyramid/internal/catalog"
	"github.com/chartpyramid/chartpyramid/internal/cog"
)

// TestRasterizeMaskAlphaSquareWithHole mirrors boundary Scenario A's mask
// shape: an outer square with a hole punched through its center, verifying
// the even-odd fill leaves the hole transparent and the ring interior
// opaque.
func TestRasterizeMaskAlphaSquareWithHole(t *testing.T) {
	outer := orb.Ring{{1, 1}, {10, 1}, {10, 10}, {1, 10}, {1, 1}}
	hole := orb.Ring{{4, 4}, {6, 4}, {6, 6}, {4, 6}, {4, 4}}

	alpha := rasterizeMaskAlpha(10, 10, outer, []orb.Ring{hole}, 0, 0)

	if got := alpha[2*10+2]; got == 0 {
		t.Errorf("expected opaque pixel inside outer ring, got %d", got)
	}
	if got := alpha[5*10+5]; got != 0 {
		t.Errorf("expected transparent pixel inside hole, got %d", got)
	}
	if got := alpha[0]; got != 0 {
		t.Errorf("expected transparent pixel outside outer ring corner, got %d", got)
	}
}

func TestCropPixelsShiftsGeotransform(t *testing.T) {
	geo := cog.GeoInfo{OriginX: 100, OriginY: 200, PixelSizeX: 1, PixelSizeY: 1}
	buf := newRasterBuffer(20, 20, geo)
	for i := range buf.pix {
		buf.pix[i] = 7
	}

	cropped := buf.cropPixels(2, 3, 12, 13)
	if cropped.w != 10 || cropped.h != 10 {
		t.Fatalf("got %dx%d, want 10x10", cropped.w, cropped.h)
	}
	if cropped.geo.OriginX != 102 || cropped.geo.OriginY != 197 {
		t.Errorf("got origin (%v,%v), want (102,197)", cropped.geo.OriginX, cropped.geo.OriginY)
	}
	for _, b := range cropped.pix {
		if b != 7 {
			t.Fatal("expected cropped pixels to carry over source values")
		}
	}
}

func TestWorkEstimateUsesMaskBBoxArea(t *testing.T) {
	d := &catalog.Dataset{Mask: &catalog.Mask{Outer: orb.Ring{{0, 0}, {10, 0}, {10, 5}, {0, 5}, {0, 0}}}}
	if got := WorkEstimate(d); got != 50 {
		t.Errorf("got %v, want 50", got)
	}
	if got := WorkEstimate(&catalog.Dataset{}); got != 0 {
		t.Errorf("got %v, want 0 for no mask", got)
	}
}
