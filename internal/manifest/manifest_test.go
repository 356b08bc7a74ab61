package manifest

import (
	"math"
	"testing"

	"github.com/chartpyramid/chartpyramid/internal/catalog"
)

// TestAntimeridianSplit mirrors boundary Scenario B: a dataset spanning
// 170E to -170E (crossing the antimeridian) at z=6 must produce tiles
// covering both the [170,180] and [-180,-170] slices.
func TestAntimeridianSplit(t *testing.T) {
	ds := &catalog.Dataset{Name: "arctic", MaxLOD: 6}
	ts := &catalog.Tileset{Name: "region", ZoomMin: 6, ZoomMax: 6, Datasets: []string{"arctic"}}

	m := Build(ts, []DatasetExtent{{Dataset: ds, MinLon: 170, MinLat: 50, MaxLon: -170, MaxLat: 55}})

	tiles := m.Tiles(6)
	if len(tiles) == 0 {
		t.Fatal("expected non-empty tile set")
	}

	n := int(math.Exp2(6))
	westHemisphereX, _ := lonLatToTileXY(175, 52, float64(n))
	eastHemisphereX, _ := lonLatToTileXY(-175, 52, float64(n))

	if !m.Contains(6, westHemisphereX, tileYFor(m, 6, westHemisphereX)) {
		t.Errorf("missing tile covering 175E slice at x=%d", westHemisphereX)
	}
	if !m.Contains(6, eastHemisphereX, tileYFor(m, 6, eastHemisphereX)) {
		t.Errorf("missing tile covering -175E slice at x=%d", eastHemisphereX)
	}
}

func tileYFor(m *Manifest, z, x int) int {
	for _, pt := range m.Tiles(z) {
		px, py := pt.Unpack()
		if px == x {
			return py
		}
	}
	return -1
}

// TestDeduplicationAndSort covers invariant 6: tile coordinates appear at
// most once per zoom and are sorted ascending by the packed key.
func TestDeduplicationAndSort(t *testing.T) {
	dsA := &catalog.Dataset{Name: "a", MaxLOD: 4}
	dsB := &catalog.Dataset{Name: "b", MaxLOD: 4}
	ts := &catalog.Tileset{Name: "region", ZoomMin: 0, ZoomMax: 4, Datasets: []string{"a", "b"}}

	m := Build(ts, []DatasetExtent{
		{Dataset: dsA, MinLon: -10, MinLat: -10, MaxLon: 10, MaxLat: 10},
		{Dataset: dsB, MinLon: -5, MinLat: -5, MaxLon: 15, MaxLat: 15}, // overlaps dsA
	})

	tiles := m.Tiles(4)
	seen := make(map[PackedTile]bool)
	for i, pt := range tiles {
		if seen[pt] {
			t.Fatalf("duplicate tile %v at index %d", pt, i)
		}
		seen[pt] = true
		if i > 0 && tiles[i-1] >= pt {
			t.Fatalf("tiles not sorted ascending at index %d: %v >= %v", i, tiles[i-1], pt)
		}
	}
}

// TestMaxLODClamping ensures a dataset's contribution is clamped to
// min(max_lod, tileset.zoom_max) per spec §4.5.
func TestMaxLODClamping(t *testing.T) {
	ds := &catalog.Dataset{Name: "a", MaxLOD: 14}
	ts := &catalog.Tileset{Name: "r", ZoomMin: 0, ZoomMax: 8, Datasets: []string{"a"}}

	m := Build(ts, []DatasetExtent{{Dataset: ds, MinLon: -1, MinLat: -1, MaxLon: 1, MaxLat: 1}})

	if _, ok := m.perZoom[9]; ok {
		t.Errorf("manifest must not extend past tileset.ZoomMax even though dataset.MaxLOD=14")
	}
	if len(m.Tiles(8)) == 0 {
		t.Errorf("expected tiles at the clamped max zoom 8")
	}
}
