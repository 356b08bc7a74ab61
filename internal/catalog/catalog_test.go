package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "catalog.json")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("writing temp catalog: %v", err)
	}
	return p
}

func TestLoadBasic(t *testing.T) {
	p := writeTemp(t, `{
		"datasets": {
			"chartA": {
				"zip_file": "chartA", "input_file": "chartA.tif", "max_lod": 11,
				"mask": [[[0,0],[10,0],[10,10],[0,10]]],
				"gcps": [[100,200,-122.1,37.5],[900,200,-121.9,37.5],[500,900,-122.0,37.6]]
			}
		},
		"tilesets": {
			"region": {"tile_path": "region", "zoom": [6, 11], "datasets": ["chartA"]}
		}
	}`)

	c, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	d, ok := c.Dataset("chartA")
	if !ok {
		t.Fatalf("expected dataset chartA")
	}
	if d.MaxLOD != 11 {
		t.Errorf("MaxLOD = %d, want 11", d.MaxLOD)
	}
	if len(d.GCPs) != 3 {
		t.Errorf("len(GCPs) = %d, want 3", len(d.GCPs))
	}
	if d.Mask == nil || len(d.Mask.Outer) != 4 {
		t.Fatalf("expected 4-vertex outer ring, got %+v", d.Mask)
	}

	ts, ok := c.Tileset("region")
	if !ok {
		t.Fatalf("expected tileset region")
	}
	if ts.ZoomMin != 6 || ts.ZoomMax != 11 {
		t.Errorf("zoom = [%d,%d], want [6,11]", ts.ZoomMin, ts.ZoomMax)
	}

	got := c.TilesetDatasets(ts)
	if len(got) != 1 || got[0].Name != "chartA" {
		t.Errorf("TilesetDatasets = %+v", got)
	}
}

func TestLoadUnknownDatasetReference(t *testing.T) {
	p := writeTemp(t, `{
		"datasets": {},
		"tilesets": {"region": {"tile_path": "r", "zoom": [0,1], "datasets": ["missing"]}}
	}`)
	if _, err := Load(p); err == nil {
		t.Fatalf("expected error for unknown dataset reference")
	}
}

func TestValidateMaskRejectsZeroAreaOuterRing(t *testing.T) {
	degenerate := &Mask{Outer: orb.Ring{{0, 0}, {1, 0}, {2, 0}}}
	if err := validateMask(degenerate); err == nil {
		t.Fatalf("expected mask-invalid error for zero-area outer ring")
	}
}

func TestValidateMaskRejectsTooFewVertices(t *testing.T) {
	m := &Mask{Outer: orb.Ring{{0, 0}, {1, 1}}}
	if err := validateMask(m); err == nil {
		t.Fatalf("expected mask-invalid error for <3 vertices")
	}
}
