package tileengine

import (
	"context"
	"testing"

	"github.com/chartpyramid/chartpyramid/internal/catalog"
	"github.com/chartpyramid/chartpyramid/internal/cog"
	"github.com/chartpyramid/chartpyramid/internal/manifest"
)

func TestBuildRequiresEncoder(t *testing.T) {
	ts := &catalog.Tileset{Name: "t", TilePath: "t", ZoomMin: 0, ZoomMax: 2}
	c := &catalog.Catalog{Datasets: map[string]*catalog.Dataset{}}
	man := manifest.Build(ts, nil)

	_, err := Build(context.Background(), ts, c, man, nil, Options{})
	if err == nil {
		t.Fatal("expected an error when Options.Encoder is nil")
	}
}

func TestBuildWithEmptyManifestIsANoop(t *testing.T) {
	ts := &catalog.Tileset{Name: "t", TilePath: "t", ZoomMin: 0, ZoomMax: 2}
	c := &catalog.Catalog{Datasets: map[string]*catalog.Dataset{}}
	man := manifest.Build(ts, nil) // no dataset extents -> empty manifest

	dir := t.TempDir()
	summary, err := Build(context.Background(), ts, c, man, map[string]*cog.Reader{}, Options{
		OutDir:  dir,
		Encoder: testEncoder(t),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Phase1Written != 0 || summary.Phase2Written != 0 {
		t.Errorf("expected no tiles written for an empty manifest, got %+v", summary)
	}
}
