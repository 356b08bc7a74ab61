package main

import (
	"reflect"
	"testing"

	"github.com/chartpyramid/chartpyramid/internal/catalog"
)

func testCatalog() *catalog.Catalog {
	return &catalog.Catalog{
		Datasets: map[string]*catalog.Dataset{
			"a": {Name: "a"},
			"b": {Name: "b"},
			"c": {Name: "c"},
		},
		Tilesets: map[string]*catalog.Tileset{
			"world":   {Name: "world", Datasets: []string{"a", "b"}},
			"regions": {Name: "regions", Datasets: []string{"b", "c"}},
		},
	}
}

func TestSelectTilesets_DefaultsToAll(t *testing.T) {
	c := testCatalog()
	got, err := selectTilesets(c, nil)
	if err != nil {
		t.Fatalf("selectTilesets: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Name != "regions" || got[1].Name != "world" {
		t.Fatalf("order = %v, want [regions world]", got)
	}
}

func TestSelectTilesets_Named(t *testing.T) {
	c := testCatalog()
	got, err := selectTilesets(c, []string{"world"})
	if err != nil {
		t.Fatalf("selectTilesets: %v", err)
	}
	if len(got) != 1 || got[0].Name != "world" {
		t.Fatalf("got %v, want [world]", got)
	}
}

func TestSelectTilesets_UnknownNameErrors(t *testing.T) {
	c := testCatalog()
	if _, err := selectTilesets(c, []string{"nonexistent"}); err == nil {
		t.Fatal("expected error for unknown tileset")
	}
}

func TestUnionDatasets_DedupsAndSorts(t *testing.T) {
	c := testCatalog()
	tilesets := []*catalog.Tileset{c.Tilesets["world"], c.Tilesets["regions"]}
	got := unionDatasets(c, tilesets)
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unionDatasets = %v, want %v", got, want)
	}
}
