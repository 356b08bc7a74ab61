package cog

import (
	"image"
	"testing"
)

func TestTileCache_GetPutRoundTrip(t *testing.T) {
	tc := NewTileCache(4)
	if img := tc.Get("a.tif", 0, 1, 2); img != nil {
		t.Fatal("expected miss on empty cache")
	}

	want := image.NewRGBA(image.Rect(0, 0, 1, 1))
	tc.Put("a.tif", 0, 1, 2, want)

	got := tc.Get("a.tif", 0, 1, 2)
	if got != image.Image(want) {
		t.Fatal("expected cached image to be returned by Get")
	}
}

func TestTileCache_EvictsOldestWhenFull(t *testing.T) {
	tc := NewTileCache(2)
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))

	tc.Put("a.tif", 0, 0, 0, img)
	tc.Put("a.tif", 0, 0, 1, img)
	tc.Put("a.tif", 0, 0, 2, img) // evicts (0,0,0)

	if tc.Get("a.tif", 0, 0, 0) != nil {
		t.Fatal("expected oldest entry to be evicted")
	}
	if tc.Get("a.tif", 0, 0, 2) == nil {
		t.Fatal("expected newest entry to remain cached")
	}
}

func TestTileCache_ReadTileCachedOnlyReadsOnce(t *testing.T) {
	tc := NewTileCache(4)
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	reads := 0
	read := func() (image.Image, error) {
		reads++
		return img, nil
	}

	for i := 0; i < 3; i++ {
		got, err := tc.readTileCached("a.tif", 0, 5, 6, read)
		if err != nil {
			t.Fatalf("readTileCached: %v", err)
		}
		if got != image.Image(img) {
			t.Fatal("unexpected image returned")
		}
	}
	if reads != 1 {
		t.Fatalf("read called %d times, want 1", reads)
	}
}
