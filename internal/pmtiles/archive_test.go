package pmtiles

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func writeFakeTile(t *testing.T, root string, z, x, y int, ext string, data []byte) {
	t.Helper()
	dir := filepath.Join(root, strconv.Itoa(z), strconv.Itoa(x))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	path := filepath.Join(dir, strconv.Itoa(y)+ext)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestArchiveDirectory_WritesAllTiles(t *testing.T) {
	root := t.TempDir()
	writeFakeTile(t, root, 0, 0, 0, ".png", []byte("tile-0-0-0"))
	writeFakeTile(t, root, 1, 0, 0, ".png", []byte("tile-1-0-0"))
	writeFakeTile(t, root, 1, 1, 1, ".png", []byte("tile-1-1-1"))

	out := filepath.Join(t.TempDir(), "test.pmtiles")
	dedup, written, err := ArchiveDirectory(ArchiveOptions{
		TileDir: root,
		Ext:     ".png",
		Output:  out,
		Writer: WriterOptions{
			MinZoom:    0,
			MaxZoom:    1,
			TileFormat: TileTypePNG,
			TileSize:   256,
		},
	})
	if err != nil {
		t.Fatalf("ArchiveDirectory: %v", err)
	}
	if written != 3 {
		t.Fatalf("written = %d, want 3", written)
	}
	if dedup != 0 {
		t.Fatalf("dedup = %d, want 0 (all tiles distinct)", dedup)
	}

	r, err := OpenReader(out)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer r.Close()
	if got := r.NumTiles(); got != 3 {
		t.Fatalf("NumTiles() = %d, want 3", got)
	}
}

func TestArchiveDirectory_SkipsOtherExtensions(t *testing.T) {
	root := t.TempDir()
	writeFakeTile(t, root, 0, 0, 0, ".png", []byte("keep"))
	writeFakeTile(t, root, 0, 0, 0, ".json", []byte("ignore-me"))

	out := filepath.Join(t.TempDir(), "test.pmtiles")
	_, written, err := ArchiveDirectory(ArchiveOptions{
		TileDir: root,
		Ext:     ".png",
		Output:  out,
		Writer: WriterOptions{
			MinZoom:    0,
			MaxZoom:    0,
			TileFormat: TileTypePNG,
			TileSize:   256,
		},
	})
	if err != nil {
		t.Fatalf("ArchiveDirectory: %v", err)
	}
	if written != 1 {
		t.Fatalf("written = %d, want 1", written)
	}
}

func TestArchiveDirectory_MissingDirErrors(t *testing.T) {
	_, _, err := ArchiveDirectory(ArchiveOptions{
		TileDir: filepath.Join(t.TempDir(), "does-not-exist"),
		Ext:     ".png",
		Output:  filepath.Join(t.TempDir(), "out.pmtiles"),
		Writer:  WriterOptions{TileFormat: TileTypePNG},
	})
	if err == nil {
		t.Fatal("expected error for missing tile directory")
	}
}
