package raster

import (
	"testing"

	"github.com/chartpyramid/chartpyramid/internal/catalog"
)

func TestOpenFromArchiveMissingZip(t *testing.T) {
	d := &catalog.Dataset{Name: "missing", ZipFile: "does-not-exist", InputFile: "a.tif"}
	_, _, err := openFromArchive(t.TempDir(), t.TempDir(), d)
	if err == nil {
		t.Fatal("expected an error")
	}
	perr, ok := err.(*Error)
	if !ok || perr.Kind != "source-not-found" {
		t.Errorf("got %v, want source-not-found", err)
	}
}
