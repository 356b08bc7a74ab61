package raster

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/chartpyramid/chartpyramid/internal/catalog"
	"github.com/chartpyramid/chartpyramid/internal/cog"
)

// openFromArchive implements raster pipeline stage 1 (spec §4.2 stage 1):
// locate the dataset's member inside its ZIP archive and open it as a
// GeoTIFF. Go's `archive/zip` stands in for the source library's
// "/vsizip/{zippath}/{zip_file}.zip/{input_file}" virtual-filesystem path —
// no corpus library wraps zip access behind a VFS, so this is the stdlib
// boundary case documented in DESIGN.md. The member is extracted to a
// sibling temp file because the GeoTIFF reader mmaps its input and needs a
// real file descriptor; the temp file is removed by the returned cleanup.
func openFromArchive(zipDir, tmpDir string, d *catalog.Dataset) (*cog.Reader, func(), error) {
	zipPath := filepath.Join(zipDir, d.ZipFile+".zip")
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, nil, &Error{Kind: "source-not-found", Dataset: d.Name, Stage: "archive-open", Err: err}
	}
	defer zr.Close()

	var member *zip.File
	for _, f := range zr.File {
		if f.Name == d.InputFile {
			member = f
			break
		}
	}
	if member == nil {
		return nil, nil, &Error{Kind: "source-not-found", Dataset: d.Name, Stage: "archive-open",
			Err: fmt.Errorf("member %q not found in %s", d.InputFile, zipPath)}
	}

	rc, err := member.Open()
	if err != nil {
		return nil, nil, &Error{Kind: "source-not-found", Dataset: d.Name, Stage: "archive-open", Err: err}
	}
	defer rc.Close()

	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, nil, &Error{Kind: "source-not-found", Dataset: d.Name, Stage: "archive-open", Err: err}
	}
	extracted := filepath.Join(tmpDir, fmt.Sprintf("__src_%s.tif", d.Name))
	out, err := os.Create(extracted)
	if err != nil {
		return nil, nil, &Error{Kind: "source-not-found", Dataset: d.Name, Stage: "archive-open", Err: err}
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		os.Remove(extracted)
		return nil, nil, &Error{Kind: "source-not-found", Dataset: d.Name, Stage: "archive-open", Err: err}
	}
	out.Close()

	src, err := cog.Open(extracted)
	if err != nil {
		os.Remove(extracted)
		return nil, nil, &Error{Kind: "source-not-found", Dataset: d.Name, Stage: "archive-open", Err: err}
	}

	cleanup := func() {
		src.Close()
		os.Remove(extracted)
	}
	return src, cleanup, nil
}
