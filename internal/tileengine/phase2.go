package tileengine

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chartpyramid/chartpyramid/internal/catalog"
	"github.com/chartpyramid/chartpyramid/internal/encode"
	"github.com/chartpyramid/chartpyramid/internal/resample"
)

const baseTileSize = 256

// runPhase2 synthesizes overview tiles sequentially from zoom_max-1 down to
// zoom_min, per spec §4.4 Phase 2: each level is derived entirely from the
// child level already on disk, so zoom order is a hard dependency and this
// phase never runs concurrently across zooms (within a zoom, parent tiles
// are independent and could parallelize, but spec's "sequentially" applies
// per level and the per-level parent count is small next to Phase 1's tile
// count, so a simple sequential loop is grounded and sufficient).
func runPhase2(ts *catalog.Tileset, opts Options) (int, error) {
	written := 0
	for z := ts.ZoomMax - 1; z >= ts.ZoomMin; z-- {
		childDir := filepath.Join(opts.OutDir, ts.TilePath, strconv.Itoa(z+1))
		parents, err := collectParents(childDir, opts.Encoder.FileExtension())
		if err != nil {
			if os.IsNotExist(err) {
				continue // no children at z+1; nothing to synthesize
			}
			return written, err
		}

		for parent := range parents {
			ok, err := synthesizeParent(ts, z, parent.x, parent.y, opts)
			if err != nil {
				return written, fmt.Errorf("tileengine: phase2 z=%d x=%d y=%d: %w", z, parent.x, parent.y, err)
			}
			if ok {
				written++
				if opts.Progress != nil {
					opts.Progress("phase2", written)
				}
			}
		}
	}
	return written, nil
}

type tileXY struct{ x, y int }

// collectParents scans childDir's x/y.{ext} layout and returns the
// deduplicated set of XYZ parents (x/2, y/2) any existing child maps to.
func collectParents(childDir, ext string) (map[tileXY]struct{}, error) {
	xDirs, err := os.ReadDir(childDir)
	if err != nil {
		return nil, err
	}

	parents := make(map[tileXY]struct{})
	for _, xd := range xDirs {
		if !xd.IsDir() {
			continue
		}
		x, err := strconv.Atoi(xd.Name())
		if err != nil {
			continue
		}
		files, err := os.ReadDir(filepath.Join(childDir, xd.Name()))
		if err != nil {
			continue
		}
		for _, f := range files {
			name := f.Name()
			if !strings.HasSuffix(name, ext) {
				continue
			}
			y, err := strconv.Atoi(strings.TrimSuffix(name, ext))
			if err != nil {
				continue
			}
			parents[tileXY{x / 2, y / 2}] = struct{}{}
		}
	}
	return parents, nil
}

// synthesizeParent composites the up-to-4 children of (z,px,py) and
// downsamples to a single tile, per spec §4.4 Phase 2 steps 1-4.
func synthesizeParent(ts *catalog.Tileset, z, px, py int, opts Options) (bool, error) {
	ext := opts.Encoder.FileExtension()
	outPath := tilePath(opts.OutDir, ts, z, px, py, ext)
	if _, err := os.Stat(outPath); err == nil {
		tilesSkipped.WithLabelValues("phase2").Inc()
		return false, nil // base tile from Phase 1 wins: step 1
	}

	composite := newTileImage(baseTileSize * 2)
	defer releaseTileImage(composite)

	anyChild := false
	for qy := 0; qy < 2; qy++ {
		for qx := 0; qx < 2; qx++ {
			cx, cy := 2*px+qx, 2*py+qy
			childPath := tilePath(opts.OutDir, ts, z+1, cx, cy, ext)
			data, err := os.ReadFile(childPath)
			if err != nil {
				continue // absent quadrant stays zero
			}
			img, err := encode.DecodeImage(data, opts.Encoder.Format())
			if err != nil {
				return false, err
			}
			blitQuadrant(composite, img, qx*baseTileSize, qy*baseTileSize)
			anyChild = true
		}
	}
	if !anyChild {
		tilesSkipped.WithLabelValues("phase2").Inc()
		return false, nil // step 3: no child existed
	}

	out := resample.Resize(composite, baseTileSize, baseTileSize, opts.Kernel)
	if allTransparent(out) {
		tilesSkipped.WithLabelValues("phase2").Inc()
		return false, nil // step 4
	}

	data, err := opts.Encoder.Encode(out)
	if err != nil {
		return false, err
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return false, err
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return false, err
	}
	tilesWritten.WithLabelValues("phase2").Inc()
	return true, nil
}

func blitQuadrant(dst *image.RGBA, src image.Image, offX, offY int) {
	b := src.Bounds()
	for y := 0; y < b.Dy() && y < baseTileSize; y++ {
		for x := 0; x < b.Dx() && x < baseTileSize; x++ {
			dst.Set(offX+x, offY+y, src.At(b.Min.X+x, b.Min.Y+y))
		}
	}
}

func allTransparent(img *image.RGBA) bool {
	pix := img.Pix
	for i := 3; i < len(pix); i += 4 {
		if pix[i] != 0 {
			return false
		}
	}
	return true
}
