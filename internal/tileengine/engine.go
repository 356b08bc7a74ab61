// Package tileengine builds a tileset's full tile pyramid in two phases,
// per spec §4.4: Phase 1 renders base tiles in parallel by sampling each
// zoom level's zoom-VRT mosaic directly; Phase 2 synthesizes the remaining
// overview levels sequentially, zoom_max-1 down to zoom_min, by compositing
// already-written child tiles — never overwriting a Phase-1 base tile.
package tileengine

import (
	"context"
	"fmt"

	"github.com/chartpyramid/chartpyramid/internal/catalog"
	"github.com/chartpyramid/chartpyramid/internal/cog"
	"github.com/chartpyramid/chartpyramid/internal/encode"
	"github.com/chartpyramid/chartpyramid/internal/jobqueue"
	"github.com/chartpyramid/chartpyramid/internal/manifest"
	"github.com/chartpyramid/chartpyramid/internal/mosaic"
	"github.com/chartpyramid/chartpyramid/internal/resample"
)

// Options configures one Build call.
type Options struct {
	OutDir     string // tiles root; tiles land at {OutDir}/{tileset.TilePath}/{z}/{x}/{y}.{ext}
	MaxWorkers int
	Kernel     resample.Kernel
	Encoder    encode.Encoder
	Progress   ProgressFunc // optional; called after each tile attempt in both phases
}

// ProgressFunc receives a one-line label ("phase1", "phase2") and the
// cumulative count of tiles written so far in that phase.
type ProgressFunc func(phase string, written int)

// Summary reports what Build did.
type Summary struct {
	Phase1 jobqueue.Result
	Phase1Written int
	Phase2Written int
}

// Build generates every tile for tileset ts: Phase 1 over all zoom levels in
// parallel, then Phase 2 synthesizing overviews down to ts.ZoomMin.
// openReaders must hold every dataset in ts.Datasets whose processed raster
// exists on disk, keyed by dataset name (spec §4.3's "whose processed raster
// exists on disk" qualifier is the caller's responsibility, mirroring how
// the raster pipeline's output feeds the manifest and mosaic stages).
func Build(ctx context.Context, ts *catalog.Tileset, c *catalog.Catalog, man *manifest.Manifest, openReaders map[string]*cog.Reader, opts Options) (Summary, error) {
	if opts.Encoder == nil {
		return Summary{}, fmt.Errorf("tileengine: Options.Encoder is required")
	}

	mosaics := make(map[int]*mosaic.ZoomMosaic, ts.ZoomMax-ts.ZoomMin+1)
	for z := ts.ZoomMin; z <= ts.ZoomMax; z++ {
		mosaics[z] = mosaic.Build(ts, c, z, openReaders)
	}

	p1, written1, err := runPhase1(ctx, ts, man, mosaics, opts)
	if err != nil {
		return Summary{}, err
	}
	if !p1.OK() {
		return Summary{Phase1: p1, Phase1Written: written1}, fmt.Errorf("tileengine: phase1 failed %d/%d tiles for tileset %q", p1.Failed, p1.Failed+p1.Succeeded, ts.Name)
	}

	written2, err := runPhase2(ts, opts)
	if err != nil {
		return Summary{}, err
	}

	return Summary{Phase1: p1, Phase1Written: written1, Phase2Written: written2}, nil
}
