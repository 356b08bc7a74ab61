package raster

import (
	"context"
	"path/filepath"

	"github.com/chartpyramid/chartpyramid/internal/catalog"
	"github.com/chartpyramid/chartpyramid/internal/cog"
	"github.com/chartpyramid/chartpyramid/internal/resample"
)

// Options configures a Pipeline: where to find archives, where to write
// intermediates, and which resampling kernel to use for the warp and
// overview stages.
type Options struct {
	ZipDir string
	TmpDir string
	Kernel resample.Kernel
}

// Pipeline runs the seven-stage per-dataset raster transform of spec §4.2.
type Pipeline struct {
	opts Options
}

// New constructs a Pipeline.
func New(opts Options) *Pipeline {
	return &Pipeline{opts: opts}
}

// OutputPath is the processed-raster path a successful Process call writes.
func (p *Pipeline) OutputPath(d *catalog.Dataset) string {
	return filepath.Join(p.opts.TmpDir, d.TmpFile)
}

// WorkEstimate returns the dataset's mask outer-ring bounding-box area (or
// 0 when absent), used by the job queue to sort large charts first (spec
// §4.2 "Sorting").
func WorkEstimate(d *catalog.Dataset) float64 {
	if d.Mask == nil {
		return 0
	}
	bb := d.Mask.BoundingBox()
	w := bb.Max[0] - bb.Min[0]
	h := bb.Max[1] - bb.Min[1]
	if w < 0 || h < 0 {
		return 0
	}
	return w * h
}

// Process runs all seven stages for dataset d and writes the processed
// raster to OutputPath(d). ctx is accepted for the blocking I/O and warp
// work this performs but is not currently cancellation-checked mid-stage —
// the job queue instead bounds overall run time by worker count.
func (p *Pipeline) Process(ctx context.Context, d *catalog.Dataset) (string, error) {
	src, cleanup, err := openFromArchive(p.opts.ZipDir, p.opts.TmpDir, d)
	if err != nil {
		return "", err
	}
	defer cleanup()

	buf, wox, woy, err := stageExpandWindow(src, d)
	if err != nil {
		return "", err
	}

	buf, cox, coy, err := stageMask(buf, d, wox, woy)
	if err != nil {
		return "", err
	}

	buf, err = stageGCPAffine(buf, d, cox, coy)
	if err != nil {
		return "", err
	}

	buf, err = stageWarp(buf, d.MaxLOD, p.opts.Kernel)
	if err != nil {
		return "", err
	}

	buf, err = stageClip(buf, d)
	if err != nil {
		return "", err
	}

	outPath := p.OutputPath(d)
	bigTIFF := len(buf.pix) > (1 << 31)
	werr := cog.Write(outPath, buf.pix, cog.WriteOptions{
		Width:           buf.w,
		Height:          buf.h,
		TileSize:        256,
		PixelSizeX:      buf.geo.PixelSizeX,
		PixelSizeY:      buf.geo.PixelSizeY,
		OriginX:         buf.geo.OriginX,
		OriginY:         buf.geo.OriginY,
		EPSG:            buf.geo.EPSG,
		OverviewFactors: cog.DefaultOverviewFactors,
		BigTIFF:         bigTIFF,
	})
	if werr != nil {
		return "", &Error{Kind: "save-failed", Dataset: d.Name, Stage: "persist", Err: werr}
	}

	return outPath, nil
}
