package tileengine

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/paulmach/orb/maptile"

	"github.com/chartpyramid/chartpyramid/internal/catalog"
	"github.com/chartpyramid/chartpyramid/internal/coord"
	"github.com/chartpyramid/chartpyramid/internal/jobqueue"
	"github.com/chartpyramid/chartpyramid/internal/manifest"
	"github.com/chartpyramid/chartpyramid/internal/mosaic"
)

// runPhase1 flattens the manifest into an ordered (z,x,y) vector and renders
// each one through a jobqueue.Run pool, sampling the per-zoom mosaic built
// ahead of time in Build. This is the goroutine-pool realization of spec
// §4.4 Phase 1's "anonymous shared atomic counter, fetch-and-add to claim
// the next tile index" — jobqueue.Run already implements that claim loop,
// so Phase 1 supplies only the per-tile work function.
func runPhase1(ctx context.Context, ts *catalog.Tileset, man *manifest.Manifest, mosaics map[int]*mosaic.ZoomMosaic, opts Options) (jobqueue.Result, int, error) {
	tiles := man.Flatten()
	var written int64

	job := func(ctx context.Context, idx int) jobqueue.Status {
		t := tiles[idx]
		zm := mosaics[int(t.Z)]
		ok, err := renderTile(ts, zm, t, opts)
		if err != nil {
			return jobqueue.Failed
		}
		if ok {
			atomic.AddInt64(&written, 1)
		}
		if opts.Progress != nil {
			opts.Progress("phase1", int(atomic.LoadInt64(&written)))
		}
		return jobqueue.Succeeded
	}

	res := jobqueue.Run(ctx, jobqueue.Config{
		JobCount:   len(tiles),
		MaxWorkers: opts.MaxWorkers,
		Job:        job,
	})

	return res, int(written), nil
}

// renderTile produces one (z,x,y) tile, returning ok=false when the tile was
// skipped (already present, disjoint from mosaic coverage, or fully
// transparent) rather than written, per spec §4.4 steps 1-8.
func renderTile(ts *catalog.Tileset, zm *mosaic.ZoomMosaic, t maptile.Tile, opts Options) (bool, error) {
	outPath := tilePath(opts.OutDir, ts, int(t.Z), int(t.X), int(t.Y), opts.Encoder.FileExtension())
	if _, err := os.Stat(outPath); err == nil {
		tilesSkipped.WithLabelValues("phase1").Inc()
		return false, nil // idempotent re-run: step 1
	}
	if zm == nil {
		tilesSkipped.WithLabelValues("phase1").Inc()
		return false, nil // no dataset qualifies at this zoom (spec §4.3 sentinel)
	}
	start := time.Now()
	defer func() { renderDuration.Observe(time.Since(start).Seconds()) }()

	minLon, minLat, maxLon, maxLat := coord.TileBounds(int(t.Z), int(t.X), int(t.Y))
	proj := &coord.WebMercatorProj{}
	tMinX, tMinY := proj.FromWGS84(minLon, minLat)
	tMaxX, tMaxY := proj.FromWGS84(maxLon, maxLat)

	b := zm.Bounds()
	if tMaxX < b.MinX || tMinX > b.MaxX || tMaxY < b.MinY || tMinY > b.MaxY {
		tilesSkipped.WithLabelValues("phase1").Inc()
		return false, nil // disjoint from every contributing dataset: step 3
	}

	const tileSize = 256
	outputRes := coord.ResolutionAtLat(0, int(t.Z))
	img := newTileImage(tileSize)
	defer releaseTileImage(img)
	anyOpaque := false

	for py := 0; py < tileSize; py++ {
		for px := 0; px < tileSize; px++ {
			lon, lat := coord.PixelToLonLat(int(t.Z), int(t.X), int(t.Y), tileSize, float64(px)+0.5, float64(py)+0.5)
			mx, my := proj.FromWGS84(lon, lat)
			r, g, bl, a, ok := zm.SampleRGBA(mx, my, outputRes)
			if !ok || a == 0 {
				continue
			}
			img.SetRGBA(px, py, rgba(r, g, bl, a))
			anyOpaque = true
		}
	}

	if !anyOpaque {
		tilesSkipped.WithLabelValues("phase1").Inc()
		return false, nil // every alpha byte 0: step 7
	}

	data, err := opts.Encoder.Encode(img)
	if err != nil {
		return false, err
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return false, err
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return false, err
	}
	tilesWritten.WithLabelValues("phase1").Inc()
	return true, nil
}

func tilePath(outDir string, ts *catalog.Tileset, z, x, y int, ext string) string {
	return filepath.Join(outDir, ts.TilePath, strconv.Itoa(z), strconv.Itoa(x), strconv.Itoa(y)+ext)
}
