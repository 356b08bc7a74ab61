package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"sort"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/chartpyramid/chartpyramid/internal/catalog"
	"github.com/chartpyramid/chartpyramid/internal/cog"
	"github.com/chartpyramid/chartpyramid/internal/coord"
	"github.com/chartpyramid/chartpyramid/internal/encode"
	"github.com/chartpyramid/chartpyramid/internal/jobqueue"
	"github.com/chartpyramid/chartpyramid/internal/manifest"
	"github.com/chartpyramid/chartpyramid/internal/raster"
	"github.com/chartpyramid/chartpyramid/internal/resample"
	"github.com/chartpyramid/chartpyramid/internal/tile"
	"github.com/chartpyramid/chartpyramid/internal/tileengine"
)

func init() {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Run the raster pipeline and tile engine for one or more tilesets",
		RunE:  runGenerate,
	}

	cmd.Flags().String("config", "", "path to the catalog JSON file (required)")
	cmd.Flags().String("zipdir", "", "directory containing the source chart archives (required)")
	cmd.Flags().String("tmpdir", "", "directory for intermediate processed rasters (required)")
	cmd.Flags().String("outdir", "", "directory for the output tile tree (required)")
	cmd.Flags().StringSlice("tileset", nil, "restrict to these tilesets (default: all)")
	cmd.Flags().Int("workers", 0, "max concurrent workers (default: number of CPUs, lowered to fit available memory)")
	cmd.Flags().String("format", "png", "tile image format: png, jpeg, webp")
	cmd.Flags().Int("quality", 85, "JPEG/WebP quality 1-100")
	cmd.Flags().String("resampling", "bilinear", "nearest|bilinear|cubic|cubicspline|lanczos|average|mode")
	cmd.Flags().String("metrics-addr", "", "if set, serve Prometheus metrics at this address (e.g. :9090)")
	cmd.MarkFlagRequired("config")
	cmd.MarkFlagRequired("zipdir")
	cmd.MarkFlagRequired("tmpdir")
	cmd.MarkFlagRequired("outdir")

	viper.BindPFlag("config", cmd.Flags().Lookup("config"))
	viper.BindPFlag("zipdir", cmd.Flags().Lookup("zipdir"))
	viper.BindPFlag("tmpdir", cmd.Flags().Lookup("tmpdir"))
	viper.BindPFlag("outdir", cmd.Flags().Lookup("outdir"))
	viper.BindPFlag("tileset", cmd.Flags().Lookup("tileset"))
	viper.BindPFlag("workers", cmd.Flags().Lookup("workers"))
	viper.BindPFlag("format", cmd.Flags().Lookup("format"))
	viper.BindPFlag("quality", cmd.Flags().Lookup("quality"))
	viper.BindPFlag("resampling", cmd.Flags().Lookup("resampling"))
	viper.BindPFlag("metrics_addr", cmd.Flags().Lookup("metrics-addr"))

	rootCmd.AddCommand(cmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	configPath := viper.GetString("config")
	zipDir := viper.GetString("zipdir")
	tmpDir := viper.GetString("tmpdir")
	outDir := viper.GetString("outdir")
	wantTilesets := viper.GetStringSlice("tileset")
	workers := viper.GetInt("workers")
	format := viper.GetString("format")
	quality := viper.GetInt("quality")
	kernel := resample.Parse(viper.GetString("resampling"))

	if workers <= 0 {
		workers = defaultWorkers()
	}

	if addr := viper.GetString("metrics_addr"); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(addr, mux); err != nil {
				slog.Error("metrics server exited", "err", err)
			}
		}()
		slog.Info("serving metrics", "addr", addr)
	}

	c, err := catalog.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}

	tilesets, err := selectTilesets(c, wantTilesets)
	if err != nil {
		return err
	}

	enc, err := encode.NewEncoder(format, quality)
	if err != nil {
		return fmt.Errorf("tile encoder: %w", err)
	}

	datasetNames := unionDatasets(c, tilesets)
	pipeline := raster.New(raster.Options{ZipDir: zipDir, TmpDir: tmpDir, Kernel: kernel})

	readers, pipelineRes := processDatasets(ctx, c, datasetNames, pipeline, workers)
	defer func() {
		for _, r := range readers {
			r.Close()
		}
	}()
	if pipelineRes.Failed > 0 {
		slog.Warn("raster pipeline reported failures", "succeeded", pipelineRes.Succeeded, "failed", pipelineRes.Failed)
	}

	allOK := pipelineRes.Failed == 0
	for _, ts := range tilesets {
		ok, err := buildTileset(ctx, c, ts, readers, tileengine.Options{
			OutDir:     outDir,
			MaxWorkers: workers,
			Kernel:     kernel,
			Encoder:    enc,
		})
		if err != nil {
			slog.Error("tileset failed", "tileset", ts.Name, "err", err)
			allOK = false
			continue
		}
		if !ok {
			allOK = false
		}
	}

	if !allOK {
		return fmt.Errorf("one or more tilesets reported failures")
	}
	return nil
}

// perWorkerBudgetBytes is a conservative estimate of the peak memory a
// single raster-pipeline or tile-engine worker holds at once (decoded
// source window, warp buffer, and overview encode scratch).
const perWorkerBudgetBytes = 512 * 1024 * 1024

// defaultWorkers bounds the worker pool by both CPU count and available
// memory headroom, so a memory-constrained host doesn't spawn enough
// concurrent raster buffers to start swapping.
func defaultWorkers() int {
	n := runtime.NumCPU()
	limit := tile.ComputeMemoryLimit(tile.DefaultMemoryPressurePercent, false)
	if limit <= 0 {
		return n
	}
	byMem := int(limit / perWorkerBudgetBytes)
	if byMem < 1 {
		byMem = 1
	}
	if byMem < n {
		slog.Info("reducing worker count for available memory", "cpus", n, "memory_limited_workers", byMem)
		return byMem
	}
	return n
}

func selectTilesets(c *catalog.Catalog, names []string) ([]*catalog.Tileset, error) {
	if len(names) == 0 {
		out := make([]*catalog.Tileset, 0, len(c.Tilesets))
		for _, ts := range c.Tilesets {
			out = append(out, ts)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
		return out, nil
	}
	out := make([]*catalog.Tileset, 0, len(names))
	for _, n := range names {
		ts, ok := c.Tileset(n)
		if !ok {
			return nil, fmt.Errorf("unknown tileset %q", n)
		}
		out = append(out, ts)
	}
	return out, nil
}

func unionDatasets(c *catalog.Catalog, tilesets []*catalog.Tileset) []string {
	seen := make(map[string]bool)
	var out []string
	for _, ts := range tilesets {
		for _, name := range ts.Datasets {
			if seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// processDatasets runs the raster pipeline for every named dataset through
// jobqueue.Run, sorting large charts first per spec §4.2's "Sorting", then
// opens a reader on every output that was written successfully.
func processDatasets(ctx context.Context, c *catalog.Catalog, names []string, pipeline *raster.Pipeline, workers int) (map[string]*cog.Reader, jobqueue.Result) {
	datasets := make([]*catalog.Dataset, 0, len(names))
	for _, n := range names {
		if d, ok := c.Dataset(n); ok {
			datasets = append(datasets, d)
		}
	}

	res := jobqueue.Run(ctx, jobqueue.Config{
		JobCount:   len(datasets),
		MaxWorkers: workers,
		WorkEstimate: func(i int) float64 {
			return raster.WorkEstimate(datasets[i])
		},
		Job: func(ctx context.Context, i int) jobqueue.Status {
			d := datasets[i]
			if _, err := pipeline.Process(ctx, d); err != nil {
				slog.Error("raster pipeline failed", "err", err)
				return jobqueue.Failed
			}
			return jobqueue.Succeeded
		},
	})

	readers := make(map[string]*cog.Reader)
	for _, d := range datasets {
		path := pipeline.OutputPath(d)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		r, err := cog.Open(path)
		if err != nil {
			slog.Error("opening processed raster", "dataset", d.Name, "err", err)
			continue
		}
		readers[d.Name] = r
	}

	return readers, res
}

// buildTileset computes the tileset's manifest from its qualifying
// datasets' processed-raster extents, then runs the tile engine.
func buildTileset(ctx context.Context, c *catalog.Catalog, ts *catalog.Tileset, readers map[string]*cog.Reader, opts tileengine.Options) (bool, error) {
	proj := &coord.WebMercatorProj{}
	var extents []manifest.DatasetExtent
	for _, name := range ts.Datasets {
		d, ok := c.Dataset(name)
		if !ok {
			continue
		}
		r, ok := readers[name]
		if !ok {
			continue
		}
		minX, minY, maxX, maxY := r.BoundsInCRS()
		minLon, minLat := proj.ToWGS84(minX, minY)
		maxLon, maxLat := proj.ToWGS84(maxX, maxY)
		extents = append(extents, manifest.DatasetExtent{
			Dataset: d, MinLon: minLon, MinLat: minLat, MaxLon: maxLon, MaxLat: maxLat,
		})
	}

	man := manifest.Build(ts, extents)
	if !viper.GetBool("quiet") {
		opts.Progress = tileengine.NewTerminalProgress(int64(man.Count()), 0)
	}
	summary, err := tileengine.Build(ctx, ts, c, man, readers, opts)
	if err != nil {
		return false, err
	}
	slog.Info("tileset complete", "tileset", ts.Name, "phase1_written", summary.Phase1Written, "phase2_written", summary.Phase2Written)
	return summary.Phase1.OK(), nil
}
