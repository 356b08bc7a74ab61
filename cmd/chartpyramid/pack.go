package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/chartpyramid/chartpyramid/internal/catalog"
	"github.com/chartpyramid/chartpyramid/internal/cog"
	"github.com/chartpyramid/chartpyramid/internal/coord"
	"github.com/chartpyramid/chartpyramid/internal/encode"
	"github.com/chartpyramid/chartpyramid/internal/pmtiles"
)

func init() {
	cmd := &cobra.Command{
		Use:   "pack",
		Short: "Archive a generated tileset's tile tree into a single .pmtiles file",
		RunE:  runPack,
	}

	cmd.Flags().String("config", "", "path to the catalog JSON file (required)")
	cmd.Flags().String("tileset", "", "tileset to archive (required)")
	cmd.Flags().String("outdir", "", "directory generate wrote the tile tree to (required)")
	cmd.Flags().String("format", "png", "tile image format the tileset was generated with: png, jpeg, webp")
	cmd.Flags().String("output", "", "path of the .pmtiles file to write (default: <tileset>.pmtiles)")
	cmd.MarkFlagRequired("config")
	cmd.MarkFlagRequired("tileset")
	cmd.MarkFlagRequired("outdir")

	viper.BindPFlag("pack_config", cmd.Flags().Lookup("config"))
	viper.BindPFlag("pack_tileset", cmd.Flags().Lookup("tileset"))
	viper.BindPFlag("pack_outdir", cmd.Flags().Lookup("outdir"))
	viper.BindPFlag("pack_format", cmd.Flags().Lookup("format"))
	viper.BindPFlag("pack_output", cmd.Flags().Lookup("output"))

	rootCmd.AddCommand(cmd)
}

func runPack(cmd *cobra.Command, args []string) error {
	configPath := viper.GetString("pack_config")
	tilesetName := viper.GetString("pack_tileset")
	outDir := viper.GetString("pack_outdir")
	format := viper.GetString("pack_format")
	output := viper.GetString("pack_output")

	c, err := catalog.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}
	ts, ok := c.Tileset(tilesetName)
	if !ok {
		return fmt.Errorf("unknown tileset %q", tilesetName)
	}

	enc, err := encode.NewEncoder(format, 0)
	if err != nil {
		return fmt.Errorf("tile encoder: %w", err)
	}

	if output == "" {
		output = tilesetName + ".pmtiles"
	}

	bounds, err := tilesetBounds(outDir, ts, enc.FileExtension())
	if err != nil {
		return fmt.Errorf("computing tileset bounds: %w", err)
	}

	dedupHits, written, err := pmtiles.ArchiveDirectory(pmtiles.ArchiveOptions{
		TileDir: filepath.Join(outDir, ts.TilePath),
		Ext:     enc.FileExtension(),
		Output:  output,
		Writer: pmtiles.WriterOptions{
			MinZoom:        ts.ZoomMin,
			MaxZoom:        ts.ZoomMax,
			Bounds:         bounds,
			TileFormat:     enc.PMTileType(),
			TileSize:       256,
			Name:           ts.Name,
			Tileset:        ts.Name,
			CatalogVersion: c.Version,
			Datasets:       ts.Datasets,
		},
	})
	if err != nil {
		return err
	}

	fmt.Printf("wrote %s: %d tiles (%d deduplicated)\n", output, written, dedupHits)

	if err := verifyArchive(output, written); err != nil {
		return fmt.Errorf("verifying archive: %w", err)
	}
	return nil
}

// verifyArchive reopens the just-written archive, checks its tile count
// against what ArchiveDirectory reported and prints the zoom range from its
// header, catching a truncated or corrupt write before the caller ships the
// file.
func verifyArchive(path string, wantTiles int) error {
	r, err := pmtiles.OpenReader(path)
	if err != nil {
		return err
	}
	defer r.Close()

	if got := r.NumTiles(); got != wantTiles {
		return fmt.Errorf("archive reports %d tiles, expected %d", got, wantTiles)
	}

	h := r.Header()
	fmt.Printf("verified: zoom %d-%d, %d tiles\n", h.MinZoom, h.MaxZoom, r.NumTiles())
	return nil
}

// tilesetBounds unions the WGS84 bounds of every tile actually written at
// the tileset's minimum zoom, the coarsest (and smallest) level the archive
// covers. Catalog-declared GeoBound is a per-dataset clip override, not a
// tileset extent, so it is not a reliable source here.
func tilesetBounds(outDir string, ts *catalog.Tileset, ext string) (cog.Bounds, error) {
	root := filepath.Join(outDir, ts.TilePath, strconv.Itoa(ts.ZoomMin))
	xDirs, err := os.ReadDir(root)
	if err != nil {
		return cog.Bounds{}, err
	}

	var b cog.Bounds
	first := true
	for _, xEnt := range xDirs {
		if !xEnt.IsDir() {
			continue
		}
		x, err := strconv.Atoi(xEnt.Name())
		if err != nil {
			continue
		}
		yFiles, err := os.ReadDir(filepath.Join(root, xEnt.Name()))
		if err != nil {
			return cog.Bounds{}, err
		}
		for _, yEnt := range yFiles {
			if yEnt.IsDir() || filepath.Ext(yEnt.Name()) != ext {
				continue
			}
			y, err := strconv.Atoi(yEnt.Name()[:len(yEnt.Name())-len(ext)])
			if err != nil {
				continue
			}
			minLon, minLat, maxLon, maxLat := coord.TileBounds(ts.ZoomMin, x, y)
			if first {
				b = cog.Bounds{MinLon: minLon, MinLat: minLat, MaxLon: maxLon, MaxLat: maxLat}
				first = false
				continue
			}
			if minLon < b.MinLon {
				b.MinLon = minLon
			}
			if minLat < b.MinLat {
				b.MinLat = minLat
			}
			if maxLon > b.MaxLon {
				b.MaxLon = maxLon
			}
			if maxLat > b.MaxLat {
				b.MaxLat = maxLat
			}
		}
	}
	if first {
		return cog.Bounds{}, fmt.Errorf("no tiles found at zoom %d under %s", ts.ZoomMin, root)
	}
	return b, nil
}
