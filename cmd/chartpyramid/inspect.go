package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chartpyramid/chartpyramid/internal/cog"
)

func init() {
	cmd := &cobra.Command{
		Use:   "inspect <processed-raster.tif>",
		Short: "Print geotransform, overview, and tile-read diagnostics for a processed raster",
		Args:  cobra.ExactArgs(1),
		RunE:  runInspect,
	}
	rootCmd.AddCommand(cmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	path := args[0]
	r, err := cog.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer r.Close()

	fmt.Printf("File: %s\n", path)
	fmt.Printf("EPSG: %d\n", r.EPSG())
	fmt.Printf("Full-res size: %d x %d\n", r.Width(), r.Height())
	fmt.Printf("Pixel size (CRS units): %f\n", r.PixelSize())
	fmt.Printf("IFD count: %d (1 full-res + %d overviews)\n", r.IFDCount(), r.NumOverviews())

	geo := r.GeoInfo()
	fmt.Printf("Origin: X=%f, Y=%f\n", geo.OriginX, geo.OriginY)

	minX, minY, maxX, maxY := r.BoundsInCRS()
	fmt.Printf("Bounds (CRS): X=[%f, %f], Y=[%f, %f]\n", minX, maxX, minY, maxY)

	for level := 0; level < r.IFDCount(); level++ {
		ts := r.IFDTileSize(level)
		w := r.IFDWidth(level)
		h := r.IFDHeight(level)
		ps := r.IFDPixelSize(level)
		fmt.Printf("\n  IFD %d: %dx%d, tile %dx%d, pixel size=%f\n", level, w, h, ts[0], ts[1], ps)

		img, err := r.ReadTile(level, 0, 0)
		if err != nil {
			fmt.Printf("  ReadTile(level=%d, 0, 0): ERROR: %v\n", level, err)
			continue
		}
		bounds := img.Bounds()
		fmt.Printf("  ReadTile(level=%d, 0, 0): OK, image: %dx%d, type: %T\n", level, bounds.Dx(), bounds.Dy(), img)
	}

	return nil
}
