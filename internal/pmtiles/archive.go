package pmtiles

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/chartpyramid/chartpyramid/internal/coord"
)

// ArchiveOptions configures ArchiveDirectory.
type ArchiveOptions struct {
	// TileDir is the root of a z/x/y.ext tile tree, as written by the tile
	// engine (one tileset's TilePath).
	TileDir string
	// Ext is the on-disk file extension to look for, including the dot
	// (".png", ".jpg", ".webp").
	Ext string
	// Output is the path of the .pmtiles file to write.
	Output  string
	Writer  WriterOptions
	TempDir string
}

// ArchiveDirectory walks a z/x/y tile tree written by the tile engine and
// packs it into a single PMTiles v3 archive. Tiles are fed to the Writer in
// per-zoom Hilbert-curve order for on-disk spatial locality in the archive's
// temp file; the Writer's own sort by tile ID in Finalize is what
// actually determines final archive clustering.
func ArchiveDirectory(opts ArchiveOptions) (dedupHits int64, tilesWritten int, err error) {
	byZoom, err := scanTileTree(opts.TileDir, opts.Ext)
	if err != nil {
		return 0, 0, err
	}

	w, err := NewWriter(opts.Output, opts.Writer)
	if err != nil {
		return 0, 0, fmt.Errorf("pmtiles: creating writer: %w", err)
	}

	zooms := make([]int, 0, len(byZoom))
	for z := range byZoom {
		zooms = append(zooms, z)
	}
	sort.Ints(zooms)

	for _, z := range zooms {
		tiles := byZoom[z]
		coord.SortTilesByHilbert(tiles)
		for _, t := range tiles {
			path := filepath.Join(opts.TileDir, strconv.Itoa(t[0]), strconv.Itoa(t[1]), strconv.Itoa(t[2])+opts.Ext)
			data, rerr := os.ReadFile(path)
			if rerr != nil {
				return 0, tilesWritten, fmt.Errorf("pmtiles: reading %s: %w", path, rerr)
			}
			if werr := w.WriteTile(t[0], t[1], t[2], data); werr != nil {
				return 0, tilesWritten, fmt.Errorf("pmtiles: writing tile z=%d x=%d y=%d: %w", t[0], t[1], t[2], werr)
			}
			tilesWritten++
		}
	}

	if err := w.Finalize(); err != nil {
		return 0, tilesWritten, fmt.Errorf("pmtiles: finalizing archive: %w", err)
	}

	return w.dedupHits, tilesWritten, nil
}

// scanTileTree discovers every on-disk tile under root, grouped by zoom
// level, by walking the z/x/y.ext directory layout the tile engine writes
// (the same literal directory scan Phase 2 uses to find parent candidates).
func scanTileTree(root, ext string) (map[int][][3]int, error) {
	out := make(map[int][][3]int)

	zDirs, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("pmtiles: reading tile root %s: %w", root, err)
	}
	for _, zEnt := range zDirs {
		if !zEnt.IsDir() {
			continue
		}
		z, err := strconv.Atoi(zEnt.Name())
		if err != nil {
			continue
		}
		xDirs, err := os.ReadDir(filepath.Join(root, zEnt.Name()))
		if err != nil {
			return nil, err
		}
		for _, xEnt := range xDirs {
			if !xEnt.IsDir() {
				continue
			}
			x, err := strconv.Atoi(xEnt.Name())
			if err != nil {
				continue
			}
			yFiles, err := os.ReadDir(filepath.Join(root, zEnt.Name(), xEnt.Name()))
			if err != nil {
				return nil, err
			}
			for _, yEnt := range yFiles {
				if yEnt.IsDir() || filepath.Ext(yEnt.Name()) != ext {
					continue
				}
				y, err := strconv.Atoi(yEnt.Name()[:len(yEnt.Name())-len(ext)])
				if err != nil {
					continue
				}
				out[z] = append(out[z], [3]int{z, x, y})
			}
		}
	}
	return out, nil
}
