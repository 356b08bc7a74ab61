// Package catalog loads and validates the JSON dataset/tileset catalog
// described in spec §3/§6: a fixed set of chart Datasets (name, archive
// location, optional mask/geobound/GCPs, max level of detail) grouped into
// Tilesets (output path, zoom range, ordered dataset membership).
package catalog

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/paulmach/orb"
)

// GCP is a ground-control point: a correspondence between a pixel
// coordinate in the *original* source image and a (lon, lat) geographic
// coordinate.
type GCP struct {
	PixelX float64
	PixelY float64
	Lon    float64
	Lat    float64
}

// GeoBound is the optional geographic clip window. Any of the four sides
// may be absent (nil), meaning "do not clip this side."
type GeoBound struct {
	MinLon, MinLat, MaxLon, MaxLat *float64
}

// HasAny reports whether at least one side is set.
func (g *GeoBound) HasAny() bool {
	if g == nil {
		return false
	}
	return g.MinLon != nil || g.MinLat != nil || g.MaxLon != nil || g.MaxLat != nil
}

// Mask is a pixel-space polygon with an outer ring and zero or more holes,
// expressed in source-image pixel coordinates prior to any windowing.
type Mask struct {
	Outer orb.Ring
	Holes []orb.Ring
}

// Polygon returns the mask as an orb.Polygon (outer ring first, holes
// after), for use with orb/fogleman-gg based rasterization.
func (m *Mask) Polygon() orb.Polygon {
	poly := make(orb.Polygon, 0, 1+len(m.Holes))
	poly = append(poly, m.Outer)
	poly = append(poly, m.Holes...)
	return poly
}

// BoundingBox returns the mask's axis-aligned bounding box in source pixel
// space, used by raster pipeline stage 2 to fuse the palette-expand and
// windowing operations.
func (m *Mask) BoundingBox() orb.Bound {
	return m.Outer.Bound()
}

// Dataset is one chart definition: catalog-defined and immutable for a run.
type Dataset struct {
	Name      string
	ZipFile   string // archive stem, without the .zip extension
	InputFile string // member name within the archive
	TmpFile   string // per-dataset processed-raster filename
	Mask      *Mask
	GeoBound  *GeoBound
	GCPs      []GCP
	MaxLOD    int
}

// Tileset is a mosaic grouping: an ordered list of dataset names rendered
// into one output tile tree.
type Tileset struct {
	Name     string
	TilePath string // output subdirectory under outpath
	ZoomMin  int
	ZoomMax  int
	Datasets []string // dataset names, in catalog-declared order
}

// Catalog is the full loaded configuration: lookup by name, read-only
// after Load per spec §5's "no process-wide mutable state" rule.
type Catalog struct {
	Version  string // free-form catalog revision, carried into archive metadata
	Datasets map[string]*Dataset
	Tilesets map[string]*Tileset
}

// Dataset looks up a dataset by name.
func (c *Catalog) Dataset(name string) (*Dataset, bool) {
	d, ok := c.Datasets[name]
	return d, ok
}

// Tileset looks up a tileset by name.
func (c *Catalog) Tileset(name string) (*Tileset, bool) {
	t, ok := c.Tilesets[name]
	return t, ok
}

// TilesetDatasets resolves a tileset's dataset-name list into Dataset
// pointers, in the tileset's declared order.
func (c *Catalog) TilesetDatasets(t *Tileset) []*Dataset {
	out := make([]*Dataset, 0, len(t.Datasets))
	for _, name := range t.Datasets {
		if d, ok := c.Datasets[name]; ok {
			out = append(out, d)
		}
	}
	return out
}

// --- JSON wire schema (spec §6) ---

type wireCatalog struct {
	Version  string                 `json:"version"`
	Datasets map[string]wireDataset `json:"datasets"`
	Tilesets map[string]wireTileset `json:"tilesets"`
}

type wireDataset struct {
	ZipFile   string         `json:"zip_file"`
	InputFile string         `json:"input_file"`
	TmpFile   string         `json:"tmp_file"`
	Mask      [][][2]float64 `json:"mask"`
	GeoBound  [4]*float64    `json:"geobound"`
	GCPs      [][4]float64   `json:"gcps"`
	MaxLOD    int            `json:"max_lod"`
}

type wireTileset struct {
	TilePath string   `json:"tile_path"`
	Zoom     [2]int   `json:"zoom"`
	Datasets []string `json:"datasets"`
}

// Load reads and validates the JSON catalog at path, per spec §6's fixed
// schema. Validation failures include: a tileset referencing an unknown
// dataset, and a mask whose outer ring has fewer than 3 vertices or
// zero signed area (the mask-invalid Open Question is resolved at this
// layer too, for catalog-time detection; the raster pipeline re-checks at
// stage 3 since a mask may also arise from programmatic construction).
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: reading %s: %w", path, err)
	}

	var wire wireCatalog
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("catalog: parsing %s: %w", path, err)
	}

	c := &Catalog{
		Version:  wire.Version,
		Datasets: make(map[string]*Dataset, len(wire.Datasets)),
		Tilesets: make(map[string]*Tileset, len(wire.Tilesets)),
	}

	for name, wd := range wire.Datasets {
		d := &Dataset{
			Name:      name,
			ZipFile:   wd.ZipFile,
			InputFile: wd.InputFile,
			TmpFile:   wd.TmpFile,
			MaxLOD:    wd.MaxLOD,
		}
		if d.TmpFile == "" {
			d.TmpFile = name + ".tif"
		}

		if len(wd.Mask) > 0 {
			m := &Mask{Outer: ringFromPoints(wd.Mask[0])}
			for _, hole := range wd.Mask[1:] {
				m.Holes = append(m.Holes, ringFromPoints(hole))
			}
			if err := validateMask(m); err != nil {
				return nil, fmt.Errorf("catalog: dataset %q: %w", name, err)
			}
			d.Mask = m
		}

		if wd.GeoBound != [4]*float64{} {
			gb := &GeoBound{MinLon: wd.GeoBound[0], MinLat: wd.GeoBound[1], MaxLon: wd.GeoBound[2], MaxLat: wd.GeoBound[3]}
			if gb.HasAny() {
				d.GeoBound = gb
			}
		}

		for _, g := range wd.GCPs {
			d.GCPs = append(d.GCPs, GCP{PixelX: g[0], PixelY: g[1], Lon: g[2], Lat: g[3]})
		}

		c.Datasets[name] = d
	}

	for name, wt := range wire.Tilesets {
		c.Tilesets[name] = &Tileset{
			Name:     name,
			TilePath: wt.TilePath,
			ZoomMin:  wt.Zoom[0],
			ZoomMax:  wt.Zoom[1],
			Datasets: wt.Datasets,
		}
	}

	for _, t := range c.Tilesets {
		for _, dn := range t.Datasets {
			if _, ok := c.Datasets[dn]; !ok {
				return nil, fmt.Errorf("catalog: tileset %q references unknown dataset %q", t.Name, dn)
			}
		}
	}

	return c, nil
}

func ringFromPoints(pts [][2]float64) orb.Ring {
	r := make(orb.Ring, len(pts))
	for i, p := range pts {
		r[i] = orb.Point{p[0], p[1]}
	}
	return r
}

// validateMask rejects an outer ring with fewer than 3 vertices or
// zero signed area, per spec §9's Open Question resolution: mask-invalid,
// not a silently-produced empty raster.
func validateMask(m *Mask) error {
	if len(m.Outer) < 3 {
		return fmt.Errorf("mask-invalid: outer ring has %d vertices, need at least 3", len(m.Outer))
	}
	if signedArea(m.Outer) == 0 {
		return fmt.Errorf("mask-invalid: outer ring has zero area")
	}
	return nil
}

func signedArea(r orb.Ring) float64 {
	var area float64
	n := len(r)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		area += r[i][0]*r[j][1] - r[j][0]*r[i][1]
	}
	return area / 2
}
