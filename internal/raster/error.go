// Package raster implements the per-dataset raster pipeline described in
// spec §4.2: seven sequential stages that transform one archived source
// GeoTIFF into a processed, tiled, overview-carrying GeoTIFF in the target
// CRS.
package raster

import (
	"errors"

	"github.com/chartpyramid/chartpyramid"
)

var errBadWindow = errors.New("mask bounding box does not intersect source image")

// Error is a pipeline-stage failure, an alias of the module's shared error
// taxonomy so raster failures carry the same Kind/Dataset/Stage shape the
// tile engine and CLI log by.
type Error = chartpyramid.Error
