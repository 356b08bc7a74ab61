// Package chartpyramid converts aeronautical chart archives into a web map
// tile pyramid: it loads a JSON dataset/tileset catalog, warps each source
// chart into a georeferenced raster, and tiles the result in two phases.
// The subcommands live under cmd/chartpyramid; the pipeline stages live
// under internal/.
package chartpyramid

import (
	"fmt"
	"log/slog"
)

// ErrorKind classifies a pipeline failure into the fixed taxonomy shared by
// the raster pipeline and tile engine.
type ErrorKind string

const (
	ErrSourceNotFound   ErrorKind = "source-not-found"
	ErrExpandFailed     ErrorKind = "expand-failed"
	ErrInsufficientGCPs ErrorKind = "insufficient-gcps"
	ErrMaskInvalid      ErrorKind = "mask-invalid"
	ErrSaveFailed       ErrorKind = "save-failed"
)

// Error wraps a pipeline failure with the dataset and (optional) stage it
// happened in, alongside the underlying cause, so callers can log or branch
// on Kind without string-matching Error().
type Error struct {
	Kind    ErrorKind
	Dataset string
	Stage   string
	Err     error
}

func (e *Error) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s: dataset %q: stage %s: %v", e.Kind, e.Dataset, e.Stage, e.Err)
	}
	return fmt.Sprintf("%s: dataset %q: %v", e.Kind, e.Dataset, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// LogValue renders the error as structured slog attributes instead of its
// flat Error() string, so `slog.Any("err", err)` logs kind/dataset/stage as
// separate fields.
func (e *Error) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("kind", string(e.Kind)),
		slog.String("dataset", e.Dataset),
	}
	if e.Stage != "" {
		attrs = append(attrs, slog.String("stage", e.Stage))
	}
	attrs = append(attrs, slog.Any("cause", e.Err))
	return slog.GroupValue(attrs...)
}
