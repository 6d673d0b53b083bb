package transform

import (
	"errors"
	"fmt"
)

// ErrDegenerateGeometry is matched by every GeometryError.
var ErrDegenerateGeometry = errors.New("degenerate geometry")

// DegeneracyKind classifies why a look angle has no well-defined direction.
type DegeneracyKind string

const (
	// ZeroRange: observer and target coincide.
	ZeroRange DegeneracyKind = "zero_range"
	// ElevationDomain: |zenith/range| exceeded 1 by more than rounding.
	ElevationDomain DegeneracyKind = "elevation_domain"
	// UndefinedAzimuth: target is exactly on the local vertical.
	UndefinedAzimuth DegeneracyKind = "undefined_azimuth"
	// NonFinite: an input or output was NaN or Inf.
	NonFinite DegeneracyKind = "non_finite"
)

// GeometryError reports a degenerate look-angle evaluation. Look holds the
// unsanitised values the reference formulas produced.
type GeometryError struct {
	Kind DegeneracyKind
	Look LookAngle
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("%s: %s (az=%v el=%v range=%v km)",
		ErrDegenerateGeometry, e.Kind, e.Look.Azimuth, e.Look.Elevation, e.Look.Distance)
}

func (e *GeometryError) Unwrap() error {
	return ErrDegenerateGeometry
}
