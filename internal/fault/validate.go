// Package fault validates proposed cable cuts and owns the fault id convention.
package fault

import (
	"errors"
	"fmt"

	"github.com/cablewatch/cablemap/pkg/core"
)

var (
	// ErrMissingFaultType is returned when no fault type was selected.
	ErrMissingFaultType = errors.New("fault type is required")

	// ErrDistanceOutOfBounds matches any *DistanceOutOfBoundsError.
	ErrDistanceOutOfBounds = errors.New("distance out of segment bounds")
)

// ValidationError is implemented by errors that block a submission before any
// network call, so callers can render them as inline field errors.
type ValidationError interface {
	error
	Field() string
}

// DistanceOutOfBoundsError carries the rejected distance and the segment bounds.
type DistanceOutOfBoundsError struct {
	DistanceKm float64
	Bounds     core.Bounds
}

func (e *DistanceOutOfBoundsError) Error() string {
	return fmt.Sprintf("distance %g km is outside %s", e.DistanceKm, e.Bounds)
}

// Is reports a match against ErrDistanceOutOfBounds.
func (e *DistanceOutOfBoundsError) Is(target error) bool {
	return target == ErrDistanceOutOfBounds
}

// Field names the offending input.
func (e *DistanceOutOfBoundsError) Field() string { return "distance" }

type missingTypeError struct{}

func (missingTypeError) Error() string        { return ErrMissingFaultType.Error() }
func (missingTypeError) Is(target error) bool { return target == ErrMissingFaultType }
func (missingTypeError) Field() string        { return "faultType" }

// Validate checks a proposed cut against the segment's configured bounds. The fault
// type is checked first, matching the order the input form presents its fields.
func Validate(distanceKm float64, t core.FaultType, b core.Bounds) error {
	if !t.Valid() {
		return missingTypeError{}
	}
	if !b.Contains(distanceKm) {
		return &DistanceOutOfBoundsError{DistanceKm: distanceKm, Bounds: b}
	}
	return nil
}

// AsValidationError unwraps err to a ValidationError if it is one.
func AsValidationError(err error) (ValidationError, bool) {
	var ve ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
