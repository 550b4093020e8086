package tower

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientData is returned when an operation has fewer points than it needs.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrCollinearPoints is returned when a triple has no unique circumscribing circle.
	ErrCollinearPoints = errors.New("collinear points")

	// ErrNotFound is returned when the threshold search exhausts every triple.
	ErrNotFound = errors.New("no triple satisfies the radius criterion")

	// ErrNoValidEstimate is returned when aggregation retains no circles.
	ErrNoValidEstimate = errors.New("no valid estimate")

	// ErrInvalidConfig is returned for out-of-range estimator parameters.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNoHistory is returned by EstimateStore.Latest for a tower without records.
	ErrNoHistory = errors.New("no stored estimate")
)

// InsufficientDataError reports how many points an operation needed
type InsufficientDataError struct {
	Op   string
	Need int
	Have int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s: insufficient data: need %d point(s), have %d", e.Op, e.Need, e.Have)
}

func (e *InsufficientDataError) Is(target error) bool { return target == ErrInsufficientData }

// CollinearPointsError carries the triple that could not be solved
type CollinearPointsError struct {
	Points [3]Point
	Det    float64
}

func (e *CollinearPointsError) Error() string {
	return fmt.Sprintf("collinear points %v %v %v (det=%g)", e.Points[0], e.Points[1], e.Points[2], e.Det)
}

func (e *CollinearPointsError) Is(target error) bool { return target == ErrCollinearPoints }

// NotFoundError means the threshold search finished without a match.
// Callers should retry with a different percentile.
type NotFoundError struct {
	MinRadius float64
	MaxRadius float64
	Evaluated int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no circle with radius in [%f, %f) after %d combinations; try a different percentile",
		e.MinRadius, e.MaxRadius, e.Evaluated)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NoValidEstimateError means every circle exceeded the radius bound
type NoValidEstimateError struct {
	Circles int
	Bound   float64
}

func (e *NoValidEstimateError) Error() string {
	return fmt.Sprintf("no valid estimate: 0 of %d circle(s) within radius bound %g", e.Circles, e.Bound)
}

func (e *NoValidEstimateError) Is(target error) bool { return target == ErrNoValidEstimate }
