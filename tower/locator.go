package tower

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// Locator runs the estimation pipeline with a fixed configuration.
// It holds no state between runs and is safe for concurrent use.
type Locator struct {
	Config   EstimatorConfig
	Progress ProgressFunc
}

// NewLocator creates a locator for the given estimator configuration
func NewLocator(cfg EstimatorConfig) *Locator {
	return &Locator{Config: cfg}
}

func (l *Locator) searchOptions() SearchOptions {
	return SearchOptions{
		Progress:      l.Progress,
		ProgressEvery: l.Config.ProgressEvery,
		Solver:        NewCircleSolver(l.Config.CollinearTolerance),
	}
}

// Locate estimates the tower position from raw hand-off fixes using the
// configured method.
func (l *Locator) Locate(ctx context.Context, raw []Point) (*Result, error) {
	switch l.Config.Method {
	case MethodThreshold:
		return l.LocateThreshold(ctx, raw)
	case MethodPerimeter, "":
		return l.LocatePerimeter(ctx, raw)
	default:
		return nil, fmt.Errorf("%w: unknown method %q", ErrInvalidConfig, l.Config.Method)
	}
}

// LocateThreshold runs Method A: dedup, percentile radius bounds around the
// centroid, then the first triple in index order whose circle fits the bounds.
//
// When the search is exhausted the partial result (points, centroid and
// bounds) is returned together with a *NotFoundError.
func (l *Locator) LocateThreshold(ctx context.Context, raw []Point) (*Result, error) {
	start := time.Now()
	ps := Dedup(raw)
	res := &Result{Method: MethodThreshold, RawCount: len(raw), Points: ps}

	bounds, err := PercentileRadius(ps, l.Config.Percentile)
	if err != nil {
		return nil, err
	}
	res.Centroid = &bounds.Centroid
	res.MinRadius = bounds.MinRadius
	res.MaxRadius = bounds.MaxRadius

	match, err := ThresholdSearch(ctx, ps, bounds.MinRadius, bounds.MaxRadius, l.searchOptions())
	res.Evaluated = match.Evaluated
	res.Duration = time.Since(start)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return res, err
		}
		return nil, err
	}

	est := EstimateFromCircle(match.Circle)
	res.Candidates = []Candidate{{Score: match.Circle.Radius, Triple: match.Triple}}
	res.Circles = []Circle{match.Circle}
	res.Estimate = &est
	return res, nil
}

// LocatePerimeter runs Method B: dedup, keep the K widest-perimeter triangles,
// solve a circle for each (collinear triangles are skipped) and aggregate the
// circles within the radius bound.
func (l *Locator) LocatePerimeter(ctx context.Context, raw []Point) (*Result, error) {
	start := time.Now()
	ps := Dedup(raw)
	res := &Result{Method: MethodPerimeter, RawCount: len(raw), Points: ps}

	k := l.Config.Candidates
	if k == 0 {
		k = DefaultCandidates
	}
	candidates, evaluated, err := TopPerimeterSearch(ctx, ps, k, l.searchOptions())
	if err != nil {
		return nil, err
	}
	res.Candidates = candidates
	res.Evaluated = evaluated

	solver := NewCircleSolver(l.Config.CollinearTolerance)
	res.Circles = make([]Circle, 0, len(candidates))
	for _, c := range candidates {
		p := c.Triple.Points
		circle, err := solver.Solve(p[0], p[1], p[2])
		if err != nil {
			log.Printf("[ESTIMATE] skipping triple %v: %v", c.Triple.Index, err)
			continue
		}
		res.Circles = append(res.Circles, circle)
	}

	bound := l.Config.RadiusBound
	if bound == 0 {
		bound = DefaultRadiusBound
	}
	est, err := Aggregate(res.Circles, bound)
	res.Duration = time.Since(start)
	if err != nil {
		return nil, err
	}
	res.Estimate = &est
	return res, nil
}
