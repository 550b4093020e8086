package tower

import (
	"context"
	"fmt"
	"log"
	"time"
)

// DefaultProgressEvery is the number of combinations between progress reports
const DefaultProgressEvery = 500000

// cancelCheckMask sets how often the search loops poll their context (every 1024 triples)
const cancelCheckMask = 1<<10 - 1

// Progress is an informational snapshot of a running triple search
type Progress struct {
	Done      int64
	Total     int64
	Elapsed   time.Duration
	Rate      float64 // combinations per second over the last interval
	Remaining time.Duration
}

// Percent returns the completed share of the search in percent
func (p Progress) Percent() float64 {
	if p.Total == 0 {
		return 100
	}
	return 100 * float64(p.Done) / float64(p.Total)
}

// ProgressFunc receives progress reports. It runs on the search goroutine.
type ProgressFunc func(Progress)

// LogProgress writes progress reports to the standard logger
func LogProgress(p Progress) {
	log.Printf("%d / %d combinations (%.1f%%) completed in %.3f seconds. Estimated %.3f seconds remaining.",
		p.Done, p.Total, p.Percent(), p.Elapsed.Seconds(), p.Remaining.Seconds())
}

// SearchOptions configures the side channels of a triple search
type SearchOptions struct {
	Progress      ProgressFunc
	ProgressEvery int64
	Solver        CircleSolver
}

// progressMeter tracks the interval timing used for ETA reports
type progressMeter struct {
	fn    ProgressFunc
	every int64
	total int64
	start time.Time
	last  time.Time
}

func newProgressMeter(opts SearchOptions, total int64) *progressMeter {
	every := opts.ProgressEvery
	if every <= 0 {
		every = DefaultProgressEvery
	}
	now := time.Now()
	return &progressMeter{fn: opts.Progress, every: every, total: total, start: now, last: now}
}

func (m *progressMeter) tick(done int64) {
	if m.fn == nil || done%m.every != 0 {
		return
	}
	now := time.Now()
	interval := now.Sub(m.last).Seconds()
	m.last = now

	p := Progress{Done: done, Total: m.total, Elapsed: now.Sub(m.start)}
	if interval > 0 {
		p.Rate = float64(m.every) / interval
		p.Remaining = time.Duration(float64(m.total-done) / p.Rate * float64(time.Second))
	}
	m.fn(p)
}

func (o SearchOptions) solver() CircleSolver {
	if o.Solver.Tolerance <= 0 {
		return NewCircleSolver(DefaultCollinearTolerance)
	}
	return o.Solver
}

// ThresholdMatch is the triple accepted by ThresholdSearch
type ThresholdMatch struct {
	Triple    Triple
	Circle    Circle
	Evaluated int64
}

// ThresholdSearch walks the triples of ps in index order and returns the first
// one whose circle radius r satisfies minRadius <= r < maxRadius. Triples with
// repeated points or collinear points are skipped. When no triple qualifies it
// returns a *NotFoundError; the returned match still reports how many triples
// were evaluated.
func ThresholdSearch(ctx context.Context, ps PointSet, minRadius, maxRadius float64, opts SearchOptions) (ThresholdMatch, error) {
	n := len(ps)
	if n < 3 {
		return ThresholdMatch{}, &InsufficientDataError{Op: "threshold search", Need: 3, Have: n}
	}

	solver := opts.solver()
	meter := newProgressMeter(opts, CountTriples(n))

	var evaluated int64
	for idx := range IndexTriples(n) {
		evaluated++
		if evaluated&cancelCheckMask == 0 {
			if err := ctx.Err(); err != nil {
				return ThresholdMatch{Evaluated: evaluated}, fmt.Errorf("threshold search: %w", err)
			}
		}
		meter.tick(evaluated)

		t := tripleAt(ps, idx)
		if t.Degenerate() {
			continue
		}
		c, err := solver.Solve(t.Points[0], t.Points[1], t.Points[2])
		if err != nil {
			continue
		}
		if c.Radius >= minRadius && c.Radius < maxRadius {
			return ThresholdMatch{Triple: t, Circle: c, Evaluated: evaluated}, nil
		}
	}

	return ThresholdMatch{Evaluated: evaluated}, &NotFoundError{
		MinRadius: minRadius,
		MaxRadius: maxRadius,
		Evaluated: evaluated,
	}
}

// TopPerimeterSearch scores every triple of ps by perimeter and keeps k of the
// widest in a RankedCandidateList. Triples with repeated points are skipped.
// Candidates are returned highest perimeter first along with the number of
// triples evaluated.
func TopPerimeterSearch(ctx context.Context, ps PointSet, k int, opts SearchOptions) ([]Candidate, int64, error) {
	n := len(ps)
	if n < 3 {
		return nil, 0, &InsufficientDataError{Op: "perimeter search", Need: 3, Have: n}
	}
	if k < 1 {
		return nil, 0, fmt.Errorf("%w: candidate count %d must be at least 1", ErrInvalidConfig, k)
	}

	ranked := NewRankedCandidateList(k)
	meter := newProgressMeter(opts, CountTriples(n))

	var evaluated int64
	for idx := range IndexTriples(n) {
		evaluated++
		if evaluated&cancelCheckMask == 0 {
			if err := ctx.Err(); err != nil {
				return nil, evaluated, fmt.Errorf("perimeter search: %w", err)
			}
		}
		meter.tick(evaluated)

		t := tripleAt(ps, idx)
		if t.Degenerate() {
			continue
		}
		ranked.Offer(Candidate{Score: t.Perimeter(), Triple: t})
	}

	return ranked.Entries(), evaluated, nil
}
