package tower

import (
	"math"

	"github.com/paulmach/orb/planar"
	"gonum.org/v1/gonum/mat"
)

// DefaultCollinearTolerance is the relative determinant below which a triple
// is treated as collinear.
const DefaultCollinearTolerance = 1e-12

// CircleSolver computes circumscribing circles
type CircleSolver struct {
	Tolerance float64
}

// NewCircleSolver returns a solver using the given relative tolerance.
// A non-positive tolerance selects DefaultCollinearTolerance.
func NewCircleSolver(tolerance float64) CircleSolver {
	if tolerance <= 0 {
		tolerance = DefaultCollinearTolerance
	}
	return CircleSolver{Tolerance: tolerance}
}

// SolveCircle returns the circle through p1, p2 and p3 using the default tolerance
func SolveCircle(p1, p2, p3 Point) (Circle, error) {
	return NewCircleSolver(DefaultCollinearTolerance).Solve(p1, p2, p3)
}

// Solve finds the circle through three points.
//
// Subtracting the circle equation at p1 from the equations at p2 and p3
// eliminates r² and leaves the 2x2 system M·[h k]ᵀ = b with
//
//	M = [x2-x1  y2-y1]    b = [-0.5((x1²-x2²)+(y1²-y2²))]
//	    [x3-x1  y3-y1]        [-0.5((x1²-x3²)+(y1²-y3²))]
//
// which is solved by QR least squares. The radius is the distance from the
// center to p1. Returns a *CollinearPointsError when |det M| is within the
// tolerance of the magnitude of its terms.
func (s CircleSolver) Solve(p1, p2, p3 Point) (Circle, error) {
	x1, y1 := p1.Lat, p1.Lon
	x2, y2 := p2.Lat, p2.Lon
	x3, y3 := p3.Lat, p3.Lon

	a := x2 - x1
	b := y2 - y1
	d := x3 - x1
	e := y3 - y1

	m := mat.NewDense(2, 2, []float64{a, b, d, e})
	rhs := mat.NewVecDense(2, []float64{
		-0.5 * ((x1*x1 - x2*x2) + (y1*y1 - y2*y2)),
		-0.5 * ((x1*x1 - x3*x3) + (y1*y1 - y3*y3)),
	})

	det := mat.Det(m)
	scale := math.Abs(a*e) + math.Abs(b*d)
	if scale == 0 || math.Abs(det) <= s.Tolerance*scale || math.IsNaN(det) {
		return Circle{}, &CollinearPointsError{Points: [3]Point{p1, p2, p3}, Det: det}
	}

	var qr mat.QR
	qr.Factorize(m)

	var center mat.VecDense
	if err := qr.SolveVecTo(&center, false, rhs); err != nil {
		return Circle{}, &CollinearPointsError{Points: [3]Point{p1, p2, p3}, Det: det}
	}

	c := Point{Lat: center.AtVec(0), Lon: center.AtVec(1)}
	return Circle{
		Center: c,
		Radius: planar.Distance(c.Orb(), p1.Orb()),
	}, nil
}
