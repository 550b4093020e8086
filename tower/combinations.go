package tower

import (
	"iter"

	"github.com/paulmach/orb/planar"
	"gonum.org/v1/gonum/stat/combin"
)

// IndexTriples yields every index triple (i, j, k) with i<j<k<n in the order of
// the nested loop over i, then j, then k. Each call returns a fresh, finite
// sequence; n < 3 yields nothing.
func IndexTriples(n int) iter.Seq[[3]int] {
	return func(yield func([3]int) bool) {
		if n < 3 {
			return
		}
		gen := combin.NewCombinationGenerator(n, 3)
		idx := make([]int, 3)
		for gen.Next() {
			gen.Combination(idx)
			if !yield([3]int{idx[0], idx[1], idx[2]}) {
				return
			}
		}
	}
}

// CountTriples returns C(n, 3)
func CountTriples(n int) int64 {
	if n < 3 {
		return 0
	}
	return int64(combin.Binomial(n, 3))
}

// tripleAt builds the Triple for an index triple of ps
func tripleAt(ps PointSet, idx [3]int) Triple {
	return Triple{
		Points: [3]Point{ps[idx[0]], ps[idx[1]], ps[idx[2]]},
		Index:  idx,
	}
}

// Degenerate reports whether any two points of the triple are the same fix
func (t Triple) Degenerate() bool {
	a, b, c := t.Points[0], t.Points[1], t.Points[2]
	return a == b || a == c || b == c
}

// Perimeter is the sum of the three pairwise distances
func (t Triple) Perimeter() float64 {
	a, b, c := t.Points[0].Orb(), t.Points[1].Orb(), t.Points[2].Orb()
	return planar.Distance(a, b) + planar.Distance(a, c) + planar.Distance(b, c)
}
