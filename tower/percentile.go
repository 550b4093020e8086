package tower

import (
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb/planar"
	"gonum.org/v1/gonum/stat"
)

// maxRadiusFactor widens the farthest observed distance to form the upper
// radius bound of the threshold search.
const maxRadiusFactor = 1.2

// RadiusBounds is the output of PercentileRadius
type RadiusBounds struct {
	Centroid  Point
	MinRadius float64
	MaxRadius float64
}

// Centroid returns the per-axis arithmetic mean of the set
func Centroid(ps PointSet) (Point, error) {
	if len(ps) < 1 {
		return Point{}, &InsufficientDataError{Op: "centroid", Need: 1, Have: len(ps)}
	}
	lats := make([]float64, len(ps))
	lons := make([]float64, len(ps))
	for i, p := range ps {
		lats[i] = p.Lat
		lons[i] = p.Lon
	}
	return Point{Lat: stat.Mean(lats, nil), Lon: stat.Mean(lons, nil)}, nil
}

// PercentileRadius computes the centroid of ps and the radius containing the
// fraction p of its points.
//
// Distances to the centroid are sorted ascending and MinRadius is the entry at
// index floor(p*n)-1; nothing is interpolated. MaxRadius is 1.2 times the
// largest distance.
func PercentileRadius(ps PointSet, p float64) (RadiusBounds, error) {
	if !(p > 0 && p <= 1) {
		return RadiusBounds{}, fmt.Errorf("%w: percentile %v outside (0, 1]", ErrInvalidConfig, p)
	}

	centroid, err := Centroid(ps)
	if err != nil {
		return RadiusBounds{}, err
	}

	n := len(ps)
	idx := int(math.Floor(p*float64(n))) - 1
	if idx < 0 {
		return RadiusBounds{}, &InsufficientDataError{
			Op:   fmt.Sprintf("percentile radius (p=%v)", p),
			Need: int(math.Ceil(1 / p)),
			Have: n,
		}
	}

	c := centroid.Orb()
	dists := make([]float64, n)
	for i, pt := range ps {
		dists[i] = planar.Distance(pt.Orb(), c)
	}
	sort.Float64s(dists)

	return RadiusBounds{
		Centroid:  centroid,
		MinRadius: dists[idx],
		MaxRadius: maxRadiusFactor * dists[n-1],
	}, nil
}
