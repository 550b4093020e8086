package tower

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// DefaultRadiusBound discards circles larger than this many coordinate units
const DefaultRadiusBound = 0.25

// Aggregate averages the center and radius of every circle whose radius does
// not exceed bound; NaN radii are dropped too. Each component is averaged
// independently. Returns a *NoValidEstimateError when nothing is retained.
func Aggregate(circles []Circle, bound float64) (Estimate, error) {
	var lats, lons, radii []float64
	for _, c := range circles {
		if c.Radius > bound || math.IsNaN(c.Radius) {
			continue
		}
		lats = append(lats, c.Center.Lat)
		lons = append(lons, c.Center.Lon)
		radii = append(radii, c.Radius)
	}

	if len(radii) == 0 {
		return Estimate{}, &NoValidEstimateError{Circles: len(circles), Bound: bound}
	}

	return Estimate{
		Center: Point{Lat: stat.Mean(lats, nil), Lon: stat.Mean(lons, nil)},
		Radius: stat.Mean(radii, nil),
		Count:  len(radii),
	}, nil
}

// EstimateFromCircle wraps the single circle accepted by a threshold search
func EstimateFromCircle(c Circle) Estimate {
	return Estimate{Center: c.Center, Radius: c.Radius, Count: 1}
}
