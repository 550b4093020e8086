package tower

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kindCounts(fc *geojson.FeatureCollection) map[string]int {
	counts := make(map[string]int)
	for _, f := range fc.Features {
		counts[f.Properties.MustString("kind")]++
	}
	return counts
}

func TestResultToFeatureCollection_Nil(t *testing.T) {
	fc := ResultToFeatureCollection(nil)
	assert.Empty(t, fc.Features)
}

func TestResultToFeatureCollection_Perimeter(t *testing.T) {
	res := &Result{
		TowerID: "385",
		Method:  MethodPerimeter,
		Points:  PointSet{{0, 0}, {2, 0}, {0, 2}},
		Candidates: []Candidate{{
			Score:  4 + 2*math.Sqrt2,
			Triple: Triple{Points: [3]Point{{0, 0}, {2, 0}, {0, 2}}, Index: [3]int{0, 1, 2}},
		}},
		Circles: []Circle{
			{Center: Point{1, 1}, Radius: math.Sqrt2},
			{Center: Point{5, 5}, Radius: math.NaN()},
		},
		Estimate: &Estimate{Center: Point{1, 1}, Radius: math.Sqrt2, Count: 1},
	}

	fc := ResultToFeatureCollection(res)
	assert.Equal(t, map[string]int{
		KindPoint:    3,
		KindTriangle: 1,
		KindCircle:   1,
		KindEstimate: 1,
		KindArea:     1,
	}, kindCounts(fc))

	// Points are written (lon, lat)
	first := fc.Features[0]
	assert.Equal(t, orb.Point{0, 0}, first.Geometry)
	second := fc.Features[1]
	assert.Equal(t, orb.Point{0, 2}, second.Geometry, "lat 2, lon 0 becomes x=0, y=2")

	for _, f := range fc.Features {
		switch f.Properties.MustString("kind") {
		case KindTriangle:
			poly := f.Geometry.(orb.Polygon)
			require.Len(t, poly[0], 4)
			assert.True(t, poly[0].Closed())
			assert.Equal(t, 0, f.Properties["rank"])
		case KindCircle:
			poly := f.Geometry.(orb.Polygon)
			assert.Len(t, poly[0], circleSegments+1)
			assert.True(t, poly[0].Closed())
		case KindEstimate:
			assert.Equal(t, "385", f.Properties["tower"])
			assert.Equal(t, "perimeter", f.Properties["method"])
			assert.Equal(t, 1, f.Properties["circles"])
		}
	}

	data, err := fc.MarshalJSON()
	require.NoError(t, err)
	assert.True(t, json.Valid(data))
}

func TestResultToFeatureCollection_Threshold(t *testing.T) {
	centroid := Point{1, 1}
	res := &Result{
		Method:    MethodThreshold,
		Points:    PointSet{{0, 0}, {2, 0}, {0, 2}, {2, 2}},
		Centroid:  &centroid,
		MinRadius: 1,
		MaxRadius: 1.7,
	}

	fc := ResultToFeatureCollection(res)
	counts := kindCounts(fc)
	assert.Equal(t, 4, counts[KindPoint])
	assert.Equal(t, 1, counts[KindCentroid])
	assert.Equal(t, 1, counts[KindRing])
	assert.Zero(t, counts[KindEstimate])
}

func TestCirclePolygon(t *testing.T) {
	poly := circlePolygon(Point{Lat: 10, Lon: 20}, 0.5)
	ring := poly[0]
	for _, p := range ring {
		d := math.Hypot(p[0]-20, p[1]-10)
		assert.InDelta(t, 0.5, d, 1e-12)
	}
	// theta 0 points north
	assert.InDelta(t, 20, ring[0][0], 1e-12)
	assert.InDelta(t, 10.5, ring[0][1], 1e-12)
}
