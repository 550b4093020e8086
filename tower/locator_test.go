package tower

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// square lies on the circle centered at (1, 1) with radius sqrt(2)
var square = []Point{{0, 0}, {2, 0}, {0, 2}, {2, 2}}

func TestLocatePerimeter_Square(t *testing.T) {
	cfg := DefaultEstimatorConfig()
	cfg.RadiusBound = 2

	res, err := NewLocator(cfg).Locate(context.Background(), square)
	require.NoError(t, err)
	assert.Equal(t, MethodPerimeter, res.Method)
	assert.Equal(t, 4, res.RawCount)
	assert.Len(t, res.Points, 4)
	assert.Equal(t, int64(4), res.Evaluated)
	assert.Len(t, res.Candidates, 4)
	assert.Len(t, res.Circles, 4)

	require.NotNil(t, res.Estimate)
	assert.Equal(t, 4, res.Estimate.Count)
	assert.InDelta(t, 1, res.Estimate.Center.Lat, 1e-9)
	assert.InDelta(t, 1, res.Estimate.Center.Lon, 1e-9)
	assert.InDelta(t, math.Sqrt2, res.Estimate.Radius, 1e-9)
}

func TestLocateThreshold_Square(t *testing.T) {
	cfg := DefaultEstimatorConfig()
	cfg.Method = MethodThreshold
	cfg.Percentile = 0.2

	// The center point makes the lower bound 0
	raw := append(append([]Point{}, square...), Point{1, 1})
	res, err := NewLocator(cfg).Locate(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, MethodThreshold, res.Method)
	require.NotNil(t, res.Centroid)
	assert.Equal(t, Point{1, 1}, *res.Centroid)
	assert.Equal(t, 0.0, res.MinRadius)
	assert.InDelta(t, 1.2*math.Sqrt2, res.MaxRadius, 1e-12)

	require.NotNil(t, res.Estimate)
	assert.Equal(t, 1, res.Estimate.Count)
	assert.Equal(t, [3]int{0, 1, 2}, res.Candidates[0].Triple.Index)
	assert.InDelta(t, 1, res.Estimate.Center.Lat, 1e-9)
	assert.InDelta(t, 1, res.Estimate.Center.Lon, 1e-9)
	assert.InDelta(t, math.Sqrt2, res.Estimate.Radius, 1e-9)
}

func TestLocate_NoisyRing(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	center := Point{Lat: 40.7128, Lon: -74.0060}
	var raw []Point
	for i := 0; i < 30; i++ {
		theta := rng.Float64() * 2 * math.Pi
		r := 0.02 + rng.Float64()*0.002
		raw = append(raw, Point{Lat: center.Lat + r*math.Cos(theta), Lon: center.Lon + r*math.Sin(theta)})
	}

	res, err := NewLocator(DefaultEstimatorConfig()).Locate(context.Background(), raw)
	require.NoError(t, err)
	assert.InDelta(t, center.Lat, res.Estimate.Center.Lat, 0.005)
	assert.InDelta(t, center.Lon, res.Estimate.Center.Lon, 0.005)
	assert.InDelta(t, 0.021, res.Estimate.Radius, 0.005)
}

func TestLocate_AllIdenticalPoints(t *testing.T) {
	raw := []Point{{5, 5}, {5, 5}, {5, 5}, {5, 5}, {5, 5}}

	for _, method := range []Method{MethodPerimeter, MethodThreshold} {
		t.Run(string(method), func(t *testing.T) {
			cfg := DefaultEstimatorConfig()
			cfg.Method = method
			cfg.Percentile = 1
			res, err := NewLocator(cfg).Locate(context.Background(), raw)
			assert.ErrorIs(t, err, ErrInsufficientData)
			assert.Nil(t, res)
		})
	}
}

func TestLocatePerimeter_CollinearSkipped(t *testing.T) {
	cfg := DefaultEstimatorConfig()
	cfg.RadiusBound = 100
	// Every triple of a line is collinear
	raw := []Point{{0, 0}, {1, 1}, {2, 2}, {3, 3}}

	res, err := NewLocator(cfg).Locate(context.Background(), raw)
	assert.ErrorIs(t, err, ErrNoValidEstimate)
	assert.Nil(t, res)
}

func TestLocateThreshold_NotFoundReturnsPartial(t *testing.T) {
	cfg := DefaultEstimatorConfig()
	cfg.Method = MethodThreshold
	cfg.Percentile = 1

	// A flat triangle: its circle is far wider than the centroid distances
	res, err := NewLocator(cfg).Locate(context.Background(), []Point{{0, 0}, {2, 0}, {1, 0.1}})
	require.ErrorIs(t, err, ErrNotFound)
	require.NotNil(t, res)
	assert.Nil(t, res.Estimate)
	assert.NotNil(t, res.Centroid)
	assert.Len(t, res.Points, 3)
	assert.Equal(t, int64(1), res.Evaluated)
}

func TestLocate_UnknownMethod(t *testing.T) {
	cfg := DefaultEstimatorConfig()
	cfg.Method = "median"
	_, err := NewLocator(cfg).Locate(context.Background(), square)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLocate_ZeroValuesUseDefaults(t *testing.T) {
	l := &Locator{Config: EstimatorConfig{}}
	// Radius sqrt(2) exceeds the default bound of 0.25
	_, err := l.Locate(context.Background(), square)
	assert.ErrorIs(t, err, ErrNoValidEstimate)

	small := []Point{{0, 0}, {0.2, 0}, {0, 0.2}, {0.2, 0.2}}
	res, err := l.Locate(context.Background(), small)
	require.NoError(t, err)
	assert.Equal(t, MethodPerimeter, res.Method)
	assert.InDelta(t, 0.1*math.Sqrt2, res.Estimate.Radius, 1e-9)
}

func TestLocate_ProgressReported(t *testing.T) {
	cfg := DefaultEstimatorConfig()
	cfg.ProgressEvery = 1
	cfg.RadiusBound = 2
	calls := 0
	l := NewLocator(cfg)
	l.Progress = func(Progress) { calls++ }

	_, err := l.Locate(context.Background(), square)
	require.NoError(t, err)
	assert.Equal(t, 4, calls)
}

func TestDedupThenSolve(t *testing.T) {
	ps := Dedup([]Point{{0, 0}, {0, 0}, {2, 0}, {0, 2}})
	require.Len(t, ps, 3)

	c, err := SolveCircle(ps[0], ps[1], ps[2])
	require.NoError(t, err)
	assert.InDelta(t, 1, c.Center.Lat, 1e-12)
	assert.InDelta(t, 1, c.Center.Lon, 1e-12)
	assert.InDelta(t, math.Sqrt2, c.Radius, 1e-12)
}

func TestPercentileRadius_SingleDistinctPoint(t *testing.T) {
	ps := Dedup([]Point{{5, 5}, {5, 5}, {5, 5}})
	require.Len(t, ps, 1)

	bounds, err := PercentileRadius(ps, 1)
	require.NoError(t, err)
	assert.Equal(t, Point{5, 5}, bounds.Centroid)
	assert.Equal(t, 0.0, bounds.MinRadius)
	assert.Equal(t, 0.0, bounds.MaxRadius)

	_, err = PercentileRadius(Dedup(nil), 0.9)
	assert.ErrorIs(t, err, ErrInsufficientData)
}
