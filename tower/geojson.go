package tower

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// circleSegments is the number of vertices used to approximate a circle polygon
const circleSegments = 64

// Feature kinds written to the "kind" property
const (
	KindPoint    = "point"
	KindTriangle = "triangle"
	KindCircle   = "circle"
	KindCentroid = "centroid"
	KindRing     = "percentile-ring"
	KindEstimate = "estimate"
	KindArea     = "estimate-area"
)

// circlePolygon approximates a circle as a closed ring in (lon, lat) order
func circlePolygon(c Point, radius float64) orb.Polygon {
	ring := make(orb.Ring, 0, circleSegments+1)
	for i := 0; i < circleSegments; i++ {
		theta := 2 * math.Pi * float64(i) / circleSegments
		ring = append(ring, orb.Point{
			c.Lon + radius*math.Sin(theta),
			c.Lat + radius*math.Cos(theta),
		})
	}
	ring = append(ring, ring[0])
	return orb.Polygon{ring}
}

// ResultToFeatureCollection exports a run as GeoJSON. Every feature carries
// a "kind" property; circles are approximated by polygons.
func ResultToFeatureCollection(res *Result) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	if res == nil {
		return fc
	}

	for i, p := range res.Points {
		f := geojson.NewFeature(p.Orb())
		f.Properties["kind"] = KindPoint
		f.Properties["index"] = i
		fc.Append(f)
	}

	for rank, c := range res.Candidates {
		ring := orb.Ring{
			c.Triple.Points[0].Orb(),
			c.Triple.Points[1].Orb(),
			c.Triple.Points[2].Orb(),
			c.Triple.Points[0].Orb(),
		}
		f := geojson.NewFeature(orb.Polygon{ring})
		f.Properties["kind"] = KindTriangle
		f.Properties["rank"] = rank
		f.Properties["score"] = c.Score
		f.Properties["index"] = c.Triple.Index[:]
		fc.Append(f)
	}

	for i, c := range res.Circles {
		if math.IsNaN(c.Radius) || math.IsInf(c.Radius, 0) {
			continue
		}
		f := geojson.NewFeature(circlePolygon(c.Center, c.Radius))
		f.Properties["kind"] = KindCircle
		f.Properties["index"] = i
		f.Properties["radius"] = c.Radius
		fc.Append(f)
	}

	if res.Centroid != nil {
		f := geojson.NewFeature(res.Centroid.Orb())
		f.Properties["kind"] = KindCentroid
		fc.Append(f)

		if res.MinRadius > 0 {
			ring := geojson.NewFeature(circlePolygon(*res.Centroid, res.MinRadius))
			ring.Properties["kind"] = KindRing
			ring.Properties["radius"] = res.MinRadius
			ring.Properties["maxRadius"] = res.MaxRadius
			fc.Append(ring)
		}
	}

	if res.Estimate != nil {
		est := res.Estimate
		f := geojson.NewFeature(est.Center.Orb())
		f.Properties["kind"] = KindEstimate
		f.Properties["method"] = string(res.Method)
		f.Properties["radius"] = est.Radius
		f.Properties["circles"] = est.Count
		if res.TowerID != "" {
			f.Properties["tower"] = res.TowerID
		}
		fc.Append(f)

		if est.Radius > 0 {
			area := geojson.NewFeature(circlePolygon(est.Center, est.Radius))
			area.Properties["kind"] = KindArea
			area.Properties["radius"] = est.Radius
			fc.Append(area)
		}
	}

	return fc
}
