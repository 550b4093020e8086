package tower

import (
	"fmt"
	"image/color"
	"io"
	"math"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// plotSize is the side length of the square diagnostic chart
const plotSize = 8 * vg.Inch

// circleXYs samples a circle as a closed polyline in (lon, lat) order
func circleXYs(c Point, radius float64) plotter.XYs {
	poly := circlePolygon(c, radius)[0]
	xys := make(plotter.XYs, len(poly))
	for i, p := range poly {
		xys[i] = plotter.XY{X: p[0], Y: p[1]}
	}
	return xys
}

// NewPlot builds a scatter chart of a run: fixes, candidate triangles and
// circles, the estimate circle and, for the threshold method, the centroid.
// Longitude runs along X and latitude along Y with equal scales.
func NewPlot(res *Result) (*plot.Plot, error) {
	if res == nil || len(res.Points) == 0 {
		return nil, fmt.Errorf("nothing to plot: %w", ErrInsufficientData)
	}

	p := plot.New()
	p.Title.Text = "Cell tower estimate"
	if res.TowerID != "" {
		p.Title.Text = fmt.Sprintf("Cell tower %s estimate", res.TowerID)
	}
	p.X.Label.Text = "Longitude"
	p.Y.Label.Text = "Latitude"
	p.Add(plotter.NewGrid())

	for i, c := range res.Candidates {
		tri := make(plotter.XYs, 0, 4)
		for _, pt := range c.Triple.Points {
			tri = append(tri, plotter.XY{X: pt.Lon, Y: pt.Lat})
		}
		tri = append(tri, tri[0])
		line, err := plotter.NewLine(tri)
		if err != nil {
			return nil, fmt.Errorf("triangle line: %w", err)
		}
		line.Color = color.RGBA{0x99, 0x99, 0x99, 0xFF}
		line.Width = vg.Points(0.5)
		line.Dashes = []vg.Length{vg.Points(2), vg.Points(2)}
		p.Add(line)
		if i == 0 {
			p.Legend.Add("candidate triangles", line)
		}
	}

	f, err := NewMapRenderer(res, defaultTowerColor).layout()
	if err != nil {
		return nil, err
	}
	for i, c := range res.Circles {
		if !(c.Radius > 0) || c.Radius*f.scale > 10*f.width {
			continue
		}
		line, err := plotter.NewLine(circleXYs(c.Center, c.Radius))
		if err != nil {
			return nil, fmt.Errorf("circle line: %w", err)
		}
		line.Color = color.RGBA{0x1F, 0x77, 0xB4, 0x80}
		line.Width = vg.Points(0.5)
		p.Add(line)
		if i == 0 {
			p.Legend.Add("circles", line)
		}
	}

	pts := make(plotter.XYs, len(res.Points))
	for i, pt := range res.Points {
		pts[i] = plotter.XY{X: pt.Lon, Y: pt.Lat}
	}
	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, fmt.Errorf("points scatter: %w", err)
	}
	scatter.GlyphStyle.Shape = draw.CircleGlyph{}
	scatter.GlyphStyle.Radius = vg.Points(2)
	scatter.GlyphStyle.Color = color.RGBA{0x1F, 0x77, 0xB4, 0xFF}
	p.Add(scatter)
	p.Legend.Add("hand-off points", scatter)

	if res.Centroid != nil {
		c, err := plotter.NewScatter(plotter.XYs{{X: res.Centroid.Lon, Y: res.Centroid.Lat}})
		if err != nil {
			return nil, fmt.Errorf("centroid scatter: %w", err)
		}
		c.GlyphStyle.Shape = draw.SquareGlyph{}
		c.GlyphStyle.Radius = vg.Points(3)
		c.GlyphStyle.Color = centroidColor
		p.Add(c)
		p.Legend.Add("centroid", c)

		if res.MinRadius > 0 {
			ring, err := plotter.NewLine(circleXYs(*res.Centroid, res.MinRadius))
			if err != nil {
				return nil, fmt.Errorf("percentile ring: %w", err)
			}
			ring.Color = centroidColor
			ring.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
			p.Add(ring)
			p.Legend.Add("percentile radius", ring)
		}
	}

	if res.Estimate != nil {
		est := res.Estimate
		if est.Radius > 0 {
			avg, err := plotter.NewLine(circleXYs(est.Center, est.Radius))
			if err != nil {
				return nil, fmt.Errorf("estimate circle: %w", err)
			}
			avg.Color = estimateColor
			avg.Width = vg.Points(2)
			p.Add(avg)
			p.Legend.Add("average circle", avg)
		}
		center, err := plotter.NewScatter(plotter.XYs{{X: est.Center.Lon, Y: est.Center.Lat}})
		if err != nil {
			return nil, fmt.Errorf("estimate scatter: %w", err)
		}
		center.GlyphStyle.Shape = draw.CrossGlyph{}
		center.GlyphStyle.Radius = vg.Points(5)
		center.GlyphStyle.Color = estimateColor
		p.Add(center)
		p.Legend.Add("estimate", center)
	}

	// Equal axis scales around the same window the map renderer uses
	p.X.Min, p.X.Max = f.bound.Min[0], f.bound.Max[0]
	p.Y.Min, p.Y.Max = f.bound.Min[1], f.bound.Max[1]
	if w, h := p.X.Max-p.X.Min, p.Y.Max-p.Y.Min; w != h {
		d := math.Abs(w-h) / 2
		if w > h {
			p.Y.Min, p.Y.Max = p.Y.Min-d, p.Y.Max+d
		} else {
			p.X.Min, p.X.Max = p.X.Min-d, p.X.Max+d
		}
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

// SavePlot writes the chart of a run to path. The format follows the file
// extension (png, svg, pdf, ...).
func SavePlot(res *Result, path string) error {
	p, err := NewPlot(res)
	if err != nil {
		return err
	}
	if err := p.Save(plotSize, plotSize, path); err != nil {
		return fmt.Errorf("saving plot %s: %w", filepath.Base(path), err)
	}
	return nil
}

// WritePlot writes the chart of a run to w in the given format ("png", "svg")
func WritePlot(res *Result, w io.Writer, format string) error {
	p, err := NewPlot(res)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(plotSize, plotSize, strings.ToLower(format))
	if err != nil {
		return fmt.Errorf("plot writer: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("writing plot: %w", err)
	}
	return nil
}
