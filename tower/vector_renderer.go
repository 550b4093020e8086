package tower

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"

	"github.com/paulmach/orb"
	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// minExtent keeps the drawing finite when every point coincides
const minExtent = 1e-4

var (
	estimateColor = color.RGBA{0xD6, 0x27, 0x28, 0xFF}
	centroidColor = color.RGBA{0xFF, 0x7F, 0x0E, 0xFF}
)

// nrgbaToRGBA converts color.NRGBA to color.RGBA by premultiplying alpha
// This is needed for the canvas library which expects premultiplied RGBA
func nrgbaToRGBA(c color.NRGBA) color.RGBA {
	if c.A == 0 {
		return color.RGBA{0, 0, 0, 0}
	}
	if c.A == 255 {
		return color.RGBA{c.R, c.G, c.B, 255}
	}
	alpha32 := uint32(c.A)
	return color.RGBA{
		R: uint8((uint32(c.R) * alpha32) / 255),
		G: uint8((uint32(c.G) * alpha32) / 255),
		B: uint8((uint32(c.B) * alpha32) / 255),
		A: c.A,
	}
}

// parseHexColor parses a hex color string like "#FF6B6B".
// Falls back to the default tower color when the string is malformed.
func parseHexColor(hex string) color.NRGBA {
	var r, g, b uint8
	if len(hex) == 7 && hex[0] == '#' {
		if _, err := fmt.Sscanf(hex[1:], "%02x%02x%02x", &r, &g, &b); err == nil {
			return color.NRGBA{r, g, b, 255}
		}
	}
	return color.NRGBA{0x1F, 0x77, 0xB4, 255} // defaultTowerColor
}

// withAlpha returns c with a new alpha value
func withAlpha(c color.NRGBA, a uint8) color.NRGBA {
	c.A = a
	return c
}

// MapRenderer draws a single estimation run as vector graphics: the fixes,
// candidate triangles and their circles, the estimate circle and, for the
// threshold method, the centroid with its percentile ring.
type MapRenderer struct {
	Result         *Result
	Color          color.NRGBA
	Width          float64           // canvas width in millimeters
	Padding        float64           // margin as a fraction of the data extent
	Resolution     canvas.Resolution // PNG resolution (default 127 DPI)
	ShowCandidates bool
	Caption        bool // draw the estimate caption on PNG output
}

// NewMapRenderer creates a renderer with default settings
func NewMapRenderer(res *Result, hexColor string) *MapRenderer {
	return &MapRenderer{
		Result:         res,
		Color:          parseHexColor(hexColor),
		Width:          200.0,
		Padding:        0.1,
		Resolution:     canvas.DPI(127),
		ShowCandidates: true,
		Caption:        true,
	}
}

// canvasRenderer is an interface that both svg and rasterizer renderers implement
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// frame maps world coordinates (lon east, lat north) to canvas millimeters
type frame struct {
	bound  orb.Bound
	scale  float64
	width  float64
	height float64
}

func (f frame) toCanvas(p Point) (float64, float64) {
	return (p.Lon - f.bound.Min[0]) * f.scale, (p.Lat - f.bound.Min[1]) * f.scale
}

// layout computes the world bounds of the drawing and the canvas size
func (r *MapRenderer) layout() (frame, error) {
	res := r.Result
	if res == nil || len(res.Points) == 0 {
		return frame{}, fmt.Errorf("nothing to render: %w", ErrInsufficientData)
	}

	b := res.Points.MultiPoint().Bound()
	if res.Estimate != nil {
		b = b.Union(circleBound(res.Estimate.Center, res.Estimate.Radius))
	}
	if res.Centroid != nil {
		b = b.Union(circleBound(*res.Centroid, res.MinRadius))
	}

	// Widen a degenerate axis around its center
	c := b.Center()
	halfW := math.Max(b.Right()-b.Left(), minExtent) / 2
	halfH := math.Max(b.Top()-b.Bottom(), minExtent) / 2
	b = orb.Bound{
		Min: orb.Point{c[0] - halfW, c[1] - halfH},
		Max: orb.Point{c[0] + halfW, c[1] + halfH},
	}
	b = b.Pad(2 * math.Max(halfW, halfH) * r.Padding)

	width := r.Width
	if width <= 0 {
		width = 200.0
	}
	scale := width / (b.Right() - b.Left())
	return frame{
		bound:  b,
		scale:  scale,
		width:  width,
		height: (b.Top() - b.Bottom()) * scale,
	}, nil
}

func circleBound(c Point, radius float64) orb.Bound {
	if math.IsNaN(radius) || math.IsInf(radius, 0) {
		radius = 0
	}
	return orb.Bound{
		Min: orb.Point{c.Lon - radius, c.Lat - radius},
		Max: orb.Point{c.Lon + radius, c.Lat + radius},
	}
}

// RenderToSVG writes the run as an SVG to the provided writer
func (r *MapRenderer) RenderToSVG(w io.Writer) error {
	f, err := r.layout()
	if err != nil {
		return err
	}

	svgRenderer := svg.New(w, f.width, f.height, nil)
	r.renderToCanvas(svgRenderer, f)
	return svgRenderer.Close()
}

// RenderToPNG writes the run as a PNG to the provided writer
func (r *MapRenderer) RenderToPNG(w io.Writer) error {
	f, err := r.layout()
	if err != nil {
		return err
	}

	resolution := r.Resolution
	if resolution == 0 {
		resolution = canvas.DPI(127)
	}
	rast := rasterizer.New(f.width, f.height, resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast, f)

	if r.Caption {
		y := 16
		for _, line := range r.CaptionLines() {
			drawText(rast, 8, y, line, color.RGBA{0, 0, 0, 255})
			y += 16
		}
	}

	// Rasterizer implements draw.Image
	return png.Encode(w, rast)
}

// CaptionLines summarizes the run for the PNG caption
func (r *MapRenderer) CaptionLines() []string {
	res := r.Result
	lines := []string{fmt.Sprintf("Tower %s  method=%s  points=%d", res.TowerID, res.Method, len(res.Points))}
	if res.Estimate != nil {
		lines = append(lines, fmt.Sprintf("Center: (%f, %f). Radius: %f", res.Estimate.Center.Lat, res.Estimate.Center.Lon, res.Estimate.Radius))
	} else {
		lines = append(lines, "No estimate")
	}
	return lines
}

// renderToCanvas renders the run to a canvas renderer (shared logic for SVG and PNG)
func (r *MapRenderer) renderToCanvas(renderer canvasRenderer, f frame) {
	res := r.Result

	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	renderer.RenderPath(canvas.Rectangle(f.width, f.height), bgStyle, canvas.Identity)

	// Candidate triangles and circles
	if r.ShowCandidates {
		triStyle := canvas.DefaultStyle
		triStyle.Fill = canvas.Paint{Color: canvas.Transparent}
		triStyle.Stroke = canvas.Paint{Color: canvas.Gray}
		triStyle.StrokeWidth = 0.2
		triStyle.Dashes = []float64{1.0, 1.0}

		for _, c := range res.Candidates {
			tp := &canvas.Path{}
			for i, p := range c.Triple.Points {
				x, y := f.toCanvas(p)
				if i == 0 {
					tp.MoveTo(x, y)
				} else {
					tp.LineTo(x, y)
				}
			}
			tp.Close()
			renderer.RenderPath(tp, triStyle, canvas.Identity)
		}

		circleStyle := canvas.DefaultStyle
		circleStyle.Fill = canvas.Paint{Color: canvas.Transparent}
		circleStyle.Stroke = canvas.Paint{Color: nrgbaToRGBA(withAlpha(r.Color, 96))}
		circleStyle.StrokeWidth = 0.3

		for _, c := range res.Circles {
			// Rejected circles can be orders of magnitude larger than the map
			if !(c.Radius > 0) || c.Radius*f.scale > 10*f.width {
				continue
			}
			x, y := f.toCanvas(c.Center)
			renderer.RenderPath(canvas.Circle(c.Radius*f.scale).Translate(x, y), circleStyle, canvas.Identity)
		}
	}

	// Threshold method: centroid and percentile ring
	if res.Centroid != nil {
		ringStyle := canvas.DefaultStyle
		ringStyle.Fill = canvas.Paint{Color: canvas.Transparent}
		ringStyle.Stroke = canvas.Paint{Color: centroidColor}
		ringStyle.StrokeWidth = 0.3
		ringStyle.Dashes = []float64{2.0, 1.0}

		x, y := f.toCanvas(*res.Centroid)
		if res.MinRadius > 0 {
			renderer.RenderPath(canvas.Circle(res.MinRadius*f.scale).Translate(x, y), ringStyle, canvas.Identity)
		}

		centroidStyle := canvas.DefaultStyle
		centroidStyle.Fill = canvas.Paint{Color: centroidColor}
		renderer.RenderPath(canvas.Rectangle(2.0, 2.0).Translate(x-1.0, y-1.0), centroidStyle, canvas.Identity)
	}

	// Fixes
	pointStyle := canvas.DefaultStyle
	pointStyle.Fill = canvas.Paint{Color: nrgbaToRGBA(r.Color)}
	pointStyle.Stroke = canvas.Paint{Color: canvas.Transparent}
	for _, p := range res.Points {
		x, y := f.toCanvas(p)
		renderer.RenderPath(canvas.Circle(0.8).Translate(x, y), pointStyle, canvas.Identity)
	}

	// Estimate
	if res.Estimate != nil {
		x, y := f.toCanvas(res.Estimate.Center)

		estStyle := canvas.DefaultStyle
		estStyle.Fill = canvas.Paint{Color: canvas.Transparent}
		estStyle.Stroke = canvas.Paint{Color: estimateColor}
		estStyle.StrokeWidth = 0.8
		if res.Estimate.Radius > 0 {
			renderer.RenderPath(canvas.Circle(res.Estimate.Radius*f.scale).Translate(x, y), estStyle, canvas.Identity)
		}

		centerStyle := canvas.DefaultStyle
		centerStyle.Fill = canvas.Paint{Color: estimateColor}
		centerStyle.Stroke = canvas.Paint{Color: canvas.Black}
		centerStyle.StrokeWidth = 0.3
		renderer.RenderPath(canvas.Circle(1.5).Translate(x, y), centerStyle, canvas.Identity)
	}
}

// drawText renders text onto an image at the specified pixel position
func drawText(img draw.Image, x, y int, text string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
