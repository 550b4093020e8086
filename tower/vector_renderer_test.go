package tower

import (
	"bytes"
	"errors"
	"image/color"
	"image/png"
	"math"
	"strings"
	"testing"

	"github.com/tdewolff/canvas"
)

func TestMapRenderer_RenderToSVG(t *testing.T) {
	r := NewMapRenderer(squareResult("385"), "#FF0000")

	var buf bytes.Buffer
	if err := r.RenderToSVG(&buf); err != nil {
		t.Fatalf("Failed to render to SVG: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("<svg")) {
		t.Errorf("Output does not contain <svg tag")
	}
	if !bytes.Contains(buf.Bytes(), []byte("path")) {
		t.Errorf("Output does not contain path elements")
	}
}

func TestMapRenderer_RenderToPNG(t *testing.T) {
	r := NewMapRenderer(squareResult("385"), "#FF0000")
	r.Caption = false

	var buf bytes.Buffer
	if err := r.RenderToPNG(&buf); err != nil {
		t.Fatalf("Failed to render to PNG: %v", err)
	}

	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("Failed to decode PNG: %v", err)
	}

	// 200mm at 127 DPI is 5 pixels per millimeter
	b := img.Bounds()
	if math.Abs(float64(b.Dx())-1000) > 1 {
		t.Errorf("width = %d px, want about 1000", b.Dx())
	}
	if b.Dx() != b.Dy() {
		t.Errorf("square data should give a square image, got %dx%d", b.Dx(), b.Dy())
	}

	// Corner is background
	if r, g, bl, _ := img.At(b.Min.X+2, b.Min.Y+2).RGBA(); r>>8 < 250 || g>>8 < 250 || bl>>8 < 250 {
		t.Errorf("corner pixel = (%d, %d, %d), want white", r>>8, g>>8, bl>>8)
	}

	// The estimate marker sits at the middle of the frame
	mid := img.At(b.Min.X+b.Dx()/2, b.Min.Y+b.Dy()/2)
	if r, g, bl, _ := mid.RGBA(); r>>8 < 180 || g>>8 > 90 || bl>>8 > 90 {
		t.Errorf("center pixel = (%d, %d, %d), want the estimate color", r>>8, g>>8, bl>>8)
	}
}

func TestMapRenderer_CaptionChangesImage(t *testing.T) {
	res := squareResult("385")

	var plain, captioned bytes.Buffer
	r := NewMapRenderer(res, "")
	r.Caption = false
	if err := r.RenderToPNG(&plain); err != nil {
		t.Fatal(err)
	}
	r.Caption = true
	if err := r.RenderToPNG(&captioned); err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(plain.Bytes(), captioned.Bytes()) {
		t.Error("caption should change the rendered image")
	}
}

func TestMapRenderer_NothingToRender(t *testing.T) {
	for _, res := range []*Result{nil, {Method: MethodPerimeter}} {
		r := NewMapRenderer(res, "")
		var buf bytes.Buffer
		if err := r.RenderToSVG(&buf); !errors.Is(err, ErrInsufficientData) {
			t.Errorf("RenderToSVG() error = %v, want ErrInsufficientData", err)
		}
		if err := r.RenderToPNG(&buf); !errors.Is(err, ErrInsufficientData) {
			t.Errorf("RenderToPNG() error = %v, want ErrInsufficientData", err)
		}
	}
}

func TestMapRenderer_LayoutSinglePoint(t *testing.T) {
	r := NewMapRenderer(&Result{Points: PointSet{{5, 5}}}, "")
	f, err := r.layout()
	if err != nil {
		t.Fatalf("layout() error = %v", err)
	}
	if f.width != 200 || math.Abs(f.height-200) > 1e-6 {
		t.Errorf("frame = %vx%v, want 200x200", f.width, f.height)
	}
	x, y := f.toCanvas(Point{5, 5})
	if math.Abs(x-100) > 1e-6 || math.Abs(y-100) > 1e-6 {
		t.Errorf("point maps to (%v, %v), want the frame center", x, y)
	}
}

func TestMapRenderer_RejectedCirclesSkipped(t *testing.T) {
	res := squareResult("385")
	res.Circles = []Circle{
		{Center: Point{1, 1}, Radius: math.Sqrt2},
		{Center: Point{1, 1}, Radius: 1e9},
		{Center: Point{1, 1}, Radius: math.NaN()},
	}

	var buf bytes.Buffer
	if err := NewMapRenderer(res, "").RenderToSVG(&buf); err != nil {
		t.Fatalf("RenderToSVG() error = %v", err)
	}
	if strings.Contains(buf.String(), "NaN") {
		t.Error("SVG should not contain NaN coordinates")
	}
}

func TestMapRenderer_CaptionLines(t *testing.T) {
	r := NewMapRenderer(squareResult("385"), "")
	lines := r.CaptionLines()
	want := []string{
		"Tower 385  method=perimeter  points=4",
		"Center: (1.000000, 1.000000). Radius: 1.500000",
	}
	if len(lines) != len(want) {
		t.Fatalf("CaptionLines() = %v", lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}

	r.Result = &Result{TowerID: "385", Method: MethodThreshold}
	if got := r.CaptionLines()[1]; got != "No estimate" {
		t.Errorf("CaptionLines()[1] = %q, want No estimate", got)
	}
}

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		in   string
		want color.NRGBA
	}{
		{"#FF6B6B", color.NRGBA{0xFF, 0x6B, 0x6B, 255}},
		{"#00ff00", color.NRGBA{0, 0xFF, 0, 255}},
		{"", color.NRGBA{0x1F, 0x77, 0xB4, 255}},
		{"red", color.NRGBA{0x1F, 0x77, 0xB4, 255}},
		{"#GGGGGG", color.NRGBA{0x1F, 0x77, 0xB4, 255}},
	}
	for _, tt := range tests {
		if got := parseHexColor(tt.in); got != tt.want {
			t.Errorf("parseHexColor(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNRGBAToRGBA(t *testing.T) {
	tests := []struct {
		in   color.NRGBA
		want color.RGBA
	}{
		{color.NRGBA{200, 100, 50, 255}, color.RGBA{200, 100, 50, 255}},
		{color.NRGBA{200, 100, 50, 0}, color.RGBA{0, 0, 0, 0}},
		{color.NRGBA{255, 128, 0, 128}, color.RGBA{128, 64, 0, 128}},
	}
	for _, tt := range tests {
		if got := nrgbaToRGBA(tt.in); got != tt.want {
			t.Errorf("nrgbaToRGBA(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestMapRenderer_DefaultResolution(t *testing.T) {
	r := NewMapRenderer(squareResult("385"), "")
	if r.Resolution != canvas.DPI(127) {
		t.Errorf("Resolution = %v, want 127 DPI", r.Resolution)
	}
}
