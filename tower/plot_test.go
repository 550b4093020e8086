package tower

import (
	"bytes"
	"errors"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestNewPlot(t *testing.T) {
	if _, err := NewPlot(nil); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("NewPlot(nil) error = %v, want ErrInsufficientData", err)
	}

	res := squareResult("385")
	res.Candidates = []Candidate{{Triple: Triple{Points: [3]Point{{0, 0}, {2, 0}, {0, 2}}}}}
	res.Circles = []Circle{{Center: Point{1, 1}, Radius: math.Sqrt2}}

	p, err := NewPlot(res)
	if err != nil {
		t.Fatalf("NewPlot() error = %v", err)
	}
	if p.Title.Text != "Cell tower 385 estimate" {
		t.Errorf("title = %q", p.Title.Text)
	}
	if p.X.Label.Text != "Longitude" || p.Y.Label.Text != "Latitude" {
		t.Errorf("axis labels = %q, %q", p.X.Label.Text, p.Y.Label.Text)
	}
}

func TestNewPlot_Threshold(t *testing.T) {
	centroid := Point{1, 1}
	res := &Result{
		Method:    MethodThreshold,
		Points:    PointSet{{0, 0}, {2, 0}, {0, 2}, {2, 2}},
		Centroid:  &centroid,
		MinRadius: math.Sqrt2,
		MaxRadius: 1.2 * math.Sqrt2,
	}
	p, err := NewPlot(res)
	if err != nil {
		t.Fatalf("NewPlot() error = %v", err)
	}
	if p.Title.Text != "Cell tower estimate" {
		t.Errorf("title = %q", p.Title.Text)
	}
}

func TestWritePlot(t *testing.T) {
	res := squareResult("385")

	var svgBuf bytes.Buffer
	if err := WritePlot(res, &svgBuf, "SVG"); err != nil {
		t.Fatalf("WritePlot(svg) error = %v", err)
	}
	if !bytes.Contains(svgBuf.Bytes(), []byte("<svg")) {
		t.Error("svg output does not contain <svg tag")
	}

	var pngBuf bytes.Buffer
	if err := WritePlot(res, &pngBuf, "png"); err != nil {
		t.Fatalf("WritePlot(png) error = %v", err)
	}
	if _, err := png.Decode(&pngBuf); err != nil {
		t.Errorf("png output does not decode: %v", err)
	}

	if err := WritePlot(res, &bytes.Buffer{}, "bmp3"); err == nil {
		t.Error("WritePlot() with an unknown format should fail")
	}
}

func TestSavePlot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "385-plot.png")
	if err := SavePlot(squareResult("385"), path); err != nil {
		t.Fatalf("SavePlot() error = %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("plot not written: %v", err)
	}
	if info.Size() == 0 {
		t.Error("plot file is empty")
	}
}
