package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions holds the parsed command line
type AppOptions struct {
	ConfigFile string

	// Locate mode
	LocateFile    string
	TowerID       string
	Method        string
	Percentile    float64
	Candidates    int
	RadiusBound   float64
	Delimiter     string
	Quiet         bool
	SVGOutput     string
	PNGOutput     string
	PlotOutput    string
	GeoJSONOutput string

	// Extract mode
	ExtractFile string
	CDMA        int
	ExtractAll  bool
	Destination string
	FirstLine   int

	// Service mode
	MqttMode bool
	HttpMode bool
	HttpPort int
}

// Runner executes the selected mode
type Runner interface {
	ApplyOptions(opts AppOptions)
	RunLocate() error
	RunExtract() error
	RunService() error
}

// run parses args, prints the banner to out and dispatches to app
func run(args []string, out io.Writer, app Runner) error {
	fs := flag.NewFlagSet("celltower", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts AppOptions
	fs.StringVar(&opts.ConfigFile, "config", "config.yaml", "Path to configuration file (optional for --locate and --extract)")

	fs.StringVar(&opts.LocateFile, "locate", "", "Estimate the tower position from a file of lat/lon fixes")
	fs.StringVar(&opts.TowerID, "tower", "", "Tower ID to label output with (default: file name)")
	fs.StringVar(&opts.Method, "method", "", "Estimation method: perimeter or threshold (default from config)")
	fs.Float64Var(&opts.Percentile, "percent", 0, "Fraction of points inside the minimum radius for --method threshold, (0, 1]")
	fs.IntVar(&opts.Candidates, "candidates", 0, "Number of widest triangles kept for --method perimeter")
	fs.Float64Var(&opts.RadiusBound, "radius-bound", 0, "Discard circles with a larger radius (coordinate units)")
	fs.StringVar(&opts.Delimiter, "delim", "", "Field delimiter: tab, sp or a single character (default from config)")
	fs.BoolVar(&opts.Quiet, "quiet", false, "Suppress search progress reports")
	fs.StringVar(&opts.SVGOutput, "svg", "", "Write a vector map of the run to this SVG file")
	fs.StringVar(&opts.PNGOutput, "png", "", "Write a raster map of the run to this PNG file")
	fs.StringVar(&opts.PlotOutput, "plot", "", "Write a chart of the run (format by extension: .png, .svg, .pdf)")
	fs.StringVar(&opts.GeoJSONOutput, "geojson", "", "Write the run as a GeoJSON FeatureCollection")

	fs.StringVar(&opts.ExtractFile, "extract", "", "Extract per-tower coordinate files from a logged hand-off file")
	fs.IntVar(&opts.CDMA, "cdma", 0, "CDMA number of the tower to extract")
	fs.BoolVar(&opts.ExtractAll, "extract-all", false, "Extract every tower found in the file")
	fs.StringVar(&opts.Destination, "destination", ".", "Directory for extracted coordinate files")
	fs.IntVar(&opts.FirstLine, "first-line", -1, "Row index where data begins (default from config)")

	fs.BoolVar(&opts.MqttMode, "mqtt", false, "Run MQTT service mode: collect hand-offs and publish estimates")
	fs.BoolVar(&opts.HttpMode, "http", false, "Enable HTTP server for estimates and maps")
	fs.IntVar(&opts.HttpPort, "http-port", 8080, "HTTP server port")

	if err := fs.Parse(args); err != nil {
		return err
	}

	// A bare file argument is the same as --locate FILE
	if opts.LocateFile == "" && opts.ExtractFile == "" && fs.NArg() > 0 {
		opts.LocateFile = fs.Arg(0)
	}

	fmt.Fprintf(out, "celltower version: %s\n", Version)
	app.ApplyOptions(opts)

	switch {
	case opts.ExtractFile != "":
		if opts.CDMA == 0 && !opts.ExtractAll {
			return errors.New("--extract needs --cdma N or --extract-all")
		}
		return app.RunExtract()
	case opts.LocateFile != "":
		return app.RunLocate()
	case opts.MqttMode || opts.HttpMode:
		return app.RunService()
	}

	fmt.Fprintln(out, "Use --locate FILE to estimate a tower position from hand-off fixes")
	fmt.Fprintln(out, "Use --method threshold --percent 0.9 for the percentile radius search")
	fmt.Fprintln(out, "Use --svg, --png, --plot or --geojson with --locate to save the run")
	fmt.Fprintln(out, "Use --extract FILE --cdma N (or --extract-all) to split a hand-off log per tower")
	fmt.Fprintln(out, "Use --mqtt to collect hand-offs over MQTT and publish estimates")
	fmt.Fprintln(out, "Use --http to serve estimates and maps")
	fmt.Fprintln(out, "\nConfiguration:")
	fmt.Fprintln(out, "  config.yaml - estimator, input, MQTT and service settings")
	return nil
}

func main() {
	if err := run(os.Args[1:], os.Stdout, NewApp(os.Stdout)); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatal(err)
	}
}
