package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/nrsyed/cell/tower"
)

// App encapsulates the application state and dependencies
type App struct {
	Config       *tower.Config
	Locator      *tower.Locator
	StateTracker *tower.StateTracker
	MQTTClient   *tower.MQTTClient
	Publisher    *tower.Publisher
	Store        *tower.EstimateStore
	Out          io.Writer

	// CLI Flags (effectively dependencies)
	ConfigFile    string
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
	ExtractFile   string
	CDMA          int
	ExtractAll    bool
	Destination   string
	FirstLine     int
	HttpPort      int
	MqttMode      bool
	HttpMode      bool

	ctx      context.Context
	inflight sync.WaitGroup
}

// NewApp creates a new App instance writing user-facing output to out
func NewApp(out io.Writer) *App {
	return &App{
		StateTracker: tower.NewStateTracker(),
		Out:          out,
		FirstLine:    -1,
		ctx:          context.Background(),
	}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.LocateFile = opts.LocateFile
	a.TowerID = opts.TowerID
	a.Method = opts.Method
	a.Percentile = opts.Percentile
	a.Candidates = opts.Candidates
	a.RadiusBound = opts.RadiusBound
	a.Delimiter = opts.Delimiter
	a.Quiet = opts.Quiet
	a.SVGOutput = opts.SVGOutput
	a.PNGOutput = opts.PNGOutput
	a.PlotOutput = opts.PlotOutput
	a.GeoJSONOutput = opts.GeoJSONOutput
	a.ExtractFile = opts.ExtractFile
	a.CDMA = opts.CDMA
	a.ExtractAll = opts.ExtractAll
	a.Destination = opts.Destination
	a.FirstLine = opts.FirstLine
	a.HttpPort = opts.HttpPort
	a.MqttMode = opts.MqttMode
	a.HttpMode = opts.HttpMode
}

// loadConfig reads the config file and applies CLI overrides. A missing
// default config.yaml falls back to the built-in defaults.
func (a *App) loadConfig() (*tower.Config, error) {
	var config *tower.Config
	switch _, err := os.Stat(a.ConfigFile); {
	case a.ConfigFile == "":
		config = tower.DefaultConfig()
	case errors.Is(err, os.ErrNotExist) && a.ConfigFile == "config.yaml":
		config = tower.DefaultConfig()
	default:
		config, err = tower.LoadConfig(a.ConfigFile)
		if err != nil {
			return nil, err
		}
		log.Printf("Loaded config from %s", a.ConfigFile)
	}

	if a.Method != "" {
		config.Estimator.Method = tower.Method(strings.ToLower(a.Method))
	}
	if a.Percentile != 0 {
		config.Estimator.Percentile = a.Percentile
	}
	if a.Candidates != 0 {
		config.Estimator.Candidates = a.Candidates
	}
	if a.RadiusBound != 0 {
		config.Estimator.RadiusBound = a.RadiusBound
	}
	if a.Delimiter != "" {
		config.Input.Delimiter = a.Delimiter
	}
	if a.FirstLine >= 0 {
		config.Input.FirstLine = a.FirstLine
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	a.Config = config
	a.Locator = tower.NewLocator(config.Estimator)
	return config, nil
}

// RunLocate estimates a tower position from a file of fixes
func (a *App) RunLocate() error {
	config, err := a.loadConfig()
	if err != nil {
		return err
	}
	delim, err := tower.ParseDelimiter(config.Input.Delimiter)
	if err != nil {
		return err
	}

	points, err := tower.LoadPointsFile(a.LocateFile, delim)
	if err != nil {
		return err
	}

	towerID := a.TowerID
	if towerID == "" {
		towerID = strings.TrimSuffix(filepath.Base(a.LocateFile), filepath.Ext(a.LocateFile))
	}

	if !a.Quiet {
		a.Locator.Progress = tower.LogProgress
	}
	ctx, stop := signal.NotifyContext(a.ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(a.Out, "Loaded %d point(s) from %s; method %s\n", len(points), a.LocateFile, config.Estimator.Method)
	res, err := a.Locator.Locate(ctx, points)
	if res != nil {
		res.TowerID = towerID
		fmt.Fprintf(a.Out, "%d unique point(s), %d combination(s) evaluated in %s\n",
			len(res.Points), res.Evaluated, res.Duration.Round(time.Millisecond))
	}

	if err != nil {
		if errors.Is(err, tower.ErrNotFound) {
			fmt.Fprintln(a.Out, "Center could not be located. Try a different percentile.")
		}
		if res != nil {
			if outErr := a.writeOutputs(res); outErr != nil {
				log.Printf("Error writing outputs: %v", outErr)
			}
		}
		return err
	}

	printEstimate(a.Out, res)
	return a.writeOutputs(res)
}

// printEstimate writes the estimate line of a finished run
func printEstimate(out io.Writer, res *tower.Result) {
	est := res.Estimate
	switch res.Method {
	case tower.MethodThreshold:
		fmt.Fprintf(out, "Center located at latitude %f, longitude %f. Radius = %f\n",
			est.Center.Lat, est.Center.Lon, est.Radius)
	default:
		fmt.Fprintf(out, "Center: (%f, %f). Radius: %f\n", est.Center.Lat, est.Center.Lon, est.Radius)
		fmt.Fprintf(out, "%d of %d circle(s) averaged\n", est.Count, len(res.Circles))
	}
}

// writeOutputs saves the optional map, chart and GeoJSON files of a run
func (a *App) writeOutputs(res *tower.Result) error {
	color := a.Config.GetTowerByID(res.TowerID)
	hex := ""
	if color != nil {
		hex = color.Color
	}
	renderer := tower.NewMapRenderer(res, hex)

	if a.SVGOutput != "" {
		if err := writeFile(a.SVGOutput, renderer.RenderToSVG); err != nil {
			return fmt.Errorf("writing SVG: %w", err)
		}
		fmt.Fprintf(a.Out, "Saved map to %s\n", a.SVGOutput)
	}
	if a.PNGOutput != "" {
		if err := writeFile(a.PNGOutput, renderer.RenderToPNG); err != nil {
			return fmt.Errorf("writing PNG: %w", err)
		}
		fmt.Fprintf(a.Out, "Saved map to %s\n", a.PNGOutput)
	}
	if a.PlotOutput != "" {
		if err := tower.SavePlot(res, a.PlotOutput); err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "Saved chart to %s\n", a.PlotOutput)
	}
	if a.GeoJSONOutput != "" {
		data, err := tower.ResultToFeatureCollection(res).MarshalJSON()
		if err != nil {
			return fmt.Errorf("encoding GeoJSON: %w", err)
		}
		if err := os.WriteFile(a.GeoJSONOutput, data, 0644); err != nil {
			return fmt.Errorf("writing GeoJSON: %w", err)
		}
		fmt.Fprintf(a.Out, "Saved GeoJSON to %s\n", a.GeoJSONOutput)
	}
	return nil
}

// writeFile creates path and fills it with render
func writeFile(path string, render func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := render(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// RunExtract splits a logged hand-off file into per-tower coordinate files
func (a *App) RunExtract() error {
	config, err := a.loadConfig()
	if err != nil {
		return err
	}
	opts, err := tower.ExtractOptionsFromConfig(config.Input)
	if err != nil {
		return err
	}

	extraction, err := tower.ExtractCoordsFile(a.ExtractFile, opts)
	if err != nil {
		return err
	}

	var cdmas []int
	if !a.ExtractAll {
		cdmas = []int{a.CDMA}
	}
	dest := a.Destination
	if dest == "" {
		dest = "."
	}

	written, err := tower.SaveExtraction(extraction, dest, cdmas)
	for _, path := range written {
		fmt.Fprintf(a.Out, "File %s successfully written.\n", path)
	}
	return err
}

// RunService collects hand-offs over MQTT and/or HTTP and keeps per-tower
// estimates up to date
func (a *App) RunService() error {
	fmt.Fprintln(a.Out, "Starting celltower service...")

	config, err := a.loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if a.MqttMode {
		config.MQTT = tower.ResolveMQTT(config.MQTT)
	}
	if err := config.ValidateService(a.MqttMode); err != nil {
		return err
	}
	a.StateTracker.Configure(config.Towers)

	ctx, stop := signal.NotifyContext(a.ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	a.ctx = ctx

	if config.Service.Database != "" {
		store, err := tower.OpenEstimateStore(config.Service.Database)
		if err != nil {
			return err
		}
		a.Store = store
		defer a.Store.Close()
		log.Printf("Recording estimates in %s", config.Service.Database)
		if err := a.restoreEstimates(ctx); err != nil {
			return fmt.Errorf("restoring estimates: %w", err)
		}
	}

	if a.MqttMode {
		mqttClient, err := tower.InitMQTT(config, a.handleHandoffs)
		if err != nil {
			return fmt.Errorf("failed to initialize MQTT: %w", err)
		}
		if mqttClient == nil {
			return errors.New("MQTT broker not configured in config.yaml")
		}
		a.startMQTT(mqttClient)
		fmt.Fprintln(a.Out, "MQTT estimate publisher initialized")
	}

	var srv *http.Server
	if a.HttpMode {
		srv = &http.Server{
			Addr:              fmt.Sprintf("0.0.0.0:%d", a.HttpPort),
			Handler:           newHTTPServer(a.StateTracker, a.Store, a),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Printf("[HTTP] Starting server on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("[HTTP] Server error: %v", err)
				stop()
			}
		}()
	}

	fmt.Fprintln(a.Out, "\nService Running")
	fmt.Fprintln(a.Out, "===============")
	fmt.Fprintf(a.Out, "Method %s, re-estimating every %d new point(s)\n",
		config.Estimator.Method, config.Service.RecomputeEvery)
	if a.MqttMode {
		fmt.Fprintln(a.Out, "\nMQTT:")
		fmt.Fprintf(a.Out, "  Subscribed topic: %s\n", config.MQTT.Topic)
		fmt.Fprintf(a.Out, "  Publishing to: %s/{towerID}/estimate\n", a.Publisher.Prefix())
		fmt.Fprintf(a.Out, "  Combined estimates: %s/estimates\n", a.Publisher.Prefix())
	}
	if a.HttpMode {
		fmt.Fprintf(a.Out, "\nHTTP endpoints (port %d):\n", a.HttpPort)
		fmt.Fprintln(a.Out, "  GET  /health                   - Health check")
		fmt.Fprintln(a.Out, "  GET  /towers                   - Known towers")
		fmt.Fprintln(a.Out, "  GET  /towers/{id}/estimate     - Latest estimate")
		fmt.Fprintln(a.Out, "  POST /towers/{id}/estimate     - Re-estimate now")
		fmt.Fprintln(a.Out, "  POST /towers/{id}/handoffs     - Submit hand-off fixes")
		fmt.Fprintln(a.Out, "  GET  /towers/{id}/map.svg      - Vector map")
		fmt.Fprintln(a.Out, "  GET  /towers/{id}/map.png      - Raster map")
		fmt.Fprintln(a.Out, "  GET  /towers/{id}/geojson      - GeoJSON export")
		fmt.Fprintln(a.Out, "  GET  /towers/{id}/history      - Stored estimates")
	}
	fmt.Fprintln(a.Out, "\nPress Ctrl+C to stop")

	<-ctx.Done()

	fmt.Fprintln(a.Out, "\nShutting down service...")
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[HTTP] Shutdown error: %v", err)
		}
	}
	if a.MQTTClient != nil {
		a.MQTTClient.Disconnect()
	}
	a.inflight.Wait()
	fmt.Fprintln(a.Out, "Service stopped")
	return nil
}

// restoreEstimates loads the latest stored estimate of every tower into the
// state tracker
func (a *App) restoreEstimates(ctx context.Context) error {
	ids, err := a.Store.Towers(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		rec, err := a.Store.Latest(ctx, id)
		if err != nil {
			return err
		}
		a.StateTracker.Restore(rec)
	}
	if len(ids) > 0 {
		log.Printf("Restored estimates for %d tower(s)", len(ids))
	}
	return nil
}

// startMQTT sets up the estimate publisher and then connects. Hand-offs only
// arrive once the subscription is made, so estimates never see a half-built
// publisher.
func (a *App) startMQTT(client *tower.MQTTClient) {
	a.MQTTClient = client
	a.Publisher = tower.NewPublisher(client.GetClient(), client.PublishPrefix())
	client.Start()
}

// handleHandoffs is the MQTT message handler
func (a *App) handleHandoffs(topic string, fixes []tower.Handoff, err error) {
	if err != nil {
		log.Printf("[MQTT] Dropping message on %s: %v", topic, err)
		return
	}
	a.ingest(fixes)
}

// Ingest decodes a hand-off payload posted for a tower and records it.
// It returns the number of fixes accepted.
func (a *App) Ingest(towerID string, payload []byte) (int, error) {
	fixes, err := tower.DecodeHandoff(towerID, payload)
	if err != nil {
		return 0, err
	}
	a.ingest(fixes)
	return len(fixes), nil
}

// ingest records fixes and schedules an estimate for every tower that has
// collected enough new points
func (a *App) ingest(fixes []tower.Handoff) {
	byTower := make(map[string][]tower.Point)
	var order []string
	for _, h := range fixes {
		if _, ok := byTower[h.TowerID]; !ok {
			order = append(order, h.TowerID)
		}
		byTower[h.TowerID] = append(byTower[h.TowerID], h.Point())
	}

	every := 1
	if a.Config != nil && a.Config.Service.RecomputeEvery > 0 {
		every = a.Config.Service.RecomputeEvery
	}
	for _, id := range order {
		pending := a.StateTracker.AddObservations(id, byTower[id]...)
		log.Printf("[HANDOFF] %s: +%d fix(es), %d pending", id, len(byTower[id]), pending)
		if pending >= every {
			a.scheduleEstimate(id)
		}
	}
}

// scheduleEstimate starts a background run unless one is already in flight
// for the tower
func (a *App) scheduleEstimate(towerID string) {
	raw, ok := a.StateTracker.BeginEstimate(towerID)
	if !ok {
		return
	}
	a.inflight.Add(1)
	go func() {
		defer a.inflight.Done()
		a.runEstimate(a.ctx, towerID, raw)

		// Fixes that arrived during the run
		if a.ctx.Err() == nil && a.StateTracker.Pending(towerID) >= max(a.Config.Service.RecomputeEvery, 1) {
			a.scheduleEstimate(towerID)
		}
	}()
}

// Estimate runs an estimate for a tower now and waits for the result. It
// fails when a run is already in flight.
func (a *App) Estimate(ctx context.Context, towerID string) (*tower.Result, error) {
	raw, ok := a.StateTracker.BeginEstimate(towerID)
	if !ok {
		if a.StateTracker.Observations(towerID) == nil {
			return nil, fmt.Errorf("unknown tower %s", towerID)
		}
		return nil, fmt.Errorf("estimate already running for tower %s", towerID)
	}
	return a.runEstimate(ctx, towerID, raw)
}

// runEstimate locates a tower from raw fixes, then records, stores and
// publishes the outcome. The caller must hold the tower via BeginEstimate.
func (a *App) runEstimate(ctx context.Context, towerID string, raw []tower.Point) (*tower.Result, error) {
	if timeout := a.Config.Service.EstimateTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	res, err := a.Locator.Locate(ctx, raw)
	if res != nil {
		res.TowerID = towerID
	}
	a.StateTracker.FinishEstimate(towerID, res, err)
	if err != nil {
		log.Printf("[ESTIMATE] %s: %v", towerID, err)
		return res, err
	}

	est := res.Estimate
	log.Printf("[ESTIMATE] %s: center (%f, %f) radius %f from %d point(s) in %s",
		towerID, est.Center.Lat, est.Center.Lon, est.Radius, len(res.Points), res.Duration.Round(time.Millisecond))

	if a.Store != nil {
		rec, err := tower.NewEstimateRecord(res, a.Config.Estimator)
		if err == nil {
			err = a.Store.Record(context.WithoutCancel(ctx), rec)
		}
		if err != nil {
			log.Printf("[ESTIMATE] %s: error storing estimate: %v", towerID, err)
		}
	}
	if a.Publisher != nil {
		if err := a.Publisher.PublishEstimate(res); err != nil {
			log.Printf("[ESTIMATE] %s: error publishing estimate: %v", towerID, err)
		}
	}
	return res, nil
}
