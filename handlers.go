package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/nrsyed/cell/tower"
)

// maxHandoffBody caps the size of a posted hand-off payload
const maxHandoffBody = 1 << 20

// estimateService accepts fixes and runs estimates on demand
type estimateService interface {
	Ingest(towerID string, payload []byte) (int, error)
	Estimate(ctx context.Context, towerID string) (*tower.Result, error)
}

// newHTTPServer creates an HTTP server with all endpoints. store and svc may
// be nil, which disables history and the POST endpoints.
func newHTTPServer(stateTracker *tower.StateTracker, store *tower.EstimateStore, svc estimateService) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		towers := stateTracker.Towers()
		estimated := 0
		for _, ts := range towers {
			if ts.Estimate != nil {
				estimated++
			}
		}
		writeJSON(w, http.StatusOK, struct {
			Status    string    `json:"status"`
			Timestamp time.Time `json:"timestamp"`
			Towers    int       `json:"towers"`
			Estimated int       `json:"estimated"`
		}{
			Status:    "ok",
			Timestamp: time.Now(),
			Towers:    len(towers),
			Estimated: estimated,
		})
	})

	mux.HandleFunc("GET /towers", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, stateTracker.Towers())
	})

	mux.HandleFunc("GET /towers/{id}/estimate", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		state, ok := stateTracker.Snapshot(id)
		if !ok {
			http.Error(w, "Unknown tower", http.StatusNotFound)
			return
		}
		if state.Estimate == nil {
			http.Error(w, "No estimate available", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, state)
	})

	mux.HandleFunc("POST /towers/{id}/estimate", func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			http.Error(w, "Estimation not enabled", http.StatusNotImplemented)
			return
		}
		id := r.PathValue("id")
		if _, ok := stateTracker.Snapshot(id); !ok {
			http.Error(w, "Unknown tower", http.StatusNotFound)
			return
		}
		res, err := svc.Estimate(r.Context(), id)
		if err != nil {
			http.Error(w, err.Error(), estimateErrorStatus(err))
			return
		}
		writeJSON(w, http.StatusOK, res)
	})

	mux.HandleFunc("POST /towers/{id}/handoffs", func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			http.Error(w, "Ingest not enabled", http.StatusNotImplemented)
			return
		}
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxHandoffBody))
		if err != nil {
			http.Error(w, "Payload too large", http.StatusRequestEntityTooLarge)
			return
		}
		n, err := svc.Ingest(r.PathValue("id"), body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusAccepted, struct {
			Accepted int `json:"accepted"`
		}{n})
	})

	mux.HandleFunc("GET /towers/{id}/map.svg", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		res, ok := stateTracker.Result(id)
		if !ok {
			http.Error(w, "No estimate available", http.StatusServiceUnavailable)
			return
		}
		renderer := tower.NewMapRenderer(res, stateTracker.Color(id))
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "no-cache")
		if err := renderer.RenderToSVG(w); err != nil {
			log.Printf("Error encoding map SVG for %s: %v", id, err)
		}
	})

	mux.HandleFunc("GET /towers/{id}/map.png", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		res, ok := stateTracker.Result(id)
		if !ok {
			http.Error(w, "No estimate available", http.StatusServiceUnavailable)
			return
		}
		renderer := tower.NewMapRenderer(res, stateTracker.Color(id))
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		if err := renderer.RenderToPNG(w); err != nil {
			log.Printf("Error encoding map PNG for %s: %v", id, err)
		}
	})

	mux.HandleFunc("GET /towers/{id}/geojson", func(w http.ResponseWriter, r *http.Request) {
		res, ok := stateTracker.Result(r.PathValue("id"))
		if !ok {
			http.Error(w, "No estimate available", http.StatusServiceUnavailable)
			return
		}
		data, err := tower.ResultToFeatureCollection(res).MarshalJSON()
		if err != nil {
			http.Error(w, "Error encoding GeoJSON", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/geo+json")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = w.Write(data)
	})

	mux.HandleFunc("GET /towers/{id}/history", func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			http.Error(w, "Estimate history not enabled", http.StatusNotFound)
			return
		}
		limit := 0
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 0 {
				http.Error(w, "Invalid limit", http.StatusBadRequest)
				return
			}
			limit = n
		}
		records, err := store.History(r.Context(), r.PathValue("id"), limit)
		if err != nil {
			log.Printf("Error reading history: %v", err)
			http.Error(w, "Error reading history", http.StatusInternalServerError)
			return
		}
		if records == nil {
			records = []*tower.EstimateRecord{}
		}
		writeJSON(w, http.StatusOK, records)
	})

	// Default route serves an HTML page embedding each tower's SVG map
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = fmt.Fprint(w, `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>celltower</title>
<style>
body{font-family:sans-serif;background:#fafafa;margin:1em}
figure{display:inline-block;margin:1em}
img{width:480px;height:auto;border:1px solid #ccc}
</style>
</head>
<body>
<h1>Cell tower estimates</h1>
`)
		for _, ts := range stateTracker.Towers() {
			id := html.EscapeString(ts.TowerID)
			caption := id
			if ts.Estimate != nil {
				caption = fmt.Sprintf("%s: (%f, %f) r=%f", id, ts.Estimate.Center.Lat, ts.Estimate.Center.Lon, ts.Estimate.Radius)
			} else if ts.LastError != "" {
				caption = fmt.Sprintf("%s: %s", id, html.EscapeString(ts.LastError))
			}
			_, _ = fmt.Fprintf(w, "<figure><img src=\"/towers/%s/map.svg\" alt=\"%s\"><figcaption>%s (%d fixes)</figcaption></figure>\n",
				id, id, caption, ts.Observations)
		}
		_, _ = fmt.Fprint(w, "</body>\n</html>")
	})

	// Wrap mux with logging middleware
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
		mux.ServeHTTP(w, r)
	})
}

// estimateErrorStatus maps a failed estimate to its response code. Anything
// unrecognized means an estimate is already running.
func estimateErrorStatus(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, tower.ErrInsufficientData),
		errors.Is(err, tower.ErrNotFound),
		errors.Is(err, tower.ErrNoValidEstimate):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusConflict
	}
}

// writeJSON encodes v as the response body
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}
