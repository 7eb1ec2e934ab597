package main

import (
	"encoding/json"
	"image/png"
	"log"
	"net/http"
	"time"

	"github.com/kwv/dockfinder/dock"
)

// newHTTPServer creates an HTTP server with all endpoints
func newHTTPServer(stateTracker *dock.StateTracker, tmpl *dock.TemplateModel, threshold float64) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] /health request from %s", r.RemoteAddr)
		w.Header().Set("Content-Type", "application/json")
		status := struct {
			Status    string        `json:"status"`
			Timestamp time.Time     `json:"timestamp"`
			HasScan   bool          `json:"hasScan"`
			Counters  dock.Counters `json:"counters"`
		}{
			Status:    "ok",
			Timestamp: time.Now(),
			HasScan:   stateTracker.HasSnapshot(),
			Counters:  stateTracker.GetCounters(),
		}
		if err := json.NewEncoder(w).Encode(status); err != nil {
			log.Printf("Error encoding health status: %v", err)
		}
	})

	// Latest detection as JSON
	mux.HandleFunc("/detection", func(w http.ResponseWriter, r *http.Request) {
		snap, ok := stateTracker.GetSnapshot()
		if !ok {
			http.Error(w, "No scan processed yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		resp := struct {
			dock.Snapshot
			Threshold float64 `json:"threshold"`
			Accepted  bool    `json:"accepted"`
		}{
			Snapshot:  snap,
			Threshold: threshold,
			Accepted:  !snap.Best.IsSentinel() && !snap.Best.Degenerate && snap.Best.Score >= threshold,
		}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			log.Printf("Error encoding detection: %v", err)
		}
	})

	// Raster rendering of the latest scan
	mux.HandleFunc("/scan.png", func(w http.ResponseWriter, r *http.Request) {
		snap, ok := stateTracker.GetSnapshot()
		if !ok {
			http.Error(w, "No scan processed yet", http.StatusServiceUnavailable)
			return
		}
		img := dock.NewScanRenderer(snap, tmpl, threshold).Render()
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		if err := png.Encode(w, img); err != nil {
			log.Printf("Error encoding scan PNG: %v", err)
		}
	})

	// Vector rendering of the latest scan
	mux.HandleFunc("/scan.svg", func(w http.ResponseWriter, r *http.Request) {
		snap, ok := stateTracker.GetSnapshot()
		if !ok {
			http.Error(w, "No scan processed yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "no-cache")
		if err := dock.NewVectorRenderer(snap, tmpl, threshold).RenderToSVG(w); err != nil {
			log.Printf("Error rendering scan SVG: %v", err)
		}
	})

	// Detection scene as GeoJSON, sensor frame metres
	mux.HandleFunc("/detection.geojson", func(w http.ResponseWriter, r *http.Request) {
		snap, ok := stateTracker.GetSnapshot()
		if !ok {
			http.Error(w, "No scan processed yet", http.StatusServiceUnavailable)
			return
		}
		data, err := dock.SceneFeatureCollection(snap, tmpl, threshold).MarshalJSON()
		if err != nil {
			http.Error(w, "Failed to encode GeoJSON", http.StatusInternalServerError)
			log.Printf("Error encoding detection GeoJSON: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/geo+json")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = w.Write(data)
	})

	return mux
}
