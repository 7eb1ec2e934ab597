package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/kwv/dockfinder/dock"
)

const defaultConfigFile = "config.yaml"

// App encapsulates the application state and dependencies
type App struct {
	Config       *dock.Config
	StateTracker *dock.StateTracker
	Estimator    *dock.Estimator
	Frames       *dock.FrameTree
	MQTTClient   *dock.MQTTClient
	Publisher    *dock.Publisher
	Goals        *dock.GoalClient

	// Set once MQTT wiring is complete; scans arriving earlier are ignored.
	bridge atomic.Pointer[dock.Bridge]
	out    io.Writer

	// CLI Flags (effectively dependencies)
	ConfigFile string
	ScanFile   string
	ScanURL    string
	OutputFile string
	Threshold  float64
	HttpPort   int
	MqttMode   bool
	HttpMode   bool
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{
		StateTracker: dock.NewStateTracker(),
		Threshold:    -1,
		out:          os.Stdout,
	}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.ScanFile = opts.ScanFile
	a.ScanURL = opts.ScanURL
	a.OutputFile = opts.OutputFile
	a.Threshold = opts.Threshold
	a.HttpPort = opts.HttpPort
	a.MqttMode = opts.MqttMode
	a.HttpMode = opts.HttpMode
}

// Bridge returns the running bridge, nil before RunService wires it
func (a *App) Bridge() *dock.Bridge {
	return a.bridge.Load()
}

// loadConfig reads the config file and builds the estimator. A missing file is
// only tolerated for the default path, where built-in defaults apply.
func (a *App) loadConfig() error {
	path := a.ConfigFile
	if path == "" {
		path = defaultConfigFile
	}

	var config *dock.Config
	if _, err := os.Stat(path); os.IsNotExist(err) && path == defaultConfigFile {
		log.Printf("No %s found, using built-in defaults", path)
		config = dock.DefaultConfig()
	} else {
		config, err = dock.LoadConfig(path)
		if err != nil {
			return fmt.Errorf("loading config %s: %w", path, err)
		}
		log.Printf("Loaded config from %s", path)
	}

	if a.Threshold >= 0 {
		t := a.Threshold
		config.Bridge.Threshold = &t
	}

	tmpl, err := dock.NewTemplateModel(config.Template)
	if err != nil {
		return err
	}
	est, err := dock.NewEstimator(tmpl, config.EstimatorConfig())
	if err != nil {
		return err
	}

	a.Config = config
	a.Estimator = est
	a.Frames = dock.NewFrameTree(config.Frames)
	return nil
}

// loadScan reads --scan-file, or fetches --scan-url when no file is given
func (a *App) loadScan(ctx context.Context) (*dock.LaserScan, error) {
	switch {
	case a.ScanFile != "":
		return dock.ParseScanFile(a.ScanFile)
	case a.ScanURL != "":
		return dock.NewScanFetcher(a.Config.Fetch, nil).Fetch(ctx, a.ScanURL)
	}
	return nil, fmt.Errorf("no scan source: set --scan-file or --scan-url")
}

// RunScanFile estimates the dock pose in a recorded scan and prints the result
func (a *App) RunScanFile() error {
	if err := a.loadConfig(); err != nil {
		return err
	}
	scan, err := dock.ParseScanFile(a.ScanFile)
	if err != nil {
		return err
	}
	return a.report(a.ScanFile, scan)
}

// RunFetch fetches one scan over HTTP and prints the result
func (a *App) RunFetch() error {
	if err := a.loadConfig(); err != nil {
		return err
	}
	scan, err := dock.NewScanFetcher(a.Config.Fetch, nil).Fetch(context.Background(), a.ScanURL)
	if err != nil {
		return err
	}
	return a.report(a.ScanURL, scan)
}

func (a *App) report(source string, scan *dock.LaserScan) error {
	summary := dock.Summarize(scan)
	fmt.Fprintf(a.out, "=== %s ===\n", source)
	fmt.Fprintf(a.out, "Frame: %s\n", summary.FrameID)
	fmt.Fprintf(a.out, "Readings: %d (%d valid)\n", summary.Readings, summary.ValidPoints)
	fmt.Fprintf(a.out, "Field of view: %.1f deg\n", summary.FieldOfView*180/math.Pi)
	fmt.Fprintf(a.out, "Range: %.2f - %.2f m\n", summary.MinRange, summary.MaxRange)

	result, err := a.Estimator.EstimateScan(*scan)
	if err != nil {
		return err
	}
	best := result.Best
	threshold := a.Config.Bridge.GetThreshold()
	fmt.Fprintf(a.out, "Candidates: %d\n", len(result.Candidates))

	if !result.Found() {
		a.StateTracker.UpdateDetection(scan.FrameID, scan.Points(), result, nil)
		fmt.Fprintln(a.out, "No dock candidate found")
		return nil
	}

	goal := a.Estimator.Template().GoalPose(best.Pose)
	a.StateTracker.UpdateDetection(scan.FrameID, scan.Points(), result, &goal)

	verdict := "rejected"
	if best.Score >= threshold {
		verdict = "accepted"
	}
	fmt.Fprintf(a.out, "Dock: (%.3f, %.3f) heading %.1f deg\n", best.X, best.Y, best.Heading*180/math.Pi)
	fmt.Fprintf(a.out, "Score: %.2f (threshold %.2f, %s)\n", best.Score, threshold, verdict)
	fmt.Fprintf(a.out, "Fit: rms %.4f m, inliers %.0f%%, coverage %.0f%%, %d iterations, converged=%v\n",
		best.Residual, best.InlierFraction*100, best.Coverage*100, best.Iterations, best.Converged)
	fmt.Fprintf(a.out, "Goal (%s): (%.3f, %.3f) heading %.1f deg\n", scan.FrameID, goal.X, goal.Y, goal.Heading*180/math.Pi)

	sensor := scan.FrameID
	if sensor == "" {
		sensor = a.Config.Bridge.SensorFrame
	}
	if m, err := a.Frames.Lookup(a.Config.Bridge.BaseFrame, sensor); err == nil {
		g := dock.TransformPose(goal, m)
		fmt.Fprintf(a.out, "Goal (%s): (%.3f, %.3f) heading %.1f deg\n", a.Config.Bridge.BaseFrame, g.X, g.Y, g.Heading*180/math.Pi)
	}
	return nil
}

// RunRender estimates the dock pose and draws the detection to --output.
// The format follows the file extension: .svg, .geojson (or .json), anything else PNG.
func (a *App) RunRender() error {
	if err := a.loadConfig(); err != nil {
		return err
	}
	scan, err := a.loadScan(context.Background())
	if err != nil {
		return err
	}

	result, err := a.Estimator.EstimateScan(*scan)
	if err != nil {
		return err
	}
	var goal *dock.Pose
	if result.Found() {
		g := a.Estimator.Template().GoalPose(result.Best.Pose)
		goal = &g
	}
	a.StateTracker.UpdateDetection(scan.FrameID, scan.Points(), result, goal)
	snap, _ := a.StateTracker.GetSnapshot()

	tmpl := a.Estimator.Template()
	threshold := a.Config.Bridge.GetThreshold()
	output := a.OutputFile
	if output == "" {
		output = "detection.png"
	}

	switch strings.ToLower(filepath.Ext(output)) {
	case ".svg":
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("creating %s: %w", output, err)
		}
		defer func() { _ = f.Close() }()
		if err := dock.NewVectorRenderer(snap, tmpl, threshold).RenderToSVG(f); err != nil {
			return fmt.Errorf("rendering SVG: %w", err)
		}
	case ".geojson", ".json":
		data, err := dock.SceneFeatureCollection(snap, tmpl, threshold).MarshalJSON()
		if err != nil {
			return fmt.Errorf("encoding GeoJSON: %w", err)
		}
		if err := os.WriteFile(output, data, 0644); err != nil {
			return fmt.Errorf("writing %s: %w", output, err)
		}
	default:
		if err := dock.NewScanRenderer(snap, tmpl, threshold).SavePNG(output); err != nil {
			return err
		}
	}

	fmt.Fprintf(a.out, "Detection rendered to %s (score %.2f)\n", output, result.Best.Score)
	return nil
}

// scanHandler runs one bridge cycle per decoded scan. The bridge drops scans that
// arrive while a cycle is in progress.
func (a *App) scanHandler(ctx context.Context) dock.ScanHandler {
	return func(scan *dock.LaserScan, err error) {
		if err != nil {
			// Undecodable payloads count as invalid scans.
			a.StateTracker.RecordOutcome(dock.OutcomeInvalidScan)
			return
		}
		b := a.bridge.Load()
		if b == nil {
			log.Println("[BRIDGE] not ready, ignoring scan")
			return
		}
		go func() {
			outcome, err := b.HandleScan(ctx, scan)
			if err != nil {
				log.Printf("[BRIDGE] cycle ended %s: %v", outcome, err)
				return
			}
			log.Printf("[BRIDGE] cycle ended %s", outcome)
		}()
	}
}

// startService wires MQTT and HTTP. It returns once everything is started.
func (a *App) startService(ctx context.Context) error {
	if err := a.loadConfig(); err != nil {
		return err
	}
	config := a.Config

	if a.MqttMode {
		mqttClient, err := dock.InitMQTT(config, a.scanHandler(ctx))
		if err != nil {
			return fmt.Errorf("initializing MQTT: %w", err)
		}
		if mqttClient == nil {
			return fmt.Errorf("MQTT broker not configured in %s", a.ConfigFile)
		}
		a.MQTTClient = mqttClient

		a.Publisher = dock.NewPublisher(mqttClient.GetClient(), config.MQTT.PublishPrefix)
		a.Goals = dock.NewGoalClient(mqttClient.GetClient(), a.Publisher.Prefix())
		mqttClient.Route(a.Publisher.Prefix()+"/tf", a.Frames.HandleMessage)
		mqttClient.Route(a.Goals.ResultTopic(), a.Goals.HandleResult)

		bridge, err := dock.NewBridge(a.Estimator, a.Frames, a.Goals, config.Bridge,
			dock.WithMarkerSink(a.Publisher),
			dock.WithStateTracker(a.StateTracker))
		if err != nil {
			return err
		}
		a.bridge.Store(bridge)
		fmt.Fprintln(a.out, "MQTT docking bridge initialized")
	}

	if a.HttpMode {
		httpServer := newHTTPServer(a.StateTracker, a.Estimator.Template(), config.Bridge.GetThreshold())
		go func() {
			addr := fmt.Sprintf("0.0.0.0:%d", a.HttpPort)
			log.Printf("[HTTP] Starting server on %s", addr)
			if err := http.ListenAndServe(addr, httpServer); err != nil {
				log.Fatalf("[HTTP] Server error: %v", err)
			}
			log.Printf("[HTTP] Server stopped unexpectedly")
		}()
	}

	a.printServiceInfo()
	return nil
}

func (a *App) printServiceInfo() {
	fmt.Fprintln(a.out, "\nService Running")
	fmt.Fprintln(a.out, "===============")

	if a.MqttMode && a.Publisher != nil {
		prefix := a.Publisher.Prefix()
		fmt.Fprintln(a.out, "\nMQTT:")
		fmt.Fprintln(a.out, "  Subscribed topics:")
		fmt.Fprintf(a.out, "    - %s (scans)\n", a.Config.MQTT.ScanTopic)
		fmt.Fprintf(a.out, "    - %s/tf (frame transforms)\n", prefix)
		fmt.Fprintf(a.out, "    - %s (goal results)\n", a.Goals.ResultTopic())
		fmt.Fprintln(a.out, "  Publishing to:")
		fmt.Fprintf(a.out, "    - %s/marker\n", prefix)
		fmt.Fprintf(a.out, "    - %s/detection\n", prefix)
		fmt.Fprintf(a.out, "    - %s\n", a.Goals.GoalTopic())
		fmt.Fprintf(a.out, "  Threshold: %.2f\n", a.Config.Bridge.GetThreshold())
	}

	if a.HttpMode {
		fmt.Fprintf(a.out, "\nHTTP endpoints (port %d):\n", a.HttpPort)
		fmt.Fprintln(a.out, "  GET /health     - Health check and counters")
		fmt.Fprintln(a.out, "  GET /detection  - Latest detection as JSON")
		fmt.Fprintln(a.out, "  GET /scan.png   - Latest scan with the fitted dock")
		fmt.Fprintln(a.out, "  GET /scan.svg   - Same, as SVG")
		fmt.Fprintln(a.out, "  GET /detection.geojson - Scan, fitted dock and goal as GeoJSON")
	}

	fmt.Fprintln(a.out, "\nPress Ctrl+C to stop")
}

// RunService runs MQTT and/or HTTP mode until interrupted
func (a *App) RunService() error {
	fmt.Fprintln(a.out, "Starting dockfinder service...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.startService(ctx); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Fprintln(a.out, "\nShutting down service...")
	cancel()
	if a.MQTTClient != nil {
		a.MQTTClient.Disconnect()
	}
	fmt.Fprintln(a.out, "Service stopped")
	return nil
}
