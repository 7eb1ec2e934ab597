package main

import (
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
	ScanFile   string
	ScanURL    string
	RenderOnly bool
	OutputFile string
	MqttMode   bool
	HttpMode   bool
	HttpPort   int
	Threshold  float64 // negative keeps the configured threshold
}

// Runner is the set of modes main can dispatch to
type Runner interface {
	ApplyOptions(opts AppOptions)
	RunScanFile() error
	RunFetch() error
	RunRender() error
	RunService() error
}

func main() {
	if err := run(os.Args[1:], os.Stdout, NewApp()); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		log.Fatal(err)
	}
}

func run(args []string, out io.Writer, app Runner) error {
	fs := flag.NewFlagSet("dockfinder", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts AppOptions
	fs.StringVar(&opts.ConfigFile, "config", "config.yaml", "Path to configuration file")
	fs.StringVar(&opts.ScanFile, "scan-file", "", "Estimate the dock pose in a recorded scan (JSON) and exit")
	fs.StringVar(&opts.ScanURL, "scan-url", "", "Fetch one scan over HTTP, estimate the dock pose and exit")
	fs.BoolVar(&opts.RenderOnly, "render", false, "Render the detection for --scan-file or --scan-url and exit")
	fs.StringVar(&opts.OutputFile, "output", "detection.png", "Output file for --render mode (.png, .svg or .geojson)")
	fs.BoolVar(&opts.MqttMode, "mqtt", false, "Run MQTT service mode: scans in, markers and goals out")
	fs.BoolVar(&opts.HttpMode, "http", false, "Enable HTTP server for the latest detection")
	fs.IntVar(&opts.HttpPort, "http-port", 8080, "HTTP server port (default 8080)")
	fs.Float64Var(&opts.Threshold, "threshold", -1, "Override the acceptance threshold (negative keeps config)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Fprintf(out, "dockfinder version: %s\n", Version)
	app.ApplyOptions(opts)

	switch {
	case opts.RenderOnly:
		return app.RunRender()
	case opts.MqttMode || opts.HttpMode:
		return app.RunService()
	case opts.ScanFile != "":
		return app.RunScanFile()
	case opts.ScanURL != "":
		return app.RunFetch()
	}

	fmt.Fprintln(out, "Use --scan-file=scan.json to estimate the dock pose in a recorded scan")
	fmt.Fprintln(out, "Use --scan-url=URL to fetch a scan and estimate the dock pose")
	fmt.Fprintln(out, "Use --render with --scan-file or --scan-url to draw the detection to --output")
	fmt.Fprintln(out, "Use --mqtt to run the docking bridge against an MQTT broker")
	fmt.Fprintln(out, "Use --http to serve the latest detection (combine with --mqtt)")
	fmt.Fprintln(out, "\nConfiguration:")
	fmt.Fprintln(out, "  config.yaml - MQTT settings, fixture template, estimator and bridge tuning")
	return nil
}
