package main

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kwv/dockfinder/dock"
)

// fixtureScan raycasts a 1 degree, full circle scan of the default dock placed
// 1m ahead of the sensor, facing it.
func fixtureScan(t *testing.T) *dock.LaserScan {
	t.Helper()
	tmpl := testTemplate(t)
	profile := dock.TransformPoints(tmpl.Profile(), dock.Pose{X: 1, Y: 0.2, Heading: 0.3}.Matrix())

	scan := &dock.LaserScan{
		FrameID:        "base_laser_link",
		AngleMin:       -math.Pi,
		AngleMax:       math.Pi - math.Pi/180,
		AngleIncrement: math.Pi / 180,
		RangeMin:       0.05,
		RangeMax:       10,
		Ranges:         make([]float64, 360),
	}
	for i := range scan.Ranges {
		a := scan.AngleMin + float64(i)*scan.AngleIncrement
		dx, dy := math.Cos(a), math.Sin(a)
		best := scan.RangeMax
		for j := 0; j+1 < len(profile); j++ {
			p, q := profile[j], profile[j+1]
			ex, ey := q.X-p.X, q.Y-p.Y
			den := dx*ey - dy*ex
			if math.Abs(den) < 1e-12 {
				continue
			}
			r := (p.X*ey - p.Y*ex) / den
			u := (p.X*dy - p.Y*dx) / den
			if r > 0 && u >= 0 && u <= 1 && r < best {
				best = r
			}
		}
		scan.Ranges[i] = best
	}
	return scan
}

// writeFixtures writes a config with a static laser mount and the fixture scan.
func writeFixtures(t *testing.T) (configPath, scanPath string) {
	t.Helper()
	dir := t.TempDir()

	cfg := dock.DefaultConfig()
	cfg.Frames = []dock.FrameTransform{{Parent: "base_link", Child: "base_laser_link", X: 0.2}}
	configPath = filepath.Join(dir, "config.yaml")
	if err := dock.SaveConfig(configPath, cfg); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	data, err := dock.MarshalScan(fixtureScan(t))
	if err != nil {
		t.Fatalf("MarshalScan failed: %v", err)
	}
	scanPath = filepath.Join(dir, "scan.json")
	if err := os.WriteFile(scanPath, data, 0644); err != nil {
		t.Fatalf("writing scan: %v", err)
	}
	return configPath, scanPath
}

func testApp(out *bytes.Buffer) *App {
	app := NewApp()
	app.out = out
	return app
}

func TestNewApp(t *testing.T) {
	app := NewApp()
	if app.StateTracker == nil {
		t.Error("expected StateTracker to be initialized")
	}
	if app.Threshold >= 0 {
		t.Errorf("expected no threshold override, got %f", app.Threshold)
	}
	if app.Bridge() != nil {
		t.Error("expected no bridge before the service starts")
	}
}

func TestApplyOptions(t *testing.T) {
	app := NewApp()
	opts := AppOptions{
		ConfigFile: "robot.yaml",
		ScanFile:   "scan.json",
		ScanURL:    "http://robot/scan",
		OutputFile: "out.svg",
		MqttMode:   true,
		HttpMode:   true,
		HttpPort:   9090,
		Threshold:  4,
	}
	app.ApplyOptions(opts)

	if app.ConfigFile != "robot.yaml" || app.ScanFile != "scan.json" || app.ScanURL != "http://robot/scan" {
		t.Errorf("paths not applied: %+v", app)
	}
	if app.OutputFile != "out.svg" || app.HttpPort != 9090 || app.Threshold != 4 {
		t.Errorf("settings not applied: %+v", app)
	}
	if !app.MqttMode || !app.HttpMode {
		t.Error("expected both service modes enabled")
	}
}

func TestLoadConfig_ThresholdOverride(t *testing.T) {
	configPath, _ := writeFixtures(t)
	app := NewApp()
	app.ConfigFile = configPath
	app.Threshold = 0

	if err := app.loadConfig(); err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if got := app.Config.Bridge.GetThreshold(); got != 0 {
		t.Errorf("threshold = %v, want the zero override", got)
	}
	if app.Estimator == nil || app.Frames == nil {
		t.Error("expected estimator and frame tree to be built")
	}
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	app := NewApp()
	app.ConfigFile = filepath.Join(t.TempDir(), "robot.yaml")
	if err := app.loadConfig(); err == nil {
		t.Error("expected an error for a missing config file")
	}
}

func TestRunScanFile(t *testing.T) {
	configPath, scanPath := writeFixtures(t)
	var out bytes.Buffer
	app := testApp(&out)
	app.ConfigFile = configPath
	app.ScanFile = scanPath

	if err := app.RunScanFile(); err != nil {
		t.Fatalf("RunScanFile failed: %v", err)
	}

	for _, want := range []string{
		"Frame: base_laser_link",
		"Readings: 360",
		"Dock: (",
		"accepted",
		"Goal (base_laser_link)",
		"Goal (base_link)",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out.String())
		}
	}

	snap, ok := app.StateTracker.GetSnapshot()
	if !ok {
		t.Fatal("expected a snapshot after RunScanFile")
	}
	if snap.Goal == nil {
		t.Error("expected a goal in the snapshot")
	}
}

func TestRunScanFile_NoDock(t *testing.T) {
	configPath, _ := writeFixtures(t)
	empty := &dock.LaserScan{FrameID: "laser", AngleIncrement: 0.1, RangeMax: 10, Ranges: []float64{10, 10, 10}}
	data, err := dock.MarshalScan(empty)
	if err != nil {
		t.Fatal(err)
	}
	scanPath := filepath.Join(t.TempDir(), "empty.json")
	if err := os.WriteFile(scanPath, data, 0644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	app := testApp(&out)
	app.ConfigFile = configPath
	app.ScanFile = scanPath
	if err := app.RunScanFile(); err != nil {
		t.Fatalf("RunScanFile failed: %v", err)
	}
	if !strings.Contains(out.String(), "No dock candidate found") {
		t.Errorf("expected the no-candidate message, got:\n%s", out.String())
	}
}

func TestRunScanFile_InvalidFile(t *testing.T) {
	configPath, _ := writeFixtures(t)
	bad := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(bad, []byte("not a scan"), 0644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	app := testApp(&out)
	app.ConfigFile = configPath
	app.ScanFile = bad
	if err := app.RunScanFile(); err == nil {
		t.Error("expected an error for an unreadable scan")
	}
}

func TestRunRender(t *testing.T) {
	configPath, scanPath := writeFixtures(t)

	for _, name := range []string{"detection.png", "detection.svg", "detection.geojson"} {
		t.Run(name, func(t *testing.T) {
			output := filepath.Join(t.TempDir(), name)
			var out bytes.Buffer
			app := testApp(&out)
			app.ConfigFile = configPath
			app.ScanFile = scanPath
			app.OutputFile = output

			if err := app.RunRender(); err != nil {
				t.Fatalf("RunRender failed: %v", err)
			}
			info, err := os.Stat(output)
			if err != nil {
				t.Fatalf("expected %s to be written: %v", output, err)
			}
			if info.Size() == 0 {
				t.Errorf("%s is empty", output)
			}
			if !strings.Contains(out.String(), "Detection rendered to "+output) {
				t.Errorf("unexpected output: %s", out.String())
			}
		})
	}
}

func TestRunRender_NoScanSource(t *testing.T) {
	configPath, _ := writeFixtures(t)
	var out bytes.Buffer
	app := testApp(&out)
	app.ConfigFile = configPath
	if err := app.RunRender(); err == nil {
		t.Error("expected an error without --scan-file or --scan-url")
	}
}

func TestStartService_RequiresBroker(t *testing.T) {
	t.Setenv("MQTT_BROKER", "")
	configPath, _ := writeFixtures(t)

	var out bytes.Buffer
	app := testApp(&out)
	app.ConfigFile = configPath
	app.MqttMode = true

	err := app.startService(t.Context())
	if err == nil || !strings.Contains(err.Error(), "MQTT broker not configured") {
		t.Errorf("expected a missing broker error, got %v", err)
	}
	if app.Bridge() != nil {
		t.Error("bridge should not be wired without a broker")
	}
}

func TestScanHandler_IgnoresScansBeforeBridge(t *testing.T) {
	app := NewApp()
	handler := app.scanHandler(t.Context())

	// Neither call may panic: decode errors are dropped and no bridge is wired yet.
	handler(nil, os.ErrInvalid)
	handler(fixtureScan(t), nil)

	if got := app.StateTracker.GetCounters(); got != (dock.Counters{Invalid: 1}) {
		t.Errorf("counters = %+v, want one invalid scan", got)
	}
}
