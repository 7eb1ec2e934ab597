package dock

import (
	"bytes"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// detectionSnapshot is a scan of the fixture 1m ahead with the matching estimate
func detectionSnapshot(t *testing.T, score float64) (Snapshot, *TemplateModel) {
	t.Helper()
	tmpl := defaultTemplate(t)
	pose := Pose{X: 1, Y: 0.2, Heading: math.Pi}
	goal := tmpl.GoalPose(pose)
	return Snapshot{
		Frame:  "base_laser_link",
		Points: TransformPoints(tmpl.Features(), pose.Matrix()),
		Best:   PoseEstimate{Pose: pose, Score: score},
		Goal:   &goal,
	}, tmpl
}

func TestSceneBounds(t *testing.T) {
	snap, tmpl := detectionSnapshot(t, 20)
	b := sceneBounds(snap, tmpl, 0.5)

	assert.LessOrEqual(t, b.Left(), -0.5, "sensor origin is always in view")
	assert.GreaterOrEqual(t, b.Right(), 1.5)

	empty := sceneBounds(Snapshot{Best: Sentinel()}, tmpl, 0.5)
	assert.InDelta(t, 1.0, empty.Right()-empty.Left(), 1e-12)
}

func TestCaption(t *testing.T) {
	snap, _ := detectionSnapshot(t, 20)
	assert.Equal(t, "base_laser_link: score 20.0 at (1.00, 0.20) 180 deg", caption(snap))

	none := Snapshot{Frame: "laser", Points: make([]Point, 4), Best: Sentinel()}
	assert.Equal(t, "laser: 4 points, no candidate", caption(none))
}

func TestFixtureColor(t *testing.T) {
	snap, _ := detectionSnapshot(t, 10)
	assert.Equal(t, colorFixture, fixtureColor(snap, 10))
	assert.Equal(t, colorRejected, fixtureColor(snap, 10.01))
}

func TestScanRenderer_Render(t *testing.T) {
	snap, tmpl := detectionSnapshot(t, 20)
	r := NewScanRenderer(snap, tmpl, DefaultThreshold)
	img := r.Render()

	b := sceneBounds(snap, tmpl, r.Padding)
	wantW := int(math.Ceil((b.Right() - b.Left()) * r.PixelsPerMetre))
	wantH := int(math.Ceil((b.Top() - b.Bottom()) * r.PixelsPerMetre))
	assert.Equal(t, wantW, img.Bounds().Dx())
	assert.Equal(t, wantH, img.Bounds().Dy())

	sx := int(math.Round(-b.Left() * r.PixelsPerMetre))
	sy := int(math.Round(b.Top() * r.PixelsPerMetre))
	assert.Equal(t, colorSensor, img.RGBAAt(sx, sy))
}

func TestScanRenderer_SavePNG(t *testing.T) {
	snap, tmpl := detectionSnapshot(t, 2)
	path := filepath.Join(t.TempDir(), "detection.png")
	require.NoError(t, NewScanRenderer(snap, tmpl, DefaultThreshold).SavePNG(path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	_, err = png.Decode(f)
	assert.NoError(t, err)
}

func TestVectorRenderer_SVG(t *testing.T) {
	snap, tmpl := detectionSnapshot(t, 20)
	var buf bytes.Buffer
	require.NoError(t, NewVectorRenderer(snap, tmpl, DefaultThreshold).RenderToSVG(&buf))

	out := buf.String()
	assert.True(t, strings.HasPrefix(strings.TrimSpace(out), "<svg"), "got %.40q", out)
	assert.Contains(t, out, "<path")
}

func TestVectorRenderer_PNG(t *testing.T) {
	snap, tmpl := detectionSnapshot(t, 20)
	var buf bytes.Buffer
	require.NoError(t, NewVectorRenderer(snap, tmpl, DefaultThreshold).RenderToPNG(&buf))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Greater(t, img.Bounds().Dx(), 100)
}

func TestVectorRenderer_NoDetection(t *testing.T) {
	snap := Snapshot{Frame: "laser", Points: []Point{{X: 1, Y: 1}}, Best: Sentinel()}
	var buf bytes.Buffer
	assert.NoError(t, NewVectorRenderer(snap, nil, DefaultThreshold).RenderToSVG(&buf))
}
