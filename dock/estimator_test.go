package dock

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// raycastScan simulates a 360 beam, 1 degree scanner at the sensor origin looking at
// the template profile placed at fixture, plus any extra clutter segments.
// Beams that hit nothing return rangeMax.
func raycastScan(tmpl *TemplateModel, fixture Pose, clutter ...[2]Point) LaserScan {
	const rangeMax = 10.0
	var segs [][2]Point
	profile := TransformPoints(tmpl.Profile(), fixture.Matrix())
	for i := 0; i+1 < len(profile); i++ {
		segs = append(segs, [2]Point{profile[i], profile[i+1]})
	}
	segs = append(segs, clutter...)

	scan := LaserScan{
		FrameID:        "base_laser_link",
		AngleMin:       -math.Pi,
		AngleMax:       math.Pi - math.Pi/180,
		AngleIncrement: math.Pi / 180,
		RangeMin:       0.05,
		RangeMax:       rangeMax,
		Ranges:         make([]float64, 360),
	}
	for i := range scan.Ranges {
		a := scan.AngleMin + float64(i)*scan.AngleIncrement
		dx, dy := math.Cos(a), math.Sin(a)
		best := rangeMax
		for _, s := range segs {
			if r, ok := intersectRay(dx, dy, s[0], s[1]); ok && r < best {
				best = r
			}
		}
		scan.Ranges[i] = best
	}
	return scan
}

// intersectRay returns the distance along the unit ray from the origin to segment ab.
func intersectRay(dx, dy float64, a, b Point) (float64, bool) {
	ex, ey := b.X-a.X, b.Y-a.Y
	den := dx*ey - dy*ex
	if math.Abs(den) < 1e-12 {
		return 0, false
	}
	r := (a.X*ey - a.Y*ex) / den
	u := (a.X*dy - a.Y*dx) / den
	if r <= 0 || u < 0 || u > 1 {
		return 0, false
	}
	return r, true
}

func defaultEstimator(t *testing.T, workers int) *Estimator {
	t.Helper()
	cfg := DefaultEstimatorConfig()
	cfg.Workers = workers
	est, err := NewEstimator(defaultTemplate(t), cfg)
	require.NoError(t, err)
	return est
}

func TestEstimator_EmptyScan(t *testing.T) {
	est := defaultEstimator(t, 1)

	res := est.Estimate(nil)
	assert.True(t, res.Best.IsSentinel())
	assert.False(t, res.Found())
	assert.Equal(t, 0.0, res.Best.Score)
	assert.Empty(t, res.Candidates)
}

func TestEstimator_AllMaxRange(t *testing.T) {
	est := defaultEstimator(t, 1)
	scan := LaserScan{
		AngleMin:       -math.Pi,
		AngleIncrement: math.Pi / 180,
		RangeMax:       10,
		Ranges:         make([]float64, 360),
	}
	for i := range scan.Ranges {
		scan.Ranges[i] = 10
	}

	res, err := est.EstimateScan(scan)
	require.NoError(t, err)
	assert.Empty(t, res.Candidates)
	assert.True(t, res.Best.IsSentinel())
	assert.Equal(t, 0.0, res.Best.Score)
}

func TestEstimator_RaycastScan(t *testing.T) {
	est := defaultEstimator(t, 1)
	fixture := Pose{X: 1.0, Y: 0.2, Heading: 0.3}
	scan := raycastScan(est.Template(), fixture)

	res, err := est.EstimateScan(scan)
	require.NoError(t, err)
	require.True(t, res.Found())

	assertPose(t, fixture, res.Best.Pose, 1e-2, 1e-2)
	assert.GreaterOrEqual(t, res.Best.Score, DefaultThreshold)
}

// facingPose places the fixture with its face centre d metres ahead of the sensor,
// turned by heading.
func facingPose(tmpl *TemplateModel, d, heading float64) Pose {
	half := tmpl.Width() / 2
	return Pose{X: d - half*math.Sin(heading), Y: half * math.Cos(heading), Heading: heading}
}

func TestEstimator_RaycastSweep(t *testing.T) {
	est := defaultEstimator(t, 1)

	for _, d := range []float64{0.6, 1.0, 1.4, 2.0} {
		for _, h := range []float64{-0.8, -0.4, 0, 0.3, 0.8} {
			fixture := facingPose(est.Template(), d, h)
			scan := raycastScan(est.Template(), fixture)

			res, err := est.EstimateScan(scan)
			require.NoError(t, err)
			if !assert.True(t, res.Found(), "d=%.1f h=%+.1f: no dock among %d candidates", d, h, len(res.Candidates)) {
				continue
			}
			assert.InDelta(t, fixture.X, res.Best.X, 0.05, "d=%.1f h=%+.1f x", d, h)
			assert.InDelta(t, fixture.Y, res.Best.Y, 0.05, "d=%.1f h=%+.1f y", d, h)
			assert.InDelta(t, 0, HeadingDiff(fixture.Heading, res.Best.Heading), 0.1, "d=%.1f h=%+.1f heading", d, h)
		}
	}
}

func TestEstimator_TieKeepsFirstCandidate(t *testing.T) {
	est := defaultEstimator(t, 1)
	sighting := observe(est.Template(), Pose{X: 1.0, Y: 0.2, Heading: 0.3}, nil)

	res := est.Estimate(concat(sighting, sighting))
	require.Len(t, res.Candidates, 2)
	require.Len(t, res.Estimates, 2)
	assert.Equal(t, res.Estimates[0].Score, res.Estimates[1].Score)
	assert.Greater(t, res.Best.Score, 0.0)
	assert.Equal(t, 0, res.Best.CandidateIndex)
	assert.Equal(t, res.Estimates[0], res.Best)
}

func TestEstimator_PicksFixtureOverClutter(t *testing.T) {
	est := defaultEstimator(t, 1)
	fixture := Pose{X: 1.0, Y: 0.2, Heading: 0.3}
	scan := raycastScan(est.Template(), fixture,
		[2]Point{{X: -1, Y: 2}, {X: 1, Y: 2.2}},        // wall behind
		[2]Point{{X: -1.5, Y: -1}, {X: -1.5, Y: -0.7}}, // box edge
	)

	res, err := est.EstimateScan(scan)
	require.NoError(t, err)
	assert.Greater(t, len(res.Candidates), 1)
	assertPose(t, fixture, res.Best.Pose, 0.02, 0.05)
}

func TestEstimator_Deterministic(t *testing.T) {
	est := defaultEstimator(t, 1)
	scan := raycastScan(est.Template(), Pose{X: 1.0, Y: 0.2, Heading: 0.3},
		[2]Point{{X: -1, Y: 2}, {X: 1, Y: 2.2}})

	first, err := est.EstimateScan(scan)
	require.NoError(t, err)
	second, err := est.EstimateScan(scan)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("results differ between runs (-first +second):\n%s", diff)
	}
}

func TestEstimator_ParallelMatchesSequential(t *testing.T) {
	tmpl := defaultTemplate(t)
	scan := raycastScan(tmpl, Pose{X: 1.0, Y: 0.2, Heading: 0.3},
		[2]Point{{X: -1, Y: 2}, {X: 1, Y: 2.2}},
		[2]Point{{X: -1.5, Y: -1}, {X: -1.5, Y: -0.7}})

	seq, err := defaultEstimator(t, 1).EstimateScan(scan)
	require.NoError(t, err)
	par, err := defaultEstimator(t, 4).EstimateScan(scan)
	require.NoError(t, err)

	if diff := cmp.Diff(seq, par); diff != "" {
		t.Errorf("parallel result differs (-sequential +parallel):\n%s", diff)
	}
}

func TestEstimator_EstimateScanInvalid(t *testing.T) {
	est := defaultEstimator(t, 1)
	scan := LaserScan{AngleIncrement: 0.01, Ranges: []float64{1, 2}, Intensities: []float64{1}}

	res, err := est.EstimateScan(scan)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMismatchedLengths))
	assert.True(t, res.Best.IsSentinel())
}

func TestNewEstimator_Invalid(t *testing.T) {
	_, err := NewEstimator(nil, DefaultEstimatorConfig())
	assert.True(t, errors.Is(err, ErrInvalidConfiguration))

	tests := []struct {
		name   string
		mutate func(*EstimatorConfig)
		field  string
	}{
		{"min points", func(c *EstimatorConfig) { c.Candidates.MinPoints = 2 }, "candidates.minPoints"},
		{"cluster gap", func(c *EstimatorConfig) { c.Candidates.ClusterGap = 0 }, "candidates.clusterGap"},
		{"merge gap", func(c *EstimatorConfig) { c.Candidates.MergeGap = -0.1 }, "candidates.mergeGap"},
		{"stride", func(c *EstimatorConfig) { c.Candidates.WindowStride = 0 }, "candidates.windowStride"},
		{"iterations", func(c *EstimatorConfig) { c.Scorer.MaxIterations = 0 }, "scorer.maxIterations"},
		{"inlier tolerance", func(c *EstimatorConfig) { c.Scorer.InlierTolerance = math.NaN() }, "scorer.inlierTolerance"},
		{"penalty", func(c *EstimatorConfig) { c.Scorer.NonConvergedPenalty = 2 }, "scorer.nonConvergedPenalty"},
		{"workers", func(c *EstimatorConfig) { c.Workers = -1 }, "workers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultEstimatorConfig()
			tt.mutate(&cfg)
			_, err := NewEstimator(defaultTemplate(t), cfg)

			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}
