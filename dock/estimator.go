package dock

import (
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"
)

// EstimatorConfig bundles the per-scan pipeline settings
type EstimatorConfig struct {
	Candidates CandidateConfig `yaml:"candidates" json:"candidates"`
	Scorer     ScorerConfig    `yaml:"scorer" json:"scorer"`
	Workers    int             `yaml:"workers,omitempty" json:"workers,omitempty"` // >1 scores candidates concurrently
}

// DefaultEstimatorConfig returns the default pipeline settings (sequential scoring)
func DefaultEstimatorConfig() EstimatorConfig {
	return EstimatorConfig{
		Candidates: DefaultCandidateConfig(),
		Scorer:     DefaultScorerConfig(),
		Workers:    1,
	}
}

// Validate checks the numeric ranges of the estimator settings.
func (c EstimatorConfig) Validate() error {
	cc, sc := c.Candidates, c.Scorer
	switch {
	case cc.MaxRange < 0:
		return configErrorf("candidates.maxRange", "must not be negative, got %v", cc.MaxRange)
	case !(cc.ClusterGap > 0):
		return configErrorf("candidates.clusterGap", "must be positive, got %v", cc.ClusterGap)
	case cc.MergeGap < 0 || math.IsNaN(cc.MergeGap):
		return configErrorf("candidates.mergeGap", "must not be negative, got %v", cc.MergeGap)
	case cc.MinPoints < minCorrespondences:
		return configErrorf("candidates.minPoints", "must be at least %d, got %d", minCorrespondences, cc.MinPoints)
	case cc.ExtentSlack < 0:
		return configErrorf("candidates.extentSlack", "must not be negative, got %v", cc.ExtentSlack)
	case cc.MinVisibleFraction < 0 || cc.MinVisibleFraction > 1:
		return configErrorf("candidates.minVisibleFraction", "must be within [0, 1], got %v", cc.MinVisibleFraction)
	case cc.WindowStride < 1:
		return configErrorf("candidates.windowStride", "must be at least 1, got %d", cc.WindowStride)
	case cc.MaxCandidates < 0:
		return configErrorf("candidates.maxCandidates", "must not be negative, got %d", cc.MaxCandidates)
	case sc.MaxIterations < 1:
		return configErrorf("scorer.maxIterations", "must be at least 1, got %d", sc.MaxIterations)
	case !(sc.TranslationEpsilon > 0):
		return configErrorf("scorer.translationEpsilon", "must be positive, got %v", sc.TranslationEpsilon)
	case !(sc.HeadingEpsilon > 0):
		return configErrorf("scorer.headingEpsilon", "must be positive, got %v", sc.HeadingEpsilon)
	case !(sc.MaxCorrespondDist > 0):
		return configErrorf("scorer.maxCorrespondDist", "must be positive, got %v", sc.MaxCorrespondDist)
	case !(sc.InlierTolerance > 0):
		return configErrorf("scorer.inlierTolerance", "must be positive, got %v", sc.InlierTolerance)
	case !(sc.CoverageTolerance > 0):
		return configErrorf("scorer.coverageTolerance", "must be positive, got %v", sc.CoverageTolerance)
	case sc.DegenerateRatio < 0 || sc.DegenerateRatio >= 1:
		return configErrorf("scorer.degenerateRatio", "must be within [0, 1), got %v", sc.DegenerateRatio)
	case sc.NonConvergedPenalty < 0 || sc.NonConvergedPenalty > 1:
		return configErrorf("scorer.nonConvergedPenalty", "must be within [0, 1], got %v", sc.NonConvergedPenalty)
	case c.Workers < 0:
		return configErrorf("workers", "must not be negative, got %d", c.Workers)
	}
	return nil
}

// Result is everything one estimator pass produced
type Result struct {
	Best       PoseEstimate   `json:"best"`
	Candidates []Candidate    `json:"candidates"`
	Estimates  []PoseEstimate `json:"estimates"`
}

// Found reports whether the best estimate is a fitted pose, neither the sentinel nor
// a degenerate candidate.
func (r Result) Found() bool {
	return !r.Best.IsSentinel() && !r.Best.Degenerate
}

// Estimator runs candidate generation, scoring and selection against one template.
// It holds no per-scan state and is safe for concurrent use.
type Estimator struct {
	tmpl *TemplateModel
	cfg  EstimatorConfig
}

// NewEstimator validates cfg and binds it to the template.
func NewEstimator(tmpl *TemplateModel, cfg EstimatorConfig) (*Estimator, error) {
	if tmpl == nil {
		return nil, configErrorf("template", "is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Estimator{tmpl: tmpl, cfg: cfg}, nil
}

// Template returns the template the estimator matches against
func (e *Estimator) Template() *TemplateModel {
	return e.tmpl
}

// Estimate locates the fixture in a point set. A scan without viable candidates
// returns the sentinel as Best; that is a normal outcome, not an error.
func (e *Estimator) Estimate(points []Point) Result {
	candidates := GenerateCandidates(points, e.tmpl, e.cfg.Candidates)
	estimates := make([]PoseEstimate, len(candidates))

	if e.cfg.Workers > 1 && len(candidates) > 1 {
		var g errgroup.Group
		g.SetLimit(e.cfg.Workers)
		for i := range candidates {
			g.Go(func() error {
				estimates[i] = ScoreCandidate(candidates[i], e.tmpl, e.cfg.Scorer)
				return nil
			})
		}
		_ = g.Wait() // scoring never fails
	} else {
		for i := range candidates {
			estimates[i] = ScoreCandidate(candidates[i], e.tmpl, e.cfg.Scorer)
		}
	}

	return Result{
		Best:       SelectBest(estimates),
		Candidates: candidates,
		Estimates:  estimates,
	}
}

// EstimateScan validates a raw scan, converts it to points and estimates.
func (e *Estimator) EstimateScan(scan LaserScan) (Result, error) {
	if err := scan.Validate(); err != nil {
		return Result{Best: Sentinel()}, fmt.Errorf("estimate scan: %w", err)
	}
	return e.Estimate(scan.Points()), nil
}
