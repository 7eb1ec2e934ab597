package dock

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// DefaultScorerConfig returns sensible defaults for refinement and scoring.
// Distances are in metres, matching scan coordinates.
func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{
		MaxIterations:       50,
		TranslationEpsilon:  1e-4, // 0.1mm
		HeadingEpsilon:      1e-4,
		MaxCorrespondDist:   0.15,
		InlierTolerance:     0.02,
		CoverageTolerance:   0.03,
		DegenerateRatio:     1e-3,
		NonConvergedPenalty: 0.5,
	}
}

// minCorrespondences is the smallest correspondence set that constrains a planar pose
const minCorrespondences = 3

// fit is one refined hypothesis: the sensor-to-template transform plus its quality
type fit struct {
	toTemplate AffineMatrix
	score      float64
	residual   float64
	inliers    int
	fraction   float64
	coverage   float64
	iterations int
	converged  bool
}

// ScoreCandidate fits the template to a candidate and returns the fixture pose in the
// sensor frame with its match score. It never fails: a collinear or tiny candidate
// yields a zero score with Degenerate set, and hitting the iteration cap only lowers
// the score.
func ScoreCandidate(c Candidate, tmpl *TemplateModel, cfg ScorerConfig) PoseEstimate {
	pts := c.Points
	centroid := Centroid(pts)

	degenerate := PoseEstimate{
		Pose:           Pose{X: centroid.X, Y: centroid.Y},
		CandidateIndex: c.Index,
		Degenerate:     true,
	}
	if len(pts) < minCorrespondences {
		return degenerate
	}

	axis, lmin, lmax := principalAxis(pts)
	if lmax <= 0 || lmin/lmax < cfg.DegenerateRatio {
		return degenerate
	}

	// The principal axis only fixes heading modulo pi, and an occluded sighting shows
	// only part of the profile, so refine from every view both ways round.
	var best fit
	seeded := false
	for _, v := range tmpl.views {
		base := axis - v.axis
		for _, heading := range []float64{base, base + math.Pi} {
			f := refine(pts, tmpl, initialGuess(heading, centroid, v.centroid), cfg)
			if !seeded || f.score > best.score {
				best, seeded = f, true
			}
		}
	}

	pose := PoseFromMatrix(InvertMatrix(best.toTemplate))
	return PoseEstimate{
		Pose:           pose,
		Score:          best.score,
		CandidateIndex: c.Index,
		Residual:       best.residual,
		InlierFraction: best.fraction,
		Coverage:       best.coverage,
		Inliers:        best.inliers,
		Iterations:     best.iterations,
		Converged:      best.converged,
	}
}

// initialGuess places the template at the given heading with a view centroid on the
// candidate centroid, and returns the sensor-to-template transform.
func initialGuess(heading float64, scanCentroid, tmplCentroid Point) AffineMatrix {
	rot := Rotation(heading)
	c := TransformPoint(tmplCentroid, rot)
	fixture := CreateRotationTranslation(heading, scanCentroid.X-c.X, scanCentroid.Y-c.Y)
	return InvertMatrix(fixture)
}

// refine runs point-to-line ICP from the initial sensor-to-template transform.
func refine(pts []Point, tmpl *TemplateModel, initial AffineMatrix, cfg ScorerConfig) fit {
	current := initial
	result := fit{toTemplate: initial}

	transformed := make([]Point, len(pts))
	for iter := 0; iter < cfg.MaxIterations; iter++ {
		result.iterations = iter + 1

		for i, p := range pts {
			transformed[i] = TransformPoint(p, current)
		}

		inc, ok := pointToLineStep(transformed, tmpl, cfg.MaxCorrespondDist)
		if !ok {
			break
		}

		current = MultiplyMatrices(inc, current)

		dtheta := math.Abs(math.Atan2(inc.C, inc.A))
		if math.Hypot(inc.Tx, inc.Ty) < cfg.TranslationEpsilon && dtheta < cfg.HeadingEpsilon {
			result.converged = true
			break
		}
	}

	result.toTemplate = current
	evaluate(pts, tmpl, cfg, &result)
	return result
}

// pointToLineStep computes one Gauss-Newton increment minimising the distance of each
// point (already in the template frame) to its closest profile segment. When the
// normal equations are singular it falls back to a point-to-point Procrustes fit.
func pointToLineStep(pts []Point, tmpl *TemplateModel, maxDist float64) (AffineMatrix, bool) {
	jtj := mat.NewSymDense(3, nil)
	jtr := mat.NewVecDense(3, nil)

	var src, dst []Point
	for _, p := range pts {
		q, n, d := tmpl.ClosestPoint(p)
		if d > maxDist {
			continue
		}
		src = append(src, p)
		dst = append(dst, q)

		r := n.X*(p.X-q.X) + n.Y*(p.Y-q.Y)
		row := [3]float64{n.X*(-p.Y) + n.Y*p.X, n.X, n.Y}
		for i := 0; i < 3; i++ {
			jtr.SetVec(i, jtr.AtVec(i)-row[i]*r)
			for j := i; j < 3; j++ {
				jtj.SetSym(i, j, jtj.At(i, j)+row[i]*row[j])
			}
		}
	}

	if len(src) < minCorrespondences {
		return Identity(), false
	}

	var x mat.VecDense
	if err := x.SolveVec(jtj, jtr); err != nil {
		return CalculateRigidTransform(src, dst), true
	}
	return CreateRotationTranslation(x.AtVec(0), x.AtVec(1), x.AtVec(2)), true
}

// evaluate fills in the quality fields of f for its transform.
func evaluate(pts []Point, tmpl *TemplateModel, cfg ScorerConfig, f *fit) {
	transformed := TransformPoints(pts, f.toTemplate)

	var sumSq float64
	for _, p := range transformed {
		if _, _, d := tmpl.ClosestPoint(p); d <= cfg.InlierTolerance {
			f.inliers++
			sumSq += d * d
		}
	}

	features := tmpl.features
	seen := 0
	for _, feat := range features {
		for _, p := range transformed {
			if Distance(feat, p) <= cfg.CoverageTolerance {
				seen++
				break
			}
		}
	}

	n := float64(len(pts))
	if f.inliers > 0 {
		f.residual = math.Sqrt(sumSq / float64(f.inliers))
	}
	f.fraction = float64(f.inliers) / n
	f.coverage = float64(seen) / float64(len(features))

	k := float64(f.inliers)
	f.score = k * f.fraction * f.coverage / (1 + f.residual/cfg.InlierTolerance)
	if !f.converged {
		f.score *= cfg.NonConvergedPenalty
	}
}

// principalAxis returns the direction (radians) of the largest spread of the points
// and the smaller and larger covariance eigenvalues.
func principalAxis(pts []Point) (float64, float64, float64) {
	if len(pts) < 2 {
		return 0, 0, 0
	}

	data := mat.NewDense(len(pts), 2, nil)
	for i, p := range pts {
		data.Set(i, 0, p.X)
		data.Set(i, 1, p.Y)
	}

	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, data, nil)

	var eig mat.EigenSym
	if ok := eig.Factorize(&cov, true); !ok {
		return 0, 0, 0
	}

	// Values are ascending, so the last column is the principal direction.
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	angle := math.Atan2(vectors.At(1, 1), vectors.At(0, 1))
	return angle, math.Max(values[0], 0), values[1]
}
