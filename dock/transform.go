package dock

import "math"

// TransformPoint applies an affine transform to a point
// x' = a*x + b*y + tx
// y' = c*x + d*y + ty
func TransformPoint(p Point, m AffineMatrix) Point {
	return Point{
		X: m.A*p.X + m.B*p.Y + m.Tx,
		Y: m.C*p.X + m.D*p.Y + m.Ty,
	}
}

// TransformPoints applies an affine transform to multiple points
func TransformPoints(points []Point, m AffineMatrix) []Point {
	result := make([]Point, len(points))
	for i, p := range points {
		result[i] = TransformPoint(p, m)
	}
	return result
}

// TransformPose expresses a pose given in the source frame of m in m's target frame.
func TransformPose(p Pose, m AffineMatrix) Pose {
	return PoseFromMatrix(MultiplyMatrices(m, p.Matrix()))
}

// NormalizeHeading wraps an angle in radians to (-pi, pi].
func NormalizeHeading(rad float64) float64 {
	rad = math.Mod(rad, 2*math.Pi)
	if rad <= -math.Pi {
		rad += 2 * math.Pi
	} else if rad > math.Pi {
		rad -= 2 * math.Pi
	}
	return rad
}

// HeadingDiff returns the signed shortest angular difference a-b in (-pi, pi].
func HeadingDiff(a, b float64) float64 {
	return NormalizeHeading(a - b)
}

// MultiplyMatrices composes two affine transforms: result = m1 * m2
// Applying result is equivalent to applying m2 first, then m1
func MultiplyMatrices(m1, m2 AffineMatrix) AffineMatrix {
	return AffineMatrix{
		A:  m1.A*m2.A + m1.B*m2.C,
		B:  m1.A*m2.B + m1.B*m2.D,
		Tx: m1.A*m2.Tx + m1.B*m2.Ty + m1.Tx,
		C:  m1.C*m2.A + m1.D*m2.C,
		D:  m1.C*m2.B + m1.D*m2.D,
		Ty: m1.C*m2.Tx + m1.D*m2.Ty + m1.Ty,
	}
}

// InvertMatrix computes the inverse of an affine transform
// Returns identity if matrix is singular (determinant ~= 0)
func InvertMatrix(m AffineMatrix) AffineMatrix {
	det := m.A*m.D - m.B*m.C
	if math.Abs(det) < 1e-10 {
		return Identity()
	}

	invDet := 1.0 / det
	return AffineMatrix{
		A:  m.D * invDet,
		B:  -m.B * invDet,
		Tx: (m.B*m.Ty - m.D*m.Tx) * invDet,
		C:  -m.C * invDet,
		D:  m.A * invDet,
		Ty: (m.C*m.Tx - m.A*m.Ty) * invDet,
	}
}

// Translation creates a translation-only transform
func Translation(tx, ty float64) AffineMatrix {
	return AffineMatrix{A: 1, B: 0, Tx: tx, C: 0, D: 1, Ty: ty}
}

// Rotation creates a rotation transform (angle in radians, around origin)
func Rotation(angle float64) AffineMatrix {
	cos := math.Cos(angle)
	sin := math.Sin(angle)
	return AffineMatrix{A: cos, B: -sin, Tx: 0, C: sin, D: cos, Ty: 0}
}

// CreateRotationTranslation creates a combined rotation + translation transform
// Rotation (radians) is applied first (around origin), then translation
func CreateRotationTranslation(angle, tx, ty float64) AffineMatrix {
	rot := Rotation(angle)
	rot.Tx = tx
	rot.Ty = ty
	return rot
}

// Distance calculates Euclidean distance between two points
func Distance(p1, p2 Point) float64 {
	dx := p2.X - p1.X
	dy := p2.Y - p1.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Centroid calculates the center of mass of a set of points
func Centroid(points []Point) Point {
	if len(points) == 0 {
		return Point{}
	}
	var sumX, sumY float64
	for _, p := range points {
		sumX += p.X
		sumY += p.Y
	}
	n := float64(len(points))
	return Point{X: sumX / n, Y: sumY / n}
}

// CalculateRigidTransform computes the best rigid transform (rotation + translation only, no scale)
// using Procrustes analysis.
func CalculateRigidTransform(source, target []Point) AffineMatrix {
	weights := make([]float64, len(source))
	for i := range weights {
		weights[i] = 1
	}
	return CalculateWeightedRigidTransform(source, target, weights)
}

// CalculateWeightedRigidTransform computes the best rigid transform using weighted Procrustes analysis.
// weights slice must have the same length as source and target.
func CalculateWeightedRigidTransform(source, target []Point, weights []float64) AffineMatrix {
	n := len(source)
	if n < 2 || n != len(target) || n != len(weights) {
		return Identity()
	}

	// Compute weighted centroids
	totalWeight := 0.0
	var srcSumX, srcSumY, tgtSumX, tgtSumY float64
	for i := range source {
		w := weights[i]
		totalWeight += w
		srcSumX += source[i].X * w
		srcSumY += source[i].Y * w
		tgtSumX += target[i].X * w
		tgtSumY += target[i].Y * w
	}

	if totalWeight <= 0 {
		return Identity()
	}

	srcCentroid := Point{X: srcSumX / totalWeight, Y: srcSumY / totalWeight}
	tgtCentroid := Point{X: tgtSumX / totalWeight, Y: tgtSumY / totalWeight}

	// Weighted cross-covariance H = src^T * tgt
	var h11, h12, h21, h22 float64
	for i := range source {
		w := weights[i]
		sx := source[i].X - srcCentroid.X
		sy := source[i].Y - srcCentroid.Y
		tx := target[i].X - tgtCentroid.X
		ty := target[i].Y - tgtCentroid.Y

		h11 += w * sx * tx
		h12 += w * sx * ty
		h21 += w * sy * tx
		h22 += w * sy * ty
	}

	// In 2D the optimal rotation is closed form
	theta := math.Atan2(h12-h21, h11+h22)
	m := Rotation(theta)

	// t = tgtCentroid - R * srcCentroid
	m.Tx = tgtCentroid.X - (m.A*srcCentroid.X + m.B*srcCentroid.Y)
	m.Ty = tgtCentroid.Y - (m.C*srcCentroid.X + m.D*srcCentroid.Y)
	return m
}
