package dock

import "math"

const (
	// DefaultWidth is the footprint width of the standard docking station (m).
	DefaultWidth = 0.476
	// DefaultDepth is the footprint depth of the standard docking station (m).
	DefaultDepth = 0.3
	// DefaultSampleSpacing is the spacing of template feature points along the profile (m).
	DefaultSampleSpacing = 0.01
	// DefaultThreshold is the score at or above which a detection is acted on.
	DefaultThreshold = 10.0

	profileSlack = 1e-3
)

// DefaultTemplateConfig returns the geometry of the standard docking station:
// a flat face with a centred V notch, 0.476m wide and 0.3m deep.
func DefaultTemplateConfig() TemplateConfig {
	return TemplateConfig{
		Width: DefaultWidth,
		Depth: DefaultDepth,
		Profile: []Point{
			{X: 0, Y: 0},
			{X: 0, Y: -0.163},
			{X: 0.1, Y: -0.238},
			{X: 0, Y: -0.313},
			{X: 0, Y: -DefaultWidth},
		},
		SampleSpacing:    DefaultSampleSpacing,
		ApproachDistance: DefaultDepth,
	}
}

// Segment is one straight edge of the template profile
type Segment struct {
	A, B   Point
	Normal Point // unit normal, left of A->B
	Length float64
}

// TemplateModel is the immutable reference geometry of the fixture.
//
// Local frame: the origin is one end of the front face, the face runs toward -y and
// +x points into the fixture, away from an approaching robot.
type TemplateModel struct {
	width    float64
	depth    float64
	approach float64
	spacing  float64
	profile  []Point
	segments []Segment
	features []Point
	views    []view // views[0] is the whole profile
}

// view is a stretch of the profile a sighting may show, used to seed refinement
type view struct {
	centroid Point
	axis     float64 // principal axis angle (radians, mod pi)
}

// partialViews are the fractions of the profile, from either end, that seed
// refinement of partly occluded sightings.
var partialViews = []float64{1.0 / 2, 2.0 / 3}

// NewTemplateModel validates cfg and builds the template.
// An empty profile defaults to the straight face from (0,0) to (0,-width).
func NewTemplateModel(cfg TemplateConfig) (*TemplateModel, error) {
	if !(cfg.Width > 0) || math.IsInf(cfg.Width, 0) {
		return nil, configErrorf("template.width", "must be positive, got %v", cfg.Width)
	}
	if !(cfg.Depth > 0) || math.IsInf(cfg.Depth, 0) {
		return nil, configErrorf("template.depth", "must be positive, got %v", cfg.Depth)
	}
	if cfg.SampleSpacing < 0 {
		return nil, configErrorf("template.sampleSpacing", "must not be negative, got %v", cfg.SampleSpacing)
	}
	if cfg.ApproachDistance < 0 {
		return nil, configErrorf("template.approachDistance", "must not be negative, got %v", cfg.ApproachDistance)
	}

	profile := cfg.Profile
	if len(profile) == 0 {
		profile = []Point{{X: 0, Y: 0}, {X: 0, Y: -cfg.Width}}
	}
	if len(profile) < 2 {
		return nil, configErrorf("template.profile", "needs at least 2 vertices, got %d", len(profile))
	}

	for i, p := range profile {
		if p.X < -profileSlack || p.X > cfg.Depth+profileSlack ||
			p.Y > profileSlack || p.Y < -cfg.Width-profileSlack {
			return nil, configErrorf("template.profile", "vertex %d (%.3f, %.3f) lies outside the %.3fx%.3f footprint",
				i, p.X, p.Y, cfg.Depth, cfg.Width)
		}
	}

	spacing := cfg.SampleSpacing
	if spacing == 0 {
		spacing = DefaultSampleSpacing
	}

	t := &TemplateModel{
		width:    cfg.Width,
		depth:    cfg.Depth,
		approach: cfg.ApproachDistance,
		spacing:  spacing,
		profile:  append([]Point(nil), profile...),
	}

	for i := 0; i+1 < len(profile); i++ {
		a, b := profile[i], profile[i+1]
		length := Distance(a, b)
		if length < 1e-9 {
			return nil, configErrorf("template.profile", "segment %d has zero length", i)
		}
		t.segments = append(t.segments, Segment{
			A:      a,
			B:      b,
			Normal: Point{X: -(b.Y - a.Y) / length, Y: (b.X - a.X) / length},
			Length: length,
		})
	}

	t.features = sampleProfile(t.segments, spacing)
	t.views = profileViews(t.features)

	return t, nil
}

// sampleProfile places feature points along the segments at the given spacing,
// including every vertex exactly once.
func sampleProfile(segments []Segment, spacing float64) []Point {
	var pts []Point
	for _, s := range segments {
		n := int(math.Ceil(s.Length / spacing))
		for i := 0; i < n; i++ {
			f := float64(i) / float64(n)
			pts = append(pts, Point{
				X: s.A.X + f*(s.B.X-s.A.X),
				Y: s.A.Y + f*(s.B.Y-s.A.Y),
			})
		}
	}
	if len(segments) > 0 {
		pts = append(pts, segments[len(segments)-1].B)
	}
	return pts
}

// profileViews returns the whole-profile view followed by the prefix and suffix views
// of each partialViews fraction.
func profileViews(features []Point) []view {
	newView := func(pts []Point) view {
		axis, _, _ := principalAxis(pts)
		return view{centroid: Centroid(pts), axis: axis}
	}

	views := []view{newView(features)}
	n := len(features)
	for _, f := range partialViews {
		k := int(math.Round(f * float64(n)))
		if k < minCorrespondences || k >= n {
			continue
		}
		views = append(views, newView(features[:k]), newView(features[n-k:]))
	}
	return views
}

// Width returns the footprint width (m)
func (t *TemplateModel) Width() float64 { return t.width }

// Depth returns the footprint depth (m)
func (t *TemplateModel) Depth() float64 { return t.depth }

// Diagonal returns the footprint diagonal, the largest extent any sighting can have.
func (t *TemplateModel) Diagonal() float64 { return math.Hypot(t.width, t.depth) }

// Features returns a copy of the ordered local-frame feature points
func (t *TemplateModel) Features() []Point {
	return append([]Point(nil), t.features...)
}

// Profile returns a copy of the profile vertices
func (t *TemplateModel) Profile() []Point {
	return append([]Point(nil), t.profile...)
}

// Segments returns a copy of the profile edges
func (t *TemplateModel) Segments() []Segment {
	return append([]Segment(nil), t.segments...)
}

// Footprint returns the local-frame footprint rectangle corners, counter-clockwise.
func (t *TemplateModel) Footprint() []Point {
	return []Point{
		{X: 0, Y: -t.width},
		{X: t.depth, Y: -t.width},
		{X: t.depth, Y: 0},
		{X: 0, Y: 0},
	}
}

// FaceCenter returns the local-frame centre of the front face
func (t *TemplateModel) FaceCenter() Point {
	return Point{X: 0, Y: -t.width / 2}
}

// GoalPose returns the docking goal for a fixture seen at the given pose:
// ApproachDistance in front of the face centre, facing the fixture.
func (t *TemplateModel) GoalPose(fixture Pose) Pose {
	c := t.FaceCenter()
	local := Pose{X: c.X - t.approach, Y: c.Y, Heading: 0}
	return TransformPose(local, fixture.Matrix())
}

// ClosestPoint returns the nearest point on the profile to p (local frame), the unit
// direction used as the correspondence normal, and the distance.
// Ties resolve to the earlier segment.
func (t *TemplateModel) ClosestPoint(p Point) (Point, Point, float64) {
	best := math.MaxFloat64
	var bestQ, bestN Point

	for _, s := range t.segments {
		dx, dy := s.B.X-s.A.X, s.B.Y-s.A.Y
		u := ((p.X-s.A.X)*dx + (p.Y-s.A.Y)*dy) / (s.Length * s.Length)
		clamped := false
		if u < 0 {
			u, clamped = 0, true
		} else if u > 1 {
			u, clamped = 1, true
		}
		q := Point{X: s.A.X + u*dx, Y: s.A.Y + u*dy}
		d := Distance(p, q)
		if d < best {
			best = d
			bestQ = q
			bestN = s.Normal
			// Past an endpoint the residual points from the vertex, not across the edge.
			if clamped && d > 1e-12 {
				bestN = Point{X: (p.X - q.X) / d, Y: (p.Y - q.Y) / d}
			}
		}
	}
	return bestQ, bestN, best
}
