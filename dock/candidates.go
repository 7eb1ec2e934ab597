package dock

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// DefaultCandidateConfig returns defaults tuned for a 1 degree, 10m planar scanner.
func DefaultCandidateConfig() CandidateConfig {
	return CandidateConfig{
		MaxRange:           10.0,
		ClusterGap:         0.1,
		MinPoints:          5,
		ExtentSlack:        0.25,
		MinVisibleFraction: 0.5,
		WindowStride:       2,
		MaxCandidates:      256,
	}
}

// run is a contiguous slice of the filtered scan, [start, end). A wrapped run covers
// [start, total) then [0, end).
type run struct {
	start, end int
	wrapped    bool
	points     []Point
}

// GenerateCandidates splits a scan into contiguous runs and windows that could hold
// the fixture. Neighbouring runs are also offered joined, since the fixture's own
// concave profile can break a sighting apart. Output is in scan order and fully
// deterministic.
func GenerateCandidates(points []Point, tmpl *TemplateModel, cfg CandidateConfig) []Candidate {
	filtered := filterPoints(points, cfg.MaxRange)
	if len(filtered) == 0 {
		return nil
	}
	total := len(filtered)

	maxExtent := tmpl.Diagonal() * (1 + cfg.ExtentSlack)
	minExtent := tmpl.Width() * cfg.MinVisibleFraction
	windowSpan := tmpl.Width() * (1 + cfg.ExtentSlack)
	mergeGap := cfg.MergeGap
	if mergeGap == 0 {
		mergeGap = tmpl.Depth()
	}
	mergeGap = math.Max(mergeGap, cfg.ClusterGap)

	var out []Candidate
	add := func(r run) bool {
		if cfg.MaxCandidates > 0 && len(out) >= cfg.MaxCandidates {
			return false
		}
		out = append(out, Candidate{
			Index:  len(out),
			Start:  r.start,
			End:    r.end,
			Points: r.points,
		})
		return true
	}
	fits := func(r run) bool {
		return len(r.points) >= cfg.MinPoints && classifyExtent(r.points, minExtent, maxExtent) == extentOK
	}

	runs := splitRuns(filtered, cfg.ClusterGap, cfg.WrapAround)
	lastGroupEnd := -1
	for i, r := range runs {
		if len(r.points) >= cfg.MinPoints {
			switch classifyExtent(r.points, minExtent, maxExtent) {
			case extentOK:
				if !add(r) {
					return out
				}
			case extentTooLarge:
				for _, w := range slideWindows(r, windowSpan, cfg.WindowStride, total) {
					if fits(w) && !add(w) {
						return out
					}
				}
			}
		}

		g, j := mergeFrom(runs, i, mergeGap, maxExtent)
		if j < i+2 || j == lastGroupEnd {
			continue
		}
		lastGroupEnd = j
		if fits(g) && !add(g) {
			return out
		}
	}
	return out
}

// filterPoints drops non-finite points and those at or beyond maxRange (no return).
// A zero maxRange disables the range check.
func filterPoints(points []Point, maxRange float64) []Point {
	out := make([]Point, 0, len(points))
	for _, p := range points {
		if !isFinite(p.X) || !isFinite(p.Y) {
			continue
		}
		if maxRange > 0 && math.Hypot(p.X, p.Y) >= maxRange {
			continue
		}
		out = append(out, p)
	}
	return out
}

// splitRuns breaks the ordered points wherever neighbours are more than gap apart.
// With wrap set, the last and first runs are joined when they touch.
func splitRuns(points []Point, gap float64, wrap bool) []run {
	var runs []run
	start := 0
	for i := 1; i <= len(points); i++ {
		if i == len(points) || planar.Distance(toOrb(points[i-1]), toOrb(points[i])) > gap {
			runs = append(runs, run{start: start, end: i, points: points[start:i]})
			start = i
		}
	}

	if wrap && len(runs) > 1 {
		first, last := runs[0], runs[len(runs)-1]
		if planar.Distance(toOrb(points[len(points)-1]), toOrb(points[0])) <= gap {
			joined := make([]Point, 0, len(last.points)+len(first.points))
			joined = append(joined, last.points...)
			joined = append(joined, first.points...)
			runs = append(runs[1:len(runs)-1], run{start: last.start, end: first.end, wrapped: true, points: joined})
		}
	}
	return runs
}

// mergeFrom joins runs[i:j] for the largest j where each jump between neighbours is
// at most gap and the joined bounding box still fits maxExtent.
func mergeFrom(runs []run, i int, gap, maxExtent float64) (run, int) {
	j := i + 1
	b := bound(runs[i].points)
	for ; j < len(runs); j++ {
		prev, next := runs[j-1].points, runs[j].points
		if planar.Distance(toOrb(prev[len(prev)-1]), toOrb(next[0])) > gap {
			break
		}
		grown := b.Union(bound(next))
		if math.Max(grown.Right()-grown.Left(), grown.Top()-grown.Bottom()) > maxExtent {
			break
		}
		b = grown
	}
	if j < i+2 {
		return run{}, j
	}

	g := run{start: runs[i].start, end: runs[j-1].end}
	for _, r := range runs[i:j] {
		g.wrapped = g.wrapped || r.wrapped
		g.points = append(g.points, r.points...)
	}
	return g, j
}

// slideWindows cuts an oversized run into overlapping windows whose end points are at
// most span apart, stepping stride points between window starts. total is the length
// of the filtered scan the run indexes into.
func slideWindows(r run, span float64, stride, total int) []run {
	if stride < 1 {
		stride = 1
	}
	n := len(r.points)
	var windows []run
	lastEnd := -1
	for i := 0; i < n; i += stride {
		j := i
		for j+1 < n && planar.Distance(toOrb(r.points[i]), toOrb(r.points[j+1])) <= span {
			j++
		}
		if j+1 == lastEnd {
			continue
		}
		lastEnd = j + 1
		w := run{
			start:  wrapIndex(r, i, total),
			end:    wrapIndex(r, j+1, total),
			points: r.points[i : j+1],
		}
		w.wrapped = r.wrapped && w.end <= w.start
		windows = append(windows, w)
		if j+1 == n {
			break
		}
	}
	return windows
}

// wrapIndex maps an offset within r back to an index into the filtered scan.
func wrapIndex(r run, offset, total int) int {
	if !r.wrapped {
		return r.start + offset
	}
	return (r.start + offset) % total
}

type extentClass int

const (
	extentOK extentClass = iota
	extentTooSmall
	extentTooLarge
)

// classifyExtent is the quick bounding-box rejection test.
func classifyExtent(points []Point, minExtent, maxExtent float64) extentClass {
	b := bound(points)

	w := b.Right() - b.Left()
	h := b.Top() - b.Bottom()
	if math.Max(w, h) > maxExtent {
		return extentTooLarge
	}
	if math.Hypot(w, h) < minExtent {
		return extentTooSmall
	}
	return extentOK
}

func bound(points []Point) orb.Bound {
	mp := make(orb.MultiPoint, len(points))
	for i, p := range points {
		mp[i] = toOrb(p)
	}
	return mp.Bound()
}

func toOrb(p Point) orb.Point {
	return orb.Point{p.X, p.Y}
}
