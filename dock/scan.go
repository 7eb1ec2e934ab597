package dock

import (
	"fmt"
	"math"
)

// LaserScan is a single planar range scan as carried on the scan topic
type LaserScan struct {
	FrameID        string    `json:"frame_id"`
	Stamp          int64     `json:"stamp"` // unix nanoseconds
	AngleMin       float64   `json:"angle_min"`
	AngleMax       float64   `json:"angle_max"`
	AngleIncrement float64   `json:"angle_increment"`
	RangeMin       float64   `json:"range_min"`
	RangeMax       float64   `json:"range_max"`
	Ranges         []float64 `json:"ranges"`
	Intensities    []float64 `json:"intensities,omitempty"`
}

// Validate checks the structural invariants of a scan. It does not inspect
// individual readings; invalid readings are dropped by Points.
func (s *LaserScan) Validate() error {
	if len(s.Intensities) > 0 && len(s.Intensities) != len(s.Ranges) {
		return fmt.Errorf("%w: %d intensities for %d ranges", ErrMismatchedLengths, len(s.Intensities), len(s.Ranges))
	}
	if !isFinite(s.AngleMin) || !isFinite(s.AngleIncrement) {
		return fmt.Errorf("%w: non-finite angle parameters", ErrInvalidScan)
	}
	if len(s.Ranges) > 1 && s.AngleIncrement == 0 {
		return fmt.Errorf("%w: zero angle increment with %d ranges", ErrInvalidScan, len(s.Ranges))
	}
	if s.RangeMin < 0 || math.IsNaN(s.RangeMax) || (s.RangeMax > 0 && s.RangeMax < s.RangeMin) {
		return fmt.Errorf("%w: bad range limits [%v, %v]", ErrInvalidScan, s.RangeMin, s.RangeMax)
	}
	return nil
}

// Points converts the polar readings to Cartesian points in the sensor frame,
// preserving angular order. NaN, infinite, below-minimum and max-range readings
// are dropped rather than mapped to the origin.
func (s *LaserScan) Points() []Point {
	points := make([]Point, 0, len(s.Ranges))
	for i, r := range s.Ranges {
		if !isFinite(r) || r <= 0 || r < s.RangeMin {
			continue
		}
		if s.RangeMax > 0 && r >= s.RangeMax {
			continue
		}
		angle := s.AngleMin + float64(i)*s.AngleIncrement
		points = append(points, Point{X: r * math.Cos(angle), Y: r * math.Sin(angle)})
	}
	return points
}

// PointsFromXY zips parallel coordinate arrays into points.
// Non-finite pairs are dropped.
func PointsFromXY(xs, ys []float64) ([]Point, error) {
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("%w: %d x values, %d y values", ErrMismatchedLengths, len(xs), len(ys))
	}
	points := make([]Point, 0, len(xs))
	for i := range xs {
		if !isFinite(xs[i]) || !isFinite(ys[i]) {
			continue
		}
		points = append(points, Point{X: xs[i], Y: ys[i]})
	}
	return points, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
