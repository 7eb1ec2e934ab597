package dock

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// ParseScanFile reads a recorded scan (JSON or zlib JSON) and validates it
func ParseScanFile(path string) (*LaserScan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return DecodeScan(data)
}

// ParseScanJSON parses and validates LaserScan JSON.
func ParseScanJSON(data []byte) (*LaserScan, error) {
	var s LaserScan
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: parsing JSON: %v", ErrInvalidScan, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// MarshalScan encodes a scan as JSON. Invalid readings are written as the scan's
// max range since JSON has no NaN or infinity.
func MarshalScan(scan *LaserScan) ([]byte, error) {
	out := *scan
	out.Ranges = make([]float64, len(scan.Ranges))
	for i, r := range scan.Ranges {
		if math.IsNaN(r) || math.IsInf(r, 0) {
			r = scan.RangeMax
		}
		out.Ranges[i] = r
	}
	data, err := json.Marshal(&out)
	if err != nil {
		return nil, fmt.Errorf("marshaling scan: %w", err)
	}
	return data, nil
}

// ScanSummary provides a summary of scan contents
type ScanSummary struct {
	FrameID     string
	Readings    int
	ValidPoints int
	FieldOfView float64 // radians
	MinRange    float64
	MaxRange    float64
}

// Summarize extracts key information from a scan
func Summarize(s *LaserScan) ScanSummary {
	summary := ScanSummary{
		FrameID:     s.FrameID,
		Readings:    len(s.Ranges),
		FieldOfView: math.Abs(s.AngleIncrement) * float64(len(s.Ranges)),
		MinRange:    math.Inf(1),
	}

	pts := s.Points()
	summary.ValidPoints = len(pts)
	for _, p := range pts {
		r := math.Hypot(p.X, p.Y)
		summary.MinRange = math.Min(summary.MinRange, r)
		summary.MaxRange = math.Max(summary.MaxRange, r)
	}
	if len(pts) == 0 {
		summary.MinRange = 0
	}
	return summary
}
