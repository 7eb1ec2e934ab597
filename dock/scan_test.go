package dock

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLaserScan_Points(t *testing.T) {
	scan := LaserScan{
		AngleMin:       0,
		AngleIncrement: math.Pi / 2,
		RangeMin:       0.1,
		RangeMax:       10,
		Ranges:         []float64{1, math.NaN(), math.Inf(1), 0, 0.05, 10, 2},
	}

	pts := scan.Points()
	require.Len(t, pts, 2)
	assert.InDelta(t, 1, pts[0].X, 1e-12)
	assert.InDelta(t, 0, pts[0].Y, 1e-12)
	// Index 6 sits at 3*pi, pointing back along -x.
	assert.InDelta(t, -2, pts[1].X, 1e-12)
	assert.InDelta(t, 0, pts[1].Y, 1e-9)
}

func TestLaserScan_PointsNoRangeMax(t *testing.T) {
	scan := LaserScan{AngleIncrement: 0.1, Ranges: []float64{50, 3}}
	assert.Len(t, scan.Points(), 2)
}

func TestLaserScan_Validate(t *testing.T) {
	base := func() LaserScan {
		return LaserScan{
			AngleMin:       -math.Pi,
			AngleMax:       math.Pi,
			AngleIncrement: math.Pi / 180,
			RangeMin:       0.05,
			RangeMax:       10,
			Ranges:         []float64{1, 2, 3},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*LaserScan)
		wantErr error
	}{
		{"valid", func(*LaserScan) {}, nil},
		{"empty ranges", func(s *LaserScan) { s.Ranges = nil }, nil},
		{"NaN readings are not structural", func(s *LaserScan) { s.Ranges[1] = math.NaN() }, nil},
		{"intensity mismatch", func(s *LaserScan) { s.Intensities = []float64{1} }, ErrMismatchedLengths},
		{"NaN angle", func(s *LaserScan) { s.AngleMin = math.NaN() }, ErrInvalidScan},
		{"infinite increment", func(s *LaserScan) { s.AngleIncrement = math.Inf(-1) }, ErrInvalidScan},
		{"zero increment", func(s *LaserScan) { s.AngleIncrement = 0 }, ErrInvalidScan},
		{"negative range min", func(s *LaserScan) { s.RangeMin = -1 }, ErrInvalidScan},
		{"range max below min", func(s *LaserScan) { s.RangeMax = 0.01 }, ErrInvalidScan},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := base()
			tt.mutate(&s)
			err := s.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestPointsFromXY(t *testing.T) {
	pts, err := PointsFromXY([]float64{1, math.NaN(), 3}, []float64{4, 5, 6})
	require.NoError(t, err)
	assert.Equal(t, []Point{{X: 1, Y: 4}, {X: 3, Y: 6}}, pts)

	_, err = PointsFromXY([]float64{1, 2}, []float64{1})
	assert.True(t, errors.Is(err, ErrMismatchedLengths))
}
