package dock

import (
	"bytes"
	"compress/zlib"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeScan(t *testing.T) {
	plain := []byte(`{"frame_id":"laser","angle_min":0,"angle_increment":0.5,"range_max":5,"ranges":[1,2,3]}`)

	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, err := w.Write(plain)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	tests := []struct {
		name    string
		payload []byte
	}{
		{"json", plain},
		{"json with leading whitespace", append([]byte("\n  "), plain...)},
		{"zlib", buf.Bytes()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scan, err := DecodeScan(tt.payload)
			require.NoError(t, err)
			assert.Equal(t, "laser", scan.FrameID)
			assert.Equal(t, []float64{1, 2, 3}, scan.Ranges)
			assert.Equal(t, 0.5, scan.AngleIncrement)
		})
	}
}

func TestDecodeScan_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"empty", nil},
		{"whitespace", []byte("  \n")},
		{"not zlib", []byte("hello")},
		{"broken json", []byte(`{"ranges":[1,2`)},
		{"mismatched intensities", []byte(`{"angle_increment":0.1,"ranges":[1,2],"intensities":[1]}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scan, err := DecodeScan(tt.payload)
			assert.Nil(t, scan)
			assert.True(t, errors.Is(err, ErrInvalidScan) || errors.Is(err, ErrMismatchedLengths), "got %v", err)
		})
	}
}

func TestEncodeScan_RoundTrip(t *testing.T) {
	scan := &LaserScan{
		FrameID:        "laser",
		Stamp:          1700000000000000000,
		AngleMin:       -1,
		AngleMax:       1,
		AngleIncrement: 0.5,
		RangeMin:       0.1,
		RangeMax:       8,
		Ranges:         []float64{1, math.Inf(1), math.NaN(), 2, 3},
		Intensities:    []float64{10, 0, 0, 20, 30},
	}

	data, err := EncodeScan(scan)
	require.NoError(t, err)
	assert.NotEqual(t, byte('{'), data[0])

	got, err := DecodeScan(data)
	require.NoError(t, err)

	want := *scan
	want.Ranges = []float64{1, 8, 8, 2, 3}
	if diff := cmp.Diff(&want, got); diff != "" {
		t.Errorf("decoded scan mismatch (-want +got):\n%s", diff)
	}
	// Replaced readings still drop out as max range.
	assert.Len(t, got.Points(), 3)
}
