package dock

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testScanJSON = `{"frame_id":"laser","angle_increment":0.1,"range_max":5,"ranges":[1,2,3]}`

// testFetcher retries quickly against srv
func testFetcher(srv *httptest.Server, retries int) *ScanFetcher {
	return NewScanFetcher(FetchConfig{Retries: retries, Backoff: time.Millisecond}, srv.Client())
}

func TestScanFetcher_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		_, _ = w.Write([]byte(testScanJSON))
	}))
	defer srv.Close()

	scan, err := testFetcher(srv, 0).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, scan.Ranges)
}

func TestScanFetcher_Compressed(t *testing.T) {
	data, err := EncodeScan(&LaserScan{FrameID: "laser", AngleIncrement: 0.1, Ranges: []float64{4, 5}})
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	scan, err := testFetcher(srv, 0).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 5}, scan.Ranges)
}

func TestScanFetcher_RetriesTransientStatus(t *testing.T) {
	for _, status := range []int{http.StatusServiceUnavailable, http.StatusTooManyRequests, http.StatusRequestTimeout} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if calls.Add(1) < 3 {
					http.Error(w, "later", status)
					return
				}
				_, _ = w.Write([]byte(testScanJSON))
			}))
			defer srv.Close()

			scan, err := testFetcher(srv, 2).Fetch(context.Background(), srv.URL)
			require.NoError(t, err)
			assert.Len(t, scan.Ranges, 3)
			assert.Equal(t, int32(3), calls.Load())
		})
	}
}

func TestScanFetcher_GivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := testFetcher(srv, 1).Fetch(context.Background(), srv.URL)
	assert.ErrorContains(t, err, "gave up after 2 attempts")
	assert.ErrorContains(t, err, "502")
	assert.Equal(t, int32(2), calls.Load())
}

func TestScanFetcher_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := testFetcher(srv, 3).Fetch(context.Background(), srv.URL)
	assert.ErrorContains(t, err, "404")
	assert.Equal(t, int32(1), calls.Load())
}

func TestScanFetcher_MalformedIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"ranges":[1,2],"intensities":[1]}`))
	}))
	defer srv.Close()

	_, err := testFetcher(srv, 3).Fetch(context.Background(), srv.URL)
	assert.True(t, errors.Is(err, ErrMismatchedLengths))
	assert.Equal(t, int32(1), calls.Load())
}

func TestScanFetcher_EmptyURL(t *testing.T) {
	_, err := NewScanFetcher(DefaultFetchConfig(), nil).Fetch(context.Background(), "")
	assert.ErrorContains(t, err, "URL is empty")
}

func TestScanFetcher_ContextCancelledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	f := NewScanFetcher(FetchConfig{Retries: 3, Backoff: time.Hour}, srv.Client())
	_, err := f.Fetch(ctx, srv.URL)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
