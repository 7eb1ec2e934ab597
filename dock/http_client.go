package dock

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Default fetch settings for --scan-url.
const (
	DefaultFetchTimeout = 10 * time.Second
	DefaultFetchRetries = 2
	DefaultFetchBackoff = 500 * time.Millisecond

	// maxResponseBytes caps response bodies and inflated payloads at 8 MB.
	maxResponseBytes = 8 << 20
)

// errPermanent marks a response that retrying cannot fix
var errPermanent = errors.New("not retryable")

// ScanFetcher pulls single scans from an HTTP endpoint serving LaserScan JSON,
// optionally zlib compressed.
type ScanFetcher struct {
	client  *http.Client
	retries int
	backoff time.Duration
}

// NewScanFetcher builds a fetcher from cfg. A nil client gets one with cfg.Timeout.
func NewScanFetcher(cfg FetchConfig, client *http.Client) *ScanFetcher {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &ScanFetcher{client: client, retries: max(cfg.Retries, 0), backoff: cfg.Backoff}
}

// Fetch returns one scan. Transport errors, 5xx, 408 and 429 responses are retried
// with doubling delays; other statuses and undecodable payloads fail at once.
func (f *ScanFetcher) Fetch(ctx context.Context, url string) (*LaserScan, error) {
	if url == "" {
		return nil, errors.New("fetch scan: URL is empty")
	}

	delay := f.backoff
	var err error
	for attempt := 0; attempt <= f.retries; attempt++ {
		if attempt > 0 {
			log.Printf("[HTTP] retrying %s in %v (attempt %d/%d): %v", url, delay, attempt+1, f.retries+1, err)
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, fmt.Errorf("fetch scan: %w", ctx.Err())
			case <-t.C:
			}
			delay *= 2
		}

		var body []byte
		body, err = f.get(ctx, url)
		if errors.Is(err, errPermanent) {
			return nil, fmt.Errorf("fetch scan: %w", err)
		}
		if err != nil {
			continue
		}

		scan, decodeErr := DecodeScan(body)
		if decodeErr != nil {
			return nil, fmt.Errorf("fetch scan: %w", decodeErr)
		}
		return scan, nil
	}
	return nil, fmt.Errorf("fetch scan: gave up after %d attempts: %w", f.retries+1, err)
}

func (f *ScanFetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errPermanent, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 500, resp.StatusCode == http.StatusRequestTimeout, resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("GET %s: %s", url, resp.Status)
	default:
		return nil, fmt.Errorf("%w: GET %s: %s", errPermanent, url, resp.Status)
	}

	return io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
}
