package sources

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

// Fetcher is the shared HTTP client for URL-backed adapters: bounded retries
// with jittered backoff on retryable statuses, and per-process request
// pacing so scraping stays polite.
type Fetcher struct {
	client     *http.Client
	limiter    *rateLimiter
	maxRetries int
}

func NewFetcher(timeout time.Duration, maxRetries, requestsPerSecond int) *Fetcher {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Fetcher{
		client:     &http.Client{Timeout: timeout},
		limiter:    newRateLimiter(requestsPerSecond),
		maxRetries: maxRetries,
	}
}

// Get fetches a URL. Network failures and terminal bad statuses surface as
// SourceUnavailableError; a 404 is returned as errNotFound so dated-URL
// probing can advance to the previous day.
func (f *Fetcher) Get(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= f.maxRetries; attempt++ {
		f.limiter.waitTurn()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, &SourceUnavailableError{Source: url, Err: err}
		}

		resp, err := f.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode == http.StatusNotFound {
			return nil, errNotFound
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			if isRetryableStatus(resp.StatusCode) && attempt < f.maxRetries {
				backoff := time.Duration(250*(1<<(attempt-1))+rand.Intn(100)) * time.Millisecond
				time.Sleep(backoff)
				lastErr = fmt.Errorf("status %d", resp.StatusCode)
				continue
			}
			return nil, &SourceUnavailableError{Source: url, Err: fmt.Errorf("status %d", resp.StatusCode)}
		}

		return body, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("request failed")
	}
	return nil, &SourceUnavailableError{Source: url, Err: lastErr}
}

var errNotFound = fmt.Errorf("not found")

func isRetryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

type rateLimiter struct {
	mu            sync.Mutex
	nextAllowedAt time.Time
	interval      time.Duration
}

func newRateLimiter(requestsPerSecond int) *rateLimiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	return &rateLimiter{interval: time.Second / time.Duration(requestsPerSecond)}
}

func (r *rateLimiter) waitTurn() {
	r.mu.Lock()
	now := time.Now()
	scheduled := now
	if r.nextAllowedAt.After(now) {
		scheduled = r.nextAllowedAt
	}
	r.nextAllowedAt = scheduled.Add(r.interval)
	r.mu.Unlock()

	if sleep := time.Until(scheduled); sleep > 0 {
		time.Sleep(sleep)
	}
}
