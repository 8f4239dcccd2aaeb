package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/luismateoh/Aldebaran-sub001/internal/config"
)

// FetchError means the source image could not be retrieved: transport
// failure, non-2xx response or an oversized body.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Fetcher downloads source images over HTTP. Calls go through a circuit
// breaker per origin host, so a flapping origin trips open without
// blocking items that point at healthy hosts.
type Fetcher struct {
	client   *http.Client
	maxBytes int64

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

func New(cfg config.FetchConfig) *Fetcher {
	timeout := cfg.TimeoutSeconds * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	maxBytes := cfg.MaxBodyBytes
	if maxBytes <= 0 {
		maxBytes = 20 << 20
	}

	return &Fetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// breaker returns the circuit breaker for one origin host, creating it on
// first use.
func (f *Fetcher) breaker(host string) *gobreaker.CircuitBreaker {
	f.mu.Lock()
	defer f.mu.Unlock()

	cb, ok := f.breakers[host]
	if !ok {
		cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "image-fetch:" + host,
			MaxRequests: 5,
			Interval:    60 * time.Second,
			Timeout:     10 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 3
			},
		})
		f.breakers[host] = cb
	}
	return cb
}

// Fetch downloads the image at sourceURL and returns its raw bytes.
func (f *Fetcher) Fetch(ctx context.Context, sourceURL string) ([]byte, error) {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return nil, &FetchError{URL: sourceURL, Err: err}
	}

	body, err := f.breaker(u.Host).Execute(func() (interface{}, error) {
		return f.fetch(ctx, sourceURL)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, &FetchError{URL: sourceURL, Err: err}
		}
		return nil, err
	}
	return body.([]byte), nil
}

func (f *Fetcher) fetch(ctx context.Context, sourceURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, &FetchError{URL: sourceURL, Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: sourceURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: sourceURL, Status: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, &FetchError{URL: sourceURL, Err: err}
	}
	if int64(len(data)) > f.maxBytes {
		return nil, &FetchError{URL: sourceURL, Err: fmt.Errorf("body exceeds %d bytes", f.maxBytes)}
	}

	return data, nil
}
