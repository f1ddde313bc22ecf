// Package fetcher layers retries, per-host throttling and browser headers over a transport Fetcher.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/stock-sentiment-crawler/internal/crawler"
	"github.com/JakeFAU/stock-sentiment-crawler/internal/metrics"
)

// ErrBodyTooLarge is returned by Download when the body exceeds the byte limit.
var ErrBodyTooLarge = errors.New("response body exceeds limit")

// Config tunes retry and request behavior.
type Config struct {
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// Options carries the optional collaborators of a RateLimited fetcher.
type Options struct {
	Limiter crawler.Limiter
	Pauser  crawler.Pauser
	Logger  *zap.Logger
	// Binary serves Download. Nil means the page transport.
	Binary crawler.Fetcher
}

// RateLimited fetches pages through a transport with fixed-delay retries.
type RateLimited struct {
	transport crawler.Fetcher
	binary    crawler.Fetcher
	policy    *crawler.FixedRetryPolicy
	limiter   crawler.Limiter
	pauser    crawler.Pauser
	headers   http.Header
	timeout   time.Duration
	logger    *zap.Logger
}

// New wraps transport.
func New(transport crawler.Fetcher, cfg Config, opts Options) *RateLimited {
	pauser := opts.Pauser
	if pauser == nil {
		pauser = crawler.TimerPauser{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = crawler.DefaultRequestTimeout
	}
	binary := opts.Binary
	if binary == nil {
		binary = transport
	}
	return &RateLimited{
		transport: transport,
		binary:    binary,
		policy:    crawler.NewFixedRetryPolicy(cfg.MaxRetries, cfg.RetryDelay),
		limiter:   opts.Limiter,
		pauser:    pauser,
		headers:   crawler.DefaultBrowserHeaders(cfg.UserAgent),
		timeout:   timeout,
		logger:    logger.Named("fetcher"),
	}
}

// Get returns the body of url. After the last failed attempt it returns a *crawler.NetworkError.
func (f *RateLimited) Get(ctx context.Context, url string) ([]byte, error) {
	resp, err := f.do(ctx, f.transport, crawler.FetchRequest{URL: url, Timeout: f.timeout})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Download fetches a binary artifact of at most maxBytes within timeout.
// Oversized bodies fail with ErrBodyTooLarge and are not retried.
func (f *RateLimited) Download(ctx context.Context, url string, maxBytes int64, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = f.timeout
	}
	req := crawler.FetchRequest{URL: url, Timeout: timeout}
	if maxBytes > 0 {
		// One extra byte distinguishes "exactly at the limit" from truncated.
		req.MaxBodyBytes = maxBytes + 1
	}
	resp, err := f.do(ctx, f.binary, req)
	if err != nil {
		return nil, err
	}
	if maxBytes > 0 && int64(len(resp.Body)) > maxBytes {
		return nil, fmt.Errorf("download %s: %w (%d bytes)", url, ErrBodyTooLarge, maxBytes)
	}
	return resp.Body, nil
}

func (f *RateLimited) do(ctx context.Context, transport crawler.Fetcher, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	req.Headers = f.headers.Clone()
	for attempt := 1; ; attempt++ {
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx, req.URL); err != nil {
				return crawler.FetchResponse{}, &crawler.NetworkError{URL: req.URL, Attempts: attempt - 1, Err: err}
			}
		}

		resp, err := transport.Fetch(ctx, req)
		if err == nil {
			metrics.ObserveFetch(req.URL, "ok", len(resp.Body))
			return resp, nil
		}
		metrics.ObserveFetch(req.URL, "error", 0)

		if ctx.Err() != nil || !f.policy.ShouldRetry(err, attempt) {
			return crawler.FetchResponse{}, &crawler.NetworkError{URL: req.URL, Attempts: attempt, Err: err}
		}

		delay := f.policy.Backoff(attempt)
		f.logger.Warn("fetch failed, retrying",
			zap.String("url", req.URL),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		metrics.ObserveFetchRetry(req.URL)
		if perr := f.pauser.Pause(ctx, delay); perr != nil {
			return crawler.FetchResponse{}, &crawler.NetworkError{URL: req.URL, Attempts: attempt, Err: err}
		}
	}
}
