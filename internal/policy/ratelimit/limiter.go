// Package ratelimit implements per-host token bucket throttling for outbound fetches.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/stock-sentiment-crawler/internal/metrics"
)

// HostRate overrides the default bucket for one host.
type HostRate struct {
	RPS   float64
	Burst int
}

// Config holds rate limiter configuration. A non-positive RPS means unlimited.
type Config struct {
	DefaultRPS   float64
	DefaultBurst int
	// Hosts maps lowercase hostnames to their own rate.
	Hosts map[string]HostRate
}

// Limiter hands out one token bucket per host.
type Limiter struct {
	mu       sync.Mutex
	buckets  map[string]*rate.Limiter
	fallback HostRate
	hosts    map[string]HostRate
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	hosts := make(map[string]HostRate, len(cfg.Hosts))
	for host, hr := range cfg.Hosts {
		hosts[strings.ToLower(host)] = hr
	}
	return &Limiter{
		buckets:  make(map[string]*rate.Limiter),
		fallback: HostRate{RPS: cfg.DefaultRPS, Burst: cfg.DefaultBurst},
		hosts:    hosts,
	}
}

// Wait blocks until a token is available for the host of rawURL.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := metrics.SanitizeSite(rawURL)
	bucket := l.bucket(host)

	start := time.Now()
	if err := bucket.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", host, err)
	}
	// Immediate grants are not delays.
	if d := time.Since(start); d > time.Millisecond {
		metrics.ObserveRateLimitDelay(host, d)
	}
	return nil
}

func (l *Limiter) bucket(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[host]; ok {
		return b
	}
	hr, ok := l.hosts[host]
	if !ok {
		hr = l.fallback
	}
	b := newBucket(hr)
	l.buckets[host] = b
	return b
}

func newBucket(hr HostRate) *rate.Limiter {
	if hr.RPS <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(hr.RPS), max(hr.Burst, 1))
}
