// Package collyfetcher implements crawler.Fetcher on top of gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/stock-sentiment-crawler/internal/crawler"
)

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
}

// Fetcher implements crawler.Fetcher. Every request gets its own collector over a shared transport,
// so retries of the same URL are never treated as revisits.
type Fetcher struct {
	cfg       Config
	transport http.RoundTripper
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	return &Fetcher{cfg: cfg, transport: newHTTPTransport()}
}

// visit collects the outcome of a single collector run.
type visit struct {
	start    time.Time
	response crawler.FetchResponse
	err      error
}

// Fetch executes a single GET. Status codes outside 2xx are errors.
// Bodies declared in GBK or GB18030 are converted to UTF-8.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	v := &visit{start: time.Now()}
	c := f.collector(request)
	v.bind(c, request.Headers)

	done := make(chan error, 1)
	go func() { done <- c.Visit(request.URL) }()

	select {
	case <-ctx.Done():
		return crawler.FetchResponse{}, fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		switch {
		case v.err != nil:
			return crawler.FetchResponse{}, fmt.Errorf("colly response failed: %w", v.err)
		case err != nil:
			return crawler.FetchResponse{}, fmt.Errorf("colly visit failed: %w", err)
		}
		return v.response, nil
	}
}

func (f *Fetcher) collector(request crawler.FetchRequest) *colly.Collector {
	opts := []colly.CollectorOption{
		colly.AllowURLRevisit(),
		colly.DetectCharset(),
	}
	if f.cfg.UserAgent != "" {
		opts = append(opts, colly.UserAgent(f.cfg.UserAgent))
	}
	if request.MaxBodyBytes > 0 {
		opts = append(opts, colly.MaxBodySize(int(request.MaxBodyBytes)))
	}
	c := colly.NewCollector(opts...)
	// NewCollector ignores robots.txt unless told otherwise.
	c.IgnoreRobotsTxt = !f.cfg.RespectRobots
	c.WithTransport(f.transport)
	c.SetRequestTimeout(f.timeout(request))
	return c
}

func (f *Fetcher) timeout(request crawler.FetchRequest) time.Duration {
	switch {
	case request.Timeout > 0:
		return request.Timeout
	case f.cfg.Timeout > 0:
		return f.cfg.Timeout
	default:
		return crawler.DefaultRequestTimeout
	}
}

type hooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

func (v *visit) bind(h hooks, headers http.Header) {
	h.OnRequest(func(r *colly.Request) {
		for key, values := range headers {
			r.Headers.Del(key)
			for _, value := range values {
				r.Headers.Add(key, value)
			}
		}
	})
	h.OnResponse(func(r *colly.Response) {
		resp := crawler.FetchResponse{
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(v.start),
		}
		if r.Headers != nil {
			resp.Headers = r.Headers.Clone()
		}
		if r.Request != nil && r.Request.URL != nil {
			resp.URL = r.Request.URL.String()
		}
		v.response = resp
	})
	h.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			v.err = fmt.Errorf("status %d: %w", r.StatusCode, err)
			return
		}
		v.err = err
	})
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       90 * time.Second,
	}
}
