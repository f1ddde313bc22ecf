package fetcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/stock-sentiment-crawler/internal/crawler"
)

type flakyTransport struct {
	mu       sync.Mutex
	failures int
	calls    int
	body     []byte
	requests []crawler.FetchRequest
}

func (f *flakyTransport) Fetch(_ context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.requests = append(f.requests, req)
	if f.calls <= f.failures {
		return crawler.FetchResponse{}, errors.New("connection reset")
	}
	return crawler.FetchResponse{URL: req.URL, StatusCode: 200, Body: f.body}, nil
}

type recordingPauser struct {
	delays []time.Duration
}

func (p *recordingPauser) Pause(_ context.Context, d time.Duration) error {
	p.delays = append(p.delays, d)
	return nil
}

type countingLimiter struct {
	calls int
	err   error
}

func (l *countingLimiter) Wait(context.Context, string) error {
	l.calls++
	return l.err
}

func TestGetRetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	transport := &flakyTransport{failures: 2, body: []byte("<html/>")}
	pauser := &recordingPauser{}
	limiter := &countingLimiter{}
	f := New(transport, Config{MaxRetries: 2, RetryDelay: 2 * time.Second}, Options{
		Limiter: limiter,
		Pauser:  pauser,
		Logger:  zap.NewNop(),
	})

	body, err := f.Get(context.Background(), "https://guba.eastmoney.com/list,600036.html")
	require.NoError(t, err)
	require.Equal(t, "<html/>", string(body))
	require.Equal(t, 3, transport.calls)
	require.Equal(t, 3, limiter.calls)
	require.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, pauser.delays)
	require.Equal(t, "https://www.eastmoney.com/", transport.requests[0].Headers.Get("Referer"))
	require.Equal(t, crawler.DefaultRequestTimeout, transport.requests[0].Timeout)
}

func TestGetReturnsNetworkErrorAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	transport := &flakyTransport{failures: 10}
	f := New(transport, Config{MaxRetries: 2}, Options{Pauser: &recordingPauser{}})

	_, err := f.Get(context.Background(), "https://example.com/a")
	require.Error(t, err)

	var netErr *crawler.NetworkError
	require.ErrorAs(t, err, &netErr)
	require.Equal(t, 3, netErr.Attempts)
	require.Equal(t, "https://example.com/a", netErr.URL)
	require.Equal(t, 3, transport.calls)
}

func TestGetStopsOnCanceledContext(t *testing.T) {
	t.Parallel()

	transport := &flakyTransport{failures: 10}
	f := New(transport, Config{MaxRetries: 5}, Options{Pauser: &recordingPauser{}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.Get(ctx, "https://example.com/a")
	require.Error(t, err)
	require.Equal(t, 1, transport.calls)
}

func TestGetLimiterFailure(t *testing.T) {
	t.Parallel()

	transport := &flakyTransport{}
	f := New(transport, Config{}, Options{Limiter: &countingLimiter{err: context.Canceled}})

	_, err := f.Get(context.Background(), "https://example.com/a")
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, transport.calls)
}

func TestDownloadEnforcesLimit(t *testing.T) {
	t.Parallel()

	transport := &flakyTransport{body: []byte("0123456789")}
	f := New(transport, Config{}, Options{})

	body, err := f.Download(context.Background(), "https://example.com/r.pdf", 10, 30*time.Second)
	require.NoError(t, err)
	require.Len(t, body, 10)
	require.EqualValues(t, 11, transport.requests[0].MaxBodyBytes)
	require.Equal(t, 30*time.Second, transport.requests[0].Timeout)

	_, err = f.Download(context.Background(), "https://example.com/r.pdf", 9, 0)
	require.ErrorIs(t, err, ErrBodyTooLarge)
}

func TestDownloadUsesBinaryTransport(t *testing.T) {
	t.Parallel()

	pages := &flakyTransport{body: []byte("<html></html>")}
	binary := &flakyTransport{body: []byte("%PDF-1.4")}
	f := New(pages, Config{}, Options{Binary: binary})

	body, err := f.Download(context.Background(), "https://example.com/r.pdf", 1024, 0)
	require.NoError(t, err)
	require.Equal(t, "%PDF-1.4", string(body))

	_, err = f.Get(context.Background(), "https://example.com/list")
	require.NoError(t, err)
	require.Equal(t, 1, pages.calls)
	require.Equal(t, 1, binary.calls)
}
