package headless

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/stock-sentiment-crawler/internal/crawler"
)

func TestNewChromedpValidation(t *testing.T) {
	t.Parallel()

	_, err := NewChromedp(Config{MaxParallel: -1})
	require.Error(t, err)

	f, err := NewChromedp(Config{MaxParallel: 2})
	require.NoError(t, err)
	t.Cleanup(f.Close)
	require.NotNil(t, f.slots)
}

func TestNewChromedpDefaults(t *testing.T) {
	t.Parallel()

	f, err := NewChromedp(Config{})
	require.NoError(t, err)
	t.Cleanup(f.Close)
	require.Equal(t, defaultNavTimeout, f.cfg.NavigationTimeout)
	require.Equal(t, defaultWaitSelector, f.cfg.WaitSelector)
	require.Equal(t, DefaultBlockedURLs, f.cfg.BlockedURLs)
	require.Nil(t, f.slots)

	none, err := NewChromedp(Config{BlockedURLs: []string{}})
	require.NoError(t, err)
	t.Cleanup(none.Close)
	require.Empty(t, none.cfg.BlockedURLs)
}

func TestTimeoutPrefersRequest(t *testing.T) {
	t.Parallel()

	f := &Fetcher{cfg: Config{NavigationTimeout: 5 * time.Second}}
	require.Equal(t, 5*time.Second, f.timeout(crawler.FetchRequest{}))
	require.Equal(t, time.Second, f.timeout(crawler.FetchRequest{Timeout: time.Second}))
	require.Equal(t, defaultNavTimeout, (&Fetcher{}).timeout(crawler.FetchRequest{}))
}

func TestFetchWaitsForSlot(t *testing.T) {
	t.Parallel()

	f, err := NewChromedp(Config{MaxParallel: 1})
	require.NoError(t, err)
	t.Cleanup(f.Close)
	require.True(t, f.slots.TryAcquire(1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = f.Fetch(ctx, crawler.FetchRequest{URL: "https://guba.eastmoney.com/list,600036.html"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Contains(t, err.Error(), "slot")
}

func TestExtraHeadersDropsUserAgent(t *testing.T) {
	t.Parallel()

	h := crawler.DefaultBrowserHeaders("agent")
	h.Add("X-Multi", "a")
	h.Add("X-Multi", "b")

	got := extraHeaders(h)
	require.NotContains(t, got, "User-Agent")
	require.Equal(t, "https://www.eastmoney.com/", got["Referer"])
	require.Equal(t, []string{"a", "b"}, got["X-Multi"])
}

func TestMainDocumentCapturesLastDocument(t *testing.T) {
	t.Parallel()

	doc := &mainDocument{}
	doc.observe(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 302, URL: "http://guba.eastmoney.com/list,600036.html"},
	})
	doc.observe(&network.EventResponseReceived{
		Type:     network.ResourceTypeImage,
		Response: &network.Response{Status: 404, URL: "https://img.example.com/a.png"},
	})
	doc.observe(&network.EventResponseReceived{
		Type: network.ResourceTypeDocument,
		Response: &network.Response{
			Status:  200,
			URL:     "https://guba.eastmoney.com/list,600036.html",
			Headers: network.Headers{"Content-Type": "text/html; charset=utf-8"},
		},
	})
	doc.observe("not an event")

	resp := doc.response("http://req", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "https://guba.eastmoney.com/list,600036.html", resp.URL)
	require.Equal(t, "text/html; charset=utf-8", resp.Headers.Get("Content-Type"))
}

func TestMainDocumentFallbacks(t *testing.T) {
	t.Parallel()

	resp := (&mainDocument{}).response("https://req", "https://final")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "https://final", resp.URL)
	require.NotNil(t, resp.Headers)

	resp = (&mainDocument{}).response("https://req", "")
	require.Equal(t, "https://req", resp.URL)
}
