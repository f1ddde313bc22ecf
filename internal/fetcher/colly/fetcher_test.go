package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/stock-sentiment-crawler/internal/crawler"
)

func TestCollectorOptions(t *testing.T) {
	t.Parallel()

	f := New(Config{UserAgent: "sentiment-agent", Timeout: time.Second})
	c := f.collector(crawler.FetchRequest{URL: "https://guba.eastmoney.com", MaxBodyBytes: 1024})
	require.Equal(t, "sentiment-agent", c.UserAgent)
	require.True(t, c.IgnoreRobotsTxt)
	require.True(t, c.AllowURLRevisit)
	require.True(t, c.DetectCharset)
	require.Equal(t, 1024, c.MaxBodySize)

	polite := New(Config{RespectRobots: true}).collector(crawler.FetchRequest{})
	require.False(t, polite.IgnoreRobotsTxt)
}

func TestTimeoutPrecedence(t *testing.T) {
	t.Parallel()

	f := New(Config{Timeout: 3 * time.Second})
	require.Equal(t, time.Second, f.timeout(crawler.FetchRequest{Timeout: time.Second}))
	require.Equal(t, 3*time.Second, f.timeout(crawler.FetchRequest{}))
	require.Equal(t, crawler.DefaultRequestTimeout, New(Config{}).timeout(crawler.FetchRequest{}))
}

func TestVisitHooks(t *testing.T) {
	t.Parallel()

	v := &visit{start: time.Now()}
	h := &stubHooks{}
	v.bind(h, http.Header{"Referer": {"https://www.eastmoney.com/"}})

	req := &colly.Request{Headers: &http.Header{"Referer": {"stale"}}}
	h.onRequest(req)
	require.Equal(t, []string{"https://www.eastmoney.com/"}, req.Headers.Values("Referer"))

	u, err := url.Parse("https://guba.eastmoney.com/list,600036.html")
	require.NoError(t, err)
	h.onResponse(&colly.Response{
		StatusCode: http.StatusOK,
		Body:       []byte("<html></html>"),
		Headers:    &http.Header{"Content-Type": {"text/html"}},
		Request:    &colly.Request{URL: u},
	})
	require.Equal(t, u.String(), v.response.URL)
	require.Equal(t, "text/html", v.response.Headers.Get("Content-Type"))
	require.Equal(t, "<html></html>", string(v.response.Body))

	h.onError(&colly.Response{StatusCode: http.StatusForbidden}, errors.New("Forbidden"))
	require.EqualError(t, v.err, "status 403: Forbidden")

	h.onError(nil, errors.New("dial tcp"))
	require.EqualError(t, v.err, "dial tcp")
}

func TestFetchAgainstServer(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("<html><body>" + r.Header.Get("Referer") + "</body></html>"))
	}))
	t.Cleanup(srv.Close)

	f := New(Config{UserAgent: "test-agent", Timeout: 2 * time.Second})
	req := crawler.FetchRequest{URL: srv.URL + "/list", Headers: crawler.DefaultBrowserHeaders("test-agent")}

	resp, err := f.Fetch(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(resp.Body), "https://www.eastmoney.com/")

	_, err = f.Fetch(context.Background(), req)
	require.NoError(t, err, "a repeated URL is fetched again")

	_, err = f.Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL + "/missing"})
	require.ErrorContains(t, err, "404")
}

func TestFetchConvertsGBK(t *testing.T) {
	t.Parallel()

	// "招商银行" in GBK.
	gbk := []byte{0xd5, 0xd0, 0xc9, 0xcc, 0xd2, 0xf8, 0xd0, 0xd0}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=gbk")
		_, _ = w.Write(append(append([]byte("<html><body>"), gbk...), []byte("</body></html>")...))
	}))
	t.Cleanup(srv.Close)

	resp, err := New(Config{}).Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL})
	require.NoError(t, err)
	require.Contains(t, string(resp.Body), "招商银行")
}

func TestFetchHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(Config{}).Fetch(ctx, crawler.FetchRequest{URL: srv.URL})
	require.ErrorIs(t, err, context.Canceled)
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback)   { s.onRequest = cb }
func (s *stubHooks) OnResponse(cb colly.ResponseCallback) { s.onResponse = cb }
func (s *stubHooks) OnError(cb colly.ErrorCallback)       { s.onError = cb }
