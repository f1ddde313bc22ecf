package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/jobs/{job_id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Post("/crawl", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"success"}`))
	})

	notFound := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "404"))
	ok := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodPost, "200"))

	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/"+id, nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/crawl", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	require.Equal(t, notFound+2, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "404")))
	require.Equal(t, ok+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodPost, "200")),
		"an implicit WriteHeader counts as 200")

	// Both job lookups share one series keyed by the pattern, not the raw path.
	series := testutil.CollectAndCount(httpRequestDurationSeconds)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/c", nil))
	require.Equal(t, series, testutil.CollectAndCount(httpRequestDurationSeconds))
}
