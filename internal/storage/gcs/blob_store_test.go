package gcs

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func newTestStore(t *testing.T, handler http.Handler, cfg Config) *BlobStore {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	if cfg.Bucket == "" {
		cfg.Bucket = "test-bucket"
	}
	store, err := New(client, cfg)
	require.NoError(t, err)
	return store
}

func TestNewRequiresClientAndBucket(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	defer client.Close()
	_, err = New(client, Config{})
	require.Error(t, err)
}

func TestPutObjectUploadsBytes(t *testing.T) {
	t.Parallel()

	objectName := "reports/招商银行/深度报告.pdf"
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/upload/storage/v1/b/test-bucket/o")
		assert.Equal(t, objectName, r.URL.Query().Get("name"))
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Contains(t, string(body), "%PDF-1.7")
		assert.Contains(t, string(body), "application/pdf")
		fmt.Fprintf(w, `{"name": %q, "bucket": "test-bucket"}`, objectName)
	})
	store := newTestStore(t, handler, Config{})

	uri, err := store.PutObject(context.Background(), objectName, "application/pdf", []byte("%PDF-1.7"))
	require.NoError(t, err)
	require.Equal(t, "gs://test-bucket/"+objectName, uri)
}

func TestPutObjectServerError(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}), Config{})

	_, err := store.PutObject(context.Background(), "a.pdf", "", []byte("x"))
	require.Error(t, err)
	_, err = store.PutObject(context.Background(), " ", "", []byte("x"))
	require.ErrorContains(t, err, "path is required")
}

func TestSignedURLWithPrivateKey(t *testing.T) {
	t.Parallel()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	store := newTestStore(t, http.NotFoundHandler(), Config{
		GoogleAccessID: "crawler@example.iam.gserviceaccount.com",
		PrivateKey:     pemKey,
	})

	signed, err := store.SignedURL(context.Background(), "reports/a.pdf", time.Hour)
	require.NoError(t, err)
	u, err := url.Parse(signed)
	require.NoError(t, err)
	require.Contains(t, u.Path, "/test-bucket/reports/a.pdf")
	require.NotEmpty(t, u.Query().Get("X-Goog-Expires"))
	require.NotEmpty(t, u.Query().Get("X-Goog-Signature"))
}
