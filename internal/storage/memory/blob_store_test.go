package memory

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/stock-sentiment-crawler/internal/crawler"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("%PDF-1.4")
	uri, err := store.PutObject(context.Background(), "reports/招商银行/r.pdf", "application/pdf", payload)
	require.NoError(t, err)
	require.Equal(t, "memory://reports/招商银行/r.pdf", uri)

	payload[0] = 'X'
	stored, ok := store.Object("reports/招商银行/r.pdf")
	require.True(t, ok)
	require.Equal(t, "%PDF-1.4", string(stored), "stored copy must be immutable")
}

func TestBlobStoreSignedURL(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	ctx := context.Background()
	_, err := store.PutObject(ctx, "reports/a/r.pdf", "application/pdf", []byte("x"))
	require.NoError(t, err)

	signed, err := store.SignedURL(ctx, "reports/a/r.pdf", time.Hour)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(signed, "memory://reports/a/r.pdf?expires="))

	_, err = store.SignedURL(ctx, "reports/a/missing.pdf", time.Hour)
	require.ErrorIs(t, err, crawler.ErrNotFound)
}
