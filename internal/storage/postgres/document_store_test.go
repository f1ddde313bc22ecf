package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/stock-sentiment-crawler/internal/crawler"
)

func TestDocumentStoreAddDocument(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewDocumentStore(mock, "")
	require.NoError(t, err)

	at := time.Date(2024, 10, 18, 9, 0, 0, 0, time.UTC)
	doc := crawler.Document{
		ID:           "doc-1",
		StockName:    "招商银行",
		Title:        "深度报告.pdf",
		Path:         "reports/招商银行/深度报告.pdf",
		SourceURL:    "http://pdf.test/1.pdf",
		BlobURI:      "gs://bucket/reports/招商银行/深度报告.pdf",
		ContentHash:  "abc",
		SizeBytes:    1024,
		DownloadedAt: at,
	}
	mock.ExpectExec(`INSERT INTO documents`).
		WithArgs(doc.ID, doc.StockName, doc.Title, doc.Path, doc.SourceURL, doc.BlobURI, doc.ContentHash, doc.SizeBytes, doc.DownloadedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.AddDocument(context.Background(), doc))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentStoreFindByPath(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewDocumentStore(mock, "report_documents")
	require.NoError(t, err)

	at := time.Date(2024, 10, 18, 9, 0, 0, 0, time.UTC)
	pattern := `^(reports/招商银行/).*\.pdf$`
	mock.ExpectQuery(`FROM report_documents\s+WHERE path ~\* \$1`).
		WithArgs(pattern).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "stock_name", "title", "path", "source_url", "blob_uri", "content_hash", "size_bytes", "downloaded_at",
		}).AddRow("doc-1", "招商银行", "a.pdf", "reports/招商银行/a.pdf", "http://pdf.test/a.pdf", "memory://a", "h", int64(3), at))

	docs, err := store.FindByPath(context.Background(), pattern)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "reports/招商银行/a.pdf", docs[0].Path)
	require.Equal(t, int64(3), docs[0].SizeBytes)
	require.NoError(t, mock.ExpectationsWereMet())
}
