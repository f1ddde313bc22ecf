package postgres

import (
	"context"
	"fmt"

	"github.com/JakeFAU/stock-sentiment-crawler/internal/crawler"
)

// DocumentStore implements crawler.DocumentIndex. Paths are unique; re-adding a path replaces the row.
type DocumentStore struct {
	pool  Pool
	table string
}

// NewDocumentStore builds a DocumentStore on an existing pool.
func NewDocumentStore(pool Pool, table string) (*DocumentStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := checkTable(table, "documents")
	if err != nil {
		return nil, err
	}
	return &DocumentStore{pool: pool, table: table}, nil
}

// AddDocument upserts a document row keyed by path.
func (s *DocumentStore) AddDocument(ctx context.Context, doc crawler.Document) error {
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	stock_name,
	title,
	path,
	source_url,
	blob_uri,
	content_hash,
	size_bytes,
	downloaded_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (path) DO UPDATE SET
	id = EXCLUDED.id,
	stock_name = EXCLUDED.stock_name,
	title = EXCLUDED.title,
	source_url = EXCLUDED.source_url,
	blob_uri = EXCLUDED.blob_uri,
	content_hash = EXCLUDED.content_hash,
	size_bytes = EXCLUDED.size_bytes,
	downloaded_at = EXCLUDED.downloaded_at`, s.table)

	_, err := s.pool.Exec(ctx, query,
		doc.ID,
		doc.StockName,
		doc.Title,
		doc.Path,
		doc.SourceURL,
		doc.BlobURI,
		doc.ContentHash,
		doc.SizeBytes,
		doc.DownloadedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert document %s: %w", doc.Path, err)
	}
	return nil
}

// FindByPath matches paths with the case-insensitive regex operator.
func (s *DocumentStore) FindByPath(ctx context.Context, pattern string) ([]crawler.Document, error) {
	query := fmt.Sprintf(`
SELECT id, stock_name, title, path, source_url, blob_uri, content_hash, size_bytes, downloaded_at
FROM %s
WHERE path ~* $1
ORDER BY downloaded_at DESC`, s.table)

	rows, err := s.pool.Query(ctx, query, pattern)
	if err != nil {
		return nil, fmt.Errorf("find documents: %w", err)
	}
	defer rows.Close()

	var docs []crawler.Document
	for rows.Next() {
		var doc crawler.Document
		if err := rows.Scan(
			&doc.ID,
			&doc.StockName,
			&doc.Title,
			&doc.Path,
			&doc.SourceURL,
			&doc.BlobURI,
			&doc.ContentHash,
			&doc.SizeBytes,
			&doc.DownloadedAt,
		); err != nil {
			return nil, fmt.Errorf("scan document row: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read document rows: %w", err)
	}
	return docs, nil
}
