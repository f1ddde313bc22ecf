package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/stock-sentiment-crawler/internal/crawler"
)

// RecordStoreConfig names the tables holding posts and news.
type RecordStoreConfig struct {
	PostsTable string
	NewsTable  string
}

// RecordStore implements crawler.RecordStore with one table per record kind.
type RecordStore struct {
	pool   Pool
	tables map[crawler.RecordKind]string
}

var recordColumns = []string{
	"title",
	"stock_code",
	"stock_name",
	"author",
	"url",
	"read_count",
	"comment_count",
	"published_text",
	"occurred_at",
	"crawled_at",
	"sentiment_score",
}

// NewRecordStore builds a RecordStore on an existing pool.
func NewRecordStore(pool Pool, cfg RecordStoreConfig) (*RecordStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	posts, err := checkTable(cfg.PostsTable, "posts")
	if err != nil {
		return nil, err
	}
	news, err := checkTable(cfg.NewsTable, "news")
	if err != nil {
		return nil, err
	}
	return &RecordStore{
		pool:   pool,
		tables: map[crawler.RecordKind]string{crawler.KindPost: posts, crawler.KindNews: news},
	}, nil
}

func (s *RecordStore) table(kind crawler.RecordKind) (string, error) {
	table, ok := s.tables[kind]
	if !ok {
		return "", fmt.Errorf("unknown record kind %q", kind)
	}
	return table, nil
}

// InsertBatch inserts all records with one multi-row statement inside a transaction.
func (s *RecordStore) InsertBatch(ctx context.Context, kind crawler.RecordKind, records []crawler.SourceRecord) ([]string, error) {
	if len(records) == 0 {
		return nil, nil
	}
	table, err := s.table(kind)
	if err != nil {
		return nil, err
	}

	values := make([]string, 0, len(records))
	args := make([]any, 0, len(records)*len(recordColumns))
	for i, rec := range records {
		placeholders := make([]string, len(recordColumns))
		for j := range recordColumns {
			placeholders[j] = fmt.Sprintf("$%d", i*len(recordColumns)+j+1)
		}
		values = append(values, "("+strings.Join(placeholders, ",")+")")
		args = append(args,
			rec.Title,
			rec.StockCode,
			rec.StockName,
			rec.Author,
			rec.URL,
			rec.ReadCount,
			rec.CommentCount,
			rec.PublishedText,
			rec.OccurredAt,
			rec.CrawledAt,
			rec.SentimentScore,
		)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s RETURNING id::text",
		table, strings.Join(recordColumns, ", "), strings.Join(values, ", "))

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin insert: %w", err)
	}
	defer rollback(ctx, tx)

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", table, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", table, err)
	}
	if len(ids) != len(records) {
		return nil, fmt.Errorf("insert %s: got %d ids for %d records", table, len(ids), len(records))
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit insert: %w", err)
	}
	return ids, nil
}

// UpdateScores sets every score in one statement. Unknown IDs abort the whole update.
func (s *RecordStore) UpdateScores(ctx context.Context, kind crawler.RecordKind, updates []crawler.ScoreUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	table, err := s.table(kind)
	if err != nil {
		return err
	}
	ids := make([]string, len(updates))
	scores := make([]float64, len(updates))
	for i, u := range updates {
		ids[i] = u.ID
		scores[i] = u.Score
	}
	query := fmt.Sprintf(`
UPDATE %s AS t
SET sentiment_score = u.score
FROM unnest($1::text[], $2::float8[]) AS u(id, score)
WHERE t.id::text = u.id`, table)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin update: %w", err)
	}
	defer rollback(ctx, tx)

	tag, err := tx.Exec(ctx, query, ids, scores)
	if err != nil {
		return fmt.Errorf("update %s scores: %w", table, err)
	}
	if tag.RowsAffected() != int64(len(updates)) {
		return fmt.Errorf("update %s scores: %d of %d rows matched: %w",
			table, tag.RowsAffected(), len(updates), crawler.ErrNotFound)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit update: %w", err)
	}
	return nil
}

// Query returns records ordered by occurrence date. A non-positive limit returns all matches.
func (s *RecordStore) Query(ctx context.Context, q crawler.RecordQuery) ([]crawler.SourceRecord, error) {
	table, err := s.table(q.Kind)
	if err != nil {
		return nil, err
	}
	var limit any
	if q.Limit > 0 {
		limit = q.Limit
	}
	query := fmt.Sprintf(`
SELECT id::text, %s
FROM %s
WHERE stock_code = $1 AND occurred_at >= $2 AND occurred_at <= $3
ORDER BY occurred_at, id
LIMIT $4`, strings.Join(recordColumns, ", "), table)

	rows, err := s.pool.Query(ctx, query, q.StockCode, q.From, q.To, limit)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	out := []crawler.SourceRecord{}
	for rows.Next() {
		rec := crawler.SourceRecord{Kind: q.Kind}
		if err := rows.Scan(
			&rec.ID,
			&rec.Title,
			&rec.StockCode,
			&rec.StockName,
			&rec.Author,
			&rec.URL,
			&rec.ReadCount,
			&rec.CommentCount,
			&rec.PublishedText,
			&rec.OccurredAt,
			&rec.CrawledAt,
			&rec.SentimentScore,
		); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", table, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s rows: %w", table, err)
	}
	return out, nil
}
