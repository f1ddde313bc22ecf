package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/stock-sentiment-crawler/internal/crawler"
)

func day(s string) time.Time {
	t, err := time.Parse(crawler.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestRecordStoreInsertAndQuery(t *testing.T) {
	t.Parallel()

	store := NewRecordStore()
	ctx := context.Background()
	ids, err := store.InsertBatch(ctx, crawler.KindPost, []crawler.SourceRecord{
		{Title: "a", StockCode: "600036", OccurredAt: day("2024-10-17")},
		{Title: "b", StockCode: "600036", OccurredAt: day("2024-10-18")},
		{Title: "c", StockCode: "000001", OccurredAt: day("2024-10-18")},
		{Title: "d", StockCode: "600036", OccurredAt: day("2024-10-20")},
	})
	require.NoError(t, err)
	require.Len(t, ids, 4)
	require.NotEqual(t, ids[0], ids[1])

	got, err := store.Query(ctx, crawler.RecordQuery{
		Kind: crawler.KindPost, StockCode: "600036", From: day("2024-10-17"), To: day("2024-10-18"),
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "a", got[0].Title)
	require.Equal(t, crawler.KindPost, got[0].Kind)

	limited, err := store.Query(ctx, crawler.RecordQuery{Kind: crawler.KindPost, StockCode: "600036", Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)

	news, err := store.Query(ctx, crawler.RecordQuery{Kind: crawler.KindNews})
	require.NoError(t, err)
	require.Empty(t, news)

	_, err = store.Query(ctx, crawler.RecordQuery{})
	require.Error(t, err)
}

func TestRecordStoreUpdateScoresAtomic(t *testing.T) {
	t.Parallel()

	store := NewRecordStore()
	ctx := context.Background()
	ids, err := store.InsertBatch(ctx, crawler.KindNews, []crawler.SourceRecord{{Title: "x"}, {Title: "y"}})
	require.NoError(t, err)

	err = store.UpdateScores(ctx, crawler.KindNews, []crawler.ScoreUpdate{{ID: ids[0], Score: 0.9}, {ID: "missing", Score: 0.1}})
	require.ErrorIs(t, err, crawler.ErrNotFound)

	got, err := store.Query(ctx, crawler.RecordQuery{Kind: crawler.KindNews})
	require.NoError(t, err)
	require.Nil(t, got[0].SentimentScore, "failed batch must not apply partially")

	require.NoError(t, store.UpdateScores(ctx, crawler.KindNews, []crawler.ScoreUpdate{{ID: ids[1], Score: 0.2}}))
	got, err = store.Query(ctx, crawler.RecordQuery{Kind: crawler.KindNews})
	require.NoError(t, err)
	require.Equal(t, 0.2, got[1].Score())

	*got[1].SentimentScore = 0.99
	again, err := store.Query(ctx, crawler.RecordQuery{Kind: crawler.KindNews})
	require.NoError(t, err)
	require.Equal(t, 0.2, again[1].Score(), "query returns copies")
}

func TestDocumentIndexFindByPath(t *testing.T) {
	t.Parallel()

	idx := NewDocumentIndex()
	ctx := context.Background()
	for _, p := range []string{"reports/招商银行/a.pdf", "reports/招商银行/b.PDF", "reports/招商银行/c.txt", "reports/other/d.pdf"} {
		require.NoError(t, idx.AddDocument(ctx, crawler.Document{Path: p}))
	}
	require.NoError(t, idx.AddDocument(ctx, crawler.Document{Path: "reports/招商银行/a.pdf", Title: "replaced"}))
	require.Error(t, idx.AddDocument(ctx, crawler.Document{}))

	docs, err := idx.FindByPath(ctx, `^(reports/招商银行/).*\.pdf$`)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	require.Equal(t, "replaced", docs[0].Title)

	_, err = idx.FindByPath(ctx, "(")
	require.Error(t, err)
}
