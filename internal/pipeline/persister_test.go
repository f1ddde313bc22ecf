package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/stock-sentiment-crawler/internal/crawler"
)

func records(n int) []crawler.SourceRecord {
	out := make([]crawler.SourceRecord, n)
	for i := range out {
		out[i] = crawler.SourceRecord{Title: fmt.Sprintf("t%d", i)}
	}
	return out
}

func TestPersistCommitsInGroups(t *testing.T) {
	t.Parallel()

	store := &failingRecordStore{}
	recs := records(23)
	res := NewPersister(store, zap.NewNop()).Persist(context.Background(), crawler.KindPost, recs, 10)

	require.Equal(t, []int{10, 10, 3}, store.sizes, "exactly three commits")
	require.Equal(t, PersistResult{Requested: 23, Committed: 23, Batches: 3}, res)
	require.Equal(t, "id-1", recs[0].ID)
	require.Equal(t, "id-23", recs[22].ID)
}

func TestPersistContinuesAfterFailedGroup(t *testing.T) {
	t.Parallel()

	store := &failingRecordStore{failOn: map[int]bool{2: true}}
	recs := records(12)
	res := NewPersister(store, nil).Persist(context.Background(), crawler.KindNews, recs, 5)

	require.Equal(t, 3, res.Batches)
	require.Equal(t, 1, res.FailedBatches)
	require.Equal(t, 7, res.Committed)
	require.NotEmpty(t, recs[0].ID)
	require.Empty(t, recs[5].ID, "records of the failed group keep no ID")
	require.NotEmpty(t, recs[10].ID)
}

func TestPersistSkipsUntitledAndDefaultsBatchSize(t *testing.T) {
	t.Parallel()

	store := &failingRecordStore{}
	recs := records(7)
	recs[3].Title = "  "
	res := NewPersister(store, nil).Persist(context.Background(), crawler.KindPost, recs, 0)

	require.Equal(t, 1, res.Skipped)
	require.Equal(t, 6, res.Committed)
	require.Equal(t, []int{crawler.DefaultPersistBatch, 1}, store.sizes)
	require.Empty(t, recs[3].ID)
}

func TestPersistStopsWhenContextDone(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := &failingRecordStore{}
	res := NewPersister(store, nil).Persist(ctx, crawler.KindPost, records(3), 5)
	require.Zero(t, store.calls)
	require.Zero(t, res.Committed)
}
