package pipeline

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/stock-sentiment-crawler/internal/crawler"
	"github.com/JakeFAU/stock-sentiment-crawler/internal/metrics"
)

// PersistResult summarizes one Persist call.
type PersistResult struct {
	Requested     int `json:"requested"`
	Committed     int `json:"committed"`
	Batches       int `json:"batches"`
	FailedBatches int `json:"failed_batches"`
	Skipped       int `json:"skipped"`
}

// Persister writes records in fixed-size groups, each group one atomic insert.
type Persister struct {
	store  crawler.RecordStore
	logger *zap.Logger
}

// NewPersister builds a Persister over store.
func NewPersister(store crawler.RecordStore, logger *zap.Logger) *Persister {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Persister{store: store, logger: logger.Named("persister")}
}

// Persist writes records in groups of batchSize and stores the assigned IDs back into records.
// A failed group is logged and later groups still run. Records without a title are skipped.
func (p *Persister) Persist(ctx context.Context, kind crawler.RecordKind, records []crawler.SourceRecord, batchSize int) PersistResult {
	if batchSize <= 0 {
		batchSize = crawler.DefaultPersistBatch
	}
	res := PersistResult{Requested: len(records)}

	eligible := make([]int, 0, len(records))
	for i := range records {
		if strings.TrimSpace(records[i].Title) == "" {
			res.Skipped++
			continue
		}
		eligible = append(eligible, i)
	}

	for start := 0; start < len(eligible); start += batchSize {
		if ctx.Err() != nil {
			p.logger.Warn("persist stopped", zap.String("collection", string(kind)), zap.Error(ctx.Err()))
			break
		}
		idx := eligible[start:min(start+batchSize, len(eligible))]
		batch := make([]crawler.SourceRecord, len(idx))
		for j, i := range idx {
			batch[j] = records[i]
		}
		res.Batches++

		ids, err := p.store.InsertBatch(ctx, kind, batch)
		if err == nil && len(ids) != len(batch) {
			err = errors.New("store returned a mismatched id count")
		}
		metrics.ObservePersistBatch(string(kind), "insert", len(batch), err)
		if err != nil {
			res.FailedBatches++
			p.logger.Error("batch write failed", zap.Error(&crawler.PersistenceError{
				Collection: string(kind),
				Batch:      res.Batches,
				Size:       len(batch),
				Err:        err,
			}))
			continue
		}
		for j, i := range idx {
			records[i].ID = ids[j]
		}
		res.Committed += len(batch)
	}
	return res
}
