package sentiment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/stock-sentiment-crawler/internal/crawler"
	"github.com/JakeFAU/stock-sentiment-crawler/internal/metrics"
)

// EnrichResult summarizes one Enrich call.
type EnrichResult struct {
	Scored        int `json:"scored"`
	Defaulted     int `json:"defaulted"`
	Skipped       int `json:"skipped"`
	Committed     int `json:"committed"`
	FailedBatches int `json:"failed_batches"`
}

// Enricher attaches sentiment scores to stored records.
type Enricher struct {
	scorer    crawler.Scorer
	store     crawler.RecordStore
	batchSize int
	logger    *zap.Logger
}

// NewEnricher builds an Enricher. A nil scorer scores everything neutral.
func NewEnricher(scorer crawler.Scorer, store crawler.RecordStore, batchSize int, logger *zap.Logger) *Enricher {
	if batchSize <= 0 {
		batchSize = crawler.DefaultEnrichBatch
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{
		scorer:    scorer,
		store:     store,
		batchSize: batchSize,
		logger:    logger.Named("enricher"),
	}
}

// Enrich scores records in place, group by group, committing each group with one store update.
// The in-memory score is kept even when the group's write fails.
// Only context cancellation is returned as an error.
func (e *Enricher) Enrich(ctx context.Context, kind crawler.RecordKind, records []crawler.SourceRecord) (EnrichResult, error) {
	var res EnrichResult
	batchNo := 0
	for start := 0; start < len(records); start += e.batchSize {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("enrich %s: %w", kind, err)
		}
		end := min(start+e.batchSize, len(records))
		batchNo++

		updates := make([]crawler.ScoreUpdate, 0, end-start)
		for i := start; i < end; i++ {
			rec := &records[i]
			if rec.ID == "" {
				res.Skipped++
				continue
			}
			score, modeled := e.scoreText(ctx, rec.Title)
			if modeled {
				res.Scored++
			} else {
				res.Defaulted++
			}
			rec.SentimentScore = &score
			updates = append(updates, crawler.ScoreUpdate{ID: rec.ID, Score: score})
		}
		if len(updates) == 0 {
			continue
		}

		err := e.store.UpdateScores(ctx, kind, updates)
		metrics.ObservePersistBatch(string(kind), "update_scores", len(updates), err)
		if err != nil {
			res.FailedBatches++
			e.logger.Error("score batch write failed", zap.Error(&crawler.PersistenceError{
				Collection: string(kind),
				Batch:      batchNo,
				Size:       len(updates),
				Err:        err,
			}))
			continue
		}
		res.Committed += len(updates)
	}
	return res, nil
}

// scoreText returns a score in [0,1] and whether the model produced it.
func (e *Enricher) scoreText(ctx context.Context, text string) (float64, bool) {
	if strings.TrimSpace(text) == "" || e.scorer == nil {
		metrics.ObserveSentiment("default")
		return crawler.NeutralScore, false
	}
	p, err := e.scorer.Score(ctx, text)
	if err != nil {
		if !errors.Is(err, crawler.ErrModelUnavailable) {
			e.logger.Warn("scoring failed, using neutral score", zap.Error(err))
		}
		metrics.ObserveSentiment("default")
		return crawler.NeutralScore, false
	}
	metrics.ObserveSentiment("model")
	return Normalize(p), true
}

// Normalize rounds p to 3 decimals and clamps it to [0,1].
func Normalize(p float64) float64 {
	if math.IsNaN(p) {
		return crawler.NeutralScore
	}
	p = math.Round(p*1000) / 1000
	return math.Max(0, math.Min(1, p))
}
