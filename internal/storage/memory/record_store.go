package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/JakeFAU/stock-sentiment-crawler/internal/crawler"
)

// RecordStore keeps posts and news per kind. Each batch call is applied atomically.
type RecordStore struct {
	mu      sync.RWMutex
	records map[crawler.RecordKind][]crawler.SourceRecord
	index   map[string]int
	nextID  int
}

// NewRecordStore builds an empty RecordStore.
func NewRecordStore() *RecordStore {
	return &RecordStore{
		records: make(map[crawler.RecordKind][]crawler.SourceRecord),
		index:   make(map[string]int),
	}
}

// InsertBatch appends records and returns their new IDs in order.
func (s *RecordStore) InsertBatch(_ context.Context, kind crawler.RecordKind, records []crawler.SourceRecord) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, len(records))
	for i, rec := range records {
		s.nextID++
		rec.ID = strconv.Itoa(s.nextID)
		rec.Kind = kind
		s.index[rec.ID] = len(s.records[kind])
		s.records[kind] = append(s.records[kind], rec)
		ids[i] = rec.ID
	}
	return ids, nil
}

// UpdateScores sets scores for existing records. Unknown IDs fail the whole call.
func (s *RecordStore) UpdateScores(_ context.Context, kind crawler.RecordKind, updates []crawler.ScoreUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.records[kind]
	for _, u := range updates {
		i, ok := s.index[u.ID]
		if !ok || i >= len(rows) || rows[i].ID != u.ID {
			return fmt.Errorf("%s record %s: %w", kind, u.ID, crawler.ErrNotFound)
		}
	}
	for _, u := range updates {
		score := u.Score
		rows[s.index[u.ID]].SentimentScore = &score
	}
	return nil
}

// Query returns matching records ordered by OccurredAt, then insertion.
func (s *RecordStore) Query(_ context.Context, q crawler.RecordQuery) ([]crawler.SourceRecord, error) {
	if q.Kind == "" {
		return nil, errors.New("query kind is required")
	}
	from, to := crawler.CalendarDate(q.From), crawler.CalendarDate(q.To)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []crawler.SourceRecord
	for _, rec := range s.records[q.Kind] {
		if q.StockCode != "" && rec.StockCode != q.StockCode {
			continue
		}
		day := crawler.CalendarDate(rec.OccurredAt)
		if !q.From.IsZero() && day.Before(from) {
			continue
		}
		if !q.To.IsZero() && day.After(to) {
			continue
		}
		out = append(out, copyRecord(rec))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func copyRecord(rec crawler.SourceRecord) crawler.SourceRecord {
	if rec.SentimentScore != nil {
		score := *rec.SentimentScore
		rec.SentimentScore = &score
	}
	return rec
}
