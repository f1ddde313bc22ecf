package crawler

import (
	"context"
	"time"
)

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// RecordStore is the structured store for posts and news.
type RecordStore interface {
	// InsertBatch writes all records as one atomic operation and returns their IDs in order.
	InsertBatch(ctx context.Context, kind RecordKind, records []SourceRecord) ([]string, error)
	// UpdateScores writes all scores as one atomic operation.
	UpdateScores(ctx context.Context, kind RecordKind, updates []ScoreUpdate) error
	// Query returns records of one kind matching the stock and date range.
	Query(ctx context.Context, query RecordQuery) ([]SourceRecord, error)
}

// DocumentIndex records downloaded documents and finds them by path pattern.
type DocumentIndex interface {
	AddDocument(ctx context.Context, doc Document) error
	// FindByPath returns documents whose path matches the case-insensitive regular expression.
	FindByPath(ctx context.Context, pattern string) ([]Document, error)
}

// BlobStore writes raw artifacts and issues time-limited URLs for them.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
	SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)
}

// Scorer returns the positive-class probability for a piece of text.
type Scorer interface {
	Score(ctx context.Context, text string) (float64, error)
}

// JobStore persists asynchronous job metadata.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, stage Stage, errText string) error
	SaveResult(ctx context.Context, jobID string, result CrawlResponse) error
	GetJob(ctx context.Context, jobID string) (Job, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Queue provides enqueue/dequeue semantics for crawl jobs.
type Queue interface {
	Enqueue(ctx context.Context, job QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Limiter throttles outbound requests per host.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// Hasher computes digests for deduplication/integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job and record IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
