package crawler

import (
	"net/http"
	"time"
)

// RecordKind distinguishes forum posts from news items.
type RecordKind string

// Record kinds; the value doubles as the collection name in the structured store.
const (
	KindPost RecordKind = "post"
	KindNews RecordKind = "news"
)

// Data types accepted by a crawl request.
const (
	DataTypePosts = "posts"
	DataTypeNews  = "news"
)

// DateLayout is the calendar date format used for OccurredAt and date ranges.
const DateLayout = "2006-01-02"

// CalendarDate returns midnight UTC of t's calendar day in t's own location.
func CalendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SourceRecord is one post or news item extracted from a source page.
type SourceRecord struct {
	ID             string     `json:"id,omitempty"`
	Kind           RecordKind `json:"kind"`
	Title          string     `json:"title"`
	StockCode      string     `json:"stock_code"`
	StockName      string     `json:"stock_name,omitempty"`
	Author         string     `json:"author"`
	URL            string     `json:"url,omitempty"`
	ReadCount      int        `json:"read_count"`
	CommentCount   int        `json:"comment_count"`
	PublishedText  string     `json:"published_text"`
	OccurredAt     time.Time  `json:"occurred_at"`
	CrawledAt      time.Time  `json:"crawled_at"`
	SentimentScore *float64   `json:"sentiment_score,omitempty"`
}

// Score returns the sentiment score or the neutral default when unset.
func (r SourceRecord) Score() float64 {
	if r.SentimentScore == nil {
		return NeutralScore
	}
	return *r.SentimentScore
}

// NeutralScore is used whenever a real sentiment score cannot be obtained.
const NeutralScore = 0.5

// CrawlJobConfig is the validated, immutable description of one crawl job.
type CrawlJobConfig struct {
	StockCode   string
	StockName   string
	DataTypes   []string
	TargetPages int
	PageSize    int
}

// Wants reports whether the job requested the given data type.
func (c CrawlJobConfig) Wants(dataType string) bool {
	for _, dt := range c.DataTypes {
		if dt == dataType {
			return true
		}
	}
	return false
}

// ScoreUpdate pairs a stored record with its new sentiment score.
type ScoreUpdate struct {
	ID    string
	Score float64
}

// RecordQuery selects stored records by stock and calendar date range (inclusive).
type RecordQuery struct {
	Kind      RecordKind
	StockCode string
	From      time.Time
	To        time.Time
	Limit     int
}

// Document is a downloaded report file indexed by its blob path.
type Document struct {
	ID           string    `json:"id"`
	StockName    string    `json:"stock_name"`
	Title        string    `json:"title"`
	Path         string    `json:"path"`
	SourceURL    string    `json:"source_url"`
	BlobURI      string    `json:"blob_uri"`
	ContentHash  string    `json:"content_hash"`
	SizeBytes    int64     `json:"size_bytes"`
	DownloadedAt time.Time `json:"downloaded_at"`
}

// JobStatus represents the lifecycle state of an asynchronous crawl job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCanceled  JobStatus = "canceled"
)

// Terminal reports whether no further transitions are allowed from s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed || s == JobStatusCanceled
}

// Job tracks an asynchronous crawl submitted through the API.
type Job struct {
	ID        string         `json:"id"`
	Status    JobStatus      `json:"status"`
	Stage     Stage          `json:"stage,omitempty"`
	Submitted time.Time      `json:"submitted_at"`
	Started   *time.Time     `json:"started_at,omitempty"`
	Finished  *time.Time     `json:"finished_at,omitempty"`
	ErrorText string         `json:"error_text,omitempty"`
	Request   CrawlRequest   `json:"request"`
	Result    *CrawlResponse `json:"result,omitempty"`
}

// Stage names a step of the crawl or analysis state machine.
type Stage string

// Pipeline stages in execution order.
const (
	StageValidating    Stage = "validating"
	StageFetchingPosts Stage = "fetching_posts"
	StageFetchingNews  Stage = "fetching_news"
	StagePersisting    Stage = "persisting"
	StageQuerying      Stage = "querying"
	StageEnriching     Stage = "enriching"
	StageAggregating   Stage = "aggregating"
	StageDone          Stage = "done"
	StageFailed        Stage = "failed"

	StageCollectingReports Stage = "collecting_reports"
)

// CrawlRequest is the client-facing crawl input.
type CrawlRequest struct {
	StockCode string   `json:"stock_code"`
	StockName string   `json:"stock_name,omitempty"`
	DataTypes []string `json:"data_types,omitempty"`
	Pages     int      `json:"pages,omitempty"`
	PageSize  int      `json:"page_size,omitempty"`
}

// Response status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusOK      = "ok"
)

// CrawlResponse is returned for every crawl request, successful or not.
type CrawlResponse struct {
	Status    string     `json:"status"`
	Message   string     `json:"message"`
	StockCode string     `json:"stock_code,omitempty"`
	Data      *CrawlData `json:"data,omitempty"`
}

// CrawlData holds the per-branch outcome of a crawl.
type CrawlData struct {
	StockCode string       `json:"stock_code"`
	StockName string       `json:"stock_name"`
	Posts     BranchResult `json:"posts"`
	News      BranchResult `json:"news"`
}

// BranchResult reports achieved counts for one data type.
type BranchResult struct {
	Count     int            `json:"count"`
	Data      []SourceRecord `json:"data"`
	Pages     int            `json:"pages"`
	Persisted int            `json:"persisted"`
	Error     string         `json:"error,omitempty"`
}

// QueueItem wraps a job ready to run.
type QueueItem struct {
	JobID     string
	Request   CrawlRequest
	Attempt   int
	Submitted int64
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL          string
	Headers      http.Header
	MaxBodyBytes int64
	Timeout      time.Duration
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}
