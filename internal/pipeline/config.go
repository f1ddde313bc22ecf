// Package pipeline runs the crawl, analysis and report workflows over injected collaborators.
package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/stock-sentiment-crawler/internal/analysis"
	"github.com/JakeFAU/stock-sentiment-crawler/internal/clock/system"
	"github.com/JakeFAU/stock-sentiment-crawler/internal/crawler"
	"github.com/JakeFAU/stock-sentiment-crawler/internal/extract"
)

// Default source URL templates. {stock_code}, {stock_name} and {page} are expanded per page.
const (
	DefaultPostsURL   = "https://guba.eastmoney.com/list,{stock_code}.html?page={page}"
	DefaultNewsURL    = "http://so.eastmoney.com/News/s?keyword={stock_name}&pageindex={page}"
	DefaultReportsURL = "http://so.eastmoney.com/Yanbao/s?keyword={stock_name}&pageindex={page}"
)

// Defaults for analysis and report collection.
const (
	DefaultPostLimit       = 100
	DefaultNewsLimit       = 50
	DefaultSamplePosts     = 5
	DefaultSampleNews      = 3
	DefaultDocPrefix       = "reports"
	DefaultDocMaxBytes     = 10 << 20
	DefaultDownloadTimeout = 30 * time.Second
	DefaultURLTTL          = time.Hour
	DefaultMaxReports      = 10
	DefaultContentType     = "application/pdf"
)

// Config gathers every knob the workflows read.
type Config struct {
	PostsURL   string
	NewsURL    string
	ReportsURL string

	MaxPages     int
	PageSize     int
	PersistBatch int
	PageDelay    time.Duration
	DetailDelay  time.Duration

	PostLimit int
	NewsLimit int

	DocPrefix       string
	DocMaxBytes     int64
	DownloadTimeout time.Duration
	URLTTL          time.Duration
	MaxReports      int
	ContentType     string
}

// DefaultConfig returns the stock behavior.
func DefaultConfig() Config {
	return Config{}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.PostsURL == "" {
		c.PostsURL = DefaultPostsURL
	}
	if c.NewsURL == "" {
		c.NewsURL = DefaultNewsURL
	}
	if c.ReportsURL == "" {
		c.ReportsURL = DefaultReportsURL
	}
	if c.MaxPages <= 0 {
		c.MaxPages = crawler.DefaultMaxPages
	}
	if c.PageSize <= 0 {
		c.PageSize = crawler.DefaultPageSize
	}
	if c.PersistBatch <= 0 {
		c.PersistBatch = crawler.DefaultPersistBatch
	}
	if c.PageDelay < 0 {
		c.PageDelay = 0
	}
	if c.DetailDelay < 0 {
		c.DetailDelay = 0
	}
	if c.PostLimit <= 0 {
		c.PostLimit = DefaultPostLimit
	}
	if c.NewsLimit <= 0 {
		c.NewsLimit = DefaultNewsLimit
	}
	if c.DocPrefix == "" {
		c.DocPrefix = DefaultDocPrefix
	}
	if c.DocMaxBytes <= 0 {
		c.DocMaxBytes = DefaultDocMaxBytes
	}
	if c.DownloadTimeout <= 0 {
		c.DownloadTimeout = DefaultDownloadTimeout
	}
	if c.URLTTL <= 0 {
		c.URLTTL = DefaultURLTTL
	}
	if c.MaxReports <= 0 {
		c.MaxReports = DefaultMaxReports
	}
	if c.ContentType == "" {
		c.ContentType = DefaultContentType
	}
	return c
}

// PageFetcher is the retrying fetcher the workflows pull pages through.
type PageFetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
	Download(ctx context.Context, url string, maxBytes int64, timeout time.Duration) ([]byte, error)
}

// Deps are the collaborators shared by the workflows. Unused fields may be nil.
type Deps struct {
	Fetcher    PageFetcher
	Extractor  extract.Extractor
	Records    crawler.RecordStore
	Documents  crawler.DocumentIndex
	Blobs      crawler.BlobStore
	Scorer     crawler.Scorer
	Aggregator *analysis.Aggregator
	Hasher     crawler.Hasher
	IDs        crawler.IDGenerator
	Pauser     crawler.Pauser
	Clock      crawler.Clock
	Logger     *zap.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Pauser == nil {
		d.Pauser = crawler.TimerPauser{}
	}
	if d.Clock == nil {
		d.Clock = system.New()
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Aggregator == nil {
		d.Aggregator = analysis.New(analysis.Config{})
	}
	return d
}
