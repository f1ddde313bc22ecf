// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/stock-sentiment-crawler/internal/crawler"
	"github.com/JakeFAU/stock-sentiment-crawler/internal/extract"
	"github.com/JakeFAU/stock-sentiment-crawler/internal/pipeline"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	Extractor ExtractorConfig `mapstructure:"extractor"`
	Sentiment SentimentConfig `mapstructure:"sentiment"`
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
	Documents DocumentsConfig `mapstructure:"documents"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// CrawlerConfig governs page fetching, pacing and the async job pool.
type CrawlerConfig struct {
	UserAgent             string `mapstructure:"user_agent"`
	Backend               string `mapstructure:"backend"`
	RespectRobots         bool   `mapstructure:"respect_robots"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds"`
	MaxRetries            int    `mapstructure:"max_retries"`
	RetryDelayMs          int    `mapstructure:"retry_delay_ms"`
	PageDelayMs           int    `mapstructure:"page_delay_ms"`
	DetailDelayMs         int    `mapstructure:"detail_delay_ms"`
	MaxPages              int    `mapstructure:"max_pages"`
	PageSize              int    `mapstructure:"page_size"`
	PersistBatchSize      int    `mapstructure:"persist_batch_size"`
	Concurrency           int    `mapstructure:"concurrency"`
	QueueDepth            int    `mapstructure:"queue_depth"`
	JobTimeoutSeconds     int    `mapstructure:"job_timeout_seconds"`
	// JobRetentionMinutes bounds how long finished jobs stay queryable; 0 keeps them.
	JobRetentionMinutes int `mapstructure:"job_retention_minutes"`
	// Timezone decides which calendar day a crawl belongs to.
	Timezone string `mapstructure:"timezone"`
}

// HeadlessConfig configures the chromedp transport.
type HeadlessConfig struct {
	MaxParallel   int    `mapstructure:"max_parallel"`
	NavTimeoutSec int    `mapstructure:"nav_timeout_seconds"`
	WaitSelector  string `mapstructure:"wait_selector"`
}

// RateLimitConfig configures the per-host limiter.
type RateLimitConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	DefaultRPS   float64 `mapstructure:"default_rps"`
	DefaultBurst int     `mapstructure:"default_burst"`
	// Hosts is a list because viper splits map keys on dots.
	Hosts []HostRateConfig `mapstructure:"hosts"`
}

// HostRateConfig overrides the default rate for one host.
type HostRateConfig struct {
	Host  string  `mapstructure:"host"`
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// SourcesConfig holds the page URL templates.
type SourcesConfig struct {
	PostsURL   string `mapstructure:"posts_url"`
	NewsURL    string `mapstructure:"news_url"`
	ReportsURL string `mapstructure:"reports_url"`
}

// ExtractorConfig selects the extraction strategy.
type ExtractorConfig struct {
	Mode string `mapstructure:"mode"`
}

// SentimentConfig points at the scoring service.
type SentimentConfig struct {
	Endpoint       string `mapstructure:"endpoint"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	BatchSize      int    `mapstructure:"batch_size"`
}

// AnalysisConfig bounds the analysis queries and the word cloud.
type AnalysisConfig struct {
	PostLimit     int   `mapstructure:"post_limit"`
	NewsLimit     int   `mapstructure:"news_limit"`
	WordCloudSize int   `mapstructure:"word_cloud_size"`
	Seed          int64 `mapstructure:"seed"`
}

// DocumentsConfig controls report collection.
type DocumentsConfig struct {
	Prefix                 string `mapstructure:"prefix"`
	MaxBytes               int64  `mapstructure:"max_bytes"`
	DownloadTimeoutSeconds int    `mapstructure:"download_timeout_seconds"`
	URLTTLMinutes          int    `mapstructure:"url_ttl_minutes"`
	MaxReports             int    `mapstructure:"max_reports"`
}

// StorageConfig selects the blob store.
type StorageConfig struct {
	Backend        string             `mapstructure:"backend"`
	Bucket         string             `mapstructure:"bucket"`
	ContentType    string             `mapstructure:"content_type"`
	GoogleAccessID string             `mapstructure:"google_access_id"`
	PrivateKeyFile string             `mapstructure:"private_key_file"`
	Local          LocalStorageConfig `mapstructure:"local"`
}

// LocalStorageConfig is used when storage.backend is "local".
type LocalStorageConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// DatabaseConfig controls the Postgres stores. An empty DSN selects the in-memory stores.
type DatabaseConfig struct {
	DSN            string `mapstructure:"dsn"`
	PostsTable     string `mapstructure:"posts_table"`
	NewsTable      string `mapstructure:"news_table"`
	DocumentsTable string `mapstructure:"documents_table"`
	MaxConns       int32  `mapstructure:"max_conns"`
}

// PubSubConfig holds metadata for completion notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// TracingConfig controls OpenTelemetry span creation and propagation.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Load builds a Config from an optional file plus SENTIMENT_* environment variables.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SENTIMENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 300)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")

	v.SetDefault("crawler.user_agent", crawler.DefaultUserAgent)
	v.SetDefault("crawler.backend", BackendColly)
	v.SetDefault("crawler.respect_robots", false)
	v.SetDefault("crawler.request_timeout_seconds", 10)
	v.SetDefault("crawler.max_retries", 2)
	v.SetDefault("crawler.retry_delay_ms", 2000)
	v.SetDefault("crawler.page_delay_ms", 3000)
	v.SetDefault("crawler.detail_delay_ms", 1000)
	v.SetDefault("crawler.max_pages", crawler.DefaultMaxPages)
	v.SetDefault("crawler.page_size", crawler.DefaultPageSize)
	v.SetDefault("crawler.persist_batch_size", 5)
	v.SetDefault("crawler.concurrency", 2)
	v.SetDefault("crawler.queue_depth", 32)
	v.SetDefault("crawler.job_timeout_seconds", 300)
	v.SetDefault("crawler.timezone", "Asia/Shanghai")
	v.SetDefault("crawler.job_retention_minutes", 60)

	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 20)
	v.SetDefault("headless.wait_selector", "body")

	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.default_rps", 1.0)
	v.SetDefault("rate_limit.default_burst", 1)

	v.SetDefault("sources.posts_url", pipeline.DefaultPostsURL)
	v.SetDefault("sources.news_url", pipeline.DefaultNewsURL)
	v.SetDefault("sources.reports_url", pipeline.DefaultReportsURL)
	v.SetDefault("extractor.mode", extract.ModeAuto)

	v.SetDefault("sentiment.endpoint", "")
	v.SetDefault("sentiment.timeout_seconds", 5)
	v.SetDefault("sentiment.batch_size", 10)

	v.SetDefault("analysis.post_limit", pipeline.DefaultPostLimit)
	v.SetDefault("analysis.news_limit", pipeline.DefaultNewsLimit)
	v.SetDefault("analysis.word_cloud_size", 20)
	v.SetDefault("analysis.seed", 0)

	v.SetDefault("documents.prefix", pipeline.DefaultDocPrefix)
	v.SetDefault("documents.max_bytes", pipeline.DefaultDocMaxBytes)
	v.SetDefault("documents.download_timeout_seconds", 30)
	v.SetDefault("documents.url_ttl_minutes", 60)
	v.SetDefault("documents.max_reports", pipeline.DefaultMaxReports)

	v.SetDefault("storage.backend", StorageMemory)
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.content_type", pipeline.DefaultContentType)
	v.SetDefault("storage.google_access_id", "")
	v.SetDefault("storage.private_key_file", "")
	v.SetDefault("storage.local.base_dir", "data/blobs")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.posts_table", "posts")
	v.SetDefault("database.news_table", "news")
	v.SetDefault("database.documents_table", "documents")
	v.SetDefault("database.max_conns", 4)

	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")

	v.SetDefault("tracing.enabled", true)
	v.SetDefault("tracing.service_name", "stock-sentiment-crawler")
	v.SetDefault("tracing.sample_ratio", 1.0)
}

// Page transports.
const (
	BackendColly    = "colly"
	BackendHeadless = "headless"
)

// Blob store backends.
const (
	StorageMemory = "memory"
	StorageLocal  = "local"
	StorageGCS    = "gcs"
)

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Crawler.Backend {
	case BackendColly, BackendHeadless:
	default:
		return fmt.Errorf("crawler.backend must be %q or %q, got %q", BackendColly, BackendHeadless, c.Crawler.Backend)
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.MaxPages <= 0 || c.Crawler.PageSize <= 0 {
		return fmt.Errorf("crawler.max_pages and crawler.page_size must be > 0")
	}
	if c.Crawler.PersistBatchSize <= 0 || c.Sentiment.BatchSize <= 0 {
		return fmt.Errorf("crawler.persist_batch_size and sentiment.batch_size must be > 0")
	}
	if c.Crawler.MaxRetries < 0 {
		return fmt.Errorf("crawler.max_retries must be >= 0")
	}
	if c.Crawler.Backend == BackendHeadless && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when the headless backend is selected")
	}
	if c.RateLimit.Enabled && c.RateLimit.DefaultRPS <= 0 {
		return fmt.Errorf("rate_limit.default_rps must be > 0 when rate limiting is enabled")
	}
	for i, h := range c.RateLimit.Hosts {
		if strings.TrimSpace(h.Host) == "" {
			return fmt.Errorf("rate_limit.hosts[%d].host must be set", i)
		}
	}
	switch c.Extractor.Mode {
	case extract.ModeAuto, extract.ModeStructured, extract.ModeRegex:
	default:
		return fmt.Errorf("extractor.mode %q is not supported", c.Extractor.Mode)
	}
	switch c.Storage.Backend {
	case StorageMemory:
	case StorageLocal:
		if c.Storage.Local.BaseDir == "" {
			return fmt.Errorf("storage.local.base_dir is required for the local backend")
		}
	case StorageGCS:
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be within [0, 1]")
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id is required when pubsub.topic_name is set")
	}
	return nil
}

// Pipeline converts the scattered crawl, analysis and document knobs into one pipeline.Config.
func (c Config) Pipeline() pipeline.Config {
	return pipeline.Config{
		PostsURL:        c.Sources.PostsURL,
		NewsURL:         c.Sources.NewsURL,
		ReportsURL:      c.Sources.ReportsURL,
		MaxPages:        c.Crawler.MaxPages,
		PageSize:        c.Crawler.PageSize,
		PersistBatch:    c.Crawler.PersistBatchSize,
		PageDelay:       millis(c.Crawler.PageDelayMs),
		DetailDelay:     millis(c.Crawler.DetailDelayMs),
		PostLimit:       c.Analysis.PostLimit,
		NewsLimit:       c.Analysis.NewsLimit,
		DocPrefix:       c.Documents.Prefix,
		DocMaxBytes:     c.Documents.MaxBytes,
		DownloadTimeout: seconds(c.Documents.DownloadTimeoutSeconds),
		URLTTL:          time.Duration(c.Documents.URLTTLMinutes) * time.Minute,
		MaxReports:      c.Documents.MaxReports,
		ContentType:     c.Storage.ContentType,
	}
}

// RequestTimeout bounds one page fetch.
func (c Config) RequestTimeout() time.Duration {
	return seconds(c.Crawler.RequestTimeoutSeconds)
}

// RetryDelay is the fixed pause between fetch attempts.
func (c Config) RetryDelay() time.Duration {
	return millis(c.Crawler.RetryDelayMs)
}

// JobTimeout bounds one async crawl job.
func (c Config) JobTimeout() time.Duration {
	return seconds(c.Crawler.JobTimeoutSeconds)
}

// HTTPTimeout bounds one synchronous API request.
func (c Config) HTTPTimeout() time.Duration {
	return seconds(c.Server.RequestTimeoutSeconds)
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func millis(n int) time.Duration { return time.Duration(n) * time.Millisecond }
