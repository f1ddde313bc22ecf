package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/stock-sentiment-crawler/internal/pipeline"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, BackendColly, cfg.Crawler.Backend)
	require.Equal(t, 2, cfg.Crawler.MaxRetries)
	require.Equal(t, 10, cfg.Crawler.MaxPages)
	require.Equal(t, 10, cfg.Crawler.PageSize)
	require.Equal(t, 5, cfg.Crawler.PersistBatchSize)
	require.Equal(t, StorageMemory, cfg.Storage.Backend)
	require.Equal(t, "auto", cfg.Extractor.Mode)
	require.Equal(t, 10*time.Second, cfg.RequestTimeout())
	require.Equal(t, 2*time.Second, cfg.RetryDelay())
	require.Equal(t, 5*time.Minute, cfg.JobTimeout())
	require.Equal(t, 60, cfg.Crawler.JobRetentionMinutes)
	require.Equal(t, 5*time.Minute, cfg.HTTPTimeout())
	require.True(t, cfg.Tracing.Enabled)

	p := cfg.Pipeline()
	require.Equal(t, pipeline.DefaultPostsURL, p.PostsURL)
	require.Equal(t, 3*time.Second, p.PageDelay)
	require.Equal(t, time.Second, p.DetailDelay)
	require.Equal(t, 100, p.PostLimit)
	require.Equal(t, 50, p.NewsLimit)
	require.Equal(t, int64(10<<20), p.DocMaxBytes)
	require.Equal(t, 30*time.Second, p.DownloadTimeout)
	require.Equal(t, time.Hour, p.URLTTL)
	require.Equal(t, "application/pdf", p.ContentType)
}

func TestLoadWithFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
crawler:
  backend: headless
  max_pages: 3
  page_delay_ms: 0
  concurrency: 6
storage:
  backend: local
  local:
    base_dir: /tmp/blobs
database:
  dsn: postgres://localhost/sentiment
  max_conns: 8
analysis:
  seed: 42
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.True(t, cfg.Auth.Enabled)
	require.Equal(t, "secret", cfg.Auth.APIKey)
	require.Equal(t, BackendHeadless, cfg.Crawler.Backend)
	require.Equal(t, 6, cfg.Crawler.Concurrency)
	require.Equal(t, "/tmp/blobs", cfg.Storage.Local.BaseDir)
	require.Equal(t, int32(8), cfg.Database.MaxConns)
	require.Equal(t, int64(42), cfg.Analysis.Seed)
	require.Equal(t, 3, cfg.Pipeline().MaxPages)
	require.Zero(t, cfg.Pipeline().PageDelay)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SENTIMENT_SERVER_PORT", "7070")
	t.Setenv("SENTIMENT_SENTIMENT_ENDPOINT", "http://model:8000/score")
	t.Setenv("SENTIMENT_CRAWLER_PAGE_SIZE", "20")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.Server.Port)
	require.Equal(t, "http://model:8000/score", cfg.Sentiment.Endpoint)
	require.Equal(t, 20, cfg.Crawler.PageSize)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "read config")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"auth", func(c *Config) { c.Auth.Enabled = true }, "auth.api_key"},
		{"backend", func(c *Config) { c.Crawler.Backend = "rod" }, "crawler.backend"},
		{"concurrency", func(c *Config) { c.Crawler.Concurrency = 0 }, "crawler.concurrency"},
		{"pages", func(c *Config) { c.Crawler.MaxPages = 0 }, "crawler.max_pages"},
		{"batch", func(c *Config) { c.Sentiment.BatchSize = 0 }, "sentiment.batch_size"},
		{"mode", func(c *Config) { c.Extractor.Mode = "xpath" }, "extractor.mode"},
		{"gcs bucket", func(c *Config) { c.Storage.Backend = StorageGCS }, "storage.bucket"},
		{"local dir", func(c *Config) { c.Storage.Backend = StorageLocal; c.Storage.Local.BaseDir = "" }, "storage.local.base_dir"},
		{"storage", func(c *Config) { c.Storage.Backend = "s3" }, "storage.backend"},
		{"pubsub", func(c *Config) { c.PubSub.TopicName = "events" }, "pubsub.project_id"},
		{"rate", func(c *Config) { c.RateLimit.Enabled = true; c.RateLimit.DefaultRPS = 0 }, "rate_limit.default_rps"},
		{"rate host", func(c *Config) { c.RateLimit.Hosts = []HostRateConfig{{RPS: 1}} }, "rate_limit.hosts[0].host"},
		{"sample ratio", func(c *Config) { c.Tracing.SampleRatio = 1.5 }, "tracing.sample_ratio"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tc.mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(), tc.want)
		})
	}
}
