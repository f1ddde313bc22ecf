// Package cmd defines the sentiment crawler CLI.
//
// Architecture overview:
//   - serve: internal/api.Server exposes the synchronous crawl, analysis and report routes plus the async job
//     routes. Async crawls flow through a bounded in-memory queue (crawler.queue_depth) to a fixed worker pool
//     (crawler.concurrency); a full queue answers 503 instead of blocking.
//   - Fetch pipeline: every page goes through fetcher.RateLimited, which adds browser headers, waits on the
//     optional per-host limiter and retries with a fixed delay. The transport is Colly by default or headless
//     Chrome (crawler.backend=headless) for list pages rendered client side.
//   - Persistence: posts and news go to Postgres when database.dsn is set and to memory otherwise. Report PDFs go to
//     the configured BlobStore (memory/local/GCS) and are indexed by path for listing.
//   - Fanout: a crawl.completed event is published per async job to Pub/Sub when pubsub.topic_name is set.
//   - Plumbing: Viper reads SENTIMENT_* env vars and an optional file; zap logs carry job IDs and stages;
//     Prometheus metrics are served on /metrics; OpenTelemetry spans wrap each job.
//
// One-shot commands (crawl, analyze, reports) build the same graph and print the workflow response as JSON.
package cmd
