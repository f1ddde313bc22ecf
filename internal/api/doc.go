// Package api hosts the HTTP server, middleware, and REST handlers. Routes:
//   - POST /v1/crawl and POST /v1/analysis run synchronously.
//   - GET /v1/reports and POST /v1/reports/crawl list and collect research reports.
//   - POST /v1/jobs/crawl plus /v1/jobs/{job_id}/status|result|cancel for async crawls.
//   - GET /healthz, /readyz for probes and GET /metrics for Prometheus scraping.
package api
