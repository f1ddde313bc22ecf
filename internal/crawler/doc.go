// Package crawler holds the domain model of the stock sentiment pipeline:
// source records, crawl job configuration, the collaborator interfaces,
// the error taxonomy, and the small sequential helpers (retry policy,
// pacing, deduplication) the pipeline is assembled from.
package crawler
