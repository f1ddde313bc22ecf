// Package worker runs queued crawl jobs.
package worker

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/stock-sentiment-crawler/internal/crawler"
	"github.com/JakeFAU/stock-sentiment-crawler/internal/metrics"
	"github.com/JakeFAU/stock-sentiment-crawler/internal/pipeline"
)

// EventCrawlCompleted names the completion event sent to the publisher.
const EventCrawlCompleted = "crawl.completed"

// Runner executes one crawl and reports stage transitions.
type Runner interface {
	CrawlObserved(ctx context.Context, req crawler.CrawlRequest, observe pipeline.StageObserver) (crawler.CrawlResponse, error)
}

// Config controls Worker behavior.
type Config struct {
	// Topic receives completion events; empty disables publishing.
	Topic      string
	JobTimeout time.Duration
}

// CompletionEvent is published when a job reaches a terminal status.
type CompletionEvent struct {
	JobID      string            `json:"job_id"`
	Status     crawler.JobStatus `json:"status"`
	StockCode  string            `json:"stock_code"`
	Posts      int               `json:"posts"`
	News       int               `json:"news"`
	ErrorText  string            `json:"error_text,omitempty"`
	FinishedAt string            `json:"finished_at"`
}

// Worker consumes queue items and runs them through the crawl pipeline.
type Worker struct {
	queue     crawler.Queue
	jobs      crawler.JobStore
	runner    Runner
	publisher crawler.Publisher
	clock     crawler.Clock
	cancels   *Cancels
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker. publisher may be nil.
func New(
	queue crawler.Queue,
	jobs crawler.JobStore,
	runner Runner,
	publisher crawler.Publisher,
	clock crawler.Clock,
	cancels *Cancels,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cancels == nil {
		cancels = NewCancels()
	}
	return &Worker{
		queue:     queue,
		jobs:      jobs,
		runner:    runner,
		publisher: publisher,
		clock:     clock,
		cancels:   cancels,
		cfg:       cfg,
		logger:    logger.Named("worker"),
	}
}

// Run blocks, consuming queue items until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job", zap.String("job_id", item.JobID))
		w.processJob(ctx, item)
	}
}

func (w *Worker) processJob(ctx context.Context, item crawler.QueueItem) {
	logger := w.logger.With(zap.String("job_id", item.JobID))

	job, err := w.jobs.GetJob(ctx, item.JobID)
	if err != nil {
		logger.Error("load job failed", zap.Error(err))
		return
	}
	if job.Status != crawler.JobStatusQueued {
		logger.Info("skipping job", zap.String("status", string(job.Status)))
		return
	}

	ctx, span := otel.Tracer("worker").Start(ctx, "crawl.job", trace.WithAttributes(
		attribute.String("job_id", item.JobID),
		attribute.String("stock_code", item.Request.StockCode),
	))
	defer span.End()

	var (
		jobCtx context.Context
		cancel context.CancelFunc
	)
	if w.cfg.JobTimeout > 0 {
		jobCtx, cancel = context.WithTimeout(ctx, w.cfg.JobTimeout)
	} else {
		jobCtx, cancel = context.WithCancel(ctx)
	}
	// Tracked before the running update so a cancel arriving in between is either
	// delivered to jobCtx or visible in the store below.
	w.cancels.track(item.JobID, cancel)
	defer func() {
		w.cancels.release(item.JobID)
		cancel()
	}()

	if err := w.jobs.UpdateJobStatus(ctx, item.JobID, crawler.JobStatusRunning, crawler.StageValidating, ""); err != nil {
		logger.Error("update job status failed", zap.Error(err))
		return
	}
	current, err := w.jobs.GetJob(ctx, item.JobID)
	if err != nil {
		logger.Error("reload job failed", zap.Error(err))
		return
	}
	if current.Status.Terminal() {
		logger.Info("job finished before start", zap.String("status", string(current.Status)))
		return
	}

	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	observe := func(stage crawler.Stage) {
		if err := w.jobs.UpdateJobStatus(ctx, item.JobID, crawler.JobStatusRunning, stage, ""); err != nil {
			logger.Warn("stage update failed", zap.String("stage", string(stage)), zap.Error(err))
		}
	}
	resp, runErr := w.runner.CrawlObserved(jobCtx, item.Request, observe)

	// The outcome is recorded even when the worker is shutting down.
	final := context.WithoutCancel(ctx)
	if err := w.jobs.SaveResult(final, item.JobID, resp); err != nil {
		logger.Error("save result failed", zap.Error(err))
	}

	status, stage, errText := w.outcome(ctx, jobCtx, resp, runErr)
	if err := w.jobs.UpdateJobStatus(final, item.JobID, status, stage, errText); err != nil {
		logger.Error("final job status update failed", zap.Error(err))
	}
	metrics.ObserveJob(string(status))
	span.SetAttributes(attribute.String("status", string(status)))
	if status != crawler.JobStatusSucceeded {
		span.SetStatus(codes.Error, errText)
	}
	logger.Info("job finished", zap.String("status", string(status)), zap.String("error", errText))

	w.publish(final, item, status, resp, errText, logger)
}

// outcome maps the crawl result and the job context to a terminal status.
func (w *Worker) outcome(
	parent, jobCtx context.Context,
	resp crawler.CrawlResponse,
	runErr error,
) (crawler.JobStatus, crawler.Stage, string) {
	switch {
	case errors.Is(jobCtx.Err(), context.DeadlineExceeded):
		return crawler.JobStatusFailed, crawler.StageFailed, "job timeout exceeded"
	case jobCtx.Err() != nil && parent.Err() == nil:
		return crawler.JobStatusCanceled, crawler.StageFailed, "canceled by client"
	case parent.Err() != nil:
		return crawler.JobStatusFailed, crawler.StageFailed, "worker shutting down"
	case runErr != nil:
		return crawler.JobStatusFailed, crawler.StageFailed, runErr.Error()
	case resp.Status != crawler.StatusSuccess:
		return crawler.JobStatusFailed, crawler.StageFailed, resp.Message
	default:
		return crawler.JobStatusSucceeded, crawler.StageDone, ""
	}
}

func (w *Worker) publish(
	ctx context.Context,
	item crawler.QueueItem,
	status crawler.JobStatus,
	resp crawler.CrawlResponse,
	errText string,
	logger *zap.Logger,
) {
	if w.cfg.Topic == "" || w.publisher == nil {
		return
	}
	event := CompletionEvent{
		JobID:      item.JobID,
		Status:     status,
		StockCode:  item.Request.StockCode,
		ErrorText:  errText,
		FinishedAt: w.now().Format(time.RFC3339),
	}
	if resp.Data != nil {
		event.Posts = resp.Data.Posts.Count
		event.News = resp.Data.News.Count
	}
	id, err := w.publisher.Publish(ctx, w.cfg.Topic, event)
	if err != nil {
		logger.Warn("publish completion failed", zap.Error(err))
		return
	}
	logger.Debug("completion published", zap.String("message_id", id))
}

func (w *Worker) now() time.Time {
	if w.clock == nil {
		return time.Now().UTC()
	}
	return w.clock.Now()
}
