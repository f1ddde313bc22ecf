// Package dispatcher accepts async crawl jobs and fans them out to workers.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/stock-sentiment-crawler/internal/crawler"
	"github.com/JakeFAU/stock-sentiment-crawler/internal/worker"
)

// Options carries the collaborators used to submit and cancel jobs.
type Options struct {
	Jobs    crawler.JobStore
	IDs     crawler.IDGenerator
	Clock   crawler.Clock
	Cancels *worker.Cancels
	Logger  *zap.Logger
}

// Dispatcher fans out queue work to a pool of workers.
type Dispatcher struct {
	queue   crawler.Queue
	workers []*worker.Worker
	opts    Options
	logger  *zap.Logger
}

// New creates a Dispatcher.
func New(queue crawler.Queue, workers []*worker.Worker, opts Options) *Dispatcher {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Cancels == nil {
		opts.Cancels = worker.NewCancels()
	}
	return &Dispatcher{
		queue:   queue,
		workers: workers,
		opts:    opts,
		logger:  opts.Logger.Named("dispatcher"),
	}
}

// Run starts all workers and blocks until the context finishes.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, item crawler.QueueItem) error {
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// Submit records a queued job and enqueues it. A job that cannot be enqueued is marked failed.
func (d *Dispatcher) Submit(ctx context.Context, req crawler.CrawlRequest) (string, error) {
	jobID, err := d.opts.IDs.NewID()
	if err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}
	now := d.now()
	job := crawler.Job{
		ID:        jobID,
		Status:    crawler.JobStatusQueued,
		Submitted: now,
		Request:   req,
	}
	if err := d.opts.Jobs.CreateJob(ctx, job); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	item := crawler.QueueItem{JobID: jobID, Request: req, Attempt: 1, Submitted: now.Unix()}
	if err := d.Enqueue(ctx, item); err != nil {
		if uerr := d.opts.Jobs.UpdateJobStatus(ctx, jobID, crawler.JobStatusFailed, crawler.StageFailed, err.Error()); uerr != nil {
			d.logger.Error("mark unqueued job failed", zap.String("job_id", jobID), zap.Error(uerr))
		}
		return jobID, err
	}
	d.logger.Info("job submitted", zap.String("job_id", jobID), zap.String("stock_code", req.StockCode))
	return jobID, nil
}

// Cancel marks a job canceled and stops it if a worker is running it.
// Canceling a finished job returns crawler.ErrJobFinished.
func (d *Dispatcher) Cancel(ctx context.Context, jobID string) (crawler.Job, error) {
	job, err := d.opts.Jobs.GetJob(ctx, jobID)
	if err != nil {
		return crawler.Job{}, err
	}
	if job.Status.Terminal() {
		return job, fmt.Errorf("cancel %s: %w", jobID, crawler.ErrJobFinished)
	}
	if err := d.opts.Jobs.UpdateJobStatus(ctx, jobID, crawler.JobStatusCanceled, crawler.StageFailed, "canceled by client"); err != nil {
		return crawler.Job{}, fmt.Errorf("cancel %s: %w", jobID, err)
	}
	running := d.opts.Cancels.Cancel(jobID)
	d.logger.Info("job canceled", zap.String("job_id", jobID), zap.Bool("was_running", running))
	return d.opts.Jobs.GetJob(ctx, jobID)
}

func (d *Dispatcher) now() time.Time {
	if d.opts.Clock == nil {
		return time.Now().UTC()
	}
	return d.opts.Clock.Now()
}
