package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/stock-sentiment-crawler/internal/crawler"
)

// JobStore keeps async crawl jobs in process memory. Finished jobs are dropped
// once they are older than the retention window; a zero window keeps them forever.
type JobStore struct {
	mu        sync.RWMutex
	jobs      map[string]crawler.Job
	retention time.Duration
	now       func() time.Time
}

// JobStoreOption customizes a JobStore.
type JobStoreOption func(*JobStore)

// WithRetention prunes finished jobs older than d.
func WithRetention(d time.Duration) JobStoreOption {
	return func(s *JobStore) { s.retention = d }
}

// WithClock sets the time source used for job timestamps and pruning.
func WithClock(c crawler.Clock) JobStoreOption {
	return func(s *JobStore) {
		if c != nil {
			s.now = c.Now
		}
	}
}

// NewJobStore constructs a JobStore.
func NewJobStore(opts ...JobStoreOption) *JobStore {
	s := &JobStore{
		jobs: make(map[string]crawler.Job),
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateJob stores a new job and prunes expired ones.
func (s *JobStore) CreateJob(_ context.Context, job crawler.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	s.pruneLocked()
	s.jobs[job.ID] = job
	return nil
}

// UpdateJobStatus moves a job to status. Updates to a finished job are ignored.
func (s *JobStore) UpdateJobStatus(
	_ context.Context,
	jobID string,
	status crawler.JobStatus,
	stage crawler.Stage,
	errText string,
) error {
	return s.mutate(jobID, func(job *crawler.Job) {
		if job.Status.Terminal() {
			return
		}
		now := s.now()
		job.Status = status
		job.ErrorText = errText
		if stage != "" {
			job.Stage = stage
		}
		if status == crawler.JobStatusRunning && job.Started == nil {
			job.Started = &now
		}
		if status.Terminal() {
			job.Finished = &now
		}
	})
}

// SaveResult attaches the crawl response to a job.
func (s *JobStore) SaveResult(_ context.Context, jobID string, result crawler.CrawlResponse) error {
	return s.mutate(jobID, func(job *crawler.Job) {
		job.Result = &result
	})
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (crawler.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return crawler.Job{}, fmt.Errorf("job %s: %w", jobID, crawler.ErrNotFound)
	}
	return job, nil
}

// Len returns the number of jobs held.
func (s *JobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

func (s *JobStore) mutate(jobID string, fn func(*crawler.Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("job %s: %w", jobID, crawler.ErrNotFound)
	}
	fn(&job)
	s.jobs[jobID] = job
	return nil
}

func (s *JobStore) pruneLocked() {
	if s.retention <= 0 {
		return
	}
	cutoff := s.now().Add(-s.retention)
	for id, job := range s.jobs {
		if job.Finished != nil && job.Finished.Before(cutoff) {
			delete(s.jobs, id)
		}
	}
}
