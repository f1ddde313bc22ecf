package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/stock-sentiment-crawler/internal/crawler"
)

func TestJobStoreLifecycle(t *testing.T) {
	t.Parallel()

	store := NewJobStore()
	ctx := context.Background()
	job := crawler.Job{ID: "job-1", Status: crawler.JobStatusQueued}

	require.NoError(t, store.CreateJob(ctx, job))
	require.Error(t, store.CreateJob(ctx, job), "duplicate job")

	require.NoError(t, store.UpdateJobStatus(ctx, job.ID, crawler.JobStatusRunning, crawler.StageFetchingPosts, ""))
	running, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, crawler.StageFetchingPosts, running.Stage)
	require.NotNil(t, running.Started)
	require.Nil(t, running.Finished)

	result := crawler.CrawlResponse{Status: crawler.StatusSuccess, StockCode: "600036"}
	require.NoError(t, store.SaveResult(ctx, job.ID, result))
	require.NoError(t, store.UpdateJobStatus(ctx, job.ID, crawler.JobStatusSucceeded, crawler.StageDone, ""))

	final, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, crawler.JobStatusSucceeded, final.Status)
	require.NotNil(t, final.Finished)
	require.NotNil(t, final.Result)
	require.Equal(t, "600036", final.Result.StockCode)
}

func TestJobStoreIgnoresUpdatesAfterTerminal(t *testing.T) {
	t.Parallel()

	store := NewJobStore()
	ctx := context.Background()
	require.NoError(t, store.CreateJob(ctx, crawler.Job{ID: "j", Status: crawler.JobStatusQueued}))
	require.NoError(t, store.UpdateJobStatus(ctx, "j", crawler.JobStatusCanceled, "", "canceled by client"))
	require.NoError(t, store.UpdateJobStatus(ctx, "j", crawler.JobStatusSucceeded, crawler.StageDone, ""))

	job, err := store.GetJob(ctx, "j")
	require.NoError(t, err)
	require.Equal(t, crawler.JobStatusCanceled, job.Status)
	require.Equal(t, "canceled by client", job.ErrorText)
}

func TestJobStoreMissing(t *testing.T) {
	t.Parallel()

	store := NewJobStore()
	ctx := context.Background()
	_, err := store.GetJob(ctx, "nope")
	require.ErrorIs(t, err, crawler.ErrNotFound)
	require.ErrorIs(t, store.UpdateJobStatus(ctx, "nope", crawler.JobStatusRunning, "", ""), crawler.ErrNotFound)
	require.ErrorIs(t, store.SaveResult(ctx, "nope", crawler.CrawlResponse{}), crawler.ErrNotFound)
}

type stepClock struct{ t time.Time }

func (c *stepClock) Now() time.Time { return c.t }

func TestJobStorePrunesFinishedJobs(t *testing.T) {
	t.Parallel()

	clock := &stepClock{t: time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)}
	store := NewJobStore(WithRetention(time.Hour), WithClock(clock))
	ctx := context.Background()

	require.NoError(t, store.CreateJob(ctx, crawler.Job{ID: "done", Status: crawler.JobStatusQueued}))
	require.NoError(t, store.UpdateJobStatus(ctx, "done", crawler.JobStatusFailed, crawler.StageFailed, "boom"))
	require.NoError(t, store.CreateJob(ctx, crawler.Job{ID: "open", Status: crawler.JobStatusQueued}))

	clock.t = clock.t.Add(2 * time.Hour)
	require.NoError(t, store.CreateJob(ctx, crawler.Job{ID: "new", Status: crawler.JobStatusQueued}))

	require.Equal(t, 2, store.Len())
	_, err := store.GetJob(ctx, "done")
	require.ErrorIs(t, err, crawler.ErrNotFound)
	_, err = store.GetJob(ctx, "open")
	require.NoError(t, err, "unfinished jobs are never pruned")
}

func TestJobStoreUsesClock(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 3, 2, 1, 0, 0, 0, time.UTC)
	store := NewJobStore(WithClock(&stepClock{t: at}))
	ctx := context.Background()
	require.NoError(t, store.CreateJob(ctx, crawler.Job{ID: "j"}))
	require.NoError(t, store.UpdateJobStatus(ctx, "j", crawler.JobStatusRunning, "", ""))

	job, err := store.GetJob(ctx, "j")
	require.NoError(t, err)
	require.Equal(t, at, *job.Started)
}
