package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/site-cloner/internal/cloner"
)

var (
	submitted = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	fixedNow  = submitted.Add(time.Minute)
)

func newTestStore(t *testing.T) (*JobStore, redismock.ClientMock) {
	t.Helper()
	db, mock := redismock.NewClientMock()
	store := NewJobStore(db, Config{KeyPrefix: "test", Retention: time.Hour})
	store.now = func() time.Time { return fixedNow }
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("there were unfulfilled expectations: %s", err)
		}
	})
	return store, mock
}

func encode(t *testing.T, job cloner.Job) string {
	t.Helper()
	data, err := json.Marshal(job)
	require.NoError(t, err)
	return string(data)
}

func queuedJob() cloner.Job {
	return cloner.Job{
		ID:        "job-1",
		Status:    cloner.JobStatusQueued,
		Submitted: submitted,
		Request:   cloner.CloneRequest{URL: "https://example.com", Name: "demo"},
	}
}

func TestCreateJob(t *testing.T) {
	store, mock := newTestStore(t)
	ctx := context.TODO()
	job := queuedJob()

	mock.ExpectSetNX("test:job:job-1", encode(t, job), 0).SetVal(true)
	mock.ExpectZAdd("test:jobs", redisZ(job)).SetVal(1)
	require.NoError(t, store.CreateJob(ctx, job))

	mock.ExpectSetNX("test:job:job-1", encode(t, job), 0).SetVal(false)
	require.ErrorIs(t, store.CreateJob(ctx, job), cloner.ErrJobExists)

	mock.ExpectSetNX("test:job:job-1", encode(t, job), 0).SetErr(errors.New("redis error"))
	err := store.CreateJob(ctx, job)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "redis setnx failure")
}

func TestUpdateJobStatusSetsStarted(t *testing.T) {
	store, mock := newTestStore(t)
	ctx := context.TODO()
	job := queuedJob()

	progress := cloner.NewJobProgress(4, 1, 0)
	want := job
	want.Status = cloner.JobStatusFetching
	want.Progress = progress
	want.Started = &fixedNow

	mock.ExpectGet("test:job:job-1").SetVal(encode(t, job))
	mock.ExpectSet("test:job:job-1", encode(t, want), 0).SetVal("OK")
	require.NoError(t, store.UpdateJobStatus(ctx, "job-1", cloner.JobStatusFetching, "", progress))
}

func TestCompleteJobAppliesRetention(t *testing.T) {
	store, mock := newTestStore(t)
	ctx := context.TODO()
	running := queuedJob()
	running.Status = cloner.JobStatusPublishing
	running.Started = &submitted

	result := cloner.JobResult{
		PublicURL:    "https://cdn.example/clonedwebs/demo/index.html",
		FailedAssets: []cloner.FailedAsset{{URL: "https://example.com/x.png", Reason: "HTTP 500"}},
	}
	want := running
	want.Status = cloner.JobStatusCompleted
	want.Result = &result
	want.ErrorKind = cloner.ErrorPartial
	want.Finished = &fixedNow

	mock.ExpectGet("test:job:job-1").SetVal(encode(t, running))
	mock.ExpectSet("test:job:job-1", encode(t, want), time.Hour).SetVal("OK")
	require.NoError(t, store.CompleteJob(ctx, "job-1", result))
}

func TestTerminalJobsRejectUpdates(t *testing.T) {
	store, mock := newTestStore(t)
	failed := queuedJob()
	failed.Status = cloner.JobStatusFailed

	mock.ExpectGet("test:job:job-1").SetVal(encode(t, failed))
	err := store.FailJob(context.TODO(), "job-1", cloner.ErrorFatal, "boom")
	require.ErrorContains(t, err, "already failed")
}

func TestGetJobNotFound(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectGet("test:job:missing").RedisNil()
	_, err := store.GetJob(context.TODO(), "missing")
	require.ErrorIs(t, err, cloner.ErrJobNotFound)
}

func TestListJobsDropsExpired(t *testing.T) {
	store, mock := newTestStore(t)
	first := queuedJob()
	second := queuedJob()
	second.ID = "job-3"
	second.Submitted = submitted.Add(time.Second)

	mock.ExpectZRange("test:jobs", 0, -1).SetVal([]string{"job-1", "job-2", "job-3"})
	mock.ExpectMGet("test:job:job-1", "test:job:job-2", "test:job:job-3").
		SetVal([]interface{}{encode(t, first), nil, encode(t, second)})
	mock.ExpectZRem("test:jobs", "job-2").SetVal(1)

	jobs, err := store.ListJobs(context.TODO())
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "job-1", jobs[0].ID)
	assert.Equal(t, "job-3", jobs[1].ID)
}

func redisZ(job cloner.Job) redis.Z {
	return redis.Z{Score: float64(job.Submitted.UnixNano()), Member: job.ID}
}
