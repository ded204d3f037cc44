package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JakeFAU/site-cloner/internal/cloner"
)

func TestJobStoreLifecycle(t *testing.T) {
	t.Parallel()

	store := NewJobStore(time.Hour)
	ctx := context.Background()
	job := cloner.Job{ID: "job-1", Status: cloner.JobStatusQueued, Submitted: time.Now().UTC()}

	if err := store.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}
	if err := store.CreateJob(ctx, job); !errors.Is(err, cloner.ErrJobExists) {
		t.Fatalf("expected duplicate job error, got %v", err)
	}
	progress := cloner.NewJobProgress(4, 2, 1)
	if err := store.UpdateJobStatus(ctx, job.ID, cloner.JobStatusFetching, "", progress); err != nil {
		t.Fatalf("UpdateJobStatus fetching error = %v", err)
	}
	running, _ := store.GetJob(ctx, job.ID)
	if running.Started == nil || running.Progress.Percent != 50 {
		t.Fatalf("expected started job with progress, got %+v", running)
	}

	result := cloner.JobResult{
		PublicURL:    "https://cdn.example/clonedwebs/promo/index.html",
		FailedAssets: []cloner.FailedAsset{{URL: "https://example.com/a.png", Reason: "404"}},
	}
	if err := store.CompleteJob(ctx, job.ID, result); err != nil {
		t.Fatalf("CompleteJob() error = %v", err)
	}
	final, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if final.Status != cloner.JobStatusCompleted || final.Finished == nil || final.Result == nil {
		t.Fatalf("expected completed job with result, got %+v", final)
	}
	if final.ErrorKind != cloner.ErrorPartial {
		t.Fatalf("expected partial error kind, got %q", final.ErrorKind)
	}
	if err := store.FailJob(ctx, job.ID, cloner.ErrorFatal, "late"); err == nil {
		t.Fatal("expected terminal job to reject further transitions")
	}
	if _, err := store.GetJob(ctx, "missing"); !errors.Is(err, cloner.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestJobStoreSweepEvictsExpiredTerminalJobs(t *testing.T) {
	t.Parallel()

	store := NewJobStore(10 * time.Minute)
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return base }
	ctx := context.Background()

	for _, id := range []string{"done", "running"} {
		if err := store.CreateJob(ctx, cloner.Job{ID: id, Submitted: base}); err != nil {
			t.Fatalf("CreateJob(%s) error = %v", id, err)
		}
	}
	if err := store.FailJob(ctx, "done", cloner.ErrorFatal, "boom"); err != nil {
		t.Fatalf("FailJob() error = %v", err)
	}
	if err := store.UpdateJobStatus(ctx, "running", cloner.JobStatusFetching, "", cloner.JobProgress{}); err != nil {
		t.Fatalf("UpdateJobStatus() error = %v", err)
	}

	if n := store.Sweep(base.Add(5 * time.Minute)); n != 0 {
		t.Fatalf("expected nothing evicted inside retention, got %d", n)
	}
	if n := store.Sweep(base.Add(11 * time.Minute)); n != 1 {
		t.Fatalf("expected one eviction, got %d", n)
	}
	jobs, _ := store.ListJobs(ctx)
	if len(jobs) != 1 || jobs[0].ID != "running" {
		t.Fatalf("expected only the running job to remain, got %+v", jobs)
	}
}

func TestJobStoreRunJanitorStopsOnCancel(t *testing.T) {
	t.Parallel()

	store := NewJobStore(time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		store.RunJanitor(ctx, time.Millisecond, nil)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
