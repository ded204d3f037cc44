package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/site-cloner/internal/cloner"
)

// JobStore provides an in-memory job registry. Terminal jobs are evicted by
// Sweep once they are older than the retention window.
type JobStore struct {
	mu        sync.RWMutex
	jobs      map[string]cloner.Job
	now       func() time.Time
	retention time.Duration
}

// NewJobStore constructs a JobStore. A zero retention keeps jobs forever.
func NewJobStore(retention time.Duration) *JobStore {
	return &JobStore{
		jobs:      make(map[string]cloner.Job),
		now:       func() time.Time { return time.Now().UTC() },
		retention: retention,
	}
}

// CreateJob stores a new job in queued status.
func (s *JobStore) CreateJob(_ context.Context, job cloner.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return cloner.ErrJobExists
	}
	if job.Status == "" {
		job.Status = cloner.JobStatusQueued
	}
	s.jobs[job.ID] = job
	return nil
}

// UpdateJobStatus moves a running job to a new phase and records progress.
func (s *JobStore) UpdateJobStatus(
	_ context.Context,
	jobID string,
	status cloner.JobStatus,
	errText string,
	progress cloner.JobProgress,
) error {
	return s.update(jobID, func(job *cloner.Job) {
		job.Status = status
		job.ErrorText = errText
		job.Progress = progress
	})
}

// FailJob marks a job failed.
func (s *JobStore) FailJob(_ context.Context, jobID string, kind cloner.ErrorKind, errText string) error {
	return s.update(jobID, func(job *cloner.Job) {
		job.Status = cloner.JobStatusFailed
		job.ErrorKind = kind
		job.ErrorText = errText
	})
}

// CompleteJob marks a job completed and attaches its result.
func (s *JobStore) CompleteJob(_ context.Context, jobID string, result cloner.JobResult) error {
	return s.update(jobID, func(job *cloner.Job) {
		job.Status = cloner.JobStatusCompleted
		job.Result = &result
		if len(result.FailedAssets) > 0 {
			job.ErrorKind = cloner.ErrorPartial
		}
	})
}

func (s *JobStore) update(jobID string, mutate func(*cloner.Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return cloner.ErrJobNotFound
	}
	if job.Status.IsTerminal() {
		return fmt.Errorf("job %s is already %s", jobID, job.Status)
	}
	mutate(&job)
	now := s.now()
	if job.Started == nil && job.Status != cloner.JobStatusQueued {
		job.Started = pointerTime(now)
	}
	if job.Status.IsTerminal() {
		job.Finished = pointerTime(now)
	}
	s.jobs[jobID] = job
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (cloner.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return cloner.Job{}, cloner.ErrJobNotFound
	}
	return job, nil
}

// ListJobs returns every retained job, oldest submission first.
func (s *JobStore) ListJobs(_ context.Context) ([]cloner.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]cloner.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Submitted.Equal(out[j].Submitted) {
			return out[i].ID < out[j].ID
		}
		return out[i].Submitted.Before(out[j].Submitted)
	})
	return out, nil
}

// Sweep evicts terminal jobs that finished more than the retention window
// before now and returns how many it removed.
func (s *JobStore) Sweep(now time.Time) int {
	if s.retention <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, job := range s.jobs {
		if job.Finished != nil && now.Sub(*job.Finished) > s.retention {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed
}

// RunJanitor sweeps on every tick until ctx is done.
func (s *JobStore) RunJanitor(ctx context.Context, interval time.Duration, logger *zap.Logger) {
	if s.retention <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(s.now()); n > 0 && logger != nil {
				logger.Debug("evicted finished jobs", zap.Int("count", n))
			}
		}
	}
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
