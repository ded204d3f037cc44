// Package redisstore provides a job registry shared by several service instances.
// Jobs are stored as JSON documents; terminal jobs expire after the retention
// window through Redis TTLs.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JakeFAU/site-cloner/internal/cloner"
)

// Config holds connection and key settings.
type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	// Retention is the TTL applied when a job reaches a terminal status.
	Retention time.Duration
}

// JobStore implements cloner.JobStore on Redis.
type JobStore struct {
	client    redis.Cmdable
	prefix    string
	retention time.Duration
	now       func() time.Time
}

// NewClient opens a Redis client for cfg.
func NewClient(cfg Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// NewJobStore wraps an existing client.
func NewJobStore(client redis.Cmdable, cfg Config) *JobStore {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "sitecloner"
	}
	return &JobStore{
		client:    client,
		prefix:    prefix,
		retention: cfg.Retention,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *JobStore) jobKey(jobID string) string { return s.prefix + ":job:" + jobID }
func (s *JobStore) indexKey() string           { return s.prefix + ":jobs" }

// CreateJob stores a new job; IDs already present return cloner.ErrJobExists.
func (s *JobStore) CreateJob(ctx context.Context, job cloner.Job) error {
	if job.Status == "" {
		job.Status = cloner.JobStatusQueued
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.jobKey(job.ID), string(data), 0).Result()
	if err != nil {
		return fmt.Errorf("redis setnx failure: %w", err)
	}
	if !ok {
		return cloner.ErrJobExists
	}
	member := redis.Z{Score: float64(job.Submitted.UnixNano()), Member: job.ID}
	if err := s.client.ZAdd(ctx, s.indexKey(), member).Err(); err != nil {
		return fmt.Errorf("redis zadd failure: %w", err)
	}
	return nil
}

// UpdateJobStatus moves a running job to a new phase and records progress.
func (s *JobStore) UpdateJobStatus(
	ctx context.Context,
	jobID string,
	status cloner.JobStatus,
	errText string,
	progress cloner.JobProgress,
) error {
	return s.update(ctx, jobID, func(job *cloner.Job) {
		job.Status = status
		job.ErrorText = errText
		job.Progress = progress
	})
}

// FailJob marks a job failed.
func (s *JobStore) FailJob(ctx context.Context, jobID string, kind cloner.ErrorKind, errText string) error {
	return s.update(ctx, jobID, func(job *cloner.Job) {
		job.Status = cloner.JobStatusFailed
		job.ErrorKind = kind
		job.ErrorText = errText
	})
}

// CompleteJob marks a job completed and attaches its result.
func (s *JobStore) CompleteJob(ctx context.Context, jobID string, result cloner.JobResult) error {
	return s.update(ctx, jobID, func(job *cloner.Job) {
		job.Status = cloner.JobStatusCompleted
		job.Result = &result
		if len(result.FailedAssets) > 0 {
			job.ErrorKind = cloner.ErrorPartial
		}
	})
}

// update rewrites the job document. Only the worker owning a job writes it,
// so a read-modify-write without WATCH is sufficient.
func (s *JobStore) update(ctx context.Context, jobID string, mutate func(*cloner.Job)) error {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return fmt.Errorf("job %s is already %s", jobID, job.Status)
	}
	mutate(&job)
	now := s.now()
	if job.Started == nil && job.Status != cloner.JobStatusQueued {
		job.Started = &now
	}
	ttl := time.Duration(0)
	if job.Status.IsTerminal() {
		job.Finished = &now
		ttl = s.retention
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	if err := s.client.Set(ctx, s.jobKey(jobID), string(data), ttl).Err(); err != nil {
		return fmt.Errorf("redis set failure: %w", err)
	}
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (cloner.Job, error) {
	data, err := s.client.Get(ctx, s.jobKey(jobID)).Result()
	if errors.Is(err, redis.Nil) {
		return cloner.Job{}, cloner.ErrJobNotFound
	}
	if err != nil {
		return cloner.Job{}, fmt.Errorf("redis get failure: %w", err)
	}
	var job cloner.Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return cloner.Job{}, fmt.Errorf("decode job %s: %w", jobID, err)
	}
	return job, nil
}

// ListJobs returns every retained job, oldest submission first. Index
// entries whose document has expired are dropped.
func (s *JobStore) ListJobs(ctx context.Context) ([]cloner.Job, error) {
	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrange failure: %w", err)
	}
	if len(ids) == 0 {
		return []cloner.Job{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.jobKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget failure: %w", err)
	}

	jobs := make([]cloner.Job, 0, len(values))
	var expired []any
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			expired = append(expired, ids[i])
			continue
		}
		var job cloner.Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			return nil, fmt.Errorf("decode job %s: %w", ids[i], err)
		}
		jobs = append(jobs, job)
	}
	if len(expired) > 0 {
		if err := s.client.ZRem(ctx, s.indexKey(), expired...).Err(); err != nil {
			return nil, fmt.Errorf("redis zrem failure: %w", err)
		}
	}
	sort.SliceStable(jobs, func(i, j int) bool { return jobs[i].Submitted.Before(jobs[j].Submitted) })
	return jobs, nil
}

// Ping reports whether Redis is reachable.
func (s *JobStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
