package cloner

import (
	"context"
	"time"
)

// JobStore is the job registry. Reads may run concurrently with the single
// worker that owns a job.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errText string, progress JobProgress) error
	FailJob(ctx context.Context, jobID string, kind ErrorKind, errText string) error
	CompleteJob(ctx context.Context, jobID string, result JobResult) error
	GetJob(ctx context.Context, jobID string) (Job, error)
	ListJobs(ctx context.Context) ([]Job, error)
}

// ContentStore is the remote create/read/update/delete-by-path store that
// published sites are written to.
type ContentStore interface {
	// EnsureContainer verifies the bucket or repository exists, creating it
	// when create is set. It returns ErrContainerNotFound or ErrPermissionDenied.
	EnsureContainer(ctx context.Context, create bool) error
	// Put writes data at path, overwriting existing content.
	Put(ctx context.Context, path, contentType string, data []byte) (PutStatus, error)
	Get(ctx context.Context, path string) (Object, error)
	Delete(ctx context.Context, path string) error
	// List returns the direct children of prefix.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	// PublicURL derives the CDN URL for path.
	PublicURL(path string) string
}

// ManifestArchive keeps completed manifests after the registry evicts a job.
type ManifestArchive interface {
	StoreManifest(ctx context.Context, jobID string, manifest Manifest) error
}

// Notifier pushes completion events to Pub/Sub (or similar).
type Notifier interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchedResource, error)
}

// RenderDetector decides whether a root document needs a browser render.
type RenderDetector interface {
	ShouldPromote(res FetchedResource) bool
}

// Queue provides enqueue/dequeue semantics for clone jobs.
type Queue interface {
	Enqueue(ctx context.Context, job QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// RetryPolicy classifies failures and spaces out attempts.
type RetryPolicy interface {
	// ShouldRetry is called after the given 1-based attempt failed.
	ShouldRetry(err error, attempt, maxRetries int) bool
	Backoff(attempt int) time.Duration
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
