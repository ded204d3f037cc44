// Package worker runs clone jobs taken from the queue: fetch through the
// resource pipeline, publish, then record the outcome.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/site-cloner/internal/cloner"
	"github.com/JakeFAU/site-cloner/internal/logging"
	"github.com/JakeFAU/site-cloner/internal/metrics"
)

// Cloner builds a ClonedSite for a request.
type Cloner interface {
	Clone(ctx context.Context, jobID string, req cloner.CloneRequest, progress func(cloner.JobProgress)) (*cloner.ClonedSite, error)
}

// Publisher uploads a ClonedSite.
type Publisher interface {
	Publish(ctx context.Context, site *cloner.ClonedSite) (cloner.PublishResult, error)
}

// Config controls Worker behavior.
type Config struct {
	// Topic receives a notification per finished job; empty disables them.
	Topic string
}

// Worker consumes queue items and executes clone jobs.
type Worker struct {
	queue     cloner.Queue
	jobStore  cloner.JobStore
	cloner    Cloner
	publisher Publisher
	notifier  cloner.Notifier
	archive   cloner.ManifestArchive
	clock     cloner.Clock
	cfg       Config
	logger    *zap.Logger
}

// Deps groups a Worker's collaborators. Notifier and Archive are optional.
type Deps struct {
	Queue     cloner.Queue
	JobStore  cloner.JobStore
	Cloner    Cloner
	Publisher Publisher
	Notifier  cloner.Notifier
	Archive   cloner.ManifestArchive
	Clock     cloner.Clock
}

// New constructs a Worker.
func New(deps Deps, cfg Config, logger *zap.Logger) *Worker {
	clock := deps.Clock
	if clock == nil {
		clock = utcClock{}
	}
	return &Worker{
		queue:     deps.Queue,
		jobStore:  deps.JobStore,
		cloner:    deps.Cloner,
		publisher: deps.Publisher,
		notifier:  deps.Notifier,
		archive:   deps.Archive,
		clock:     clock,
		cfg:       cfg,
		logger:    logging.OrNop(logger).Named("worker"),
	}
}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }

// Run blocks, consuming queue items until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			if errors.Is(err, cloner.ErrQueueClosed) {
				return
			}
			continue
		}
		w.logger.Debug("dequeued job", zap.String("job_id", item.JobID))
		w.processJob(ctx, item)
	}
}

func (w *Worker) processJob(ctx context.Context, item cloner.QueueItem) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	start := w.clock.Now()
	logger := w.logger.With(zap.String("job_id", item.JobID), zap.String("name", item.Request.Name))
	ctx = logging.WithContext(ctx, logger)

	if w.cloner == nil || w.publisher == nil {
		w.fail(ctx, item, start, cloner.ErrorFatal, errors.New("worker is not configured"))
		return
	}

	if err := w.jobStore.UpdateJobStatus(ctx, item.JobID, cloner.JobStatusFetching, "", cloner.JobProgress{}); err != nil {
		logger.Error("update job status failed", zap.Error(err))
		return
	}

	site, err := w.cloner.Clone(ctx, item.JobID, item.Request, func(p cloner.JobProgress) {
		if err := w.jobStore.UpdateJobStatus(ctx, item.JobID, cloner.JobStatusFetching, "", p); err != nil {
			logger.Warn("progress update failed", zap.Error(err))
		}
	})
	if err != nil {
		w.fail(ctx, item, start, cloner.Classify(err), err)
		return
	}

	progress := cloner.NewJobProgress(site.Manifest.Counts.TotalAssets, site.Manifest.Counts.TotalAssets, site.Manifest.Counts.Failed)
	if err := w.jobStore.UpdateJobStatus(ctx, item.JobID, cloner.JobStatusPublishing, "", progress); err != nil {
		logger.Error("update job status failed", zap.Error(err))
		return
	}

	published, err := w.publisher.Publish(ctx, site)
	if err != nil {
		w.fail(ctx, item, start, cloner.Classify(err), fmt.Errorf("publish: %w", err))
		return
	}

	manifest := published.Manifest
	result := cloner.JobResult{
		PublicURL:    published.PublicURL,
		ManifestURL:  published.ManifestURL,
		Counts:       manifest.Counts,
		FailedAssets: manifest.FailedAssets(),
		Warnings:     manifest.Warnings,
	}
	if err := w.jobStore.CompleteJob(ctx, item.JobID, result); err != nil {
		logger.Error("complete job failed", zap.Error(err))
		return
	}
	if w.archive != nil {
		if err := w.archive.StoreManifest(ctx, item.JobID, manifest); err != nil {
			logger.Warn("manifest archive failed", zap.Error(err))
		}
	}

	status := string(cloner.JobStatusCompleted)
	if len(result.FailedAssets) > 0 {
		status = string(cloner.ErrorPartial)
	}
	metrics.ObserveJob(status, w.clock.Now().Sub(start))
	logger.Info("job completed",
		zap.String("public_url", result.PublicURL),
		zap.Int("assets", result.Counts.TotalAssets),
		zap.Int("failed_assets", len(result.FailedAssets)),
	)
	w.notify(ctx, Event{
		JobID:        item.JobID,
		Name:         item.Request.Name,
		SourceURL:    item.Request.URL,
		Status:       cloner.JobStatusCompleted,
		PublicURL:    result.PublicURL,
		ManifestURL:  result.ManifestURL,
		Assets:       result.Counts.TotalAssets,
		FailedAssets: len(result.FailedAssets),
		FinishedAt:   w.clock.Now(),
	})
}

func (w *Worker) fail(ctx context.Context, item cloner.QueueItem, start time.Time, kind cloner.ErrorKind, cause error) {
	logger := logging.FromContext(ctx, w.logger)
	logger.Error("job failed", zap.String("error_kind", string(kind)), zap.Error(cause))
	if err := w.jobStore.FailJob(ctx, item.JobID, kind, cause.Error()); err != nil {
		logger.Error("fail job status update", zap.Error(err))
	}
	metrics.ObserveJob(string(cloner.JobStatusFailed), w.clock.Now().Sub(start))
	w.notify(ctx, Event{
		JobID:      item.JobID,
		Name:       item.Request.Name,
		SourceURL:  item.Request.URL,
		Status:     cloner.JobStatusFailed,
		ErrorKind:  kind,
		Error:      cause.Error(),
		FinishedAt: w.clock.Now(),
	})
}

func (w *Worker) notify(ctx context.Context, event Event) {
	if w.cfg.Topic == "" || w.notifier == nil {
		return
	}
	if _, err := w.notifier.Publish(ctx, w.cfg.Topic, event); err != nil {
		logging.FromContext(ctx, w.logger).Warn("notification failed", zap.Error(err))
	}
}
