// Package retry wraps a single-attempt fetcher with per-host pacing and
// bounded, jittered retries.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/site-cloner/internal/cloner"
	"github.com/JakeFAU/site-cloner/internal/logging"
)

// Waiter paces requests; *ratelimit.Limiter satisfies it.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Fetcher retries transient failures of the wrapped fetcher.
type Fetcher struct {
	next    cloner.Fetcher
	policy  cloner.RetryPolicy
	limiter Waiter
	logger  *zap.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// New builds a retrying fetcher. limiter may be nil.
func New(next cloner.Fetcher, policy cloner.RetryPolicy, limiter Waiter, logger *zap.Logger) *Fetcher {
	if policy == nil {
		policy = cloner.NewExponentialRetryPolicy(0, 0)
	}
	return &Fetcher{
		next:    next,
		policy:  policy,
		limiter: limiter,
		logger:  logging.OrNop(logger).Named("retry"),
		sleep:   sleepWithContext,
	}
}

// Fetch performs up to request.MaxRetries+1 attempts. The returned resource
// and error both carry the number of attempts made.
func (f *Fetcher) Fetch(ctx context.Context, request cloner.FetchRequest) (cloner.FetchedResource, error) {
	var lastErr error
	for attempt := 1; ; attempt++ {
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx, request.URL); err != nil {
				return cloner.FetchedResource{}, withAttempts(request.URL, err, attempt-1)
			}
		}

		res, err := f.next.Fetch(ctx, request)
		if err == nil {
			res.Attempts = attempt
			return res, nil
		}
		lastErr = err

		if !f.policy.ShouldRetry(err, attempt, request.MaxRetries) {
			return cloner.FetchedResource{}, withAttempts(request.URL, lastErr, attempt)
		}
		delay := f.policy.Backoff(attempt)
		f.logger.Debug("retrying fetch",
			zap.String("job_id", request.JobID),
			zap.String("url", request.URL),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if err := f.sleep(ctx, delay); err != nil {
			return cloner.FetchedResource{}, withAttempts(request.URL, err, attempt)
		}
	}
}

func withAttempts(url string, err error, attempts int) error {
	var fe *cloner.FetchError
	if errors.As(err, &fe) {
		fe.Attempts = attempts
		return fe
	}
	return &cloner.FetchError{
		URL:      url,
		Kind:     cloner.ClassifyTransportError(url, err).Kind,
		Attempts: attempts,
		Err:      fmt.Errorf("after %d attempts: %w", attempts, err),
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("retry backoff interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
