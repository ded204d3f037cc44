// Package dispatcher manages worker fan-out over the job queue and the
// submission path the API uses.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/site-cloner/internal/cloner"
	"github.com/JakeFAU/site-cloner/internal/worker"
)

// Runner is a unit that consumes work until its context ends.
type Runner interface {
	Run(ctx context.Context)
}

// Dispatcher fans out queue work to a pool of workers.
type Dispatcher struct {
	queue   cloner.Queue
	workers []Runner
}

// New creates a Dispatcher.
func New(queue cloner.Queue, workers []*worker.Worker) *Dispatcher {
	runners := make([]Runner, 0, len(workers))
	for _, w := range workers {
		runners = append(runners, w)
	}
	return &Dispatcher{
		queue:   queue,
		workers: runners,
	}
}

// Run starts all workers and blocks until the context finishes and every
// worker has returned from its current job.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(r Runner) {
			defer wg.Done()
			r.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
}

// Enqueue proxies to the underlying queue. Queues that can refuse work
// without blocking are offered the item instead.
func (d *Dispatcher) Enqueue(ctx context.Context, item cloner.QueueItem) error {
	if q, ok := d.queue.(interface {
		TryEnqueue(cloner.QueueItem) error
	}); ok {
		if err := q.TryEnqueue(item); err != nil {
			return fmt.Errorf("queue enqueue: %w", err)
		}
		return nil
	}
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}
