// Package worker runs queued ingestion jobs one at a time.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/killsync/internal/domain/model"
	"github.com/okian/killsync/pkg/logger"
	"github.com/okian/killsync/pkg/metrics"
)

// Runner executes one job.
type Runner interface {
	RunJob(ctx context.Context, job model.Job) error
}

// Queue defines how the worker receives jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.Job
}

// ErrSkipped may be returned (wrapped) by a Runner for a job it declined to run.
var ErrSkipped = errors.New("worker: job skipped")

// Worker consumes jobs sequentially. A single Worker per process keeps
// ingestion single-threaded.
type Worker struct {
	queue  Queue
	runner Runner
	name   string

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewWorker creates a new worker with configuration options.
func NewWorker(queue Queue, runner Runner, opts ...Option) *Worker {
	w := &Worker{
		queue:    queue,
		runner:   runner,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run starts the worker loop. It returns when ctx is done, Shutdown is
// called, or the queue is closed and drained.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			w.process(ctx, job)
		}
	}
}

// Done is closed when Run returns.
func (w *Worker) Done() <-chan struct{} { return w.done }

// Shutdown stops the worker after the current job and waits for Run to return.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *Worker) process(ctx context.Context, job model.Job) {
	start := time.Now()
	log := w.logger.With(logger.String("job_id", job.ID), logger.String("kind", string(job.Kind)))
	log.Info(ctx, "job started", logger.Duration("queued_for", start.Sub(job.RequestedAt)))

	err := w.runner.RunJob(ctx, job)
	status := "ok"
	switch {
	case err == nil:
		log.Info(ctx, "job finished", logger.Duration("took", time.Since(start)))
	case errors.Is(err, ErrSkipped):
		status = "skipped"
		log.Info(ctx, "job skipped", logger.Error(err))
	default:
		status = "error"
		metrics.RecordErrorByComponent("worker", "job_failed")
		log.Error(ctx, "job failed", logger.Error(err))
	}
	metrics.RecordJobProcessed(string(job.Kind), status, time.Since(start))
}
