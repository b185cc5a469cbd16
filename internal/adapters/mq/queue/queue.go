// Package queue holds ingestion jobs until the worker picks them up.
//
// At most one job of each kind waits at a time; a second submission of the
// same kind is rejected with ErrPending until the first is handed out.
package queue

import (
	"context"
	"sync"

	"github.com/okian/killsync/internal/domain/model"
	"github.com/okian/killsync/pkg/metrics"
)

const defaultQueueCapacity = 8

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a job or returns ErrClosed, ErrFull or ErrPending.
	Enqueue(ctx context.Context, job model.Job) error

	// Dequeue returns a channel that receives jobs in submission order.
	// The channel is closed when the queue is closed or ctx is done.
	Dequeue(ctx context.Context) <-chan model.Job

	// Len returns the number of waiting jobs.
	Len(ctx context.Context) int

	Close() error
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	jobs     chan model.Job
	capacity int

	mu      sync.Mutex
	pending map[model.JobKind]bool
	closed  bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
		pending:  make(map[model.JobKind]bool),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.jobs = make(chan model.Job, q.capacity)
	metrics.SetJobQueueLength(0)
	return q
}

// Enqueue adds a job to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, job model.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	kind := string(job.Kind)
	switch {
	case q.closed:
		metrics.RecordJobEnqueue(kind, "closed")
		return ErrClosed
	case q.pending[job.Kind]:
		metrics.RecordJobEnqueue(kind, "pending")
		return ErrPending
	case ctx.Err() != nil:
		return ctx.Err()
	}

	select {
	case q.jobs <- job:
		q.pending[job.Kind] = true
		metrics.RecordJobEnqueue(kind, "accepted")
		metrics.SetJobQueueLength(len(q.jobs))
		return nil
	default:
		metrics.RecordJobEnqueue(kind, "full")
		metrics.RecordErrorByComponent("queue", "full")
		return ErrFull
	}
}

// Dequeue returns a channel that will receive jobs as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan model.Job {
	out := make(chan model.Job)
	go func() {
		defer close(out)
		for job := range q.jobs {
			select {
			case out <- job:
				q.release(job.Kind)
			case <-ctx.Done():
				q.release(job.Kind)
				return
			}
		}
	}()
	return out
}

func (q *InMemoryQueue) release(kind model.JobKind) {
	q.mu.Lock()
	delete(q.pending, kind)
	q.mu.Unlock()
	metrics.SetJobQueueLength(len(q.jobs))
}

// Len returns the current number of queued jobs.
func (q *InMemoryQueue) Len(context.Context) int {
	return len(q.jobs)
}

// Close stops accepting jobs. Jobs already queued are still delivered.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.jobs)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
