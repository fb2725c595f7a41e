// Package queue holds pending pipeline triggers between the scheduler and
// the single consumer that executes runs.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/okian/mastery/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 8
)

// Trigger asks for one run of a job.
type Trigger struct {
	Job    string
	Source string
	At     time.Time
}

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a trigger. A trigger for a job that is already pending is
	// coalesced into the pending one and reported as accepted.
	// Returns false if the queue is full or closed.
	Enqueue(ctx context.Context, t Trigger) bool

	// Dequeue returns a channel that receives triggers in arrival order.
	// The channel is closed when the queue is closed.
	Dequeue(ctx context.Context) <-chan Trigger

	// Len returns the number of buffered triggers.
	Len(ctx context.Context) int

	// Pending reports whether a trigger for job awaits the consumer.
	Pending(job string) bool

	// Close stops accepting triggers and closes the dequeue channel.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	triggers chan Trigger
	capacity int

	mu      sync.Mutex
	pending map[string]int
	closed  bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
		pending:  make(map[string]int),
	}

	for _, opt := range opts {
		opt(q)
	}

	q.triggers = make(chan Trigger, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)

	return q
}

// Enqueue adds a trigger to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, t Trigger) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		metrics.RecordQueueRejected()
		metrics.RecordErrorByComponent("queue", "closed")
		return false
	}

	if q.pending[t.Job] > 0 {
		metrics.RecordQueueCoalesced()
		return true
	}

	select {
	case q.triggers <- t:
		q.pending[t.Job]++
		metrics.RecordQueueEnqueue()
		metrics.UpdateQueueSize(len(q.triggers))
		return true
	case <-ctx.Done():
		metrics.RecordQueueRejected()
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return false
	default:
		metrics.RecordQueueRejected()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return false
	}
}

// Dequeue returns a channel that will receive triggers as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Trigger {
	out := make(chan Trigger)
	go func() {
		defer close(out)
		for t := range q.triggers {
			metrics.UpdateQueueSize(len(q.triggers))

			select {
			case out <- t:
			case <-ctx.Done():
				return
			}

			// A trigger stops being pending once the consumer has it, so a
			// request arriving during the run queues the next one.
			q.mu.Lock()
			if q.pending[t.Job]--; q.pending[t.Job] <= 0 {
				delete(q.pending, t.Job)
			}
			q.mu.Unlock()
		}
	}()
	return out
}

// Len returns the current number of pending triggers.
func (q *InMemoryQueue) Len(_ context.Context) int {
	size := len(q.triggers)
	metrics.UpdateQueueSize(size)
	return size
}

// Close gracefully shuts down the queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	close(q.triggers)
	q.closed = true

	return nil
}

// Pending reports whether a trigger for job is waiting for the consumer.
func (q *InMemoryQueue) Pending(job string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending[job] > 0
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
