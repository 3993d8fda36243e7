package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/CodeMonkeyCybersecurity/aasprobe/internal/core"
)

var ErrQueueClosed = errors.New("queue closed")

// Queue is a bounded multi-producer, multi-consumer task queue. Send blocks
// while the queue is full; consumers ranging over Receive block while it is
// empty and stop once it is closed and drained.
type Queue struct {
	ch     chan core.Task
	mu     sync.RWMutex
	closed bool
}

// NewQueue creates a queue holding at most capacity buffered tasks.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{ch: make(chan core.Task, capacity)}
}

// Send enqueues a task, waiting for room. It fails if the queue has been
// closed or ctx is done first.
func (q *Queue) Send(ctx context.Context, task core.Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.ch <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close marks the end of production. Buffered tasks remain receivable.
// Close waits for in-flight sends and is safe to call more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}

// Receive returns the channel consumers drain.
func (q *Queue) Receive() <-chan core.Task {
	return q.ch
}

func (q *Queue) Len() int { return len(q.ch) }

func (q *Queue) Cap() int { return cap(q.ch) }
