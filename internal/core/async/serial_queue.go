package async

import (
	"context"
	"sync"
)

// SerialQueue runs submitted tasks one at a time, in submission order, on a
// single worker goroutine. It provides the "at most one in-flight mutation"
// guarantee for callers that must not interleave durable writes.
type SerialQueue struct {
	mu     sync.Mutex
	tasks  chan func(context.Context)
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

// NewSerialQueue starts the worker. Stop must be called to release it.
func NewSerialQueue(buffer int) *SerialQueue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &SerialQueue{
		tasks:  make(chan func(context.Context), buffer),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *SerialQueue) run() {
	defer close(q.done)
	for task := range q.tasks {
		task(q.ctx)
	}
}

// Submit enqueues a task. Returns false if the queue has been stopped.
func (q *SerialQueue) Submit(task func(context.Context)) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.tasks <- task
	return true
}

// Stop drains already-submitted tasks, then stops the worker. Blocks until
// the worker exits.
func (q *SerialQueue) Stop() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	q.mu.Unlock()
	<-q.done
	q.cancel()
}
