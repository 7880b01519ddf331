package brevent

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// ErrExecutorClosed is returned when submitting to an executor that has been shut down.
var ErrExecutorClosed = errors.New("brevent: executor closed")

// Task is a unit of work run by an Executor.
// It should return promptly once ctx is done.
type Task func(ctx context.Context)

type queuedTask struct {
	ctx context.Context
	fn  Task
}

// Executor runs submitted tasks one at a time on a single worker goroutine,
// in submission order. It must be shut down with Shutdown.
type Executor struct {
	tasks chan queuedTask
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

// defaultQueueSize is the number of tasks that may wait behind the running one.
const defaultQueueSize = 16

// NewExecutor starts an executor whose queue holds up to queueSize pending tasks.
func NewExecutor(queueSize int) *Executor {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	e := &Executor{
		tasks: make(chan queuedTask, queueSize),
		done:  make(chan struct{}),
	}
	go e.run()
	return e
}

// Submit queues fn to run with ctx. It blocks while the queue is full,
// and returns ctx.Err() if ctx is done first.
// A task whose ctx is done by the time it is dequeued is skipped.
func (e *Executor) Submit(ctx context.Context, fn Task) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return ErrExecutorClosed
	}

	select {
	case e.tasks <- queuedTask{ctx: ctx, fn: fn}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting tasks, lets queued tasks drain and waits for the worker
// to exit or ctx to be done. Safe to call multiple times.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.tasks)
	}
	e.mu.Unlock()

	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Executor) run() {
	defer close(e.done)

	for task := range e.tasks {
		if task.ctx.Err() != nil {
			continue
		}
		task.fn(task.ctx)
	}
}
