package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrDispatcherClosed is returned by Submit after Close.
var ErrDispatcherClosed = errors.New("dispatcher closed")

// Task is one unit of background work tied to a document id.
type Task struct {
	ID  string
	Run func(ctx context.Context) error
}

// Dispatcher runs tasks on a fixed pool of workers. Work beyond the
// concurrency limit queues rather than being dropped. A panicking task
// never takes down the process: it is recovered and reported through the
// onError hook, which for analysis jobs marks the job Failed.
type Dispatcher struct {
	queue   chan Task
	workers int
	onError func(id string, err error)
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a Dispatcher with the given worker count and
// queue capacity. workers <= 0 defaults to 1; queueSize <= 0 defaults to 64.
// onError is invoked for any task that returns an error or panics; pass
// nil to only log.
func NewDispatcher(workers, queueSize int, onError func(id string, err error)) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Dispatcher{
		queue:   make(chan Task, queueSize),
		workers: workers,
		onError: onError,
		logger:  slog.Default(),
	}
}

// Run starts the worker pool and blocks until ctx is cancelled or the
// queue is closed and drained. Typically invoked as `go d.Run(ctx)`.
func (d *Dispatcher) Run(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
	d.wg.Wait()
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-d.queue:
			if !ok {
				return
			}
			d.runTask(ctx, task)
		}
	}
}

func (d *Dispatcher) runTask(ctx context.Context, task Task) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("background task panicked", "id", task.ID, "panic", r)
			d.report(task.ID, fmt.Errorf("internal error"))
		}
	}()

	if err := task.Run(ctx); err != nil {
		d.report(task.ID, err)
	}
}

func (d *Dispatcher) report(id string, err error) {
	if d.onError != nil {
		d.onError(id, err)
		return
	}
	d.logger.Warn("background task failed", "id", id, "error", err)
}

// Submit queues a task. It blocks when the queue is full, so callers
// upstream of an HTTP handler should size the queue generously. The read
// lock is held across the send: submitters never serialize behind one
// another, and Close cannot close the channel under an in-flight send.
func (d *Dispatcher) Submit(id string, fn func(ctx context.Context) error) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}

	d.queue <- Task{ID: id, Run: fn}
	return nil
}

// Close stops accepting new tasks and lets queued ones finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	close(d.queue)
}
