// Package dispatcher provides a bounded worker pool with an unbounded FIFO
// queue. Order-creation requests are handed to an idle worker immediately or
// wait in arrival order; a task failure, including a panic, is surfaced only
// to that task's submitter and never takes down the pool.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/boostcampwm-2024/refactor-web03-CorinEE/internal/domain"
)

// Task is one unit of work executed by a pool worker.
type Task func(ctx context.Context) error

type submission struct {
	task   Task
	result chan error
}

// Pool is a fixed-size set of workers pulling from a shared FIFO queue.
// Workers share no mutable state besides the queue.
type Pool struct {
	work   chan submission
	signal chan struct{}
	logger *slog.Logger

	baseCtx context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	queue  []submission
	closed bool

	workerWG   sync.WaitGroup
	dispatchWG sync.WaitGroup
}

// New creates a Pool with the given number of workers and starts them.
func New(workers int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 4
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		work:    make(chan submission),
		signal:  make(chan struct{}, 1),
		logger:  logger.With(slog.String("component", "dispatcher")),
		baseCtx: ctx,
		cancel:  cancel,
	}

	p.workerWG.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}

	p.dispatchWG.Add(1)
	go p.dispatch()

	return p
}

// Submit enqueues a task. It never blocks on pool capacity: an idle worker
// picks the task up immediately, otherwise it waits in FIFO order. The
// returned channel delivers exactly one value, the task's error (nil on
// success).
//
// Returns domain.ErrPoolClosed after Close.
func (p *Pool) Submit(task Task) (<-chan error, error) {
	sub := submission{
		task:   task,
		result: make(chan error, 1),
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, domain.ErrPoolClosed
	}
	p.queue = append(p.queue, sub)
	p.mu.Unlock()

	select {
	case p.signal <- struct{}{}:
	default:
	}

	return sub.result, nil
}

// dispatch moves queued submissions to workers one at a time, preserving
// arrival order. It exits once the pool is closed and the queue has drained.
func (p *Pool) dispatch() {
	defer p.dispatchWG.Done()

	for {
		p.mu.Lock()
		for len(p.queue) == 0 {
			if p.closed {
				p.mu.Unlock()
				close(p.work)
				return
			}
			p.mu.Unlock()
			<-p.signal
			p.mu.Lock()
		}
		sub := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		p.work <- sub
	}
}

// worker executes one task at a time until the work channel closes.
func (p *Pool) worker() {
	defer p.workerWG.Done()

	for sub := range p.work {
		sub.result <- p.runTask(sub.task)
	}
}

// runTask executes a task, converting a panic into an error scoped to this
// task only. The worker survives and keeps serving the queue.
func (p *Pool) runTask(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panicked", slog.Any("panic", r))
			err = fmt.Errorf("%w: panic: %v", domain.ErrTaskFailed, r)
		}
	}()
	return task(p.baseCtx)
}

// Close stops accepting new tasks, lets queued and in-flight tasks finish,
// then cancels the workers' base context and returns. Safe to call once.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	// Wake the dispatcher in case it is parked on an empty queue.
	select {
	case p.signal <- struct{}{}:
	default:
	}

	p.dispatchWG.Wait()
	p.workerWG.Wait()
	p.cancel()
}
