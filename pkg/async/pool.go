package async

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/platinummonkey/gazette/pkg/observability"
)

var (
	// ErrPoolClosed is returned by Submit after Shutdown has begun
	ErrPoolClosed = errors.New("worker pool shut down")
	// ErrQueueFull is returned by Submit when the backlog is at capacity
	ErrQueueFull = errors.New("worker pool queue full")
)

// Task is a unit of background work. The context carries the per-task
// timeout and is cancelled when the pool is forced down.
type Task func(ctx context.Context) error

// WorkerPool runs tasks on a fixed number of goroutines from a bounded
// queue. Task errors and panics are logged, never propagated.
type WorkerPool struct {
	name    string
	timeout time.Duration
	logger  *observability.Logger

	mu     sync.RWMutex
	closed bool
	work   chan Task

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorkerPool starts workers goroutines reading from a queue of
// queueSize tasks. Each task runs under its own timeout derived from ctx.
func NewWorkerPool(ctx context.Context, name string, workers, queueSize int, timeout time.Duration, logger *observability.Logger) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p := &WorkerPool{
		name:    name,
		timeout: timeout,
		logger:  logger.WithField("pool", name),
		work:    make(chan Task, queueSize),
		ctx:     ctx,
		cancel:  cancel,
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker(i)
	}
	return p
}

// Submit enqueues fn without blocking
func (p *WorkerPool) Submit(fn Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.work <- fn:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending reports the number of queued tasks not yet picked up
func (p *WorkerPool) Pending() int {
	return len(p.work)
}

// Shutdown stops accepting work and waits for queued tasks to drain. If ctx
// ends first, running tasks are cancelled and an error is returned.
func (p *WorkerPool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.work)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		return fmt.Errorf("worker pool %s shutdown: %w", p.name, ctx.Err())
	}
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	for fn := range p.work {
		p.run(id, fn)
	}
}

func (p *WorkerPool) run(id int, fn Task) {
	ctx := p.ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(p.ctx, p.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.WithFields(map[string]interface{}{
				"worker": id,
				"panic":  fmt.Sprint(r),
				"stack":  string(debug.Stack()),
			}).Error("panic in background task")
		}
	}()

	if err := fn(ctx); err != nil {
		p.logger.WithError(err).WithField("worker", id).Warn("background task failed")
	}
}
