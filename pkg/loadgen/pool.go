package loadgen

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/fluxorio/tasklist/pkg/core/failfast"
)

// ErrPoolStopped is returned by submit after drain
var ErrPoolStopped = errors.New("worker pool is stopped")

// job is one unit of work; ctx is the pool's context
type job func(ctx context.Context)

// workerPool runs jobs on a fixed set of goroutines.
// Submit blocks while every worker is busy and the queue is full.
type workerPool struct {
	workers int
	jobs    chan job
	wg      sync.WaitGroup
	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
}

func newWorkerPool(ctx context.Context, workers, queueSize int) *workerPool {
	failfast.If(workers > 0, "worker pool needs at least one worker, got %d", workers)
	failfast.If(queueSize >= 0, "worker pool queue size cannot be negative, got %d", queueSize)

	ctx, cancel := context.WithCancel(ctx)
	return &workerPool{
		workers: workers,
		jobs:    make(chan job, queueSize),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (p *workerPool) start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running.CompareAndSwap(false, true) {
		return
	}
	p.wg.Add(p.workers)
	for i := 0; i < p.workers; i++ {
		go p.worker()
	}
}

func (p *workerPool) worker() {
	defer p.wg.Done()
	for {
		select {
		case j, ok := <-p.jobs:
			if !ok {
				return
			}
			j(p.ctx)
		case <-p.ctx.Done():
			return
		}
	}
}

// submit queues j, waiting for room until ctx or the pool ends
func (p *workerPool) submit(ctx context.Context, j job) error {
	if !p.running.Load() {
		return ErrPoolStopped
	}
	select {
	case p.jobs <- j:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return p.ctx.Err()
	}
}

// drain stops accepting jobs and waits for queued ones to finish
func (p *workerPool) drain() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.jobs)
	p.wg.Wait()
	p.cancel()
}
