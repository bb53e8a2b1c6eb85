package resilience

import (
	"context"
	"errors"
	"sync"
)

var ErrWorkerPoolClosed = errors.New("worker pool is closed")

// WorkerPool runs submitted jobs on a fixed set of goroutines. Used by the
// reconciliation sweep to fan out per-file checks without unbounded
// goroutine growth.
type WorkerPool struct {
	jobs   chan func()
	mu     sync.RWMutex
	closed bool
	once   sync.Once
	wg     sync.WaitGroup
}

// NewWorkerPool starts `workers` goroutines backed by a queue of
// `queueSize` pending jobs. Non-positive arguments fall back to minimal
// working values.
func NewWorkerPool(workers, queueSize int) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = workers
	}

	p := &WorkerPool{jobs: make(chan func(), queueSize)}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				if job != nil {
					job()
				}
			}
		}()
	}
	return p
}

// Submit enqueues a job, blocking until there is queue room or the
// context is done.
func (p *WorkerPool) Submit(ctx context.Context, job func()) error {
	if job == nil {
		return nil
	}

	// The read lock is held across the send so Close cannot close the
	// channel between the closed check and the enqueue.
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrWorkerPoolClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case p.jobs <- job:
		return nil
	}
}

// Close stops accepting jobs. Queued jobs still run.
func (p *WorkerPool) Close() {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.jobs)
		p.mu.Unlock()
	})
}

// Wait blocks until all workers have drained the queue and exited.
// Call Close first.
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}
