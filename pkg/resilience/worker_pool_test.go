package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
)

func TestWorkerPoolFansOutAndCapturesFirstError(t *testing.T) {
	// Shaped like the sweep that uses it: per-item checks fan out, the
	// first failure is kept, the rest of the batch still runs.
	pool := NewWorkerPool(4, 8)

	var mu sync.Mutex
	var firstErr error
	var processed int32

	for i := 0; i < 20; i++ {
		n := i
		err := pool.Submit(context.Background(), func() {
			atomic.AddInt32(&processed, 1)
			if n%7 == 3 {
				mu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("item %d failed", n)
				}
				mu.Unlock()
			}
		})
		if err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}

	pool.Close()
	pool.Wait()

	if got := atomic.LoadInt32(&processed); got != 20 {
		t.Fatalf("processed = %d, want 20", got)
	}
	if firstErr == nil {
		t.Fatal("expected a captured error")
	}
}

func TestWorkerPoolSubmitHonorsCancelledContext(t *testing.T) {
	pool := NewWorkerPool(1, 1)
	defer func() {
		pool.Close()
		pool.Wait()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := pool.Submit(ctx, func() { t.Error("job must not run") })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestWorkerPoolSubmitAfterClose(t *testing.T) {
	pool := NewWorkerPool(1, 1)
	pool.Close()
	pool.Wait()

	if err := pool.Submit(context.Background(), func() {}); !errors.Is(err, ErrWorkerPoolClosed) {
		t.Fatalf("expected ErrWorkerPoolClosed, got %v", err)
	}
}

func TestWorkerPoolDrainsQueuedJobsOnClose(t *testing.T) {
	// One slow worker, a queue full of pending jobs: Close stops intake
	// but every accepted job still runs before Wait returns.
	pool := NewWorkerPool(1, 8)

	release := make(chan struct{})
	var done int32

	if err := pool.Submit(context.Background(), func() {
		<-release
		atomic.AddInt32(&done, 1)
	}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := pool.Submit(context.Background(), func() {
			atomic.AddInt32(&done, 1)
		}); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}

	pool.Close()
	close(release)
	pool.Wait()

	if got := atomic.LoadInt32(&done); got != 6 {
		t.Fatalf("done = %d, want 6", got)
	}
}

func TestWorkerPoolNilJobIsNoOp(t *testing.T) {
	pool := NewWorkerPool(1, 1)
	defer func() {
		pool.Close()
		pool.Wait()
	}()

	if err := pool.Submit(context.Background(), nil); err != nil {
		t.Fatalf("nil job must be accepted as a no-op, got %v", err)
	}
}

func TestWorkerPoolDefaultsNonPositiveSizes(t *testing.T) {
	pool := NewWorkerPool(0, -1)

	var ran int32
	if err := pool.Submit(context.Background(), func() {
		atomic.AddInt32(&ran, 1)
	}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	pool.Close()
	pool.Wait()

	if atomic.LoadInt32(&ran) != 1 {
		t.Fatal("job did not run")
	}
}

func TestWorkerPoolSubmitRacingCloseNeverPanics(t *testing.T) {
	// Submit either enqueues (and the job runs) or reports the pool
	// closed. It must never send on the closed channel.
	pool := NewWorkerPool(2, 2)

	var accepted, executed int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				err := pool.Submit(context.Background(), func() {
					atomic.AddInt32(&executed, 1)
				})
				switch {
				case err == nil:
					atomic.AddInt32(&accepted, 1)
				case errors.Is(err, ErrWorkerPoolClosed):
					return
				default:
					t.Errorf("unexpected Submit error: %v", err)
					return
				}
			}
		}()
	}

	pool.Close()
	wg.Wait()
	pool.Wait()

	if a, e := atomic.LoadInt32(&accepted), atomic.LoadInt32(&executed); a != e {
		t.Fatalf("accepted %d jobs but executed %d", a, e)
	}
}
