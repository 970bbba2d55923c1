package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewPool_Defaults(t *testing.T) {
	ctx := context.Background()
	pool := NewPool(ctx, 4, 10)
	defer pool.Close()

	if w := pool.Stats().Workers; w != 4 {
		t.Errorf("Expected 4 workers, got %d", w)
	}

	if pool.dropPolicy != DropPolicyBlock {
		t.Errorf("Expected DropPolicyBlock, got %d", pool.dropPolicy)
	}
}

func TestNewPoolWithConfig_ZeroWorkers(t *testing.T) {
	ctx := context.Background()
	pool := NewPoolWithConfig(ctx, PoolConfig{
		Workers:   0, // Should default to 1
		QueueSize: 10,
	})
	defer pool.Close()

	if w := pool.Stats().Workers; w != 1 {
		t.Errorf("Expected 1 worker (default), got %d", w)
	}
}

func TestNewPoolWithConfig_NegativeQueueSize(t *testing.T) {
	ctx := context.Background()
	pool := NewPoolWithConfig(ctx, PoolConfig{
		Workers:   2,
		QueueSize: -5, // Should default to 0
	})
	defer pool.Close()

	// Pool should still work with unbuffered queue
	if w := pool.Stats().Workers; w != 2 {
		t.Errorf("Expected 2 workers, got %d", w)
	}
}

func TestPool_Submit_Success(t *testing.T) {
	ctx := context.Background()
	pool := NewPool(ctx, 2, 10)
	defer pool.Close()

	resultCh := make(chan int, 1)

	job := Job{
		ID: "test-job",
		Execute: func(ctx context.Context) error {
			resultCh <- 42
			return nil
		},
	}

	err := pool.Submit(job)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	select {
	case result := <-resultCh:
		if result != 42 {
			t.Errorf("Expected 42, got %d", result)
		}
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for job execution")
	}
}

func TestPool_Submit_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pool := NewPool(ctx, 2, 10)
	defer pool.Close()

	cancel() // Cancel immediately

	job := Job{
		ID: "test-job",
		Execute: func(ctx context.Context) error {
			return nil
		},
	}

	err := pool.Submit(job)
	if err != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

// blockWorker occupies the single worker until the returned func is called.
func blockWorker(t *testing.T, pool *Pool) (release func()) {
	t.Helper()
	blocker := make(chan struct{})
	started := make(chan struct{})
	err := pool.Submit(Job{
		ID: "blocking",
		Execute: func(ctx context.Context) error {
			close(started)
			select {
			case <-blocker:
			case <-ctx.Done():
			}
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for blocking job to start")
	}
	return func() { close(blocker) }
}

func noop(ctx context.Context) error { return nil }

func TestPool_TrySubmit_QueueFull(t *testing.T) {
	ctx := context.Background()
	pool := NewPoolWithConfig(ctx, PoolConfig{
		Workers:   1,
		QueueSize: 1,
	})
	defer pool.Close()

	release := blockWorker(t, pool)
	defer release()

	if err := pool.TrySubmit(Job{ID: "fill", Execute: noop}); err != nil {
		t.Fatalf("Expected queue space for fill job, got %v", err)
	}

	err := pool.TrySubmit(Job{ID: "overflow", Execute: noop})
	if !errors.Is(err, ErrBackpressure) {
		t.Errorf("Expected ErrBackpressure, got %v", err)
	}
}

func TestPool_DropPolicyNewest(t *testing.T) {
	ctx := context.Background()
	pool := NewPoolWithConfig(ctx, PoolConfig{
		Workers:    1,
		QueueSize:  1,
		DropPolicy: DropPolicyNewest,
	})
	defer pool.Close()

	release := blockWorker(t, pool)
	defer release()

	if err := pool.Submit(Job{ID: "fill", Execute: noop}); err != nil {
		t.Fatalf("Expected queue space for fill job, got %v", err)
	}

	err := pool.Submit(Job{ID: "newest", Execute: noop})
	if !errors.Is(err, ErrBackpressure) {
		t.Errorf("Expected ErrBackpressure, got %v", err)
	}

	stats := pool.Stats()
	if stats.JobsDropped != 1 {
		t.Errorf("Expected 1 dropped job, got %d", stats.JobsDropped)
	}
}

func TestPool_PanicRecovered(t *testing.T) {
	ctx := context.Background()
	pool := NewPool(ctx, 1, 10)
	defer pool.Close()

	_ = pool.Submit(Job{
		ID: "panicking",
		Execute: func(ctx context.Context) error {
			panic("boom")
		},
	})

	// the worker survives and keeps serving
	done := make(chan struct{})
	_ = pool.Submit(Job{
		ID: "after",
		Execute: func(ctx context.Context) error {
			close(done)
			return nil
		},
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Expected worker to survive panic")
	}

	stats := pool.Stats()
	if stats.JobsPanicked != 1 {
		t.Errorf("Expected 1 panicked job, got %d", stats.JobsPanicked)
	}
	if stats.JobsFailed != 1 {
		t.Errorf("Expected 1 failed job, got %d", stats.JobsFailed)
	}
}

func TestPool_Stats(t *testing.T) {
	ctx := context.Background()
	pool := NewPool(ctx, 2, 10)
	defer pool.Close()

	// Submit some jobs
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		_ = pool.Submit(Job{
			ID: "job",
			Execute: func(ctx context.Context) error {
				wg.Done()
				return nil
			},
		})
	}

	wg.Wait()
	time.Sleep(50 * time.Millisecond) // Let stats update

	stats := pool.Stats()
	if stats.JobsSubmitted != 5 {
		t.Errorf("Expected 5 submitted jobs, got %d", stats.JobsSubmitted)
	}
	if stats.JobsCompleted != 5 {
		t.Errorf("Expected 5 completed jobs, got %d", stats.JobsCompleted)
	}
}

func TestPool_FailedJobCounted(t *testing.T) {
	ctx := context.Background()
	pool := NewPool(ctx, 2, 10)
	defer pool.Close()

	ran := make(chan struct{})
	_ = pool.Submit(Job{
		ID: "failing",
		Execute: func(ctx context.Context) error {
			defer close(ran)
			return errors.New("job failed")
		},
	})

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for job execution")
	}

	deadline := time.Now().Add(time.Second)
	for pool.Stats().JobsFailed != 1 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	stats := pool.Stats()
	if stats.JobsFailed != 1 || stats.JobsCompleted != 0 {
		t.Errorf("Expected 1 failed and 0 completed jobs, got %d and %d", stats.JobsFailed, stats.JobsCompleted)
	}
}

func TestPool_ConcurrentSubmit(t *testing.T) {
	ctx := context.Background()
	pool := NewPool(ctx, 4, 100)
	defer pool.Close()

	var counter int64
	var wg sync.WaitGroup

	// Submit 100 jobs concurrently
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pool.Submit(Job{
				ID: "concurrent",
				Execute: func(ctx context.Context) error {
					atomic.AddInt64(&counter, 1)
					return nil
				},
			})
		}()
	}

	wg.Wait()
	time.Sleep(100 * time.Millisecond) // Let jobs complete

	if atomic.LoadInt64(&counter) != 100 {
		t.Errorf("Expected 100 executions, got %d", counter)
	}
}

func TestPool_Close(t *testing.T) {
	ctx := context.Background()
	pool := NewPool(ctx, 4, 10)

	// Submit a job
	executed := make(chan struct{})
	_ = pool.Submit(Job{
		ID: "before-close",
		Execute: func(ctx context.Context) error {
			close(executed)
			return nil
		},
	})

	<-executed
	pool.Close()

	// After close, submit should fail
	err := pool.Submit(Job{
		ID: "after-close",
		Execute: func(ctx context.Context) error {
			return nil
		},
	})

	if !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Expected ErrPoolClosed after Close(), got %v", err)
	}

	// second close is a no-op
	pool.Close()
}

func TestPool_StatsReportQueued(t *testing.T) {
	ctx := context.Background()
	pool := NewPoolWithConfig(ctx, PoolConfig{
		Workers:   1,
		QueueSize: 10,
	})
	defer pool.Close()

	release := blockWorker(t, pool)
	defer release()

	for i := 0; i < 5; i++ {
		_ = pool.TrySubmit(Job{ID: "queued", Execute: noop})
	}

	qLen := pool.Stats().Queued
	if qLen != 5 {
		t.Errorf("Expected queue length 5, got %d", qLen)
	}
}

// Benchmark tests
func BenchmarkPool_Submit(b *testing.B) {
	ctx := context.Background()
	pool := NewPool(ctx, 4, 1000)
	defer pool.Close()

	job := Job{
		ID: "bench",
		Execute: func(ctx context.Context) error {
			return nil
		},
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = pool.Submit(job)
	}
}
