// Package worker provides a bounded worker pool for background refresh jobs.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/chenshisan2025/YESC0925/internal/platform/observability"
)

// ErrBackpressure is returned when the queue is full and the pool is not
// allowed to block.
var ErrBackpressure = errors.New("worker pool queue full")

// ErrPoolClosed is returned by Submit after Close.
var ErrPoolClosed = errors.New("worker pool closed")

// DropPolicy decides what Submit does when the queue is full.
type DropPolicy int

const (
	// DropPolicyBlock waits for queue space or cancellation.
	DropPolicyBlock DropPolicy = iota
	// DropPolicyNewest rejects the incoming job with ErrBackpressure.
	DropPolicyNewest
)

// Job represents a unit of work to be executed by a worker.
type Job struct {
	// ID is an optional identifier for the job (useful for logging/debugging)
	ID string
	// Execute is the function to run. It receives the pool context.
	Execute func(ctx context.Context) error
}

// PoolConfig configures a Pool.
type PoolConfig struct {
	Workers    int
	QueueSize  int
	DropPolicy DropPolicy
	Logger     *observability.Logger
}

// Stats is a snapshot of the pool counters.
type Stats struct {
	Workers       int   `json:"workers"`
	Queued        int   `json:"queued"`
	JobsSubmitted int64 `json:"jobsSubmitted"`
	JobsCompleted int64 `json:"jobsCompleted"`
	JobsFailed    int64 `json:"jobsFailed"`
	JobsPanicked  int64 `json:"jobsPanicked"`
	JobsDropped   int64 `json:"jobsDropped"`
}

// Pool is a worker pool that processes jobs concurrently.
// It maintains a fixed number of worker goroutines that pull jobs from a queue.
type Pool struct {
	workers    int
	dropPolicy DropPolicy
	jobQueue   chan Job
	logger     *observability.Logger

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	// mu guards closed against sends on the closed queue
	mu     sync.RWMutex
	closed bool

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	panicked  atomic.Int64
	dropped   atomic.Int64
}

// NewPool creates a blocking pool with the given workers and queue size.
//
// Example:
//
//	pool := worker.NewPool(ctx, 4, 64)
//	defer pool.Close()
//	pool.Submit(worker.Job{ID: "price", Execute: refresh})
func NewPool(ctx context.Context, workers int, queueSize int) *Pool {
	return NewPoolWithConfig(ctx, PoolConfig{Workers: workers, QueueSize: queueSize})
}

// NewPoolWithConfig creates a pool and starts its workers.
func NewPoolWithConfig(ctx context.Context, cfg PoolConfig) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.Nop()
	}

	poolCtx, cancel := context.WithCancel(ctx)

	p := &Pool{
		workers:    cfg.Workers,
		dropPolicy: cfg.DropPolicy,
		jobQueue:   make(chan Job, cfg.QueueSize),
		logger:     cfg.Logger.Named("worker"),
		ctx:        poolCtx,
		cancel:     cancel,
	}

	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobQueue:
			if !ok {
				return
			}
			if err := p.run(job); err != nil {
				p.logger.LogDebug(p.ctx, "worker job failed", "job_id", job.ID, "error", err)
			}
		}
	}
}

// run executes job, converting a panic into an error.
func (p *Pool) run(job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.panicked.Add(1)
			err = fmt.Errorf("job %s panicked: %v", job.ID, r)
			p.logger.LogError(p.ctx, "worker job panicked", err, "job_id", job.ID)
		}
		if err != nil {
			p.failed.Add(1)
		} else {
			p.completed.Add(1)
		}
	}()
	return job.Execute(p.ctx)
}

// Submit adds a job to the queue. With DropPolicyBlock it waits for space;
// with DropPolicyNewest a full queue yields ErrBackpressure.
func (p *Pool) Submit(job Job) error {
	if p.dropPolicy == DropPolicyNewest {
		return p.TrySubmit(job)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	if err := p.ctx.Err(); err != nil {
		return err
	}

	select {
	case <-p.ctx.Done():
		return p.ctx.Err()
	case p.jobQueue <- job:
		p.submitted.Add(1)
		return nil
	}
}

// TrySubmit adds a job without blocking.
func (p *Pool) TrySubmit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	if err := p.ctx.Err(); err != nil {
		return err
	}

	select {
	case p.jobQueue <- job:
		p.submitted.Add(1)
		return nil
	default:
		p.dropped.Add(1)
		p.logger.LogWarn(p.ctx, "worker queue full, job dropped", "job_id", job.ID)
		return ErrBackpressure
	}
}

// Close stops accepting jobs, cancels running ones and waits for the
// workers. Safe to call more than once.
func (p *Pool) Close() {
	p.cancel()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobQueue)
	p.mu.Unlock()

	p.wg.Wait()
}

// Stats returns a snapshot of the counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:       p.workers,
		Queued:        len(p.jobQueue),
		JobsSubmitted: p.submitted.Load(),
		JobsCompleted: p.completed.Load(),
		JobsFailed:    p.failed.Load(),
		JobsPanicked:  p.panicked.Load(),
		JobsDropped:   p.dropped.Load(),
	}
}
