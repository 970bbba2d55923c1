// Package subscription keeps cached upstream data fresh in the background.
// Each subscribed key is refreshed on the cadence of its resource; concurrent
// refreshes of one key collapse into a single fetch, and a failed refresh
// keeps the last good data next to the error.
package subscription

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/chenshisan2025/YESC0925/internal/datasource"
	"github.com/chenshisan2025/YESC0925/internal/platform/observability"
	"github.com/chenshisan2025/YESC0925/internal/platform/resilience"
	"github.com/chenshisan2025/YESC0925/internal/platform/worker"
)

// Fetcher loads the current value of a subscribed key.
type Fetcher func(ctx context.Context) (any, *resilience.AppError)

// loader is the internal form of a fetcher; it also reports the source.
type loader func(ctx context.Context) (any, string, *resilience.AppError)

// State is the latest known view of a subscribed key.
type State struct {
	Data       any
	Err        *resilience.AppError
	Loading    bool
	UpdatedAt  time.Time // last successful refresh
	Source     string
	ErrorCount int // consecutive failed refreshes
}

// HasData reports whether at least one refresh succeeded.
func (s State) HasData() bool {
	return !s.UpdatedAt.IsZero()
}

// Config configures a Revalidator.
type Config struct {
	Intervals map[Resource]time.Duration
	// DedupeInterval suppresses refreshes of a key that completed more
	// recently than this.
	DedupeInterval time.Duration
	// Invalidate, when set, is called with the key before each fetch so the
	// fetch reaches the upstream instead of the cache. The returned restore
	// func, if any, is called when the fetch fails.
	Invalidate func(key string) (restore func())
	Pool       *worker.Pool
	Logger     *observability.Logger
	Metrics    *observability.Metrics
}

// Revalidator owns the subscribed keys. Safe for concurrent use.
type Revalidator struct {
	ctx    context.Context
	cancel context.CancelFunc

	intervals  map[Resource]time.Duration
	dedupe     time.Duration
	invalidate func(key string) func()
	pool       *worker.Pool
	logger     *observability.Logger
	metrics    *observability.Metrics
	now        func() time.Time

	group singleflight.Group

	mu      sync.Mutex
	entries map[string]*entry
	loops   sync.WaitGroup
}

// NewRevalidator creates a Revalidator whose polling loops stop when ctx
// is cancelled or Close is called.
func NewRevalidator(ctx context.Context, cfg Config) (*Revalidator, error) {
	if cfg.Pool == nil {
		return nil, errors.New("subscription: worker pool is required")
	}
	if cfg.Intervals == nil {
		cfg.Intervals = DefaultIntervals()
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.Nop()
	}

	rctx, cancel := context.WithCancel(ctx)
	return &Revalidator{
		ctx:        rctx,
		cancel:     cancel,
		intervals:  cfg.Intervals,
		dedupe:     cfg.DedupeInterval,
		invalidate: cfg.Invalidate,
		pool:       cfg.Pool,
		logger:     cfg.Logger.Named("revalidator"),
		metrics:    cfg.Metrics,
		now:        time.Now,
		entries:    make(map[string]*entry),
	}, nil
}

// Subscribe starts tracking key. The first subscriber's fetcher is used for
// every later subscriber of the same key. The initial load runs on the
// worker pool; State reports Loading until it completes.
func (r *Revalidator) Subscribe(resource Resource, key string, fetch Fetcher) *Subscription {
	return r.subscribe(resource, key, func(ctx context.Context) (any, string, *resilience.AppError) {
		data, appErr := fetch(ctx)
		return data, "", appErr
	})
}

// SubscribeResult subscribes to a data source method, recording the source
// that answered each refresh.
func SubscribeResult[T any](r *Revalidator, resource Resource, key string, fn func(ctx context.Context) datasource.FetchResult[T]) *Subscription {
	return r.subscribe(resource, key, func(ctx context.Context) (any, string, *resilience.AppError) {
		res := fn(ctx)
		if !res.Success {
			return nil, res.Source, res.Err
		}
		return res.Data, res.Source, nil
	})
}

func (r *Revalidator) subscribe(resource Resource, key string, load loader) *Subscription {
	r.mu.Lock()
	e, exists := r.entries[key]
	if !exists {
		loopCtx, cancel := context.WithCancel(r.ctx)
		e = &entry{
			resource: resource,
			key:      key,
			load:     load,
			interval: r.intervals[resource],
			ctx:      loopCtx,
			cancel:   cancel,
			state:    State{Loading: true},
		}
		r.entries[key] = e
	}
	e.refs++
	sub := &Subscription{r: r, e: e, updates: make(chan struct{}, 1)}
	e.watch(sub.updates)
	r.mu.Unlock()

	if !exists {
		r.schedule(e)
		if e.interval > 0 {
			r.loops.Add(1)
			go r.poll(e)
		}
		r.logger.LogDebug(r.ctx, "subscribed", "resource", resource, "key", key, "interval", e.interval)
	}
	return sub
}

// poll submits a refresh every interval until the entry is dropped.
func (r *Revalidator) poll(e *entry) {
	defer r.loops.Done()

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			r.schedule(e)
		}
	}
}

// schedule queues a refresh of e under the pool's drop policy.
func (r *Revalidator) schedule(e *entry) {
	err := r.pool.Submit(worker.Job{
		ID: e.key,
		Execute: func(ctx context.Context) error {
			if st := r.refresh(e.ctx, e); st.Err != nil {
				return st.Err
			}
			return nil
		},
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		r.logger.LogWarn(r.ctx, "revalidation not scheduled", "key", e.key, "error", err)
	}
}

// Refresh refreshes key now unless a refresh completed within the dedupe
// interval. Concurrent calls share one fetch.
func (r *Revalidator) Refresh(ctx context.Context, key string) (State, bool) {
	r.mu.Lock()
	e, ok := r.entries[key]
	r.mu.Unlock()
	if !ok {
		return State{}, false
	}
	return r.refresh(ctx, e), true
}

func (r *Revalidator) refresh(ctx context.Context, e *entry) State {
	if e.fresh(r.now(), r.dedupe) {
		return e.State()
	}

	v, _, _ := r.group.Do(e.key, func() (any, error) {
		// a refresh may have finished between the check above and Do
		if e.fresh(r.now(), r.dedupe) {
			return e.State(), nil
		}

		e.begin()
		var restore func()
		if r.invalidate != nil {
			restore = r.invalidate(e.key)
		}
		data, source, appErr := e.load(ctx)
		if appErr != nil && restore != nil {
			restore()
		}
		st := e.finish(r.now(), data, source, appErr)

		r.metrics.RecordRevalidation(ctx, string(e.resource), appErr == nil)
		if appErr != nil {
			r.logger.LogWarn(ctx, "revalidation failed, keeping last data",
				"resource", e.resource,
				"key", e.key,
				"has_data", st.HasData(),
				"error", appErr,
			)
		}
		return st, nil
	})
	return v.(State)
}

// Len returns the number of subscribed keys.
func (r *Revalidator) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Close stops every polling loop.
func (r *Revalidator) Close() {
	r.cancel()
	r.loops.Wait()

	r.mu.Lock()
	r.entries = make(map[string]*entry)
	r.mu.Unlock()
}

func (r *Revalidator) release(sub *Subscription) {
	r.mu.Lock()
	e := sub.e
	e.refs--
	e.unwatch(sub.updates)
	drop := e.refs <= 0
	if drop && r.entries[e.key] == e {
		delete(r.entries, e.key)
	}
	r.mu.Unlock()

	if drop {
		e.cancel()
		r.logger.LogDebug(r.ctx, "unsubscribed", "resource", e.resource, "key", e.key)
	}
}

// Subscription is one consumer's handle on a subscribed key.
type Subscription struct {
	r       *Revalidator
	e       *entry
	updates chan struct{}
	once    sync.Once
}

// Key returns the subscribed cache key.
func (s *Subscription) Key() string { return s.e.key }

// Resource returns the resource class of the key.
func (s *Subscription) Resource() Resource { return s.e.resource }

// State returns the latest view of the key.
func (s *Subscription) State() State { return s.e.State() }

// Updates signals after every completed refresh. Signals coalesce.
func (s *Subscription) Updates() <-chan struct{} { return s.updates }

// Refresh refreshes the key now, subject to de-duplication.
func (s *Subscription) Refresh(ctx context.Context) State {
	return s.r.refresh(ctx, s.e)
}

// Unsubscribe releases the handle. The polling loop stops with the last one.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() { s.r.release(s) })
}
