package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/chenshisan2025/YESC0925/internal/platform/observability"
)

// WarmupProvider is implemented by data sources that know which of their
// resources are worth loading before the first consumer asks.
type WarmupProvider interface {
	// Name returns a human-readable name for logging purposes
	Name() string

	// Warmup loads the provider's hot resources through its normal fetch
	// path so they land in the cache. It must be idempotent.
	Warmup(ctx context.Context) error
}

// Fetcher loads the value for one key during key warm-up.
type Fetcher func(ctx context.Context, key string) (any, error)

// WarmupConfig configures the cache warming behavior.
type WarmupConfig struct {
	// Timeout bounds a whole warm-up run
	Timeout time.Duration

	// ContinueOnError keeps sequential provider warm-up going after a failure
	ContinueOnError bool

	// Parallel warms providers concurrently
	Parallel bool

	// Concurrency caps in-flight fetches when warming keys
	Concurrency int64
}

// DefaultWarmupConfig returns sensible defaults for cache warming.
func DefaultWarmupConfig() WarmupConfig {
	return WarmupConfig{
		Timeout:         30 * time.Second,
		ContinueOnError: true,
		Parallel:        true,
		Concurrency:     8,
	}
}

// WarmupResult contains the result of warming a single provider or key.
type WarmupResult struct {
	Name     string
	Skipped  bool
	Duration time.Duration
	Err      error
}

// WarmupResults contains the aggregate results of cache warming.
type WarmupResults struct {
	Results   []WarmupResult
	TotalTime time.Duration
	Loaded    int
	Skipped   int
	Errors    int
}

// HasErrors returns true if any provider or key failed.
func (wr *WarmupResults) HasErrors() bool {
	return wr.Errors > 0
}

func (wr *WarmupResults) tally() {
	for _, r := range wr.Results {
		switch {
		case r.Err != nil:
			wr.Errors++
		case r.Skipped:
			wr.Skipped++
		default:
			wr.Loaded++
		}
	}
}

// Warmer handles cache warming operations.
type Warmer struct {
	providers []WarmupProvider
	logger    *observability.Logger
	config    WarmupConfig
}

// NewWarmer creates a new cache warmer.
func NewWarmer(logger *observability.Logger, config WarmupConfig) *Warmer {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 8
	}
	return &Warmer{
		logger: logger,
		config: config,
	}
}

// RegisterProvider adds a warmup provider to the warmer.
func (w *Warmer) RegisterProvider(provider WarmupProvider) {
	w.providers = append(w.providers, provider)
}

// Warmup executes all registered warmup providers.
func (w *Warmer) Warmup(ctx context.Context) *WarmupResults {
	start := time.Now()
	results := &WarmupResults{}

	if len(w.providers) == 0 {
		results.TotalTime = time.Since(start)
		return results
	}

	warmupCtx, cancel := context.WithTimeout(ctx, w.config.Timeout)
	defer cancel()

	if w.config.Parallel {
		results.Results = w.warmupParallel(warmupCtx)
	} else {
		results.Results = w.warmupSequential(warmupCtx)
	}
	results.tally()
	results.TotalTime = time.Since(start)

	if results.Errors > 0 {
		w.logger.LogWarn(ctx, fmt.Sprintf("Cache warmup completed with %d/%d errors in %v",
			results.Errors, len(w.providers), results.TotalTime))
	} else {
		w.logger.LogInfo(ctx, fmt.Sprintf("Cache warmup completed successfully (%d providers) in %v",
			len(w.providers), results.TotalTime))
	}

	return results
}

func (w *Warmer) warmupParallel(ctx context.Context) []WarmupResult {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make([]WarmupResult, 0, len(w.providers))
	)

	for _, provider := range w.providers {
		wg.Add(1)
		go func(p WarmupProvider) {
			defer wg.Done()
			r := w.warmupProvider(ctx, p)
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
		}(provider)
	}

	wg.Wait()
	return results
}

func (w *Warmer) warmupSequential(ctx context.Context) []WarmupResult {
	results := make([]WarmupResult, 0, len(w.providers))

	for _, provider := range w.providers {
		result := w.warmupProvider(ctx, provider)
		results = append(results, result)

		if result.Err != nil && !w.config.ContinueOnError {
			break
		}
	}

	return results
}

func (w *Warmer) warmupProvider(ctx context.Context, provider WarmupProvider) WarmupResult {
	start := time.Now()
	name := provider.Name()

	w.logger.LogDebug(ctx, fmt.Sprintf("Warming cache: %s", name))

	err := provider.Warmup(ctx)
	duration := time.Since(start)

	if err != nil {
		w.logger.LogWarn(ctx, fmt.Sprintf("Cache warmup failed for %s: %v (took %v)", name, err, duration))
	}

	return WarmupResult{Name: name, Duration: duration, Err: err}
}

// WarmKeys loads every key that is not already live in store. Fetches run
// concurrently up to the configured limit. Failures are logged and reported
// per key. Loaded values get the TTL of their key.
func (w *Warmer) WarmKeys(ctx context.Context, store *Store, keys []string, fetch Fetcher) *WarmupResults {
	start := time.Now()
	results := &WarmupResults{Results: make([]WarmupResult, len(keys))}

	warmupCtx, cancel := context.WithTimeout(ctx, w.config.Timeout)
	defer cancel()

	sem := semaphore.NewWeighted(w.config.Concurrency)
	var wg sync.WaitGroup

	for i, key := range keys {
		if store.Has(key) {
			results.Results[i] = WarmupResult{Name: key, Skipped: true}
			continue
		}
		if err := sem.Acquire(warmupCtx, 1); err != nil {
			results.Results[i] = WarmupResult{Name: key, Err: fmt.Errorf("warm %s: %w", key, err)}
			continue
		}

		wg.Add(1)
		go func(i int, key string) {
			defer wg.Done()
			defer sem.Release(1)

			began := time.Now()
			value, err := fetch(warmupCtx, key)
			if err == nil {
				store.Set(key, value, 0)
			} else {
				w.logger.LogWarn(ctx, "cache warm-up fetch failed", "key", key, "error", err)
			}
			results.Results[i] = WarmupResult{Name: key, Duration: time.Since(began), Err: err}
		}(i, key)
	}

	wg.Wait()
	results.tally()
	results.TotalTime = time.Since(start)

	w.logger.LogInfo(ctx, "cache keys warmed",
		"store", store.Name(),
		"loaded", results.Loaded,
		"skipped", results.Skipped,
		"errors", results.Errors,
		"duration_ms", results.TotalTime.Milliseconds(),
	)

	return results
}
