package cache

import (
	"context"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/chenshisan2025/YESC0925/internal/platform/observability"
)

// entry represents an item in the store
type entry struct {
	key          string
	value        any
	createdAt    time.Time
	lastAccessed time.Time
	ttl          time.Duration
	accessCount  int64
}

func (e *entry) expired(now time.Time) bool {
	return now.Sub(e.createdAt) > e.ttl
}

// Options configures a Store.
type Options struct {
	Name     string
	Capacity int
	Strategy Strategy

	// TTLs resolves the TTL used when Set is called with ttl <= 0.
	TTLs TTLTable

	// CleanupInterval enables the background sweeper when positive.
	CleanupInterval time.Duration

	Clock   Clock
	Logger  *observability.Logger
	Metrics *observability.Metrics
	OnEvict func(key string)
}

// Store is a bounded key/value cache with per-entry TTL.
// All methods are safe for concurrent use.
type Store struct {
	name     string
	capacity int
	strategy Strategy
	ttls     TTLTable
	clock    Clock
	logger   *observability.Logger
	metrics  *observability.Metrics
	onEvict  func(key string)

	mu      sync.Mutex
	entries map[string]*entry
	stats   counters

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewStore creates a new store. Capacity defaults to 1000 and the strategy to recency.
func NewStore(opts Options) *Store {
	if opts.Capacity <= 0 {
		opts.Capacity = 1000
	}
	if opts.Strategy == "" {
		opts.Strategy = StrategyRecency
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.TTLs.Default <= 0 && len(opts.TTLs.Rules) == 0 {
		opts.TTLs = DefaultTTLTable()
	}

	s := &Store{
		name:     opts.Name,
		capacity: opts.Capacity,
		strategy: opts.Strategy,
		ttls:     opts.TTLs,
		clock:    opts.Clock,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		onEvict:  opts.OnEvict,
		entries:  make(map[string]*entry, opts.Capacity),
		stopCh:   make(chan struct{}),
	}

	if opts.CleanupInterval > 0 {
		s.StartSweeper(context.Background(), opts.CleanupInterval)
	}

	return s
}

// Name returns the store name used in stats and metrics.
func (s *Store) Name() string {
	return s.name
}

// Get returns the value for key. Expired entries are removed and count as a miss.
func (s *Store) Get(key string) (any, bool) {
	s.mu.Lock()
	now := s.clock.Now()
	e, ok := s.entries[key]
	if ok && e.expired(now) {
		delete(s.entries, key)
		ok = false
	}
	if !ok {
		s.stats.misses++
		s.mu.Unlock()
		s.recordRequest(false)
		return nil, false
	}

	e.lastAccessed = now
	e.accessCount++
	s.stats.hits++
	value := e.value
	s.mu.Unlock()

	s.recordRequest(true)
	return value, true
}

// Has reports whether a live entry exists without touching access metadata or stats.
func (s *Store) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return false
	}
	if e.expired(s.clock.Now()) {
		delete(s.entries, key)
		return false
	}
	return true
}

// Set stores value under key. A non-positive ttl uses the store's TTL table.
// When the store is full and key is new, exactly one entry is evicted first.
func (s *Store) Set(key string, value any, ttl time.Duration) {
	s.set(key, value, ttl, false)
}

// SetIfAbsent stores value only when key has no live entry.
func (s *Store) SetIfAbsent(key string, value any, ttl time.Duration) bool {
	return s.set(key, value, ttl, true)
}

func (s *Store) set(key string, value any, ttl time.Duration, onlyIfAbsent bool) bool {
	if ttl <= 0 {
		ttl = s.ttls.For(key)
	}

	s.mu.Lock()
	now := s.clock.Now()

	current, exists := s.entries[key]
	if exists && current.expired(now) {
		delete(s.entries, key)
		exists = false
	}
	if exists && onlyIfAbsent {
		s.mu.Unlock()
		return false
	}

	var evicted string
	if !exists && len(s.entries) >= s.capacity {
		evicted = s.evictOne(now)
	}

	s.entries[key] = &entry{
		key:          key,
		value:        value,
		createdAt:    now,
		lastAccessed: now,
		ttl:          ttl,
		accessCount:  1,
	}
	s.stats.sets++
	s.mu.Unlock()

	if evicted != "" {
		s.afterEvict(evicted)
	}
	return true
}

// Take removes a live entry and returns its value with the TTL it had left.
func (s *Store) Take(key string) (any, time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, 0, false
	}
	delete(s.entries, key)
	remaining := e.ttl - s.clock.Now().Sub(e.createdAt)
	if remaining <= 0 {
		return nil, 0, false
	}
	s.stats.deletes++
	return e.value, remaining, true
}

// TTLFor returns the TTL Set applies to key when called without one.
func (s *Store) TTLFor(key string) time.Duration {
	return s.ttls.For(key)
}

// Delete removes key and reports whether it was present.
func (s *Store) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[key]; !ok {
		return false
	}
	delete(s.entries, key)
	s.stats.deletes++
	return true
}

// DeleteBatch removes every key matching pattern. An invalid regular
// expression is matched literally.
func (s *Store) DeleteBatch(pattern string) int {
	re, err := regexp.Compile(pattern)
	if err != nil {
		re = regexp.MustCompile(regexp.QuoteMeta(pattern))
	}
	return s.DeleteMatching(re)
}

// DeleteMatching removes every key matched by re.
func (s *Store) DeleteMatching(re *regexp.Regexp) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key := range s.entries {
		if re.MatchString(key) {
			delete(s.entries, key)
			removed++
		}
	}
	s.stats.deletes += int64(removed)
	return removed
}

// Cleanup removes all expired entries and returns how many were dropped.
func (s *Store) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	removed := 0
	for key, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Clear drops all entries. Statistics are kept.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*entry, s.capacity)
}

// Keys returns the stored keys, including ones that expired but were not yet swept.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stats returns cache statistics
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats.snapshot(s.name, len(s.entries), s.capacity, s.strategy)
}

// ResetStats zeroes the counters.
func (s *Store) ResetStats() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = counters{}
}

// Close stops the background sweeper.
func (s *Store) Close() error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	return nil
}

// StartSweeper runs Cleanup every interval (default one minute) until ctx
// is done or the store is closed.
func (s *Store) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go s.sweep(ctx, interval)
}

func (s *Store) sweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Cleanup(); n > 0 && s.logger != nil {
				s.logger.Debug("swept expired cache entries", "store", s.name, "removed", n)
			}
		case <-s.stopCh:
			return
		}
	}
}

func (s *Store) afterEvict(key string) {
	if s.metrics != nil {
		s.metrics.RecordCacheEviction(context.Background(), s.name, string(s.strategy))
	}
	if s.logger != nil {
		s.logger.Debug("evicted cache entry", "store", s.name, "key", key, "strategy", s.strategy)
	}
	if s.onEvict != nil {
		s.onEvict(key)
	}
}

func (s *Store) recordRequest(hit bool) {
	if s.metrics != nil {
		s.metrics.RecordCacheRequest(context.Background(), s.name, hit)
	}
}
