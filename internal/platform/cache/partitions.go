package cache

import (
	"fmt"
	"strings"
	"time"

	"github.com/chenshisan2025/YESC0925/internal/platform/observability"
)

// Partition names, also accepted as clear scopes.
const (
	PartitionAPI   = "api"
	PartitionPrice = "price"
	PartitionToken = "token"

	ScopeAll         = "all"
	scopeTokenPrefix = "token:"
)

// PartitionConfig sizes one store.
type PartitionConfig struct {
	Capacity int
	Strategy Strategy
}

// PartitionsConfig configures the three stores.
type PartitionsConfig struct {
	API             PartitionConfig
	Price           PartitionConfig
	Token           PartitionConfig
	TTLs            TTLTable
	CleanupInterval time.Duration
	Clock           Clock
	Logger          *observability.Logger
	Metrics         *observability.Metrics
}

// DefaultPartitionsConfig returns the stock sizing: a recency store for raw
// API responses, a small expiry-first store for prices and a frequency store
// for token metadata.
func DefaultPartitionsConfig() PartitionsConfig {
	return PartitionsConfig{
		API:             PartitionConfig{Capacity: 1000, Strategy: StrategyRecency},
		Price:           PartitionConfig{Capacity: 100, Strategy: StrategyExpiryFirst},
		Token:           PartitionConfig{Capacity: 200, Strategy: StrategyFrequency},
		TTLs:            DefaultTTLTable(),
		CleanupInterval: time.Minute,
	}
}

// Partitions groups the stores and routes keys between them.
type Partitions struct {
	API   *Store
	Price *Store
	Token *Store
}

// NewPartitions builds the three stores.
func NewPartitions(cfg PartitionsConfig) *Partitions {
	build := func(name string, pc PartitionConfig) *Store {
		return NewStore(Options{
			Name:            name,
			Capacity:        pc.Capacity,
			Strategy:        pc.Strategy,
			TTLs:            cfg.TTLs,
			CleanupInterval: cfg.CleanupInterval,
			Clock:           cfg.Clock,
			Logger:          cfg.Logger,
			Metrics:         cfg.Metrics,
		})
	}
	return &Partitions{
		API:   build(PartitionAPI, cfg.API),
		Price: build(PartitionPrice, cfg.Price),
		Token: build(PartitionToken, cfg.Token),
	}
}

// For returns the store responsible for key.
func (p *Partitions) For(key string) *Store {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) < 2 {
		return p.API
	}
	switch parts[1] {
	case "price", "quote", "market":
		return p.Price
	case "token", "tokens", "contract":
		return p.Token
	default:
		return p.API
	}
}

// Invalidate removes key from its store and returns a func that puts the
// removed value back with the TTL it had left. Restoring is a no-op when
// nothing was removed or the key was written again in between.
func (p *Partitions) Invalidate(key string) (restore func()) {
	store := p.For(key)
	value, remaining, ok := store.Take(key)
	if !ok {
		return func() {}
	}
	return func() { store.SetIfAbsent(key, value, remaining) }
}

// TTLFor returns the default TTL of key in the store that owns it.
func (p *Partitions) TTLFor(key string) time.Duration {
	return p.For(key).TTLFor(key)
}

// All returns the stores in a stable order.
func (p *Partitions) All() []*Store {
	return []*Store{p.API, p.Price, p.Token}
}

// Stats returns per-store statistics keyed by store name.
func (p *Partitions) Stats() map[string]Stats {
	out := make(map[string]Stats, 3)
	for _, s := range p.All() {
		out[s.Name()] = s.Stats()
	}
	return out
}

// Clear empties the stores selected by scope and returns the number of
// entries removed. Scopes: "all", "api", "price", "token" or
// "token:<address>" for every key referencing one address.
func (p *Partitions) Clear(scope string) (int, error) {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		scope = ScopeAll
	}

	clearStores := func(stores ...*Store) int {
		n := 0
		for _, s := range stores {
			n += s.Len()
			s.Clear()
		}
		return n
	}

	switch {
	case scope == ScopeAll:
		return clearStores(p.All()...), nil
	case scope == PartitionAPI:
		return clearStores(p.API), nil
	case scope == PartitionPrice:
		return clearStores(p.Price), nil
	case scope == PartitionToken:
		return clearStores(p.Token), nil
	case strings.HasPrefix(scope, scopeTokenPrefix):
		addr := strings.TrimPrefix(scope, scopeTokenPrefix)
		if NormalizeAddress(addr) == "" {
			return 0, fmt.Errorf("clear scope %q: missing address", scope)
		}
		re := AddressPattern(addr)
		n := 0
		for _, s := range p.All() {
			n += s.DeleteMatching(re)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("unknown clear scope %q", scope)
	}
}

// Cleanup sweeps expired entries from every store.
func (p *Partitions) Cleanup() int {
	n := 0
	for _, s := range p.All() {
		n += s.Cleanup()
	}
	return n
}

// Close stops every sweeper.
func (p *Partitions) Close() error {
	for _, s := range p.All() {
		_ = s.Close()
	}
	return nil
}
