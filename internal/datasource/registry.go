package datasource

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// PriceSource is implemented by every adapter that can price a token.
type PriceSource interface {
	Name() string
	TokenPrice(ctx context.Context, addr string) FetchResult[TokenPrice]
}

// Registry manages the named price sources available for fallback chains.
type Registry struct {
	sources map[string]PriceSource
	mu      sync.RWMutex
}

// NewRegistry creates a registry holding the given sources.
func NewRegistry(sources ...PriceSource) *Registry {
	r := &Registry{
		sources: make(map[string]PriceSource),
	}
	for _, s := range sources {
		r.Register(s)
	}
	return r
}

// Register adds or replaces a source under its Name.
func (r *Registry) Register(source PriceSource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[source.Name()] = source
}

// Get returns the source registered under name.
func (r *Registry) Get(name string) (PriceSource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sources[name]
	return s, ok
}

// Names returns the registered source names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Ordered resolves names into a fallback chain, preserving their order.
func (r *Registry) Ordered(names []string) ([]PriceSource, error) {
	chain := make([]PriceSource, 0, len(names))
	for _, name := range names {
		s, ok := r.Get(name)
		if !ok {
			return nil, fmt.Errorf("unknown price source: %s (available: %v)", name, r.Names())
		}
		chain = append(chain, s)
	}
	return chain, nil
}

// Health collects the health of every registered source that reports it.
func (r *Registry) Health() []ProviderHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ProviderHealth, 0, len(r.sources))
	for _, s := range r.sources {
		if hp, ok := s.(HealthProvider); ok {
			out = append(out, hp.Health())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}
