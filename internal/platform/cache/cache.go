// Package cache provides the bounded in-memory stores that sit in front of
// every upstream API, together with key naming, TTL defaults and warm-up.
package cache

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a key is not found in cache
	ErrNotFound = errors.New("cache: key not found")

	// ErrInvalidValue is returned when cache value is invalid
	ErrInvalidValue = errors.New("cache: invalid value")
)

// Strategy selects the eviction victim when a store is full.
type Strategy string

const (
	// StrategyRecency evicts the least recently accessed entry.
	StrategyRecency Strategy = "lru"
	// StrategyFrequency evicts the least frequently accessed entry, oldest first on ties.
	StrategyFrequency Strategy = "lfu"
	// StrategyExpiryFirst evicts an expired entry if any, else falls back to recency.
	StrategyExpiryFirst Strategy = "ttl"
)

// ParseStrategy accepts the config spelling of a strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyRecency, StrategyFrequency, StrategyExpiryFirst:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("unknown cache strategy %q", s)
}

// Clock provides time operations for the cache.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

// GetAs reads key and asserts its type. A wrong type is reported as ErrInvalidValue.
func GetAs[T any](s *Store, key string) (T, error) {
	var zero T
	v, ok := s.Get(key)
	if !ok {
		return zero, ErrNotFound
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s holds %T", ErrInvalidValue, key, v)
	}
	return typed, nil
}
