package subscription

import (
	"context"
	"sync"
	"time"

	"github.com/chenshisan2025/YESC0925/internal/platform/resilience"
)

// entry is the shared state of one subscribed key.
type entry struct {
	resource Resource
	key      string
	load     loader
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	refs     int // guarded by Revalidator.mu

	mu          sync.RWMutex
	state       State
	lastAttempt time.Time
	watchers    []chan struct{}
}

// fresh reports whether a refresh finished within window of now.
func (e *entry) fresh(now time.Time, window time.Duration) bool {
	if window <= 0 {
		return false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.lastAttempt.IsZero() && now.Sub(e.lastAttempt) < window
}

func (e *entry) begin() {
	e.mu.Lock()
	e.state.Loading = true
	e.mu.Unlock()
}

// finish records a refresh outcome. Errors keep the previous data.
func (e *entry) finish(now time.Time, data any, source string, appErr *resilience.AppError) State {
	e.mu.Lock()
	e.lastAttempt = now
	e.state.Loading = false
	if appErr != nil {
		e.state.Err = appErr
		e.state.ErrorCount++
	} else {
		e.state.Data = data
		e.state.Err = nil
		e.state.ErrorCount = 0
		e.state.Source = source
		e.state.UpdatedAt = now
	}
	st := e.state
	watchers := append([]chan struct{}(nil), e.watchers...)
	e.mu.Unlock()

	for _, ch := range watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return st
}

// State returns a copy of the current state.
func (e *entry) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

func (e *entry) watch(ch chan struct{}) {
	e.mu.Lock()
	e.watchers = append(e.watchers, ch)
	e.mu.Unlock()
}

func (e *entry) unwatch(ch chan struct{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, w := range e.watchers {
		if w == ch {
			e.watchers = append(e.watchers[:i], e.watchers[i+1:]...)
			return
		}
	}
}
