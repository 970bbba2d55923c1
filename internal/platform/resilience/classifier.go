package resilience

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// ClassifierStats is a point-in-time copy of the classifier counters.
type ClassifierStats struct {
	Total      int64            `json:"total"`
	ByKind     map[string]int64 `json:"byKind"`
	BySeverity map[string]int64 `json:"bySeverity"`
	Last       *AppError        `json:"last,omitempty"`
}

// Classifier maps arbitrary failures onto AppError and counts them.
// Safe for concurrent use.
type Classifier struct {
	total      atomic.Int64
	byKind     [KindValidation + 1]atomic.Int64
	bySeverity [SeverityCritical + 1]atomic.Int64

	mu        sync.RWMutex
	last      *AppError
	listeners map[uint64]func(*AppError)
	nextID    uint64

	now func() time.Time
}

// NewClassifier creates an empty classifier.
func NewClassifier() *Classifier {
	return &Classifier{
		listeners: make(map[uint64]func(*AppError)),
		now:       time.Now,
	}
}

// Classify converts err into an AppError. A nil error yields nil.
// Errors that already carry an AppError are returned unchanged and not recounted.
func (c *Classifier) Classify(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := AsAppError(err); ok {
		return appErr
	}

	appErr := classify(err)
	appErr.Timestamp = c.now()
	c.record(appErr)
	return appErr
}

func classify(err error) *AppError {
	msg := err.Error()

	var statusErr *HTTPStatusError
	hasStatus := errors.As(err, &statusErr)

	var validationErr *ValidationError
	var upstreamErr *UpstreamError
	var parseErr *ResponseParseError

	switch {
	case isTimeout(err):
		return NewAppError(KindTimeout, SeverityMedium, msg, err)

	case isTransport(err):
		return NewAppError(KindNetwork, SeverityMedium, msg, err)

	case hasStatus && statusErr.StatusCode == 429, mentionsRateLimit(msg):
		appErr := NewAppError(KindRateLimit, SeverityHigh, msg, err)
		if hasStatus {
			appErr.StatusCode = statusErr.StatusCode
		}
		return appErr

	case hasStatus && statusErr.StatusCode >= 500:
		appErr := NewAppError(KindAPI, SeverityMedium, msg, err)
		appErr.StatusCode = statusErr.StatusCode
		appErr.Retryable = true
		return appErr

	case errors.As(err, &upstreamErr):
		appErr := NewAppError(KindAPI, SeverityMedium, msg, err)
		appErr.Retryable = true
		return appErr

	case hasStatus && statusErr.StatusCode >= 400:
		appErr := NewAppError(KindAPI, SeverityLow, msg, err)
		appErr.StatusCode = statusErr.StatusCode
		return appErr

	case errors.As(err, &validationErr):
		return NewAppError(KindValidation, SeverityLow, msg, err)

	case errors.As(err, &parseErr):
		return NewAppError(KindUnknown, SeverityMedium, msg, err)

	default:
		return NewAppError(KindUnknown, SeverityMedium, msg, err)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isTransport(err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

func mentionsRateLimit(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests")
}

// Record counts an AppError built outside Classify and notifies listeners.
func (c *Classifier) Record(appErr *AppError) {
	if appErr == nil {
		return
	}
	c.record(appErr)
}

func (c *Classifier) record(appErr *AppError) {
	c.total.Add(1)
	if int(appErr.Kind) < len(c.byKind) {
		c.byKind[appErr.Kind].Add(1)
	}
	if int(appErr.Severity) < len(c.bySeverity) {
		c.bySeverity[appErr.Severity].Add(1)
	}

	// callers keep stamping appErr after it is recorded
	snap := appErr.snapshot()

	c.mu.Lock()
	c.last = snap
	listeners := make([]func(*AppError), 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	for _, fn := range listeners {
		notify(fn, snap.snapshot())
	}
}

// notify isolates the classifier from a panicking listener.
func notify(fn func(*AppError), appErr *AppError) {
	defer func() { _ = recover() }()
	fn(appErr)
}

// OnError registers a listener invoked for every classified error.
// The returned func removes it.
func (c *Classifier) OnError(fn func(*AppError)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Stats returns a snapshot of the counters.
func (c *Classifier) Stats() ClassifierStats {
	stats := ClassifierStats{
		Total:      c.total.Load(),
		ByKind:     make(map[string]int64, len(c.byKind)),
		BySeverity: make(map[string]int64, len(c.bySeverity)),
	}
	for k := range c.byKind {
		if n := c.byKind[k].Load(); n > 0 {
			stats.ByKind[Kind(k).String()] = n
		}
	}
	for s := range c.bySeverity {
		if n := c.bySeverity[s].Load(); n > 0 {
			stats.BySeverity[Severity(s).String()] = n
		}
	}

	c.mu.RLock()
	if c.last != nil {
		stats.Last = c.last.snapshot()
	}
	c.mu.RUnlock()
	return stats
}

// ResetStats zeroes all counters.
func (c *Classifier) ResetStats() {
	c.total.Store(0)
	for k := range c.byKind {
		c.byKind[k].Store(0)
	}
	for s := range c.bySeverity {
		c.bySeverity[s].Store(0)
	}
	c.mu.Lock()
	c.last = nil
	c.mu.Unlock()
}
