package resilience

import (
	"errors"
	"fmt"
	"time"
)

// Kind is the failure category assigned by the classifier.
type Kind int

const (
	KindUnknown Kind = iota
	KindNetwork
	KindAPI
	KindRateLimit
	KindTimeout
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "NETWORK"
	case KindAPI:
		return "API"
	case KindRateLimit:
		return "RATE_LIMIT"
	case KindTimeout:
		return "TIMEOUT"
	case KindValidation:
		return "VALIDATION"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Severity ranks how much attention a failure deserves.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the severity by name.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// AppError is the structured failure handed across the data source boundary.
type AppError struct {
	Kind       Kind           `json:"kind"`
	Severity   Severity       `json:"severity"`
	Message    string         `json:"message"`
	Retryable  bool           `json:"retryable"`
	RetryCount int            `json:"retryCount"`
	Timestamp  time.Time      `json:"timestamp"`
	StatusCode int            `json:"statusCode,omitempty"`
	Source     string         `json:"source,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
	Err        error          `json:"-"`
}

// NewAppError builds an AppError with the retryable flag derived from kind.
func NewAppError(kind Kind, severity Severity, msg string, cause error) *AppError {
	return &AppError{
		Kind:      kind,
		Severity:  severity,
		Message:   msg,
		Retryable: kind == KindNetwork || kind == KindTimeout || kind == KindRateLimit,
		Timestamp: time.Now(),
		Err:       cause,
	}
}

func (e *AppError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("%s [%s/%s]: %s", e.Source, e.Kind, e.Severity, e.Message)
	}
	return fmt.Sprintf("[%s/%s] %s", e.Kind, e.Severity, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// snapshot returns a copy that later writes to e do not reach.
func (e *AppError) snapshot() *AppError {
	cp := *e
	if e.Context != nil {
		cp.Context = make(map[string]any, len(e.Context))
		for k, v := range e.Context {
			cp.Context[k] = v
		}
	}
	return &cp
}

// WithContext attaches a key/value pair and returns the same error.
func (e *AppError) WithContext(key string, value any) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithSource records which upstream produced the failure.
func (e *AppError) WithSource(source string) *AppError {
	e.Source = source
	return e
}

// AsAppError extracts an *AppError from an error chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HTTPStatusError is returned when an upstream answers with a non-2xx status.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d: %s", e.StatusCode, e.Body)
}

// UpstreamError is an application-level failure reported inside a 2xx response.
type UpstreamError struct {
	Status  string
	Message string
	Detail  string
}

func (e *UpstreamError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("upstream error (status %s): %s: %s", e.Status, e.Message, e.Detail)
	}
	return fmt.Sprintf("upstream error (status %s): %s", e.Status, e.Message)
}

// ValidationError reports bad input caught before any network call.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// ResponseParseError wraps a decode failure and keeps the raw body.
type ResponseParseError struct {
	Body []byte
	Err  error
}

func (e *ResponseParseError) Error() string {
	return fmt.Sprintf("failed to parse response: %v", e.Err)
}

func (e *ResponseParseError) Unwrap() error {
	return e.Err
}
