package datasource

import "time"

// ProviderHealth represents the current health state of an upstream adapter.
type ProviderHealth struct {
	// Provider is the adapter name (e.g., "bscscan", "coingecko")
	Provider string `json:"provider"`

	// LastSuccess is the timestamp of the last successful API call
	LastSuccess time.Time `json:"last_success"`

	// LastFailure is the timestamp of the last failed API call
	LastFailure time.Time `json:"last_failure"`

	// LastError contains the error message from the last failure, if any
	LastError string `json:"last_error,omitempty"`

	// LastDuration is the latency of the last API call
	LastDuration time.Duration `json:"last_duration"`

	// ConsecutiveFailures is the count of consecutive failed API calls
	ConsecutiveFailures int `json:"consecutive_failures"`

	// CircuitState is the current state of the circuit breaker (closed, open, half-open)
	CircuitState string `json:"circuit_state"`

	// RateLimit is the current requests-per-second budget
	RateLimit float64 `json:"rate_limit"`
}

// Healthy reports whether the last call succeeded and the breaker is not open.
func (h ProviderHealth) Healthy() bool {
	return h.ConsecutiveFailures == 0 && h.CircuitState != "open"
}

// HealthProvider is implemented by adapters that expose health status.
// Health must be safe for concurrent use and must not block.
type HealthProvider interface {
	Health() ProviderHealth
}
