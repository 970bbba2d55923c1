package datasource

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chenshisan2025/YESC0925/internal/platform/cache"
	"github.com/chenshisan2025/YESC0925/internal/platform/resilience"
	"github.com/stretchr/testify/assert"
)

const (
	testToken  = "0x20f663CEa80FaCE82ACDFA3aAE6862d246cE0333"
	testWallet = "0x000000000000000000000000000000000000dEaD"
	testStable = "0x55d398326f99059fF775485246999027B3197955"
)

// countingServer serves handler and counts requests.
type countingServer struct {
	*httptest.Server
	hits atomic.Int32
}

func newCountingServer(t *testing.T, handler http.HandlerFunc) *countingServer {
	t.Helper()
	cs := &countingServer{}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cs.hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(cs.Close)
	return cs
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	assert.NoError(t, json.NewEncoder(w).Encode(v))
}

func testClientConfig(url string) ClientConfig {
	return ClientConfig{
		BaseURL: url,
		Timeout: 2 * time.Second,
		Retry: resilience.RetryPolicy{
			MaxAttempts: 3,
			BaseDelay:   time.Millisecond,
			Backoff:     true,
		},
		RateLimitRPS:     1000,
		RateLimitBurst:   100,
		FailureThreshold: 50,
	}
}

func testDeps(t *testing.T) Deps {
	t.Helper()
	cfg := cache.DefaultPartitionsConfig()
	cfg.CleanupInterval = 0
	parts := cache.NewPartitions(cfg)
	t.Cleanup(func() { _ = parts.Close() })
	return Deps{
		Cache:      parts,
		Classifier: resilience.NewClassifier(),
	}
}
