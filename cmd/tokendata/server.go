package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/chenshisan2025/YESC0925/internal/aggregate"
	"github.com/chenshisan2025/YESC0925/internal/platform/observability"
	"github.com/chenshisan2025/YESC0925/internal/platform/worker"
)

// cacheAdmin is the part of the service the debug routes need.
type cacheAdmin interface {
	Stats() aggregate.Stats
	ClearCache(ctx context.Context, scope string) (int, error)
}

type workerStats interface {
	Stats() worker.Stats
}

// newServer builds the HTTP server for health checks, metrics and cache diagnostics.
func newServer(port int, svc cacheAdmin, pool workerStats, metrics *observability.Metrics, logger *observability.Logger, ready *atomic.Bool) *http.Server {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	// Readiness check
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if !ready.Load() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	// Metrics endpoint
	mux.Handle("/metrics", metrics.Handler())

	mux.HandleFunc("/debug/cache", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}
		writeJSON(w, http.StatusOK, svc.Stats())
	})

	mux.HandleFunc("/debug/workers", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}
		writeJSON(w, http.StatusOK, pool.Stats())
	})

	mux.HandleFunc("/debug/cache/clear", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}
		scope := r.URL.Query().Get("scope")
		n, err := svc.ClearCache(r.Context(), scope)
		if err != nil {
			logger.LogWarn(r.Context(), "cache clear rejected", "scope", scope, "error", err)
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"scope": scope, "removed": n})
	})

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
