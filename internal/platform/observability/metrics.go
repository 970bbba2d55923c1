package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

// MetricsConfig selects the metric exporters.
type MetricsConfig struct {
	ServiceName  string
	Version      string
	Enabled      bool
	OTLPEndpoint string // optional; enables a periodic OTLP gRPC reader
	OTLPInsecure bool
}

// Metrics holds all application metrics
type Metrics struct {
	meter    metric.Meter
	provider *sdkmetric.MeterProvider
	exporter *prometheus.Exporter

	// Cache metrics
	CacheRequests  metric.Int64Counter
	CacheEvictions metric.Int64Counter

	// Upstream API metrics
	APICalls    metric.Int64Counter
	APIDuration metric.Float64Histogram
	APIRetries  metric.Int64Counter

	// Aggregation metrics
	PriceFallbacks metric.Int64Counter
	Revalidations  metric.Int64Counter

	// Circuit breaker metrics
	CircuitBreakerState metric.Int64Gauge

	// Error metrics
	Errors metric.Int64Counter
}

// NewMetrics creates a new Metrics instance. A disabled config yields a
// value whose Record methods are no-ops.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{}, nil
	}
	if cfg.Version == "" {
		cfg.Version = "1.0.0"
	}

	ctx := context.Background()

	res, err := resource.New(
		ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.Version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}

	opts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	}

	if cfg.OTLPEndpoint != "" {
		otlpOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}
		if cfg.OTLPInsecure {
			otlpOpts = append(otlpOpts, otlpmetricgrpc.WithInsecure())
		}
		otlpExp, err := otlpmetricgrpc.New(ctx, otlpOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(otlpExp)))
	}

	provider := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(provider)

	m := &Metrics{
		meter:    provider.Meter(cfg.ServiceName),
		provider: provider,
		exporter: exporter,
	}

	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	return m, nil
}

func (m *Metrics) initMetrics() error {
	var err error

	if m.CacheRequests, err = m.meter.Int64Counter(
		"tokendata.cache.requests",
		metric.WithDescription("Cache lookups by store and result (hit/miss)"),
	); err != nil {
		return err
	}

	if m.CacheEvictions, err = m.meter.Int64Counter(
		"tokendata.cache.evictions",
		metric.WithDescription("Entries evicted to make room, by store and strategy"),
	); err != nil {
		return err
	}

	if m.APICalls, err = m.meter.Int64Counter(
		"tokendata.api.calls",
		metric.WithDescription("Upstream API calls by provider, endpoint and status"),
	); err != nil {
		return err
	}

	if m.APIDuration, err = m.meter.Float64Histogram(
		"tokendata.api.duration",
		metric.WithDescription("Upstream API call duration in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return err
	}

	if m.APIRetries, err = m.meter.Int64Counter(
		"tokendata.api.retries",
		metric.WithDescription("Retries scheduled after a retryable upstream failure"),
	); err != nil {
		return err
	}

	if m.PriceFallbacks, err = m.meter.Int64Counter(
		"tokendata.price.fallbacks",
		metric.WithDescription("Price lookups answered by a lower-priority source"),
	); err != nil {
		return err
	}

	if m.Revalidations, err = m.meter.Int64Counter(
		"tokendata.revalidations",
		metric.WithDescription("Background refreshes by resource and outcome"),
	); err != nil {
		return err
	}

	if m.CircuitBreakerState, err = m.meter.Int64Gauge(
		"tokendata.circuit_breaker.state",
		metric.WithDescription("Circuit breaker state (0=closed, 1=open, 2=half-open)"),
	); err != nil {
		return err
	}

	if m.Errors, err = m.meter.Int64Counter(
		"tokendata.errors",
		metric.WithDescription("Classified errors by kind and severity"),
	); err != nil {
		return err
	}

	return nil
}

func (m *Metrics) enabled() bool {
	return m != nil && m.meter != nil
}

// RecordCacheRequest records a cache hit or miss
func (m *Metrics) RecordCacheRequest(ctx context.Context, store string, hit bool) {
	if !m.enabled() {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("store", store),
		attribute.String("result", result),
	))
}

// RecordCacheEviction records a capacity eviction
func (m *Metrics) RecordCacheEviction(ctx context.Context, store, strategy string) {
	if !m.enabled() {
		return
	}
	m.CacheEvictions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("store", store),
		attribute.String("strategy", strategy),
	))
}

// RecordAPICall records one upstream request attempt
func (m *Metrics) RecordAPICall(ctx context.Context, provider, endpoint, status string, duration time.Duration) {
	if !m.enabled() {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("endpoint", endpoint),
		attribute.String("status", status),
	)
	m.APICalls.Add(ctx, 1, attrs)
	m.APIDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
}

// RecordRetry records a scheduled retry
func (m *Metrics) RecordRetry(ctx context.Context, provider, kind string) {
	if !m.enabled() {
		return
	}
	m.APIRetries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("kind", kind),
	))
}

// RecordPriceFallback records which source finally answered a price lookup
func (m *Metrics) RecordPriceFallback(ctx context.Context, source string, position int) {
	if !m.enabled() {
		return
	}
	m.PriceFallbacks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
		attribute.Int("position", position),
	))
}

// RecordRevalidation records a background refresh outcome
func (m *Metrics) RecordRevalidation(ctx context.Context, resource string, success bool) {
	if !m.enabled() {
		return
	}
	m.Revalidations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("resource", resource),
		attribute.Bool("success", success),
	))
}

// SetCircuitBreakerState sets circuit breaker state
// 0 = closed, 1 = open, 2 = half-open
func (m *Metrics) SetCircuitBreakerState(ctx context.Context, service string, state int64) {
	if !m.enabled() {
		return
	}
	m.CircuitBreakerState.Record(ctx, state, metric.WithAttributes(attribute.String("service", service)))
}

// RecordError records a classified error
func (m *Metrics) RecordError(ctx context.Context, kind, severity string) {
	if !m.enabled() {
		return
	}
	m.Errors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("severity", severity),
	))
}

// Handler returns the HTTP handler for Prometheus metrics
func (m *Metrics) Handler() http.Handler {
	if m.enabled() && m.exporter != nil {
		// the OTel Prometheus exporter registers with the default registry
		return promhttp.Handler()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("metrics not available"))
	})
}

// Shutdown flushes and stops the meter provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil || m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}
