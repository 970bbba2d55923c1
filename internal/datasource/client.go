package datasource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/chenshisan2025/YESC0925/internal/platform/cache"
	"github.com/chenshisan2025/YESC0925/internal/platform/observability"
	"github.com/chenshisan2025/YESC0925/internal/platform/resilience"
)

const (
	tracerName   = "tokendata/datasource"
	maxBodyBytes = 4 << 20
	maxErrorBody = 512
)

// ClientConfig holds the connection and resilience settings shared by all adapters.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration

	Retry resilience.RetryPolicy

	RateLimitRPS   float64
	RateLimitBurst int

	FailureThreshold int
	SuccessThreshold int
	OpenTimeout      time.Duration

	// WarmAddresses are loaded by Warmup.
	WarmAddresses []string

	// HTTPClient overrides the default client built from Timeout.
	HTTPClient *http.Client
}

// Deps are the collaborators shared by all adapters. Any of them may be nil.
type Deps struct {
	Cache      *cache.Partitions
	Classifier *resilience.Classifier
	Logger     *observability.Logger
	Metrics    *observability.Metrics
}

// client is the HTTP plumbing and resilience pipeline behind each adapter.
type client struct {
	name       string
	http       *http.Client
	baseURL    string
	apiKey     string
	timeout    time.Duration
	headers    map[string]string
	retry      resilience.RetryPolicy
	limiter    *resilience.RateLimiter
	cb         *resilience.CircuitBreaker
	classifier *resilience.Classifier
	cache      *cache.Partitions
	logger     *observability.Logger
	metrics    *observability.Metrics
	warm       []string

	healthMu sync.RWMutex
	health   ProviderHealth
}

func newClient(name string, cfg ClientConfig, deps Deps) (*client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%s: base url is required", name)
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("%s: invalid base url: %w", name, err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 && cfg.Retry.BaseDelay == 0 {
		cfg.Retry = resilience.DefaultRetryPolicy()
	}
	if deps.Classifier == nil {
		deps.Classifier = resilience.NewClassifier()
	}
	if deps.Logger == nil {
		deps.Logger = observability.Nop()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	c := &client{
		name:       name,
		http:       httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		timeout:    cfg.Timeout,
		headers:    map[string]string{"Accept": "application/json"},
		limiter:    resilience.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		classifier: deps.Classifier,
		cache:      deps.Cache,
		logger:     deps.Logger.Named(name),
		metrics:    deps.Metrics,
		warm:       cfg.WarmAddresses,
		health:     ProviderHealth{Provider: name},
	}
	if usableKey(cfg.APIKey) {
		c.apiKey = cfg.APIKey
	} else if cfg.APIKey != "" {
		c.logger.Warn("ignoring placeholder API key")
	}

	c.retry = cfg.Retry
	c.retry.OnRetry = func(attempt int, delay time.Duration, appErr *resilience.AppError) {
		c.logger.Warn("retrying upstream call",
			"attempt", attempt,
			"delay_ms", delay.Milliseconds(),
			"kind", appErr.Kind.String(),
			"error", appErr.Message,
		)
		c.metrics.RecordRetry(context.Background(), name, appErr.Kind.String())
	}

	c.cb = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: cfg.FailureThreshold,
		SuccessThreshold: cfg.SuccessThreshold,
		Timeout:          cfg.OpenTimeout,
		OnStateChange: func(name string, from, to resilience.State) {
			c.logger.Warn("circuit breaker state change", "from", from.String(), "to", to.String())
			c.metrics.SetCircuitBreakerState(context.Background(), name, int64(to))
		},
		IsFailure: countsAgainstUpstream,
	})
	c.metrics.SetCircuitBreakerState(context.Background(), name, int64(c.cb.State()))

	return c, nil
}

// usableKey rejects empty keys and unfilled template placeholders.
func usableKey(key string) bool {
	k := strings.ToLower(strings.TrimSpace(key))
	return k != "" && !strings.Contains(k, "your_") && !strings.Contains(k, "_here")
}

// countsAgainstUpstream opens the breaker only for failures that a retry
// could have fixed. Client errors and caller cancellation do not count.
func countsAgainstUpstream(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	appErr, ok := resilience.AsAppError(err)
	if !ok {
		return true
	}
	return appErr.Retryable
}

// request describes one cacheable upstream read.
type request[T any] struct {
	endpoint string // metrics/span label
	key      string
	ttl      time.Duration // 0 uses the key's TTL rule
	validate error
	load     func(ctx context.Context) (T, error)
	// keep, when set, decides whether a successful result is cached.
	keep func(T) bool
}

// fetch runs the shared pipeline: validate, cache lookup, rate limit,
// circuit breaker, retry, cache store. It never panics and never returns
// a bare error.
func fetch[T any](ctx context.Context, c *client, req request[T]) FetchResult[T] {
	if req.validate != nil {
		appErr := c.classifier.Classify(req.validate).WithSource(c.name)
		return failed[T](c.name, appErr)
	}

	var store *cache.Store
	if c.cache != nil && req.key != "" {
		store = c.cache.For(req.key)
		if v, hit := store.Get(req.key); hit {
			if data, typed := v.(T); typed {
				c.logger.LogDebug(ctx, "cache hit", "key", req.key)
				return ok(c.name, data, true)
			}
		}
	}

	ctx, span := observability.StartClientSpan(ctx, tracerName, c.name+"."+req.endpoint,
		attribute.String("provider", c.name),
		attribute.String("endpoint", req.endpoint),
		attribute.String("cache.key", req.key),
	)

	data, err := resilience.ExecuteWithResult(c.cb, ctx, func(ctx context.Context) (T, error) {
		v, appErr := resilience.Retry(ctx, c.retry, c.classifier, func(ctx context.Context) (T, error) {
			return attempt(ctx, c, req)
		})
		if appErr != nil {
			return v, appErr
		}
		return v, nil
	})
	observability.EndSpanWithError(span, err)

	if err != nil {
		appErr := c.classifier.Classify(err)
		if appErr.Source == "" {
			appErr.WithSource(c.name)
		}
		appErr.WithContext("endpoint", req.endpoint)
		c.logger.LogError(ctx, "upstream fetch failed", appErr,
			"endpoint", req.endpoint,
			"key", req.key,
			"attempts", appErr.RetryCount,
		)
		return failed[T](c.name, appErr)
	}

	if store != nil && (req.keep == nil || req.keep(data)) {
		store.Set(req.key, data, req.ttl)
	}
	return ok(c.name, data, false)
}

// attempt is one rate limited, time boxed network call.
func attempt[T any](ctx context.Context, c *client, req request[T]) (T, error) {
	var zero T
	if err := c.limiter.Wait(ctx); err != nil {
		return zero, err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	v, err := req.load(callCtx)
	duration := time.Since(start)

	c.recordHealth(err, duration)

	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordAPICall(ctx, c.name, req.endpoint, status, duration)

	if err != nil {
		appErr := c.classifier.Classify(err).WithSource(c.name)
		c.limiter.Observe(appErr)
		return zero, appErr
	}
	c.limiter.Observe(nil)
	return v, nil
}

// getJSON issues a GET against baseURL+path and decodes a 2xx JSON body into out.
func (c *client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(body)
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return &resilience.HTTPStatusError{StatusCode: resp.StatusCode, Body: snippet}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &resilience.ResponseParseError{Body: body, Err: err}
	}
	return nil
}

// Name returns the adapter name.
func (c *client) Name() string {
	return c.name
}

// Health returns the current health status of the adapter.
func (c *client) Health() ProviderHealth {
	c.healthMu.RLock()
	defer c.healthMu.RUnlock()
	h := c.health
	h.CircuitState = c.cb.State().String()
	h.RateLimit = c.limiter.Limit()
	return h
}

func (c *client) recordHealth(err error, duration time.Duration) {
	c.healthMu.Lock()
	defer c.healthMu.Unlock()

	c.health.LastDuration = duration
	if err == nil {
		c.health.LastSuccess = time.Now()
		c.health.LastError = ""
		c.health.ConsecutiveFailures = 0
		return
	}

	c.health.LastFailure = time.Now()
	c.health.LastError = err.Error()
	c.health.ConsecutiveFailures++
}

// notFound builds the non-retryable API error for a lookup that came back empty.
func (c *client) notFound(what, addr string) *resilience.AppError {
	appErr := resilience.NewAppError(resilience.KindAPI, resilience.SeverityLow,
		fmt.Sprintf("%s not found for %s", what, addr), nil).
		WithSource(c.name).
		WithContext("address", addr)
	c.classifier.Record(appErr)
	return appErr
}
