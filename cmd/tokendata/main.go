package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/chenshisan2025/YESC0925/internal/aggregate"
	"github.com/chenshisan2025/YESC0925/internal/datasource"
	"github.com/chenshisan2025/YESC0925/internal/platform/cache"
	"github.com/chenshisan2025/YESC0925/internal/platform/config"
	"github.com/chenshisan2025/YESC0925/internal/platform/observability"
	"github.com/chenshisan2025/YESC0925/internal/platform/resilience"
	"github.com/chenshisan2025/YESC0925/internal/platform/worker"
	"github.com/chenshisan2025/YESC0925/internal/subscription"
)

// version is set at build time
var version = "dev"

func main() {
	// Create root context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	log.Println("Loading configuration...")
	cfg := config.MustLoad(os.Getenv("TOKENDATA_CONFIG"))

	// Setup observability (foundational - must be first)
	log.Println("Setting up observability...")
	logger := observability.NewLogger(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)

	metrics, err := observability.NewMetrics(observability.MetricsConfig{
		ServiceName:  cfg.Observability.ServiceName,
		Version:      version,
		Enabled:      cfg.Observability.Metrics.Enabled,
		OTLPEndpoint: cfg.Observability.Metrics.OTLPEndpoint,
		OTLPInsecure: true,
	})
	if err != nil {
		log.Fatalf("Failed to create metrics: %v", err)
	}
	defer metrics.Shutdown(context.Background())

	tracer, err := observability.NewTracerProvider(ctx, observability.TracingConfig{
		ServiceName: cfg.Observability.ServiceName,
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		Enabled:     cfg.Observability.Tracing.Enabled,
		SampleRatio: cfg.Observability.Tracing.SampleRatio,
	})
	if err != nil {
		log.Fatalf("Failed to create tracer: %v", err)
	}
	defer tracer.Shutdown(context.Background())

	logger.Info("observability setup complete", "version", version)

	// Error classification feeds the error counters
	classifier := resilience.NewClassifier()
	classifier.OnError(func(appErr *resilience.AppError) {
		metrics.RecordError(ctx, appErr.Kind.String(), appErr.Severity.String())
	})

	// Cache partitions
	logger.Info("setting up cache...")
	partsCfg, err := partitionsConfig(cfg.Cache)
	if err != nil {
		log.Fatalf("Invalid cache config: %v", err)
	}
	partsCfg.Logger = logger
	partsCfg.Metrics = metrics
	parts := cache.NewPartitions(partsCfg)
	defer parts.Close()

	deps := datasource.Deps{
		Cache:      parts,
		Classifier: classifier,
		Logger:     logger,
		Metrics:    metrics,
	}

	// Create data source adapters
	logger.Info("creating data source adapters...")
	token, err := config.ResolveToken(cfg.Token.ContractAddress)
	if err != nil {
		log.Fatalf("Invalid token: %v", err)
	}
	warm := []string{token.Address}

	explorer, err := datasource.NewBscScanProvider(clientConfig(cfg.Explorer, warm), deps)
	if err != nil {
		logger.LogError(ctx, "failed to create explorer provider", err)
		log.Fatalf("Failed to create explorer provider: %v", err)
	}

	pancake, err := datasource.NewPancakeSwapProvider(clientConfig(cfg.PancakeSwap, warm), deps)
	if err != nil {
		logger.LogError(ctx, "failed to create PancakeSwap provider", err)
		log.Fatalf("Failed to create PancakeSwap provider: %v", err)
	}

	stable, err := config.ResolveToken(cfg.OneInch.StableToken)
	if err != nil {
		log.Fatalf("Invalid stable token: %v", err)
	}
	oneinch, err := datasource.NewOneInchProvider(datasource.OneInchConfig{
		ClientConfig:   clientConfig(cfg.OneInch.UpstreamConfig, nil),
		ChainID:        cfg.Token.ChainID,
		StableAddress:  stable.Address,
		StableDecimals: stable.Decimals,
		TokenDecimals:  token.Decimals,
	}, deps)
	if err != nil {
		logger.LogError(ctx, "failed to create 1inch provider", err)
		log.Fatalf("Failed to create 1inch provider: %v", err)
	}

	coingecko, err := datasource.NewCoinGeckoProvider(datasource.CoinGeckoConfig{
		ClientConfig: clientConfig(cfg.CoinGecko.UpstreamConfig, warm),
		Platform:     cfg.CoinGecko.Platform,
		VsCurrency:   cfg.CoinGecko.VsCurrency,
	}, deps)
	if err != nil {
		logger.LogError(ctx, "failed to create CoinGecko provider", err)
		log.Fatalf("Failed to create CoinGecko provider: %v", err)
	}

	registry := datasource.NewRegistry(coingecko, pancake, oneinch)
	chain, err := registry.Ordered(cfg.Price.FallbackOrder)
	if err != nil {
		log.Fatalf("Invalid price fallback order: %v", err)
	}

	warmer := cache.NewWarmer(logger, cache.WarmupConfig{
		Timeout:         cfg.Warmup.Timeout,
		ContinueOnError: true,
		Parallel:        true,
		Concurrency:     cfg.Warmup.Concurrency,
	})

	// Aggregation service
	service, err := aggregate.NewService(aggregate.Config{
		Explorer:   explorer,
		Dex:        pancake,
		Aggregator: oneinch,
		Oracle:     coingecko,
		Prices:     chain,
		Health:     []datasource.HealthProvider{explorer, pancake, oneinch, coingecko},
		Cache:      parts,
		Warmer:     warmer,
		Classifier: classifier,
		Logger:     logger,
		Metrics:    metrics,
	})
	if err != nil {
		log.Fatalf("Failed to create aggregate service: %v", err)
	}

	// Background revalidation runs on this pool
	pool := worker.NewPoolWithConfig(ctx, worker.PoolConfig{
		Workers:    cfg.Revalidate.Workers,
		QueueSize:  cfg.Revalidate.QueueSize,
		DropPolicy: worker.DropPolicyNewest,
		Logger:     logger,
	})
	defer pool.Close()

	// Start HTTP server for health checks, metrics and cache diagnostics
	var ready atomic.Bool
	server := newServer(cfg.HTTP.Port, service, pool, metrics, logger, &ready)
	go func() {
		logger.Info("HTTP server listening", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.LogError(ctx, "HTTP server error", err)
			cancel()
		}
	}()

	// Warm the cache before declaring readiness
	if cfg.Warmup.Enabled {
		for _, p := range []cache.WarmupProvider{explorer, pancake, oneinch, coingecko} {
			warmer.RegisterProvider(p)
		}
		if results := warmer.Warmup(ctx); results.HasErrors() {
			logger.LogWarn(ctx, "cache warm-up finished with errors", "errors", results.Errors)
		}
	}

	if cfg.Revalidate.Enabled {
		revalidator, err := newRevalidator(ctx, cfg.Revalidate, pool, parts, logger, metrics)
		if err != nil {
			log.Fatalf("Failed to create revalidator: %v", err)
		}
		defer revalidator.Close()

		subs := subscribeToken(revalidator, service, token.Address, chain[0].Name())
		defer func() {
			for _, s := range subs {
				s.Unsubscribe()
			}
		}()
		logger.Info("revalidation started", "subscriptions", len(subs))
	}

	ready.Store(true)
	logger.Info("token data service started", "token", token.Address, "price_sources", cfg.Price.FallbackOrder)

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info("shutdown signal received, gracefully stopping...")
	case <-ctx.Done():
		logger.Info("context cancelled, stopping")
	}

	// Graceful shutdown
	ready.Store(false)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.LogError(shutdownCtx, "HTTP server shutdown failed", err)
	}
	cancel()
	logger.Info("application stopped")
}

// clientConfig maps one upstream section onto adapter settings.
func clientConfig(u config.UpstreamConfig, warm []string) datasource.ClientConfig {
	return datasource.ClientConfig{
		BaseURL: u.BaseURL,
		APIKey:  u.APIKey,
		Timeout: u.Timeout,
		Retry: resilience.RetryPolicy{
			MaxAttempts: u.Retry.Attempts,
			BaseDelay:   u.Retry.Delay,
			Backoff:     u.Retry.Backoff,
		},
		RateLimitRPS:     u.RateLimit.RequestsPerSecond,
		RateLimitBurst:   u.RateLimit.Burst,
		FailureThreshold: u.Breaker.FailureThreshold,
		SuccessThreshold: u.Breaker.SuccessThreshold,
		OpenTimeout:      u.Breaker.OpenTimeout,
		WarmAddresses:    warm,
	}
}

// partitionsConfig maps the cache section onto store settings.
func partitionsConfig(c config.CacheConfig) (cache.PartitionsConfig, error) {
	out := cache.DefaultPartitionsConfig()
	out.CleanupInterval = c.CleanupInterval

	parts := []struct {
		name string
		in   config.PartitionConfig
		out  *cache.PartitionConfig
	}{
		{cache.PartitionAPI, c.API, &out.API},
		{cache.PartitionPrice, c.Price, &out.Price},
		{cache.PartitionToken, c.Token, &out.Token},
	}
	for _, p := range parts {
		strategy, err := cache.ParseStrategy(p.in.Strategy)
		if err != nil {
			return out, fmt.Errorf("cache.%s: %w", p.name, err)
		}
		*p.out = cache.PartitionConfig{Capacity: p.in.Capacity, Strategy: strategy}
	}

	if c.DefaultTTL > 0 {
		out.TTLs.Default = c.DefaultTTL
	}
	if len(c.TTLRules) > 0 {
		rules := make([]cache.TTLRule, len(c.TTLRules))
		for i, r := range c.TTLRules {
			rules[i] = cache.TTLRule{Match: r.Match, TTL: r.TTL}
		}
		out.TTLs.Rules = rules
	}
	return out, nil
}

func newRevalidator(
	ctx context.Context,
	cfg config.RevalidateConfig,
	pool *worker.Pool,
	parts *cache.Partitions,
	logger *observability.Logger,
	metrics *observability.Metrics,
) (*subscription.Revalidator, error) {
	intervals, err := subscription.ParseIntervals(cfg.Intervals)
	if err != nil {
		return nil, err
	}
	return subscription.NewRevalidator(ctx, subscription.Config{
		Intervals:      intervals,
		DedupeInterval: cfg.Dedupe,
		Invalidate:     parts.Invalidate,
		Pool:           pool,
		Logger:         logger,
		Metrics:        metrics,
	})
}

// subscribeToken keeps the project token's hot resources fresh.
func subscribeToken(r *subscription.Revalidator, svc *aggregate.Service, addr, primaryPrice string) []*subscription.Subscription {
	const page, offset = 1, 25

	return []*subscription.Subscription{
		subscription.SubscribeResult(r, subscription.ResourcePrice, cache.Keys.Price(primaryPrice, addr),
			func(ctx context.Context) datasource.FetchResult[datasource.TokenPrice] { return svc.GetTokenPrice(ctx, addr) }),
		subscription.SubscribeResult(r, subscription.ResourceSupply, cache.Keys.Supply(addr),
			func(ctx context.Context) datasource.FetchResult[string] { return svc.GetTotalSupply(ctx, addr) }),
		subscription.SubscribeResult(r, subscription.ResourceLiquidity, cache.Keys.Liquidity(addr),
			func(ctx context.Context) datasource.FetchResult[datasource.Liquidity] { return svc.GetLiquidity(ctx, addr) }),
		subscription.SubscribeResult(r, subscription.ResourceVolume, cache.Keys.Volume(addr),
			func(ctx context.Context) datasource.FetchResult[datasource.Volume] { return svc.GetVolume(ctx, addr) }),
		subscription.SubscribeResult(r, subscription.ResourceTransactions, cache.Keys.Transactions(addr, page, offset),
			func(ctx context.Context) datasource.FetchResult[[]datasource.TokenTransfer] {
				return svc.GetTransactions(ctx, addr, page, offset)
			}),
		subscription.SubscribeResult(r, subscription.ResourceHolders, cache.Keys.Holders(addr, page, offset),
			func(ctx context.Context) datasource.FetchResult[[]datasource.Holder] {
				return svc.GetHolders(ctx, addr, page, offset)
			}),
		r.Subscribe(subscription.ResourceInfo, cache.Keys.Overview(addr), func(ctx context.Context) (any, *resilience.AppError) {
			ov := svc.GetTokenOverview(ctx, addr)
			if ov.HasError {
				return ov, ov.Errors[0]
			}
			return ov, nil
		}),
	}
}
