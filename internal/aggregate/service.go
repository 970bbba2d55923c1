// Package aggregate combines the data source adapters into the consumer
// facing operations: price with fallback, the token overview and the cache
// administration surface.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chenshisan2025/YESC0925/internal/datasource"
	"github.com/chenshisan2025/YESC0925/internal/platform/cache"
	"github.com/chenshisan2025/YESC0925/internal/platform/observability"
	"github.com/chenshisan2025/YESC0925/internal/platform/resilience"
)

// Config wires the service to its collaborators. Prices is the fallback
// chain in priority order.
type Config struct {
	Explorer   Explorer
	Dex        Dex
	Aggregator Aggregator
	Oracle     Oracle
	Prices     []datasource.PriceSource
	Health     []datasource.HealthProvider

	Cache      *cache.Partitions
	Warmer     *cache.Warmer
	Classifier *resilience.Classifier
	Logger     *observability.Logger
	Metrics    *observability.Metrics
}

// Service is the consumer facing API. Safe for concurrent use.
type Service struct {
	explorer   Explorer
	dex        Dex
	aggregator Aggregator
	oracle     Oracle
	prices     []datasource.PriceSource
	health     []datasource.HealthProvider

	cache      *cache.Partitions
	warmer     *cache.Warmer
	classifier *resilience.Classifier
	logger     *observability.Logger
	metrics    *observability.Metrics
}

// NewService validates cfg and builds a Service.
func NewService(cfg Config) (*Service, error) {
	switch {
	case cfg.Explorer == nil:
		return nil, errors.New("aggregate: explorer is required")
	case cfg.Dex == nil:
		return nil, errors.New("aggregate: dex is required")
	case cfg.Aggregator == nil:
		return nil, errors.New("aggregate: aggregator is required")
	case cfg.Oracle == nil:
		return nil, errors.New("aggregate: oracle is required")
	case len(cfg.Prices) == 0:
		return nil, errors.New("aggregate: at least one price source is required")
	case cfg.Cache == nil:
		return nil, errors.New("aggregate: cache is required")
	}

	if cfg.Classifier == nil {
		cfg.Classifier = resilience.NewClassifier()
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.Nop()
	}
	if cfg.Warmer == nil {
		cfg.Warmer = cache.NewWarmer(cfg.Logger, cache.DefaultWarmupConfig())
	}

	return &Service{
		explorer:   cfg.Explorer,
		dex:        cfg.Dex,
		aggregator: cfg.Aggregator,
		oracle:     cfg.Oracle,
		prices:     cfg.Prices,
		health:     cfg.Health,
		cache:      cfg.Cache,
		warmer:     cfg.Warmer,
		classifier: cfg.Classifier,
		logger:     cfg.Logger.Named("aggregate"),
		metrics:    cfg.Metrics,
	}, nil
}

// invalid classifies a validation failure raised before any upstream call.
func (s *Service) invalid(err error) *resilience.AppError {
	return s.classifier.Classify(err).WithSource(SourceName)
}

// GetTokenPrice walks the price chain in order and returns the first
// success. Each source is asked once; its own retry policy applies.
func (s *Service) GetTokenPrice(ctx context.Context, addr string) datasource.FetchResult[datasource.TokenPrice] {
	if err := datasource.ValidateAddress("token address", addr); err != nil {
		return datasource.FetchResult[datasource.TokenPrice]{Err: s.invalid(err), Source: SourceName, FetchedAt: time.Now()}
	}

	causes := make(map[string]string, len(s.prices))
	errs := make([]error, 0, len(s.prices))
	retryable := false

	for i, src := range s.prices {
		res := src.TokenPrice(ctx, addr)
		if res.Success {
			res.Source = src.Name()
			res.Data.Source = src.Name()
			if i > 0 {
				s.metrics.RecordPriceFallback(ctx, src.Name(), i)
				s.logger.LogInfo(ctx, "price served by fallback source",
					"address", addr,
					"source", src.Name(),
					"position", i,
				)
			}
			return res
		}

		cause := res.Err
		if cause == nil {
			cause = resilience.NewAppError(resilience.KindUnknown, resilience.SeverityMedium, "price source failed without an error", nil).
				WithSource(src.Name())
		}
		causes[src.Name()] = cause.Error()
		errs = append(errs, cause)
		retryable = retryable || cause.Retryable
		s.logger.LogWarn(ctx, "price source failed", "address", addr, "source", src.Name(), "error", cause)

		if ctx.Err() != nil {
			break
		}
	}

	appErr := resilience.NewAppError(resilience.KindAPI, resilience.SeverityMedium, "all price sources failed", errors.Join(errs...)).
		WithSource(SourceName).
		WithContext("sources", causes).
		WithContext("address", addr)
	appErr.Retryable = retryable
	s.classifier.Record(appErr)
	s.logger.LogError(ctx, "all price sources failed", appErr, "address", addr)

	return datasource.FetchResult[datasource.TokenPrice]{Err: appErr, Source: SourceName, FetchedAt: time.Now()}
}

// GetTokenOverview fetches price, supply, market, liquidity, volume and
// metadata concurrently. Failures are kept per constituent; the overview
// is cached only when every constituent succeeded.
func (s *Service) GetTokenOverview(ctx context.Context, addr string) TokenOverview {
	if err := datasource.ValidateAddress("token address", addr); err != nil {
		appErr := s.invalid(err)
		return TokenOverview{Address: addr, HasError: true, Errors: []*resilience.AppError{appErr}, FetchedAt: time.Now()}
	}

	key := cache.Keys.Overview(addr)
	store := s.cache.For(key)
	if cached, err := cache.GetAs[TokenOverview](store, key); err == nil {
		cached.Cached = true
		return cached
	}

	ov := TokenOverview{Address: cache.NormalizeAddress(addr), IsLoading: true}

	var g errgroup.Group
	g.Go(func() error { ov.Price = s.GetTokenPrice(ctx, addr); return nil })
	g.Go(func() error { ov.Supply = s.explorer.TotalSupply(ctx, addr); return nil })
	g.Go(func() error { ov.Market = s.oracle.MarketData(ctx, addr); return nil })
	g.Go(func() error { ov.Liquidity = s.dex.Liquidity(ctx, addr); return nil })
	g.Go(func() error { ov.Volume = s.dex.Volume(ctx, addr); return nil })
	g.Go(func() error { ov.Info = s.explorer.TokenInfo(ctx, addr); return nil })
	_ = g.Wait()

	ov.IsLoading = false
	ov.FetchedAt = time.Now()
	ov.Errors = collectErrors(ov.Price.Err, ov.Supply.Err, ov.Market.Err, ov.Liquidity.Err, ov.Volume.Err, ov.Info.Err)
	ov.HasError = len(ov.Errors) > 0

	if ov.HasError {
		s.logger.LogWarn(ctx, "token overview incomplete", "address", addr, "failed", len(ov.Errors))
		return ov
	}

	store.Set(key, ov, s.overviewTTL(addr))
	return ov
}

// overviewTTL is the shortest TTL among the overview's constituents, so a
// cached overview never outlives its price.
func (s *Service) overviewTTL(addr string) time.Duration {
	keys := []string{
		cache.Keys.Price(SourceName, addr),
		cache.Keys.Supply(addr),
		cache.Keys.Market(SourceName, addr),
		cache.Keys.Liquidity(addr),
		cache.Keys.Volume(addr),
		cache.Keys.TokenInfo(SourceName, addr),
	}
	var ttl time.Duration
	for _, key := range keys {
		if d := s.cache.TTLFor(key); ttl == 0 || d < ttl {
			ttl = d
		}
	}
	return ttl
}

// GetMarketData fetches price, liquidity and volume concurrently.
func (s *Service) GetMarketData(ctx context.Context, addr string) MarketView {
	if err := datasource.ValidateAddress("token address", addr); err != nil {
		return MarketView{Address: addr, Errors: []*resilience.AppError{s.invalid(err)}}
	}

	mv := MarketView{Address: cache.NormalizeAddress(addr)}
	var g errgroup.Group
	g.Go(func() error { mv.Price = s.GetTokenPrice(ctx, addr); return nil })
	g.Go(func() error { mv.Liquidity = s.dex.Liquidity(ctx, addr); return nil })
	g.Go(func() error { mv.Volume = s.dex.Volume(ctx, addr); return nil })
	_ = g.Wait()

	mv.Errors = collectErrors(mv.Price.Err, mv.Liquidity.Err, mv.Volume.Err)
	return mv
}

// GetTokenInfo combines the explorer, DEX and aggregator metadata.
func (s *Service) GetTokenInfo(ctx context.Context, addr string) TokenInfo {
	if err := datasource.ValidateAddress("token address", addr); err != nil {
		return TokenInfo{Address: addr, Errors: []*resilience.AppError{s.invalid(err)}}
	}

	info := TokenInfo{Address: cache.NormalizeAddress(addr)}
	var g errgroup.Group
	g.Go(func() error { info.Explorer = s.explorer.TokenInfo(ctx, addr); return nil })
	g.Go(func() error { info.Dex = s.dex.TokenInfo(ctx, addr); return nil })
	g.Go(func() error { info.Aggregator = s.aggregator.TokenInfo(ctx, addr); return nil })
	_ = g.Wait()

	info.Errors = collectErrors(info.Explorer.Err, info.Dex.Err, info.Aggregator.Err)
	return info
}

// GetContractInfo fetches the verified source and ABI concurrently.
func (s *Service) GetContractInfo(ctx context.Context, addr string) ContractInfo {
	if err := datasource.ValidateAddress("contract address", addr); err != nil {
		return ContractInfo{Address: addr, Errors: []*resilience.AppError{s.invalid(err)}}
	}

	ci := ContractInfo{Address: cache.NormalizeAddress(addr)}
	var g errgroup.Group
	g.Go(func() error { ci.Source = s.explorer.ContractSource(ctx, addr); return nil })
	g.Go(func() error { ci.ABI = s.explorer.ContractABI(ctx, addr); return nil })
	_ = g.Wait()

	ci.Errors = collectErrors(ci.Source.Err, ci.ABI.Err)
	return ci
}

// GetTotalSupply returns the raw total supply.
func (s *Service) GetTotalSupply(ctx context.Context, addr string) datasource.FetchResult[string] {
	return s.explorer.TotalSupply(ctx, addr)
}

// GetTransactions returns a page of token transfers.
func (s *Service) GetTransactions(ctx context.Context, addr string, page, offset int) datasource.FetchResult[[]datasource.TokenTransfer] {
	return s.explorer.TokenTransactions(ctx, addr, page, offset)
}

// GetTransfers returns a page of token transfers involving wallet.
func (s *Service) GetTransfers(ctx context.Context, addr, wallet string, page, offset int) datasource.FetchResult[[]datasource.TokenTransfer] {
	return s.explorer.TokenTransfers(ctx, addr, wallet, page, offset)
}

// GetHolders returns a page of token holders.
func (s *Service) GetHolders(ctx context.Context, addr string, page, offset int) datasource.FetchResult[[]datasource.Holder] {
	return s.explorer.TokenHolders(ctx, addr, page, offset)
}

// GetBalance returns the raw balance of wallet.
func (s *Service) GetBalance(ctx context.Context, addr, wallet string) datasource.FetchResult[string] {
	return s.explorer.TokenBalance(ctx, addr, wallet)
}

// GetLiquidity returns the pooled liquidity of a token.
func (s *Service) GetLiquidity(ctx context.Context, addr string) datasource.FetchResult[datasource.Liquidity] {
	return s.dex.Liquidity(ctx, addr)
}

// GetVolume returns the 24h volume of a token.
func (s *Service) GetVolume(ctx context.Context, addr string) datasource.FetchResult[datasource.Volume] {
	return s.dex.Volume(ctx, addr)
}

// GetPair returns a liquidity pair.
func (s *Service) GetPair(ctx context.Context, pair string) datasource.FetchResult[datasource.PairInfo] {
	return s.dex.PairInfo(ctx, pair)
}

// GetQuote returns a swap quote for amount base units.
func (s *Service) GetQuote(ctx context.Context, from, to, amount string) datasource.FetchResult[datasource.Quote] {
	return s.aggregator.Quote(ctx, from, to, amount)
}

// Stats returns cache, error and provider health diagnostics.
func (s *Service) Stats() Stats {
	providers := make([]datasource.ProviderHealth, 0, len(s.health))
	for _, hp := range s.health {
		providers = append(providers, hp.Health())
	}
	sort.Slice(providers, func(i, j int) bool { return providers[i].Provider < providers[j].Provider })

	return Stats{
		Cache:     s.cache.Stats(),
		Errors:    s.classifier.Stats(),
		Providers: providers,
	}
}

// ClearCache empties the stores selected by scope ("all", "api", "price",
// "token" or "token:<address>") and returns the number of removed entries.
func (s *Service) ClearCache(ctx context.Context, scope string) (int, error) {
	n, err := s.cache.Clear(scope)
	if err != nil {
		return 0, fmt.Errorf("failed to clear cache: %w", err)
	}
	s.logger.LogInfo(ctx, "cache cleared", "scope", scope, "removed", n)
	return n, nil
}

// WarmCache loads every key not already cached using fetch. Keys are
// routed to their partition.
func (s *Service) WarmCache(ctx context.Context, keys []string, fetch cache.Fetcher) *cache.WarmupResults {
	start := time.Now()
	byStore := make(map[*cache.Store][]string)
	var order []*cache.Store
	for _, key := range keys {
		store := s.cache.For(key)
		if _, seen := byStore[store]; !seen {
			order = append(order, store)
		}
		byStore[store] = append(byStore[store], key)
	}

	total := &cache.WarmupResults{}
	for _, store := range order {
		res := s.warmer.WarmKeys(ctx, store, byStore[store], fetch)
		total.Results = append(total.Results, res.Results...)
		total.Loaded += res.Loaded
		total.Skipped += res.Skipped
		total.Errors += res.Errors
	}
	total.TotalTime = time.Since(start)
	return total
}
