package aggregate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenshisan2025/YESC0925/internal/datasource"
	"github.com/chenshisan2025/YESC0925/internal/platform/cache"
	"github.com/chenshisan2025/YESC0925/internal/platform/resilience"
)

const (
	testToken  = "0x20f663CEa80FaCE82ACDFA3aAE6862d246cE0333"
	testWallet = "0x000000000000000000000000000000000000dEaD"
)

func success[T any](source string, data T) datasource.FetchResult[T] {
	return datasource.FetchResult[T]{Success: true, Data: data, Source: source}
}

func failure[T any](source string, kind resilience.Kind, msg string) datasource.FetchResult[T] {
	return datasource.FetchResult[T]{
		Err:    resilience.NewAppError(kind, resilience.SeverityMedium, msg, nil).WithSource(source),
		Source: source,
	}
}

type stubPrice struct {
	name  string
	price float64
	fail  bool
	calls atomic.Int32
}

func (s *stubPrice) Name() string { return s.name }

func (s *stubPrice) TokenPrice(ctx context.Context, addr string) datasource.FetchResult[datasource.TokenPrice] {
	s.calls.Add(1)
	if s.fail {
		return failure[datasource.TokenPrice](s.name, resilience.KindNetwork, s.name+" unreachable")
	}
	return success(s.name, datasource.TokenPrice{Address: addr, PriceUSD: s.price})
}

type stubExplorer struct {
	failSupply bool
	calls      atomic.Int32
}

func (e *stubExplorer) TokenInfo(ctx context.Context, addr string) datasource.FetchResult[datasource.ExplorerTokenInfo] {
	e.calls.Add(1)
	return success("bscscan", datasource.ExplorerTokenInfo{ContractAddress: addr, TokenName: "YES Coin", Symbol: "YESC"})
}

func (e *stubExplorer) TotalSupply(ctx context.Context, addr string) datasource.FetchResult[string] {
	e.calls.Add(1)
	if e.failSupply {
		return failure[string]("bscscan", resilience.KindAPI, "NOTOK")
	}
	return success("bscscan", "1000000000000000000000000")
}

func (e *stubExplorer) TokenTransactions(ctx context.Context, addr string, page, offset int) datasource.FetchResult[[]datasource.TokenTransfer] {
	return success("bscscan", []datasource.TokenTransfer{})
}

func (e *stubExplorer) TokenTransfers(ctx context.Context, addr, wallet string, page, offset int) datasource.FetchResult[[]datasource.TokenTransfer] {
	return success("bscscan", []datasource.TokenTransfer{{From: wallet}})
}

func (e *stubExplorer) TokenHolders(ctx context.Context, addr string, page, offset int) datasource.FetchResult[[]datasource.Holder] {
	return success("bscscan", []datasource.Holder{})
}

func (e *stubExplorer) TokenBalance(ctx context.Context, addr, wallet string) datasource.FetchResult[string] {
	return success("bscscan", "42")
}

func (e *stubExplorer) ContractSource(ctx context.Context, addr string) datasource.FetchResult[datasource.ContractSource] {
	return success("bscscan", datasource.ContractSource{ContractName: "YESC"})
}

func (e *stubExplorer) ContractABI(ctx context.Context, addr string) datasource.FetchResult[string] {
	return failure[string]("bscscan", resilience.KindAPI, "Contract source code not verified")
}

type stubDex struct{}

func (stubDex) TokenInfo(ctx context.Context, addr string) datasource.FetchResult[datasource.DexTokenInfo] {
	return success("pancakeswap", datasource.DexTokenInfo{Address: addr, Symbol: "YESC"})
}

func (stubDex) PairInfo(ctx context.Context, pair string) datasource.FetchResult[datasource.PairInfo] {
	return success("pancakeswap", datasource.PairInfo{PairAddress: pair})
}

func (stubDex) Liquidity(ctx context.Context, addr string) datasource.FetchResult[datasource.Liquidity] {
	return success("pancakeswap", datasource.Liquidity{TotalLiquidity: "10", LiquidityUSD: "20"})
}

func (stubDex) Volume(ctx context.Context, addr string) datasource.FetchResult[datasource.Volume] {
	return success("pancakeswap", datasource.Volume{Volume24h: "1", VolumeUSD24h: "2"})
}

type stubAggregator struct{}

func (stubAggregator) TokenInfo(ctx context.Context, addr string) datasource.FetchResult[datasource.AggregatorToken] {
	return failure[datasource.AggregatorToken]("oneinch", resilience.KindAPI, "supported token not found")
}

func (stubAggregator) Quote(ctx context.Context, from, to, amount string) datasource.FetchResult[datasource.Quote] {
	return success("oneinch", datasource.Quote{FromTokenAmount: amount, ToTokenAmount: "1"})
}

type stubOracle struct{}

func (stubOracle) MarketData(ctx context.Context, addr string) datasource.FetchResult[datasource.MarketData] {
	return success("coingecko", datasource.MarketData{Address: addr, Price: 0.5})
}

type stubHealth struct{ name string }

func (h stubHealth) Health() datasource.ProviderHealth {
	return datasource.ProviderHealth{Provider: h.name, CircuitState: "closed"}
}

// bareFailure reports failure without an error value.
type bareFailure struct{}

func (bareFailure) Name() string { return "bare" }

func (bareFailure) TokenPrice(ctx context.Context, addr string) datasource.FetchResult[datasource.TokenPrice] {
	return datasource.FetchResult[datasource.TokenPrice]{Source: "bare"}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	clock      *fakeClock
	svc        *Service
	explorer   *stubExplorer
	prices     []*stubPrice
	parts      *cache.Partitions
	classifier *resilience.Classifier
}

func newFixture(t *testing.T, prices ...*stubPrice) *fixture {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cfg := cache.DefaultPartitionsConfig()
	cfg.CleanupInterval = 0
	cfg.Clock = clock
	parts := cache.NewPartitions(cfg)
	t.Cleanup(func() { _ = parts.Close() })

	chain := make([]datasource.PriceSource, len(prices))
	for i, p := range prices {
		chain[i] = p
	}

	f := &fixture{
		clock:      clock,
		explorer:   &stubExplorer{},
		prices:     prices,
		parts:      parts,
		classifier: resilience.NewClassifier(),
	}
	svc, err := NewService(Config{
		Explorer:   f.explorer,
		Dex:        stubDex{},
		Aggregator: stubAggregator{},
		Oracle:     stubOracle{},
		Prices:     chain,
		Health:     []datasource.HealthProvider{stubHealth{"pancakeswap"}, stubHealth{"bscscan"}},
		Cache:      parts,
		Classifier: f.classifier,
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func TestNewService_RequiresSources(t *testing.T) {
	_, err := NewService(Config{})
	assert.Error(t, err)

	_, err = NewService(Config{
		Explorer:   &stubExplorer{},
		Dex:        stubDex{},
		Aggregator: stubAggregator{},
		Oracle:     stubOracle{},
	})
	assert.ErrorContains(t, err, "price source")
}

func TestGetTokenPrice_FirstSourceWins(t *testing.T) {
	primary := &stubPrice{name: "coingecko", price: 0.5}
	secondary := &stubPrice{name: "pancakeswap", price: 0.6}
	f := newFixture(t, primary, secondary)

	res := f.svc.GetTokenPrice(context.Background(), testToken)

	require.True(t, res.Success)
	assert.Equal(t, "coingecko", res.Source)
	assert.Equal(t, 0.5, res.Data.PriceUSD)
	assert.EqualValues(t, 0, secondary.calls.Load())
}

func TestGetTokenPrice_FallsBackInOrder(t *testing.T) {
	first := &stubPrice{name: "coingecko", fail: true}
	second := &stubPrice{name: "pancakeswap", fail: true}
	third := &stubPrice{name: "oneinch", price: 0.7}
	f := newFixture(t, first, second, third)

	res := f.svc.GetTokenPrice(context.Background(), testToken)

	require.True(t, res.Success)
	assert.Equal(t, "oneinch", res.Source)
	assert.Equal(t, "oneinch", res.Data.Source)
	for _, p := range f.prices {
		assert.EqualValues(t, 1, p.calls.Load(), "source %s", p.name)
	}
}

func TestGetTokenPrice_AllFail(t *testing.T) {
	f := newFixture(t,
		&stubPrice{name: "coingecko", fail: true},
		&stubPrice{name: "pancakeswap", fail: true},
	)

	res := f.svc.GetTokenPrice(context.Background(), testToken)

	require.False(t, res.Success)
	require.NotNil(t, res.Err)
	assert.Equal(t, resilience.KindAPI, res.Err.Kind)
	assert.Equal(t, "all price sources failed", res.Err.Message)
	assert.Equal(t, SourceName, res.Err.Source)
	assert.True(t, res.Err.Retryable)

	causes, ok := res.Err.Context["sources"].(map[string]string)
	require.True(t, ok)
	assert.Contains(t, causes["coingecko"], "coingecko unreachable")
	assert.Contains(t, causes["pancakeswap"], "pancakeswap unreachable")
	assert.EqualValues(t, 1, f.classifier.Stats().ByKind["API"])
}

func TestGetTokenPrice_FailureWithoutError(t *testing.T) {
	f := newFixture(t, &stubPrice{name: "coingecko", fail: true})
	svc, err := NewService(Config{
		Explorer:   f.explorer,
		Dex:        stubDex{},
		Aggregator: stubAggregator{},
		Oracle:     stubOracle{},
		Prices:     []datasource.PriceSource{bareFailure{}, f.prices[0]},
		Cache:      f.parts,
		Classifier: f.classifier,
	})
	require.NoError(t, err)

	var res datasource.FetchResult[datasource.TokenPrice]
	require.NotPanics(t, func() { res = svc.GetTokenPrice(context.Background(), testToken) })

	require.False(t, res.Success)
	causes, ok := res.Err.Context["sources"].(map[string]string)
	require.True(t, ok)
	assert.Contains(t, causes["bare"], "UNKNOWN")
	assert.Contains(t, causes["coingecko"], "coingecko unreachable")
	assert.True(t, res.Err.Retryable)
}

func TestGetTokenPrice_InvalidAddressSkipsSources(t *testing.T) {
	src := &stubPrice{name: "coingecko", price: 1}
	f := newFixture(t, src)

	res := f.svc.GetTokenPrice(context.Background(), "not-an-address")

	require.False(t, res.Success)
	assert.Equal(t, resilience.KindValidation, res.Err.Kind)
	assert.EqualValues(t, 0, src.calls.Load())
}

func TestGetTokenOverview_CompleteIsCached(t *testing.T) {
	f := newFixture(t, &stubPrice{name: "coingecko", price: 0.5})
	ctx := context.Background()

	ov := f.svc.GetTokenOverview(ctx, testToken)

	assert.False(t, ov.HasError)
	assert.False(t, ov.IsLoading)
	assert.False(t, ov.Cached)
	assert.Empty(t, ov.Errors)
	assert.Equal(t, 0.5, ov.Price.Data.PriceUSD)
	assert.Equal(t, "1000000000000000000000000", ov.Supply.Data)
	assert.Equal(t, "YESC", ov.Info.Data.Symbol)
	assert.True(t, f.parts.API.Has(cache.Keys.Overview(testToken)))

	calls := f.explorer.calls.Load()
	again := f.svc.GetTokenOverview(ctx, testToken)
	assert.True(t, again.Cached)
	assert.Equal(t, calls, f.explorer.calls.Load())
}

func TestGetTokenOverview_CacheExpiresWithPrice(t *testing.T) {
	f := newFixture(t, &stubPrice{name: "coingecko", price: 0.5})
	ctx := context.Background()

	ov := f.svc.GetTokenOverview(ctx, testToken)
	require.False(t, ov.HasError)

	f.prices[0].price = 0.9
	f.clock.Advance(20 * time.Second)
	stale := f.svc.GetTokenOverview(ctx, testToken)
	assert.True(t, stale.Cached)
	assert.Equal(t, 0.5, stale.Price.Data.PriceUSD)

	f.clock.Advance(15 * time.Second)
	fresh := f.svc.GetTokenOverview(ctx, testToken)
	assert.False(t, fresh.Cached)
	assert.Equal(t, 0.9, fresh.Price.Data.PriceUSD)
	assert.EqualValues(t, 2, f.prices[0].calls.Load())
}

func TestGetTokenOverview_PartialDataNotCached(t *testing.T) {
	f := newFixture(t, &stubPrice{name: "coingecko", price: 0.5})
	f.explorer.failSupply = true

	ov := f.svc.GetTokenOverview(context.Background(), testToken)

	assert.True(t, ov.HasError)
	assert.False(t, ov.IsLoading)
	require.Len(t, ov.Errors, 1)
	assert.Equal(t, "NOTOK", ov.Errors[0].Message)
	assert.False(t, ov.Supply.Success)
	assert.True(t, ov.Price.Success)
	assert.True(t, ov.Market.Success)
	assert.True(t, ov.Liquidity.Success)
	assert.False(t, f.parts.API.Has(cache.Keys.Overview(testToken)))
}

func TestGetTokenOverview_InvalidAddress(t *testing.T) {
	f := newFixture(t, &stubPrice{name: "coingecko", price: 0.5})

	ov := f.svc.GetTokenOverview(context.Background(), "")

	assert.True(t, ov.HasError)
	require.Len(t, ov.Errors, 1)
	assert.Equal(t, resilience.KindValidation, ov.Errors[0].Kind)
	assert.EqualValues(t, 0, f.explorer.calls.Load())
}

func TestGetMarketData(t *testing.T) {
	f := newFixture(t, &stubPrice{name: "coingecko", fail: true}, &stubPrice{name: "pancakeswap", price: 0.4})

	mv := f.svc.GetMarketData(context.Background(), testToken)

	assert.Empty(t, mv.Errors)
	assert.Equal(t, "pancakeswap", mv.Price.Source)
	assert.Equal(t, "20", mv.Liquidity.Data.LiquidityUSD)
	assert.Equal(t, "2", mv.Volume.Data.VolumeUSD24h)
}

func TestGetTokenInfo_CollectsErrors(t *testing.T) {
	f := newFixture(t, &stubPrice{name: "coingecko", price: 0.5})

	info := f.svc.GetTokenInfo(context.Background(), testToken)

	assert.True(t, info.Explorer.Success)
	assert.True(t, info.Dex.Success)
	assert.False(t, info.Aggregator.Success)
	require.Len(t, info.Errors, 1)
	assert.Equal(t, "oneinch", info.Errors[0].Source)
}

func TestGetContractInfo(t *testing.T) {
	f := newFixture(t, &stubPrice{name: "coingecko", price: 0.5})

	ci := f.svc.GetContractInfo(context.Background(), testToken)

	assert.Equal(t, "YESC", ci.Source.Data.ContractName)
	assert.False(t, ci.ABI.Success)
	require.Len(t, ci.Errors, 1)
}

func TestPassThroughs(t *testing.T) {
	f := newFixture(t, &stubPrice{name: "coingecko", price: 0.5})
	ctx := context.Background()

	assert.Equal(t, "42", f.svc.GetBalance(ctx, testToken, testWallet).Data)
	assert.Equal(t, testWallet, f.svc.GetTransfers(ctx, testToken, testWallet, 1, 10).Data[0].From)
	assert.True(t, f.svc.GetTransactions(ctx, testToken, 1, 10).Success)
	assert.True(t, f.svc.GetHolders(ctx, testToken, 1, 10).Success)
	assert.True(t, f.svc.GetTotalSupply(ctx, testToken).Success)
	assert.True(t, f.svc.GetLiquidity(ctx, testToken).Success)
	assert.True(t, f.svc.GetVolume(ctx, testToken).Success)
	assert.Equal(t, testToken, f.svc.GetPair(ctx, testToken).Data.PairAddress)
	assert.Equal(t, "5", f.svc.GetQuote(ctx, testToken, testWallet, "5").Data.FromTokenAmount)
}

func TestStats(t *testing.T) {
	f := newFixture(t, &stubPrice{name: "coingecko", fail: true})
	f.svc.GetTokenPrice(context.Background(), testToken)

	stats := f.svc.Stats()

	assert.Len(t, stats.Cache, 3)
	assert.Contains(t, stats.Cache, cache.PartitionPrice)
	assert.EqualValues(t, 1, stats.Errors.Total)
	require.Len(t, stats.Providers, 2)
	assert.Equal(t, "bscscan", stats.Providers[0].Provider)
	assert.Equal(t, "pancakeswap", stats.Providers[1].Provider)
}

func TestClearCache(t *testing.T) {
	f := newFixture(t, &stubPrice{name: "coingecko", price: 0.5})
	other := "0x55d398326f99059fF775485246999027B3197955"
	f.parts.For(cache.Keys.Supply(testToken)).Set(cache.Keys.Supply(testToken), "1", 0)
	f.parts.For(cache.Keys.Supply(other)).Set(cache.Keys.Supply(other), "2", 0)

	n, err := f.svc.ClearCache(context.Background(), "token:"+testToken)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, f.parts.API.Has(cache.Keys.Supply(other)))

	_, err = f.svc.ClearCache(context.Background(), "bogus")
	assert.Error(t, err)
}

func TestWarmCache_RoutesKeysToPartitions(t *testing.T) {
	f := newFixture(t, &stubPrice{name: "coingecko", price: 0.5})
	priceKey := cache.Keys.Price(cache.NamespaceCoinGecko, testToken)
	supplyKey := cache.Keys.Supply(testToken)
	failKey := cache.Keys.Holders(testToken, 1, 10)
	f.parts.API.Set(supplyKey, "already", 0)

	res := f.svc.WarmCache(context.Background(), []string{priceKey, supplyKey, failKey},
		func(ctx context.Context, key string) (any, error) {
			if key == failKey {
				return nil, errors.New("boom")
			}
			return "warm", nil
		})

	assert.Equal(t, 1, res.Loaded)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Errors)
	assert.True(t, f.parts.Price.Has(priceKey))
	assert.False(t, f.parts.API.Has(failKey))
}
