package datasource

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenshisan2025/YESC0925/internal/platform/resilience"
)

func coinGeckoHandler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/simple/token_price/binance-smart-chain", r.URL.Path)
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currencies"))
		assert.Equal(t, "true", r.URL.Query().Get("include_market_cap"))
		writeJSON(t, w, http.StatusOK, map[string]any{
			strings.ToLower(testToken): map[string]float64{
				"usd":             0.02,
				"usd_market_cap":  2000000,
				"usd_24h_vol":     35000,
				"usd_24h_change":  -3.5,
				"last_updated_at": 1700000000,
			},
		})
	}
}

func TestCoinGecko_TokenPriceKeyedByLowercase(t *testing.T) {
	srv := newCountingServer(t, coinGeckoHandler(t))
	p, err := NewCoinGeckoProvider(CoinGeckoConfig{ClientConfig: testClientConfig(srv.URL)}, testDeps(t))
	require.NoError(t, err)

	res := p.TokenPrice(context.Background(), testToken) // mixed case input
	require.True(t, res.Success, "price failed: %v", res.Err)
	assert.InDelta(t, 0.02, res.Data.PriceUSD, 1e-12)
	assert.InDelta(t, 2000000, res.Data.MarketCap, 1e-6)
	assert.InDelta(t, -3.5, res.Data.Change24h, 1e-12)
	assert.Equal(t, strings.ToLower(testToken), res.Data.Address)
}

func TestCoinGecko_PriceCaseVariantsShareCacheEntry(t *testing.T) {
	srv := newCountingServer(t, coinGeckoHandler(t))
	deps := testDeps(t)
	p, err := NewCoinGeckoProvider(CoinGeckoConfig{ClientConfig: testClientConfig(srv.URL)}, deps)
	require.NoError(t, err)

	first := p.TokenPrice(context.Background(), testToken)
	require.True(t, first.Success, "first fetch failed: %v", first.Err)
	assert.False(t, first.Cached)

	second := p.TokenPrice(context.Background(), strings.ToLower(testToken))
	require.True(t, second.Success)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Data, second.Data)
	assert.EqualValues(t, 1, srv.hits.Load())
}

func TestCoinGecko_MarketData(t *testing.T) {
	srv := newCountingServer(t, coinGeckoHandler(t))
	p, err := NewCoinGeckoProvider(CoinGeckoConfig{ClientConfig: testClientConfig(srv.URL)}, testDeps(t))
	require.NoError(t, err)

	res := p.MarketData(context.Background(), testToken)
	require.True(t, res.Success)
	assert.Equal(t, "usd", res.Data.Currency)
	assert.InDelta(t, 35000, res.Data.Volume24h, 1e-6)
	assert.Equal(t, int64(1700000000), res.Data.LastUpdated.Unix())
}

func TestCoinGecko_UnlistedTokenIsAPIError(t *testing.T) {
	srv := newCountingServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{})
	})
	p, err := NewCoinGeckoProvider(CoinGeckoConfig{ClientConfig: testClientConfig(srv.URL)}, testDeps(t))
	require.NoError(t, err)

	res := p.TokenPrice(context.Background(), testToken)
	require.False(t, res.Success)
	assert.Equal(t, resilience.KindAPI, res.Err.Kind)
	assert.EqualValues(t, 1, srv.hits.Load())
}

func TestCoinGecko_TooManyRequests(t *testing.T) {
	srv := newCountingServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "throttled", http.StatusTooManyRequests)
	})
	cfg := testClientConfig(srv.URL)
	p, err := NewCoinGeckoProvider(CoinGeckoConfig{ClientConfig: cfg}, testDeps(t))
	require.NoError(t, err)

	res := p.TokenPrice(context.Background(), testToken)
	require.False(t, res.Success)
	assert.Equal(t, resilience.KindRateLimit, res.Err.Kind)
	assert.Equal(t, http.StatusTooManyRequests, res.Err.StatusCode)
	assert.EqualValues(t, 3, srv.hits.Load())
	assert.Less(t, p.Health().RateLimit, 1000.0, "limiter should back off after throttling")
}

func TestCoinGecko_DemoKeyHeader(t *testing.T) {
	srv := newCountingServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "demo-key", r.Header.Get("x-cg-demo-api-key"))
		coinGeckoHandler(t)(w, r)
	})
	cfg := testClientConfig(srv.URL)
	cfg.APIKey = "demo-key"
	p, err := NewCoinGeckoProvider(CoinGeckoConfig{ClientConfig: cfg}, testDeps(t))
	require.NoError(t, err)

	assert.True(t, p.TokenPrice(context.Background(), testToken).Success)
}
