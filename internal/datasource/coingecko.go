package datasource

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/chenshisan2025/YESC0925/internal/platform/cache"
)

// CoinGeckoConfig adds the oracle settings to ClientConfig.
type CoinGeckoConfig struct {
	ClientConfig
	Platform   string // asset platform id, e.g. binance-smart-chain
	VsCurrency string
}

// CoinGeckoProvider reads prices and market data from the CoinGecko oracle.
type CoinGeckoProvider struct {
	*client
	platform   string
	vsCurrency string
}

// NewCoinGeckoProvider creates a new CoinGecko provider
func NewCoinGeckoProvider(cfg CoinGeckoConfig, deps Deps) (*CoinGeckoProvider, error) {
	if cfg.Platform == "" {
		cfg.Platform = "binance-smart-chain"
	}
	if cfg.VsCurrency == "" {
		cfg.VsCurrency = "usd"
	}

	c, err := newClient(cache.NamespaceCoinGecko, cfg.ClientConfig, deps)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		c.headers["x-cg-demo-api-key"] = c.apiKey
	}

	return &CoinGeckoProvider{
		client:     c,
		platform:   cfg.Platform,
		vsCurrency: strings.ToLower(cfg.VsCurrency),
	}, nil
}

// simplePrice queries /simple/token_price. The response is keyed by the
// lower-cased contract address; a missing entry means the oracle does not
// list the token.
func (g *CoinGeckoProvider) simplePrice(ctx context.Context, addr string) (MarketData, error) {
	params := url.Values{
		"contract_addresses":      {addr},
		"vs_currencies":           {g.vsCurrency},
		"include_market_cap":      {"true"},
		"include_24hr_vol":        {"true"},
		"include_24hr_change":     {"true"},
		"include_last_updated_at": {"true"},
	}

	var resp map[string]map[string]float64
	if err := g.getJSON(ctx, "/simple/token_price/"+g.platform, params, &resp); err != nil {
		return MarketData{}, err
	}

	key := cache.NormalizeAddress(addr)
	entry, found := resp[key]
	if !found {
		return MarketData{}, g.notFound("price", addr)
	}
	price, found := entry[g.vsCurrency]
	if !found || price <= 0 {
		return MarketData{}, g.notFound(g.vsCurrency+" price", addr)
	}

	md := MarketData{
		Address:      key,
		Currency:     g.vsCurrency,
		Price:        price,
		MarketCap:    entry[g.vsCurrency+"_market_cap"],
		Volume24h:    entry[g.vsCurrency+"_24h_vol"],
		Change24hPct: entry[g.vsCurrency+"_24h_change"],
	}
	if ts := entry["last_updated_at"]; ts > 0 {
		md.LastUpdated = time.Unix(int64(ts), 0)
	}
	return md, nil
}

// TokenPrice fetches the oracle price of a token.
func (g *CoinGeckoProvider) TokenPrice(ctx context.Context, addr string) FetchResult[TokenPrice] {
	return fetch(ctx, g.client, request[TokenPrice]{
		endpoint: "price",
		key:      cache.Keys.Price(cache.NamespaceCoinGecko, addr),
		validate: ValidateAddress("token address", addr),
		load: func(ctx context.Context) (TokenPrice, error) {
			md, err := g.simplePrice(ctx, addr)
			if err != nil {
				return TokenPrice{}, err
			}
			return TokenPrice{
				Address:   md.Address,
				PriceUSD:  md.Price,
				MarketCap: md.MarketCap,
				Volume24h: md.Volume24h,
				Change24h: md.Change24hPct,
				Source:    g.name,
			}, nil
		},
	})
}

// MarketData fetches market cap, volume and 24h change.
func (g *CoinGeckoProvider) MarketData(ctx context.Context, addr string) FetchResult[MarketData] {
	return fetch(ctx, g.client, request[MarketData]{
		endpoint: "market",
		key:      cache.Keys.Market(cache.NamespaceCoinGecko, addr),
		validate: ValidateAddress("token address", addr),
		load: func(ctx context.Context) (MarketData, error) {
			return g.simplePrice(ctx, addr)
		},
	})
}

// Warmup pre-populates prices for the configured addresses.
func (g *CoinGeckoProvider) Warmup(ctx context.Context) error {
	for _, addr := range g.warm {
		if res := g.TokenPrice(ctx, addr); !res.Success {
			return fmt.Errorf("failed to warm price for %s: %w", addr, res.Err)
		}
	}
	return nil
}
