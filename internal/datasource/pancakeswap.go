package datasource

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/chenshisan2025/YESC0925/internal/platform/cache"
	"github.com/chenshisan2025/YESC0925/internal/platform/resilience"
)

// PancakeSwapProvider reads token and pair data from the PancakeSwap info API.
type PancakeSwapProvider struct {
	*client
}

type pancakeEnvelope[T any] struct {
	UpdatedAt int64 `json:"updated_at"` // unix millis
	Data      T     `json:"data"`
}

type pancakeToken struct {
	Name              string `json:"name"`
	Symbol            string `json:"symbol"`
	Price             string `json:"price"`
	PriceBNB          string `json:"price_BNB"`
	TotalLiquidity    string `json:"totalLiquidity"`
	TotalLiquidityUSD string `json:"totalLiquidityUSD"`
	Volume            string `json:"volume"`
	VolumeUSD         string `json:"volumeUSD"`
}

// NewPancakeSwapProvider creates a new PancakeSwap provider
func NewPancakeSwapProvider(cfg ClientConfig, deps Deps) (*PancakeSwapProvider, error) {
	c, err := newClient(cache.NamespacePancakeSwap, cfg, deps)
	if err != nil {
		return nil, err
	}
	return &PancakeSwapProvider{client: c}, nil
}

func (p *PancakeSwapProvider) token(ctx context.Context, addr string) (pancakeEnvelope[pancakeToken], error) {
	var env pancakeEnvelope[pancakeToken]
	err := p.getJSON(ctx, "/tokens/"+addr, nil, &env)
	return env, err
}

// TokenPrice fetches the DEX price of a token. A zero or missing price is
// reported as an API error so callers can fall back.
func (p *PancakeSwapProvider) TokenPrice(ctx context.Context, addr string) FetchResult[TokenPrice] {
	return fetch(ctx, p.client, request[TokenPrice]{
		endpoint: "price",
		key:      cache.Keys.Price(cache.NamespacePancakeSwap, addr),
		validate: ValidateAddress("token address", addr),
		load: func(ctx context.Context) (TokenPrice, error) {
			env, err := p.token(ctx, addr)
			if err != nil {
				return TokenPrice{}, err
			}
			usd, err := parseDecimal("price", env.Data.Price)
			if err != nil {
				return TokenPrice{}, err
			}
			if usd <= 0 {
				return TokenPrice{}, p.notFound("price", addr)
			}
			bnb, _ := parseDecimal("price_BNB", env.Data.PriceBNB)
			return TokenPrice{
				Address:  cache.NormalizeAddress(addr),
				PriceUSD: usd,
				PriceBNB: bnb,
				Source:   p.name,
			}, nil
		},
	})
}

// TokenInfo fetches the DEX view of a token.
func (p *PancakeSwapProvider) TokenInfo(ctx context.Context, addr string) FetchResult[DexTokenInfo] {
	return fetch(ctx, p.client, request[DexTokenInfo]{
		endpoint: "token",
		key:      cache.Keys.TokenInfo(cache.NamespacePancakeSwap, addr),
		validate: ValidateAddress("token address", addr),
		load: func(ctx context.Context) (DexTokenInfo, error) {
			env, err := p.token(ctx, addr)
			if err != nil {
				return DexTokenInfo{}, err
			}
			return DexTokenInfo{
				Address:   cache.NormalizeAddress(addr),
				Name:      env.Data.Name,
				Symbol:    env.Data.Symbol,
				Price:     env.Data.Price,
				PriceBNB:  env.Data.PriceBNB,
				UpdatedAt: time.UnixMilli(env.UpdatedAt),
			}, nil
		},
	})
}

// PairInfo fetches a liquidity pair.
func (p *PancakeSwapProvider) PairInfo(ctx context.Context, pair string) FetchResult[PairInfo] {
	return fetch(ctx, p.client, request[PairInfo]{
		endpoint: "pair",
		key:      cache.Keys.Pair(pair),
		validate: ValidateAddress("pair address", pair),
		load: func(ctx context.Context) (PairInfo, error) {
			var env pancakeEnvelope[PairInfo]
			if err := p.getJSON(ctx, "/pairs/"+pair, nil, &env); err != nil {
				return PairInfo{}, err
			}
			if env.Data.PairAddress == "" {
				env.Data.PairAddress = cache.NormalizeAddress(pair)
			}
			return env.Data, nil
		},
	})
}

// Liquidity fetches the pooled liquidity of a token.
func (p *PancakeSwapProvider) Liquidity(ctx context.Context, addr string) FetchResult[Liquidity] {
	return fetch(ctx, p.client, request[Liquidity]{
		endpoint: "liquidity",
		key:      cache.Keys.Liquidity(addr),
		validate: ValidateAddress("token address", addr),
		load: func(ctx context.Context) (Liquidity, error) {
			env, err := p.token(ctx, addr)
			if err != nil {
				return Liquidity{}, err
			}
			return Liquidity{
				TotalLiquidity: orZero(env.Data.TotalLiquidity),
				LiquidityUSD:   orZero(env.Data.TotalLiquidityUSD),
			}, nil
		},
	})
}

// Volume fetches the trailing 24h volume of a token.
func (p *PancakeSwapProvider) Volume(ctx context.Context, addr string) FetchResult[Volume] {
	return fetch(ctx, p.client, request[Volume]{
		endpoint: "volume",
		key:      cache.Keys.Volume(addr),
		validate: ValidateAddress("token address", addr),
		load: func(ctx context.Context) (Volume, error) {
			env, err := p.token(ctx, addr)
			if err != nil {
				return Volume{}, err
			}
			return Volume{
				Volume24h:    orZero(env.Data.Volume),
				VolumeUSD24h: orZero(env.Data.VolumeUSD),
			}, nil
		},
	})
}

// Warmup pre-populates prices for the configured addresses.
func (p *PancakeSwapProvider) Warmup(ctx context.Context) error {
	for _, addr := range p.warm {
		if res := p.TokenPrice(ctx, addr); !res.Success {
			return fmt.Errorf("failed to warm price for %s: %w", addr, res.Err)
		}
	}
	return nil
}

// parseDecimal parses a string-encoded number. Empty means zero.
func parseDecimal(field, s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &resilience.ResponseParseError{Body: []byte(s), Err: fmt.Errorf("%s: %w", field, err)}
	}
	return v, nil
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}
