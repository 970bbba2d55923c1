package datasource

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/chenshisan2025/YESC0925/internal/platform/cache"
	"github.com/chenshisan2025/YESC0925/internal/platform/resilience"
)

// OneInchConfig adds the aggregator settings to ClientConfig.
type OneInchConfig struct {
	ClientConfig
	ChainID int
	// StableAddress is the reference asset prices are quoted against.
	StableAddress  string
	StableDecimals int
	// TokenDecimals is the assumed decimals of a token priced by TokenPrice.
	TokenDecimals int
}

// OneInchProvider reads swap quotes from the 1inch aggregator. It has no
// price endpoint; prices are synthesised from a one-token quote against
// the stable reference asset.
type OneInchProvider struct {
	*client
	chainID        int
	stableAddress  string
	stableDecimals int
	tokenDecimals  int
}

// NewOneInchProvider creates a new 1inch provider
func NewOneInchProvider(cfg OneInchConfig, deps Deps) (*OneInchProvider, error) {
	if cfg.ChainID <= 0 {
		cfg.ChainID = 56
	}
	if err := ValidateAddress("stable address", cfg.StableAddress); err != nil {
		return nil, fmt.Errorf("oneinch: %w", err)
	}
	if cfg.StableDecimals <= 0 {
		cfg.StableDecimals = 18
	}
	if cfg.TokenDecimals <= 0 {
		cfg.TokenDecimals = 18
	}

	c, err := newClient(cache.NamespaceOneInch, cfg.ClientConfig, deps)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		c.headers["Authorization"] = "Bearer " + c.apiKey
	}

	return &OneInchProvider{
		client:         c,
		chainID:        cfg.ChainID,
		stableAddress:  cfg.StableAddress,
		stableDecimals: cfg.StableDecimals,
		tokenDecimals:  cfg.TokenDecimals,
	}, nil
}

func (o *OneInchProvider) path(endpoint string) string {
	return "/" + strconv.Itoa(o.chainID) + endpoint
}

func (o *OneInchProvider) quote(ctx context.Context, from, to, amount string) (Quote, error) {
	var q Quote
	params := url.Values{
		"fromTokenAddress": {from},
		"toTokenAddress":   {to},
		"amount":           {amount},
	}
	if err := o.getJSON(ctx, o.path("/quote"), params, &q); err != nil {
		return Quote{}, err
	}
	if _, ok := parseRaw(q.ToTokenAmount); !ok {
		return Quote{}, &resilience.ResponseParseError{
			Body: []byte(q.ToTokenAmount),
			Err:  fmt.Errorf("toTokenAmount is not a positive integer"),
		}
	}
	return q, nil
}

// Quote fetches a swap quote for amount (base units) of from into to.
func (o *OneInchProvider) Quote(ctx context.Context, from, to, amount string) FetchResult[Quote] {
	return fetch(ctx, o.client, request[Quote]{
		endpoint: "quote",
		key:      cache.Keys.Quote(from, to, amount),
		validate: all(
			ValidateAddress("from token", from),
			ValidateAddress("to token", to),
			validateAmount(amount),
		),
		load: func(ctx context.Context) (Quote, error) {
			return o.quote(ctx, from, to, amount)
		},
	})
}

// TokenPrice quotes one whole token against the stable reference asset.
func (o *OneInchProvider) TokenPrice(ctx context.Context, addr string) FetchResult[TokenPrice] {
	return fetch(ctx, o.client, request[TokenPrice]{
		endpoint: "price",
		key:      cache.Keys.Price(cache.NamespaceOneInch, addr),
		validate: ValidateAddress("token address", addr),
		load: func(ctx context.Context) (TokenPrice, error) {
			q, err := o.quote(ctx, addr, o.stableAddress, oneUnit(o.tokenDecimals))
			if err != nil {
				return TokenPrice{}, err
			}
			raw, _ := parseRaw(q.ToTokenAmount)
			decimals := o.stableDecimals
			if q.ToToken.Decimals > 0 {
				decimals = q.ToToken.Decimals
			}
			price, _ := rawToFloat(raw, decimals).Float64()
			return TokenPrice{
				Address:  cache.NormalizeAddress(addr),
				PriceUSD: price,
				Source:   o.name,
			}, nil
		},
	})
}

// SupportedTokens fetches the aggregator's token list keyed by lower-cased address.
func (o *OneInchProvider) SupportedTokens(ctx context.Context) FetchResult[map[string]AggregatorToken] {
	return fetch(ctx, o.client, request[map[string]AggregatorToken]{
		endpoint: "tokens",
		key:      cache.Keys.SupportedTokens(),
		load: func(ctx context.Context) (map[string]AggregatorToken, error) {
			var resp struct {
				Tokens map[string]AggregatorToken `json:"tokens"`
			}
			if err := o.getJSON(ctx, o.path("/tokens"), nil, &resp); err != nil {
				return nil, err
			}
			tokens := make(map[string]AggregatorToken, len(resp.Tokens))
			for addr, t := range resp.Tokens {
				tokens[strings.ToLower(addr)] = t
			}
			return tokens, nil
		},
		keep: func(tokens map[string]AggregatorToken) bool { return len(tokens) > 0 },
	})
}

// TokenInfo looks a token up in the supported token list.
func (o *OneInchProvider) TokenInfo(ctx context.Context, addr string) FetchResult[AggregatorToken] {
	if err := ValidateAddress("token address", addr); err != nil {
		return failed[AggregatorToken](o.name, o.classifier.Classify(err).WithSource(o.name))
	}

	list := o.SupportedTokens(ctx)
	if !list.Success {
		return FetchResult[AggregatorToken]{Err: list.Err, Source: o.name, FetchedAt: list.FetchedAt}
	}
	token, found := list.Data[cache.NormalizeAddress(addr)]
	if !found {
		return failed[AggregatorToken](o.name, o.notFound("supported token", addr))
	}
	return ok(o.name, token, list.Cached)
}

// Warmup pre-populates the supported token list.
func (o *OneInchProvider) Warmup(ctx context.Context) error {
	if res := o.SupportedTokens(ctx); !res.Success {
		return fmt.Errorf("failed to warm supported tokens: %w", res.Err)
	}
	return nil
}
