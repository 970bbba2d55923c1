// Package datasource provides cached, rate limited and retried adapters for
// the upstream APIs that feed token data: BscScan, PancakeSwap, 1inch and
// CoinGecko.
package datasource

import (
	"time"

	"github.com/chenshisan2025/YESC0925/internal/platform/resilience"
)

// FetchResult is the outcome of every adapter method. Exactly one of Data
// (when Success) or Err is meaningful.
type FetchResult[T any] struct {
	Success   bool
	Data      T
	Err       *resilience.AppError
	Source    string // adapter that produced Data or Err
	Cached    bool
	FetchedAt time.Time
}

// Error returns Err as an error, or nil on success.
func (r FetchResult[T]) Error() error {
	if r.Err == nil {
		return nil
	}
	return r.Err
}

func ok[T any](source string, data T, cached bool) FetchResult[T] {
	return FetchResult[T]{
		Success:   true,
		Data:      data,
		Source:    source,
		Cached:    cached,
		FetchedAt: time.Now(),
	}
}

func failed[T any](source string, appErr *resilience.AppError) FetchResult[T] {
	return FetchResult[T]{
		Err:       appErr,
		Source:    source,
		FetchedAt: time.Now(),
	}
}

// TokenPrice is a USD price for one token as reported by a single source.
type TokenPrice struct {
	Address   string  `json:"address"`
	PriceUSD  float64 `json:"price_usd"`
	PriceBNB  float64 `json:"price_bnb,omitempty"`
	MarketCap float64 `json:"market_cap,omitempty"`
	Volume24h float64 `json:"volume_24h,omitempty"`
	Change24h float64 `json:"change_24h,omitempty"`
	Source    string  `json:"source"`
}

// MarketData is the oracle's market snapshot for a token.
type MarketData struct {
	Address      string    `json:"address"`
	Currency     string    `json:"currency"`
	Price        float64   `json:"price"`
	MarketCap    float64   `json:"market_cap"`
	Volume24h    float64   `json:"volume_24h"`
	Change24hPct float64   `json:"change_24h_pct"`
	LastUpdated  time.Time `json:"last_updated"`
}

// ExplorerTokenInfo is the block explorer's token metadata.
type ExplorerTokenInfo struct {
	ContractAddress string `json:"contractAddress"`
	TokenName       string `json:"tokenName"`
	Symbol          string `json:"symbol"`
	Divisor         string `json:"divisor"`
	TokenType       string `json:"tokenType"`
	TotalSupply     string `json:"totalSupply"`
	BlueCheckmark   string `json:"blueCheckmark"`
	Description     string `json:"description"`
	Website         string `json:"website"`
	Twitter         string `json:"twitter"`
	Telegram        string `json:"telegram"`
	Discord         string `json:"discord"`
	Github          string `json:"github"`
	Whitepaper      string `json:"whitepaper"`
	TokenPriceUSD   string `json:"tokenPriceUSD"`
}

// TokenTransfer is one BEP-20 transfer event.
type TokenTransfer struct {
	BlockNumber     string `json:"blockNumber"`
	TimeStamp       string `json:"timeStamp"`
	Hash            string `json:"hash"`
	From            string `json:"from"`
	To              string `json:"to"`
	ContractAddress string `json:"contractAddress"`
	Value           string `json:"value"`
	TokenName       string `json:"tokenName"`
	TokenSymbol     string `json:"tokenSymbol"`
	TokenDecimal    string `json:"tokenDecimal"`
	Gas             string `json:"gas"`
	GasPrice        string `json:"gasPrice"`
	GasUsed         string `json:"gasUsed"`
	Confirmations   string `json:"confirmations"`
}

// Holder is one entry of the token holder list.
type Holder struct {
	Address  string `json:"TokenHolderAddress"`
	Quantity string `json:"TokenHolderQuantity"`
}

// ContractSource is the verified source record of a contract.
type ContractSource struct {
	SourceCode      string `json:"SourceCode"`
	ABI             string `json:"ABI"`
	ContractName    string `json:"ContractName"`
	CompilerVersion string `json:"CompilerVersion"`
	LicenseType     string `json:"LicenseType"`
	Proxy           string `json:"Proxy"`
	Implementation  string `json:"Implementation"`
}

// DexTokenInfo is PancakeSwap's view of a token.
type DexTokenInfo struct {
	Address   string    `json:"address"`
	Name      string    `json:"name"`
	Symbol    string    `json:"symbol"`
	Price     string    `json:"price"`
	PriceBNB  string    `json:"price_bnb"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PairInfo is a PancakeSwap liquidity pair.
type PairInfo struct {
	PairAddress  string `json:"pair_address"`
	BaseName     string `json:"base_name"`
	BaseSymbol   string `json:"base_symbol"`
	BaseAddress  string `json:"base_address"`
	QuoteName    string `json:"quote_name"`
	QuoteSymbol  string `json:"quote_symbol"`
	QuoteAddress string `json:"quote_address"`
	Price        string `json:"price"`
	BaseVolume   string `json:"base_volume"`
	QuoteVolume  string `json:"quote_volume"`
	Liquidity    string `json:"liquidity"`
	LiquidityBNB string `json:"liquidity_BNB"`
}

// Liquidity is the pooled liquidity of a token.
type Liquidity struct {
	TotalLiquidity string `json:"total_liquidity"`
	LiquidityUSD   string `json:"liquidity_usd"`
}

// Volume is the trailing 24h traded volume of a token.
type Volume struct {
	Volume24h    string `json:"volume_24h"`
	VolumeUSD24h string `json:"volume_usd_24h"`
}

// AggregatorToken is a token known to the 1inch aggregator.
type AggregatorToken struct {
	Symbol   string   `json:"symbol"`
	Name     string   `json:"name"`
	Decimals int      `json:"decimals"`
	Address  string   `json:"address"`
	LogoURI  string   `json:"logoURI"`
	Tags     []string `json:"tags"`
}

// Quote is a 1inch swap quote.
type Quote struct {
	FromToken       AggregatorToken `json:"fromToken"`
	ToToken         AggregatorToken `json:"toToken"`
	FromTokenAmount string          `json:"fromTokenAmount"`
	ToTokenAmount   string          `json:"toTokenAmount"`
	EstimatedGas    int64           `json:"estimatedGas"`
}
