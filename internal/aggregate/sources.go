package aggregate

import (
	"context"

	"github.com/chenshisan2025/YESC0925/internal/datasource"
)

// Explorer is the block explorer surface the service combines.
type Explorer interface {
	TokenInfo(ctx context.Context, addr string) datasource.FetchResult[datasource.ExplorerTokenInfo]
	TotalSupply(ctx context.Context, addr string) datasource.FetchResult[string]
	TokenTransactions(ctx context.Context, addr string, page, offset int) datasource.FetchResult[[]datasource.TokenTransfer]
	TokenTransfers(ctx context.Context, addr, wallet string, page, offset int) datasource.FetchResult[[]datasource.TokenTransfer]
	TokenHolders(ctx context.Context, addr string, page, offset int) datasource.FetchResult[[]datasource.Holder]
	TokenBalance(ctx context.Context, addr, wallet string) datasource.FetchResult[string]
	ContractSource(ctx context.Context, addr string) datasource.FetchResult[datasource.ContractSource]
	ContractABI(ctx context.Context, addr string) datasource.FetchResult[string]
}

// Dex is the DEX info surface.
type Dex interface {
	TokenInfo(ctx context.Context, addr string) datasource.FetchResult[datasource.DexTokenInfo]
	PairInfo(ctx context.Context, pair string) datasource.FetchResult[datasource.PairInfo]
	Liquidity(ctx context.Context, addr string) datasource.FetchResult[datasource.Liquidity]
	Volume(ctx context.Context, addr string) datasource.FetchResult[datasource.Volume]
}

// Aggregator is the swap aggregator surface.
type Aggregator interface {
	TokenInfo(ctx context.Context, addr string) datasource.FetchResult[datasource.AggregatorToken]
	Quote(ctx context.Context, from, to, amount string) datasource.FetchResult[datasource.Quote]
}

// Oracle is the market data surface.
type Oracle interface {
	MarketData(ctx context.Context, addr string) datasource.FetchResult[datasource.MarketData]
}
