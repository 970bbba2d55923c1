package aggregate

import (
	"time"

	"github.com/chenshisan2025/YESC0925/internal/datasource"
	"github.com/chenshisan2025/YESC0925/internal/platform/cache"
	"github.com/chenshisan2025/YESC0925/internal/platform/resilience"
)

// SourceName tags results produced by the service itself.
const SourceName = "aggregate"

// TokenOverview combines every view of one token. Each constituent keeps
// its own result so partial data survives a failing upstream.
type TokenOverview struct {
	Address   string
	Price     datasource.FetchResult[datasource.TokenPrice]
	Supply    datasource.FetchResult[string]
	Market    datasource.FetchResult[datasource.MarketData]
	Liquidity datasource.FetchResult[datasource.Liquidity]
	Volume    datasource.FetchResult[datasource.Volume]
	Info      datasource.FetchResult[datasource.ExplorerTokenInfo]

	IsLoading bool
	HasError  bool
	Errors    []*resilience.AppError
	Cached    bool
	FetchedAt time.Time
}

// MarketView is the trading snapshot of a token.
type MarketView struct {
	Address   string
	Price     datasource.FetchResult[datasource.TokenPrice]
	Liquidity datasource.FetchResult[datasource.Liquidity]
	Volume    datasource.FetchResult[datasource.Volume]
	Errors    []*resilience.AppError
}

// TokenInfo is the metadata every upstream holds about a token.
type TokenInfo struct {
	Address    string
	Explorer   datasource.FetchResult[datasource.ExplorerTokenInfo]
	Dex        datasource.FetchResult[datasource.DexTokenInfo]
	Aggregator datasource.FetchResult[datasource.AggregatorToken]
	Errors     []*resilience.AppError
}

// ContractInfo is the verified source and ABI of a contract.
type ContractInfo struct {
	Address string
	Source  datasource.FetchResult[datasource.ContractSource]
	ABI     datasource.FetchResult[string]
	Errors  []*resilience.AppError
}

// Stats is the diagnostic snapshot exposed to operators.
type Stats struct {
	Cache     map[string]cache.Stats       `json:"cache"`
	Errors    resilience.ClassifierStats   `json:"errors"`
	Providers []datasource.ProviderHealth `json:"providers"`
}

// collectErrors returns the errors of the failed results in order.
func collectErrors(errs ...*resilience.AppError) []*resilience.AppError {
	var out []*resilience.AppError
	for _, e := range errs {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}
