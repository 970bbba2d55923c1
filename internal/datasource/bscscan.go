package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/chenshisan2025/YESC0925/internal/platform/cache"
	"github.com/chenshisan2025/YESC0925/internal/platform/resilience"
)

// BscScanProvider reads token and contract data from the BscScan explorer API.
type BscScanProvider struct {
	*client
}

// explorerResponse is the envelope of every explorer answer. A status other
// than "1" is an application error even when the HTTP status is 200.
type explorerResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// NewBscScanProvider creates a new BscScan provider
func NewBscScanProvider(cfg ClientConfig, deps Deps) (*BscScanProvider, error) {
	c, err := newClient(cache.NamespaceExplorer, cfg, deps)
	if err != nil {
		return nil, err
	}
	return &BscScanProvider{client: c}, nil
}

// call performs module/action and decodes result into out.
func (b *BscScanProvider) call(ctx context.Context, module, action string, params url.Values, out any) error {
	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("module", module)
	q.Set("action", action)
	if b.apiKey != "" {
		q.Set("apikey", b.apiKey)
	}

	var resp explorerResponse
	if err := b.getJSON(ctx, "", q, &resp); err != nil {
		return err
	}

	if resp.Status != "1" {
		if emptyListResult(resp) {
			return json.Unmarshal([]byte("[]"), out)
		}
		detail := ""
		if err := json.Unmarshal(resp.Result, &detail); err != nil {
			detail = ""
		}
		return &resilience.UpstreamError{Status: resp.Status, Message: resp.Message, Detail: detail}
	}

	if err := json.Unmarshal(resp.Result, out); err != nil {
		return &resilience.ResponseParseError{Body: resp.Result, Err: err}
	}
	return nil
}

// emptyListResult reports the explorer's "No ... found" answer, which comes
// with status "0" but is a successful empty list.
func emptyListResult(resp explorerResponse) bool {
	return strings.HasPrefix(resp.Message, "No ") &&
		strings.TrimSpace(string(resp.Result)) == "[]"
}

// TokenInfo fetches token metadata.
func (b *BscScanProvider) TokenInfo(ctx context.Context, addr string) FetchResult[ExplorerTokenInfo] {
	return fetch(ctx, b.client, request[ExplorerTokenInfo]{
		endpoint: "tokeninfo",
		key:      cache.Keys.TokenInfo(cache.NamespaceExplorer, addr),
		validate: ValidateAddress("contract address", addr),
		load: func(ctx context.Context) (ExplorerTokenInfo, error) {
			var raw json.RawMessage
			if err := b.call(ctx, "token", "tokeninfo", url.Values{"contractaddress": {addr}}, &raw); err != nil {
				return ExplorerTokenInfo{}, err
			}
			// usually a one element list, occasionally a bare object
			var list []ExplorerTokenInfo
			if err := json.Unmarshal(raw, &list); err != nil {
				var info ExplorerTokenInfo
				if err := json.Unmarshal(raw, &info); err != nil {
					return ExplorerTokenInfo{}, &resilience.ResponseParseError{Body: raw, Err: err}
				}
				list = []ExplorerTokenInfo{info}
			}
			if len(list) == 0 {
				return ExplorerTokenInfo{}, b.notFound("token info", addr)
			}
			return list[0], nil
		},
	})
}

// TokenTransactions fetches the newest transfers of a token, page is 1-based.
func (b *BscScanProvider) TokenTransactions(ctx context.Context, addr string, page, offset int) FetchResult[[]TokenTransfer] {
	return b.tokenTx(ctx, "transactions", cache.Keys.Transactions(addr, page, offset), addr, "", page, offset)
}

// TokenTransfers fetches the transfers of a token involving wallet.
func (b *BscScanProvider) TokenTransfers(ctx context.Context, addr, wallet string, page, offset int) FetchResult[[]TokenTransfer] {
	return b.tokenTx(ctx, "transfers", cache.Keys.Transfers(addr, wallet, page, offset), addr, wallet, page, offset)
}

func (b *BscScanProvider) tokenTx(ctx context.Context, endpoint, key, addr, wallet string, page, offset int) FetchResult[[]TokenTransfer] {
	check := all(ValidateAddress("contract address", addr), validatePage(page, offset))
	if check == nil && endpoint == "transfers" {
		check = ValidateAddress("wallet address", wallet)
	}

	return fetch(ctx, b.client, request[[]TokenTransfer]{
		endpoint: endpoint,
		key:      key,
		validate: check,
		load: func(ctx context.Context) ([]TokenTransfer, error) {
			params := url.Values{
				"contractaddress": {addr},
				"page":            {strconv.Itoa(page)},
				"offset":          {strconv.Itoa(offset)},
				"sort":            {"desc"},
			}
			if wallet != "" {
				params.Set("address", wallet)
			}
			var txs []TokenTransfer
			if err := b.call(ctx, "account", "tokentx", params, &txs); err != nil {
				return nil, err
			}
			if txs == nil {
				txs = []TokenTransfer{}
			}
			return txs, nil
		},
	})
}

// TokenHolders fetches a page of the holder list.
func (b *BscScanProvider) TokenHolders(ctx context.Context, addr string, page, offset int) FetchResult[[]Holder] {
	return fetch(ctx, b.client, request[[]Holder]{
		endpoint: "holders",
		key:      cache.Keys.Holders(addr, page, offset),
		validate: all(ValidateAddress("contract address", addr), validatePage(page, offset)),
		load: func(ctx context.Context) ([]Holder, error) {
			params := url.Values{
				"contractaddress": {addr},
				"page":            {strconv.Itoa(page)},
				"offset":          {strconv.Itoa(offset)},
			}
			var holders []Holder
			if err := b.call(ctx, "token", "tokenholderlist", params, &holders); err != nil {
				return nil, err
			}
			if holders == nil {
				holders = []Holder{}
			}
			return holders, nil
		},
	})
}

// TotalSupply fetches the raw total supply in base units.
func (b *BscScanProvider) TotalSupply(ctx context.Context, addr string) FetchResult[string] {
	return fetch(ctx, b.client, request[string]{
		endpoint: "supply",
		key:      cache.Keys.Supply(addr),
		validate: ValidateAddress("contract address", addr),
		load: func(ctx context.Context) (string, error) {
			var supply string
			err := b.call(ctx, "stats", "tokensupply", url.Values{"contractaddress": {addr}}, &supply)
			return supply, err
		},
	})
}

// TokenBalance fetches the raw balance of wallet for a token.
func (b *BscScanProvider) TokenBalance(ctx context.Context, addr, wallet string) FetchResult[string] {
	return fetch(ctx, b.client, request[string]{
		endpoint: "balance",
		key:      cache.Keys.Balance(addr, wallet),
		validate: all(ValidateAddress("contract address", addr), ValidateAddress("wallet address", wallet)),
		load: func(ctx context.Context) (string, error) {
			params := url.Values{
				"contractaddress": {addr},
				"address":         {wallet},
				"tag":             {"latest"},
			}
			var balance string
			err := b.call(ctx, "account", "tokenbalance", params, &balance)
			return balance, err
		},
	})
}

// ContractSource fetches the verified source of a contract.
func (b *BscScanProvider) ContractSource(ctx context.Context, addr string) FetchResult[ContractSource] {
	return fetch(ctx, b.client, request[ContractSource]{
		endpoint: "contract_source",
		key:      cache.Keys.ContractSource(addr),
		validate: ValidateAddress("contract address", addr),
		load: func(ctx context.Context) (ContractSource, error) {
			var list []ContractSource
			if err := b.call(ctx, "contract", "getsourcecode", url.Values{"address": {addr}}, &list); err != nil {
				return ContractSource{}, err
			}
			if len(list) == 0 {
				return ContractSource{}, b.notFound("contract source", addr)
			}
			return list[0], nil
		},
	})
}

// ContractABI fetches the ABI JSON of a verified contract.
func (b *BscScanProvider) ContractABI(ctx context.Context, addr string) FetchResult[string] {
	return fetch(ctx, b.client, request[string]{
		endpoint: "contract_abi",
		key:      cache.Keys.ContractABI(addr),
		validate: ValidateAddress("contract address", addr),
		load: func(ctx context.Context) (string, error) {
			var abi string
			err := b.call(ctx, "contract", "getabi", url.Values{"address": {addr}}, &abi)
			return abi, err
		},
	})
}

// Warmup pre-populates token info and supply for the configured addresses.
// This implements the cache.WarmupProvider interface.
func (b *BscScanProvider) Warmup(ctx context.Context) error {
	for _, addr := range b.warm {
		if res := b.TokenInfo(ctx, addr); !res.Success {
			return fmt.Errorf("failed to warm token info for %s: %w", addr, res.Err)
		}
		if res := b.TotalSupply(ctx, addr); !res.Success {
			return fmt.Errorf("failed to warm supply for %s: %w", addr, res.Err)
		}
	}
	b.logger.LogInfo(ctx, "explorer cache warmed", "addresses", len(b.warm))
	return nil
}
