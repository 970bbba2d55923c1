package cache

import (
	"regexp"
	"strconv"
	"strings"
)

// Namespaces used as the first key segment.
const (
	NamespaceExplorer    = "bscscan"
	NamespacePancakeSwap = "pancakeswap"
	NamespaceOneInch     = "oneinch"
	NamespaceCoinGecko   = "coingecko"
	NamespaceOverview    = "overview"
)

// NormalizeAddress lower-cases and trims an address so that keys built from
// differently cased input collide.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// Key builds "{namespace}:{resource}:{params...}".
func Key(namespace, resource string, params ...string) string {
	var b strings.Builder
	b.WriteString(namespace)
	b.WriteByte(':')
	b.WriteString(resource)
	for _, p := range params {
		b.WriteByte(':')
		b.WriteString(p)
	}
	return b.String()
}

// Keys builds the cache key for each upstream resource.
var Keys = keyBuilder{}

type keyBuilder struct{}

func (keyBuilder) TokenInfo(namespace, addr string) string {
	return Key(namespace, "token", NormalizeAddress(addr))
}

func (keyBuilder) Transactions(addr string, page, offset int) string {
	return Key(NamespaceExplorer, "transactions", NormalizeAddress(addr), strconv.Itoa(page), strconv.Itoa(offset))
}

func (keyBuilder) Transfers(addr, wallet string, page, offset int) string {
	return Key(NamespaceExplorer, "transfers", NormalizeAddress(addr), NormalizeAddress(wallet), strconv.Itoa(page), strconv.Itoa(offset))
}

func (keyBuilder) Holders(addr string, page, offset int) string {
	return Key(NamespaceExplorer, "holders", NormalizeAddress(addr), strconv.Itoa(page), strconv.Itoa(offset))
}

func (keyBuilder) Balance(token, wallet string) string {
	return Key(NamespaceExplorer, "balance", NormalizeAddress(token), NormalizeAddress(wallet))
}

func (keyBuilder) Supply(addr string) string {
	return Key(NamespaceExplorer, "supply", NormalizeAddress(addr))
}

func (keyBuilder) ContractSource(addr string) string {
	return Key(NamespaceExplorer, "contract", "source", NormalizeAddress(addr))
}

func (keyBuilder) ContractABI(addr string) string {
	return Key(NamespaceExplorer, "contract", "abi", NormalizeAddress(addr))
}

func (keyBuilder) Price(namespace, addr string) string {
	return Key(namespace, "price", NormalizeAddress(addr))
}

func (keyBuilder) Market(namespace, addr string) string {
	return Key(namespace, "market", NormalizeAddress(addr))
}

func (keyBuilder) Quote(from, to, amount string) string {
	return Key(NamespaceOneInch, "quote", NormalizeAddress(from), NormalizeAddress(to), strings.TrimSpace(amount))
}

func (keyBuilder) Pair(addr string) string {
	return Key(NamespacePancakeSwap, "pair", NormalizeAddress(addr))
}

func (keyBuilder) Liquidity(addr string) string {
	return Key(NamespacePancakeSwap, "liquidity", NormalizeAddress(addr))
}

func (keyBuilder) Volume(addr string) string {
	return Key(NamespacePancakeSwap, "volume", NormalizeAddress(addr))
}

func (keyBuilder) SupportedTokens() string {
	return Key(NamespaceOneInch, "tokens", "all")
}

func (keyBuilder) Overview(addr string) string {
	return Key(NamespaceOverview, "summary", NormalizeAddress(addr))
}

// AddressPattern matches every key that carries addr as one of its parameters.
func AddressPattern(addr string) *regexp.Regexp {
	return regexp.MustCompile(`^[a-z0-9]+:.*:` + regexp.QuoteMeta(NormalizeAddress(addr)) + `(:|$)`)
}
