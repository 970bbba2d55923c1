package subscription

import (
	"fmt"
	"time"
)

// Resource names a class of upstream data with its own refresh cadence.
type Resource string

const (
	ResourcePrice        Resource = "price"
	ResourceMarket       Resource = "market"
	ResourceTransactions Resource = "transactions"
	ResourceHolders      Resource = "holders"
	ResourceBalance      Resource = "balance"
	ResourceSupply       Resource = "supply"
	ResourceTransfers    Resource = "transfers"
	ResourceLiquidity    Resource = "liquidity"
	ResourceVolume       Resource = "volume"
	ResourceQuote        Resource = "quote"
	ResourceInfo         Resource = "info"
)

// DefaultIntervals returns the stock refresh cadence per resource.
func DefaultIntervals() map[Resource]time.Duration {
	return map[Resource]time.Duration{
		ResourcePrice:        30 * time.Second,
		ResourceMarket:       time.Minute,
		ResourceTransactions: 2 * time.Minute,
		ResourceHolders:      5 * time.Minute,
		ResourceBalance:      30 * time.Second,
		ResourceSupply:       10 * time.Minute,
		ResourceTransfers:    time.Minute,
		ResourceLiquidity:    2 * time.Minute,
		ResourceVolume:       time.Minute,
		ResourceQuote:        15 * time.Second,
		ResourceInfo:         5 * time.Minute,
	}
}

// ParseIntervals converts a name keyed table, as loaded from config,
// rejecting unknown resource names.
func ParseIntervals(in map[string]time.Duration) (map[Resource]time.Duration, error) {
	known := DefaultIntervals()
	out := make(map[Resource]time.Duration, len(known))
	for r, d := range known {
		out[r] = d
	}
	for name, d := range in {
		r := Resource(name)
		if _, ok := known[r]; !ok {
			return nil, fmt.Errorf("unknown revalidation resource %q", name)
		}
		if d < 0 {
			return nil, fmt.Errorf("revalidation interval for %s must not be negative", name)
		}
		out[r] = d
	}
	return out, nil
}
