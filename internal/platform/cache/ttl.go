package cache

import (
	"strings"
	"time"
)

// TTLRule applies TTL to any key containing one of Match.
type TTLRule struct {
	Match []string      `mapstructure:"match"`
	TTL   time.Duration `mapstructure:"ttl"`
}

// TTLTable resolves a default TTL from a key. Rules are checked in order and
// the first match wins.
type TTLTable struct {
	Rules   []TTLRule     `mapstructure:"rules"`
	Default time.Duration `mapstructure:"default"`
}

// DefaultTTLTable returns the built-in resource TTLs.
func DefaultTTLTable() TTLTable {
	return TTLTable{
		Rules: []TTLRule{
			{Match: []string{"price", "quote"}, TTL: 30 * time.Second},
			{Match: []string{"transaction", "tx"}, TTL: 2 * time.Minute},
			{Match: []string{"token", "contract"}, TTL: 5 * time.Minute},
			{Match: []string{"holder"}, TTL: 5 * time.Minute},
			{Match: []string{"supply"}, TTL: 10 * time.Minute},
		},
		Default: 5 * time.Minute,
	}
}

// For returns the TTL for key.
func (t TTLTable) For(key string) time.Duration {
	key = strings.ToLower(key)
	for _, rule := range t.Rules {
		for _, m := range rule.Match {
			if m != "" && strings.Contains(key, m) {
				return rule.TTL
			}
		}
	}
	if t.Default > 0 {
		return t.Default
	}
	return 5 * time.Minute
}
