package datasource

import (
	"math/big"
	"strconv"
)

// pow10 returns 10^decimals as *big.Int
func pow10(decimals int) *big.Int {
	if decimals < 0 {
		decimals = 0
	}
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}

// rawToFloat converts a raw integer amount into a human-readable float using decimals.
func rawToFloat(raw *big.Int, decimals int) *big.Float {
	if raw == nil {
		return big.NewFloat(0)
	}
	val := new(big.Float).SetInt(raw)
	scale := new(big.Float).SetInt(pow10(decimals))
	return new(big.Float).Quo(val, scale)
}

// oneUnit returns the raw amount of exactly one whole token.
func oneUnit(decimals int) string {
	return pow10(decimals).String()
}

// parseRaw parses a positive base-10 integer amount.
func parseRaw(s string) (*big.Int, bool) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() <= 0 {
		return nil, false
	}
	return v, true
}

func itoa(i int) string {
	return strconv.Itoa(i)
}
