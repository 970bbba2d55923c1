package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// TokenInfo contains token metadata for well-known BSC tokens
type TokenInfo struct {
	Symbol       string
	Address      string // BSC mainnet (chain 56) address
	Decimals     int
	IsStablecoin bool
}

// TokenRegistry maps token symbols to their on-chain information
var TokenRegistry = map[string]TokenInfo{
	"YESC": {
		Symbol:   "YESC",
		Address:  "0x20f663CEa80FaCE82ACDFA3aAE6862d246cE0333",
		Decimals: 18,
	},
	"WBNB": {
		Symbol:   "WBNB",
		Address:  "0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c",
		Decimals: 18,
	},
	"CAKE": {
		Symbol:   "CAKE",
		Address:  "0x0E09FaBB73Bd3Ade0a17ECC321fD13a19e81cE82",
		Decimals: 18,
	},
	"USDT": {
		Symbol:       "USDT",
		Address:      "0x55d398326f99059fF775485246999027B3197955",
		Decimals:     18,
		IsStablecoin: true,
	},
	"USDC": {
		Symbol:       "USDC",
		Address:      "0x8AC76a51cc950d9822D68b83fE1Ad97B32Cd580d",
		Decimals:     18,
		IsStablecoin: true,
	},
	"BUSD": {
		Symbol:       "BUSD",
		Address:      "0xe9e7CEA3DedcA5984780Bafc599bD69ADd087D56",
		Decimals:     18,
		IsStablecoin: true,
	},
}

// ResolveToken accepts a registry symbol (case-insensitive) or a hex address.
// Unknown addresses resolve to a TokenInfo with 18 decimals and no symbol.
func ResolveToken(symbolOrAddress string) (TokenInfo, error) {
	s := strings.TrimSpace(symbolOrAddress)
	if info, ok := TokenRegistry[strings.ToUpper(s)]; ok {
		return info, nil
	}
	if common.IsHexAddress(s) {
		addr := common.HexToAddress(s)
		for _, info := range TokenRegistry {
			if common.HexToAddress(info.Address) == addr {
				return info, nil
			}
		}
		return TokenInfo{Address: addr.Hex(), Decimals: 18}, nil
	}
	return TokenInfo{}, fmt.Errorf("unknown token %q (expected a registry symbol or a hex address)", symbolOrAddress)
}
