// Package tokens is a static registry of well-known tokens per chain.
//
// It resolves the symbols users type in chat ("USDC", "ETH") to contract
// addresses and decimal counts. Native gas tokens resolve to the router
// placeholder address.
package tokens

import (
	"strings"

	"github.com/walletpilot/walletpilot/chains"
	"github.com/walletpilot/walletpilot/swaps"
)

var registry = map[chains.ID]map[string]swaps.Token{
	chains.Ethereum: {
		"ETH":  native("ETH"),
		"WETH": {Symbol: "WETH", Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Decimals: 18},
		"USDC": {Symbol: "USDC", Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Decimals: 6},
		"USDT": {Symbol: "USDT", Address: "0xdAC17F958D2ee523a2206206994597C13D831ec7", Decimals: 6},
		"DAI":  {Symbol: "DAI", Address: "0x6B175474E89094C44Da98b954EedeAC495271d0F", Decimals: 18},
		"WBTC": {Symbol: "WBTC", Address: "0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599", Decimals: 8},
	},
	chains.Optimism: {
		"ETH":  native("ETH"),
		"USDC": {Symbol: "USDC", Address: "0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85", Decimals: 6},
		"OP":   {Symbol: "OP", Address: "0x4200000000000000000000000000000000000042", Decimals: 18},
	},
	chains.BSC: {
		"BNB":  native("BNB"),
		"USDC": {Symbol: "USDC", Address: "0x8AC76a51cc950d9822D68b83fE1Ad97B32Cd580d", Decimals: 18},
		"USDT": {Symbol: "USDT", Address: "0x55d398326f99059fF775485246999027B3197955", Decimals: 18},
	},
	chains.Polygon: {
		"POL":  native("POL"),
		"USDC": {Symbol: "USDC", Address: "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359", Decimals: 6},
		"USDT": {Symbol: "USDT", Address: "0xc2132D05D31c914a87C6611C10748AEb04B58e8F", Decimals: 6},
		"WETH": {Symbol: "WETH", Address: "0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619", Decimals: 18},
	},
	chains.Fantom: {
		"FTM":  native("FTM"),
		"USDC": {Symbol: "USDC", Address: "0x04068DA6C83AFCFA0e13ba15A6696662335D5B75", Decimals: 6},
	},
	chains.Base: {
		"ETH":  native("ETH"),
		"USDC": {Symbol: "USDC", Address: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", Decimals: 6},
		"WETH": {Symbol: "WETH", Address: "0x4200000000000000000000000000000000000006", Decimals: 18},
	},
	chains.Arbitrum: {
		"ETH":  native("ETH"),
		"USDC": {Symbol: "USDC", Address: "0xaf88d065e77c8cC2239327C5EDb3A432268e5831", Decimals: 6},
		"USDT": {Symbol: "USDT", Address: "0xFd086bC7CD5C481DCC9C85ebE478A1C0b69FCbb9", Decimals: 6},
		"ARB":  {Symbol: "ARB", Address: "0x912CE59144191C1204E64559FE8253a0e49E6548", Decimals: 18},
	},
	chains.Avalanche: {
		"AVAX": native("AVAX"),
		"USDC": {Symbol: "USDC", Address: "0xB97EF9Ef8734C71904D8002F8B6BC66Dd9c48a6E", Decimals: 6},
		"USDT": {Symbol: "USDT", Address: "0x9702230A8Ea53601f5cD2dc00fDBc13d4dF4A8c7", Decimals: 6},
	},
}

func native(symbol string) swaps.Token {
	return swaps.Token{Symbol: symbol, Address: swaps.NativeTokenAddress, Decimals: 18}
}

// Lookup resolves a token symbol on a chain, case-insensitively.
func Lookup(chainID chains.ID, symbol string) (swaps.Token, bool) {
	table, ok := registry[chainID]
	if !ok {
		return swaps.Token{}, false
	}
	token, ok := table[strings.ToUpper(symbol)]
	return token, ok
}

// Symbols lists the known symbols on a chain, for help text.
func Symbols(chainID chains.ID) []string {
	table, ok := registry[chainID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(table))
	for sym := range table {
		out = append(out, sym)
	}
	return out
}
