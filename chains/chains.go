// Package chains maps EVM chain IDs to display names and block explorers.
package chains

import (
	"fmt"
	"strings"
)

// ID is a numeric EVM chain identifier.
type ID int64

// Supported chain IDs.
const (
	Ethereum  ID = 1
	Optimism  ID = 10
	BSC       ID = 56
	Polygon   ID = 137
	Fantom    ID = 250
	Base      ID = 8453
	Arbitrum  ID = 42161
	Avalanche ID = 43114
)

type chainInfo struct {
	name        string
	explorerTx  string // prefix, tx hash is appended
	nativeToken string // symbol of the gas token
}

var registry = map[ID]chainInfo{
	Ethereum:  {"Ethereum", "https://etherscan.io/tx/", "ETH"},
	Optimism:  {"Optimism", "https://optimistic.etherscan.io/tx/", "ETH"},
	BSC:       {"BSC", "https://bscscan.com/tx/", "BNB"},
	Polygon:   {"Polygon", "https://polygonscan.com/tx/", "POL"},
	Fantom:    {"Fantom", "https://ftmscan.com/tx/", "FTM"},
	Base:      {"Base", "https://basescan.org/tx/", "ETH"},
	Arbitrum:  {"Arbitrum", "https://arbiscan.io/tx/", "ETH"},
	Avalanche: {"Avalanche", "https://snowtrace.io/tx/", "AVAX"},
}

// Name returns the display name for a chain. Unknown chains get a generic
// "Chain {id}" label rather than an error.
func Name(id ID) string {
	if info, ok := registry[id]; ok {
		return info.name
	}
	return fmt.Sprintf("Chain %d", id)
}

// NativeSymbol returns the gas token symbol for a chain, or "ETH" as a fallback.
func NativeSymbol(id ID) string {
	if info, ok := registry[id]; ok {
		return info.nativeToken
	}
	return "ETH"
}

// ExplorerTxURL returns the block explorer URL for a transaction hash.
// Unknown chains resolve to "#".
func ExplorerTxURL(id ID, txHash string) string {
	info, ok := registry[id]
	if !ok {
		return "#"
	}
	return info.explorerTx + txHash
}

// FromName resolves a display name (case-insensitive) back to a chain ID.
func FromName(name string) (ID, bool) {
	for id, info := range registry {
		if strings.EqualFold(info.name, name) {
			return id, true
		}
	}
	return 0, false
}
