// Package swaps holds the domain types for one user-initiated token swap and
// the orchestrator that drives it end to end.
package swaps

import (
	"strings"

	"github.com/walletpilot/walletpilot/chains"
)

// NativeTokenAddress is the placeholder address routers use for a chain's
// native gas token. A source token matching it (any letter case) needs no
// ERC20 allowance.
const NativeTokenAddress = "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE"

// IsNativeToken reports whether addr is the native-token placeholder.
func IsNativeToken(addr string) bool {
	return strings.EqualFold(addr, NativeTokenAddress)
}

// Token describes one side of a swap pair.
type Token struct {
	Symbol   string `json:"symbol"`
	Address  string `json:"address"`
	Decimals int    `json:"decimals"`
	LogoURI  string `json:"logoURI,omitempty"`
}

// IsNative reports whether the token is the chain's native asset.
func (t Token) IsNative() bool {
	return IsNativeToken(t.Address)
}

// Protocol is one hop of the routing path a quote takes.
type Protocol struct {
	Name             string  `json:"name"`
	Part             float64 `json:"part"`
	FromTokenAddress string  `json:"fromTokenAddress"`
	ToTokenAddress   string  `json:"toTokenAddress"`
}

// Quote is an immutable description of a prospective swap. Amounts are integer
// strings in base units; they stay strings until the moment arithmetic is
// needed, and then become big.Int, never float.
type Quote struct {
	SrcToken  Token      `json:"srcToken"`
	DstToken  Token      `json:"dstToken"`
	SrcAmount string     `json:"srcAmount"`
	DstAmount string     `json:"dstAmount"`
	Gas       int64      `json:"gas,omitempty"`
	GasPrice  string     `json:"gasPrice,omitempty"`
	Protocols []Protocol `json:"protocols,omitempty"`

	// Tx is the router calldata embedded in the quote, when the quote
	// endpoint returned one. It is the fallback when the dedicated
	// swap-transaction endpoint is unavailable.
	Tx *PreparedTx `json:"tx,omitempty"`
}

// PreparedTx is raw transaction data for an approval or swap call. From is
// filled in at execution time, not when the quote is built.
type PreparedTx struct {
	To       string `json:"to"`
	Data     string `json:"data"`
	Value    string `json:"value"` // wei
	Gas      int64  `json:"gas,omitempty"`
	GasPrice string `json:"gasPrice,omitempty"`
	From     string `json:"from,omitempty"`
}

// Attempt is the unit of work for one confirmed swap. It lives in memory for
// the duration of the attempt and is not persisted; the db package records the
// resulting order, not the attempt itself.
type Attempt struct {
	Quote            *Quote
	Tx               *PreparedTx // nil when the backend settles the order
	Spender          string      // contract the user must approve
	ApprovalRequired bool
	ChainID          chains.ID
}

// OrderStatus is the backend's view of an order's lifecycle.
type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusProcessing OrderStatus = "processing"
	StatusCompleted  OrderStatus = "completed"
	StatusFailed     OrderStatus = "failed"
)

// IsTerminal reports whether polling should stop at this status.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed:
		return true
	case StatusPending, StatusProcessing:
		return false
	}
	// Unknown statuses keep the poller alive; the backend may add
	// intermediate states before we learn about them.
	return false
}

// StatusRecord is one polled snapshot of an order.
type StatusRecord struct {
	SwapID       string      `json:"swapId"`
	Status       OrderStatus `json:"status"`
	Amount       string      `json:"amount"`
	SrcChainID   chains.ID   `json:"srcChainId"`
	DstChainID   chains.ID   `json:"dstChainId"`
	OrderHash    string      `json:"orderHash,omitempty"`
	ErrorDetails string      `json:"errorDetails,omitempty"`
}
