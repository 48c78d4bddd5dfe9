package wallet

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/walletpilot/walletpilot/chains"
	"github.com/walletpilot/walletpilot/swaps"
)

// Adapter is the contract the swap core needs from a connected wallet. The
// core never assumes a particular wallet implementation; anything that can
// report its address and chain, switch chains, and sign transactions fits.
//
// ChainID must always be a fresh read. The user can switch chains externally
// between steps, so callers re-check before every send instead of caching.
type Adapter interface {
	// IsConnected reports whether the wallet has an active account.
	IsConnected() bool

	// Address returns the active account, if any.
	Address() (common.Address, bool)

	// ChainID returns the wallet's current chain.
	ChainID(ctx context.Context) (chains.ID, error)

	// SwitchChain moves the wallet to the target chain. It may block while
	// the wallet prompts the user; user rejection surfaces as a *Error with
	// KindUserDeclined, not a panic.
	SwitchChain(ctx context.Context, target chains.ID) error

	// SendApproval submits an ERC20 approve(spender, amount) on the token
	// contract and returns the transaction hash once accepted.
	SendApproval(ctx context.Context, token, spender common.Address, amt *big.Int) (common.Hash, error)

	// SendTransaction submits prepared router calldata and returns the
	// transaction hash once accepted.
	SendTransaction(ctx context.Context, tx *swaps.PreparedTx) (common.Hash, error)
}
