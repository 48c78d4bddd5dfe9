// Package engine drives one swap attempt through chain switch, token
// approval, and swap submission against the connected wallet.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/walletpilot/walletpilot/amount"
	"github.com/walletpilot/walletpilot/chains"
	"github.com/walletpilot/walletpilot/swaps"
	"github.com/walletpilot/walletpilot/wallet"
)

// State is the execution state of one swap attempt.
type State int

const (
	StateIdle State = iota
	StateApproving
	StateApproved
	StateSwapping
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateApproving:
		return "approving"
	case StateApproved:
		return "approved"
	case StateSwapping:
		return "swapping"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var (
	ErrWalletNotConnected = errors.New("engine: wallet not connected")
	ErrNoQuote            = errors.New("engine: attempt has no quote")
	ErrNoSpender          = errors.New("engine: attempt has no spender address")
	ErrNoPreparedTx       = errors.New("engine: attempt has no prepared swap transaction")
	ErrBadState           = errors.New("engine: operation not valid in current state")
	ErrAbandoned          = errors.New("engine: attempt was abandoned")
)

// Engine is the state machine for a single swap attempt. Completed and Failed
// are terminal; a new attempt gets a new Engine. Reset is the only way back to
// Idle and clears both recorded hashes.
//
// An Engine abandoned via Abandon (because the user started a fresh attempt)
// refuses all further transitions, so in-flight wallet callbacks from a stale
// attempt can never clobber the live one.
type Engine struct {
	mu      sync.Mutex
	attempt *swaps.Attempt
	wallet  wallet.Adapter

	state      State
	approvalTx common.Hash
	swapTx     common.Hash
	err        error
	abandoned  bool
}

// New builds an Engine in Idle for the given attempt.
func New(attempt *swaps.Attempt, w wallet.Adapter) *Engine {
	return &Engine{
		attempt: attempt,
		wallet:  w,
		state:   StateIdle,
	}
}

// ExecuteApproval moves Idle → Approving → Approved, submitting an ERC20
// approve through the wallet. When the source token is the chain's native
// asset, or the attempt needs no approval, it moves straight to Approved
// without touching the wallet: native assets have no allowance to grant.
func (e *Engine) ExecuteApproval(ctx context.Context) error {
	e.mu.Lock()
	if e.abandoned {
		e.mu.Unlock()
		return ErrAbandoned
	}
	if e.state != StateIdle {
		e.mu.Unlock()
		return fmt.Errorf("%w: executeApproval in %s", ErrBadState, e.state)
	}
	if !e.wallet.IsConnected() {
		e.mu.Unlock()
		return ErrWalletNotConnected
	}
	q := e.attempt.Quote
	if q == nil {
		e.mu.Unlock()
		return ErrNoQuote
	}
	if e.attempt.Spender == "" {
		e.mu.Unlock()
		return ErrNoSpender
	}

	if !e.attempt.ApprovalRequired || q.SrcToken.IsNative() {
		e.state = StateApproved
		e.mu.Unlock()
		return nil
	}

	e.state = StateApproving
	e.mu.Unlock()

	if err := e.ensureChain(ctx); err != nil {
		return e.fail(fmt.Errorf("switching chain: %w", err))
	}

	// The approval amount comes straight off the quote's base-unit source
	// amount. Round-tripping through a decimal string here would corrupt
	// large amounts.
	amt, err := amount.BaseUnits(q.SrcAmount)
	if err != nil {
		return e.fail(fmt.Errorf("parsing source amount: %w", err))
	}

	hash, err := e.wallet.SendApproval(ctx,
		common.HexToAddress(q.SrcToken.Address),
		common.HexToAddress(e.attempt.Spender),
		amt,
	)
	if err != nil {
		return e.fail(fmt.Errorf("sending approval: %w", err))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.abandoned {
		return ErrAbandoned
	}
	e.approvalTx = hash
	e.state = StateApproved
	log.Printf("engine: approval confirmed: %s", hash.Hex())
	return nil
}

// ExecuteSwap moves Approved → Swapping → Completed (or Idle → ... when no
// approval was required), submitting the prepared router transaction.
func (e *Engine) ExecuteSwap(ctx context.Context) (common.Hash, error) {
	e.mu.Lock()
	if e.abandoned {
		e.mu.Unlock()
		return common.Hash{}, ErrAbandoned
	}
	if !e.wallet.IsConnected() {
		e.mu.Unlock()
		return common.Hash{}, ErrWalletNotConnected
	}
	if e.attempt.Tx == nil {
		e.mu.Unlock()
		return common.Hash{}, ErrNoPreparedTx
	}
	ready := e.state == StateApproved || (e.state == StateIdle && !e.attempt.ApprovalRequired)
	if !ready {
		e.mu.Unlock()
		return common.Hash{}, fmt.Errorf("%w: executeSwap in %s", ErrBadState, e.state)
	}
	e.state = StateSwapping
	tx := *e.attempt.Tx
	e.mu.Unlock()

	if err := e.ensureChain(ctx); err != nil {
		return common.Hash{}, e.fail(fmt.Errorf("switching chain: %w", err))
	}

	if addr, ok := e.wallet.Address(); ok {
		tx.From = addr.Hex()
	}

	hash, err := e.wallet.SendTransaction(ctx, &tx)
	if err != nil {
		return common.Hash{}, e.fail(fmt.Errorf("sending swap: %w", err))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.abandoned {
		return common.Hash{}, ErrAbandoned
	}
	e.swapTx = hash
	e.state = StateCompleted
	log.Printf("engine: swap submitted: %s", hash.Hex())
	return hash, nil
}

// ensureChain re-reads the wallet's current chain and switches if it differs
// from the attempt's target. The read is always fresh: the user may have
// switched chains externally since the last step.
func (e *Engine) ensureChain(ctx context.Context) error {
	current, err := e.wallet.ChainID(ctx)
	if err != nil {
		return err
	}
	if current == e.attempt.ChainID {
		return nil
	}
	log.Printf("engine: wallet on %s, switching to %s", chains.Name(current), chains.Name(e.attempt.ChainID))
	return e.wallet.SwitchChain(ctx, e.attempt.ChainID)
}

func (e *Engine) fail(err error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.abandoned {
		return ErrAbandoned
	}
	e.state = StateFailed
	e.err = err
	log.Printf("engine: attempt failed: %v", err)
	return err
}

// Reset returns the engine to Idle and clears both transaction hashes.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = StateIdle
	e.approvalTx = common.Hash{}
	e.swapTx = common.Hash{}
	e.err = nil
}

// Abandon permanently detaches the engine. All further operations and
// in-flight completions return ErrAbandoned.
func (e *Engine) Abandon() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.abandoned = true
}

// State returns the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Err returns the failure that moved the engine to Failed, if any.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// ApprovalTx returns the recorded approval transaction hash.
func (e *Engine) ApprovalTx() common.Hash {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.approvalTx
}

// SwapTx returns the recorded swap transaction hash.
func (e *Engine) SwapTx() common.Hash {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.swapTx
}

// CanApprove reports whether executeApproval is currently meaningful: wallet
// connected, approval required, and nothing in flight yet.
func (e *Engine) CanApprove() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.wallet.IsConnected() &&
		e.attempt.ApprovalRequired &&
		e.state == StateIdle &&
		!e.abandoned
}

// CanSwap reports whether executeSwap is currently allowed. It is never true
// while a required approval is unresolved.
func (e *Engine) CanSwap() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.wallet.IsConnected() || e.attempt.Tx == nil || e.abandoned {
		return false
	}
	if e.attempt.ApprovalRequired {
		return e.state == StateApproved
	}
	return e.state == StateIdle || e.state == StateApproved
}

func (e *Engine) IsApproving() bool { return e.State() == StateApproving }
func (e *Engine) IsSwapping() bool  { return e.State() == StateSwapping }
func (e *Engine) IsCompleted() bool { return e.State() == StateCompleted }
func (e *Engine) IsFailed() bool    { return e.State() == StateFailed }
