// Package orchestrator turns a confirmed swap proposal into an executed swap,
// choosing between demo execution, backend settlement, and user-side wallet
// execution.
package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/walletpilot/walletpilot/amount"
	"github.com/walletpilot/walletpilot/backend"
	"github.com/walletpilot/walletpilot/chains"
	"github.com/walletpilot/walletpilot/db"
	"github.com/walletpilot/walletpilot/engine"
	"github.com/walletpilot/walletpilot/oneinch"
	"github.com/walletpilot/walletpilot/swaps"
	"github.com/walletpilot/walletpilot/tracker"
	"github.com/walletpilot/walletpilot/wallet"
)

// Phase is the orchestrator's externally observable state. Every failure
// returns it to PhasePreparing so the UI is never stuck showing progress for
// an attempt that already died.
type Phase int

const (
	PhasePreparing Phase = iota
	PhaseExecuting
	PhaseTracking
)

func (p Phase) String() string {
	switch p {
	case PhasePreparing:
		return "preparing"
	case PhaseExecuting:
		return "executing"
	case PhaseTracking:
		return "tracking"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Backend prepares orders. Status polling goes through the tracker's own
// fetcher, not through here.
type Backend interface {
	ExecuteSwap(ctx context.Context, req backend.ExecuteSwapRequest) (*backend.ExecuteSwapResult, error)
}

// QuoteService supplies router calldata and the approval spender.
type QuoteService interface {
	GetSwapTransaction(ctx context.Context, p oneinch.TxParams) (*swaps.PreparedTx, error)
	SpenderAddress(ctx context.Context, chainID chains.ID) (string, error)
}

// Store persists orders for history and restart-safe polling.
type Store interface {
	InsertOrder(ctx context.Context, o db.Order) error
	UpdateOrderStatus(ctx context.Context, swapID string, status swaps.OrderStatus, orderHash, errorDetails string) error
	SetOrderTxHashes(ctx context.Context, swapID, approvalTx, swapTx string) error
	ListPendingOrders(ctx context.Context) ([]db.Order, error)
}

// AllowanceFunc reports whether owner's existing allowance to spender already
// covers amt, letting the attempt skip a redundant approval.
type AllowanceFunc func(ctx context.Context, chainID chains.ID, token, owner, spender common.Address, amt *big.Int) (bool, error)

// Request is one user-confirmed swap proposal.
type Request struct {
	Quote      *swaps.Quote
	SrcChainID chains.ID
	DstChainID chains.ID
	ChatID     int64
	MessageID  int64
	UserID     int64
}

// Result is the terminal outcome of one orchestration. It is always terminal:
// either Success with an id/hash, or a user-displayable error message.
type Result struct {
	Success bool
	Demo    bool
	SwapID  string
	TxHash  string
	Message string
}

// Orchestrator coordinates the backend, quote service, wallet engine, status
// tracker, and store for each confirmed swap.
type Orchestrator struct {
	backend Backend
	quotes  QuoteService
	store   Store
	track   *tracker.Tracker
	wallet  wallet.Adapter // nil means no wallet configured: demo mode

	allowance AllowanceFunc // optional

	// OnSwapInitiated fires once per successfully prepared order, with the
	// backend-issued swap id.
	OnSwapInitiated func(swapID string)

	// Notify delivers user-facing updates from background polling.
	Notify func(chatID int64, text string)

	demoDelay time.Duration
	bg        context.Context // lifecycle for background pollers

	mu      sync.Mutex
	phase   Phase
	current *engine.Engine
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithAllowanceCheck wires allowance lookups for approval skipping.
func WithAllowanceCheck(fn AllowanceFunc) Option {
	return func(o *Orchestrator) { o.allowance = fn }
}

// WithDemoDelay overrides the simulated demo-path delay (tests shorten it).
func WithDemoDelay(d time.Duration) Option {
	return func(o *Orchestrator) { o.demoDelay = d }
}

// New builds an Orchestrator. bg scopes background status pollers: when it is
// cancelled, all polling stops. w may be nil for demo-only operation.
func New(bg context.Context, b Backend, q QuoteService, s Store, t *tracker.Tracker, w wallet.Adapter, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		backend:   b,
		quotes:    q,
		store:     s,
		track:     t,
		wallet:    w,
		demoDelay: 1500 * time.Millisecond,
		bg:        bg,
		phase:     PhasePreparing,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Phase returns the externally observable phase.
func (o *Orchestrator) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

func (o *Orchestrator) setPhase(p Phase) {
	o.mu.Lock()
	o.phase = p
	o.mu.Unlock()
}

// Execute runs one confirmed swap to a terminal outcome. It never returns an
// error: every failure is caught and folded into the Result as a message fit
// for direct display.
func (o *Orchestrator) Execute(ctx context.Context, req Request) *Result {
	if req.Quote == nil {
		return o.failure("No quote attached to this swap. Please request a new quote.")
	}

	// No wallet means nothing real can be executed; run the demo path and
	// touch no infrastructure at all.
	if o.wallet == nil || !o.wallet.IsConnected() {
		return o.demoSwap(ctx, req)
	}

	o.setPhase(PhaseExecuting)

	prepared, err := o.backend.ExecuteSwap(ctx, backend.ExecuteSwapRequest{
		Amount:          req.Quote.SrcAmount,
		SrcChainID:      req.SrcChainID,
		DstChainID:      req.DstChainID,
		SrcTokenAddress: req.Quote.SrcToken.Address,
		DstTokenAddress: req.Quote.DstToken.Address,
		ChatID:          fmt.Sprintf("%d", req.ChatID),
		MessageID:       fmt.Sprintf("%d", req.MessageID),
	})
	if err != nil {
		log.Printf("orchestrator: backend prepare failed: %v", err)
		return o.failure("The swap service is unavailable right now. Please try again shortly.")
	}

	o.recordOrder(ctx, req, prepared)

	if !prepared.UserMustExecute() {
		// Backend settles this order; all that's left is tracking.
		o.watchOrder(req.ChatID, prepared.SwapID)
		o.initiated(prepared.SwapID)
		o.setPhase(PhaseTracking)
		return &Result{
			Success: true,
			SwapID:  prepared.SwapID,
			Message: fmt.Sprintf("Swap order %s submitted. I'll let you know when it completes.", prepared.SwapID),
		}
	}

	return o.executeUserSide(ctx, req, prepared)
}

// executeUserSide handles the "user-will-execute" branch: fetch router
// calldata, fall back to the quote's embedded data when allowed, and drive the
// wallet through approval and swap.
func (o *Orchestrator) executeUserSide(ctx context.Context, req Request, prepared *backend.ExecuteSwapResult) *Result {
	addr, ok := o.wallet.Address()
	if !ok {
		return o.failOrder(ctx, prepared.SwapID, "Wallet has no active address. Reconnect and retry.")
	}

	tx, err := o.quotes.GetSwapTransaction(ctx, oneinch.TxParams{
		Amount:          req.Quote.SrcAmount,
		SrcChainID:      req.SrcChainID,
		DstChainID:      req.DstChainID,
		SrcTokenAddress: req.Quote.SrcToken.Address,
		DstTokenAddress: req.Quote.DstToken.Address,
		WalletAddress:   addr.Hex(),
	})
	if err != nil {
		// Cross-chain is a hard, explicit failure: there is no safe
		// client-side encoding to fall back to.
		if errors.Is(err, oneinch.ErrCrossChainRequiresBackend) {
			log.Printf("orchestrator: %v", err)
			return o.failOrder(ctx, prepared.SwapID, fmt.Sprintf(
				"This %s → %s swap crosses chains and needs backend settlement, which isn't available for it right now.",
				chains.Name(req.SrcChainID), chains.Name(req.DstChainID)))
		}
		if req.Quote.Tx == nil {
			log.Printf("orchestrator: swap transaction unavailable and quote has no embedded tx: %v", err)
			return o.failOrder(ctx, prepared.SwapID, "Couldn't build the swap transaction. Please request a fresh quote.")
		}
		log.Printf("orchestrator: swap transaction unavailable, falling back to quote data: %v", err)
		tx = req.Quote.Tx
	}

	spender, err := o.spenderFor(ctx, req.SrcChainID, tx)
	if err != nil {
		return o.failOrder(ctx, prepared.SwapID, "Couldn't determine the approval contract. Please try again.")
	}

	attempt := &swaps.Attempt{
		Quote:            req.Quote,
		Tx:               tx,
		Spender:          spender,
		ApprovalRequired: o.approvalRequired(ctx, req, addr, spender),
		ChainID:          req.SrcChainID,
	}

	eng := o.startEngine(attempt)

	if err := eng.ExecuteApproval(ctx); err != nil {
		return o.walletFailure(ctx, prepared.SwapID, err)
	}

	hash, err := eng.ExecuteSwap(ctx)
	if err != nil {
		return o.walletFailure(ctx, prepared.SwapID, err)
	}

	if o.store != nil {
		approvalHex := ""
		if a := eng.ApprovalTx(); a != (common.Hash{}) {
			approvalHex = a.Hex()
		}
		if err := o.store.SetOrderTxHashes(ctx, prepared.SwapID, approvalHex, hash.Hex()); err != nil {
			log.Printf("orchestrator: recording tx hashes: %v", err)
		}
	}

	o.watchOrder(req.ChatID, prepared.SwapID)
	o.initiated(prepared.SwapID)
	o.setPhase(PhaseTracking)

	return &Result{
		Success: true,
		SwapID:  prepared.SwapID,
		TxHash:  hash.Hex(),
		Message: fmt.Sprintf("Swap submitted: %s", chains.ExplorerTxURL(req.SrcChainID, hash.Hex())),
	}
}

// demoSwap synthesizes a success without touching any real infrastructure.
func (o *Orchestrator) demoSwap(ctx context.Context, req Request) *Result {
	o.setPhase(PhaseExecuting)

	select {
	case <-time.After(o.demoDelay):
	case <-ctx.Done():
		return o.failure("Swap cancelled.")
	}

	formatted, err := amount.FormatUnits(req.Quote.SrcAmount, req.Quote.SrcToken.Decimals)
	if err != nil {
		formatted = req.Quote.SrcAmount
	}

	o.setPhase(PhasePreparing)
	return &Result{
		Success: true,
		Demo:    true,
		TxHash:  demoTxHash(req),
		Message: fmt.Sprintf("Demo: swapped %s %s for %s on %s. Connect a wallet to trade for real.",
			formatted, req.Quote.SrcToken.Symbol, req.Quote.DstToken.Symbol, chains.Name(req.SrcChainID)),
	}
}

// demoTxHash derives a stable fake hash from the request, so repeated demo
// runs of the same proposal show the same "transaction".
func demoTxHash(req Request) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("demo|%d|%d|%s|%s|%s",
		req.ChatID, req.MessageID, req.Quote.SrcAmount,
		req.Quote.SrcToken.Address, req.Quote.DstToken.Address)))
	return "0x" + hex.EncodeToString(sum[:])
}

// spenderFor resolves the contract the user must approve, falling back to the
// transaction target when the spender endpoint is unavailable.
func (o *Orchestrator) spenderFor(ctx context.Context, chainID chains.ID, tx *swaps.PreparedTx) (string, error) {
	spender, err := o.quotes.SpenderAddress(ctx, chainID)
	if err == nil {
		return spender, nil
	}
	log.Printf("orchestrator: spender lookup failed, using tx target: %v", err)
	if tx != nil && tx.To != "" {
		return tx.To, nil
	}
	return "", err
}

// approvalRequired decides whether the attempt needs an ERC20 approval.
// Native source tokens never do; a pre-existing sufficient allowance also
// counts as satisfied when an allowance checker is wired.
func (o *Orchestrator) approvalRequired(ctx context.Context, req Request, owner common.Address, spender string) bool {
	if req.Quote.SrcToken.IsNative() {
		return false
	}
	if o.allowance == nil {
		return true
	}

	amt, err := amount.BaseUnits(req.Quote.SrcAmount)
	if err != nil {
		return true
	}
	covered, err := o.allowance(ctx, req.SrcChainID,
		common.HexToAddress(req.Quote.SrcToken.Address), owner, common.HexToAddress(spender), amt)
	if err != nil {
		log.Printf("orchestrator: allowance check failed, assuming approval needed: %v", err)
		return true
	}
	return !covered
}

// startEngine replaces the live engine, abandoning any prior attempt so its
// in-flight callbacks can no longer touch shared state.
func (o *Orchestrator) startEngine(attempt *swaps.Attempt) *engine.Engine {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current != nil {
		o.current.Abandon()
	}
	o.current = engine.New(attempt, o.wallet)
	return o.current
}

// Cancel abandons the live attempt. It is only effective before a transaction
// is submitted; anything already on chain runs to its own conclusion.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current != nil {
		o.current.Abandon()
		o.current = nil
	}
	o.phase = PhasePreparing
}

// watchOrder starts background polling for the order, persisting transitions
// and notifying the chat on terminal states.
func (o *Orchestrator) watchOrder(chatID int64, swapID string) {
	o.track.Watch(o.bg, swapID, tracker.Callbacks{
		OnStatus: func(r *swaps.StatusRecord) {
			if o.store == nil {
				return
			}
			if err := o.store.UpdateOrderStatus(o.bg, swapID, r.Status, r.OrderHash, r.ErrorDetails); err != nil {
				log.Printf("orchestrator: persisting status for %s: %v", swapID, err)
			}
		},
		OnCompleted: func(r *swaps.StatusRecord) {
			o.notify(chatID, fmt.Sprintf("Swap %s completed successfully.", swapID))
		},
		OnFailed: func(r *swaps.StatusRecord) {
			msg := fmt.Sprintf("Swap %s failed.", swapID)
			if r.ErrorDetails != "" {
				msg = fmt.Sprintf("Swap %s failed: %s", swapID, r.ErrorDetails)
			}
			o.notify(chatID, msg)
		},
		OnError: func(err error) {
			if errors.Is(err, backend.ErrOrderNotFound) {
				o.notify(chatID, fmt.Sprintf("Swap %s is no longer known to the swap service.", swapID))
			}
		},
	})
}

// ResumePending restarts polling for orders that were still in flight when
// the process last stopped.
func (o *Orchestrator) ResumePending(ctx context.Context) error {
	if o.store == nil {
		return nil
	}
	pending, err := o.store.ListPendingOrders(ctx)
	if err != nil {
		return fmt.Errorf("listing pending orders: %w", err)
	}
	for _, order := range pending {
		log.Printf("orchestrator: resuming polling for %s", order.SwapID)
		o.watchOrder(order.ChatID, order.SwapID)
	}
	return nil
}

func (o *Orchestrator) recordOrder(ctx context.Context, req Request, prepared *backend.ExecuteSwapResult) {
	if o.store == nil {
		return
	}
	orderHash := prepared.OrderHash
	if prepared.UserMustExecute() {
		orderHash = ""
	}
	err := o.store.InsertOrder(ctx, db.Order{
		SwapID:     prepared.SwapID,
		ChatID:     req.ChatID,
		MessageID:  req.MessageID,
		UserID:     req.UserID,
		SrcChainID: req.SrcChainID,
		DstChainID: req.DstChainID,
		SrcToken:   req.Quote.SrcToken.Symbol,
		DstToken:   req.Quote.DstToken.Symbol,
		Amount:     req.Quote.SrcAmount,
		Status:     swaps.StatusPending,
		OrderHash:  orderHash,
	})
	if err != nil {
		log.Printf("orchestrator: recording order %s: %v", prepared.SwapID, err)
	}
}

// failOrder marks the order failed in the store and returns a failure result.
func (o *Orchestrator) failOrder(ctx context.Context, swapID, message string) *Result {
	if o.store != nil {
		if err := o.store.UpdateOrderStatus(ctx, swapID, swaps.StatusFailed, "", message); err != nil {
			log.Printf("orchestrator: marking %s failed: %v", swapID, err)
		}
	}
	return o.failure(message)
}

// walletFailure translates a wallet/engine error into a user-facing failure.
func (o *Orchestrator) walletFailure(ctx context.Context, swapID string, err error) *Result {
	var we *wallet.Error
	if errors.As(err, &we) {
		return o.failOrder(ctx, swapID, we.UserMessage())
	}
	log.Printf("orchestrator: wallet step failed: %v", err)
	return o.failOrder(ctx, swapID, "The transaction could not be submitted. Please retry.")
}

func (o *Orchestrator) failure(message string) *Result {
	o.setPhase(PhasePreparing)
	return &Result{Success: false, Message: message}
}

func (o *Orchestrator) initiated(swapID string) {
	if o.OnSwapInitiated != nil {
		o.OnSwapInitiated(swapID)
	}
}

func (o *Orchestrator) notify(chatID int64, text string) {
	if o.Notify != nil {
		o.Notify(chatID, text)
	}
}
