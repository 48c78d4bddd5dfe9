package orchestrator_test

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/walletpilot/walletpilot/backend"
	"github.com/walletpilot/walletpilot/chains"
	"github.com/walletpilot/walletpilot/db"
	"github.com/walletpilot/walletpilot/oneinch"
	"github.com/walletpilot/walletpilot/orchestrator"
	"github.com/walletpilot/walletpilot/swaps"
	"github.com/walletpilot/walletpilot/tracker"
	"github.com/walletpilot/walletpilot/wallet"
)

type fakeBackend struct {
	mu     sync.Mutex
	result *backend.ExecuteSwapResult
	err    error
	calls  int
}

func (f *fakeBackend) ExecuteSwap(ctx context.Context, req backend.ExecuteSwapRequest) (*backend.ExecuteSwapResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.result, f.err
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeQuotes struct {
	mu      sync.Mutex
	tx      *swaps.PreparedTx
	txErr   error
	spender string
	calls   int
}

func (f *fakeQuotes) GetSwapTransaction(ctx context.Context, p oneinch.TxParams) (*swaps.PreparedTx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.tx, f.txErr
}

func (f *fakeQuotes) SpenderAddress(ctx context.Context, chainID chains.ID) (string, error) {
	if f.spender == "" {
		return "", errors.New("spender unavailable")
	}
	return f.spender, nil
}

type fakeStore struct {
	mu       sync.Mutex
	orders   map[string]db.Order
	statuses []swaps.OrderStatus
	txHashes map[string][2]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders:   make(map[string]db.Order),
		txHashes: make(map[string][2]string),
	}
}

func (f *fakeStore) InsertOrder(ctx context.Context, o db.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[o.SwapID] = o
	return nil
}

func (f *fakeStore) UpdateOrderStatus(ctx context.Context, swapID string, status swaps.OrderStatus, orderHash, errorDetails string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, status)
	if o, ok := f.orders[swapID]; ok {
		o.Status = status
		o.ErrorDetails = errorDetails
		f.orders[swapID] = o
	}
	return nil
}

func (f *fakeStore) SetOrderTxHashes(ctx context.Context, swapID, approvalTx, swapTx string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txHashes[swapID] = [2]string{approvalTx, swapTx}
	return nil
}

func (f *fakeStore) ListPendingOrders(ctx context.Context) ([]db.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []db.Order
	for _, o := range f.orders {
		if o.Status == swaps.StatusPending || o.Status == swaps.StatusProcessing {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeStore) orderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

// testWallet is a minimal always-succeeding wallet on the requested chain.
type testWallet struct {
	mu    sync.Mutex
	chain chains.ID
	sends int
	sent  []*swaps.PreparedTx
}

func (w *testWallet) IsConnected() bool { return true }

func (w *testWallet) Address() (common.Address, bool) {
	return common.HexToAddress("0x2222222222222222222222222222222222222222"), true
}

func (w *testWallet) ChainID(ctx context.Context) (chains.ID, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.chain, nil
}

func (w *testWallet) SwitchChain(ctx context.Context, target chains.ID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.chain = target
	return nil
}

func (w *testWallet) SendApproval(ctx context.Context, token, spender common.Address, amt *big.Int) (common.Hash, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sends++
	return common.HexToHash("0x01"), nil
}

func (w *testWallet) SendTransaction(ctx context.Context, tx *swaps.PreparedTx) (common.Hash, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sends++
	w.sent = append(w.sent, tx)
	return common.HexToHash("0x02"), nil
}

func (w *testWallet) sendCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sends
}

// completedFetcher reports every order completed on the first poll.
type completedFetcher struct{}

func (completedFetcher) SwapStatus(ctx context.Context, swapID string) (*swaps.StatusRecord, error) {
	return &swaps.StatusRecord{SwapID: swapID, Status: swaps.StatusCompleted}, nil
}

func usdcToEth(src, dst chains.ID) orchestrator.Request {
	return orchestrator.Request{
		Quote: &swaps.Quote{
			SrcToken:  swaps.Token{Symbol: "USDC", Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Decimals: 6},
			DstToken:  swaps.Token{Symbol: "ETH", Address: swaps.NativeTokenAddress, Decimals: 18},
			SrcAmount: "10000000",
			DstAmount: "3000000000000000",
			Tx: &swaps.PreparedTx{
				To:    "0x1111111254EEB25477B68fb85Ed929f73A960582",
				Data:  "0xfa11bacc",
				Value: "0",
			},
		},
		SrcChainID: src,
		DstChainID: dst,
		ChatID:     42,
		MessageID:  7,
		UserID:     1,
	}
}

func newOrchestrator(ctx context.Context, b *fakeBackend, q *fakeQuotes, s *fakeStore, w *testWallet) *orchestrator.Orchestrator {
	trk := tracker.New(completedFetcher{}, tracker.WithInterval(5*time.Millisecond))
	var adapter wallet.Adapter
	if w != nil {
		adapter = w
	}
	return orchestrator.New(ctx, b, q, s, trk, adapter, orchestrator.WithDemoDelay(0))
}

// Without a wallet the orchestrator simulates the swap and touches nothing:
// no backend call, no quote call, no stored order.
func TestDemoPath(t *testing.T) {
	b := &fakeBackend{}
	q := &fakeQuotes{}
	s := newFakeStore()
	o := newOrchestrator(context.Background(), b, q, s, nil)

	req := usdcToEth(chains.Ethereum, chains.Ethereum)
	res := o.Execute(context.Background(), req)

	if !res.Success || !res.Demo {
		t.Fatalf("demo result = %+v, want Success and Demo", res)
	}
	if !strings.HasPrefix(res.TxHash, "0x") || len(res.TxHash) != 66 {
		t.Errorf("demo tx hash %q is not a 32-byte hex hash", res.TxHash)
	}
	if !strings.Contains(res.Message, "10 USDC") {
		t.Errorf("demo message %q does not show the formatted amount", res.Message)
	}
	if b.callCount() != 0 {
		t.Errorf("backend called %d times in demo mode", b.callCount())
	}
	if q.calls != 0 {
		t.Errorf("quote service called %d times in demo mode", q.calls)
	}
	if s.orderCount() != 0 {
		t.Errorf("%d orders stored in demo mode", s.orderCount())
	}

	// Same proposal, same fake hash.
	again := o.Execute(context.Background(), req)
	if again.TxHash != res.TxHash {
		t.Errorf("demo hash changed between runs: %s vs %s", res.TxHash, again.TxHash)
	}
}

// When the backend returns a real order hash it settles the swap itself; the
// wallet is never touched and the order goes straight to tracking.
func TestBackendSettledOrder(t *testing.T) {
	b := &fakeBackend{result: &backend.ExecuteSwapResult{SwapID: "swap-77", OrderHash: "0xdeadbeef"}}
	q := &fakeQuotes{}
	s := newFakeStore()
	w := &testWallet{chain: chains.Ethereum}
	o := newOrchestrator(context.Background(), b, q, s, w)

	initiated := make(chan string, 1)
	o.OnSwapInitiated = func(swapID string) { initiated <- swapID }
	notified := make(chan string, 4)
	o.Notify = func(chatID int64, text string) { notified <- fmt.Sprintf("%d:%s", chatID, text) }

	res := o.Execute(context.Background(), usdcToEth(chains.Ethereum, chains.Base))

	if !res.Success || res.SwapID != "swap-77" {
		t.Fatalf("result = %+v, want success for swap-77", res)
	}
	if w.sendCount() != 0 {
		t.Errorf("wallet used %d times for a backend-settled order", w.sendCount())
	}
	select {
	case id := <-initiated:
		if id != "swap-77" {
			t.Errorf("OnSwapInitiated(%q), want swap-77", id)
		}
	default:
		t.Error("OnSwapInitiated never fired")
	}

	// The tracker reports completion; the chat hears about it.
	select {
	case msg := <-notified:
		if !strings.Contains(msg, "42:") || !strings.Contains(msg, "swap-77") {
			t.Errorf("notification %q does not reference chat 42 and swap-77", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no completion notification")
	}
}

func TestUserExecutedOrder(t *testing.T) {
	b := &fakeBackend{result: &backend.ExecuteSwapResult{SwapID: "swap-88", OrderHash: backend.OrderHashUserExecutes}}
	q := &fakeQuotes{
		tx:      &swaps.PreparedTx{To: "0x1111111254EEB25477B68fb85Ed929f73A960582", Data: "0xabcd", Value: "0"},
		spender: "0x1111111254EEB25477B68fb85Ed929f73A960582",
	}
	s := newFakeStore()
	w := &testWallet{chain: chains.Ethereum}
	o := newOrchestrator(context.Background(), b, q, s, w)

	res := o.Execute(context.Background(), usdcToEth(chains.Ethereum, chains.Ethereum))

	if !res.Success {
		t.Fatalf("result = %+v, want success", res)
	}
	if res.TxHash == "" {
		t.Error("no tx hash on a user-executed swap")
	}
	// Approval (no allowance checker wired) then swap.
	if w.sendCount() != 2 {
		t.Errorf("wallet sends = %d, want approval + swap", w.sendCount())
	}
	s.mu.Lock()
	hashes, ok := s.txHashes["swap-88"]
	s.mu.Unlock()
	if !ok || hashes[1] == "" {
		t.Errorf("swap tx hash not persisted: %v", hashes)
	}
}

// A cross-chain refusal from the quote service is final. The quote's embedded
// single-chain calldata must NOT be used as a fallback.
func TestCrossChainHardFailure(t *testing.T) {
	b := &fakeBackend{result: &backend.ExecuteSwapResult{SwapID: "swap-99", OrderHash: backend.OrderHashUserExecutes}}
	q := &fakeQuotes{
		txErr:   fmt.Errorf("building swap tx: %w", oneinch.ErrCrossChainRequiresBackend),
		spender: "0x1111111254EEB25477B68fb85Ed929f73A960582",
	}
	s := newFakeStore()
	w := &testWallet{chain: chains.Ethereum}
	o := newOrchestrator(context.Background(), b, q, s, w)

	req := usdcToEth(chains.Ethereum, chains.Polygon) // embedded quote Tx is present
	res := o.Execute(context.Background(), req)

	if res.Success {
		t.Fatal("cross-chain swap succeeded without backend settlement")
	}
	if w.sendCount() != 0 {
		t.Errorf("wallet used %d times, fallback must not run for cross-chain", w.sendCount())
	}
	if !strings.Contains(res.Message, chains.Name(chains.Ethereum)) || !strings.Contains(res.Message, chains.Name(chains.Polygon)) {
		t.Errorf("failure message %q does not name both chains", res.Message)
	}
	s.mu.Lock()
	order := s.orders["swap-99"]
	s.mu.Unlock()
	if order.Status != swaps.StatusFailed {
		t.Errorf("order status = %s, want failed", order.Status)
	}
	if got := o.Phase(); got != orchestrator.PhasePreparing {
		t.Errorf("phase after failure = %v, want preparing", got)
	}
}

// Any other transaction-endpoint failure falls back to the calldata embedded
// in the quote.
func TestQuoteDataFallback(t *testing.T) {
	b := &fakeBackend{result: &backend.ExecuteSwapResult{SwapID: "swap-55", OrderHash: backend.OrderHashUserExecutes}}
	q := &fakeQuotes{
		txErr:   errors.New("oneinch: status 500"),
		spender: "0x1111111254EEB25477B68fb85Ed929f73A960582",
	}
	s := newFakeStore()
	w := &testWallet{chain: chains.Ethereum}
	o := newOrchestrator(context.Background(), b, q, s, w)

	req := usdcToEth(chains.Ethereum, chains.Ethereum)
	res := o.Execute(context.Background(), req)

	if !res.Success {
		t.Fatalf("result = %+v, want success via embedded quote tx", res)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.sent) != 1 || w.sent[0].To != req.Quote.Tx.To || w.sent[0].Data != req.Quote.Tx.Data {
		t.Errorf("sent tx %+v, want the quote's embedded calldata", w.sent)
	}
}

func TestQuoteFailureWithoutEmbeddedTx(t *testing.T) {
	b := &fakeBackend{result: &backend.ExecuteSwapResult{SwapID: "swap-66", OrderHash: backend.OrderHashUserExecutes}}
	q := &fakeQuotes{txErr: errors.New("oneinch: status 500"), spender: "0xabc"}
	s := newFakeStore()
	w := &testWallet{chain: chains.Ethereum}
	o := newOrchestrator(context.Background(), b, q, s, w)

	req := usdcToEth(chains.Ethereum, chains.Ethereum)
	req.Quote.Tx = nil
	res := o.Execute(context.Background(), req)

	if res.Success {
		t.Fatal("swap succeeded with no transaction data at all")
	}
	if w.sendCount() != 0 {
		t.Errorf("wallet used %d times with nothing to send", w.sendCount())
	}
}

func TestBackendPrepareFailure(t *testing.T) {
	b := &fakeBackend{err: errors.New("backend: status 503")}
	q := &fakeQuotes{}
	s := newFakeStore()
	w := &testWallet{chain: chains.Ethereum}
	o := newOrchestrator(context.Background(), b, q, s, w)

	res := o.Execute(context.Background(), usdcToEth(chains.Ethereum, chains.Ethereum))

	if res.Success {
		t.Fatal("swap succeeded despite backend failure")
	}
	if s.orderCount() != 0 {
		t.Errorf("%d orders stored for an unprepared swap", s.orderCount())
	}
	if got := o.Phase(); got != orchestrator.PhasePreparing {
		t.Errorf("phase = %v, want preparing", got)
	}
}

func TestResumePending(t *testing.T) {
	b := &fakeBackend{}
	q := &fakeQuotes{}
	s := newFakeStore()
	s.orders["swap-old"] = db.Order{SwapID: "swap-old", ChatID: 42, Status: swaps.StatusProcessing}
	o := newOrchestrator(context.Background(), b, q, s, &testWallet{chain: chains.Ethereum})

	notified := make(chan string, 1)
	o.Notify = func(chatID int64, text string) { notified <- text }

	if err := o.ResumePending(context.Background()); err != nil {
		t.Fatalf("ResumePending: %v", err)
	}

	select {
	case msg := <-notified:
		if !strings.Contains(msg, "swap-old") {
			t.Errorf("resume notification %q does not name the order", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("resumed order never reached a terminal notification")
	}
}
