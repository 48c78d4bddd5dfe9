// Package tracker polls the backend for order status until each watched order
// reaches a terminal state.
package tracker

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/walletpilot/walletpilot/backend"
	"github.com/walletpilot/walletpilot/swaps"
)

// DefaultInterval is the polling cadence while an order is pending or
// processing.
const DefaultInterval = 5 * time.Second

// Fetcher fetches one status snapshot. Fetching is read-only and idempotent;
// it never mutates the order.
type Fetcher interface {
	SwapStatus(ctx context.Context, swapID string) (*swaps.StatusRecord, error)
}

// Callbacks receive poller events. All fields are optional. OnCompleted and
// OnFailed fire exactly once even if the backend keeps reporting the terminal
// status on later fetches.
type Callbacks struct {
	OnStatus    func(*swaps.StatusRecord) // every successful fetch
	OnCompleted func(*swaps.StatusRecord)
	OnFailed    func(*swaps.StatusRecord)
	OnError     func(error) // fetch errors; polling continues unless terminal
}

// Tracker runs one poller goroutine per watched order id. Watching an id that
// is already being watched is a no-op rather than a second fetch loop.
type Tracker struct {
	fetcher  Fetcher
	interval time.Duration

	mu     sync.Mutex
	active map[string]struct{}
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithInterval overrides the polling cadence. Tests use this; production keeps
// the 5s default.
func WithInterval(d time.Duration) Option {
	return func(t *Tracker) { t.interval = d }
}

func New(fetcher Fetcher, opts ...Option) *Tracker {
	t := &Tracker{
		fetcher:  fetcher,
		interval: DefaultInterval,
		active:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Watch starts polling the order. It returns false when a poller for this
// order id is already running; the existing poller keeps its callbacks.
//
// The poller runs on ctx, not on any UI lifecycle: it keeps going while the
// order is non-terminal regardless of what the user is looking at.
func (t *Tracker) Watch(ctx context.Context, swapID string, cb Callbacks) bool {
	t.mu.Lock()
	if _, dup := t.active[swapID]; dup {
		t.mu.Unlock()
		log.Printf("tracker: already watching %s", swapID)
		return false
	}
	t.active[swapID] = struct{}{}
	t.mu.Unlock()

	go t.poll(ctx, swapID, cb)
	return true
}

// Watching reports whether a poller is active for the order id.
func (t *Tracker) Watching(swapID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.active[swapID]
	return ok
}

func (t *Tracker) poll(ctx context.Context, swapID string, cb Callbacks) {
	defer func() {
		t.mu.Lock()
		delete(t.active, swapID)
		t.mu.Unlock()
	}()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	terminalNotified := false

	// Poll once immediately, then on the ticker.
	for {
		if done := t.fetchOnce(ctx, swapID, cb, &terminalNotified); done {
			return
		}

		select {
		case <-ctx.Done():
			log.Printf("tracker: stopped watching %s: %v", swapID, ctx.Err())
			return
		case <-ticker.C:
		}
	}
}

// fetchOnce performs a single status fetch and reports whether polling should
// stop.
func (t *Tracker) fetchOnce(ctx context.Context, swapID string, cb Callbacks, terminalNotified *bool) bool {
	record, err := t.fetcher.SwapStatus(ctx, swapID)
	if err != nil {
		if errors.Is(err, backend.ErrOrderNotFound) {
			log.Printf("tracker: %s not found, giving up", swapID)
			if cb.OnError != nil {
				cb.OnError(err)
			}
			return true
		}
		log.Printf("tracker: error checking %s: %v", swapID, err)
		if cb.OnError != nil {
			cb.OnError(err)
		}
		return false
	}

	if cb.OnStatus != nil {
		cb.OnStatus(record)
	}

	if !record.Status.IsTerminal() {
		return false
	}

	if !*terminalNotified {
		*terminalNotified = true
		switch record.Status {
		case swaps.StatusCompleted:
			log.Printf("tracker: %s completed", swapID)
			if cb.OnCompleted != nil {
				cb.OnCompleted(record)
			}
		case swaps.StatusFailed:
			log.Printf("tracker: %s failed: %s", swapID, record.ErrorDetails)
			if cb.OnFailed != nil {
				cb.OnFailed(record)
			}
		}
	}
	return true
}
