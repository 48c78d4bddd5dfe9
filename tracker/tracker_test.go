package tracker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/walletpilot/walletpilot/backend"
	"github.com/walletpilot/walletpilot/swaps"
	"github.com/walletpilot/walletpilot/tracker"
)

const testInterval = 5 * time.Millisecond

// scriptFetcher returns one scripted step per fetch, holding on the last step
// once the script runs out.
type scriptFetcher struct {
	mu    sync.Mutex
	steps []step
	calls int
}

type step struct {
	record *swaps.StatusRecord
	err    error
}

func status(id string, s swaps.OrderStatus) *swaps.StatusRecord {
	return &swaps.StatusRecord{SwapID: id, Status: s, Amount: "10000000"}
}

func (f *scriptFetcher) SwapStatus(ctx context.Context, swapID string) (*swaps.StatusRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	if i >= len(f.steps) {
		i = len(f.steps) - 1
	}
	f.calls++
	st := f.steps[i]
	return st.record, st.err
}

func (f *scriptFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestPollsUntilTerminal(t *testing.T) {
	f := &scriptFetcher{steps: []step{
		{record: status("s1", swaps.StatusPending)},
		{record: status("s1", swaps.StatusProcessing)},
		{record: status("s1", swaps.StatusCompleted)},
	}}
	trk := tracker.New(f, tracker.WithInterval(testInterval))

	var mu sync.Mutex
	var seen []swaps.OrderStatus
	completed := make(chan *swaps.StatusRecord, 1)

	ok := trk.Watch(context.Background(), "s1", tracker.Callbacks{
		OnStatus: func(r *swaps.StatusRecord) {
			mu.Lock()
			seen = append(seen, r.Status)
			mu.Unlock()
		},
		OnCompleted: func(r *swaps.StatusRecord) { completed <- r },
		OnFailed:    func(r *swaps.StatusRecord) { t.Error("OnFailed fired for a completed order") },
	})
	if !ok {
		t.Fatal("Watch returned false for a fresh order")
	}

	select {
	case r := <-completed:
		if r.Status != swaps.StatusCompleted {
			t.Errorf("completed record status = %s", r.Status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnCompleted never fired")
	}

	// The poller exits at the terminal fetch: the fetch count must stop
	// moving once completion is reported.
	n := f.callCount()
	time.Sleep(10 * testInterval)
	if got := f.callCount(); got != n {
		t.Errorf("fetches continued after terminal status: %d -> %d", n, got)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []swaps.OrderStatus{swaps.StatusPending, swaps.StatusProcessing, swaps.StatusCompleted}
	if len(seen) != len(want) {
		t.Fatalf("statuses seen = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("statuses seen = %v, want %v", seen, want)
		}
	}
}

func TestFailedOrderFiresOnFailedOnce(t *testing.T) {
	f := &scriptFetcher{steps: []step{
		{record: status("s2", swaps.StatusPending)},
		{record: &swaps.StatusRecord{SwapID: "s2", Status: swaps.StatusFailed, ErrorDetails: "route expired"}},
	}}
	trk := tracker.New(f, tracker.WithInterval(testInterval))

	var mu sync.Mutex
	failures := 0
	done := make(chan struct{}, 1)

	trk.Watch(context.Background(), "s2", tracker.Callbacks{
		OnFailed: func(r *swaps.StatusRecord) {
			mu.Lock()
			failures++
			mu.Unlock()
			done <- struct{}{}
		},
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("OnFailed never fired")
	}
	time.Sleep(10 * testInterval)

	mu.Lock()
	defer mu.Unlock()
	if failures != 1 {
		t.Errorf("OnFailed fired %d times, want exactly 1", failures)
	}
}

// Transient fetch errors keep the poller alive; it recovers on the next tick.
func TestFetchErrorContinuesPolling(t *testing.T) {
	f := &scriptFetcher{steps: []step{
		{err: errors.New("backend: status 502")},
		{record: status("s3", swaps.StatusCompleted)},
	}}
	trk := tracker.New(f, tracker.WithInterval(testInterval))

	errs := make(chan error, 1)
	completed := make(chan struct{}, 1)

	trk.Watch(context.Background(), "s3", tracker.Callbacks{
		OnError:     func(err error) { errs <- err },
		OnCompleted: func(r *swaps.StatusRecord) { completed <- struct{}{} },
	})

	select {
	case <-errs:
	case <-time.After(2 * time.Second):
		t.Fatal("OnError never fired")
	}
	select {
	case <-completed:
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not recover after a transient error")
	}
}

// An order the backend does not know is gone for good; polling stops.
func TestOrderNotFoundStopsPolling(t *testing.T) {
	f := &scriptFetcher{steps: []step{
		{err: backend.ErrOrderNotFound},
	}}
	trk := tracker.New(f, tracker.WithInterval(testInterval))

	errs := make(chan error, 1)
	trk.Watch(context.Background(), "s4", tracker.Callbacks{
		OnError: func(err error) { errs <- err },
	})

	select {
	case err := <-errs:
		if !errors.Is(err, backend.ErrOrderNotFound) {
			t.Errorf("OnError got %v, want ErrOrderNotFound", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnError never fired")
	}

	n := f.callCount()
	time.Sleep(10 * testInterval)
	if got := f.callCount(); got != n {
		t.Errorf("fetches continued after not-found: %d -> %d", n, got)
	}
}

func TestWatchDeduplicates(t *testing.T) {
	f := &scriptFetcher{steps: []step{
		{record: status("s5", swaps.StatusPending)},
	}}
	trk := tracker.New(f, tracker.WithInterval(testInterval))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if !trk.Watch(ctx, "s5", tracker.Callbacks{}) {
		t.Fatal("first Watch returned false")
	}
	if trk.Watch(ctx, "s5", tracker.Callbacks{}) {
		t.Error("second Watch for the same order returned true")
	}
	if !trk.Watching("s5") {
		t.Error("Watching = false while poller is active")
	}
}

func TestContextCancelStopsPoller(t *testing.T) {
	f := &scriptFetcher{steps: []step{
		{record: status("s6", swaps.StatusPending)},
	}}
	trk := tracker.New(f, tracker.WithInterval(testInterval))
	ctx, cancel := context.WithCancel(context.Background())

	trk.Watch(ctx, "s6", tracker.Callbacks{})
	time.Sleep(5 * testInterval)
	cancel()
	time.Sleep(5 * testInterval)

	n := f.callCount()
	time.Sleep(10 * testInterval)
	if got := f.callCount(); got != n {
		t.Errorf("fetches continued after cancel: %d -> %d", n, got)
	}
	if trk.Watching("s6") {
		t.Error("Watching = true after cancelled poller exited")
	}
}
