package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/walletpilot/walletpilot/chains"
	"github.com/walletpilot/walletpilot/swaps"
)

func tokenFrom(s string) TokenProvider {
	return func() (string, error) { return s, nil }
}

func TestExecuteSwap(t *testing.T) {
	var gotAuth string
	var gotReq ExecuteSwapRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/swap/execute" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data":    map[string]string{"swapId": "swap-123", "orderHash": OrderHashUserExecutes},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, tokenFrom("secret"), nil)
	result, err := c.ExecuteSwap(context.Background(), ExecuteSwapRequest{
		Amount:          "10000000",
		SrcChainID:      chains.Ethereum,
		DstChainID:      chains.Ethereum,
		SrcTokenAddress: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		DstTokenAddress: swaps.NativeTokenAddress,
	})
	if err != nil {
		t.Fatalf("ExecuteSwap: %v", err)
	}
	if result.SwapID != "swap-123" {
		t.Errorf("SwapID = %q, want swap-123", result.SwapID)
	}
	if !result.UserMustExecute() {
		t.Error("UserMustExecute = false for the sentinel order hash")
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization = %q, want Bearer secret", gotAuth)
	}
	if gotReq.Amount != "10000000" || gotReq.SrcChainID != chains.Ethereum {
		t.Errorf("request body = %+v", gotReq)
	}
}

func TestExecuteSwapBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"error":   "no route for pair",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, tokenFrom(""), nil)
	if _, err := c.ExecuteSwap(context.Background(), ExecuteSwapRequest{}); err == nil {
		t.Fatal("ExecuteSwap succeeded on a failure envelope")
	}
}

func TestSwapStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/swap/status/swap-123" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data": map[string]interface{}{
				"swapId":     "swap-123",
				"status":     "processing",
				"amount":     "10000000",
				"srcChainId": 1,
				"dstChainId": 8453,
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, tokenFrom(""), nil)
	record, err := c.SwapStatus(context.Background(), "swap-123")
	if err != nil {
		t.Fatalf("SwapStatus: %v", err)
	}
	if record.Status != swaps.StatusProcessing {
		t.Errorf("Status = %s, want processing", record.Status)
	}
	if record.DstChainID != chains.Base {
		t.Errorf("DstChainID = %d, want %d", record.DstChainID, chains.Base)
	}
}

func TestSwapStatusNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, tokenFrom(""), nil)
	_, err := c.SwapStatus(context.Background(), "nope")
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("error = %v, want ErrOrderNotFound", err)
	}
}
