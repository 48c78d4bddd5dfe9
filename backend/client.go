// Package backend is the client for the order service that prepares and
// settles swaps.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/walletpilot/walletpilot/chains"
	"github.com/walletpilot/walletpilot/swaps"
)

// OrderHashUserExecutes is the sentinel orderHash meaning the backend will not
// settle the order; the caller must submit the transaction from its own wallet.
const OrderHashUserExecutes = "user-will-execute"

// ErrOrderNotFound means the backend has no record of the order. It is
// terminal for status polling.
var ErrOrderNotFound = errors.New("backend: order not found")

// TokenProvider supplies the bearer token for each request. It is passed in at
// construction so the client never depends on process-global auth state.
type TokenProvider func() (string, error)

type Client struct {
	baseURL    string
	token      TokenProvider
	httpClient *http.Client
}

// NewClient creates an order-service client. httpClient may be nil, in which
// case a 30s-timeout default is used.
func NewClient(baseURL string, token TokenProvider, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: httpClient,
	}
}

// ExecuteSwapRequest is the order-preparation payload.
type ExecuteSwapRequest struct {
	Amount          string    `json:"amount"` // base units
	SrcChainID      chains.ID `json:"srcChainId"`
	DstChainID      chains.ID `json:"dstChainId"`
	SrcTokenAddress string    `json:"srcTokenAddress"`
	DstTokenAddress string    `json:"dstTokenAddress"`
	ChatID          string    `json:"chatId,omitempty"`
	MessageID       string    `json:"messageId,omitempty"`
}

// ExecuteSwapResult is the backend's answer: an order id plus either a real
// order hash (backend settles) or the user-will-execute sentinel.
type ExecuteSwapResult struct {
	SwapID    string `json:"swapId"`
	OrderHash string `json:"orderHash"`
}

// UserMustExecute reports whether the caller has to submit the transaction
// on-chain itself.
func (r *ExecuteSwapResult) UserMustExecute() bool {
	return r.OrderHash == OrderHashUserExecutes
}

type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error,omitempty"`
}

// ExecuteSwap asks the backend to prepare an order for the given parameters.
func (c *Client) ExecuteSwap(ctx context.Context, req ExecuteSwapRequest) (*ExecuteSwapResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	var result ExecuteSwapResult
	if err := c.do(ctx, http.MethodPost, "/api/swap/execute", bytes.NewReader(body), &result); err != nil {
		return nil, fmt.Errorf("backend executeSwap: %w", err)
	}
	if result.SwapID == "" {
		return nil, fmt.Errorf("backend executeSwap: response missing swapId")
	}
	return &result, nil
}

// SwapStatus fetches the backend's current view of an order. A 404 maps to
// ErrOrderNotFound.
func (c *Client) SwapStatus(ctx context.Context, swapID string) (*swaps.StatusRecord, error) {
	path := "/api/swap/status/" + url.PathEscape(swapID)

	var record swaps.StatusRecord
	if err := c.do(ctx, http.MethodGet, path, nil, &record); err != nil {
		return nil, fmt.Errorf("backend swapStatus %s: %w", swapID, err)
	}
	if record.SwapID == "" {
		record.SwapID = swapID
	}
	return &record, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	token, err := c.token()
	if err != nil {
		return fmt.Errorf("getting auth token: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return ErrOrderNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: %s", resp.Status, respBody)
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	if !envelope.Success {
		if envelope.Error != "" {
			return fmt.Errorf("backend error: %s", envelope.Error)
		}
		return fmt.Errorf("backend reported failure")
	}

	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("parsing response data: %w", err)
		}
	}
	return nil
}
