// Package oneinch is the client for the 1inch-style quote and router service.
package oneinch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/walletpilot/walletpilot/chains"
	"github.com/walletpilot/walletpilot/swaps"
)

// ErrCrossChainRequiresBackend is returned for any request whose source and
// destination chains differ. The router only encodes same-chain swaps;
// cross-chain orders are the backend's job, and the client refuses to guess.
var ErrCrossChainRequiresBackend = errors.New("oneinch: cross-chain swaps require backend settlement")

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	mu      sync.Mutex
	lastReq time.Time
}

// NewClient creates a quote-service client. httpClient may be nil for a
// 30s-timeout default.
func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

// rateLimit enforces 1 request per second; the public router API throttles
// anything faster.
func (c *Client) rateLimit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	since := time.Since(c.lastReq)
	if since < time.Second {
		time.Sleep(time.Second - since)
	}
	c.lastReq = time.Now()
}

// QuoteParams identifies a swap pair and amount for quoting.
type QuoteParams struct {
	ChainID         chains.ID
	SrcTokenAddress string
	DstTokenAddress string
	Amount          string // base units
}

// TxParams identifies a swap for which router calldata is requested.
type TxParams struct {
	Amount          string // base units
	SrcChainID      chains.ID
	DstChainID      chains.ID
	SrcTokenAddress string
	DstTokenAddress string
	WalletAddress   string
}

type quoteResponse struct {
	SrcToken  swaps.Token      `json:"srcToken"`
	DstToken  swaps.Token      `json:"dstToken"`
	SrcAmount string           `json:"srcAmount"`
	DstAmount string           `json:"dstAmount"`
	Gas       int64            `json:"gas"`
	GasPrice  string           `json:"gasPrice"`
	Protocols []swaps.Protocol `json:"protocols"`
	Tx        *txPayload       `json:"tx"`
}

// txPayload tolerates both flat and nested transaction shapes the service has
// shipped over time.
type txPayload struct {
	To       string `json:"to"`
	Data     string `json:"data"`
	Value    string `json:"value"`
	Gas      int64  `json:"gas"`
	GasPrice string `json:"gasPrice"`
}

type swapTxResponse struct {
	Tx          *txPayload `json:"tx"`
	Transaction *txPayload `json:"transaction"`
	// flat variant
	To       string `json:"to"`
	Data     string `json:"data"`
	Value    string `json:"value"`
	Gas      int64  `json:"gas"`
	GasPrice string `json:"gasPrice"`
}

func (r *swapTxResponse) payload() *txPayload {
	switch {
	case r.Tx != nil:
		return r.Tx
	case r.Transaction != nil:
		return r.Transaction
	case r.To != "":
		return &txPayload{To: r.To, Data: r.Data, Value: r.Value, Gas: r.Gas, GasPrice: r.GasPrice}
	}
	return nil
}

// GetQuote fetches a same-chain quote for the pair.
func (c *Client) GetQuote(ctx context.Context, p QuoteParams) (*swaps.Quote, error) {
	params := url.Values{}
	params.Set("src", p.SrcTokenAddress)
	params.Set("dst", p.DstTokenAddress)
	params.Set("amount", p.Amount)

	var resp quoteResponse
	path := fmt.Sprintf("/swap/v6.0/%d/quote", p.ChainID)
	if err := c.get(ctx, path, params, &resp); err != nil {
		return nil, fmt.Errorf("oneinch quote: %w", err)
	}

	quote := &swaps.Quote{
		SrcToken:  resp.SrcToken,
		DstToken:  resp.DstToken,
		SrcAmount: resp.SrcAmount,
		DstAmount: resp.DstAmount,
		Gas:       resp.Gas,
		GasPrice:  resp.GasPrice,
		Protocols: resp.Protocols,
	}
	if resp.SrcAmount == "" {
		quote.SrcAmount = p.Amount
	}
	if resp.Tx != nil {
		quote.Tx = resp.Tx.toPreparedTx()
	}
	return quote, nil
}

// GetSwapTransaction fetches router calldata for the pair. Cross-chain
// requests are rejected before any HTTP round trip: the backend, not this
// client, encodes cross-chain orders.
func (c *Client) GetSwapTransaction(ctx context.Context, p TxParams) (*swaps.PreparedTx, error) {
	if p.SrcChainID != p.DstChainID {
		return nil, fmt.Errorf("%w: %s -> %s", ErrCrossChainRequiresBackend,
			chains.Name(p.SrcChainID), chains.Name(p.DstChainID))
	}

	params := url.Values{}
	params.Set("src", p.SrcTokenAddress)
	params.Set("dst", p.DstTokenAddress)
	params.Set("amount", p.Amount)
	params.Set("from", p.WalletAddress)
	params.Set("slippage", "1")

	var resp swapTxResponse
	path := fmt.Sprintf("/swap/v6.0/%d/swap", p.SrcChainID)
	if err := c.get(ctx, path, params, &resp); err != nil {
		return nil, fmt.Errorf("oneinch swap transaction: %w", err)
	}

	payload := resp.payload()
	if payload == nil || payload.To == "" || payload.Data == "" {
		return nil, fmt.Errorf("oneinch swap transaction: response missing tx data")
	}
	return payload.toPreparedTx(), nil
}

// SpenderAddress returns the router contract users must approve on a chain.
func (c *Client) SpenderAddress(ctx context.Context, chainID chains.ID) (string, error) {
	var resp struct {
		Address string `json:"address"`
	}
	path := fmt.Sprintf("/swap/v6.0/%d/approve/spender", chainID)
	if err := c.get(ctx, path, nil, &resp); err != nil {
		return "", fmt.Errorf("oneinch spender: %w", err)
	}
	if resp.Address == "" {
		return "", fmt.Errorf("oneinch spender: empty address for chain %d", chainID)
	}
	return resp.Address, nil
}

func (t *txPayload) toPreparedTx() *swaps.PreparedTx {
	return &swaps.PreparedTx{
		To:       t.To,
		Data:     t.Data,
		Value:    t.Value,
		Gas:      t.Gas,
		GasPrice: t.GasPrice,
	}
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	c.rateLimit()

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: %s", resp.Status, body)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

// GasEstimate formats a quote's gas units for display.
func GasEstimate(q *swaps.Quote) string {
	if q.Gas <= 0 {
		return "unknown"
	}
	return strconv.FormatInt(q.Gas, 10)
}
