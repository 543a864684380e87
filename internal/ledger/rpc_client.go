package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"sentineld/internal/domain"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0

	// MaxPaymentProduction is the hard per-transaction ceiling on production
	// networks, in payment-token units. Distinct from the funding minimums.
	MaxPaymentProduction = 0.001
)

// Node-side error codes mapped to typed errors.
const (
	rpcCodeInsufficientFunds = -32002
	rpcCodeAccountMissing    = -32011
)

// RPCClient implements Client over a ledger node's JSON-RPC 2.0 gateway.
// Balance reads retry with exponential backoff; transfers are submitted
// exactly once so a transport hiccup can never double-spend.
type RPCClient struct {
	endpoint    string
	network     domain.Network
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	requestID   atomic.Uint64
}

// ClientOption configures RPCClient.
type ClientOption func(*RPCClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *RPCClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts for read calls.
func WithMaxRetries(n int) ClientOption {
	return func(c *RPCClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *RPCClient) {
		c.retryDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *RPCClient) {
		c.client = client
	}
}

// NewRPCClient creates a new ledger RPC client for a network.
func NewRPCClient(endpoint string, network domain.Network, opts ...ClientOption) *RPCClient {
	c := &RPCClient{
		endpoint:    endpoint,
		network:     network,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ Client = (*RPCClient)(nil)

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError represents a JSON-RPC 2.0 error.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// typed maps a node error code to the ledger error taxonomy.
func (e *rpcError) typed() error {
	switch e.Code {
	case rpcCodeInsufficientFunds:
		return fmt.Errorf("%w: %s", ErrInsufficientFunds, e.Message)
	case rpcCodeAccountMissing:
		return fmt.Errorf("%w: %s", ErrAccountMissing, e.Message)
	default:
		return e
	}
}

// call performs a JSON-RPC call with retries and exponential backoff.
func (c *RPCClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", ErrNetworkError, ctx.Err())
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		err := c.callOnce(ctx, method, params, result)
		if err == nil {
			return nil
		}
		// Node errors are definitive; only transport failures are retried.
		var rpcErr *rpcError
		if errors.As(err, &rpcErr) || errors.Is(err, ErrInsufficientFunds) || errors.Is(err, ErrAccountMissing) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("%w: max retries exceeded: %v", ErrNetworkError, lastErr)
}

// callOnce performs exactly one JSON-RPC round trip.
func (c *RPCClient) callOnce(ctx context.Context, method string, params []interface{}, result interface{}) error {
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}

	respBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}

	if rpcResp.Error != nil {
		return rpcResp.Error.typed()
	}

	if result != nil && rpcResp.Result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("unmarshal result: %w", err)
		}
	}

	return nil
}

// Balance returns the payment-token balance for an address.
func (c *RPCClient) Balance(ctx context.Context, address string, method domain.PaymentMethod) (float64, error) {
	if err := ValidateAddress(address); err != nil {
		return 0, err
	}
	mint, err := MintForMethod(c.network, method)
	if err != nil {
		return 0, err
	}
	account, err := DeriveTokenAccount(address, mint)
	if err != nil {
		return 0, err
	}

	var result tokenBalanceResult
	if err := c.call(ctx, "getTokenAccountBalance", []interface{}{account}, &result); err != nil {
		return 0, err
	}
	return result.UIAmount, nil
}

type tokenBalanceResult struct {
	Amount   string  `json:"amount"`
	Decimals int     `json:"decimals"`
	UIAmount float64 `json:"uiAmount"`
}

// GasBalance returns the gas-asset balance for an address, in whole units.
func (c *RPCClient) GasBalance(ctx context.Context, address string) (float64, error) {
	if err := ValidateAddress(address); err != nil {
		return 0, err
	}

	var result struct {
		Value uint64 `json:"value"` // base units, 1e9 per whole unit
	}
	if err := c.call(ctx, "getBalance", []interface{}{address}, &result); err != nil {
		return 0, err
	}
	return float64(result.Value) / 1e9, nil
}

// Transfer moves amount of the payment token to recipient and returns a
// settlement receipt. The gateway builds, signs and confirms the transfer
// server-side; this client submits it exactly once.
func (c *RPCClient) Transfer(ctx context.Context, credential, recipient string, method domain.PaymentMethod, amount float64) (*domain.Receipt, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("transfer amount must be positive, got %f", amount)
	}
	if c.network == domain.NetworkProduction && amount > MaxPaymentProduction {
		return nil, fmt.Errorf("%w: %f > %f", ErrPaymentLimitExceeded, amount, MaxPaymentProduction)
	}
	if err := ValidateAddress(recipient); err != nil {
		return nil, err
	}
	mint, err := MintForMethod(c.network, method)
	if err != nil {
		return nil, err
	}

	params := []interface{}{
		map[string]interface{}{
			"credential": credential,
			"recipient":  recipient,
			"mint":       mint,
			"amount":     amount,
		},
	}

	started := time.Now()
	var result struct {
		Receipt string `json:"receipt"`
	}
	if err := c.callOnce(ctx, "sendTokenTransfer", params, &result); err != nil {
		var rpcErr *rpcError
		if errors.As(err, &rpcErr) {
			return nil, err
		}
		if errors.Is(err, ErrInsufficientFunds) || errors.Is(err, ErrAccountMissing) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrNetworkError, err)
	}
	if result.Receipt == "" {
		return nil, fmt.Errorf("%w: gateway returned empty receipt", ErrNetworkError)
	}

	return &domain.Receipt{
		ID:               result.Receipt,
		SettlementTimeMs: time.Since(started).Milliseconds(),
	}, nil
}

// ConfirmReceipt reports whether a settlement receipt is confirmed.
func (c *RPCClient) ConfirmReceipt(ctx context.Context, receiptID string) (bool, error) {
	var result struct {
		Statuses []*struct {
			Confirmed bool        `json:"confirmed"`
			Err       interface{} `json:"err"`
		} `json:"statuses"`
	}
	if err := c.call(ctx, "getReceiptStatuses", []interface{}{[]string{receiptID}}, &result); err != nil {
		return false, err
	}
	if len(result.Statuses) == 0 || result.Statuses[0] == nil {
		return false, nil
	}
	st := result.Statuses[0]
	return st.Confirmed && st.Err == nil, nil
}
