// Package paygate implements the payment-gated fetch protocol: request,
// pay on a payment-required response, retry once carrying proof of payment.
package paygate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"sentineld/internal/domain"
	"sentineld/internal/ledger"
)

// ProofHeader carries the settlement receipt id on the retried request.
const ProofHeader = "X-Payment-Proof"

// DefaultRequestTimeout bounds each individual HTTP call.
const DefaultRequestTimeout = 8 * time.Second

// Request describes one priced resource request.
type Request struct {
	Method string // defaults to GET
	URL    string
	Body   []byte // optional
}

// Outcome reports what a FetchPaid call paid for its response.
type Outcome struct {
	Paid    bool            // whether the resource demanded payment
	Cost    float64         // fee paid (0 if the resource was free)
	Receipt *domain.Receipt // settlement receipt (nil if free)
}

// rawTerms is the wire form of a payment-required body.
// All four fields are required.
type rawTerms struct {
	Amount    *float64 `json:"amount"`
	Recipient string   `json:"recipient"`
	Token     string   `json:"token"` // "A" | "B"
	Message   string   `json:"message"`
}

// Client performs payment-gated fetches against priced resources.
type Client struct {
	ledger ledger.Client
	client *http.Client
}

// Option configures Client.
type Option func(*Client)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.client = hc
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// NewClient creates a payment-gated fetch client backed by a ledger.
func NewClient(lc ledger.Client, opts ...Option) *Client {
	c := &Client{
		ledger: lc,
		client: &http.Client{Timeout: DefaultRequestTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchPaid performs a priced request. On a payment-required response it
// executes exactly one ledger transfer and retries exactly once with the
// receipt attached. A second payment demand fails with ErrPaymentRejected;
// there is never a third request or a second transfer.
//
// Once the transfer has settled, the Outcome is returned even when the
// retried request fails, so callers can account the fee actually spent.
func (c *Client) FetchPaid(ctx context.Context, req Request, credential string, method domain.PaymentMethod) ([]byte, *Outcome, error) {
	body, status, err := c.do(ctx, req, "")
	if err != nil {
		return nil, nil, err
	}

	if status != http.StatusPaymentRequired {
		if err := classifyStatus(status, body); err != nil {
			return nil, nil, err
		}
		return body, &Outcome{}, nil
	}

	terms, err := parseTerms(body)
	if err != nil {
		return nil, nil, err
	}
	if terms.Token != method {
		return nil, nil, fmt.Errorf("%w: resource wants %s, sentinel pays with %s",
			ErrInvalidPaymentTerms, terms.Token, method)
	}

	receipt, err := c.ledger.Transfer(ctx, credential, terms.Recipient, terms.Token, terms.Amount)
	if err != nil {
		// Ledger errors pass through unchanged; the caller decides recovery.
		return nil, nil, err
	}

	paid := &Outcome{Paid: true, Cost: terms.Amount, Receipt: receipt}

	body, status, err = c.do(ctx, req, receipt.ID)
	if err != nil {
		return nil, paid, err
	}
	if status == http.StatusPaymentRequired {
		return nil, paid, fmt.Errorf("%w: receipt %s not accepted", ErrPaymentRejected, receipt.ID)
	}
	if err := classifyStatus(status, body); err != nil {
		return nil, paid, err
	}

	return body, paid, nil
}

// do issues one HTTP request, attaching the proof header when set.
func (c *Client) do(ctx context.Context, req Request, proof string) ([]byte, int, error) {
	httpMethod := req.Method
	if httpMethod == "" {
		httpMethod = http.MethodGet
	}

	var bodyReader io.Reader
	if len(req.Body) > 0 {
		bodyReader = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, httpMethod, req.URL, bodyReader)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if len(req.Body) > 0 {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if proof != "" {
		httpReq.Header.Set(ProofHeader, proof)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ledger.ErrNetworkError, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: read body: %v", ledger.ErrNetworkError, err)
	}

	return body, resp.StatusCode, nil
}

// classifyStatus maps a non-payment status to the error taxonomy.
func classifyStatus(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	detail := string(body)
	if len(detail) > 256 {
		detail = detail[:256]
	}
	return fmt.Errorf("%w: status %d: %s", ErrResource, status, detail)
}

// parseTerms validates and converts a payment-required body.
func parseTerms(body []byte) (*domain.PaymentTerms, error) {
	var raw rawTerms
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPaymentTerms, err)
	}
	if raw.Amount == nil {
		return nil, fmt.Errorf("%w: missing amount", ErrInvalidPaymentTerms)
	}
	if raw.Recipient == "" {
		return nil, fmt.Errorf("%w: missing recipient", ErrInvalidPaymentTerms)
	}
	if raw.Message == "" {
		return nil, fmt.Errorf("%w: missing message", ErrInvalidPaymentTerms)
	}

	var token domain.PaymentMethod
	switch raw.Token {
	case "A":
		token = domain.PaymentTokenA
	case "B":
		token = domain.PaymentTokenB
	default:
		return nil, fmt.Errorf("%w: unknown token %q", ErrInvalidPaymentTerms, raw.Token)
	}

	return &domain.PaymentTerms{
		Amount:    *raw.Amount,
		Recipient: raw.Recipient,
		Token:     token,
		Message:   raw.Message,
	}, nil
}
