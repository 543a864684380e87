package ledger

import (
	"context"

	"sentineld/internal/domain"
)

// Client defines the ledger capability the monitoring core depends on:
// balance reads, fee transfers and settlement confirmation.
type Client interface {
	// Balance returns the payment-token balance for an address.
	// Transport failures propagate; callers that need a conservative read
	// (balance unknown == 0) degrade at their own boundary.
	Balance(ctx context.Context, address string, method domain.PaymentMethod) (float64, error)

	// GasBalance returns the gas-asset balance for an address.
	GasBalance(ctx context.Context, address string) (float64, error)

	// Transfer moves amount of the payment token from the credential's wallet
	// to recipient and returns a settlement receipt.
	// Fails with ErrInsufficientFunds when the sender balance is short,
	// ErrAccountMissing when a token account cannot be resolved, and
	// ErrNetworkError on transport failure.
	Transfer(ctx context.Context, credential, recipient string, method domain.PaymentMethod, amount float64) (*domain.Receipt, error)

	// ConfirmReceipt reports whether a settlement receipt is confirmed.
	// Idempotent; false when the underlying transfer is unknown or failed.
	ConfirmReceipt(ctx context.Context, receiptID string) (bool, error)
}
