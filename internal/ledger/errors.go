package ledger

import "errors"

// Ledger errors. The check runner and payment gate branch on these with
// errors.Is; wrap them with fmt.Errorf("...: %w", err) to add context.
var (
	// ErrInsufficientFunds is returned when the sender balance cannot cover
	// the transfer amount. Recoverable by funding the wallet.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrAccountMissing is returned when the token account for sender or
	// recipient cannot be resolved or created.
	ErrAccountMissing = errors.New("token account missing")

	// ErrNetworkError is returned on transport failure or timeout.
	ErrNetworkError = errors.New("ledger network error")

	// ErrPaymentLimitExceeded is returned when a transfer on a production
	// network exceeds the configured per-transaction ceiling.
	ErrPaymentLimitExceeded = errors.New("payment exceeds per-transaction limit")

	// ErrInvalidAddress is returned when an address fails base58 validation.
	ErrInvalidAddress = errors.New("invalid address")
)
