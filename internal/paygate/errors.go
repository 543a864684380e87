package paygate

import "errors"

// Protocol errors. Ledger errors (ErrInsufficientFunds, ErrAccountMissing,
// ErrNetworkError) propagate through FetchPaid unchanged; these cover the
// protocol layer itself.
var (
	// ErrInvalidPaymentTerms is returned when a payment-required response is
	// missing any of the four required term fields.
	ErrInvalidPaymentTerms = errors.New("invalid payment terms")

	// ErrPaymentRejected is returned when the resource demands payment again
	// after a proof-carrying retry. Terminal for the attempt: the protocol
	// never pays twice.
	ErrPaymentRejected = errors.New("payment proof rejected")

	// ErrResource is returned on any other non-2xx response from the priced
	// resource.
	ErrResource = errors.New("resource error")
)
