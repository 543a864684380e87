package domain

// PaymentMethod is the closed set of tokens a sentinel can pay fees with.
// Callers never branch on the underlying token symbol; the ledger client
// dispatches internally.
type PaymentMethod string

const (
	PaymentTokenA PaymentMethod = "token-A"
	PaymentTokenB PaymentMethod = "token-B"
)

// String returns the string representation of PaymentMethod.
func (m PaymentMethod) String() string {
	return string(m)
}

// IsValid checks if the payment method is a valid value.
func (m PaymentMethod) IsValid() bool {
	return m == PaymentTokenA || m == PaymentTokenB
}

// PaymentTerms are the terms embedded in a payment-required response.
// All fields are required; a response missing any of them is rejected.
type PaymentTerms struct {
	Amount    float64       // fee demanded for one delivery
	Recipient string        // base58 address the fee is paid to
	Token     PaymentMethod // token the fee is denominated in
	Message   string        // human-readable description from the resource
}

// Receipt is the settlement proof returned by a ledger transfer.
type Receipt struct {
	ID               string // globally unique settlement identifier
	SettlementTimeMs int64  // elapsed time from submit to confirmation
}
