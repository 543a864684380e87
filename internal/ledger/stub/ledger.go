package stub

import (
	"context"
	"fmt"
	"sync"

	"sentineld/internal/domain"
	"sentineld/internal/ledger"
)

// balanceKey identifies one token balance.
type balanceKey struct {
	Address string
	Method  domain.PaymentMethod
}

// Ledger implements ledger.Client for testing and -use-stub runs.
// Balances are keyed by address; credentials are treated as the address of
// the wallet they sign for.
type Ledger struct {
	mu           sync.Mutex
	gasBalances  map[string]float64
	balances     map[balanceKey]float64
	receipts     map[string]bool // receipt ID -> confirmed
	transferSeq  int
	TransferErr  error // forced error for the next Transfer, if set
	BalanceErr   error // forced error for balance reads, if set
	TransferLog  []Transfer
}

// Transfer records one stub transfer for assertions.
type Transfer struct {
	Credential string
	Recipient  string
	Method     domain.PaymentMethod
	Amount     float64
}

// New creates an empty stub ledger.
func New() *Ledger {
	return &Ledger{
		gasBalances: make(map[string]float64),
		balances:    make(map[balanceKey]float64),
		receipts:    make(map[string]bool),
	}
}

var _ ledger.Client = (*Ledger)(nil)

// Fund sets balances for an address.
func (l *Ledger) Fund(address string, gas float64, method domain.PaymentMethod, tokens float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.gasBalances[address] = gas
	l.balances[balanceKey{address, method}] = tokens
}

// Balance returns the payment-token balance for an address.
func (l *Ledger) Balance(_ context.Context, address string, method domain.PaymentMethod) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.BalanceErr != nil {
		return 0, l.BalanceErr
	}
	return l.balances[balanceKey{address, method}], nil
}

// GasBalance returns the gas-asset balance for an address.
func (l *Ledger) GasBalance(_ context.Context, address string) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.BalanceErr != nil {
		return 0, l.BalanceErr
	}
	return l.gasBalances[address], nil
}

// Transfer moves tokens between stub balances and issues a receipt.
func (l *Ledger) Transfer(_ context.Context, credential, recipient string, method domain.PaymentMethod, amount float64) (*domain.Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.TransferErr != nil {
		err := l.TransferErr
		l.TransferErr = nil
		return nil, err
	}

	sender := balanceKey{credential, method}
	if l.balances[sender] < amount {
		return nil, fmt.Errorf("%w: balance %f < %f", ledger.ErrInsufficientFunds, l.balances[sender], amount)
	}

	l.balances[sender] -= amount
	l.balances[balanceKey{recipient, method}] += amount
	l.transferSeq++
	l.TransferLog = append(l.TransferLog, Transfer{credential, recipient, method, amount})

	id := fmt.Sprintf("stub-receipt-%d", l.transferSeq)
	l.receipts[id] = true
	return &domain.Receipt{ID: id, SettlementTimeMs: 12}, nil
}

// ConfirmReceipt reports whether a stub receipt exists.
func (l *Ledger) ConfirmReceipt(_ context.Context, receiptID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.receipts[receiptID], nil
}

// TransferCount returns the number of transfers performed.
func (l *Ledger) TransferCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.TransferLog)
}
