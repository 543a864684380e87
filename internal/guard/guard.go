// Package guard implements the admission/balance guard and the sentinel
// status transition table. Evaluate is a pure read; callers apply the
// resulting transition through the sentinel store.
package guard

import (
	"context"
	"errors"
	"fmt"
	"log"

	"sentineld/internal/domain"
	"sentineld/internal/ledger"
)

// Funding minimum defaults, in whole asset units.
const (
	DefaultMinGas   = 0.01
	DefaultMinToken = 0.01
)

// ErrInvalidTransition is returned when an action is not allowed from the
// sentinel's current status.
var ErrInvalidTransition = errors.New("invalid status transition")

// Action is an owner- or system-initiated lifecycle request.
type Action string

const (
	// ActionRefresh re-reads funding and settles unfunded/ready accordingly.
	ActionRefresh Action = "refresh"
	// ActionStart begins monitoring from ready.
	ActionStart Action = "start"
	// ActionStop pauses monitoring. Always allowed from monitoring.
	ActionStop Action = "stop"
	// ActionResume returns a paused sentinel to monitoring.
	ActionResume Action = "resume"
)

// Funding is the result of one balance evaluation.
type Funding struct {
	Gas      float64 // gas-asset balance
	Token    float64 // payment-token balance
	IsFunded bool    // Gas >= MinGas AND Token >= MinToken
}

// Guard evaluates wallet funding against configured minimums.
type Guard struct {
	ledger   ledger.Client
	minGas   float64
	minToken float64
	logger   *log.Logger
}

// Options configures a Guard.
type Options struct {
	Ledger   ledger.Client
	MinGas   float64 // default DefaultMinGas
	MinToken float64 // default DefaultMinToken
	Logger   *log.Logger
}

// New creates a Guard.
func New(opts Options) *Guard {
	minGas := opts.MinGas
	if minGas == 0 {
		minGas = DefaultMinGas
	}
	minToken := opts.MinToken
	if minToken == 0 {
		minToken = DefaultMinToken
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Guard{
		ledger:   opts.Ledger,
		minGas:   minGas,
		minToken: minToken,
		logger:   logger,
	}
}

// Evaluate reads both balances for a sentinel's wallet and reports funding.
// This is the one boundary where balance-read failures degrade to zero: an
// unreadable balance conservatively reads as unfunded rather than erroring.
func (g *Guard) Evaluate(ctx context.Context, s *domain.Sentinel) (Funding, error) {
	gas, err := g.ledger.GasBalance(ctx, s.WalletAddress)
	if err != nil {
		g.logger.Printf("gas balance read failed for sentinel %s, treating as 0: %v", s.ID, err)
		gas = 0
	}

	token, err := g.ledger.Balance(ctx, s.WalletAddress, s.PaymentMethod)
	if err != nil {
		g.logger.Printf("token balance read failed for sentinel %s, treating as 0: %v", s.ID, err)
		token = 0
	}

	return Funding{
		Gas:      gas,
		Token:    token,
		IsFunded: gas >= g.minGas && token >= g.minToken,
	}, nil
}

// Apply resolves the next status for an action given current funding.
// Start and resume revalidate funding at the instant of transition; a broke
// wallet redirects to unfunded instead of monitoring.
func Apply(current domain.SentinelStatus, action Action, funding Funding) (domain.SentinelStatus, error) {
	switch action {
	case ActionRefresh:
		switch current {
		case domain.StatusUnfunded:
			if funding.IsFunded {
				return domain.StatusReady, nil
			}
			return domain.StatusUnfunded, nil
		case domain.StatusReady:
			if !funding.IsFunded {
				return domain.StatusUnfunded, nil
			}
			return domain.StatusReady, nil
		}
		return current, nil

	case ActionStart:
		if current != domain.StatusReady {
			return current, fmt.Errorf("%w: start from %s", ErrInvalidTransition, current)
		}
		if !funding.IsFunded {
			return domain.StatusUnfunded, nil
		}
		return domain.StatusMonitoring, nil

	case ActionStop:
		if current != domain.StatusMonitoring {
			return current, fmt.Errorf("%w: stop from %s", ErrInvalidTransition, current)
		}
		return domain.StatusPaused, nil

	case ActionResume:
		if current != domain.StatusPaused {
			return current, fmt.Errorf("%w: resume from %s", ErrInvalidTransition, current)
		}
		if !funding.IsFunded {
			return domain.StatusUnfunded, nil
		}
		return domain.StatusMonitoring, nil
	}

	return current, fmt.Errorf("%w: unknown action %q", ErrInvalidTransition, action)
}
