// Package service implements owner-facing sentinel lifecycle operations,
// applying the guard's transition table and keeping the scheduler in sync
// with sentinel status.
package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"sentineld/internal/domain"
	"sentineld/internal/guard"
	"sentineld/internal/runner"
	"sentineld/internal/storage"
)

// Service coordinates sentinel lifecycle actions.
type Service struct {
	sentinels storage.SentinelStore
	activity  storage.ActivityStore
	insights  storage.InsightStore
	samples   storage.PriceSampleStore
	guard     *guard.Guard
	scheduler *runner.Scheduler
	logger    *log.Logger
}

// Options contains configuration for creating a Service.
type Options struct {
	SentinelStore storage.SentinelStore
	ActivityStore storage.ActivityStore
	InsightStore  storage.InsightStore
	SampleStore   storage.PriceSampleStore
	Guard         *guard.Guard
	Scheduler     *runner.Scheduler
	Logger        *log.Logger
}

// New creates a Service.
func New(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		sentinels: opts.SentinelStore,
		activity:  opts.ActivityStore,
		insights:  opts.InsightStore,
		samples:   opts.SampleStore,
		guard:     opts.Guard,
		scheduler: opts.Scheduler,
		logger:    logger,
	}
}

// CreateParams are the owner-supplied fields of a new sentinel.
type CreateParams struct {
	Owner              string
	WalletAddress      string
	SigningCredential  string
	Threshold          float64
	Condition          domain.Condition
	PaymentMethod      domain.PaymentMethod
	NotificationTarget string
	Network            domain.Network
}

// Validate checks the parameters.
func (p CreateParams) Validate() error {
	if p.Owner == "" {
		return fmt.Errorf("%w: owner required", storage.ErrInvalidInput)
	}
	if p.WalletAddress == "" || p.SigningCredential == "" {
		return fmt.Errorf("%w: wallet and credential required", storage.ErrInvalidInput)
	}
	if !p.Condition.IsValid() {
		return fmt.Errorf("%w: condition must be above or below", storage.ErrInvalidInput)
	}
	if !p.PaymentMethod.IsValid() {
		return fmt.Errorf("%w: unknown payment method", storage.ErrInvalidInput)
	}
	if !p.Network.IsValid() {
		return fmt.Errorf("%w: unknown network", storage.ErrInvalidInput)
	}
	return nil
}

// Create inserts a new sentinel. Initial status follows funding: ready when
// the wallet clears the minimums, unfunded otherwise. The new sentinel
// becomes the single active one for its (owner, network) pair.
func (s *Service) Create(ctx context.Context, p CreateParams) (*domain.Sentinel, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UnixMilli()
	sentinel := &domain.Sentinel{
		ID:                 uuid.NewString(),
		Owner:              p.Owner,
		WalletAddress:      p.WalletAddress,
		SigningCredential:  p.SigningCredential,
		Threshold:          p.Threshold,
		Condition:          p.Condition,
		PaymentMethod:      p.PaymentMethod,
		NotificationTarget: p.NotificationTarget,
		Network:            p.Network,
		Status:             domain.StatusUnfunded,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	funding, err := s.guard.Evaluate(ctx, sentinel)
	if err != nil {
		return nil, fmt.Errorf("evaluate funding: %w", err)
	}
	if funding.IsFunded {
		sentinel.Status = domain.StatusReady
	}

	if err := s.sentinels.Insert(ctx, sentinel); err != nil {
		return nil, fmt.Errorf("insert sentinel: %w", err)
	}
	if err := s.sentinels.Activate(ctx, sentinel.ID); err != nil {
		return nil, fmt.Errorf("activate sentinel: %w", err)
	}
	sentinel.IsActive = true

	s.logger.Printf("sentinel %s created for owner %s (%s)", sentinel.ID, sentinel.Owner, sentinel.Status)
	return sentinel, nil
}

// Refresh re-reads funding and settles an unfunded/ready sentinel.
func (s *Service) Refresh(ctx context.Context, id string) (*domain.Sentinel, guard.Funding, error) {
	return s.transition(ctx, id, guard.ActionRefresh)
}

// Start begins monitoring. Funding is revalidated at the instant of the
// transition; a broke wallet lands in unfunded and no timer starts.
func (s *Service) Start(ctx context.Context, id string) (*domain.Sentinel, guard.Funding, error) {
	return s.transition(ctx, id, guard.ActionStart)
}

// Stop pauses monitoring. An in-flight check completes and writes its
// trailing activity.
func (s *Service) Stop(ctx context.Context, id string) (*domain.Sentinel, guard.Funding, error) {
	return s.transition(ctx, id, guard.ActionStop)
}

// Resume returns a paused sentinel to monitoring, funding permitting.
func (s *Service) Resume(ctx context.Context, id string) (*domain.Sentinel, guard.Funding, error) {
	return s.transition(ctx, id, guard.ActionResume)
}

// transition loads, evaluates, applies and persists one lifecycle action,
// then reconciles the scheduler with the resulting status.
func (s *Service) transition(ctx context.Context, id string, action guard.Action) (*domain.Sentinel, guard.Funding, error) {
	sentinel, err := s.sentinels.GetByID(ctx, id)
	if err != nil {
		return nil, guard.Funding{}, err
	}

	funding, err := s.guard.Evaluate(ctx, sentinel)
	if err != nil {
		return nil, guard.Funding{}, fmt.Errorf("evaluate funding: %w", err)
	}

	next, err := guard.Apply(sentinel.Status, action, funding)
	if err != nil {
		return sentinel, funding, err
	}

	if next != sentinel.Status {
		if err := s.sentinels.UpdateStatus(ctx, id, next); err != nil {
			return sentinel, funding, fmt.Errorf("update status: %w", err)
		}
		sentinel.Status = next
	}

	switch next {
	case domain.StatusMonitoring:
		s.scheduler.Start(id)
	default:
		s.scheduler.Stop(id)
	}

	return sentinel, funding, nil
}

// Delete removes a sentinel and all of its dependents. The timer is
// cancelled first; SQL stores also cascade via foreign keys.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.sentinels.GetByID(ctx, id); err != nil {
		return err
	}

	s.scheduler.Stop(id)

	if err := s.activity.DeleteBySentinel(ctx, id); err != nil {
		return fmt.Errorf("delete activities: %w", err)
	}
	if err := s.insights.DeleteBySentinel(ctx, id); err != nil {
		return fmt.Errorf("delete insights: %w", err)
	}
	if err := s.samples.DeleteBySentinel(ctx, id); err != nil {
		return fmt.Errorf("delete price samples: %w", err)
	}
	if err := s.sentinels.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete sentinel: %w", err)
	}

	s.logger.Printf("sentinel %s deleted", id)
	return nil
}
