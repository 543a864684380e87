package storage

import (
	"context"
	"errors"

	"sentineld/internal/domain"
)

// Retention caps. Appends past a cap evict the oldest records first; insertion
// order is the only ordering signal (FIFO, not LRU).
const (
	DefaultActivityCap = 1000
	DefaultInsightCap  = 100
)

// ActivityQuery filters and pages an activity listing.
// Zero-valued fields are ignored. Default order is newest-first.
type ActivityQuery struct {
	SentinelID string
	Owner      string
	Limit      int
	Offset     int
	Ascending  bool
}

// StatsFilter selects the activities aggregated by Stats.
// Exactly one of Owner or SentinelID should be set.
type StatsFilter struct {
	Owner      string
	SentinelID string
}

// SentinelStore provides access to sentinels storage.
type SentinelStore interface {
	// Insert adds a new sentinel. Returns ErrDuplicateKey if the id exists.
	Insert(ctx context.Context, s *domain.Sentinel) error

	// GetByID retrieves a sentinel by id. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.Sentinel, error)

	// GetByOwner retrieves all sentinels for an owner, newest first.
	GetByOwner(ctx context.Context, owner string) ([]*domain.Sentinel, error)

	// GetByStatus retrieves all sentinels in a given status.
	GetByStatus(ctx context.Context, status domain.SentinelStatus) ([]*domain.Sentinel, error)

	// UpdateStatus sets the status (and refreshes updated_at) for a sentinel.
	UpdateStatus(ctx context.Context, id string, status domain.SentinelStatus) error

	// Activate marks a sentinel active and deactivates every other sentinel
	// of the same (owner, network) pair in the same operation.
	Activate(ctx context.Context, id string) error

	// Deactivate clears the active flag for a sentinel.
	Deactivate(ctx context.Context, id string) error

	// Delete removes a sentinel. Dependent activities, insights and price
	// samples are removed by the caller (or by FK cascade in SQL stores).
	Delete(ctx context.Context, id string) error
}

// ActivityStore provides access to the append-only activity log.
type ActivityStore interface {
	// Append inserts a new activity. When the total count exceeds the
	// retention cap the oldest records are evicted first.
	Append(ctx context.Context, a *domain.Activity) error

	// Query returns one page of activities plus the total matching count.
	Query(ctx context.Context, q ActivityQuery) ([]*domain.Activity, int64, error)

	// Stats aggregates check outcomes for an owner or a sentinel.
	// Returns a zero-valued aggregate when nothing matches.
	Stats(ctx context.Context, f StatsFilter) (*domain.ActivityStats, error)

	// CountSince returns the number of activities for a sentinel created
	// strictly after the given timestamp (ms).
	CountSince(ctx context.Context, sentinelID string, afterMs int64) (int64, error)

	// DeleteBySentinel removes all activities for a sentinel.
	DeleteBySentinel(ctx context.Context, sentinelID string) error
}

// InsightStore provides access to the bounded insight history.
type InsightStore interface {
	// Append inserts a new insight with the same FIFO eviction policy as
	// activities, cap DefaultInsightCap.
	Append(ctx context.Context, i *domain.Insight) error

	// Latest returns the most recent insight for a sentinel.
	// Returns ErrNotFound when none exists.
	Latest(ctx context.Context, sentinelID string) (*domain.Insight, error)

	// GetBySentinel retrieves all insights for a sentinel, newest first.
	GetBySentinel(ctx context.Context, sentinelID string) ([]*domain.Insight, error)

	// DeleteBySentinel removes all insights for a sentinel.
	DeleteBySentinel(ctx context.Context, sentinelID string) error
}

// PriceSampleStore provides access to observed price points.
type PriceSampleStore interface {
	// Append records one observed price point.
	Append(ctx context.Context, p *domain.PriceSample) error

	// Recent returns up to limit samples for a sentinel, oldest first,
	// ending at the newest sample.
	Recent(ctx context.Context, sentinelID string, limit int) ([]*domain.PriceSample, error)

	// DeleteBySentinel removes all samples for a sentinel.
	DeleteBySentinel(ctx context.Context, sentinelID string) error
}

// ProfileStore provides access to dashboard user profiles.
type ProfileStore interface {
	// Insert adds a new profile. Returns ErrDuplicateKey if the id exists.
	Insert(ctx context.Context, p *domain.Profile) error

	// GetByID retrieves a profile by id. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.Profile, error)

	// Delete removes a profile.
	Delete(ctx context.Context, id string) error
}

// ShouldGenerateInsight implements the insight debounce rule: true when no
// insight exists yet for the sentinel, or when at least minActivities
// activities were created strictly after the latest insight.
func ShouldGenerateInsight(ctx context.Context, activities ActivityStore, insights InsightStore, sentinelID string, minActivities int64) (bool, error) {
	latest, err := insights.Latest(ctx, sentinelID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return true, nil
		}
		return false, err
	}

	n, err := activities.CountSince(ctx, sentinelID, latest.CreatedAt)
	if err != nil {
		return false, err
	}
	return n >= minActivities, nil
}
