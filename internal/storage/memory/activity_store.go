package memory

import (
	"context"
	"sort"
	"sync"

	"sentineld/internal/domain"
	"sentineld/internal/storage"
)

// ActivityStore is an in-memory implementation of storage.ActivityStore.
// Records are held in insertion order; eviction drops from the front.
type ActivityStore struct {
	mu   sync.RWMutex
	data []*domain.Activity // insertion order, oldest first
	ids  map[string]struct{}
	cap  int
}

// NewActivityStore creates a new in-memory activity store with the default
// retention cap.
func NewActivityStore() *ActivityStore {
	return NewActivityStoreWithCap(storage.DefaultActivityCap)
}

// NewActivityStoreWithCap creates a store with a custom retention cap.
func NewActivityStoreWithCap(cap int) *ActivityStore {
	return &ActivityStore{
		ids: make(map[string]struct{}),
		cap: cap,
	}
}

var _ storage.ActivityStore = (*ActivityStore)(nil)

// Append inserts a new activity, evicting the oldest records past the cap.
// The count check and eviction run under one lock so a concurrent append
// from another sentinel's tick cannot race the eviction sequence.
func (s *ActivityStore) Append(_ context.Context, a *domain.Activity) error {
	if a == nil || a.ID == "" || a.SentinelID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ids[a.ID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *a
	s.data = append(s.data, &copy)
	s.ids[a.ID] = struct{}{}

	for len(s.data) > s.cap {
		evicted := s.data[0]
		s.data = s.data[1:]
		delete(s.ids, evicted.ID)
	}

	return nil
}

// matches reports whether an activity passes the query filter.
func matches(a *domain.Activity, q storage.ActivityQuery) bool {
	if q.SentinelID != "" && a.SentinelID != q.SentinelID {
		return false
	}
	if q.Owner != "" && a.Owner != q.Owner {
		return false
	}
	return true
}

// Query returns one page of activities plus the total matching count.
func (s *ActivityStore) Query(_ context.Context, q storage.ActivityQuery) ([]*domain.Activity, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []*domain.Activity
	for _, a := range s.data {
		if matches(a, q) {
			copy := *a
			all = append(all, &copy)
		}
	}
	total := int64(len(all))

	sort.SliceStable(all, func(i, j int) bool {
		if q.Ascending {
			return all[i].CreatedAt < all[j].CreatedAt
		}
		return all[i].CreatedAt > all[j].CreatedAt
	})

	if q.Offset > 0 {
		if q.Offset >= len(all) {
			return nil, total, nil
		}
		all = all[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(all) {
		all = all[:q.Limit]
	}

	return all, total, nil
}

// Stats aggregates check outcomes for an owner or a sentinel.
func (s *ActivityStore) Stats(_ context.Context, f storage.StatsFilter) (*domain.ActivityStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &domain.ActivityStats{}
	var successes int64
	var lastCheck int64

	for _, a := range s.data {
		if f.SentinelID != "" && a.SentinelID != f.SentinelID {
			continue
		}
		if f.Owner != "" && a.Owner != f.Owner {
			continue
		}

		stats.TotalChecks++
		stats.TotalSpent += a.Cost
		if a.Triggered {
			stats.AlertsTriggered++
		}
		if a.Status == domain.ActivitySuccess {
			successes++
		}
		if a.CreatedAt > lastCheck {
			lastCheck = a.CreatedAt
		}
	}

	if stats.TotalChecks > 0 {
		stats.SuccessRate = float64(successes) / float64(stats.TotalChecks)
		stats.AvgCost = stats.TotalSpent / float64(stats.TotalChecks)
		stats.LastCheckTimestamp = &lastCheck
	}

	return stats, nil
}

// CountSince returns activities for a sentinel created strictly after afterMs.
func (s *ActivityStore) CountSince(_ context.Context, sentinelID string, afterMs int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, a := range s.data {
		if a.SentinelID == sentinelID && a.CreatedAt > afterMs {
			n++
		}
	}
	return n, nil
}

// DeleteBySentinel removes all activities for a sentinel.
func (s *ActivityStore) DeleteBySentinel(_ context.Context, sentinelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.data[:0]
	for _, a := range s.data {
		if a.SentinelID == sentinelID {
			delete(s.ids, a.ID)
			continue
		}
		kept = append(kept, a)
	}
	s.data = kept
	return nil
}

// Len returns the current number of stored activities.
func (s *ActivityStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
