package memory

import (
	"context"
	"sort"
	"sync"

	"sentineld/internal/domain"
	"sentineld/internal/storage"
)

// InsightStore is an in-memory implementation of storage.InsightStore.
type InsightStore struct {
	mu   sync.RWMutex
	data []*domain.Insight // insertion order, oldest first
	ids  map[string]struct{}
	cap  int
}

// NewInsightStore creates a new in-memory insight store with the default cap.
func NewInsightStore() *InsightStore {
	return NewInsightStoreWithCap(storage.DefaultInsightCap)
}

// NewInsightStoreWithCap creates a store with a custom retention cap.
func NewInsightStoreWithCap(cap int) *InsightStore {
	return &InsightStore{
		ids: make(map[string]struct{}),
		cap: cap,
	}
}

var _ storage.InsightStore = (*InsightStore)(nil)

// Append inserts a new insight, evicting the oldest past the cap.
func (s *InsightStore) Append(_ context.Context, i *domain.Insight) error {
	if i == nil || i.ID == "" || i.SentinelID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ids[i.ID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *i
	s.data = append(s.data, &copy)
	s.ids[i.ID] = struct{}{}

	for len(s.data) > s.cap {
		evicted := s.data[0]
		s.data = s.data[1:]
		delete(s.ids, evicted.ID)
	}

	return nil
}

// Latest returns the most recent insight for a sentinel.
func (s *InsightStore) Latest(_ context.Context, sentinelID string) (*domain.Insight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.Insight
	for _, i := range s.data {
		if i.SentinelID != sentinelID {
			continue
		}
		if latest == nil || i.CreatedAt > latest.CreatedAt {
			latest = i
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}
	copy := *latest
	return &copy, nil
}

// GetBySentinel retrieves all insights for a sentinel, newest first.
func (s *InsightStore) GetBySentinel(_ context.Context, sentinelID string) ([]*domain.Insight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Insight
	for _, i := range s.data {
		if i.SentinelID == sentinelID {
			copy := *i
			result = append(result, &copy)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt > result[j].CreatedAt
	})

	return result, nil
}

// DeleteBySentinel removes all insights for a sentinel.
func (s *InsightStore) DeleteBySentinel(_ context.Context, sentinelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.data[:0]
	for _, i := range s.data {
		if i.SentinelID == sentinelID {
			delete(s.ids, i.ID)
			continue
		}
		kept = append(kept, i)
	}
	s.data = kept
	return nil
}

// Len returns the current number of stored insights.
func (s *InsightStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
