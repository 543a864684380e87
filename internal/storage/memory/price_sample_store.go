package memory

import (
	"context"
	"sort"
	"sync"

	"sentineld/internal/domain"
	"sentineld/internal/storage"
)

// PriceSampleStore is an in-memory implementation of storage.PriceSampleStore.
type PriceSampleStore struct {
	mu   sync.RWMutex
	data []*domain.PriceSample
}

// NewPriceSampleStore creates a new in-memory price sample store.
func NewPriceSampleStore() *PriceSampleStore {
	return &PriceSampleStore{}
}

var _ storage.PriceSampleStore = (*PriceSampleStore)(nil)

// Append records one observed price point.
func (s *PriceSampleStore) Append(_ context.Context, p *domain.PriceSample) error {
	if p == nil || p.SentinelID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *p
	s.data = append(s.data, &copy)
	return nil
}

// Recent returns up to limit samples for a sentinel, oldest first, ending at
// the newest sample.
func (s *PriceSampleStore) Recent(_ context.Context, sentinelID string, limit int) ([]*domain.PriceSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PriceSample
	for _, p := range s.data {
		if p.SentinelID == sentinelID {
			copy := *p
			result = append(result, &copy)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].TimestampMs < result[j].TimestampMs
	})

	if limit > 0 && len(result) > limit {
		result = result[len(result)-limit:]
	}

	return result, nil
}

// DeleteBySentinel removes all samples for a sentinel.
func (s *PriceSampleStore) DeleteBySentinel(_ context.Context, sentinelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.data[:0]
	for _, p := range s.data {
		if p.SentinelID == sentinelID {
			continue
		}
		kept = append(kept, p)
	}
	s.data = kept
	return nil
}
