package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"sentineld/internal/domain"
	"sentineld/internal/storage"
)

// SentinelStore is an in-memory implementation of storage.SentinelStore.
type SentinelStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Sentinel // keyed by sentinel id
}

// NewSentinelStore creates a new in-memory sentinel store.
func NewSentinelStore() *SentinelStore {
	return &SentinelStore{
		data: make(map[string]*domain.Sentinel),
	}
}

var _ storage.SentinelStore = (*SentinelStore)(nil)

// Insert adds a new sentinel. Returns ErrDuplicateKey if the id exists.
func (s *SentinelStore) Insert(_ context.Context, sentinel *domain.Sentinel) error {
	if sentinel == nil || sentinel.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[sentinel.ID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *sentinel
	s.data[sentinel.ID] = &copy
	return nil
}

// GetByID retrieves a sentinel by id. Returns ErrNotFound if not exists.
func (s *SentinelStore) GetByID(_ context.Context, id string) (*domain.Sentinel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sentinel, ok := s.data[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copy := *sentinel
	return &copy, nil
}

// GetByOwner retrieves all sentinels for an owner, newest first.
func (s *SentinelStore) GetByOwner(_ context.Context, owner string) ([]*domain.Sentinel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Sentinel
	for _, sentinel := range s.data {
		if sentinel.Owner == owner {
			copy := *sentinel
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt > result[j].CreatedAt
	})

	return result, nil
}

// GetByStatus retrieves all sentinels in a given status.
func (s *SentinelStore) GetByStatus(_ context.Context, status domain.SentinelStatus) ([]*domain.Sentinel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Sentinel
	for _, sentinel := range s.data {
		if sentinel.Status == status {
			copy := *sentinel
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt > result[j].CreatedAt
	})

	return result, nil
}

// UpdateStatus sets the status for a sentinel.
func (s *SentinelStore) UpdateStatus(_ context.Context, id string, status domain.SentinelStatus) error {
	if !status.IsValid() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sentinel, ok := s.data[id]
	if !ok {
		return storage.ErrNotFound
	}
	sentinel.Status = status
	sentinel.UpdatedAt = time.Now().UnixMilli()
	return nil
}

// Activate marks a sentinel active and deactivates its (owner, network)
// siblings in the same critical section.
func (s *SentinelStore) Activate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.data[id]
	if !ok {
		return storage.ErrNotFound
	}

	now := time.Now().UnixMilli()
	for _, sibling := range s.data {
		if sibling.Owner == target.Owner && sibling.Network == target.Network && sibling.IsActive {
			sibling.IsActive = false
			sibling.UpdatedAt = now
		}
	}
	target.IsActive = true
	target.UpdatedAt = now
	return nil
}

// Deactivate clears the active flag for a sentinel.
func (s *SentinelStore) Deactivate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sentinel, ok := s.data[id]
	if !ok {
		return storage.ErrNotFound
	}
	sentinel.IsActive = false
	sentinel.UpdatedAt = time.Now().UnixMilli()
	return nil
}

// Delete removes a sentinel.
func (s *SentinelStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.data, id)
	return nil
}
