package postgres

import (
	"context"
	"fmt"

	"sentineld/internal/domain"
	"sentineld/internal/storage"
)

// ProfileStore implements storage.ProfileStore using PostgreSQL.
type ProfileStore struct {
	pool *Pool
}

// NewProfileStore creates a new ProfileStore.
func NewProfileStore(pool *Pool) *ProfileStore {
	return &ProfileStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ProfileStore = (*ProfileStore)(nil)

// Insert adds a new profile. Returns ErrDuplicateKey if the id exists.
func (s *ProfileStore) Insert(ctx context.Context, p *domain.Profile) error {
	query := `
		INSERT INTO profiles (id, display_name, email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := s.pool.Exec(ctx, query, p.ID, p.DisplayName, p.Email, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert profile: %w", err)
	}
	return nil
}

// GetByID retrieves a profile by id. Returns ErrNotFound if not exists.
func (s *ProfileStore) GetByID(ctx context.Context, id string) (*domain.Profile, error) {
	query := `SELECT id, display_name, email, created_at, updated_at FROM profiles WHERE id = $1`

	var p domain.Profile
	err := s.pool.QueryRow(ctx, query, id).Scan(&p.ID, &p.DisplayName, &p.Email, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get profile by id: %w", err)
	}
	return &p, nil
}

// Delete removes a profile.
func (s *ProfileStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM profiles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}
