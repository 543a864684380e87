package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"sentineld/internal/domain"
	"sentineld/internal/storage"
)

// SentinelStore implements storage.SentinelStore using PostgreSQL.
type SentinelStore struct {
	pool *Pool
}

// NewSentinelStore creates a new SentinelStore.
func NewSentinelStore(pool *Pool) *SentinelStore {
	return &SentinelStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SentinelStore = (*SentinelStore)(nil)

const sentinelColumns = `
	id, owner_id, wallet_address, signing_credential, threshold, condition,
	payment_method, notification_target, network, status, is_active,
	created_at, updated_at
`

// Insert adds a new sentinel. Returns ErrDuplicateKey if the id exists.
func (s *SentinelStore) Insert(ctx context.Context, sentinel *domain.Sentinel) error {
	query := `
		INSERT INTO sentinels (` + sentinelColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := s.pool.Exec(ctx, query,
		sentinel.ID,
		sentinel.Owner,
		sentinel.WalletAddress,
		sentinel.SigningCredential,
		sentinel.Threshold,
		string(sentinel.Condition),
		string(sentinel.PaymentMethod),
		sentinel.NotificationTarget,
		string(sentinel.Network),
		string(sentinel.Status),
		sentinel.IsActive,
		sentinel.CreatedAt,
		sentinel.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert sentinel: %w", err)
	}
	return nil
}

// GetByID retrieves a sentinel by id. Returns ErrNotFound if not exists.
func (s *SentinelStore) GetByID(ctx context.Context, id string) (*domain.Sentinel, error) {
	query := `SELECT ` + sentinelColumns + ` FROM sentinels WHERE id = $1`

	row := s.pool.QueryRow(ctx, query, id)
	sentinel, err := scanSentinel(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get sentinel by id: %w", err)
	}
	return sentinel, nil
}

// GetByOwner retrieves all sentinels for an owner, newest first.
func (s *SentinelStore) GetByOwner(ctx context.Context, owner string) ([]*domain.Sentinel, error) {
	query := `SELECT ` + sentinelColumns + ` FROM sentinels WHERE owner_id = $1 ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("get sentinels by owner: %w", err)
	}
	defer rows.Close()

	return scanSentinels(rows)
}

// GetByStatus retrieves all sentinels in a given status.
func (s *SentinelStore) GetByStatus(ctx context.Context, status domain.SentinelStatus) ([]*domain.Sentinel, error) {
	query := `SELECT ` + sentinelColumns + ` FROM sentinels WHERE status = $1 ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("get sentinels by status: %w", err)
	}
	defer rows.Close()

	return scanSentinels(rows)
}

// UpdateStatus sets the status for a sentinel.
func (s *SentinelStore) UpdateStatus(ctx context.Context, id string, status domain.SentinelStatus) error {
	query := `UPDATE sentinels SET status = $2, updated_at = $3 WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, id, string(status), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("update sentinel status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Activate marks a sentinel active and deactivates its (owner, network)
// siblings in one transaction.
func (s *SentinelStore) Activate(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UnixMilli()

	var owner, network string
	err = tx.QueryRow(ctx, `SELECT owner_id, network FROM sentinels WHERE id = $1`, id).Scan(&owner, &network)
	if err != nil {
		if isNotFoundError(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("load sentinel: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE sentinels SET is_active = FALSE, updated_at = $3
		WHERE owner_id = $1 AND network = $2 AND is_active = TRUE
	`, owner, network, now)
	if err != nil {
		return fmt.Errorf("deactivate siblings: %w", err)
	}

	_, err = tx.Exec(ctx, `UPDATE sentinels SET is_active = TRUE, updated_at = $2 WHERE id = $1`, id, now)
	if err != nil {
		return fmt.Errorf("activate sentinel: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Deactivate clears the active flag for a sentinel.
func (s *SentinelStore) Deactivate(ctx context.Context, id string) error {
	query := `UPDATE sentinels SET is_active = FALSE, updated_at = $2 WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, id, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("deactivate sentinel: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Delete removes a sentinel. Dependent rows cascade via foreign keys.
func (s *SentinelStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sentinels WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete sentinel: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// scanSentinel scans one sentinel row.
func scanSentinel(row pgx.Row) (*domain.Sentinel, error) {
	var s domain.Sentinel
	var condition, method, network, status string

	err := row.Scan(
		&s.ID, &s.Owner, &s.WalletAddress, &s.SigningCredential, &s.Threshold,
		&condition, &method, &s.NotificationTarget, &network, &status,
		&s.IsActive, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.Condition = domain.Condition(condition)
	s.PaymentMethod = domain.PaymentMethod(method)
	s.Network = domain.Network(network)
	s.Status = domain.SentinelStatus(status)
	return &s, nil
}

// scanSentinels scans all sentinel rows.
func scanSentinels(rows pgx.Rows) ([]*domain.Sentinel, error) {
	var result []*domain.Sentinel
	for rows.Next() {
		s, err := scanSentinel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sentinel: %w", err)
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sentinels: %w", err)
	}
	return result, nil
}
