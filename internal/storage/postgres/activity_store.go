package postgres

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"

	"sentineld/internal/domain"
	"sentineld/internal/storage"
)

// ActivityStore implements storage.ActivityStore using PostgreSQL.
// Retention is enforced at append time: the insert and the delete of
// oldest-beyond-cap rows run in one transaction, so readers never observe
// a log above the cap.
type ActivityStore struct {
	pool *Pool
	cap  int
}

// NewActivityStore creates a new ActivityStore with the given retention cap.
// A cap <= 0 falls back to DefaultActivityCap.
func NewActivityStore(pool *Pool, cap int) *ActivityStore {
	if cap <= 0 {
		cap = storage.DefaultActivityCap
	}
	return &ActivityStore{pool: pool, cap: cap}
}

// Compile-time interface check.
var _ storage.ActivityStore = (*ActivityStore)(nil)

const activityColumns = `
	id, sentinel_id, owner_id, price, cost, triggered, status, payment_method,
	transaction_receipt, settlement_time_ms, error_message, created_at
`

// Append inserts a new activity and evicts the oldest records beyond the
// retention cap in the same transaction.
func (s *ActivityStore) Append(ctx context.Context, a *domain.Activity) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO activities (`+activityColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		a.ID, a.SentinelID, a.Owner, a.Price, a.Cost, a.Triggered,
		string(a.Status), string(a.PaymentMethod),
		a.TransactionReceipt, a.SettlementTimeMs, a.ErrorMessage, a.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert activity: %w", err)
	}

	// seq is a bigserial assigned on insert, so ordering survives equal
	// created_at timestamps.
	_, err = tx.Exec(ctx, `
		DELETE FROM activities
		WHERE seq IN (
			SELECT seq FROM activities
			ORDER BY seq DESC
			OFFSET $1
		)
	`, s.cap)
	if err != nil {
		return fmt.Errorf("evict activities: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Query returns one page of activities plus the total matching count.
func (s *ActivityStore) Query(ctx context.Context, q storage.ActivityQuery) ([]*domain.Activity, int64, error) {
	where, args := activityFilter(q.SentinelID, q.Owner)

	var total int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM activities`+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count activities: %w", err)
	}

	order := "DESC"
	if q.Ascending {
		order = "ASC"
	}
	query := `SELECT ` + activityColumns + ` FROM activities` + where + ` ORDER BY seq ` + order

	if q.Limit > 0 {
		query += ` LIMIT $` + strconv.Itoa(len(args)+1)
		args = append(args, q.Limit)
	}
	if q.Offset > 0 {
		query += ` OFFSET $` + strconv.Itoa(len(args)+1)
		args = append(args, q.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query activities: %w", err)
	}
	defer rows.Close()

	var result []*domain.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan activity: %w", err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate activities: %w", err)
	}
	return result, total, nil
}

// Stats aggregates check outcomes for an owner or a sentinel.
// Returns a zero-valued aggregate when nothing matches.
func (s *ActivityStore) Stats(ctx context.Context, f storage.StatsFilter) (*domain.ActivityStats, error) {
	where, args := activityFilter(f.SentinelID, f.Owner)

	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(cost), 0),
			COUNT(*) FILTER (WHERE triggered),
			COUNT(*) FILTER (WHERE status = 'success'),
			MAX(created_at)
		FROM activities` + where

	var stats domain.ActivityStats
	var successes int64
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&stats.TotalChecks,
		&stats.TotalSpent,
		&stats.AlertsTriggered,
		&successes,
		&stats.LastCheckTimestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregate activity stats: %w", err)
	}

	if stats.TotalChecks > 0 {
		stats.SuccessRate = float64(successes) / float64(stats.TotalChecks)
		stats.AvgCost = stats.TotalSpent / float64(stats.TotalChecks)
	}
	return &stats, nil
}

// CountSince returns the number of activities for a sentinel created strictly
// after the given timestamp (ms).
func (s *ActivityStore) CountSince(ctx context.Context, sentinelID string, afterMs int64) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM activities
		WHERE sentinel_id = $1 AND created_at > $2
	`, sentinelID, afterMs).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count activities since: %w", err)
	}
	return n, nil
}

// DeleteBySentinel removes all activities for a sentinel.
func (s *ActivityStore) DeleteBySentinel(ctx context.Context, sentinelID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM activities WHERE sentinel_id = $1`, sentinelID)
	if err != nil {
		return fmt.Errorf("delete activities: %w", err)
	}
	return nil
}

// activityFilter builds the WHERE clause shared by Query and Stats.
func activityFilter(sentinelID, owner string) (string, []any) {
	var clauses []string
	var args []any

	if sentinelID != "" {
		args = append(args, sentinelID)
		clauses = append(clauses, "sentinel_id = $"+strconv.Itoa(len(args)))
	}
	if owner != "" {
		args = append(args, owner)
		clauses = append(clauses, "owner_id = $"+strconv.Itoa(len(args)))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	where := " WHERE " + clauses[0]
	for _, c := range clauses[1:] {
		where += " AND " + c
	}
	return where, args
}

// scanActivity scans one activity row.
func scanActivity(row pgx.Row) (*domain.Activity, error) {
	var a domain.Activity
	var status, method string

	err := row.Scan(
		&a.ID, &a.SentinelID, &a.Owner, &a.Price, &a.Cost, &a.Triggered,
		&status, &method,
		&a.TransactionReceipt, &a.SettlementTimeMs, &a.ErrorMessage, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Status = domain.ActivityStatus(status)
	a.PaymentMethod = domain.PaymentMethod(method)
	return &a, nil
}
