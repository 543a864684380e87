package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"sentineld/internal/domain"
	"sentineld/internal/storage"
)

// InsightStore implements storage.InsightStore using PostgreSQL.
// Same trigger-free retention scheme as ActivityStore, cap DefaultInsightCap.
type InsightStore struct {
	pool *Pool
	cap  int
}

// NewInsightStore creates a new InsightStore with the given retention cap.
// A cap <= 0 falls back to DefaultInsightCap.
func NewInsightStore(pool *Pool, cap int) *InsightStore {
	if cap <= 0 {
		cap = storage.DefaultInsightCap
	}
	return &InsightStore{pool: pool, cap: cap}
}

// Compile-time interface check.
var _ storage.InsightStore = (*InsightStore)(nil)

const insightColumns = `
	id, sentinel_id, owner_id, text, confidence_score, sentiment, cost, created_at
`

// Append inserts a new insight and evicts the oldest records beyond the
// retention cap in the same transaction.
func (s *InsightStore) Append(ctx context.Context, i *domain.Insight) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO insights (`+insightColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		i.ID, i.SentinelID, i.Owner, i.Text, i.ConfidenceScore,
		string(i.Sentiment), i.Cost, i.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert insight: %w", err)
	}

	_, err = tx.Exec(ctx, `
		DELETE FROM insights
		WHERE seq IN (
			SELECT seq FROM insights
			ORDER BY seq DESC
			OFFSET $1
		)
	`, s.cap)
	if err != nil {
		return fmt.Errorf("evict insights: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Latest returns the most recent insight for a sentinel.
func (s *InsightStore) Latest(ctx context.Context, sentinelID string) (*domain.Insight, error) {
	query := `
		SELECT ` + insightColumns + ` FROM insights
		WHERE sentinel_id = $1
		ORDER BY seq DESC
		LIMIT 1
	`

	row := s.pool.QueryRow(ctx, query, sentinelID)
	insight, err := scanInsight(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest insight: %w", err)
	}
	return insight, nil
}

// GetBySentinel retrieves all insights for a sentinel, newest first.
func (s *InsightStore) GetBySentinel(ctx context.Context, sentinelID string) ([]*domain.Insight, error) {
	query := `
		SELECT ` + insightColumns + ` FROM insights
		WHERE sentinel_id = $1
		ORDER BY seq DESC
	`

	rows, err := s.pool.Query(ctx, query, sentinelID)
	if err != nil {
		return nil, fmt.Errorf("get insights by sentinel: %w", err)
	}
	defer rows.Close()

	var result []*domain.Insight
	for rows.Next() {
		i, err := scanInsight(rows)
		if err != nil {
			return nil, fmt.Errorf("scan insight: %w", err)
		}
		result = append(result, i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate insights: %w", err)
	}
	return result, nil
}

// DeleteBySentinel removes all insights for a sentinel.
func (s *InsightStore) DeleteBySentinel(ctx context.Context, sentinelID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM insights WHERE sentinel_id = $1`, sentinelID)
	if err != nil {
		return fmt.Errorf("delete insights: %w", err)
	}
	return nil
}

// scanInsight scans one insight row.
func scanInsight(row pgx.Row) (*domain.Insight, error) {
	var i domain.Insight
	var sentiment string

	err := row.Scan(
		&i.ID, &i.SentinelID, &i.Owner, &i.Text, &i.ConfidenceScore,
		&sentiment, &i.Cost, &i.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	i.Sentiment = domain.Sentiment(sentiment)
	return &i, nil
}
