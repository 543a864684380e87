package clickhouse

import (
	"context"
	"fmt"

	"sentineld/internal/domain"
	"sentineld/internal/storage"
)

// PriceSampleStore implements storage.PriceSampleStore using ClickHouse.
// Samples are append-heavy and read in small recent windows, which fits a
// MergeTree ordered by (sentinel_id, timestamp_ms).
type PriceSampleStore struct {
	conn *Conn
}

// NewPriceSampleStore creates a new PriceSampleStore.
func NewPriceSampleStore(conn *Conn) *PriceSampleStore {
	return &PriceSampleStore{conn: conn}
}

// Compile-time interface check.
var _ storage.PriceSampleStore = (*PriceSampleStore)(nil)

// Append records one observed price point.
func (s *PriceSampleStore) Append(ctx context.Context, p *domain.PriceSample) error {
	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO price_samples (sentinel_id, timestamp_ms, value)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	if err := batch.Append(p.SentinelID, uint64(p.TimestampMs), p.Value); err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// Recent returns up to limit samples for a sentinel, oldest first, ending at
// the newest sample.
func (s *PriceSampleStore) Recent(ctx context.Context, sentinelID string, limit int) ([]*domain.PriceSample, error) {
	query := `
		SELECT sentinel_id, timestamp_ms, value
		FROM (
			SELECT sentinel_id, timestamp_ms, value
			FROM price_samples
			WHERE sentinel_id = ?
			ORDER BY timestamp_ms DESC
			LIMIT ?
		)
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, sentinelID, uint64(limit))
	if err != nil {
		return nil, fmt.Errorf("query recent samples: %w", err)
	}
	defer rows.Close()

	var samples []*domain.PriceSample
	for rows.Next() {
		var p domain.PriceSample
		var timestampMs uint64

		if err := rows.Scan(&p.SentinelID, &timestampMs, &p.Value); err != nil {
			return nil, fmt.Errorf("scan price sample row: %w", err)
		}

		p.TimestampMs = int64(timestampMs)
		samples = append(samples, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price sample rows: %w", err)
	}
	return samples, nil
}

// DeleteBySentinel removes all samples for a sentinel.
func (s *PriceSampleStore) DeleteBySentinel(ctx context.Context, sentinelID string) error {
	query := `DELETE FROM price_samples WHERE sentinel_id = ?`

	if err := s.conn.Exec(ctx, query, sentinelID); err != nil {
		return fmt.Errorf("delete price samples: %w", err)
	}
	return nil
}
