package clickhouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentineld/internal/domain"
)

func TestPriceSampleStore_AppendAndRecent(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPriceSampleStore(conn)
	ctx := context.Background()

	timestamps := []int64{1000, 3000, 2000, 5000, 4000}
	for _, ts := range timestamps {
		err := store.Append(ctx, &domain.PriceSample{
			SentinelID:  "sent-1",
			TimestampMs: ts,
			Value:       float64(ts) / 1000,
		})
		require.NoError(t, err)
	}

	// One sample for another sentinel must never leak into the window.
	err := store.Append(ctx, &domain.PriceSample{SentinelID: "sent-2", TimestampMs: 9000, Value: 9.0})
	require.NoError(t, err)

	got, err := store.Recent(ctx, "sent-1", 3)
	require.NoError(t, err)

	// The three newest, oldest first.
	require.Len(t, got, 3)
	assert.Equal(t, int64(3000), got[0].TimestampMs)
	assert.Equal(t, int64(4000), got[1].TimestampMs)
	assert.Equal(t, int64(5000), got[2].TimestampMs)
	assert.Equal(t, 5.0, got[2].Value)
	assert.Equal(t, "sent-1", got[0].SentinelID)
}

func TestPriceSampleStore_RecentEmpty(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPriceSampleStore(conn)
	got, err := store.Recent(context.Background(), "missing", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPriceSampleStore_DeleteBySentinel(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPriceSampleStore(conn)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, &domain.PriceSample{SentinelID: "del-1", TimestampMs: 1000, Value: 1.0}))
	require.NoError(t, store.Append(ctx, &domain.PriceSample{SentinelID: "keep-1", TimestampMs: 1000, Value: 2.0}))

	require.NoError(t, store.DeleteBySentinel(ctx, "del-1"))

	got, err := store.Recent(ctx, "del-1", 10)
	require.NoError(t, err)
	assert.Empty(t, got)

	kept, err := store.Recent(ctx, "keep-1", 10)
	require.NoError(t, err)
	assert.Len(t, kept, 1)
}
