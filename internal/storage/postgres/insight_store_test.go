package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentineld/internal/domain"
	"sentineld/internal/storage"
)

func appendTestInsight(t *testing.T, ctx context.Context, store *InsightStore, sentinelID, id string, createdAt int64) {
	t.Helper()
	err := store.Append(ctx, &domain.Insight{
		ID:              id,
		SentinelID:      sentinelID,
		Owner:           "owner-" + sentinelID,
		Text:            "insight " + id,
		ConfidenceScore: 60,
		Sentiment:       domain.SentimentNeutral,
		Cost:            0.0005,
		CreatedAt:       createdAt,
	})
	require.NoError(t, err)
}

func TestInsightStore_AppendAndLatest(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	sentinelID := createTestSentinel(t, ctx, pool, "ins-latest")
	store := NewInsightStore(pool, 0)

	base := time.Now().UnixMilli()
	appendTestInsight(t, ctx, store, sentinelID, "ins-1", base)
	appendTestInsight(t, ctx, store, sentinelID, "ins-2", base+1)

	got, err := store.Latest(ctx, sentinelID)
	require.NoError(t, err)

	assert.Equal(t, "ins-2", got.ID)
	assert.Equal(t, "insight ins-2", got.Text)
	assert.Equal(t, 60, got.ConfidenceScore)
	assert.Equal(t, domain.SentimentNeutral, got.Sentiment)
	assert.InDelta(t, 0.0005, got.Cost, 1e-9)
	assert.Equal(t, base+1, got.CreatedAt)
}

func TestInsightStore_LatestNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewInsightStore(pool, 0)
	_, err := store.Latest(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestInsightStore_AppendDuplicate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	sentinelID := createTestSentinel(t, ctx, pool, "ins-dup")
	store := NewInsightStore(pool, 0)

	base := time.Now().UnixMilli()
	appendTestInsight(t, ctx, store, sentinelID, "ins-dup-1", base)

	err := store.Append(ctx, &domain.Insight{
		ID:         "ins-dup-1",
		SentinelID: sentinelID,
		Owner:      "owner-ins-dup",
		Sentiment:  domain.SentimentBullish,
		CreatedAt:  base,
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestInsightStore_EvictsOldestPastCap(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	sentinelID := createTestSentinel(t, ctx, pool, "ins-evict")
	store := NewInsightStore(pool, 2)

	base := time.Now().UnixMilli()
	for i := 0; i < 4; i++ {
		appendTestInsight(t, ctx, store, sentinelID, fmt.Sprintf("ev-%d", i), base+int64(i))
	}

	got, err := store.GetBySentinel(ctx, sentinelID)
	require.NoError(t, err)

	require.Len(t, got, 2)
	// Newest first, the two oldest are gone.
	assert.Equal(t, "ev-3", got[0].ID)
	assert.Equal(t, "ev-2", got[1].ID)
}

func TestInsightStore_GetBySentinelEmpty(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewInsightStore(pool, 0)
	got, err := store.GetBySentinel(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestInsightStore_DeleteBySentinel(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	keepID := createTestSentinel(t, ctx, pool, "ins-keep")
	dropID := createTestSentinel(t, ctx, pool, "ins-drop")
	store := NewInsightStore(pool, 0)

	base := time.Now().UnixMilli()
	appendTestInsight(t, ctx, store, keepID, "keep-1", base)
	appendTestInsight(t, ctx, store, dropID, "drop-1", base+1)

	require.NoError(t, store.DeleteBySentinel(ctx, dropID))

	_, err := store.Latest(ctx, dropID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	kept, err := store.Latest(ctx, keepID)
	require.NoError(t, err)
	assert.Equal(t, "keep-1", kept.ID)
}
