package memory

import (
	"context"
	"errors"
	"testing"

	"sentineld/internal/domain"
	"sentineld/internal/storage"
)

func TestPriceSampleStore_AppendAndRecent(t *testing.T) {
	store := NewPriceSampleStore()
	ctx := context.Background()

	for _, ts := range []int64{1000, 3000, 2000, 5000, 4000} {
		err := store.Append(ctx, &domain.PriceSample{
			SentinelID:  "s-1",
			TimestampMs: ts,
			Value:       float64(ts) / 1000,
		})
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	if err := store.Append(ctx, &domain.PriceSample{SentinelID: "s-2", TimestampMs: 9000, Value: 9.0}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	got, err := store.Recent(ctx, "s-1", 3)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(got))
	}
	// The three newest, oldest first.
	if got[0].TimestampMs != 3000 || got[1].TimestampMs != 4000 || got[2].TimestampMs != 5000 {
		t.Errorf("unexpected window: %d %d %d", got[0].TimestampMs, got[1].TimestampMs, got[2].TimestampMs)
	}
}

func TestPriceSampleStore_AppendInvalid(t *testing.T) {
	store := NewPriceSampleStore()
	err := store.Append(context.Background(), &domain.PriceSample{TimestampMs: 1000})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for missing sentinel id, got %v", err)
	}
}

func TestPriceSampleStore_DeleteBySentinel(t *testing.T) {
	store := NewPriceSampleStore()
	ctx := context.Background()

	store.Append(ctx, &domain.PriceSample{SentinelID: "del-1", TimestampMs: 1000, Value: 1.0})
	store.Append(ctx, &domain.PriceSample{SentinelID: "keep-1", TimestampMs: 1000, Value: 2.0})

	if err := store.DeleteBySentinel(ctx, "del-1"); err != nil {
		t.Fatalf("DeleteBySentinel failed: %v", err)
	}

	got, _ := store.Recent(ctx, "del-1", 10)
	if len(got) != 0 {
		t.Errorf("expected no samples after delete, got %d", len(got))
	}
	kept, _ := store.Recent(ctx, "keep-1", 10)
	if len(kept) != 1 {
		t.Errorf("expected the other sentinel untouched, got %d", len(kept))
	}
}
