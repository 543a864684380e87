package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"sentineld/internal/domain"
	"sentineld/internal/storage"
)

func TestProfileStore_InsertAndGet(t *testing.T) {
	store := NewProfileStore()
	ctx := context.Background()

	now := time.Now().UnixMilli()
	profile := &domain.Profile{ID: "p-1", DisplayName: "Ada", Email: "ada@example.test", CreatedAt: now, UpdatedAt: now}

	if err := store.Insert(ctx, profile); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByID(ctx, "p-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.DisplayName != "Ada" || got.Email != "ada@example.test" {
		t.Errorf("unexpected profile: %+v", got)
	}

	// The store hands out copies.
	got.DisplayName = "changed"
	again, _ := store.GetByID(ctx, "p-1")
	if again.DisplayName != "Ada" {
		t.Error("mutating a returned profile must not affect the store")
	}

	if err := store.Insert(ctx, profile); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
	if err := store.Insert(ctx, &domain.Profile{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty id, got %v", err)
	}
}

func TestProfileStore_Delete(t *testing.T) {
	store := NewProfileStore()
	ctx := context.Background()

	store.Insert(ctx, &domain.Profile{ID: "p-del"})

	if err := store.Delete(ctx, "p-del"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.GetByID(ctx, "p-del"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := store.Delete(ctx, "p-del"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound deleting twice, got %v", err)
	}
}
