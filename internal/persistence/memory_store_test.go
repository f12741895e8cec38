package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/petrijr/chartflow/pkg/api"
	"github.com/petrijr/chartflow/pkg/query"
)

func TestMemoryStore_CreateLoadUpdate(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rec, err := store.Create(ctx, testSnapshot())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := store.Load(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.State != "sent" || len(got.Steps) != 2 {
		t.Fatalf("unexpected record: %+v", got)
	}

	snap := testSnapshot()
	snap.Steps[0].Complete = true
	updated, err := store.Update(ctx, got, snap, UpdateOptions{
		CompletedMetadata: map[string]any{"actor": "bob"},
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.LockVersion != 1 {
		t.Fatalf("expected lock_version 1, got %d", updated.LockVersion)
	}
	st, _ := updated.StepNamed("sent", "close")
	if !st.Complete || st.CompletedAt == nil || st.CompletedMetadata["actor"] != "bob" {
		t.Fatalf("unexpected step: %+v", st)
	}
}

func TestMemoryStore_Conflict(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rec, err := store.Create(ctx, testSnapshot())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if _, err := store.Update(ctx, rec, testSnapshot(), UpdateOptions{}); err != nil {
		t.Fatalf("first Update failed: %v", err)
	}
	if _, err := store.Update(ctx, rec, testSnapshot(), UpdateOptions{}); !errors.Is(err, api.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestMemoryStore_FindAndDelete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	snap := testSnapshot()
	snap.State = "pending.sending"
	rec, err := store.Create(ctx, snap)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	found, err := store.Find(ctx, []query.Predicate{
		query.StateHasPrefix("pending"),
	})
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(found) != 1 || found[0].ID != rec.ID {
		t.Fatalf("unexpected Find results: %+v", found)
	}

	if err := store.Delete(ctx, rec.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Load(ctx, rec.ID); !errors.Is(err, api.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_LoadCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rec, err := store.Create(ctx, testSnapshot())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	first, _ := store.Load(ctx, rec.ID)
	first.Steps[0].Complete = true

	second, _ := store.Load(ctx, rec.ID)
	if second.Steps[0].Complete {
		t.Fatalf("Load must return independent copies")
	}
}
