package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/rollcall/internal/domain/model"
)

func TestSnapshotStore_BasicOperations(t *testing.T) {
	ctx := context.Background()
	store := NewSnapshotStore()

	if count := store.Count(ctx); count != 0 {
		t.Errorf("expected count 0, got %d", count)
	}

	got, err := store.Upsert(ctx, model.Identity{DisplayName: "ada", Descriptor: model.Descriptor{1, 0}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != 1 {
		t.Errorf("expected id 1, got %d", got.ID)
	}
	if store.Dimension() != 2 {
		t.Errorf("expected dimension 2, got %d", store.Dimension())
	}

	identity, err := store.Get(ctx, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if identity.DisplayName != "ada" {
		t.Errorf("expected ada, got %s", identity.DisplayName)
	}

	entries := store.AllEntries(ctx)
	if len(entries) != 1 || entries[0].IdentityID != 1 {
		t.Errorf("unexpected entries: %+v", entries)
	}
}

func TestSnapshotStore_IDsNeverReused(t *testing.T) {
	ctx := context.Background()
	store := NewSnapshotStore()

	first, _ := store.Upsert(ctx, model.Identity{Descriptor: model.Descriptor{1, 0}})
	second, _ := store.Upsert(ctx, model.Identity{Descriptor: model.Descriptor{0, 1}})
	if err := store.Remove(ctx, second.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	third, _ := store.Upsert(ctx, model.Identity{Descriptor: model.Descriptor{1, 1}})

	if first.ID != 1 || second.ID != 2 || third.ID != 3 {
		t.Errorf("expected ids 1,2,3, got %d,%d,%d", first.ID, second.ID, third.ID)
	}
}

func TestSnapshotStore_ReplaceDescriptor(t *testing.T) {
	ctx := context.Background()
	store := NewSnapshotStore()

	created, _ := store.Upsert(ctx, model.Identity{Descriptor: model.Descriptor{1, 0}})
	created.Descriptor = model.Descriptor{0, 1}
	if _, err := store.Upsert(ctx, created); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries := store.AllEntries(ctx)
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	if entries[0].Descriptor[1] != 1 {
		t.Errorf("expected replaced descriptor, got %v", entries[0].Descriptor)
	}
}

func TestSnapshotStore_ReplaceOnlyUpdatesEnrolled(t *testing.T) {
	ctx := context.Background()
	store := NewSnapshotStore()

	created, _ := store.Upsert(ctx, model.Identity{DisplayName: "ada", Descriptor: model.Descriptor{1, 0}})
	created.Descriptor = model.Descriptor{0, 1}
	replaced, err := store.Replace(ctx, created)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if replaced.ID != created.ID || store.AllEntries(ctx)[0].Descriptor[1] != 1 {
		t.Errorf("expected descriptor of %d replaced, got %+v", created.ID, store.AllEntries(ctx))
	}

	if err := store.Remove(ctx, created.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.Replace(ctx, created); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for removed identity, got %v", err)
	}
	if store.Count(ctx) != 0 {
		t.Errorf("removed identity came back: %+v", store.List(ctx))
	}

	if _, err := store.Replace(ctx, model.Identity{ID: 42, Descriptor: model.Descriptor{1, 1}}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown id, got %v", err)
	}
	if _, err := store.Replace(ctx, model.Identity{Descriptor: model.Descriptor{1, 1}}); !errors.Is(err, ErrInvalidID) {
		t.Errorf("expected ErrInvalidID for zero id, got %v", err)
	}
	if store.LastIssuedID() != created.ID {
		t.Errorf("expected id counter to stay at %d, got %d", created.ID, store.LastIssuedID())
	}
}

func TestSnapshotStore_Remove(t *testing.T) {
	ctx := context.Background()
	store := NewSnapshotStore()
	created, _ := store.Upsert(ctx, model.Identity{Descriptor: model.Descriptor{1, 0}})

	if err := store.Remove(ctx, created.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.AllEntries(ctx)) != 0 {
		t.Error("removed identity still listed")
	}
	if _, err := store.Get(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := store.Remove(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second remove, got %v", err)
	}
}

func TestSnapshotStore_DimensionMismatch(t *testing.T) {
	ctx := context.Background()

	store := NewSnapshotStore()
	_, _ = store.Upsert(ctx, model.Identity{Descriptor: model.Descriptor{1, 0}})
	if _, err := store.Upsert(ctx, model.Identity{Descriptor: model.Descriptor{1, 0, 0}}); !errors.Is(err, model.ErrInvalidDescriptor) {
		t.Errorf("expected ErrInvalidDescriptor, got %v", err)
	}

	pinned := NewSnapshotStore(WithDimension(3))
	if _, err := pinned.Upsert(ctx, model.Identity{Descriptor: model.Descriptor{1, 0}}); !errors.Is(err, model.ErrInvalidDescriptor) {
		t.Errorf("expected ErrInvalidDescriptor for pinned dimension, got %v", err)
	}
	if _, err := pinned.Upsert(ctx, model.Identity{Descriptor: model.Descriptor{}}); !errors.Is(err, model.ErrInvalidDescriptor) {
		t.Errorf("expected ErrInvalidDescriptor for empty descriptor, got %v", err)
	}
}

func TestSnapshotStore_SnapshotIsolation(t *testing.T) {
	ctx := context.Background()
	store := NewSnapshotStore()
	_, _ = store.Upsert(ctx, model.Identity{Descriptor: model.Descriptor{1, 0}})

	before := store.AllEntries(ctx)
	_, _ = store.Upsert(ctx, model.Identity{Descriptor: model.Descriptor{0, 1}})

	if len(before) != 1 {
		t.Errorf("old snapshot changed under reader: %d entries", len(before))
	}
	if len(store.AllEntries(ctx)) != 2 {
		t.Error("new snapshot not published")
	}
	if store.Snapshot().Version != 2 {
		t.Errorf("expected version 2, got %d", store.Snapshot().Version)
	}
}

func TestSnapshotStore_CallerCannotMutate(t *testing.T) {
	ctx := context.Background()
	store := NewSnapshotStore()
	desc := model.Descriptor{1, 0}
	created, _ := store.Upsert(ctx, model.Identity{Descriptor: desc})
	desc[0] = 99

	got, _ := store.Get(ctx, created.ID)
	got.Descriptor[1] = 99

	again, _ := store.Get(ctx, created.ID)
	if again.Descriptor[0] != 1 || again.Descriptor[1] != 0 {
		t.Errorf("stored descriptor was mutated: %v", again.Descriptor)
	}
}

func TestSnapshotStore_Restore(t *testing.T) {
	ctx := context.Background()
	store := NewSnapshotStore()
	enrolled := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)

	err := store.Restore(ctx, []model.Identity{
		{ID: 4, DisplayName: "b", Descriptor: model.Descriptor{0, 1}, EnrolledAt: enrolled},
		{ID: 2, DisplayName: "a", Descriptor: model.Descriptor{1, 0}, EnrolledAt: enrolled},
	}, 9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	list := store.List(ctx)
	if len(list) != 2 || list[0].ID != 2 || list[1].ID != 4 {
		t.Errorf("unexpected list order: %+v", list)
	}
	next, _ := store.Upsert(ctx, model.Identity{Descriptor: model.Descriptor{1, 1}})
	if next.ID != 10 {
		t.Errorf("expected id 10 after restore, got %d", next.ID)
	}

	bad := NewSnapshotStore()
	err = bad.Restore(ctx, []model.Identity{
		{ID: 1, Descriptor: model.Descriptor{0, 1}},
		{ID: 2, Descriptor: model.Descriptor{0, 1, 0}},
	}, 0)
	if !errors.Is(err, model.ErrInvalidDescriptor) {
		t.Errorf("expected ErrInvalidDescriptor, got %v", err)
	}
	if bad.Count(ctx) != 0 {
		t.Error("failed restore must not publish")
	}
}

func TestSnapshotStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	store := NewSnapshotStore()

	const writers = 8
	const perWriter = 50
	var wg sync.WaitGroup

	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_, err := store.Upsert(ctx, model.Identity{
					DisplayName: fmt.Sprintf("w%d-%d", w, i),
					Descriptor:  model.Descriptor{float64(w), float64(i)},
				})
				if err != nil {
					t.Errorf("upsert failed: %v", err)
				}
			}
		}(w)
	}

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				for _, e := range store.AllEntries(ctx) {
					if e.Descriptor.Len() != 2 {
						t.Errorf("torn descriptor for %d", e.IdentityID)
					}
				}
			}
		}()
	}
	wg.Wait()

	if count := store.Count(ctx); count != writers*perWriter {
		t.Errorf("expected %d identities, got %d", writers*perWriter, count)
	}
	if store.LastIssuedID() != writers*perWriter {
		t.Errorf("expected last id %d, got %d", writers*perWriter, store.LastIssuedID())
	}
}
