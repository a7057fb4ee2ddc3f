package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/pkg/metrics"
)

// Copy-on-write gallery.
//
// Writers serialize on mu, build a fresh Snapshot and publish it through an
// atomic pointer. Readers only load the pointer, so they never block and never
// observe a partially written descriptor.

// Snapshot is an immutable view of the gallery.
type Snapshot struct {
	Version   uint64
	Dimension int
	Entries   []model.Entry // sorted by identity id
	byID      map[int64]model.Identity
}

// SnapshotStore implements Gallery.
type SnapshotStore struct {
	mu       sync.Mutex
	snapshot atomic.Pointer[Snapshot]
	lastID   atomic.Int64
	fixedDim int
}

// NewSnapshotStore creates an empty gallery.
func NewSnapshotStore(opts ...Option) *SnapshotStore {
	s := &SnapshotStore{}
	for _, opt := range opts {
		opt(s)
	}
	s.snapshot.Store(&Snapshot{Dimension: s.fixedDim, byID: map[int64]model.Identity{}})
	metrics.UpdateGallerySize(0)
	return s
}

// Snapshot returns the current published snapshot.
func (s *SnapshotStore) Snapshot() *Snapshot {
	return s.snapshot.Load()
}

// Dimension returns the descriptor length, or 0 while it is still undecided.
func (s *SnapshotStore) Dimension() int {
	return s.snapshot.Load().Dimension
}

// Upsert implements Gallery.Upsert.
func (s *SnapshotStore) Upsert(ctx context.Context, identity model.Identity) (model.Identity, error) {
	if identity.ID < 0 {
		return model.Identity{}, fmt.Errorf("%w: %d", ErrInvalidID, identity.ID)
	}
	return s.write(identity, false)
}

// Replace implements Gallery.Replace.
func (s *SnapshotStore) Replace(ctx context.Context, identity model.Identity) (model.Identity, error) {
	if identity.ID <= 0 {
		return model.Identity{}, fmt.Errorf("%w: %d", ErrInvalidID, identity.ID)
	}
	return s.write(identity, true)
}

// write stores identity in a new snapshot. With mustExist the id has to be
// present in the current snapshot, checked under the same lock as the write.
func (s *SnapshotStore) write(identity model.Identity, mustExist bool) (model.Identity, error) {
	start := time.Now()
	defer func() {
		metrics.RecordGalleryUpdateLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	if err := identity.Descriptor.Validate(); err != nil {
		metrics.RecordErrorByComponent("gallery", "invalid_descriptor")
		return model.Identity{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.snapshot.Load()
	if mustExist {
		if _, ok := cur.byID[identity.ID]; !ok {
			return model.Identity{}, fmt.Errorf("%w: %d", ErrNotFound, identity.ID)
		}
	}
	dim := cur.Dimension
	if dim == 0 {
		dim = identity.Descriptor.Len()
	}
	if identity.Descriptor.Len() != dim {
		metrics.RecordErrorByComponent("gallery", "dimension_mismatch")
		return model.Identity{}, fmt.Errorf("%w: length %d, gallery uses %d",
			model.ErrInvalidDescriptor, identity.Descriptor.Len(), dim)
	}

	if identity.ID == 0 {
		identity.ID = s.lastID.Add(1)
	} else {
		s.advanceIDs(identity.ID)
	}
	identity.Descriptor = identity.Descriptor.Clone()

	next := make(map[int64]model.Identity, len(cur.byID)+1)
	for id, v := range cur.byID {
		next[id] = v
	}
	next[identity.ID] = identity
	s.publish(cur, dim, next)
	return identity, nil
}

// Remove implements Gallery.Remove.
func (s *SnapshotStore) Remove(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.snapshot.Load()
	if _, ok := cur.byID[id]; !ok {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	next := make(map[int64]model.Identity, len(cur.byID))
	for k, v := range cur.byID {
		if k != id {
			next[k] = v
		}
	}
	s.publish(cur, cur.Dimension, next)
	return nil
}

// Get implements Gallery.Get.
func (s *SnapshotStore) Get(ctx context.Context, id int64) (model.Identity, error) {
	identity, ok := s.snapshot.Load().byID[id]
	if !ok {
		return model.Identity{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	identity.Descriptor = identity.Descriptor.Clone()
	return identity, nil
}

// List implements Gallery.List.
func (s *SnapshotStore) List(ctx context.Context) []model.Identity {
	snap := s.snapshot.Load()
	out := make([]model.Identity, 0, len(snap.Entries))
	for _, e := range snap.Entries {
		identity := snap.byID[e.IdentityID]
		identity.Descriptor = identity.Descriptor.Clone()
		out = append(out, identity)
	}
	return out
}

// AllEntries implements Gallery.AllEntries.
func (s *SnapshotStore) AllEntries(ctx context.Context) []model.Entry {
	return s.snapshot.Load().Entries
}

// Count implements Gallery.Count.
func (s *SnapshotStore) Count(ctx context.Context) int {
	return len(s.snapshot.Load().Entries)
}

// Restore implements Gallery.Restore. It replaces the whole gallery.
func (s *SnapshotStore) Restore(ctx context.Context, identities []model.Identity, lastIssued int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.snapshot.Load()
	dim := s.fixedDim
	next := make(map[int64]model.Identity, len(identities))
	for _, identity := range identities {
		if identity.ID <= 0 {
			return fmt.Errorf("%w: %d", ErrInvalidID, identity.ID)
		}
		if err := identity.Descriptor.Validate(); err != nil {
			return fmt.Errorf("identity %d: %w", identity.ID, err)
		}
		if dim == 0 {
			dim = identity.Descriptor.Len()
		}
		if identity.Descriptor.Len() != dim {
			return fmt.Errorf("%w: identity %d has length %d, gallery uses %d",
				model.ErrInvalidDescriptor, identity.ID, identity.Descriptor.Len(), dim)
		}
		identity.Descriptor = identity.Descriptor.Clone()
		next[identity.ID] = identity
		s.advanceIDs(identity.ID)
	}
	s.advanceIDs(lastIssued)
	s.publish(cur, dim, next)
	return nil
}

// LastIssuedID returns the highest id handed out so far.
func (s *SnapshotStore) LastIssuedID() int64 {
	return s.lastID.Load()
}

// advanceIDs moves the id counter to at least id.
func (s *SnapshotStore) advanceIDs(id int64) {
	for {
		cur := s.lastID.Load()
		if id <= cur || s.lastID.CompareAndSwap(cur, id) {
			return
		}
	}
}

// publish builds and stores a new snapshot. Must be called with s.mu held.
func (s *SnapshotStore) publish(prev *Snapshot, dim int, byID map[int64]model.Identity) {
	start := time.Now()
	entries := make([]model.Entry, 0, len(byID))
	for _, identity := range byID {
		entries = append(entries, identity.Entry())
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].IdentityID < entries[j].IdentityID })

	s.snapshot.Store(&Snapshot{
		Version:   prev.Version + 1,
		Dimension: dim,
		Entries:   entries,
		byID:      byID,
	})

	metrics.RecordGallerySnapshotRebuild(float64(time.Since(start).Microseconds()) / 1000)
	metrics.UpdateGallerySize(len(entries))
}
