// Package dedupe drops replayed frame submissions by remembering recent frame ids.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
)

// Deduper records seen frame ids so a retried upload is processed at most once.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen, false if it was newly recorded.
	// The empty id is never recorded.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord forgets id so the frame can be resubmitted, e.g. after the
	// queue refused it.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

// ringDeduper keeps the most recent ids in insertion order and evicts the oldest
// once the ring is full. A non-positive capacity disables eviction.
type ringDeduper struct {
	mu      sync.Mutex
	seen    map[string]int // id -> slot in ring
	ring    []string
	next    int
	maxSize int
	size    atomic.Int64
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &ringDeduper{
		maxSize: defaultMaxSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]int)
	if d.maxSize > 0 {
		d.ring = make([]string, d.maxSize)
	}
	return d
}

// SeenAndRecord implements Deduper.
func (d *ringDeduper) SeenAndRecord(_ context.Context, id string) bool {
	if id == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return true
	}
	if d.ring == nil {
		d.seen[id] = -1
		d.size.Add(1)
		return false
	}

	if old := d.ring[d.next]; old != "" {
		delete(d.seen, old)
		d.size.Add(-1)
	}
	d.ring[d.next] = id
	d.seen[id] = d.next
	d.next = (d.next + 1) % len(d.ring)
	d.size.Add(1)
	return false
}

// Unrecord implements Deduper.
func (d *ringDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	slot, ok := d.seen[id]
	if !ok {
		return
	}
	delete(d.seen, id)
	if slot >= 0 {
		d.ring[slot] = ""
	}
	d.size.Add(-1)
}

// Size returns the number of remembered ids.
func (d *ringDeduper) Size() int64 {
	return d.size.Load()
}
