// Package ledger records attendance and suppresses repeat marks for the same
// identity inside a cooldown window.
package ledger

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/rollcall/internal/domain/model"
)

// Status tells whether TryMark appended a record.
type Status int

const (
	StatusMarked Status = iota
	StatusDeduplicated
)

func (s Status) String() string {
	if s == StatusDeduplicated {
		return "deduplicated"
	}
	return "marked"
}

// Mark is a request to record attendance for one identity.
type Mark struct {
	IdentityID int64
	Timestamp  time.Time // capture time of the frame
	Confidence float64
	Location   string
}

// Result is the outcome of TryMark.
type Result struct {
	Status       Status
	Record       model.AttendanceRecord // set when Status is StatusMarked
	LastMarkedAt time.Time              // the mark that suppressed this one when deduplicated
}

// Ledger is the attendance store.
type Ledger interface {
	// TryMark appends a record unless the identity was marked less than the
	// cooldown before m.Timestamp. The check and the append are atomic per identity.
	TryMark(ctx context.Context, m Mark) (Result, error)
	// Append records a manual mark. It skips the cooldown check.
	Append(ctx context.Context, m Mark) (model.AttendanceRecord, error)

	ListAll(ctx context.Context) []model.AttendanceRecord
	ListFor(ctx context.Context, identityID int64) []model.AttendanceRecord
	ClearAll(ctx context.Context) int
	ClearFor(ctx context.Context, identityID int64) int
	Restore(ctx context.Context, records []model.AttendanceRecord) error

	Count() int64
	Cooldown() time.Duration
}

// shard owns the dedup state and records of the identities hashed to it.
type shard struct {
	mu         sync.Mutex
	lastMarked map[int64]time.Time
	records    map[int64][]model.AttendanceRecord
}

func newShard() *shard {
	return &shard{
		lastMarked: make(map[int64]time.Time),
		records:    make(map[int64][]model.AttendanceRecord),
	}
}

// inMemoryLedger shards identities across independent locks so marks for
// different people never contend on the same mutex.
type inMemoryLedger struct {
	shards     []*shard
	shardCount int
	cooldown   time.Duration
	seq        atomic.Uint64
	count      atomic.Int64
	newID      func() string
}

// New creates an in-memory ledger.
func New(opts ...Option) Ledger {
	l := &inMemoryLedger{
		shardCount: DefaultShardCount,
		cooldown:   DefaultCooldown,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.shards = make([]*shard, l.shardCount)
	for i := range l.shards {
		l.shards[i] = newShard()
	}
	return l
}

func (l *inMemoryLedger) shardFor(identityID int64) *shard {
	return l.shards[uint64(identityID)%uint64(len(l.shards))]
}

func validate(m Mark) error {
	switch {
	case m.IdentityID <= 0:
		return fmt.Errorf("%w: identity id %d", ErrInvalidMark, m.IdentityID)
	case m.Timestamp.IsZero():
		return fmt.Errorf("%w: missing timestamp", ErrInvalidMark)
	case math.IsNaN(m.Confidence) || m.Confidence < 0 || m.Confidence > 1:
		return fmt.Errorf("%w: confidence %v outside [0,1]", ErrInvalidMark, m.Confidence)
	}
	return nil
}

// TryMark atomically checks the cooldown window and records the mark if it is open.
// A frame captured before the last mark is treated as inside the window.
func (l *inMemoryLedger) TryMark(_ context.Context, m Mark) (Result, error) {
	if err := validate(m); err != nil {
		return Result{}, err
	}
	sh := l.shardFor(m.IdentityID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if last, ok := sh.lastMarked[m.IdentityID]; ok && m.Timestamp.Sub(last) < l.cooldown {
		return Result{Status: StatusDeduplicated, LastMarkedAt: last}, nil
	}
	rec := l.appendLocked(sh, m, false)
	return Result{Status: StatusMarked, Record: rec}, nil
}

// Append records an administrative mark regardless of the cooldown.
func (l *inMemoryLedger) Append(_ context.Context, m Mark) (model.AttendanceRecord, error) {
	if err := validate(m); err != nil {
		return model.AttendanceRecord{}, err
	}
	sh := l.shardFor(m.IdentityID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return l.appendLocked(sh, m, true), nil
}

// appendLocked must be called with sh.mu held.
func (l *inMemoryLedger) appendLocked(sh *shard, m Mark, manual bool) model.AttendanceRecord {
	rec := model.AttendanceRecord{
		ID:         l.newID(),
		Seq:        l.seq.Add(1),
		IdentityID: m.IdentityID,
		Timestamp:  m.Timestamp,
		Confidence: m.Confidence,
		Location:   m.Location,
		Manual:     manual,
	}
	sh.records[m.IdentityID] = append(sh.records[m.IdentityID], rec)
	if last, ok := sh.lastMarked[m.IdentityID]; !ok || m.Timestamp.After(last) {
		sh.lastMarked[m.IdentityID] = m.Timestamp
	}
	l.count.Add(1)
	return rec
}

// ListAll returns every record ordered by append sequence.
func (l *inMemoryLedger) ListAll(_ context.Context) []model.AttendanceRecord {
	out := make([]model.AttendanceRecord, 0, l.count.Load())
	for _, sh := range l.shards {
		sh.mu.Lock()
		for _, recs := range sh.records {
			out = append(out, recs...)
		}
		sh.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// ListFor returns the records of one identity in append order.
func (l *inMemoryLedger) ListFor(_ context.Context, identityID int64) []model.AttendanceRecord {
	sh := l.shardFor(identityID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	recs := sh.records[identityID]
	out := make([]model.AttendanceRecord, len(recs))
	copy(out, recs)
	return out
}

// ClearAll removes every record and resets every cooldown window.
func (l *inMemoryLedger) ClearAll(_ context.Context) int {
	removed := 0
	for _, sh := range l.shards {
		sh.mu.Lock()
		for _, recs := range sh.records {
			removed += len(recs)
		}
		sh.records = make(map[int64][]model.AttendanceRecord)
		sh.lastMarked = make(map[int64]time.Time)
		sh.mu.Unlock()
	}
	l.count.Add(-int64(removed))
	return removed
}

// ClearFor removes the records of one identity and resets its cooldown window.
func (l *inMemoryLedger) ClearFor(_ context.Context, identityID int64) int {
	sh := l.shardFor(identityID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	removed := len(sh.records[identityID])
	delete(sh.records, identityID)
	delete(sh.lastMarked, identityID)
	l.count.Add(-int64(removed))
	return removed
}

// Restore loads previously journaled records. The cooldown window of each
// identity resumes from its latest restored timestamp.
func (l *inMemoryLedger) Restore(_ context.Context, records []model.AttendanceRecord) error {
	for _, rec := range records {
		if rec.IdentityID <= 0 || rec.ID == "" {
			return fmt.Errorf("%w: record %q for identity %d", ErrInvalidMark, rec.ID, rec.IdentityID)
		}
	}
	for _, rec := range records {
		if rec.Seq == 0 {
			rec.Seq = l.seq.Add(1)
		}
		for {
			cur := l.seq.Load()
			if rec.Seq <= cur || l.seq.CompareAndSwap(cur, rec.Seq) {
				break
			}
		}
		sh := l.shardFor(rec.IdentityID)
		sh.mu.Lock()
		sh.records[rec.IdentityID] = append(sh.records[rec.IdentityID], rec)
		if last, ok := sh.lastMarked[rec.IdentityID]; !ok || rec.Timestamp.After(last) {
			sh.lastMarked[rec.IdentityID] = rec.Timestamp
		}
		sh.mu.Unlock()
		l.count.Add(1)
	}
	return nil
}

// Count returns the number of stored records.
func (l *inMemoryLedger) Count() int64 { return l.count.Load() }

// Cooldown returns the dedup window.
func (l *inMemoryLedger) Cooldown() time.Duration { return l.cooldown }
