package sqlstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okian/rollcall/internal/domain/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(DriverSQLite, filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("postgres", "host=nowhere")
	require.ErrorIs(t, err, ErrUnsupportedDriver)
}

func TestIdentities(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	enrolled := time.Date(2026, 1, 5, 8, 30, 0, 0, time.UTC)

	require.NoError(t, s.SaveIdentity(ctx, model.Identity{
		ID: 1, DisplayName: "Ada", ExternalRef: "emp-1",
		Descriptor: model.Descriptor{0.1, 0.2, 0.3}, EnrolledAt: enrolled,
	}))
	require.NoError(t, s.SaveIdentity(ctx, model.Identity{ID: 2, DisplayName: "Grace", Descriptor: model.Descriptor{1, 0, 0}}))
	require.NoError(t, s.SaveIdentity(ctx, model.Identity{ID: 3, DisplayName: "Linus", Descriptor: model.Descriptor{0, 1, 0}}))

	t.Run("round trip", func(t *testing.T) {
		ids, maxID, err := s.LoadIdentities(ctx)
		require.NoError(t, err)
		require.Len(t, ids, 3)
		assert.Equal(t, int64(3), maxID)
		assert.Equal(t, "Ada", ids[0].DisplayName)
		assert.Equal(t, "emp-1", ids[0].ExternalRef)
		assert.Equal(t, model.Descriptor{0.1, 0.2, 0.3}, ids[0].Descriptor)
		assert.True(t, ids[0].EnrolledAt.Equal(enrolled))
	})

	t.Run("replace keeps one row", func(t *testing.T) {
		require.NoError(t, s.SaveIdentity(ctx, model.Identity{ID: 2, DisplayName: "Grace H.", Descriptor: model.Descriptor{0.9, 0.1, 0}}))
		ids, _, err := s.LoadIdentities(ctx)
		require.NoError(t, err)
		require.Len(t, ids, 3)
		assert.Equal(t, "Grace H.", ids[1].DisplayName)
		assert.Equal(t, model.Descriptor{0.9, 0.1, 0}, ids[1].Descriptor)
	})

	t.Run("delete hides the row but keeps the high-water mark", func(t *testing.T) {
		require.NoError(t, s.DeleteIdentity(ctx, 3))
		require.NoError(t, s.DeleteIdentity(ctx, 99))
		ids, maxID, err := s.LoadIdentities(ctx)
		require.NoError(t, err)
		assert.Len(t, ids, 2)
		assert.Equal(t, int64(3), maxID)
	})

	t.Run("saving a deleted identity does not restore it", func(t *testing.T) {
		require.NoError(t, s.SaveIdentity(ctx, model.Identity{ID: 3, DisplayName: "Linus T.", Descriptor: model.Descriptor{0, 0, 1}}))
		ids, maxID, err := s.LoadIdentities(ctx)
		require.NoError(t, err)
		require.Len(t, ids, 2)
		for _, id := range ids {
			assert.NotEqual(t, int64(3), id.ID)
		}
		assert.Equal(t, int64(3), maxID)
	})
}

func TestRecords(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	base := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

	recs := []model.AttendanceRecord{
		{ID: "r3", Seq: 3, IdentityID: 1, Timestamp: base.Add(10 * time.Second), Confidence: 0.9, Location: "door-1"},
		{ID: "r1", Seq: 1, IdentityID: 1, Timestamp: base, Confidence: 0.95, Location: "door-1"},
		{ID: "r2", Seq: 2, IdentityID: 2, Timestamp: base.Add(time.Second), Confidence: 1, Location: "desk", Manual: true},
	}
	for _, r := range recs {
		require.NoError(t, s.AppendRecord(ctx, r))
	}

	t.Run("loaded in sequence order", func(t *testing.T) {
		got, err := s.LoadRecords(ctx)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, []string{"r1", "r2", "r3"}, []string{got[0].ID, got[1].ID, got[2].ID})
		assert.True(t, got[1].Manual)
		assert.Equal(t, "desk", got[1].Location)
		assert.True(t, got[2].Timestamp.Equal(base.Add(10*time.Second)))
	})

	t.Run("duplicate id is rejected", func(t *testing.T) {
		assert.Error(t, s.AppendRecord(ctx, recs[0]))
	})

	t.Run("clear one identity", func(t *testing.T) {
		n, err := s.ClearRecordsFor(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
		got, err := s.LoadRecords(ctx)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, int64(2), got[0].IdentityID)
	})

	t.Run("clear all", func(t *testing.T) {
		n, err := s.ClearRecords(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		got, err := s.LoadRecords(ctx)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestClosedStore(t *testing.T) {
	ctx := context.Background()
	s, err := Open(DriverSQLite, filepath.Join(t.TempDir(), "closed.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.AppendRecord(ctx, model.AttendanceRecord{ID: "x"}), ErrClosed)
	_, _, err = s.LoadIdentities(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}
