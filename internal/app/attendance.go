package service

import (
	"context"
	"errors"
	"time"

	"github.com/okian/rollcall/internal/adapters/repository"
	"github.com/okian/rollcall/internal/domain/ledger"
	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/internal/domain/recognition"
	"github.com/okian/rollcall/pkg/logger"
	"github.com/okian/rollcall/pkg/metrics"
)

// Recognize runs one recognition tick synchronously.
func (s *Service) Recognize(ctx context.Context, frame model.Frame) (recognition.Report, error) { //nolint:gocritic // hugeParam
	if err := s.ready(); err != nil {
		return recognition.Report{}, err
	}
	return s.recognizer.Process(ctx, frame)
}

// EnqueueFrame queues a frame for the worker pool. A frame whose id was seen
// before is dropped and reported as a duplicate. A full queue returns
// ErrBackpressure and forgets the id so the client may retry.
func (s *Service) EnqueueFrame(ctx context.Context, frame model.Frame) (bool, error) { //nolint:gocritic // hugeParam
	if err := s.ready(); err != nil {
		return false, err
	}
	if s.deduper.SeenAndRecord(ctx, frame.ID) {
		s.logger.Debug(ctx, "duplicate frame dropped", logger.String("frame_id", frame.ID))
		return true, nil
	}
	if !s.frameQueue.Enqueue(ctx, frame) {
		s.deduper.Unrecord(ctx, frame.ID)
		return false, ErrBackpressure
	}
	return false, nil
}

// ListIdentities returns every enrolled identity ordered by id.
func (s *Service) ListIdentities(ctx context.Context) ([]model.Identity, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.gallery.List(ctx), nil
}

// GetIdentity returns one identity or repository.ErrNotFound.
func (s *Service) GetIdentity(ctx context.Context, id int64) (model.Identity, error) {
	if err := s.ready(); err != nil {
		return model.Identity{}, err
	}
	return s.gallery.Get(ctx, id)
}

// RemoveIdentity deletes an identity from the gallery. Its attendance history is kept.
func (s *Service) RemoveIdentity(ctx context.Context, id int64) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.gallery.Remove(ctx, id); err != nil {
		return err
	}
	if s.journal != nil {
		if err := s.journal.DeleteIdentity(ctx, id); err != nil {
			metrics.RecordJournalError("delete_identity")
			s.logger.Error(ctx, "journal delete identity failed",
				logger.Int64("identity_id", id),
				logger.Error(err),
			)
		}
	}
	s.logger.Info(ctx, "identity removed", logger.Int64("identity_id", id))
	return nil
}

// ListAttendance returns every record in append order.
func (s *Service) ListAttendance(ctx context.Context) ([]model.AttendanceRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.ledger.ListAll(ctx), nil
}

// ListAttendanceFor returns the records of one identity in append order.
func (s *Service) ListAttendanceFor(ctx context.Context, identityID int64) ([]model.AttendanceRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.ledger.ListFor(ctx, identityID), nil
}

// MarkManual records attendance for a known identity without the cooldown
// check. A zero time means now and an empty location the default one.
func (s *Service) MarkManual(ctx context.Context, identityID int64, location string, at time.Time) (model.AttendanceRecord, error) {
	if err := s.ready(); err != nil {
		return model.AttendanceRecord{}, err
	}
	if _, err := s.gallery.Get(ctx, identityID); err != nil {
		return model.AttendanceRecord{}, err
	}
	if at.IsZero() {
		at = s.now()
	}
	if location == "" {
		location = s.defaultLocation
	}
	rec, err := s.ledger.Append(ctx, ledger.Mark{
		IdentityID: identityID,
		Timestamp:  at,
		Confidence: 1,
		Location:   location,
	})
	if err != nil {
		return model.AttendanceRecord{}, err
	}
	metrics.RecordAttendanceManual()
	s.logger.Info(ctx, "manual attendance recorded",
		logger.Int64("identity_id", identityID),
		logger.String("location", location),
	)
	s.onMarked(ctx, rec)
	return rec, nil
}

// ClearAttendance drops every record and returns how many were removed.
func (s *Service) ClearAttendance(ctx context.Context) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	n := s.ledger.ClearAll(ctx)
	if s.journal != nil {
		if _, err := s.journal.ClearRecords(ctx); err != nil {
			metrics.RecordJournalError("clear_records")
			s.logger.Error(ctx, "journal clear failed", logger.Error(err))
		}
	}
	metrics.UpdateLedgerRecords(s.ledger.Count())
	s.logger.Info(ctx, "attendance cleared", logger.Int("records", n))
	return n, nil
}

// ClearAttendanceFor drops the records of one identity.
func (s *Service) ClearAttendanceFor(ctx context.Context, identityID int64) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	n := s.ledger.ClearFor(ctx, identityID)
	if s.journal != nil {
		if _, err := s.journal.ClearRecordsFor(ctx, identityID); err != nil {
			metrics.RecordJournalError("clear_records")
			s.logger.Error(ctx, "journal clear failed",
				logger.Int64("identity_id", identityID),
				logger.Error(err),
			)
		}
	}
	metrics.UpdateLedgerRecords(s.ledger.Count())
	s.logger.Info(ctx, "attendance cleared",
		logger.Int64("identity_id", identityID),
		logger.Int("records", n),
	)
	return n, nil
}

// onMarked writes a new record through to the journal and announces it.
// Failures are logged and counted; the in-memory record stands.
func (s *Service) onMarked(ctx context.Context, rec model.AttendanceRecord) { //nolint:gocritic // hugeParam
	metrics.UpdateLedgerRecords(s.ledger.Count())

	if s.journal != nil {
		if err := s.journal.AppendRecord(ctx, rec); err != nil {
			metrics.RecordJournalError("append_record")
			s.logger.Error(ctx, "journal append failed",
				logger.String("record_id", rec.ID),
				logger.Error(err),
			)
		}
	}

	if s.publisher == nil {
		return
	}
	who, err := s.gallery.Get(ctx, rec.IdentityID)
	if errors.Is(err, repository.ErrNotFound) {
		who = model.Identity{ID: rec.IdentityID}
	}
	pctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := s.publisher.PublishMarked(pctx, rec, who); err != nil {
		metrics.RecordPublish("error")
		s.logger.Warn(ctx, "attendance publish failed",
			logger.String("record_id", rec.ID),
			logger.Error(err),
		)
		return
	}
	metrics.RecordPublish("ok")
}
