package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/rollcall/internal/adapters/repository"
	"github.com/okian/rollcall/internal/domain/capture"
	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/pkg/logger"
	"github.com/okian/rollcall/pkg/metrics"
)

// Enrollment results reported to metrics.
const (
	enrollFinalized    = "finalized"
	enrollCancelled    = "cancelled"
	enrollExpired      = "expired"
	enrollRejected     = "rejected"
	enrollInconsistent = "inconsistent"
)

// enrollment serializes access to one capture session.
type enrollment struct {
	mu      sync.Mutex
	session *capture.Session
	closed  atomic.Bool
}

// EnrollmentView is the client-facing state of an enrollment session.
type EnrollmentView struct {
	SessionID   string         `json:"session_id"`
	State       string         `json:"state"`
	Step        int            `json:"step"`
	Total       int            `json:"total"`
	CurrentPose capture.Pose   `json:"current_pose,omitempty"`
	Poses       []capture.Pose `json:"poses"`
	DisplayName string         `json:"display_name"`
	IdentityID  int64          `json:"identity_id,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
}

func viewOf(sess *capture.Session) EnrollmentView {
	subj := sess.Subject()
	poses := sess.Poses()
	return EnrollmentView{
		SessionID:   sess.ID(),
		State:       sess.State().String(),
		Step:        sess.Step(),
		Total:       len(poses),
		CurrentPose: sess.CurrentPose(),
		Poses:       poses,
		DisplayName: subj.DisplayName,
		IdentityID:  subj.IdentityID,
		StartedAt:   sess.StartedAt(),
	}
}

// BeginEnrollment opens a session. A non-zero subject.IdentityID re-enrolls an
// existing identity and must be known to the gallery.
func (s *Service) BeginEnrollment(ctx context.Context, subject capture.Subject) (EnrollmentView, error) {
	if err := s.ready(); err != nil {
		return EnrollmentView{}, err
	}
	if subject.IdentityID < 0 {
		return EnrollmentView{}, fmt.Errorf("%w: %d", repository.ErrInvalidID, subject.IdentityID)
	}
	if subject.IdentityID > 0 {
		existing, err := s.gallery.Get(ctx, subject.IdentityID)
		if err != nil {
			return EnrollmentView{}, err
		}
		if subject.DisplayName == "" {
			subject.DisplayName = existing.DisplayName
		}
		if subject.ExternalRef == "" {
			subject.ExternalRef = existing.ExternalRef
		}
	}

	sess := s.controller.BeginSession(subject)
	s.sessions.SetDefault(sess.ID(), &enrollment{session: sess})
	metrics.UpdateActiveSessions(s.sessions.ItemCount())

	s.logger.Info(ctx, "enrollment started",
		logger.String("session_id", sess.ID()),
		logger.String("display_name", subject.DisplayName),
		logger.Int64("identity_id", subject.IdentityID),
	)
	return viewOf(sess), nil
}

func (s *Service) lookup(id string) (*enrollment, error) {
	v, ok := s.sessions.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return v.(*enrollment), nil //nolint:forcetypeassert // only enrollments are stored
}

// SubmitEnrollmentFrame captures the sample for the current pose. On a
// retryable error the returned view still describes the unchanged session.
func (s *Service) SubmitEnrollmentFrame(ctx context.Context, sessionID string, frame model.Frame) (EnrollmentView, error) { //nolint:gocritic // hugeParam
	if err := s.ready(); err != nil {
		return EnrollmentView{}, err
	}
	e, err := s.lookup(sessionID)
	if err != nil {
		return EnrollmentView{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed.Load() {
		return EnrollmentView{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	_, err = s.controller.SubmitFrame(ctx, e.session, frame)
	s.sessions.SetDefault(sessionID, e)
	view := viewOf(e.session)
	if err != nil {
		s.logger.Debug(ctx, "enrollment frame rejected",
			logger.String("session_id", sessionID),
			logger.String("pose", string(view.CurrentPose)),
			logger.Error(err),
		)
		return view, err
	}
	return view, nil
}

// FinalizeEnrollment averages the captured samples and stores the identity.
// ErrInconsistentSamples leaves the session open and rewound to its first pose.
func (s *Service) FinalizeEnrollment(ctx context.Context, sessionID string) (model.Identity, error) {
	if err := s.ready(); err != nil {
		return model.Identity{}, err
	}
	e, err := s.lookup(sessionID)
	if err != nil {
		return model.Identity{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed.Load() {
		return model.Identity{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	desc, err := s.controller.Finalize(e.session)
	if err != nil {
		if errors.Is(err, capture.ErrInconsistentSamples) {
			metrics.RecordEnrollment(enrollInconsistent)
			s.sessions.SetDefault(sessionID, e)
			s.logger.Warn(ctx, "enrollment samples inconsistent",
				logger.String("session_id", sessionID),
				logger.Error(err),
			)
		}
		return model.Identity{}, err
	}

	subj := e.session.Subject()
	identity := model.Identity{
		ID:          subj.IdentityID,
		DisplayName: subj.DisplayName,
		ExternalRef: subj.ExternalRef,
		Descriptor:  desc,
		EnrolledAt:  s.now(),
	}
	store := s.gallery.Upsert
	if subj.IdentityID > 0 {
		// A re-enrolled identity removed mid-session stays removed.
		store = s.gallery.Replace
	}
	stored, err := store(ctx, identity)
	if err != nil {
		s.closeSession(ctx, sessionID, e, enrollRejected)
		s.logger.Warn(ctx, "enrollment rejected",
			logger.String("session_id", sessionID),
			logger.Int64("identity_id", subj.IdentityID),
			logger.Error(err),
		)
		return model.Identity{}, err
	}

	if s.journal != nil {
		if err := s.journal.SaveIdentity(ctx, stored); err != nil {
			metrics.RecordJournalError("save_identity")
			s.logger.Error(ctx, "journal save identity failed",
				logger.Int64("identity_id", stored.ID),
				logger.Error(err),
			)
		}
	}
	s.closeSession(ctx, sessionID, e, enrollFinalized)
	s.logger.Info(ctx, "identity enrolled",
		logger.Int64("identity_id", stored.ID),
		logger.String("display_name", stored.DisplayName),
		logger.Int("dimension", stored.Descriptor.Len()),
	)
	return stored, nil
}

// CancelEnrollment abandons a session without touching the gallery.
func (s *Service) CancelEnrollment(ctx context.Context, sessionID string) error {
	if err := s.ready(); err != nil {
		return err
	}
	e, err := s.lookup(sessionID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed.Load() {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	s.controller.Cancel(e.session)
	s.closeSession(ctx, sessionID, e, enrollCancelled)
	return nil
}

// closeSession must be called with e.mu held.
func (s *Service) closeSession(ctx context.Context, id string, e *enrollment, result string) {
	e.closed.Store(true)
	s.sessions.Delete(id)
	metrics.RecordEnrollment(result)
	metrics.UpdateActiveSessions(s.sessions.ItemCount())
	s.logger.Debug(ctx, "enrollment closed",
		logger.String("session_id", id),
		logger.String("result", result),
	)
}

// onSessionEvicted runs for deletes and expirations. Only sessions that were
// not closed by a caller count as expired.
func (s *Service) onSessionEvicted(id string, v interface{}) {
	e, ok := v.(*enrollment)
	if !ok || !e.closed.CompareAndSwap(false, true) {
		return
	}
	metrics.RecordEnrollment(enrollExpired)
	metrics.UpdateActiveSessions(s.sessions.ItemCount())
	s.logger.Info(context.Background(), "enrollment expired", logger.String("session_id", id))
}
