package capture

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/okian/rollcall/internal/domain/matching"
	"github.com/okian/rollcall/internal/domain/model"
)

// Option applies a configuration option to the Controller.
type Option func(*Controller)

// WithPoses sets the pose sequence. Empty sequences are ignored.
func WithPoses(poses []Pose) Option {
	return func(c *Controller) {
		if len(poses) > 0 {
			c.poses = append([]Pose(nil), poses...)
		}
	}
}

// WithConsistencyCheck rejects finalization when any sample lies farther than
// threshold from the mean under metric. A non-positive threshold disables it.
func WithConsistencyCheck(threshold float64, metric matching.Metric) Option {
	return func(c *Controller) {
		c.consistency = threshold
		if metric != nil {
			c.metric = metric
		}
	}
}

// WithClock overrides the time source used to stamp sessions.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithDimension checks each sample against the length reported by dim, such
// as the gallery's pinned dimension. A non-positive length is not checked.
func WithDimension(dim func() int) Option {
	return func(c *Controller) {
		c.dimension = dim
	}
}

// Controller runs the enrollment state machine. It holds no per-session
// state and may be shared; each Session must be driven by one caller at a time.
type Controller struct {
	extractor   model.Extractor
	poses       []Pose
	consistency float64
	metric      matching.Metric
	dimension   func() int
	now         func() time.Time
}

// NewController creates a controller that extracts descriptors with extractor.
func NewController(extractor model.Extractor, opts ...Option) *Controller {
	c := &Controller{
		extractor: extractor,
		poses:     append([]Pose(nil), DefaultPoses...),
		metric:    matching.Euclidean,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Poses returns the configured pose sequence.
func (c *Controller) Poses() []Pose {
	return append([]Pose(nil), c.poses...)
}

// BeginSession opens a session positioned at the first pose. It has no side effects.
func (c *Controller) BeginSession(subject Subject) *Session {
	return &Session{
		id:        uuid.NewString(),
		subject:   subject,
		poses:     append([]Pose(nil), c.poses...),
		samples:   make([]model.Descriptor, 0, len(c.poses)),
		state:     StateCapturing,
		startedAt: c.now(),
	}
}

// SubmitFrame extracts the face for the current pose and advances the session.
// It returns true once every pose has a sample.
//
// A frame with no face returns model.ErrNoFaceDetected and one with several
// faces returns model.ErrMultipleFaces; in both cases the session is unchanged
// and the caller may retry the same pose. The same holds for a descriptor of
// the wrong length.
func (c *Controller) SubmitFrame(ctx context.Context, s *Session, frame model.Frame) (bool, error) {
	if s.state != StateCapturing {
		return s.state == StateComplete, fmt.Errorf("%w: session is %s", ErrSessionClosed, s.state)
	}

	pose := s.CurrentPose()
	faces, err := c.extractor.Extract(ctx, frame)
	if err != nil {
		return false, fmt.Errorf("extract pose %s: %w", pose, err)
	}
	switch len(faces) {
	case 0:
		return false, fmt.Errorf("pose %s: %w", pose, model.ErrNoFaceDetected)
	case 1:
	default:
		return false, fmt.Errorf("pose %s: %d faces: %w", pose, len(faces), model.ErrMultipleFaces)
	}

	d := faces[0].Descriptor
	if err := d.Validate(); err != nil {
		return false, fmt.Errorf("pose %s: %w", pose, err)
	}
	if c.dimension != nil {
		if want := c.dimension(); want > 0 && d.Len() != want {
			return false, fmt.Errorf("%w: pose %s has length %d, gallery uses %d",
				model.ErrInvalidDescriptor, pose, d.Len(), want)
		}
	}
	if len(s.samples) > 0 && d.Len() != s.samples[0].Len() {
		return false, fmt.Errorf("%w: pose %s has length %d, earlier samples %d",
			model.ErrInvalidDescriptor, pose, d.Len(), s.samples[0].Len())
	}

	s.samples = append(s.samples, d.Clone())
	if len(s.samples) == len(s.poses) {
		s.state = StateComplete
	}
	return s.state == StateComplete, nil
}

// Finalize reduces the samples of a complete session to their coordinate-wise
// mean. An incomplete session returns ErrSessionIncomplete.
//
// With a consistency check configured, a sample too far from the mean returns
// ErrInconsistentSamples and rewinds the session to its first pose.
func (c *Controller) Finalize(s *Session) (model.Descriptor, error) {
	switch s.state {
	case StateCapturing:
		return nil, fmt.Errorf("%w: %d of %d poses captured", ErrSessionIncomplete, len(s.samples), len(s.poses))
	case StateFinalized, StateCancelled:
		return nil, fmt.Errorf("%w: session is %s", ErrSessionClosed, s.state)
	}

	mean, err := model.Mean(s.samples)
	if err != nil {
		return nil, err
	}
	if c.consistency > 0 {
		for i, sample := range s.samples {
			if d := c.metric.Distance(sample, mean); d > c.consistency {
				s.samples = s.samples[:0]
				s.state = StateCapturing
				return nil, fmt.Errorf("%w: pose %s is %.4f from the mean (limit %.4f)",
					ErrInconsistentSamples, s.poses[i], d, c.consistency)
			}
		}
	}
	s.state = StateFinalized
	return mean, nil
}

// Cancel abandons the session. Cancelling a finalized session is a no-op.
func (c *Controller) Cancel(s *Session) {
	if s.state == StateFinalized {
		return
	}
	s.state = StateCancelled
	s.samples = nil
}

// ParsePoses converts configured pose names into a sequence.
func ParsePoses(names []string) ([]Pose, error) {
	poses := make([]Pose, 0, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" {
			continue
		}
		poses = append(poses, Pose(n))
	}
	if len(poses) == 0 {
		return nil, ErrNoPoses
	}
	return poses, nil
}
