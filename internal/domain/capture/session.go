// Package capture drives pose-guided enrollment: one face sample per pose,
// reduced to a single canonical descriptor.
package capture

import (
	"time"

	"github.com/okian/rollcall/internal/domain/model"
)

// Pose names one head orientation requested during enrollment.
type Pose string

// Built-in poses.
const (
	PoseCenter Pose = "center"
	PoseLeft   Pose = "left"
	PoseRight  Pose = "right"
	PoseUp     Pose = "up"
	PoseDown   Pose = "down"
)

// DefaultPoses is the enrollment sequence used when none is configured.
var DefaultPoses = []Pose{PoseCenter, PoseLeft, PoseRight, PoseUp}

// State is the lifecycle state of a session.
type State int

const (
	StateCapturing State = iota
	StateComplete
	StateFinalized
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateCapturing:
		return "capturing"
	case StateComplete:
		return "complete"
	case StateFinalized:
		return "finalized"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Subject carries who is being enrolled. IdentityID is zero for a new identity
// and set when re-enrolling an existing one.
type Subject struct {
	IdentityID  int64
	DisplayName string
	ExternalRef string
}

// Session is a transient enrollment attempt. It is owned by a single caller
// and is not safe for concurrent use.
type Session struct {
	id        string
	subject   Subject
	poses     []Pose
	samples   []model.Descriptor
	state     State
	startedAt time.Time
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Subject returns the enrollment subject.
func (s *Session) Subject() Subject { return s.subject }

// State returns the lifecycle state.
func (s *Session) State() State { return s.state }

// StartedAt returns when the session began.
func (s *Session) StartedAt() time.Time { return s.startedAt }

// Step returns the number of accepted samples.
func (s *Session) Step() int { return len(s.samples) }

// Poses returns a copy of the requested pose sequence.
func (s *Session) Poses() []Pose {
	out := make([]Pose, len(s.poses))
	copy(out, s.poses)
	return out
}

// CurrentPose returns the pose awaiting a sample, or "" once every pose is captured.
func (s *Session) CurrentPose() Pose {
	if len(s.samples) >= len(s.poses) {
		return ""
	}
	return s.poses[len(s.samples)]
}

// Samples returns copies of the accepted samples in pose order.
func (s *Session) Samples() []model.Descriptor {
	out := make([]model.Descriptor, len(s.samples))
	for i, d := range s.samples {
		out[i] = d.Clone()
	}
	return out
}

// Complete reports whether every pose has a sample.
func (s *Session) Complete() bool { return s.state == StateComplete }
