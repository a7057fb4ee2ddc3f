// Package recognition turns frames into attendance: extract, match every face
// against one gallery snapshot, then ask the ledger to mark each recognized identity.
package recognition

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/okian/rollcall/internal/domain/ledger"
	"github.com/okian/rollcall/internal/domain/matching"
	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/pkg/logger"
	"github.com/okian/rollcall/pkg/metrics"
)

// DefaultLocation is recorded when a frame names no source.
const DefaultLocation = "webcam"

// Outcome is the result of recognizing one face, or of a frame with none.
type Outcome int

const (
	OutcomeNoFace Outcome = iota
	OutcomeUnrecognized
	OutcomeAmbiguous
	OutcomeRecognized
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoFace:
		return "no_face"
	case OutcomeUnrecognized:
		return "unrecognized"
	case OutcomeAmbiguous:
		return "ambiguous"
	case OutcomeRecognized:
		return "recognized"
	default:
		return "unknown"
	}
}

// MarshalText renders the outcome as its name.
func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// Gallery is the read side of the gallery store.
type Gallery interface {
	AllEntries(ctx context.Context) []model.Entry
}

// Matcher resolves a probe against gallery entries.
type Matcher interface {
	Match(probe model.Descriptor, entries []model.Entry) (matching.Result, error)
}

// Marker records attendance.
type Marker interface {
	TryMark(ctx context.Context, m ledger.Mark) (ledger.Result, error)
}

// MarkHook is called after a record is appended.
type MarkHook func(ctx context.Context, rec model.AttendanceRecord)

// FaceResult describes one face in a frame.
type FaceResult struct {
	Region       model.Region
	Outcome      Outcome
	IdentityID   int64
	Tied         []int64 // identities sharing the best distance when ambiguous
	Distance     float64
	Confidence   float64
	Marked       bool
	Deduplicated bool
	Record       *model.AttendanceRecord
	Err          error
}

// Report summarizes one processed frame.
type Report struct {
	FrameID    string
	Source     string
	CapturedAt time.Time
	Faces      []FaceResult
}

// Outcome returns OutcomeNoFace for an empty frame, else the best outcome among faces.
func (r Report) Outcome() Outcome {
	best := OutcomeNoFace
	for _, f := range r.Faces {
		if f.Outcome > best {
			best = f.Outcome
		}
	}
	return best
}

// Marked returns the records appended for this frame.
func (r Report) Marked() []model.AttendanceRecord {
	var out []model.AttendanceRecord
	for _, f := range r.Faces {
		if f.Record != nil {
			out = append(out, *f.Record)
		}
	}
	return out
}

// Option applies a configuration option to the Recognizer.
type Option func(*Recognizer)

// WithMarkHook registers a callback for appended records.
func WithMarkHook(h MarkHook) Option {
	return func(r *Recognizer) {
		if h != nil {
			r.hooks = append(r.hooks, h)
		}
	}
}

// WithDefaultLocation sets the location used for frames without a source.
func WithDefaultLocation(loc string) Option {
	return func(r *Recognizer) {
		if loc != "" {
			r.defaultLocation = loc
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Recognizer) {
		if l != nil {
			r.logger = l
		}
	}
}

// Recognizer runs one recognition tick per frame. It keeps no state between
// ticks and is safe for concurrent use.
type Recognizer struct {
	extractor       model.Extractor
	gallery         Gallery
	matcher         Matcher
	marker          Marker
	hooks           []MarkHook
	defaultLocation string
	logger          logger.Logger
}

// NewRecognizer wires a recognizer.
func NewRecognizer(extractor model.Extractor, gallery Gallery, matcher Matcher, marker Marker, opts ...Option) *Recognizer {
	r := &Recognizer{
		extractor:       extractor,
		gallery:         gallery,
		matcher:         matcher,
		marker:          marker,
		defaultLocation: DefaultLocation,
		logger:          logger.Get().Named("recognizer"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Process extracts every face in frame and resolves each independently.
// A failure on one face is recorded on its FaceResult and never stops the
// others. The returned error is non-nil when extraction failed or when a
// descriptor could not be compared with the gallery (model.ErrInvalidDescriptor);
// in the latter case the report is still complete.
func (r *Recognizer) Process(ctx context.Context, frame model.Frame) (Report, error) {
	start := time.Now()
	defer func() {
		metrics.RecordTickLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()
	metrics.RecordFrameProcessed()

	if frame.CapturedAt.IsZero() {
		frame.CapturedAt = time.Now()
	}
	report := Report{FrameID: frame.ID, Source: frame.Source, CapturedAt: frame.CapturedAt}

	faces, err := r.extractor.Extract(ctx, frame)
	if err != nil {
		metrics.RecordErrorByComponent("recognition", "extract_failed")
		return report, fmt.Errorf("extract frame %q: %w", frame.ID, err)
	}
	if len(faces) == 0 {
		metrics.RecordMatchOutcome(OutcomeNoFace.String())
		return report, nil
	}

	location := frame.Source
	if location == "" {
		location = r.defaultLocation
	}

	entries := r.gallery.AllEntries(ctx)
	report.Faces = make([]FaceResult, len(faces))
	var invalid []error
	for i, face := range faces {
		report.Faces[i] = r.processFace(ctx, face, entries, frame.CapturedAt, location)
		if err := report.Faces[i].Err; errors.Is(err, model.ErrInvalidDescriptor) {
			invalid = append(invalid, fmt.Errorf("face %d: %w", i, err))
		}
	}
	if len(invalid) > 0 {
		return report, fmt.Errorf("frame %q: %w", frame.ID, errors.Join(invalid...))
	}
	return report, nil
}

func (r *Recognizer) processFace(ctx context.Context, face model.Face, entries []model.Entry, at time.Time, location string) FaceResult {
	fr := FaceResult{Region: face.Region, Outcome: OutcomeUnrecognized}

	res, err := r.matcher.Match(face.Descriptor, entries)
	fr.Distance = res.Distance
	fr.Confidence = res.Confidence
	switch {
	case errors.Is(err, matching.ErrAmbiguousMatch):
		fr.Outcome = OutcomeAmbiguous
		fr.Tied = res.Tied
		fr.Err = err
		metrics.RecordMatchOutcome(OutcomeAmbiguous.String())
		r.logger.Warn(ctx, "ambiguous match rejected",
			logger.Any("tied", res.Tied),
			logger.Float64("distance", res.Distance),
		)
		return fr
	case err != nil:
		fr.Err = err
		metrics.RecordMatchOutcome("error")
		metrics.RecordErrorByComponent("recognition", "match_failed")
		r.logger.Error(ctx, "match failed", logger.Error(err))
		return fr
	}
	if !math.IsInf(res.Distance, 0) {
		metrics.RecordMatchDistance(res.Distance)
	}
	if !res.Recognized() {
		metrics.RecordMatchOutcome(OutcomeUnrecognized.String())
		return fr
	}

	fr.Outcome = OutcomeRecognized
	fr.IdentityID = res.IdentityID
	metrics.RecordMatchOutcome(OutcomeRecognized.String())

	mark, err := r.marker.TryMark(ctx, ledger.Mark{
		IdentityID: res.IdentityID,
		Timestamp:  at,
		Confidence: res.Confidence,
		Location:   location,
	})
	if err != nil {
		fr.Err = err
		metrics.RecordErrorByComponent("recognition", "mark_failed")
		r.logger.Error(ctx, "attendance mark failed",
			logger.Int64("identity_id", res.IdentityID),
			logger.Error(err),
		)
		return fr
	}
	if mark.Status == ledger.StatusDeduplicated {
		fr.Deduplicated = true
		metrics.RecordAttendanceDeduplicated()
		return fr
	}

	rec := mark.Record
	fr.Marked = true
	fr.Record = &rec
	metrics.RecordAttendanceMarked()
	r.logger.Info(ctx, "attendance marked",
		logger.Int64("identity_id", rec.IdentityID),
		logger.Float64("confidence", rec.Confidence),
		logger.String("location", rec.Location),
	)
	for _, h := range r.hooks {
		h(ctx, rec)
	}
	return fr
}
