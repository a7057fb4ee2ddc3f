package matching

import (
	"fmt"
	"math"

	"github.com/okian/rollcall/internal/domain/model"
)

// DefaultThreshold is the distance cutoff for Euclidean face-api embeddings.
const DefaultThreshold = 0.6

// Status classifies a match attempt.
type Status int

const (
	StatusUnrecognized Status = iota
	StatusRecognized
	StatusAmbiguous
)

func (s Status) String() string {
	switch s {
	case StatusRecognized:
		return "recognized"
	case StatusAmbiguous:
		return "ambiguous"
	default:
		return "unrecognized"
	}
}

// Result is the outcome of one match.
type Result struct {
	Status     Status
	IdentityID int64   // set when recognized
	Distance   float64 // best distance; +Inf for an empty gallery
	Confidence float64 // 1/(1+Distance); 0 for an empty gallery
	Tied       []int64 // identities tied at the best distance when ambiguous
}

// Recognized reports whether the probe resolved to a single identity.
func (r Result) Recognized() bool { return r.Status == StatusRecognized }

// Option applies a configuration option to the Matcher.
type Option func(*Matcher)

// WithMetric selects the distance metric.
func WithMetric(m Metric) Option {
	return func(mt *Matcher) {
		if m != nil {
			mt.metric = m
		}
	}
}

// WithThreshold sets the acceptance distance. Non-positive values are ignored.
func WithThreshold(threshold float64) Option {
	return func(mt *Matcher) {
		if threshold > 0 {
			mt.threshold = threshold
		}
	}
}

// Matcher performs exact nearest-neighbour search over a gallery snapshot.
// It is stateless and safe for concurrent use.
type Matcher struct {
	metric    Metric
	threshold float64
}

// NewMatcher creates a matcher using Euclidean distance and DefaultThreshold.
func NewMatcher(opts ...Option) *Matcher {
	m := &Matcher{
		metric:    Euclidean,
		threshold: DefaultThreshold,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Metric returns the configured metric.
func (m *Matcher) Metric() Metric { return m.metric }

// Threshold returns the configured acceptance distance.
func (m *Matcher) Threshold() float64 { return m.threshold }

// MinConfidence is the confidence at the threshold; accepted matches score above it.
func (m *Matcher) MinConfidence() float64 { return Confidence(m.threshold) }

// Match resolves probe against entries with the configured threshold.
func (m *Matcher) Match(probe model.Descriptor, entries []model.Entry) (Result, error) {
	return m.MatchWithThreshold(probe, entries, m.threshold)
}

// MatchWithThreshold resolves probe against entries.
//
// An empty gallery yields StatusUnrecognized with zero confidence. A best
// distance at or above threshold yields StatusUnrecognized. Two or more entries
// tied exactly at a best distance below threshold yield StatusAmbiguous together
// with ErrAmbiguousMatch.
func (m *Matcher) MatchWithThreshold(probe model.Descriptor, entries []model.Entry, threshold float64) (Result, error) {
	if threshold <= 0 || math.IsNaN(threshold) {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidThreshold, threshold)
	}
	if err := probe.Validate(); err != nil {
		return Result{}, fmt.Errorf("probe: %w", err)
	}
	if len(entries) == 0 {
		return Result{Status: StatusUnrecognized, Distance: math.Inf(1)}, nil
	}

	best := math.Inf(1)
	var tied []int64
	for _, e := range entries {
		if e.Descriptor.Len() != probe.Len() {
			return Result{}, fmt.Errorf("%w: probe length %d, identity %d has %d",
				model.ErrInvalidDescriptor, probe.Len(), e.IdentityID, e.Descriptor.Len())
		}
		d := m.metric.Distance(probe, e.Descriptor)
		switch {
		case d < best:
			best = d
			tied = append(tied[:0], e.IdentityID)
		case d == best:
			tied = append(tied, e.IdentityID)
		}
	}

	res := Result{
		Status:     StatusUnrecognized,
		Distance:   best,
		Confidence: Confidence(best),
	}
	if best >= threshold {
		return res, nil
	}
	if len(tied) > 1 {
		res.Status = StatusAmbiguous
		res.Tied = tied
		return res, fmt.Errorf("%w: %d identities at distance %.6f", ErrAmbiguousMatch, len(tied), best)
	}
	res.Status = StatusRecognized
	res.IdentityID = tied[0]
	return res, nil
}
