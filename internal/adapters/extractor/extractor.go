// Package extractor provides model.Extractor implementations: descriptors
// computed by the client, a remote embedding service, and an instrumented
// timeout wrapper.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/pkg/metrics"
)

// Sentinel kinds for extractor errors.
var (
	ErrImageUnsupported = errors.New("frame carries an image but no server-side extractor is configured")
	ErrTimeout          = errors.New("descriptor extraction timed out")
	ErrRemote           = errors.New("remote extractor failed")
)

// Precomputed returns the descriptors a browser-side model already attached to
// the frame.
type Precomputed struct{}

// Extract implements model.Extractor.
func (Precomputed) Extract(_ context.Context, frame model.Frame) ([]model.Face, error) {
	if len(frame.Faces) == 0 && len(frame.Image) > 0 {
		return nil, ErrImageUnsupported
	}
	faces := make([]model.Face, len(frame.Faces))
	for i, f := range frame.Faces {
		faces[i] = model.Face{Descriptor: f.Descriptor.Clone(), Region: f.Region}
	}
	return faces, nil
}

// Chain uses precomputed descriptors when the frame has them and falls back
// to server for image-only frames.
type Chain struct {
	Server model.Extractor
}

// Extract implements model.Extractor.
func (c Chain) Extract(ctx context.Context, frame model.Frame) ([]model.Face, error) {
	if len(frame.Faces) > 0 || c.Server == nil {
		return Precomputed{}.Extract(ctx, frame)
	}
	return c.Server.Extract(ctx, frame)
}

// Timed bounds each extraction by a deadline and records latency metrics.
type Timed struct {
	next    model.Extractor
	timeout time.Duration
}

// WithTimeout wraps next. A non-positive timeout only records metrics.
func WithTimeout(next model.Extractor, timeout time.Duration) *Timed {
	return &Timed{next: next, timeout: timeout}
}

// Extract implements model.Extractor.
func (t *Timed) Extract(ctx context.Context, frame model.Frame) ([]model.Face, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	start := time.Now()
	faces, err := t.next.Extract(ctx, frame)
	metrics.RecordExtractionLatency(float64(time.Since(start).Microseconds()) / 1000)

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			metrics.RecordErrorByComponent("extractor", "timeout")
			return nil, fmt.Errorf("%w after %s: %w", ErrTimeout, t.timeout, err)
		}
		metrics.RecordErrorByComponent("extractor", "extract_failed")
		return nil, err
	}
	metrics.RecordFacesDetected(len(faces))
	return faces, nil
}
