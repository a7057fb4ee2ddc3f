package recognition

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/pkg/logger"
	"github.com/okian/rollcall/pkg/metrics"
)

// DefaultInterval is the tick period when none is configured.
const DefaultInterval = 500 * time.Millisecond

// ErrSourceClosed is returned by a FrameSource that has no more frames.
var ErrSourceClosed = errors.New("frame source closed")

// FrameSource yields the next frame from a camera. Next may block until a
// frame is available or ctx ends.
type FrameSource interface {
	Next(ctx context.Context) (model.Frame, error)
}

// Submitter accepts frames for asynchronous recognition. It returns false
// when the frame was refused.
type Submitter interface {
	Enqueue(ctx context.Context, f model.Frame) bool
}

// LoopOption applies a configuration option to the Loop.
type LoopOption func(*Loop)

// WithInterval sets the tick period.
func WithInterval(d time.Duration) LoopOption {
	return func(l *Loop) {
		if d > 0 {
			l.interval = d
		}
	}
}

// WithLoopName names the loop in logs.
func WithLoopName(name string) LoopOption {
	return func(l *Loop) {
		if name != "" {
			l.name = name
		}
	}
}

// Loop pulls one frame per tick from a source and submits it. A tick that
// finds the queue full drops its frame; the next tick carries a newer one.
type Loop struct {
	source    FrameSource
	submitter Submitter
	interval  time.Duration
	name      string
	logger    logger.Logger
}

// NewLoop creates a periodic loop.
func NewLoop(source FrameSource, submitter Submitter, opts ...LoopOption) *Loop {
	l := &Loop{
		source:    source,
		submitter: submitter,
		interval:  DefaultInterval,
		name:      "source",
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = logger.Get().Named("loop").With(logger.String("camera", l.name))
	return l
}

// Run ticks until ctx ends or the source closes. It returns nil in both cases.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.logger.Info(ctx, "recognition loop started", logger.Duration("interval", l.interval))
	defer l.logger.Info(ctx, "recognition loop stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := l.tick(ctx); err != nil {
				if errors.Is(err, ErrSourceClosed) || ctx.Err() != nil {
					return nil
				}
				l.logger.Warn(ctx, "tick failed", logger.Error(err))
			}
		}
	}
}

func (l *Loop) tick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordErrorByComponent("loop", "panic")
			err = fmt.Errorf("panic in tick: %v", r)
		}
	}()

	frame, err := l.source.Next(ctx)
	if err != nil {
		if !errors.Is(err, ErrSourceClosed) {
			metrics.RecordErrorByComponent("loop", "source_failed")
		}
		return err
	}
	if frame.Source == "" {
		frame.Source = l.name
	}
	if frame.CapturedAt.IsZero() {
		frame.CapturedAt = time.Now()
	}
	if !l.submitter.Enqueue(ctx, frame) {
		metrics.RecordFrameDropped()
		l.logger.Debug(ctx, "frame dropped, queue full", logger.String("frame_id", frame.ID))
	}
	return nil
}
