// Package worker drains the frame queue and hands each frame to a Processor.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/rollcall/internal/adapters/mq/queue"
	"github.com/okian/rollcall/pkg/logger"
	"github.com/okian/rollcall/pkg/metrics"
)

const (
	metricsUpdateInterval = 5 * time.Second
	workerShutdownTimeout = 5 * time.Second
	poolShutdownTimeout   = 30 * time.Second
)

// Frame is what workers read off the queue.
type Frame = queue.Frame

// Processor runs one recognition tick for a frame.
type Processor interface {
	Process(ctx context.Context, f Frame) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, f Frame) error

// Process implements Processor.
func (fn ProcessorFunc) Process(ctx context.Context, f Frame) error { return fn(ctx, f) } //nolint:gocritic // hugeParam

// Queue defines how workers receive frames.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Frame
}

// Worker processes frames until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker and waits for the frame in flight.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue       Queue
	processor   Processor
	name        string
	onProcessed func()

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, processor Processor, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:       queue,
		processor:   processor,
		name:        "worker",
		onProcessed: func() {},
		shutdown:    make(chan struct{}),
		done:        make(chan struct{}),
		logger:      logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	frames := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			if err := w.processFrame(ctx, frame); err != nil {
				w.logger.Error(ctx, "error processing frame",
					logger.String("frame_id", frame.ID),
					logger.Error(err),
				)
			}
			w.onProcessed()
		}
	}
}

// Shutdown stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// processFrame runs the processor; a panic is turned into an error so one
// bad frame never kills the worker.
func (w *InMemoryWorker) processFrame(ctx context.Context, frame Frame) (err error) { //nolint:gocritic // hugeParam: Frame is passed by value for channel semantics
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordErrorByComponent("worker", "panic")
			err = fmt.Errorf("panic processing frame %s: %v", frame.ID, r)
		}
		if err != nil {
			metrics.RecordWorkerError()
		}
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	if err := w.processor.Process(ctx, frame); err != nil {
		metrics.RecordErrorByComponent("worker", "process_failed")
		return fmt.Errorf("process frame %s: %w", frame.ID, err)
	}
	return nil
}

// Pool manages multiple workers draining one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue

	shutdown chan struct{}
	stopped  atomic.Bool

	processedCount    atomic.Int64
	lastProcessedTime time.Time

	logger logger.Logger
}

// NewPool creates a worker pool. A non-positive count uses one worker per CPU.
func NewPool(workerCount int, queue Queue, processor Processor) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	pool := &Pool{
		workers:           make([]*InMemoryWorker, workerCount),
		queue:             queue,
		shutdown:          make(chan struct{}),
		lastProcessedTime: time.Now(),
		logger:            logger.Get().Named("worker-pool"),
	}

	for i := 0; i < workerCount; i++ {
		pool.workers[i] = NewInMemoryWorker(
			queue,
			processor,
			WithName("worker-"+strconv.Itoa(i)),
			WithOnProcessed(pool.RecordProcessedMessage),
		)
	}

	metrics.UpdateWorkerActiveCount(workerCount)
	metrics.UpdateWorkerMessagesPerSecond(0.0)

	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	go p.startMetricsUpdater(ctx)
}

func (p *Pool) startMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case <-ticker.C:
			p.updateMetrics()
		}
	}
}

func (p *Pool) updateMetrics() {
	now := time.Now()
	if elapsed := now.Sub(p.lastProcessedTime).Seconds(); elapsed > 0 {
		metrics.UpdateWorkerMessagesPerSecond(float64(p.processedCount.Swap(0)) / elapsed)
	}
	p.lastProcessedTime = now
}

// RecordProcessedMessage increments the processed frame count.
func (p *Pool) RecordProcessedMessage() {
	p.processedCount.Add(1)
}

// Shutdown closes the queue, signals every worker and waits for them.
func (p *Pool) Shutdown(ctx context.Context) error {
	if !p.stopped.CompareAndSwap(false, true) {
		return nil
	}
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	close(p.shutdown)

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		wctx, wcancel := context.WithTimeout(shutdownCtx, workerShutdownTimeout)
		if err := w.Shutdown(wctx); err != nil {
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
		wcancel()
	}
	metrics.UpdateWorkerActiveCount(0)
	return nil
}
