// Package service wires the gallery, matcher, ledger, enrollment controller
// and recognition pipeline behind the operations used by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/okian/rollcall/internal/adapters/extractor"
	framequeue "github.com/okian/rollcall/internal/adapters/mq/queue"
	workerpool "github.com/okian/rollcall/internal/adapters/mq/worker"
	"github.com/okian/rollcall/internal/adapters/notify"
	"github.com/okian/rollcall/internal/adapters/repository"
	"github.com/okian/rollcall/internal/domain/capture"
	"github.com/okian/rollcall/internal/domain/dedupe"
	"github.com/okian/rollcall/internal/domain/ledger"
	"github.com/okian/rollcall/internal/domain/matching"
	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/internal/domain/recognition"
	"github.com/okian/rollcall/pkg/logger"
	"github.com/okian/rollcall/pkg/metrics"
)

const (
	defaultQueueSize      = 1024
	defaultDedupeSize     = 50000
	defaultSessionTTL     = 10 * time.Minute
	defaultExtractTimeout = 2 * time.Second
	publishTimeout        = 2 * time.Second
	stopTimeout           = 10 * time.Second
)

// Journal is the durable side of the gallery and the ledger.
type Journal interface {
	SaveIdentity(ctx context.Context, id model.Identity) error
	DeleteIdentity(ctx context.Context, id int64) error
	LoadIdentities(ctx context.Context) ([]model.Identity, int64, error)
	AppendRecord(ctx context.Context, rec model.AttendanceRecord) error
	ClearRecords(ctx context.Context) (int64, error)
	ClearRecordsFor(ctx context.Context, identityID int64) (int64, error)
	LoadRecords(ctx context.Context) ([]model.AttendanceRecord, error)
	Close() error
}

// frameProcessor adapts the recognizer to workerpool.Processor.
type frameProcessor struct {
	recognizer *recognition.Recognizer
	logger     logger.Logger
}

func (p *frameProcessor) Process(ctx context.Context, f workerpool.Frame) error { //nolint:gocritic // hugeParam
	report, err := p.recognizer.Process(ctx, f)
	switch {
	case errors.Is(err, model.ErrInvalidDescriptor):
		// The other faces of the frame were still resolved.
		p.logger.Warn(ctx, "frame has unusable descriptors",
			logger.String("frame_id", report.FrameID),
			logger.Error(err),
		)
	case err != nil:
		return err
	}
	p.logger.Debug(ctx, "frame processed",
		logger.String("frame_id", report.FrameID),
		logger.String("outcome", report.Outcome().String()),
		logger.Int("faces", len(report.Faces)),
		logger.Int("marked", len(report.Marked())),
	)
	return nil
}

// submitterFunc lets the service feed recognition loops.
type submitterFunc func(ctx context.Context, f model.Frame) bool

func (fn submitterFunc) Enqueue(ctx context.Context, f model.Frame) bool { return fn(ctx, f) } //nolint:gocritic // hugeParam

// Service owns every component of the attendance pipeline.
type Service struct {
	mu sync.RWMutex

	// Core components
	gallery    *repository.SnapshotStore
	matcher    *matching.Matcher
	ledger     ledger.Ledger
	controller *capture.Controller
	recognizer *recognition.Recognizer
	deduper    dedupe.Deduper
	frameQueue *framequeue.InMemoryQueue
	workerPool *workerpool.Pool
	sessions   *cache.Cache

	// Side effects
	journal   Journal
	publisher notify.Publisher
	server    model.Extractor

	// Configuration
	workerCount     int
	queueSize       int
	dedupeSize      int
	metricName      string
	threshold       float64
	descriptorDim   int
	cooldown        time.Duration
	ledgerShards    int
	poses           []string
	sessionTTL      time.Duration
	consistency     float64
	extractTimeout  time.Duration
	extractorURL    string
	defaultLocation string
	now             func() time.Time

	// State
	started   atomic.Bool
	runCtx    context.Context
	cancelRun context.CancelFunc
	sources   sync.WaitGroup
	nSources  atomic.Int32

	logger logger.Logger
}

// New constructs a Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:     runtime.NumCPU(),
		queueSize:       defaultQueueSize,
		dedupeSize:      defaultDedupeSize,
		metricName:      matching.MetricEuclidean,
		threshold:       matching.DefaultThreshold,
		cooldown:        ledger.DefaultCooldown,
		ledgerShards:    ledger.DefaultShardCount,
		sessionTTL:      defaultSessionTTL,
		extractTimeout:  defaultExtractTimeout,
		defaultLocation: recognition.DefaultLocation,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds the components, restores the journal and starts the workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started.Load() {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.logger.Info(ctx, "starting attendance service...")

	metric, err := matching.MetricByName(s.metricName)
	if err != nil {
		return err
	}
	poses := capture.DefaultPoses
	if len(s.poses) > 0 {
		if poses, err = capture.ParsePoses(s.poses); err != nil {
			return err
		}
	}

	server := s.server
	if server == nil && s.extractorURL != "" {
		server = extractor.NewRemote(s.extractorURL)
	}
	ex := extractor.WithTimeout(extractor.Chain{Server: server}, s.extractTimeout)

	s.gallery = repository.NewSnapshotStore(repository.WithDimension(s.descriptorDim))
	s.matcher = matching.NewMatcher(matching.WithMetric(metric), matching.WithThreshold(s.threshold))
	s.ledger = ledger.New(ledger.WithCooldown(s.cooldown), ledger.WithShardCount(s.ledgerShards))
	s.controller = capture.NewController(ex,
		capture.WithPoses(poses),
		capture.WithConsistencyCheck(s.consistency, metric),
		capture.WithDimension(s.gallery.Dimension),
		capture.WithClock(s.now),
	)
	s.recognizer = recognition.NewRecognizer(ex, s.gallery, s.matcher, s.ledger,
		recognition.WithDefaultLocation(s.defaultLocation),
		recognition.WithMarkHook(s.onMarked),
	)

	if err := s.restore(ctx); err != nil {
		return err
	}

	s.sessions = cache.New(s.sessionTTL, janitorInterval(s.sessionTTL))
	s.sessions.OnEvicted(s.onSessionEvicted)
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.frameQueue = framequeue.NewInMemoryQueue(framequeue.WithCapacity(s.queueSize))

	s.runCtx, s.cancelRun = context.WithCancel(context.WithoutCancel(ctx))
	s.workerPool = workerpool.NewPool(s.workerCount, s.frameQueue,
		&frameProcessor{recognizer: s.recognizer, logger: s.logger.Named("processor")})
	s.workerPool.Start(s.runCtx)

	s.started.Store(true)
	s.logger.Info(ctx, "attendance service started",
		logger.Int("workers", s.workerPool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.String("metric", metric.Name()),
		logger.Float64("threshold", s.threshold),
		logger.Duration("cooldown", s.cooldown),
		logger.Int("identities", s.gallery.Count(ctx)),
		logger.Int64("records", s.ledger.Count()),
	)
	return nil
}

func janitorInterval(ttl time.Duration) time.Duration {
	if ttl < time.Minute {
		return ttl
	}
	return time.Minute
}

// restore reloads the gallery and the ledger from the journal.
func (s *Service) restore(ctx context.Context) error {
	if s.journal == nil {
		return nil
	}
	identities, lastIssued, err := s.journal.LoadIdentities(ctx)
	if err != nil {
		return fmt.Errorf("restore identities: %w", err)
	}
	if err := s.gallery.Restore(ctx, identities, lastIssued); err != nil {
		return fmt.Errorf("restore identities: %w", err)
	}
	records, err := s.journal.LoadRecords(ctx)
	if err != nil {
		return fmt.Errorf("restore attendance: %w", err)
	}
	if err := s.ledger.Restore(ctx, records); err != nil {
		return fmt.Errorf("restore attendance: %w", err)
	}
	metrics.UpdateLedgerRecords(s.ledger.Count())
	s.logger.Info(ctx, "journal restored",
		logger.Int("identities", len(identities)),
		logger.Int("records", len(records)),
	)
	return nil
}

// Stop stops the sources and workers and closes the journal and publisher.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started.Swap(false) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	s.logger.Info(ctx, "stopping attendance service...")

	s.cancelRun()
	s.sources.Wait()

	if err := s.workerPool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool shutdown failed", logger.Error(err))
	}
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			s.logger.Warn(ctx, "publisher close failed", logger.Error(err))
		}
	}
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			s.logger.Warn(ctx, "journal close failed", logger.Error(err))
		}
	}
	s.sessions.Flush()
	metrics.UpdateActiveSessions(0)

	s.logger.Info(ctx, "attendance service stopped")
}

func (s *Service) ready() error {
	if !s.started.Load() {
		return ErrNotStarted
	}
	return nil
}

// AddSource starts a loop that pulls frames from src every interval and
// queues them for recognition. It runs until Stop or until src closes.
func (s *Service) AddSource(name string, src recognition.FrameSource, interval time.Duration) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ready(); err != nil {
		return err
	}

	loop := recognition.NewLoop(src, submitterFunc(s.submit),
		recognition.WithLoopName(name),
		recognition.WithInterval(interval),
	)
	s.sources.Add(1)
	s.nSources.Add(1)
	go func() {
		defer s.sources.Done()
		defer s.nSources.Add(-1)
		if err := loop.Run(s.runCtx); err != nil {
			s.logger.Error(s.runCtx, "source stopped", logger.String("source", name), logger.Error(err))
		}
	}()
	s.logger.Info(context.Background(), "source added",
		logger.String("source", name),
		logger.Duration("interval", interval),
	)
	return nil
}

func (s *Service) submit(ctx context.Context, f model.Frame) bool { //nolint:gocritic // hugeParam
	_, err := s.EnqueueFrame(ctx, f)
	return err == nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	started := s.started.Load()
	stats := map[string]interface{}{
		"started":     started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
		"metric":      s.metricName,
		"threshold":   s.threshold,
		"cooldownMs":  s.cooldown.Milliseconds(),
	}

	if started {
		queueLen := s.frameQueue.Len(ctx)
		identities := s.gallery.Count(ctx)
		records := s.ledger.Count()
		sessions := s.sessions.ItemCount()

		stats["queueLength"] = queueLen
		stats["identities"] = identities
		stats["attendanceRecords"] = records
		stats["activeSessions"] = sessions
		stats["sources"] = int(s.nSources.Load())
		stats["journal"] = s.journal != nil
		stats["publisher"] = s.publisher != nil

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateGallerySize(identities)
		metrics.UpdateLedgerRecords(records)
		metrics.UpdateActiveSessions(sessions)
	}
	return stats
}
