package service

import (
	"time"

	"github.com/okian/rollcall/internal/adapters/notify"
	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of recognition workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of frames waiting for a worker.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many frame ids are remembered to drop replays.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMatchMetric selects the distance metric by name.
func WithMatchMetric(name string) Option {
	return func(s *Service) {
		if name != "" {
			s.metricName = name
		}
	}
}

// WithMatchThreshold sets the acceptance distance.
func WithMatchThreshold(threshold float64) Option {
	return func(s *Service) {
		if threshold > 0 {
			s.threshold = threshold
		}
	}
}

// WithDescriptorDim pins the gallery descriptor length.
func WithDescriptorDim(dim int) Option {
	return func(s *Service) {
		if dim > 0 {
			s.descriptorDim = dim
		}
	}
}

// WithCooldown sets the attendance cooldown. Zero disables deduplication.
func WithCooldown(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.cooldown = d
		}
	}
}

// WithLedgerShards sets the number of ledger lock shards.
func WithLedgerShards(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.ledgerShards = n
		}
	}
}

// WithPoses sets the enrollment pose sequence by name.
func WithPoses(names []string) Option {
	return func(s *Service) {
		if len(names) > 0 {
			s.poses = append([]string(nil), names...)
		}
	}
}

// WithSessionTTL expires enrollment sessions idle for longer than d.
func WithSessionTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.sessionTTL = d
		}
	}
}

// WithConsistencyThreshold enables the enrollment sample check.
func WithConsistencyThreshold(threshold float64) Option {
	return func(s *Service) {
		if threshold >= 0 {
			s.consistency = threshold
		}
	}
}

// WithExtractTimeout bounds one descriptor extraction.
func WithExtractTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.extractTimeout = d
		}
	}
}

// WithExtractorURL sends image-only frames to an embedding service.
func WithExtractorURL(url string) Option {
	return func(s *Service) {
		s.extractorURL = url
	}
}

// WithExtractor replaces the server-side extractor used for image-only frames.
func WithExtractor(e model.Extractor) Option {
	return func(s *Service) {
		if e != nil {
			s.server = e
		}
	}
}

// WithDefaultLocation sets the location recorded for frames without a source.
func WithDefaultLocation(loc string) Option {
	return func(s *Service) {
		if loc != "" {
			s.defaultLocation = loc
		}
	}
}

// WithJournal persists identities and attendance. The service closes it on Stop.
func WithJournal(j Journal) Option {
	return func(s *Service) {
		if j != nil {
			s.journal = j
		}
	}
}

// WithPublisher announces new attendance records. The service closes it on Stop.
func WithPublisher(p notify.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithClock overrides the time source used for enrollment and manual marks.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}
