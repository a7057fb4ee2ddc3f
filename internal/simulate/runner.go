package simulate

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/rollcall/pkg/logger"
)

// enrolled pairs a server identity with the descriptor it was built from.
type enrolled struct {
	id   int64
	base []float64
}

// probe is one recognition request and the identity it should resolve to.
type probe struct {
	frame    frame
	expected int64
}

// Run executes the complete simulation against cfg.BaseURL.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	stats := &Stats{StartTime: time.Now()}
	log := logger.Named("simulate")

	log.Info(ctx, "starting rollcall simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("identities", cfg.Identities),
		logger.Int("probes", cfg.Probes),
		logger.Int("dimension", cfg.Dimension),
		logger.Float64("noise", cfg.Noise),
		logger.Int("workers", cfg.Workers),
		logger.String("mode", cfg.Mode))

	c := newClient(cfg.BaseURL, cfg.Timeout)
	gen := newGenerator(cfg.Seed, cfg.Dimension)

	if err := checkServiceHealth(ctx, c); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	people, err := enrollIdentities(ctx, c, cfg, gen)
	stats.IdentitiesEnrolled = len(people)
	if cfg.Cleanup {
		defer cleanup(context.WithoutCancel(ctx), c, people)
	}
	if err != nil {
		return stats, fmt.Errorf("enrollment failed: %w", err)
	}

	probes := buildProbes(cfg, gen, people)
	started := time.Now()
	submitProbes(ctx, c, cfg, probes, stats)

	if err := verifyResults(ctx, c, cfg, probes, started, stats); err != nil {
		finish(ctx, stats)
		return stats, err
	}

	finish(ctx, stats)
	log.Info(ctx, "simulation completed successfully")
	return stats, nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, c *client) error {
	_, err := c.do(ctx, http.MethodGet, "/healthz", nil, nil, http.StatusOK)
	return err
}

// enrollIdentities enrolls cfg.Identities synthetic people, one noisy sample
// per pose. It returns the identities enrolled so far even on error.
func enrollIdentities(ctx context.Context, c *client, cfg *Config, gen *generator) ([]enrolled, error) {
	people := make([]enrolled, 0, cfg.Identities)
	for i := 0; i < cfg.Identities; i++ {
		base := gen.identity()

		var view enrollment
		body := map[string]string{
			"display_name": fmt.Sprintf("sim-%d-%d", cfg.Seed, i),
			"external_ref": uuid.NewString(),
		}
		if _, err := c.do(ctx, http.MethodPost, "/enrollments", body, &view, http.StatusCreated); err != nil {
			return people, err
		}

		path := "/enrollments/" + view.SessionID
		for step := 0; step < view.Total; step++ {
			f := frame{Faces: []face{{Descriptor: gen.sample(base, cfg.Noise)}}}
			if _, err := c.do(ctx, http.MethodPost, path+"/frames", f, &view, http.StatusOK); err != nil {
				return people, err
			}
		}

		var id identity
		if _, err := c.do(ctx, http.MethodPost, path+"/finalize", nil, &id, http.StatusCreated); err != nil {
			return people, err
		}
		people = append(people, enrolled{id: id.ID, base: base})
	}
	logger.Get().Info(ctx, "identities enrolled", logger.Int("count", len(people)))
	return people, nil
}

// buildProbes assigns probes to identities round-robin.
func buildProbes(cfg *Config, gen *generator, people []enrolled) []probe {
	probes := make([]probe, cfg.Probes)
	for i := range probes {
		p := people[i%len(people)]
		probes[i] = probe{
			expected: p.id,
			frame: frame{
				ID:     uuid.NewString(),
				Source: cfg.Location,
				Faces:  []face{{Descriptor: gen.sample(p.base, cfg.Noise)}},
			},
		}
	}
	return probes
}

// submitProbes fires the probes with cfg.Workers concurrent workers.
func submitProbes(ctx context.Context, c *client, cfg *Config, probes []probe, stats *Stats) {
	var (
		sent, recognized, misidentified int64
		unrecognized, ambiguous         int64
		duplicates, failed              int64
	)

	work := make(chan probe, cfg.Workers*2)
	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range work {
				atomic.AddInt64(&sent, 1)
				if cfg.Mode == ModeQueue {
					dup, err := enqueueTwice(ctx, c, p)
					if err != nil {
						atomic.AddInt64(&failed, 1)
						continue
					}
					if dup {
						atomic.AddInt64(&duplicates, 1)
					}
					continue
				}

				var rep report
				if _, err := c.do(ctx, http.MethodPost, "/recognize", p.frame, &rep, http.StatusOK); err != nil || len(rep.Faces) == 0 {
					atomic.AddInt64(&failed, 1)
					continue
				}
				switch f := rep.Faces[0]; {
				case f.Outcome == "recognized" && f.IdentityID == p.expected:
					atomic.AddInt64(&recognized, 1)
				case f.Outcome == "recognized":
					atomic.AddInt64(&misidentified, 1)
				case f.Outcome == "ambiguous":
					atomic.AddInt64(&ambiguous, 1)
				default:
					atomic.AddInt64(&unrecognized, 1)
				}
			}
		}()
	}

	go func() {
		defer close(work)
		for _, p := range probes {
			select {
			case <-ctx.Done():
				return
			case work <- p:
			}
		}
	}()
	wg.Wait()

	stats.ProbesSent = int(atomic.LoadInt64(&sent))
	stats.Recognized = int(atomic.LoadInt64(&recognized))
	stats.Misidentified = int(atomic.LoadInt64(&misidentified))
	stats.Unrecognized = int(atomic.LoadInt64(&unrecognized))
	stats.Ambiguous = int(atomic.LoadInt64(&ambiguous))
	stats.Duplicates = int(atomic.LoadInt64(&duplicates))
	stats.Failed = int(atomic.LoadInt64(&failed))

	logger.Get().Info(ctx, "probe submission completed",
		logger.Int("sent", stats.ProbesSent),
		logger.Int("recognized", stats.Recognized),
		logger.Int("duplicates", stats.Duplicates),
		logger.Int("failed", stats.Failed))
}

// enqueueTwice queues the probe and replays it; the replay must come back
// as a duplicate.
func enqueueTwice(ctx context.Context, c *client, p probe) (bool, error) {
	if _, err := c.do(ctx, http.MethodPost, "/frames", p.frame, nil, http.StatusAccepted); err != nil {
		return false, err
	}
	var a ack
	if _, err := c.do(ctx, http.MethodPost, "/frames", p.frame, &a, http.StatusOK, http.StatusAccepted); err != nil {
		return false, err
	}
	return a.Duplicate, nil
}

// cleanup removes the enrolled identities and their attendance.
func cleanup(ctx context.Context, c *client, people []enrolled) {
	for _, p := range people {
		_, _ = c.do(ctx, http.MethodDelete, fmt.Sprintf("/attendance/%d", p.id), nil, nil)
		_, _ = c.do(ctx, http.MethodDelete, fmt.Sprintf("/identities/%d", p.id), nil, nil, http.StatusNoContent)
	}
	logger.Get().Info(ctx, "simulation identities removed", logger.Int("count", len(people)))
}

// finish stamps the end time and logs the final statistics.
func finish(ctx context.Context, stats *Stats) {
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)

	var probesPerSecond float64
	if stats.Duration > 0 {
		probesPerSecond = float64(stats.ProbesSent) / stats.Duration.Seconds()
	}

	logger.Get().Info(ctx, "final statistics",
		logger.Int("identitiesEnrolled", stats.IdentitiesEnrolled),
		logger.Int("probesSent", stats.ProbesSent),
		logger.Int("recognized", stats.Recognized),
		logger.Int("misidentified", stats.Misidentified),
		logger.Int("unrecognized", stats.Unrecognized),
		logger.Int("ambiguous", stats.Ambiguous),
		logger.Int("duplicates", stats.Duplicates),
		logger.Int("failed", stats.Failed),
		logger.Int("attendanceRecords", stats.AttendanceRecords),
		logger.Duration("duration", stats.Duration),
		logger.Float64("probesPerSecond", probesPerSecond))
}
