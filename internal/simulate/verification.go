package simulate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/okian/rollcall/pkg/logger"
)

// ErrVerification is returned when the server's answers contradict the
// simulated ground truth.
var ErrVerification = errors.New("simulation verification failed")

const pollInterval = 50 * time.Millisecond

// verifyResults checks probe outcomes and the attendance ledger.
func verifyResults(ctx context.Context, c *client, cfg *Config, probes []probe, started time.Time, stats *Stats) error {
	if stats.Failed > 0 {
		return fmt.Errorf("%w: %d probes failed", ErrVerification, stats.Failed)
	}
	if cfg.Mode == ModeSync {
		if wrong := stats.Misidentified + stats.Unrecognized + stats.Ambiguous; wrong > 0 {
			return fmt.Errorf("%w: %d of %d probes not recognized as their identity (misidentified %d, unrecognized %d, ambiguous %d)",
				ErrVerification, wrong, stats.ProbesSent, stats.Misidentified, stats.Unrecognized, stats.Ambiguous)
		}
	} else if stats.Duplicates != stats.ProbesSent {
		return fmt.Errorf("%w: %d of %d replays were not reported as duplicates",
			ErrVerification, stats.ProbesSent-stats.Duplicates, stats.ProbesSent)
	}

	expected := make(map[int64]bool)
	for _, p := range probes {
		expected[p.expected] = true
	}
	if len(expected) == 0 {
		return nil
	}

	cooldown, err := fetchCooldown(ctx, c)
	if err != nil {
		return err
	}

	counts, err := waitForAttendance(ctx, c, cfg, expected)
	if err != nil {
		return err
	}
	elapsed := time.Since(started)

	for id := range expected {
		n := counts[id]
		stats.AttendanceRecords += n
		if n == 0 {
			return fmt.Errorf("%w: identity %d has no attendance record", ErrVerification, id)
		}
		// Every probe fell inside one cooldown window only when the whole
		// run was shorter than the window.
		if elapsed < cooldown && n > 1 {
			return fmt.Errorf("%w: identity %d marked %d times within the %s cooldown", ErrVerification, id, n, cooldown)
		}
	}

	logger.Get().Info(ctx, "attendance verified",
		logger.Int("identities", len(expected)),
		logger.Int("records", stats.AttendanceRecords),
		logger.Duration("cooldown", cooldown))
	return nil
}

func fetchCooldown(ctx context.Context, c *client) (time.Duration, error) {
	var stats struct {
		CooldownMs int64 `json:"cooldownMs"`
	}
	if _, err := c.do(ctx, http.MethodGet, "/stats", nil, &stats, http.StatusOK); err != nil {
		return 0, err
	}
	return time.Duration(stats.CooldownMs) * time.Millisecond, nil
}

// waitForAttendance counts records per expected identity. In queue mode it
// polls until every identity has one or cfg.Settle elapses.
func waitForAttendance(ctx context.Context, c *client, cfg *Config, expected map[int64]bool) (map[int64]int, error) {
	deadline := time.Now().Add(cfg.Settle)
	for {
		var records []record
		if _, err := c.do(ctx, http.MethodGet, "/attendance", nil, &records, http.StatusOK); err != nil {
			return nil, err
		}
		counts := make(map[int64]int, len(expected))
		for _, r := range records {
			if expected[r.IdentityID] {
				counts[r.IdentityID]++
			}
		}
		if cfg.Mode == ModeSync || len(counts) == len(expected) || time.Now().After(deadline) {
			return counts, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}
