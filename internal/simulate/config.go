// Package simulate drives a running rollcall server with synthetic faces:
// it enrolls random identities, fires noisy probes at them concurrently and
// checks that every probe lands on its identity and that attendance is
// marked once per identity.
package simulate

import (
	"errors"
	"fmt"
	"time"
)

// Probe submission modes.
const (
	ModeSync  = "sync"  // POST /recognize, one report per probe
	ModeQueue = "queue" // POST /frames, verified through /attendance
)

// Defaults for Config.
const (
	DefaultIdentities = 20
	DefaultProbes     = 200
	DefaultDimension  = 128
	DefaultNoise      = 0.05
	DefaultTimeout    = 10 * time.Second
	DefaultSettle     = 5 * time.Second
	DefaultLocation   = "simulator"
)

// ErrInvalidConfig wraps every Config validation failure.
var ErrInvalidConfig = errors.New("invalid simulation config")

// Config holds the simulation parameters.
type Config struct {
	BaseURL    string        // Base URL of the service
	Identities int           // Number of identities to enroll
	Probes     int           // Number of recognition probes
	Dimension  int           // Descriptor length
	Noise      float64       // Expected norm of the noise added to each sample
	Workers    int           // Number of concurrent probe workers
	Timeout    time.Duration // HTTP request timeout
	Settle     time.Duration // How long queue mode waits for attendance to appear
	Mode       string        // ModeSync or ModeQueue
	Location   string        // Frame source, recorded as the attendance location
	Seed       uint64        // Seed of the descriptor generator
	Cleanup    bool          // Remove enrolled identities and their records afterwards
}

// Validate checks the parameters.
func (c *Config) Validate() error {
	switch {
	case c.BaseURL == "":
		return fmt.Errorf("%w: base url is empty", ErrInvalidConfig)
	case c.Identities < 1:
		return fmt.Errorf("%w: identities must be at least 1", ErrInvalidConfig)
	case c.Probes < 0:
		return fmt.Errorf("%w: probes must not be negative", ErrInvalidConfig)
	case c.Dimension < 2:
		return fmt.Errorf("%w: dimension must be at least 2", ErrInvalidConfig)
	case c.Noise < 0:
		return fmt.Errorf("%w: noise must not be negative", ErrInvalidConfig)
	case c.Workers < 1:
		return fmt.Errorf("%w: workers must be at least 1", ErrInvalidConfig)
	case c.Mode != ModeSync && c.Mode != ModeQueue:
		return fmt.Errorf("%w: mode %q is not %s or %s", ErrInvalidConfig, c.Mode, ModeSync, ModeQueue)
	}
	return nil
}

// Stats holds the run statistics.
type Stats struct {
	IdentitiesEnrolled int
	ProbesSent         int
	Recognized         int
	Misidentified      int
	Unrecognized       int
	Ambiguous          int
	Duplicates         int
	Failed             int
	AttendanceRecords  int
	StartTime          time.Time
	EndTime            time.Time
	Duration           time.Duration
}
