// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Durations are plain integers with an _ms suffix so env vars stay simple.
// - Provide New() to build a Config with defaults.
// - External errors are wrapped with this package's sentinel errors.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// MatchMetric names the distance metric: euclidean or cosine.
	MatchMetric string `koanf:"match_metric"`

	// MatchThreshold is the distance below which a probe is accepted.
	MatchThreshold float64 `koanf:"match_threshold"`

	// DescriptorDim pins the descriptor length. 0 infers it from the first enrollment.
	DescriptorDim int `koanf:"descriptor_dim"`

	// DedupCooldownMS is the attendance cooldown window per identity.
	DedupCooldownMS int `koanf:"dedup_cooldown_ms"`

	// LedgerShards sets the number of lock shards in the attendance ledger.
	LedgerShards int `koanf:"ledger_shards"`

	// EnrollPoses is the ordered pose list of an enrollment session.
	EnrollPoses []string `koanf:"enroll_poses"`

	// EnrollSessionTTLMS expires abandoned enrollment sessions.
	EnrollSessionTTLMS int `koanf:"enroll_session_ttl_ms"`

	// EnrollConsistencyThreshold rejects sessions whose samples lie farther
	// than this from their mean. 0 disables the check.
	EnrollConsistencyThreshold float64 `koanf:"enroll_consistency_threshold"`

	// QueueSize bounds the in-memory frame queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of recognition workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize bounds the remembered frame ids used to drop replays.
	DedupeSize int `koanf:"dedupe_size"`

	// ExtractTimeoutMS bounds one descriptor extraction.
	ExtractTimeoutMS int `koanf:"extract_timeout_ms"`

	// ExtractorURL points at an embedding service for image-only frames.
	ExtractorURL string `koanf:"extractor_url"`

	// DefaultLocation is recorded for frames that name no source.
	DefaultLocation string `koanf:"default_location"`

	// RecognizeRateLimit caps recognition requests per second. 0 disables it.
	RecognizeRateLimit float64 `koanf:"recognize_rate_limit"`

	// RecognizeBurst is the limiter burst size.
	RecognizeBurst int `koanf:"recognize_burst"`

	// DatabaseDriver is sqlite or mysql.
	DatabaseDriver string `koanf:"database_driver"`

	// DatabaseDSN enables the durable journal when set.
	DatabaseDSN string `koanf:"database_dsn"`

	// MQTTBroker enables attendance notifications when set, e.g. tcp://host:1883.
	MQTTBroker string `koanf:"mqtt_broker"`

	// MQTTTopic is the topic prefix; records go to <topic>/<identity_id>.
	MQTTTopic string `koanf:"mqtt_topic"`

	// MQTTClientID identifies this process to the broker.
	MQTTClientID string `koanf:"mqtt_client_id"`

	// ShutdownTimeoutMS bounds graceful shutdown.
	ShutdownTimeoutMS int `koanf:"shutdown_timeout_ms"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:           "info",
		LogFormat:          "text",
		Addr:               ":9080",
		MatchMetric:        "euclidean",
		MatchThreshold:     0.6,
		DedupCooldownMS:    5_000,
		LedgerShards:       32,
		EnrollPoses:        []string{"center", "left", "right", "up"},
		EnrollSessionTTLMS: 600_000,
		QueueSize:          1_024,
		WorkerCount:        runtime.NumCPU(),
		DedupeSize:         50_000,
		ExtractTimeoutMS:   2_000,
		DefaultLocation:    "webcam",
		RecognizeBurst:     20,
		DatabaseDriver:     "sqlite",
		MQTTTopic:          "rollcall/attendance",
		MQTTClientID:       "rollcall",
		ShutdownTimeoutMS:  10_000,
	}
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) { problems = append(problems, fmt.Sprintf(format, args...)) }

	if c.Addr == "" {
		add("addr must not be empty")
	}
	switch strings.ToLower(c.MatchMetric) {
	case "", "euclidean", "cosine":
	default:
		add("match_metric %q is not euclidean or cosine", c.MatchMetric)
	}
	if c.MatchThreshold <= 0 {
		add("match_threshold must be positive, got %v", c.MatchThreshold)
	}
	if c.DescriptorDim < 0 {
		add("descriptor_dim must not be negative")
	}
	if c.DedupCooldownMS < 0 {
		add("dedup_cooldown_ms must not be negative")
	}
	if c.LedgerShards < 1 {
		add("ledger_shards must be at least 1")
	}
	if len(c.EnrollPoses) == 0 {
		add("enroll_poses must not be empty")
	}
	if c.EnrollSessionTTLMS <= 0 {
		add("enroll_session_ttl_ms must be positive")
	}
	if c.EnrollConsistencyThreshold < 0 {
		add("enroll_consistency_threshold must not be negative")
	}
	if c.QueueSize < 1 {
		add("queue_size must be at least 1")
	}
	if c.RecognizeRateLimit < 0 {
		add("recognize_rate_limit must not be negative")
	}
	switch strings.ToLower(c.DatabaseDriver) {
	case "", "sqlite", "mysql":
	default:
		add("database_driver %q is not sqlite or mysql", c.DatabaseDriver)
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		add("log_format %q is not text or json", c.LogFormat)
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// DedupCooldown returns the cooldown as a duration.
func (c *Config) DedupCooldown() time.Duration { return ms(c.DedupCooldownMS) }

// EnrollSessionTTL returns the session TTL as a duration.
func (c *Config) EnrollSessionTTL() time.Duration { return ms(c.EnrollSessionTTLMS) }

// ExtractTimeout returns the extraction timeout as a duration.
func (c *Config) ExtractTimeout() time.Duration { return ms(c.ExtractTimeoutMS) }

// ShutdownTimeout returns the shutdown budget as a duration.
func (c *Config) ShutdownTimeout() time.Duration { return ms(c.ShutdownTimeoutMS) }

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }
