package ledger

import "time"

// Defaults for the in-memory ledger.
const (
	// DefaultCooldown guards against one sighting producing several records
	// across consecutive frames. It is not an attendance policy.
	DefaultCooldown   = 5 * time.Second
	DefaultShardCount = 32
)

// Option applies a configuration option to the ledger.
type Option func(*inMemoryLedger)

// WithCooldown sets the per-identity dedup window. Zero disables deduplication.
func WithCooldown(d time.Duration) Option {
	return func(l *inMemoryLedger) {
		if d >= 0 {
			l.cooldown = d
		}
	}
}

// WithShardCount sets the number of lock shards.
func WithShardCount(n int) Option {
	return func(l *inMemoryLedger) {
		if n > 0 {
			l.shardCount = n
		}
	}
}

// WithIDGenerator overrides record id generation.
func WithIDGenerator(gen func() string) Option {
	return func(l *inMemoryLedger) {
		if gen != nil {
			l.newID = gen
		}
	}
}
