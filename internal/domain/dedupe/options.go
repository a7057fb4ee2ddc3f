package dedupe

const defaultMaxSize = 50_000

// Option applies a configuration option to the deduper.
type Option func(*ringDeduper)

// WithMaxSize sets how many recent ids are remembered.
// A non-positive value keeps every id.
func WithMaxSize(maxSize int) Option {
	return func(d *ringDeduper) {
		d.maxSize = maxSize
	}
}
