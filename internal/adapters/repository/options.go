package repository

// Option applies a configuration option to the SnapshotStore.
type Option func(*SnapshotStore)

// WithDimension pins the descriptor length. Without it the length is taken
// from the first stored descriptor and stays fixed afterwards.
func WithDimension(dim int) Option {
	return func(s *SnapshotStore) {
		if dim > 0 {
			s.fixedDim = dim
		}
	}
}
