package repository

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithMaxRuns bounds how many runs are kept. The oldest are dropped first.
// n <= 0 keeps everything.
func WithMaxRuns(n int) Option {
	return func(s *MemoryStore) {
		s.maxRuns = n
	}
}
