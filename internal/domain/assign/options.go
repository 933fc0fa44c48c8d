package assign

// Option applies a configuration option to the Randomizer.
type Option func(*Randomizer)

// WithPolicy selects the distribution policy: uniform, balanced or fresh.
func WithPolicy(policy string) Option {
	return func(r *Randomizer) {
		if policy != "" {
			r.policy = policy
		}
	}
}

// WithSeed fixes the random seed. Zero keeps the per-date seed.
func WithSeed(seed int64) Option {
	return func(r *Randomizer) {
		r.seed = seed
	}
}

// WithHistory supplies the previous assignments used by the fresh policy.
func WithHistory(h History) Option {
	return func(r *Randomizer) {
		r.history = h
	}
}

// WithIDGenerator overrides how assignment ids are minted.
func WithIDGenerator(fn func() string) Option {
	return func(r *Randomizer) {
		if fn != nil {
			r.newID = fn
		}
	}
}
