package worker

import (
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"

	"github.com/okian/trainingbot/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithRate limits attempts to perSecond. Zero or less means unlimited.
func WithRate(perSecond float64) Option {
	return func(w *InMemoryWorker) {
		if perSecond > 0 {
			w.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithLimiter shares an existing limiter.
func WithLimiter(l *rate.Limiter) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.limiter = l
		}
	}
}

// WithRetries bounds retries of transport failures after the first attempt.
func WithRetries(n int) Option {
	return func(w *InMemoryWorker) {
		if n >= 0 {
			w.retries = n
		}
	}
}

// WithSubmitTimeout bounds a single attempt.
func WithSubmitTimeout(d time.Duration) Option {
	return func(w *InMemoryWorker) {
		if d > 0 {
			w.timeout = d
		}
	}
}

// WithBackOff sets the backoff factory; each job gets a fresh policy.
func WithBackOff(f func() backoff.BackOff) Option {
	return func(w *InMemoryWorker) {
		if f != nil {
			w.newBO = f
		}
	}
}
