package service

import (
	"time"

	"github.com/okian/trainingbot/internal/adapters/content"
	"github.com/okian/trainingbot/internal/adapters/minicad"
	"github.com/okian/trainingbot/internal/adapters/mq/worker"
	"github.com/okian/trainingbot/internal/adapters/runlog"
	"github.com/okian/trainingbot/internal/domain/assign"
	"github.com/okian/trainingbot/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithModules sets the module loader and the file or directory it reads.
func WithModules(l content.Loader, path string) Option {
	return func(s *Service) {
		s.loader = l
		s.modulesPath = path
	}
}

// WithFetcher sets the personnel feed.
func WithFetcher(f minicad.Fetcher) Option {
	return func(s *Service) { s.fetcher = f }
}

// WithSubmitter sets the platform submitter. A submitter that also has
// Start(ctx) error is started once per run before the first submission.
func WithSubmitter(sub worker.Submitter) Option {
	return func(s *Service) { s.submitter = sub }
}

// WithRecorder sets the run sinks.
func WithRecorder(r *runlog.Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithHistory sets the assignment history used by the fresh policy.
func WithHistory(h assign.History) Option {
	return func(s *Service) { s.history = h }
}

// WithUnits restricts the run to the named units. Without it the saved
// selection file is used, and without that every unit.
func WithUnits(units []string) Option {
	return func(s *Service) { s.units = units }
}

// WithSelectionPath sets the file written by the unit picker.
func WithSelectionPath(path string) Option {
	return func(s *Service) { s.selectionPath = path }
}

// WithPolicy sets the randomizer policy.
func WithPolicy(policy string) Option {
	return func(s *Service) {
		if policy != "" {
			s.policy = policy
		}
	}
}

// WithSeed fixes the randomizer seed. Zero derives it from the run date.
func WithSeed(seed int64) Option {
	return func(s *Service) { s.seed = seed }
}

// WithWorkerCount sets the number of submission workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the minimum submission queue capacity.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithWorkerOptions passes retry, rate and timeout settings to the workers.
func WithWorkerOptions(opts ...worker.Option) Option {
	return func(s *Service) { s.workerOpts = append(s.workerOpts, opts...) }
}

// WithMetricsExport writes run metrics to a textfile and/or pushes them to
// a Pushgateway after every run. Empty values disable either export.
func WithMetricsExport(textfile, pushgatewayURL string) Option {
	return func(s *Service) {
		s.metricsTextfile = textfile
		s.pushgatewayURL = pushgatewayURL
	}
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides run and assignment id generation.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
