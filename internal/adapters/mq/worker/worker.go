// Package worker drains the submission queue and turns every assignment into
// an outcome.
//
// Each worker waits on a shared rate limiter before every attempt and
// retries transport failures with backoff. Rejections are final.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"

	"github.com/okian/trainingbot/internal/adapters/mq/queue"
	"github.com/okian/trainingbot/internal/domain/model"
	"github.com/okian/trainingbot/pkg/logger"
	"github.com/okian/trainingbot/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultRetries       = 2
	defaultSubmitTimeout = 90 * time.Second
)

// ErrCancelled marks assignments that were never attempted because the run
// was cancelled.
var ErrCancelled = errors.New("run cancelled")

// Submitter fills and submits the remote form for one assignment.
type Submitter interface {
	Submit(ctx context.Context, a model.Assignment) error
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Job
}

// InMemoryWorker pulls jobs and reports one outcome per job.
type InMemoryWorker struct {
	queue     Queue
	submitter Submitter
	results   chan<- model.Outcome
	name      string

	limiter *rate.Limiter
	retries int
	timeout time.Duration
	newBO   func() backoff.BackOff

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, s Submitter, results chan<- model.Outcome, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     q,
		submitter: s,
		results:   results,
		name:      "worker",
		limiter:   rate.NewLimiter(rate.Inf, 1),
		retries:   defaultRetries,
		timeout:   defaultSubmitTimeout,
		newBO: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
		logger: logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop. It returns when the queue is drained or ctx is
// done.
func (w *InMemoryWorker) Run(ctx context.Context) {
	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			metrics.RecordQueueDequeue()
			w.results <- w.process(ctx, j)
		}
	}
}

// process submits one assignment and never returns without an outcome.
func (w *InMemoryWorker) process(ctx context.Context, a model.Assignment) (out model.Outcome) { //nolint:gocritic // hugeParam: jobs travel by value
	start := time.Now()
	out = model.Outcome{
		AssignmentID:  a.ID,
		PersonnelID:   a.Personnel.ID,
		PersonnelName: a.Personnel.Name,
		Unit:          a.Personnel.Unit,
		ModuleID:      a.Module.ID,
		ModuleTitle:   a.Module.Label(),
	}
	defer func() {
		out.Latency = time.Since(start)
		metrics.RecordWorkerProcessingLatency(float64(out.Latency.Milliseconds()))
	}()

	op := func() (struct{}, error) {
		if err := w.limiter.Wait(ctx); err != nil {
			return struct{}{}, backoff.Permanent(cancelled(err))
		}
		out.Attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, w.timeout)
		defer cancel()

		err := classify(w.submitter.Submit(attemptCtx, a))
		if err == nil {
			return struct{}{}, nil
		}
		if ctx.Err() != nil {
			return struct{}{}, backoff.Permanent(cancelled(ctx.Err()))
		}
		if errors.Is(err, model.ErrTransport) {
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	}

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(w.newBO()),
		backoff.WithMaxTries(uint(w.retries+1)), //nolint:gosec // retries is validated non-negative
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			metrics.RecordSubmissionRetry()
			w.logger.Warn(ctx, "submission retry",
				logger.String("assignment", a.ID),
				logger.String("person", a.Personnel.Name),
				logger.Duration("next", next),
				logger.Error(err),
			)
		}),
	)
	// Retry reports the bare context error when cancelled between attempts.
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) && !errors.Is(err, model.ErrTransport) {
		err = cancelled(err)
	}

	if err != nil {
		out.Fail(err)
		metrics.RecordSubmission(resultLabel(out.Kind), float64(time.Since(start).Milliseconds()))
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", string(out.Kind))
		w.logger.Error(ctx, "submission failed",
			logger.String("stage", string(model.StageSubmit)),
			logger.String("assignment", a.ID),
			logger.String("person", a.Personnel.Name),
			logger.String("module", a.Module.ID),
			logger.Int("attempts", out.Attempts),
			logger.Error(err),
		)
		return out
	}

	out.Succeeded = true
	metrics.RecordSubmission("succeeded", float64(time.Since(start).Milliseconds()))
	w.logger.Info(ctx, "submitted",
		logger.String("assignment", a.ID),
		logger.String("person", a.Personnel.Name),
		logger.String("module", a.Module.Label()),
		logger.Int("attempts", out.Attempts),
	)
	return out
}

// classify keeps rejections and transport errors as they are and treats
// anything unrecognized as a transport failure.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, model.ErrSubmissionRejected), errors.Is(err, model.ErrTransport):
		return err
	case errors.Is(err, model.ErrAuth):
		return fmt.Errorf("%w: %w", model.ErrSubmissionRejected, err)
	default:
		return fmt.Errorf("%w: %w", model.ErrTransport, err)
	}
}

func cancelled(cause error) error {
	return fmt.Errorf("%w: %w: %w", model.ErrTransport, ErrCancelled, cause)
}

// CancelledOutcome reports an assignment that was never attempted.
func CancelledOutcome(a model.Assignment) model.Outcome { //nolint:gocritic // hugeParam: jobs travel by value
	out := model.Outcome{
		AssignmentID:  a.ID,
		PersonnelID:   a.Personnel.ID,
		PersonnelName: a.Personnel.Name,
		Unit:          a.Personnel.Unit,
		ModuleID:      a.Module.ID,
		ModuleTitle:   a.Module.Label(),
	}
	out.Fail(fmt.Errorf("%w: %w", model.ErrTransport, ErrCancelled))
	return out
}

func resultLabel(kind model.Kind) string {
	switch kind {
	case model.KindSubmissionRejected:
		return "rejected"
	case model.KindTransport:
		return "transport"
	default:
		return "error"
	}
}

// Pool manages multiple workers sharing one limiter.
type Pool struct {
	workers []*InMemoryWorker
	results chan model.Outcome
	wg      sync.WaitGroup

	logger logger.Logger
}

// NewPool creates a worker pool. Outcomes from every worker arrive on
// Results, which is closed once all workers have stopped.
func NewPool(workerCount int, q Queue, s Submitter, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		results: make(chan model.Outcome, workerCount),
		logger:  logger.Get().Named("worker-pool"),
	}

	// One limiter for the whole pool so the rate bounds total submissions.
	base := &InMemoryWorker{limiter: rate.NewLimiter(rate.Inf, 1)}
	for _, opt := range opts {
		opt(base)
	}
	shared := base.limiter
	for i := 0; i < workerCount; i++ {
		wopts := append(append([]Option{}, opts...), WithName("worker-"+strconv.Itoa(i)), WithLimiter(shared))
		p.workers[i] = NewInMemoryWorker(q, s, p.results, wopts...)
	}

	metrics.UpdateWorkerActiveCount(0)
	return p
}

// Results yields one outcome per processed job.
func (p *Pool) Results() <-chan model.Outcome {
	return p.results
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	metrics.UpdateWorkerActiveCount(len(p.workers))
	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *InMemoryWorker) {
			defer p.wg.Done()
			w.Run(ctx)
		}(w)
	}
	p.logger.Debug(ctx, "workers started", logger.Int("workers", len(p.workers)))
	go func() {
		p.wg.Wait()
		metrics.UpdateWorkerActiveCount(0)
		close(p.results)
	}()
}
