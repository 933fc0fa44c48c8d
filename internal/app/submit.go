package service

import (
	"context"
	"fmt"

	"github.com/okian/trainingbot/internal/adapters/mq/queue"
	"github.com/okian/trainingbot/internal/adapters/mq/worker"
	"github.com/okian/trainingbot/internal/domain/dedupe"
	"github.com/okian/trainingbot/internal/domain/model"
	"github.com/okian/trainingbot/pkg/logger"
)

// starter is implemented by submitters holding a session, such as the
// browser client.
type starter interface {
	Start(ctx context.Context) error
}

// dryRunSubmitter accepts every assignment without contacting the platform.
type dryRunSubmitter struct {
	logger logger.Logger
}

func (d dryRunSubmitter) Submit(ctx context.Context, a model.Assignment) error { //nolint:gocritic // hugeParam: matches worker.Submitter
	d.logger.Info(ctx, "dry run, not submitting",
		logger.String("personnel", a.Personnel.Name),
		logger.String("module", a.Module.Label()))
	return nil
}

// submitAll pushes every assignment through the worker pool and folds the
// outcomes into res. Assignments never attempted because the run was
// cancelled count as transport failures. The error is non-nil only when the
// session could not be started, in which case nothing was attempted.
func (s *Service) submitAll(ctx context.Context, log logger.Logger, res *model.RunResult, assignments []model.Assignment, dryRun bool) error {
	if len(assignments) == 0 {
		log.Info(ctx, "no assignments to submit")
		return nil
	}

	var sub worker.Submitter = dryRunSubmitter{logger: log}
	if !dryRun {
		if s.submitter == nil {
			return model.NewStageError(model.StageSubmit, "", fmt.Errorf("%w: platform submitter", ErrNotConfigured))
		}
		sub = s.submitter
		if st, ok := sub.(starter); ok {
			if err := st.Start(ctx); err != nil {
				return model.NewStageError(model.StageSubmit, "session", err)
			}
		}
	}
	defer stageTimer(model.StageSubmit)()

	q := queue.NewInMemoryQueue(queue.WithCapacity(max(s.queueSize, len(assignments))))
	seen := dedupe.NewInMemoryDeduper()
	outcomes := make(map[string]model.Outcome, len(assignments))
	order := make([]string, 0, len(assignments))

	for _, a := range assignments {
		order = append(order, a.ID)
		key := dedupe.Key(a.Personnel.Key())
		if seen.SeenAndRecord(ctx, key) {
			out := worker.CancelledOutcome(a)
			out.Fail(fmt.Errorf("%w: %w", model.ErrFormat, ErrDuplicate))
			outcomes[a.ID] = out
			log.Error(ctx, "second assignment for person refused",
				logger.String("stage", string(model.StageSubmit)),
				logger.String("personnel", a.Personnel.Name),
				logger.String("assignment_id", a.ID))
			continue
		}
		if q.Enqueue(ctx, a) {
			continue
		}
		seen.Unrecord(ctx, key)
		if ctx.Err() != nil {
			outcomes[a.ID] = worker.CancelledOutcome(a)
			continue
		}
		out := worker.CancelledOutcome(a)
		out.Fail(fmt.Errorf("%w: %w", model.ErrTransport, ErrNotQueued))
		outcomes[a.ID] = out
	}
	_ = q.Close()
	log.Info(ctx, "assignments queued", logger.Int("queued", q.Len(ctx)), logger.Int("workers", s.workerCount))

	opts := s.workerOpts
	if dryRun {
		opts = nil
	}
	pool := worker.NewPool(s.workerCount, q, sub, opts...)
	pool.Start(ctx)
	for out := range pool.Results() {
		outcomes[out.AssignmentID] = out
	}
	for _, a := range q.Drain() {
		outcomes[a.ID] = worker.CancelledOutcome(a)
	}

	for _, id := range order {
		out := outcomes[id]
		res.Outcomes = append(res.Outcomes, out)
		res.Attempted++
		if out.Succeeded {
			res.Succeeded++
			continue
		}
		res.Failed++
		res.Failures = append(res.Failures, model.Failure{
			Stage:         model.StageSubmit,
			Kind:          out.Kind,
			PersonnelID:   out.PersonnelID,
			PersonnelName: out.PersonnelName,
			ModuleID:      out.ModuleID,
			Attempts:      out.Attempts,
			Message:       out.Error,
		})
	}
	return nil
}
