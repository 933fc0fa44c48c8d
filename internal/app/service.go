// Package service runs the daily pipeline: load modules and fetch the roster
// concurrently, randomize one module per person, submit every assignment
// through the worker pool and record the RunResult.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/okian/trainingbot/internal/adapters/content"
	"github.com/okian/trainingbot/internal/adapters/minicad"
	"github.com/okian/trainingbot/internal/adapters/mq/worker"
	"github.com/okian/trainingbot/internal/adapters/runlog"
	"github.com/okian/trainingbot/internal/adapters/tui"
	"github.com/okian/trainingbot/internal/domain/assign"
	"github.com/okian/trainingbot/internal/domain/model"
	"github.com/okian/trainingbot/internal/domain/roster"
	"github.com/okian/trainingbot/pkg/logger"
	"github.com/okian/trainingbot/pkg/metrics"
)

const (
	dateLayout    = "2006-01-02"
	pushJobName   = "trainingbot"
	exportTimeout = 10 * time.Second
)

// Service wires the pipeline components.
type Service struct {
	loader      content.Loader
	modulesPath string
	fetcher     minicad.Fetcher
	submitter   worker.Submitter
	recorder    *runlog.Recorder
	history     assign.History

	units         []string
	selectionPath string
	policy        string
	seed          int64

	workerCount int
	queueSize   int
	workerOpts  []worker.Option

	metricsTextfile string
	pushgatewayURL  string

	now    func() time.Time
	newID  func() string
	logger logger.Logger
}

// Plan is the randomized assignment set for one run, before submission.
type Plan struct {
	RunID        string                  `json:"run_id"`
	RunDate      time.Time               `json:"run_date"`
	Policy       string                  `json:"policy"`
	Units        []string                `json:"units,omitempty"`
	MissingUnits []string                `json:"missing_units,omitempty"`
	Modules      []model.TrainingModule  `json:"-"`
	Personnel    []model.PersonnelRecord `json:"-"`
	Assignments  []model.Assignment      `json:"assignments"`
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		loader:      content.NewFileLoader(),
		modulesPath: "modules.csv",
		recorder:    runlog.NewRecorder(),
		policy:      assign.PolicyUniform,
		workerCount: 1,
		queueSize:   1024,
		now:         time.Now,
		newID:       uuid.NewString,
		logger:      logger.Get().Named("service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Roster fetches the current roster.
func (s *Service) Roster(ctx context.Context) (roster.Roster, error) {
	if s.fetcher == nil {
		return roster.Roster{}, fmt.Errorf("%w: personnel feed", ErrNotConfigured)
	}
	return s.fetcher.Fetch(ctx)
}

// Preview builds today's plan without touching the platform or the sinks.
func (s *Service) Preview(ctx context.Context) (Plan, error) {
	return s.plan(ctx, s.newID(), s.now())
}

// Run performs one full run. The returned RunResult is always complete and
// has been handed to every sink. The error is non-nil only when the run
// aborted before submission; per-assignment failures are reported in the
// result.
func (s *Service) Run(ctx context.Context, dryRun bool) (model.RunResult, error) {
	start := s.now()
	res := model.RunResult{
		ID:        s.newID(),
		RunDate:   start.Format(dateLayout),
		Policy:    s.policy,
		StartedAt: start,
		DryRun:    dryRun,
	}
	log := s.logger.With(logger.String("run_id", res.ID), logger.String("run_date", res.RunDate))
	log.Info(ctx, "run started", logger.Bool("dry_run", dryRun), logger.String("policy", s.policy))

	p, err := s.plan(ctx, res.ID, start)
	res.ModulesLoaded = len(p.Modules)
	res.PersonnelLoaded = len(p.Personnel)
	if p.Policy != "" {
		res.Policy = p.Policy
	}
	if err == nil {
		err = s.submitAll(ctx, log, &res, p.Assignments, dryRun)
	}
	if err != nil {
		s.abort(ctx, log, &res, err)
	}

	res.FinishedAt = s.now()
	s.finish(ctx, log, &res)
	return res, err
}

// plan loads modules and fetches the roster concurrently, applies the unit
// filter and randomizes. Errors are stage errors.
func (s *Service) plan(ctx context.Context, runID string, runDate time.Time) (Plan, error) {
	p := Plan{RunID: runID, RunDate: runDate, Policy: s.policy}
	if s.fetcher == nil {
		return p, model.NewStageError(model.StageFetch, "", fmt.Errorf("%w: %w", model.ErrFeedUnavailable, ErrNotConfigured))
	}

	var r roster.Roster
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer stageTimer(model.StageLoad)()
		mods, err := s.loader.Load(gctx, s.modulesPath)
		if err != nil {
			return asStage(model.StageLoad, s.modulesPath, err)
		}
		p.Modules = mods
		metrics.UpdateModulesLoaded(len(mods))
		return nil
	})
	g.Go(func() error {
		defer stageTimer(model.StageFetch)()
		got, err := s.fetcher.Fetch(gctx)
		if err != nil {
			return asStage(model.StageFetch, "", err)
		}
		r = got
		return nil
	})
	if err := g.Wait(); err != nil {
		return p, err
	}

	p.Units = s.selectedUnits(ctx)
	if missing := r.Missing(p.Units); len(missing) > 0 {
		p.MissingUnits = missing
		s.logger.Warn(ctx, "requested units not in roster", logger.Any("units", missing))
	}
	p.Personnel = r.Select(ctx, p.Units)
	metrics.UpdatePersonnelLoaded(len(p.Personnel))
	s.logger.Info(ctx, "inputs ready",
		logger.Int("modules", len(p.Modules)),
		logger.Int("personnel", len(p.Personnel)),
		logger.Int("units", len(r.Units)))

	defer stageTimer(model.StageRandomize)()
	assignments, policy, err := s.randomize(ctx, runID, runDate, p.Modules, p.Personnel)
	if err != nil {
		return p, model.NewStageError(model.StageRandomize, "", err)
	}
	p.Assignments = assignments
	p.Policy = policy
	metrics.RecordAssignments(policy, len(assignments))
	return p, nil
}

// randomize applies the configured policy. The fresh policy falls back to
// uniform when the history cannot be read.
func (s *Service) randomize(ctx context.Context, runID string, runDate time.Time, modules []model.TrainingModule, personnel []model.PersonnelRecord) ([]model.Assignment, string, error) {
	opts := []assign.Option{assign.WithPolicy(s.policy), assign.WithSeed(s.seed), assign.WithIDGenerator(s.newID)}
	if s.history != nil {
		opts = append(opts, assign.WithHistory(s.history))
	}
	r := assign.NewRandomizer(opts...)
	out, err := r.Assign(ctx, runID, runDate, modules, personnel)
	if errors.Is(err, assign.ErrHistoryUnavailable) {
		s.logger.Warn(ctx, "history unavailable, falling back to uniform", logger.Error(err))
		metrics.RecordErrorByComponent("randomizer", "history_unavailable")
		fallback := assign.NewRandomizer(assign.WithPolicy(assign.PolicyUniform), assign.WithSeed(s.seed), assign.WithIDGenerator(s.newID))
		out, err = fallback.Assign(ctx, runID, runDate, modules, personnel)
		return out, fallback.Policy(), err
	}
	return out, r.Policy(), err
}

// selectedUnits resolves the unit filter: explicit units, else the saved
// selection, else every unit.
func (s *Service) selectedUnits(ctx context.Context) []string {
	if len(s.units) > 0 || s.selectionPath == "" {
		return s.units
	}
	units, err := tui.LoadSelection(s.selectionPath)
	if err != nil {
		s.logger.Warn(ctx, "ignoring unreadable unit selection", logger.String("path", s.selectionPath), logger.Error(err))
		return nil
	}
	return units
}

func (s *Service) abort(ctx context.Context, log logger.Logger, res *model.RunResult, err error) {
	var se *model.StageError
	stage, record := model.StageLoad, ""
	if errors.As(err, &se) {
		stage, record = se.Stage, se.Record
	}
	kind := model.KindOf(err)
	res.AbortStage = stage
	res.AbortError = err.Error()
	res.Failures = append(res.Failures, model.Failure{Stage: stage, Kind: kind, Message: err.Error()})
	metrics.RecordErrorByComponent(string(stage), string(kind))
	log.Error(ctx, "run aborted",
		logger.String("stage", string(stage)),
		logger.String("record", record),
		logger.String("kind", string(kind)),
		logger.Error(err))
}

// finish writes the result to the sinks and exports run metrics. Neither
// changes the result.
func (s *Service) finish(ctx context.Context, log logger.Logger, res *model.RunResult) {
	stop := stageTimer(model.StageRecord)
	log.Debug(ctx, "recording run", logger.Any("sinks", s.recorder.Sinks()))
	if err := s.recorder.Record(ctx, res); err != nil {
		log.Warn(ctx, "run not recorded by every sink", logger.Error(err))
	}
	stop()

	metrics.ObserveRun(res.Status(), res.Attempted, res.Succeeded, res.Failed,
		res.Duration().Seconds(), float64(res.FinishedAt.Unix()))

	ectx, cancel := context.WithTimeout(context.WithoutCancel(ctx), exportTimeout)
	defer cancel()
	if s.metricsTextfile != "" {
		if err := metrics.WriteTextfile(s.metricsTextfile); err != nil {
			log.Warn(ectx, "metrics textfile not written", logger.String("path", s.metricsTextfile), logger.Error(err))
		}
	}
	if s.pushgatewayURL != "" {
		if err := metrics.Push(ectx, s.pushgatewayURL, pushJobName); err != nil {
			log.Warn(ectx, "metrics not pushed", logger.String("url", s.pushgatewayURL), logger.Error(err))
		}
	}

	log.Info(ctx, "run finished",
		logger.String("status", res.Status()),
		logger.Int("attempted", res.Attempted),
		logger.Int("succeeded", res.Succeeded),
		logger.Int("failed", res.Failed),
		logger.Duration("duration", res.Duration()))
}

// asStage wraps err in a stage error unless it already is one.
func asStage(stage model.Stage, record string, err error) error {
	var se *model.StageError
	if errors.As(err, &se) {
		return err
	}
	return model.NewStageError(stage, record, err)
}

func stageTimer(stage model.Stage) func() {
	start := time.Now()
	return func() {
		metrics.RecordStage(string(stage), float64(time.Since(start).Milliseconds()))
	}
}
