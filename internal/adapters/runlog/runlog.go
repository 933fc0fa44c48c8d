// Package runlog writes finished runs to every configured sink.
package runlog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/trainingbot/internal/domain/model"
	"github.com/okian/trainingbot/pkg/logger"
	"github.com/okian/trainingbot/pkg/metrics"
)

const defaultSinkTimeout = 30 * time.Second

// Sink persists one RunResult.
type Sink interface {
	Name() string
	Write(ctx context.Context, r *model.RunResult) error
}

// Recorder fans a RunResult out to its sinks. A failing sink is logged and
// never stops the others.
type Recorder struct {
	sinks   []Sink
	timeout time.Duration
	logger  logger.Logger
}

// NewRecorder creates a Recorder over sinks. Nil sinks are skipped.
func NewRecorder(sinks ...Sink) *Recorder {
	r := &Recorder{
		timeout: defaultSinkTimeout,
		logger:  logger.Get().Named("runlog"),
	}
	for _, s := range sinks {
		if s != nil {
			r.sinks = append(r.sinks, s)
		}
	}
	return r
}

// Sinks returns the configured sink names in write order.
func (r *Recorder) Sinks() []string {
	names := make([]string, len(r.sinks))
	for i, s := range r.sinks {
		names[i] = s.Name()
	}
	return names
}

// Record writes res to every sink and returns the joined sink errors.
func (r *Recorder) Record(ctx context.Context, res *model.RunResult) error {
	var errs []error
	for _, s := range r.sinks {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		start := time.Now()
		err := s.Write(sctx, res)
		cancel()
		metrics.RecordStage("record_"+s.Name(), float64(time.Since(start).Milliseconds()))
		if err != nil {
			metrics.RecordErrorByComponent("runlog", s.Name())
			r.logger.Error(ctx, "run sink failed",
				logger.String("stage", string(model.StageRecord)),
				logger.String("sink", s.Name()),
				logger.String("run_id", res.ID),
				logger.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		r.logger.Debug(ctx, "run recorded", logger.String("sink", s.Name()), logger.String("run_id", res.ID))
	}
	return errors.Join(errs...)
}
