// Package types contains response shapes shared by the status server and
// the CLI listings.
package types

import (
	"time"

	"github.com/okian/trainingbot/internal/domain/model"
)

// RunSummary is the one-line view of a run.
type RunSummary struct {
	ID         string    `json:"id"`
	RunDate    string    `json:"run_date"`
	Status     string    `json:"status"`
	Policy     string    `json:"policy"`
	DryRun     bool      `json:"dry_run,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
	Attempted  int       `json:"attempted"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	AbortStage string    `json:"abort_stage,omitempty"`
}

// Summarize builds the summary of r.
func Summarize(r *model.RunResult) RunSummary {
	return RunSummary{
		ID:         r.ID,
		RunDate:    r.RunDate,
		Status:     r.Status(),
		Policy:     r.Policy,
		DryRun:     r.DryRun,
		StartedAt:  r.StartedAt,
		DurationMS: r.Duration().Milliseconds(),
		Attempted:  r.Attempted,
		Succeeded:  r.Succeeded,
		Failed:     r.Failed,
		AbortStage: string(r.AbortStage),
	}
}

// SummarizeAll keeps the order of runs.
func SummarizeAll(runs []model.RunResult) []RunSummary {
	out := make([]RunSummary, len(runs))
	for i := range runs {
		out[i] = Summarize(&runs[i])
	}
	return out
}
