// Package repository stores past runs and assignments.
package repository

import (
	"context"
	"time"

	"github.com/okian/trainingbot/internal/domain/model"
)

// ModuleCount is how often a module was assigned successfully.
type ModuleCount struct {
	ModuleID    string `json:"module_id"`
	ModuleTitle string `json:"module_title"`
	Count       int    `json:"count"`
}

// Stats aggregates the stored history.
type Stats struct {
	Runs         int           `json:"runs"`
	Aborted      int           `json:"aborted"`
	Attempted    int           `json:"attempted"`
	Succeeded    int           `json:"succeeded"`
	Failed       int           `json:"failed"`
	LastRunAt    time.Time     `json:"last_run_at,omitempty"`
	LastRunID    string        `json:"last_run_id,omitempty"`
	TopModules   []ModuleCount `json:"top_modules,omitempty"`
	Personnel    int           `json:"personnel"`
	SuccessRatio float64       `json:"success_ratio"`
}

// Store provides read/write access to the run history.
type Store interface {
	// SaveRun records r and, unless it was a dry run, its assignment outcomes.
	SaveRun(ctx context.Context, r model.RunResult) error

	// Run returns the run with id, or ErrNotFound.
	Run(ctx context.Context, id string) (model.RunResult, error)

	// Recent returns up to limit runs, newest first. limit must be positive.
	Recent(ctx context.Context, limit int) ([]model.RunResult, error)

	// LastModules returns the most recent successfully submitted module id
	// for each of personnelIDs that has one.
	LastModules(ctx context.Context, personnelIDs []string) (map[string]string, error)

	// Stats summarizes the whole history. topN bounds TopModules.
	Stats(ctx context.Context, topN int) (Stats, error)

	Close() error
}

func finishStats(st *Stats, counts map[string]*ModuleCount, topN int) {
	if st.Attempted > 0 {
		st.SuccessRatio = float64(st.Succeeded) / float64(st.Attempted)
	}
	st.TopModules = topModules(counts, topN)
}
