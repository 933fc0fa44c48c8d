package model

import "time"

// Stage names a step of a run.
type Stage string

// Run stages.
const (
	StageLoad      Stage = "load"
	StageFetch     Stage = "fetch"
	StageRandomize Stage = "randomize"
	StageSubmit    Stage = "submit"
	StageRecord    Stage = "record"
)

// Outcome is the result of one assignment's submission.
type Outcome struct {
	AssignmentID  string        `json:"assignment_id"`
	PersonnelID   string        `json:"personnel_id"`
	PersonnelName string        `json:"personnel_name"`
	Unit          string        `json:"unit,omitempty"`
	ModuleID      string        `json:"module_id"`
	ModuleTitle   string        `json:"module_title,omitempty"`
	Succeeded     bool          `json:"succeeded"`
	Attempts      int           `json:"attempts"`
	Latency       time.Duration `json:"latency_ns"`
	Kind          Kind          `json:"kind,omitempty"`
	Error         string        `json:"error,omitempty"`
	Err           error         `json:"-"`
}

// Fail marks the outcome failed with err.
func (o *Outcome) Fail(err error) {
	o.Succeeded = false
	o.Err = err
	o.Kind = KindOf(err)
	if err != nil {
		o.Error = err.Error()
	}
}

// Failure describes one failed record or an aborted stage.
type Failure struct {
	Stage         Stage  `json:"stage"`
	Kind          Kind   `json:"kind"`
	PersonnelID   string `json:"personnel_id,omitempty"`
	PersonnelName string `json:"personnel_name,omitempty"`
	ModuleID      string `json:"module_id,omitempty"`
	Attempts      int    `json:"attempts,omitempty"`
	Message       string `json:"message"`
}

// RunResult summarizes one run. It is created at run end and never mutated
// afterward. Succeeded + Failed == Attempted always holds.
type RunResult struct {
	ID         string    `json:"id"`
	RunDate    string    `json:"run_date"` // YYYY-MM-DD
	Policy     string    `json:"policy"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DryRun     bool      `json:"dry_run,omitempty"`

	ModulesLoaded   int `json:"modules_loaded"`
	PersonnelLoaded int `json:"personnel_loaded"`
	Attempted       int `json:"attempted"`
	Succeeded       int `json:"succeeded"`
	Failed          int `json:"failed"`

	AbortStage Stage  `json:"abort_stage,omitempty"`
	AbortError string `json:"abort_error,omitempty"`

	Failures []Failure `json:"failures,omitempty"`
	Outcomes []Outcome `json:"outcomes,omitempty"`
}

// Aborted reports whether the run stopped before submitting.
func (r RunResult) Aborted() bool { return r.AbortStage != "" }

// OK reports whether the run completed with no failures.
func (r RunResult) OK() bool { return !r.Aborted() && r.Failed == 0 }

// Status is a one-word summary used for metrics labels and listings.
func (r RunResult) Status() string {
	switch {
	case r.Aborted():
		return "aborted"
	case r.Failed == 0:
		return "completed"
	case r.Succeeded == 0:
		return "failed"
	default:
		return "partial"
	}
}

// Duration is the wall time of the run.
func (r RunResult) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }
