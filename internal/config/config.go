// Package config defines process configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Keys are flat snake_case so env vars map one to one (TRAININGBOT_<KEY>).
// - Validation errors wrap ErrInvalidConfig.
package config

import (
	"context"
	"time"
)

// Randomizer policy names.
const (
	PolicyUniform  = "uniform"
	PolicyBalanced = "balanced"
	PolicyFresh    = "fresh"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFile mirrors logs into an append-only file when set.
	LogFile string `koanf:"log_file"`
	// LogJSON switches log records to JSON lines.
	LogJSON bool `koanf:"log_json"`

	// ModulesPath points at the CSV or Markdown module file.
	ModulesPath string `koanf:"modules_path"`
	// StrictTopics rejects modules whose topic is not a known platform training type.
	StrictTopics bool `koanf:"strict_topics"`

	// MiniCad personnel feed.
	MiniCadURL    string        `koanf:"minicad_url"`
	MiniCadUser   string        `koanf:"minicad_user"`
	MiniCadPass   string        `koanf:"minicad_pass"`
	Units         []string      `koanf:"units"`
	SelectionPath string        `koanf:"selection_path"`
	FeedTimeout   time.Duration `koanf:"feed_timeout"`
	FeedRetries   int           `koanf:"feed_retries"`

	// Vector Solutions platform.
	LoginURL      string            `koanf:"login_url"`
	FormURL       string            `koanf:"form_url"`
	VSUser        string            `koanf:"vs_user"`
	VSPass        string            `koanf:"vs_pass"`
	AuthStatePath string            `koanf:"auth_state_path"`
	Headless      bool              `koanf:"headless"`
	BrowserBin    string            `koanf:"browser_bin"`
	NavTimeout    time.Duration     `koanf:"nav_timeout"`
	SubmitTimeout time.Duration     `koanf:"submit_timeout"`
	SubmitRetries int               `koanf:"submit_retries"`
	SubmitRate    float64           `koanf:"submit_rate"`
	ArtifactDir   string            `koanf:"artifact_dir"`
	FormSelectors map[string]string `koanf:"form_selectors"`

	// Submission queue and workers.
	WorkerCount    int `koanf:"worker_count"`
	EventQueueSize int `koanf:"queue_size"`

	// Randomizer.
	Policy string `koanf:"policy"`
	Seed   int64  `koanf:"seed"`

	// Run sinks.
	HistoryDB  string `koanf:"history_db"`
	ReportPath string `koanf:"report_path"`
	S3Bucket   string `koanf:"s3_bucket"`
	S3Region   string `koanf:"s3_region"`
	S3Endpoint string `koanf:"s3_endpoint"`
	S3Prefix   string `koanf:"s3_prefix"`

	// Metrics export for batch runs.
	MetricsTextfile string `koanf:"metrics_textfile"`
	PushgatewayURL  string `koanf:"pushgateway_url"`

	// Addr configures the status server listen address, e.g. ":9080".
	Addr string `koanf:"addr"`
	// MaxRunsLimit caps GET /runs?limit.
	MaxRunsLimit int `koanf:"max_runs_limit"`
}

// New creates a Config with defaults. Context is accepted first to satisfy the
// project-wide convention.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:       "info",
		ModulesPath:    "modules.csv",
		SelectionPath:  "state/units.json",
		FeedTimeout:    10 * time.Second,
		FeedRetries:    3,
		AuthStatePath:  "state/auth_state.json",
		Headless:       true,
		NavTimeout:     30 * time.Second,
		SubmitTimeout:  90 * time.Second,
		SubmitRetries:  2,
		SubmitRate:     0.5,
		ArtifactDir:    "artifacts",
		WorkerCount:    1,
		EventQueueSize: 1024,
		Policy:         PolicyUniform,
		HistoryDB:      "state/history.db",
		ReportPath:     "logs/runs.jsonl",
		S3Region:       "us-east-1",
		S3Prefix:       "runs/",
		Addr:           ":9080",
		MaxRunsLimit:   100,
	}
}
