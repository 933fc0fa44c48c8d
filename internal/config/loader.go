package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix = "TRAININGBOT_"
	envConfig = "TRAININGBOT_CONFIG"
	keyDelim  = "."
	structTag = "koanf"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. file (YAML) if TRAININGBOT_CONFIG is set
//  3. env (prefix TRAININGBOT_)
func Load(ctx context.Context) (*Config, error) {
	base := New(ctx)

	k := koanf.New(keyDelim)

	if path := os.Getenv(envConfig); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// TRAININGBOT_MINICAD_URL -> minicad_url. Underscores are preserved to
	// match the flat koanf tags; TRAININGBOT_CONFIG itself is skipped.
	envProvider := env.Provider(envPrefix, keyDelim, func(s string) string {
		if s == envConfig {
			return ""
		}
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	// The default decoder hooks turn "10s" into a Duration and "R1,R26" into a
	// []string.
	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: structTag}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	cfg.Units = cleanList(cfg.Units)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings every command depends on.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.ModulesPath) == "":
		return invalid("modules_path must not be empty")
	case c.Addr == "":
		return invalid("addr must not be empty")
	case c.WorkerCount < 1:
		return invalid("worker_count must be at least 1, got %d", c.WorkerCount)
	case c.EventQueueSize < 1:
		return invalid("queue_size must be at least 1, got %d", c.EventQueueSize)
	case c.FeedRetries < 0 || c.SubmitRetries < 0:
		return invalid("retry counts must not be negative")
	case c.SubmitRate < 0:
		return invalid("submit_rate must not be negative")
	case c.FeedTimeout <= 0 || c.NavTimeout <= 0 || c.SubmitTimeout <= 0:
		return invalid("timeouts must be positive")
	case c.MaxRunsLimit < 1:
		return invalid("max_runs_limit must be at least 1")
	}
	switch c.Policy {
	case PolicyUniform, PolicyBalanced, PolicyFresh:
	default:
		return invalid("unknown policy %q", c.Policy)
	}
	return nil
}

// RequireFeed checks the settings needed to reach the personnel feed.
func (c *Config) RequireFeed() error {
	if strings.TrimSpace(c.MiniCadURL) == "" {
		return invalid("minicad_url is required")
	}
	return nil
}

// RequirePlatform checks the settings needed to submit forms.
func (c *Config) RequirePlatform() error {
	if strings.TrimSpace(c.FormURL) == "" {
		return invalid("form_url is required")
	}
	if strings.TrimSpace(c.LoginURL) == "" {
		return invalid("login_url is required")
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
