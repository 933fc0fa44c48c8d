package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/okian/trainingbot/internal/config"
	"github.com/okian/trainingbot/pkg/logger"
)

// errRunFailed makes the process exit non-zero after a run that aborted or
// had failed submissions. The details are already logged.
var errRunFailed = errors.New("run did not complete cleanly")

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newCLI(os.Stdin, os.Stdout, os.Stderr).root().ExecuteContext(ctx)
	stop()
	_ = logger.Close()
	if err != nil {
		if !errors.Is(err, errRunFailed) {
			_, _ = fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

// cli holds what every subcommand shares.
type cli struct {
	in       io.Reader
	out      io.Writer
	errOut   io.Writer
	cfg      *config.Config
	log      logger.Logger
	initLogs bool
}

func newCLI(in io.Reader, out, errOut io.Writer) *cli {
	return &cli{in: in, out: out, errOut: errOut, initLogs: true}
}

func (c *cli) root() *cobra.Command {
	root := &cobra.Command{
		Use:           "trainingbot",
		Short:         "Assign a random training module to everyone on shift and submit it",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd.Context())
		},
	}
	root.SetIn(c.in)
	root.SetOut(c.out)
	root.SetErr(c.errOut)
	root.AddCommand(
		c.runCmd(),
		c.previewCmd(),
		c.rosterCmd(),
		c.loginCmd(),
		c.unitsCmd(),
		c.historyCmd(),
		c.serveCmd(),
	)
	return root
}

// setup loads the configuration (defaults -> optional file -> env) and
// initializes logging.
func (c *cli) setup(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	c.cfg = cfg

	if c.initLogs {
		if err := logger.Init(logger.WithOutput(c.errOut), logger.WithFile(cfg.LogFile), logger.WithJSON(cfg.LogJSON)); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
	}
	c.log = logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		c.log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	return nil
}
