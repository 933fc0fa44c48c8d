package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/trainingbot/internal/adapters/http/api"
	"github.com/okian/trainingbot/internal/adapters/http/swagger"
	"github.com/okian/trainingbot/internal/adapters/runlog"
	"github.com/okian/trainingbot/internal/adapters/tui"
	"github.com/okian/trainingbot/internal/domain/model"
	"github.com/okian/trainingbot/internal/domain/types"
	"github.com/okian/trainingbot/pkg/logger"
)

const defaultHistoryLimit = 10

func (c *cli) runCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Load, fetch, randomize, submit and record one run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			d, err := c.build(ctx, !dryRun)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := d.close(); cerr != nil {
					c.log.Warn(ctx, "cleanup failed", logger.Error(cerr))
				}
			}()

			res, _ := d.svc.Run(ctx, dryRun)
			_, _ = fmt.Fprintf(c.out, "run %s %s: attempted=%d succeeded=%d failed=%d\n",
				res.ID, res.Status(), res.Attempted, res.Succeeded, res.Failed)
			for _, f := range res.Failures {
				who := f.PersonnelName
				if who == "" {
					who = "-"
				}
				_, _ = fmt.Fprintf(c.out, "  %s %s %s: %s\n", f.Stage, f.Kind, who, f.Message)
			}
			if !res.OK() {
				return errRunFailed
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "randomize and record without submitting to the platform")
	return cmd
}

func (c *cli) previewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "preview",
		Short: "Print today's assignments without submitting or recording",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			d, err := c.build(ctx, false)
			if err != nil {
				return err
			}
			defer func() { _ = d.close() }()

			plan, err := d.svc.Preview(ctx)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(c.out, "%s policy=%s assignments=%d\n", plan.RunDate.Format(time.DateOnly), plan.Policy, len(plan.Assignments))
			if len(plan.MissingUnits) > 0 {
				_, _ = fmt.Fprintf(c.out, "missing units: %s\n", strings.Join(plan.MissingUnits, ", "))
			}
			tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "NAME\tUNIT\tMODULE\tTOPIC")
			for _, a := range plan.Assignments {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", a.Personnel.Name, a.Personnel.Unit, a.Module.Label(), a.Module.Topic)
			}
			return tw.Flush()
		},
	}
}

func (c *cli) rosterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "roster",
		Short: "Fetch and print the normalized roster by unit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.cfg.RequireFeed(); err != nil {
				return err
			}
			r, err := c.fetcher().Fetch(cmd.Context())
			if err != nil {
				return err
			}
			for _, u := range r.Units {
				_, _ = fmt.Fprintf(c.out, "%s (%d)\n", u.Name, len(u.Personnel))
				for _, p := range u.Personnel {
					_, _ = fmt.Fprintf(c.out, "  %s\n", p.Name)
				}
			}
			return nil
		},
	}
}

func (c *cli) loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Sign in to the platform in a visible browser and save the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.cfg.RequirePlatform(); err != nil {
				return err
			}
			return c.platform(cmd.Context()).Bootstrap(cmd.Context(), c.in, c.out)
		},
	}
}

func (c *cli) unitsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "units",
		Short: "Choose which units receive assignments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := c.cfg.RequireFeed(); err != nil {
				return err
			}
			r, err := c.fetcher().Fetch(ctx)
			if err != nil {
				return err
			}
			current, err := tui.LoadSelection(c.cfg.SelectionPath)
			if err != nil {
				c.log.Warn(ctx, "starting from an empty selection", logger.Error(err))
			}
			units, err := tui.Pick(ctx, r, current, c.in, c.out)
			if errors.Is(err, tui.ErrCancelled) {
				_, _ = fmt.Fprintln(c.out, "selection unchanged")
				return nil
			}
			if err != nil {
				return err
			}
			if err := tui.SaveSelection(c.cfg.SelectionPath, units); err != nil {
				return err
			}
			if len(units) == 0 {
				_, _ = fmt.Fprintln(c.out, "saved: all units")
				return nil
			}
			_, _ = fmt.Fprintf(c.out, "saved: %s\n", strings.Join(units, ", "))
			return nil
		},
	}
}

func (c *cli) historyCmd() *cobra.Command {
	var (
		limit      int
		fromReport bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs from the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if limit < 1 {
				return fmt.Errorf("--limit must be positive, got %d", limit)
			}
			runs, err := c.recentRuns(ctx, limit, fromReport)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "DATE\tSTATUS\tPOLICY\tATTEMPTED\tSUCCEEDED\tFAILED\tID")
			for _, s := range types.SummarizeAll(runs) {
				status := s.Status
				if s.DryRun {
					status += " (dry run)"
				}
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
					s.RunDate, status, s.Policy, s.Attempted, s.Succeeded, s.Failed, s.ID)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", defaultHistoryLimit, "number of runs to show")
	cmd.Flags().BoolVar(&fromReport, "report", false, "read the JSONL report instead of the ledger")
	return cmd
}

// recentRuns returns up to limit runs, newest first.
func (c *cli) recentRuns(ctx context.Context, limit int, fromReport bool) ([]model.RunResult, error) {
	if fromReport {
		runs, err := runlog.ReadJSONL(c.cfg.ReportPath)
		if err != nil {
			return nil, err
		}
		slices.Reverse(runs)
		return runs[:min(limit, len(runs))], nil
	}
	store, err := c.openStore(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = store.Close() }()
	return store.Recent(ctx, limit)
}

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve metrics and run history over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			mux := http.NewServeMux()
			swagger.Register(mux)
			api.NewServer(store, c.cfg.MaxRunsLimit).Register(mux)
			return api.Serve(ctx, c.cfg.Addr, mux)
		},
	}
}
