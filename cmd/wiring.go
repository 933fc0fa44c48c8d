package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/trainingbot/internal/adapters/content"
	"github.com/okian/trainingbot/internal/adapters/minicad"
	"github.com/okian/trainingbot/internal/adapters/mq/worker"
	"github.com/okian/trainingbot/internal/adapters/repository"
	"github.com/okian/trainingbot/internal/adapters/runlog"
	"github.com/okian/trainingbot/internal/adapters/vectorsolutions"
	service "github.com/okian/trainingbot/internal/app"
	"github.com/okian/trainingbot/pkg/logger"
)

// deps are the components opened for one command. close releases them.
type deps struct {
	svc     *service.Service
	store   repository.Store
	closers []func() error
}

func (d *deps) close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		errs = append(errs, d.closers[i]())
	}
	return errors.Join(errs...)
}

// openStore opens the history ledger.
func (c *cli) openStore(ctx context.Context) (repository.Store, error) {
	store, err := repository.OpenSQLite(ctx, c.cfg.HistoryDB)
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", c.cfg.HistoryDB, err)
	}
	return store, nil
}

func (c *cli) fetcher() *minicad.Client {
	return minicad.NewClient(c.cfg.MiniCadURL,
		minicad.WithCredentials(c.cfg.MiniCadUser, c.cfg.MiniCadPass),
		minicad.WithTimeout(c.cfg.FeedTimeout),
		minicad.WithRetries(c.cfg.FeedRetries),
		minicad.WithLogger(c.log.Named("minicad")),
	)
}

// platform builds the browser client for the configured form.
func (c *cli) platform(ctx context.Context) *vectorsolutions.Client {
	sel, unknown := vectorsolutions.DefaultSelectors().WithOverrides(c.cfg.FormSelectors)
	if len(unknown) > 0 {
		c.log.Warn(ctx, "ignoring unknown form selector keys", logger.Any("keys", unknown))
	}
	return vectorsolutions.NewClient(c.cfg.LoginURL, c.cfg.FormURL,
		vectorsolutions.WithCredentials(c.cfg.VSUser, c.cfg.VSPass),
		vectorsolutions.WithAuthState(c.cfg.AuthStatePath),
		vectorsolutions.WithHeadless(c.cfg.Headless),
		vectorsolutions.WithBrowserBin(c.cfg.BrowserBin),
		vectorsolutions.WithNavTimeout(c.cfg.NavTimeout),
		vectorsolutions.WithArtifactDir(c.cfg.ArtifactDir),
		vectorsolutions.WithSelectors(sel),
		vectorsolutions.WithLogger(c.log.Named("vectorsolutions")),
	)
}

// sinks returns every configured run sink. An S3 archive that cannot be
// configured is skipped with a warning so the local sinks still record.
func (c *cli) sinks(ctx context.Context, store repository.Store) []runlog.Sink {
	sinks := []runlog.Sink{runlog.NewJSONL(c.cfg.ReportPath), runlog.NewLedger(store)}
	if c.cfg.S3Bucket == "" {
		return sinks
	}
	archive, err := runlog.NewS3Archive(ctx, runlog.S3Config{
		Bucket:   c.cfg.S3Bucket,
		Region:   c.cfg.S3Region,
		Endpoint: c.cfg.S3Endpoint,
		Prefix:   c.cfg.S3Prefix,
	})
	if err != nil {
		c.log.Warn(ctx, "S3 archive disabled", logger.String("bucket", c.cfg.S3Bucket), logger.Error(err))
		return sinks
	}
	return append(sinks, archive)
}

// build wires the service. The platform client is only created when the
// command may submit.
func (c *cli) build(ctx context.Context, submit bool) (*deps, error) {
	if err := c.cfg.RequireFeed(); err != nil {
		return nil, err
	}
	if submit {
		if err := c.cfg.RequirePlatform(); err != nil {
			return nil, err
		}
	}

	store, err := c.openStore(ctx)
	if err != nil {
		return nil, err
	}
	d := &deps{store: store, closers: []func() error{store.Close}}

	opts := []service.Option{
		service.WithLogger(c.log.Named("service")),
		service.WithModules(content.NewFileLoader(content.WithStrictTopics(c.cfg.StrictTopics)), c.cfg.ModulesPath),
		service.WithFetcher(c.fetcher()),
		service.WithRecorder(runlog.NewRecorder(c.sinks(ctx, store)...)),
		service.WithHistory(store),
		service.WithUnits(c.cfg.Units),
		service.WithSelectionPath(c.cfg.SelectionPath),
		service.WithPolicy(c.cfg.Policy),
		service.WithSeed(c.cfg.Seed),
		service.WithWorkerCount(c.cfg.WorkerCount),
		service.WithQueueSize(c.cfg.EventQueueSize),
		service.WithWorkerOptions(
			worker.WithRetries(c.cfg.SubmitRetries),
			worker.WithRate(c.cfg.SubmitRate),
			worker.WithSubmitTimeout(c.cfg.SubmitTimeout),
			worker.WithLogger(c.log.Named("worker")),
		),
		service.WithMetricsExport(c.cfg.MetricsTextfile, c.cfg.PushgatewayURL),
	}
	if submit {
		vs := c.platform(ctx)
		d.closers = append(d.closers, vs.Close)
		opts = append(opts, service.WithSubmitter(vs))
	}
	d.svc = service.New(opts...)
	return d, nil
}
