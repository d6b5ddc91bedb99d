// juribatch is the scheduled batch runner: it drives the synchronization
// pipeline over both upstream sources, the zoning repair sweep, and the ops
// endpoint. It takes no interactive input; the scheduler owns concurrency
// (at most one run per source at a time).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"jurisync/internal/affaire"
	"jurisync/internal/docstore"
	"jurisync/internal/duplicate"
	"jurisync/internal/lifecycle"
	"jurisync/internal/mirror"
	"jurisync/internal/normalize"
	"jurisync/internal/ops"
	"jurisync/internal/orchestrator"
	"jurisync/internal/platform/config"
	"jurisync/internal/platform/kafka"
	"jurisync/internal/platform/logger"
	"jurisync/internal/platform/metrics"
	"jurisync/internal/platform/redis"
	"jurisync/internal/publicity"
	"jurisync/internal/reviewqueue"
	"jurisync/internal/runstate"
	"jurisync/internal/source"
	"jurisync/internal/zoning"
)

const externalCallTimeout = 30 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "juribatch",
		Short:         "Batch pipeline over the jurinet and jurica upstreams",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newSyncCmd(), newZoningSweepCmd(), newOpsCmd())
	return root
}

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one batch per configured source",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWithWatchdog(func(ctx context.Context, app *application) error {
				return app.sync(ctx)
			})
		},
	}
}

func newZoningSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "zoning-sweep",
		Short: "Re-attempt zoning for decisions with missing or failed zones",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWithWatchdog(func(ctx context.Context, app *application) error {
				repaired, attempted, err := app.normalizer.SweepZoning(ctx)
				if err != nil {
					return err
				}
				app.logger.Info("zoning sweep complete", "attempted", attempted, "repaired", repaired)
				return nil
			})
		},
	}
}

func newOpsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ops",
		Short: "Serve health and metrics endpoints until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.FromEnv()
			log := logger.New()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := newApplication(ctx, cfg)
			if err != nil {
				return err
			}
			defer app.close()

			return app.serveOps(ctx, log)
		},
	}
}

// runWithWatchdog builds the application and runs the job under the
// configured wall-clock limit. Deadline-triggered cancellation exits
// non-zero; interrupt is benign cancellation and exits zero.
func runWithWatchdog(job func(context.Context, *application) error) error {
	cfg := config.FromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.RunTimeout)
	defer cancel()

	app, err := newApplication(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.close()

	// The ops endpoint lives only as long as the job; completing the job
	// cancels runCtx so the server drains and the group returns.
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	g, gctx := errgroup.WithContext(runCtx)
	if cfg.OpsAddr != "" {
		g.Go(func() error { return app.serveOps(gctx, app.logger) })
	}
	var jobErr error
	g.Go(func() error {
		defer cancelRun()
		jobErr = job(gctx, app)
		return jobErr
	})
	groupErr := g.Wait()

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		app.logger.Error("run exceeded wall-clock limit, aborting", "limit", cfg.RunTimeout)
		if jobErr != nil {
			return jobErr
		}
		return ctx.Err()
	case errors.Is(ctx.Err(), context.Canceled):
		app.logger.Info("run interrupted, exiting cleanly")
		return nil
	case jobErr != nil:
		return jobErr
	default:
		return groupErr
	}
}

// application holds the wired pipeline for one process.
type application struct {
	cfg    config.Config
	logger *slog.Logger

	store    *docstore.PostgresStore
	cache    *redis.Client
	producer *kafka.Producer
	upstream []closer

	normalizer    *normalize.Service
	orchestrators []*orchestrator.Service
}

type closer interface{ Close() error }

func newApplication(ctx context.Context, cfg config.Config) (*application, error) {
	log := logger.New()

	store, err := docstore.OpenPostgres(ctx, cfg.DocStoreDSN, cfg.ReadOnly, log)
	if err != nil {
		return nil, fmt.Errorf("open document store: %w", err)
	}

	cache, err := redis.New(ctx, cfg.RedisURL)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open redis: %w", err)
	}

	app := &application{cfg: cfg, logger: log, store: store, cache: cache}

	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(ctx, cfg.KafkaBrokers, cfg.LifecycleTopic)
		if err != nil {
			app.close()
			return nil, fmt.Errorf("open kafka producer: %w", err)
		}
		app.producer = producer
	}

	zoner := zoning.NewHTTPClient(cfg.ZoningURL, externalCallTimeout)
	review := reviewqueue.NewHTTPClient(cfg.ReviewQueueURL, externalCallTimeout)

	stateStore, err := runstate.NewStore(cfg.StateDir)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("open state directory: %w", err)
	}

	mirrorSvc := mirror.New(store.Collection(docstore.ColMirror), log)
	app.normalizer = normalize.New(
		store.Collection(docstore.ColDecisions),
		store.Collection(docstore.ColZoningErrors),
		zoner,
		log,
	)
	taxonomy := publicity.NewTaxonomyStore(
		store.Collection(docstore.ColTaxonomy), cache, cfg.TaxonomyTTL, log)

	var lifecycleOpts []lifecycle.Option
	if app.producer != nil {
		lifecycleOpts = append(lifecycleOpts, lifecycle.WithPublisher(app.producer))
	}
	lifecycleIdx := lifecycle.New(store.Collection(docstore.ColLifecycle), log, lifecycleOpts...)

	mtr := metrics.New()

	jurinetDB, err := source.Open(ctx, cfg.JurinetDSN)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("open jurinet: %w", err)
	}
	app.upstream = append(app.upstream, jurinetDB)

	juricaDB, err := source.Open(ctx, cfg.JuricaDSN)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("open jurica: %w", err)
	}
	app.upstream = append(app.upstream, juricaDB)

	clusterer := affaire.NewClusterer(
		affaire.NewStore(store.Collection(docstore.ColAffaires)),
		store.Collection(docstore.ColMirror),
		zoner,
		affaire.NewSQLCaseRegistry(jurinetDB),
		log,
	)
	duplicates := duplicate.NewResolver(store.Collection(docstore.ColMirror), log)

	readers := []source.Reader{
		source.NewJurinetReader(jurinetDB),
		source.NewJuricaReader(juricaDB),
	}
	for _, reader := range readers {
		app.orchestrators = append(app.orchestrators, orchestrator.New(orchestrator.Params{
			Reader:     reader,
			Mirror:     mirrorSvc,
			Duplicates: duplicates,
			Clusterer:  clusterer,
			Normalizer: app.normalizer,
			Taxonomy:   taxonomy,
			Lifecycle:  lifecycleIdx,
			Review:     review,
			State:      stateStore,
			Metrics:    mtr,
			Logger:     log,

			BatchSize:           int64(cfg.BatchSize),
			EmptyRoundThreshold: cfg.EmptyRoundThreshold,
			OffsetCeiling:       cfg.OffsetCeiling,
		}))
	}

	return app, nil
}

// sync runs the two sources strictly in sequence; the pipeline has no
// intra-batch parallelism.
func (a *application) sync(ctx context.Context) error {
	for _, orch := range a.orchestrators {
		if _, err := orch.RunBatch(ctx); err != nil {
			return err
		}
		if _, err := orch.SyncNew(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (a *application) serveOps(ctx context.Context, log *slog.Logger) error {
	srv := ops.NewServer(a.cfg.OpsAddr, ops.NewRouter(a.store, a.cache))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	log.Info("ops endpoint listening", "addr", a.cfg.OpsAddr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (a *application) close() {
	for _, db := range a.upstream {
		db.Close()
	}
	if a.producer != nil {
		a.producer.Close()
	}
	if a.cache != nil {
		a.cache.Close()
	}
	a.store.Close()
}
