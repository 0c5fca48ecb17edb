// Package main provides the reach-api ingestion daemon: cron-driven product
// ingestion, weather sweeps, retention pruning, and the one-shot reference
// and backfill modes.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/driftwise/reach-api/internal/adapter/store"
	"github.com/driftwise/reach-api/internal/adapter/store/csv"
	"github.com/driftwise/reach-api/internal/adapter/store/postgres"
	"github.com/driftwise/reach-api/internal/config"
	"github.com/driftwise/reach-api/internal/ingest"
	"github.com/driftwise/reach-api/internal/logging"
	"github.com/driftwise/reach-api/internal/nwm"
	"github.com/driftwise/reach-api/internal/weather"
)

const version = "0.1.0"

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	loadRef := flag.Bool("load-reference", false, "Load reference CSVs into the store and exit")
	once := flag.Bool("once", false, "Ingest the latest cycle of every product and exit")
	backfill := flag.String("backfill", "", "Product to backfill (requires -from; see -from/-to)")
	fromStr := flag.String("from", "", "Backfill range start, RFC3339")
	toStr := flag.String("to", "", "Backfill range end, RFC3339 (default: now)")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus scrape address (empty disables)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("reach-api ingestor version %s\n", version)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	opts := options{
		loadReference: *loadRef,
		once:          *once,
		backfill:      *backfill,
		from:          *fromStr,
		to:            *toStr,
		metricsAddr:   *metricsAddr,
	}
	if err := run(cfg, opts, log); err != nil {
		log.Fatal("ingestor exited", zap.Error(err))
	}
}

type options struct {
	loadReference bool
	once          bool
	backfill      string
	from, to      string
	metricsAddr   string
}

func run(cfg *config.Config, opts options, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Connect(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	st := postgres.New(db, postgres.Options{
		BatchSize:    cfg.Ingest.BatchSize,
		BatchTimeout: cfg.Ingest.BatchTimeout,
		BatchRetries: cfg.Ingest.BatchRetries,
	}, log)

	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	if opts.loadReference {
		return loadReference(ctx, cfg.Reference.Dir, st, log)
	}

	if cfg.Archive.BaseURL == "" {
		return fmt.Errorf("archive.base_url is not configured")
	}

	cache, err := store.LoadCache(ctx, st)
	if err != nil {
		return fmt.Errorf("reference cache: %w", err)
	}
	if cache.Len() == 0 {
		log.Warn("reference tables are empty; run with -load-reference first")
	}

	fetcher := nwm.NewFetcher(cfg.Archive, log)
	validator := nwm.NewValidator(cache.FeatureSet(), cfg.Ingest.ExpectedReaches, cfg.Ingest.CountTolerance, log)
	pipeline := ingest.NewPipeline(fetcher, validator, st, st, cfg.Ingest, log)

	var weatherJob *ingest.WeatherJob
	if cfg.Weather.BaseURL != "" {
		weatherJob = ingest.NewWeatherJob(weather.NewClient(cfg.Weather), st, cache, cfg.Weather.Concurrency, log)
	}

	sched := ingest.NewScheduler(pipeline, weatherJob, st, cfg.Ingest, cfg.Retention, cfg.Weather.Schedule, log)

	if opts.backfill != "" {
		return runBackfill(ctx, sched, opts)
	}
	if opts.once {
		return sched.RunOnce(ctx)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(gctx) })

	if opts.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: opts.metricsAddr, Handler: mux}
		g.Go(func() error {
			log.Info("metrics listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("ingestor stopped")
	return nil
}

// runBackfill replays every schedule cycle of one product over the flag
// range.
func runBackfill(ctx context.Context, sched *ingest.Scheduler, opts options) error {
	product, err := nwm.ParseProduct(opts.backfill)
	if err != nil {
		return err
	}
	if opts.from == "" {
		return fmt.Errorf("backfill requires -from")
	}
	from, err := time.Parse(time.RFC3339, opts.from)
	if err != nil {
		return fmt.Errorf("invalid -from: %w", err)
	}
	to := time.Now().UTC()
	if opts.to != "" {
		if to, err = time.Parse(time.RFC3339, opts.to); err != nil {
			return fmt.Errorf("invalid -to: %w", err)
		}
	}
	return sched.Backfill(ctx, product, from, to)
}

// loadReference bulk-loads the flowline, monthly statistics and centroid
// CSVs into the store.
func loadReference(ctx context.Context, dir string, st *postgres.Store, log *zap.Logger) error {
	ref := csv.NewReferenceStore(dir)

	flowlines, err := ref.LoadFlowlines()
	if err != nil {
		return fmt.Errorf("load flowlines: %w", err)
	}
	stats, err := ref.LoadMonthlyStats()
	if err != nil {
		return fmt.Errorf("load monthly statistics: %w", err)
	}
	centroids, err := ref.LoadCentroids()
	if err != nil {
		return fmt.Errorf("load centroids: %w", err)
	}

	if err := st.LoadReference(ctx, flowlines, stats, centroids); err != nil {
		return err
	}
	log.Info("reference tables loaded",
		zap.Int("flowlines", len(flowlines)),
		zap.Int("monthly_stats", len(stats)),
		zap.Int("centroids", len(centroids)))
	return nil
}
