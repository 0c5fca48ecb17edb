package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/driftwise/reach-api/internal/adapter/store"
	"github.com/driftwise/reach-api/internal/config"
	"github.com/driftwise/reach-api/internal/metrics"
	"github.com/driftwise/reach-api/internal/nwm"
)

// triggerSpecs fire each product's trigger shortly after its typical
// publication lag. An early trigger is harmless: the unpublished cycle is
// skipped and the next trigger catches up.
var triggerSpecs = map[nwm.Product]string{
	nwm.ProductAnalysis:      "15 * * * *",
	nwm.ProductShortForecast: "25 * * * *",
	nwm.ProductMediumBlend:   "45 0,6,12,18 * * *",
	nwm.ProductNoAssim:       "55 1 * * *",
}

// RetentionStore is the pruning surface of the relational store.
type RetentionStore interface {
	PruneHydroBefore(ctx context.Context, cutoff time.Time) (int64, error)
	PruneTemperatureBefore(ctx context.Context, cutoff time.Time) (int64, error)
	PruneIngestionLogBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Scheduler owns the ingestion clock: cron triggers enqueue cycle jobs onto
// per-product queues, one serial worker per product drains its queue, and
// the weather and retention jobs run on their own schedules. Serial workers
// keep a product's cycles ordered while different products load in
// parallel.
type Scheduler struct {
	pipeline  *Pipeline
	weather   *WeatherJob // nil disables the weather sweep
	retention RetentionStore
	cfg       config.IngestConfig
	retCfg    config.RetentionConfig
	schedule  string // weather cron spec
	queues    map[nwm.Product]chan nwm.CycleJob
	log       *zap.Logger
}

// NewScheduler wires the scheduler. weatherJob may be nil when no weather
// endpoint is configured.
func NewScheduler(pipeline *Pipeline, weatherJob *WeatherJob, retention RetentionStore, cfg config.IngestConfig, retCfg config.RetentionConfig, weatherSchedule string, log *zap.Logger) *Scheduler {
	queues := make(map[nwm.Product]chan nwm.CycleJob, len(nwm.Products()))
	for _, p := range nwm.Products() {
		// Room for a catch-up burst without blocking the cron thread.
		queues[p] = make(chan nwm.CycleJob, 8)
	}
	return &Scheduler{
		pipeline:  pipeline,
		weather:   weatherJob,
		retention: retention,
		cfg:       cfg,
		retCfg:    retCfg,
		schedule:  weatherSchedule,
		queues:    queues,
		log:       log.Named("scheduler"),
	}
}

// Run starts the cron triggers and product workers and blocks until the
// context is cancelled. On startup every product's latest cycle is enqueued
// so a restarted ingestor catches up without waiting for the next trigger.
func (s *Scheduler) Run(ctx context.Context) error {
	s.enqueueLatest(time.Now())

	c := cron.New(cron.WithLocation(time.UTC))
	for _, product := range nwm.Products() {
		spec := triggerSpecs[product]
		if _, err := c.AddFunc(spec, func() { s.enqueueLatestFor(product, time.Now()) }); err != nil {
			return fmt.Errorf("schedule %s trigger: %w", product, err)
		}
	}
	if s.weather != nil {
		if _, err := c.AddFunc(s.schedule, func() { s.runWeather(ctx) }); err != nil {
			return fmt.Errorf("schedule weather sweep: %w", err)
		}
	}
	if s.retention != nil && s.retCfg.Schedule != "" {
		if _, err := c.AddFunc(s.retCfg.Schedule, func() { s.runRetention(ctx) }); err != nil {
			return fmt.Errorf("schedule retention sweep: %w", err)
		}
	}
	c.Start()
	s.log.Info("scheduler started", zap.Int("products", len(s.queues)))
	defer func() { <-c.Stop().Done() }()

	g, gctx := errgroup.WithContext(ctx)
	for product, queue := range s.queues {
		g.Go(func() error { return s.work(gctx, product, queue) })
	}
	return g.Wait()
}

// work drains one product's queue serially so its cycles never interleave.
func (s *Scheduler) work(ctx context.Context, product nwm.Product, queue <-chan nwm.CycleJob) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case job := <-queue:
			jobCtx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
			// Failures are logged and recorded by the pipeline; the
			// worker just moves on to the next cycle.
			_, _ = s.pipeline.RunJob(jobCtx, job)
			cancel()
		}
	}
}

// enqueueLatest enqueues the most recent cycle of every product.
func (s *Scheduler) enqueueLatest(now time.Time) {
	for _, product := range nwm.Products() {
		s.enqueueLatestFor(product, now)
	}
}

// enqueueLatestFor enqueues a product's most recent cycle, applying any
// configured forecast offset overrides. A full queue drops the trigger; the
// next one recomputes the latest cycle and catches up.
func (s *Scheduler) enqueueLatestFor(product nwm.Product, now time.Time) {
	cycleTime, err := product.LatestCycle(now)
	if err != nil {
		s.log.Error("no schedule for product", zap.String("product", string(product)), zap.Error(err))
		return
	}
	job, err := nwm.NewCycleJob(product, cycleTime, s.cfg.Domain)
	if err != nil {
		s.log.Error("cannot build cycle job",
			zap.String("product", string(product)),
			zap.Time("cycle_time", cycleTime),
			zap.Error(err))
		return
	}
	job = s.applyOffsets(job)

	select {
	case s.queues[product] <- job:
		s.log.Debug("cycle enqueued", zap.String("job", job.String()))
	default:
		s.log.Warn("queue full, dropping trigger", zap.String("job", job.String()))
	}
}

// applyOffsets overrides the schedule's default forecast offsets with the
// configured ones.
func (s *Scheduler) applyOffsets(job nwm.CycleJob) nwm.CycleJob {
	switch job.Product {
	case nwm.ProductShortForecast:
		if len(s.cfg.ShortForecastOffsets) > 0 {
			return job.WithOffsets(s.cfg.ShortForecastOffsets)
		}
	case nwm.ProductMediumBlend:
		if len(s.cfg.MediumBlendOffsets) > 0 {
			return job.WithOffsets(s.cfg.MediumBlendOffsets)
		}
	}
	return job
}

func (s *Scheduler) runWeather(ctx context.Context) {
	jobCtx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
	defer cancel()
	if err := s.weather.Run(jobCtx); err != nil {
		s.log.Error("weather sweep failed", zap.Error(err))
	}
}

// runRetention prunes each table past its configured window.
func (s *Scheduler) runRetention(ctx context.Context) {
	jobCtx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
	defer cancel()
	now := time.Now().UTC()

	sweeps := []struct {
		table  string
		cutoff time.Time
		prune  func(context.Context, time.Time) (int64, error)
	}{
		{"hydro_records", now.AddDate(0, 0, -s.retCfg.HydroDays), s.retention.PruneHydroBefore},
		{"temperature_records", now.AddDate(0, 0, -s.retCfg.WeatherDays), s.retention.PruneTemperatureBefore},
		{"ingestion_log", now.AddDate(0, 0, -s.retCfg.LogDays), s.retention.PruneIngestionLogBefore},
	}
	for _, sweep := range sweeps {
		pruned, err := sweep.prune(jobCtx, sweep.cutoff)
		if err != nil {
			s.log.Error("retention sweep failed",
				zap.String("table", sweep.table), zap.Error(err))
			continue
		}
		metrics.RetentionPruned.WithLabelValues(sweep.table).Add(float64(pruned))
		if pruned > 0 {
			s.log.Info("retention pruned rows",
				zap.String("table", sweep.table),
				zap.Int64("rows", pruned),
				zap.Time("cutoff", sweep.cutoff))
		}
	}
}

// RunOnce ingests the latest cycle of every product serially, sweeps the
// weather endpoint once and returns. Used by the ingestor's one-shot mode.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	var firstErr error
	for _, product := range nwm.Products() {
		cycleTime, err := product.LatestCycle(time.Now())
		if err != nil {
			return err
		}
		job, err := nwm.NewCycleJob(product, cycleTime, s.cfg.Domain)
		if err != nil {
			return err
		}
		job = s.applyOffsets(job)

		jobCtx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
		_, err = s.pipeline.RunJob(jobCtx, job)
		cancel()
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%s: %w", job, err)
		}
	}
	if s.weather != nil {
		jobCtx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
		err := s.weather.Run(jobCtx)
		cancel()
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Backfill replays every cycle of one product in [from, to], oldest first,
// serially. Missing archive cycles are recorded as skips like any other
// unpublished cycle.
func (s *Scheduler) Backfill(ctx context.Context, product nwm.Product, from, to time.Time) error {
	schedule, ok := nwm.ScheduleFor(product)
	if !ok {
		return fmt.Errorf("unknown product %q", product)
	}
	from = from.UTC().Truncate(time.Hour)
	to = to.UTC().Truncate(time.Hour)
	if to.Before(from) {
		return fmt.Errorf("backfill range ends (%s) before it starts (%s)", to, from)
	}

	var failures int
	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	for !day.After(to) {
		for _, hour := range schedule.CycleHours {
			cycleTime := day.Add(time.Duration(hour) * time.Hour)
			if cycleTime.Before(from) || cycleTime.After(to) {
				continue
			}
			if err := ctx.Err(); err != nil {
				return err
			}

			job, err := nwm.NewCycleJob(product, cycleTime, s.cfg.Domain)
			if err != nil {
				return err
			}
			job = s.applyOffsets(job)

			jobCtx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
			status, _ := s.pipeline.RunJob(jobCtx, job)
			cancel()
			if status == store.RunFailed {
				failures++
			}
		}
		day = day.AddDate(0, 0, 1)
	}

	if failures > 0 {
		return fmt.Errorf("backfill finished with %d failed cycles", failures)
	}
	return nil
}
