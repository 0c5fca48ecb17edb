// Package ingest drives scheduled ingestion: cron triggers, per-product
// workers, the cycle job pipeline, the weather probe job and retention. Every
// job attempt is bracketed in the ingestion log so operators can audit what
// ran, what loaded and what went wrong.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/driftwise/reach-api/internal/adapter/store"
	"github.com/driftwise/reach-api/internal/config"
	"github.com/driftwise/reach-api/internal/domain"
	"github.com/driftwise/reach-api/internal/metrics"
	"github.com/driftwise/reach-api/internal/nwm"
)

// Failure classes recorded as error message prefixes in the run log. The
// class tells an operator where to look: the archive, the artifact, the
// model output or the store.
const (
	classTransient = "transient"
	classMalformed = "malformed"
	classInvalid   = "invalid"
	classStore     = "store"
	classTimeout   = "timeout"
)

// Pipeline executes one cycle job end to end: fetch, parse, validate,
// normalize, load, with the attempt bracketed in the ingestion log.
type Pipeline struct {
	fetcher   *nwm.Fetcher
	validator *nwm.Validator
	loader    store.Loader
	runs      store.RunLog
	cfg       config.IngestConfig
	log       *zap.Logger

	mu      sync.Mutex
	streaks map[nwm.Product]int // consecutive malformed or invalid cycles
}

// NewPipeline wires the pipeline stages.
func NewPipeline(fetcher *nwm.Fetcher, validator *nwm.Validator, loader store.Loader, runs store.RunLog, cfg config.IngestConfig, log *zap.Logger) *Pipeline {
	return &Pipeline{
		fetcher:   fetcher,
		validator: validator,
		loader:    loader,
		runs:      runs,
		cfg:       cfg,
		log:       log.Named("pipeline"),
		streaks:   make(map[nwm.Product]int),
	}
}

// RunJob executes one cycle job. The returned status is what the run log
// records; the error is non-nil only for failed runs. An unpublished cycle
// is a skip, never a failure: the next trigger catches up.
func (p *Pipeline) RunJob(ctx context.Context, job nwm.CycleJob) (store.RunStatus, error) {
	start := time.Now()
	run, err := p.runs.StartRun(ctx, string(job.Product), job.CycleTime, job.Domain)
	if err != nil {
		return store.RunFailed, fmt.Errorf("start run for %s: %w", job, err)
	}

	status, loaded, jobErr := p.execute(ctx, job)
	if jobErr != nil && errors.Is(jobErr, context.DeadlineExceeded) {
		// The job deadline expired mid-stage; lead with the timeout class
		// so the log row names the deadline, not the stage it happened
		// to be in.
		jobErr = fmt.Errorf("%s: %w", classTimeout, jobErr)
	}
	run.Status = status
	run.RecordsIngested = loaded
	if jobErr != nil {
		msg := jobErr.Error()
		run.ErrorMessage = &msg
	}
	if err := p.runs.CompleteRun(ctx, run); err != nil {
		p.log.Error("failed to finalize run log row",
			zap.String("job", job.String()), zap.Error(err))
	}

	metrics.IngestJobsTotal.WithLabelValues(string(job.Product), string(status)).Inc()
	metrics.IngestJobDuration.WithLabelValues(string(job.Product)).Observe(time.Since(start).Seconds())
	if loaded > 0 {
		metrics.RecordsLoaded.WithLabelValues(string(job.Product)).Add(float64(loaded))
	}

	switch status {
	case store.RunSuccess:
		p.log.Info("cycle ingested",
			zap.String("job", job.String()),
			zap.Int64("records", loaded),
			zap.Duration("elapsed", time.Since(start)))
		return status, nil
	case store.RunSkipped:
		p.log.Info("cycle skipped", zap.String("job", job.String()), zap.Error(jobErr))
		return status, nil
	default:
		p.log.Error("cycle failed", zap.String("job", job.String()), zap.Error(jobErr))
		return status, jobErr
	}
}

// execute runs the pipeline stages and classifies any failure. Hydro records
// of the whole cycle land in one transaction; the auxiliary spread samples
// follow in their own.
func (p *Pipeline) execute(ctx context.Context, job nwm.CycleJob) (store.RunStatus, int64, error) {
	artifacts, err := p.fetcher.Fetch(ctx, job)
	if err != nil {
		if errors.Is(err, nwm.ErrNotPublished) {
			return store.RunSkipped, 0, err
		}
		return store.RunFailed, 0, fmt.Errorf("%s: %w", classTransient, err)
	}

	frames := make([]*nwm.Frame, 0, len(artifacts))
	for _, artifact := range artifacts {
		frame, err := nwm.ParseArtifact(artifact)
		if err != nil {
			p.noteMalformed(job.Product)
			return store.RunFailed, 0, fmt.Errorf("%s: %w", classMalformed, err)
		}
		if err := p.validator.Validate(frame); err != nil {
			p.noteMalformed(job.Product)
			return store.RunFailed, 0, fmt.Errorf("%s: %w", classInvalid, err)
		}
		frames = append(frames, frame)
	}

	records, err := nwm.NormalizeArtifacts(frames, time.Now().UTC())
	if err != nil {
		p.noteMalformed(job.Product)
		return store.RunFailed, 0, fmt.Errorf("%s: %w", classMalformed, err)
	}
	records = dedupeRecords(records)

	loaded, err := p.loader.BulkUpsertHydro(ctx, records)
	if err != nil {
		return store.RunFailed, 0, fmt.Errorf("%s: %w", classStore, err)
	}

	for _, frame := range frames {
		samples := nwm.SpreadSamples(frame)
		if len(samples) == 0 {
			continue
		}
		if _, err := p.loader.BulkUpsertSpread(ctx, samples); err != nil {
			return store.RunFailed, loaded, fmt.Errorf("%s: %w", classStore, err)
		}
	}

	p.resetStreak(job.Product)
	return store.RunSuccess, loaded, nil
}

// noteMalformed advances the product's consecutive bad-artifact streak and
// raises the operator alert when it reaches the configured threshold. Skips
// do not touch the streak: an unpublished cycle says nothing about artifact
// health.
func (p *Pipeline) noteMalformed(product nwm.Product) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.streaks[product]++
	if threshold := p.cfg.MalformedAlertAfter; threshold > 0 && p.streaks[product] == threshold {
		metrics.MalformedAlerts.WithLabelValues(string(product)).Inc()
		p.log.Error("consecutive malformed cycles reached alert threshold",
			zap.String("product", string(product)),
			zap.Int("consecutive", p.streaks[product]))
	}
}

func (p *Pipeline) resetStreak(product nwm.Product) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.streaks[product] = 0
}

// dedupeRecords drops earlier duplicates of the same record identity so the
// staging move never updates one row twice in a single statement. Later
// records win, matching the store's overwrite policy.
func dedupeRecords(records []domain.HydroRecord) []domain.HydroRecord {
	seen := make(map[domain.RecordKey]int, len(records))
	out := records[:0]
	for _, r := range records {
		if i, dup := seen[r.Key()]; dup {
			out[i] = r
			continue
		}
		seen[r.Key()] = len(out)
		out = append(out, r)
	}
	return out
}
