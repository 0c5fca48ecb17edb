package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/driftwise/reach-api/internal/adapter/store"
	"github.com/driftwise/reach-api/internal/domain"
	"github.com/driftwise/reach-api/internal/metrics"
	"github.com/driftwise/reach-api/internal/weather"
)

// WeatherJob probes the forecast endpoint at every reach centroid and loads
// the hourly series into the observation store. Probes run with bounded
// concurrency; individual probe failures are logged and counted without
// aborting the rest of the sweep.
type WeatherJob struct {
	client      *weather.Client
	loader      store.Loader
	cache       *store.Cache
	concurrency int
	log         *zap.Logger
}

// NewWeatherJob wires the probe job. concurrency below 1 is treated as 1.
func NewWeatherJob(client *weather.Client, loader store.Loader, cache *store.Cache, concurrency int, log *zap.Logger) *WeatherJob {
	if concurrency < 1 {
		concurrency = 1
	}
	return &WeatherJob{
		client:      client,
		loader:      loader,
		cache:       cache,
		concurrency: concurrency,
		log:         log.Named("weather"),
	}
}

// Run sweeps every centroid once. The whole sweep's records land in one
// transaction; a sweep where every probe failed is an error.
func (w *WeatherJob) Run(ctx context.Context) error {
	centroids := w.cache.Centroids()
	if len(centroids) == 0 {
		w.log.Warn("no centroids loaded, skipping weather sweep")
		return nil
	}

	start := time.Now()
	probeCycle := start.UTC().Truncate(time.Hour)

	var mu sync.Mutex
	var records []domain.TemperatureRecord
	var failed int

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for _, centroid := range centroids {
		g.Go(func() error {
			hours, err := w.client.HourlyForecast(gctx, centroid.Lat, centroid.Lon)
			if err != nil {
				metrics.WeatherProbes.WithLabelValues("failed").Inc()
				w.log.Warn("weather probe failed",
					zap.Int64("feature_id", centroid.FeatureID),
					zap.Error(err))
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}
			metrics.WeatherProbes.WithLabelValues("success").Inc()

			probe := weather.Records(centroid.FeatureID, probeCycle, hours)
			mu.Lock()
			records = append(records, probe...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if failed == len(centroids) {
		return fmt.Errorf("all %d weather probes failed", failed)
	}

	loaded, err := w.loader.BulkUpsertTemperature(ctx, records)
	if err != nil {
		return fmt.Errorf("load weather records: %w", err)
	}

	w.log.Info("weather sweep complete",
		zap.Int("probes", len(centroids)),
		zap.Int("failed", failed),
		zap.Int64("records", loaded),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}
