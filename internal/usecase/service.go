// Package usecase assembles stored hydrology, reference data and weather
// into the reach-centric reads the API serves: hydrology by timeframe,
// species habitat scores, hatch forecasts, health and metadata. Handlers own
// transport concerns; everything here speaks domain types.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/driftwise/reach-api/internal/adapter/store"
	"github.com/driftwise/reach-api/internal/config"
	"github.com/driftwise/reach-api/internal/domain"
)

// Sentinel errors handlers translate into status codes. Anything else that
// comes out of the service is a store problem.
var (
	ErrUnknownReach   = errors.New("unknown reach")
	ErrUnknownSpecies = errors.New("unknown species")
)

// Service orchestrates the reach-centric reads over the time-series store,
// the reference cache and the scoring catalog.
type Service struct {
	store   store.Reader
	cache   *store.Cache
	catalog *config.Catalog
	scoring config.ScoringConfig
	thermal domain.ThermalParams
	limb    domain.RisingLimbParams
	log     *zap.Logger

	now func() time.Time // injectable clock
}

// New wires the query service.
func New(reader store.Reader, cache *store.Cache, catalog *config.Catalog, scoring config.ScoringConfig, thermal domain.ThermalParams, log *zap.Logger) *Service {
	return &Service{
		store:   reader,
		cache:   cache,
		catalog: catalog,
		scoring: scoring,
		thermal: thermal,
		limb:    scoring.RisingLimb.Params(),
		log:     log.Named("query"),
		now:     time.Now,
	}
}

// ReachSummary is the reference identity block carried on every reach
// response.
type ReachSummary struct {
	FeatureID     int64                `json:"feature_id"`
	Name          string               `json:"name,omitempty"`
	StreamOrder   int                  `json:"stream_order"`
	GradientClass domain.GradientClass `json:"gradient_class"`
	SizeClass     domain.SizeClass     `json:"size_class"`
	DrainageSqKm  float64              `json:"drainage_sqkm"`
}

func summarize(f domain.Flowline) ReachSummary {
	return ReachSummary{
		FeatureID:     f.FeatureID,
		Name:          f.Name,
		StreamOrder:   f.StreamOrder,
		GradientClass: f.GradientClass,
		SizeClass:     f.SizeClass,
		DrainageSqKm:  f.DrainageSqKm,
	}
}

// flowline resolves the reference row for a reach or reports it unknown.
func (s *Service) flowline(featureID int64) (domain.Flowline, error) {
	f, ok := s.cache.Flowline(featureID)
	if !ok {
		return domain.Flowline{}, fmt.Errorf("reach %d: %w", featureID, ErrUnknownReach)
	}
	return f, nil
}

// timeframeSnapshots resolves a timeframe into its stored snapshots: the
// latest analysis for now, the forecast window for today and outlook, and
// their concatenation in valid-time order for all.
func (s *Service) timeframeSnapshots(ctx context.Context, featureID int64, tf domain.Timeframe, now time.Time) ([]store.Snapshot, error) {
	switch tf {
	case domain.TimeframeNow:
		snap, err := s.store.LatestSnapshot(ctx, featureID, domain.SourceAnalysis, now)
		if err != nil || snap == nil {
			return nil, err
		}
		return []store.Snapshot{*snap}, nil
	case domain.TimeframeToday:
		return s.store.SnapshotsBetween(ctx, featureID, domain.SourceShortForecast, now, now.Add(domain.TodayHorizon))
	case domain.TimeframeOutlook:
		return s.store.SnapshotsBetween(ctx, featureID, domain.SourceMediumBlend, now, now.Add(domain.OutlookHorizon))
	case domain.TimeframeAll:
		var all []store.Snapshot
		for _, part := range []domain.Timeframe{domain.TimeframeNow, domain.TimeframeToday, domain.TimeframeOutlook} {
			snaps, err := s.timeframeSnapshots(ctx, featureID, part, now)
			if err != nil {
				return nil, err
			}
			all = append(all, snaps...)
		}
		return all, nil
	}
	return nil, fmt.Errorf("unknown timeframe %q", tf)
}

// anchor picks the single snapshot a timeframe scores against: the latest
// analysis for now and all, the first forecast sample in the window for
// today and outlook. Nil without error when the timeframe holds no data.
func (s *Service) anchor(ctx context.Context, featureID int64, tf domain.Timeframe, now time.Time) (*store.Snapshot, error) {
	switch tf {
	case domain.TimeframeNow, domain.TimeframeAll:
		return s.store.LatestSnapshot(ctx, featureID, domain.SourceAnalysis, now)
	case domain.TimeframeToday:
		snaps, err := s.store.SnapshotsBetween(ctx, featureID, domain.SourceShortForecast, now, now.Add(domain.TodayHorizon))
		if err != nil || len(snaps) == 0 {
			return nil, err
		}
		return &snaps[0], nil
	case domain.TimeframeOutlook:
		snaps, err := s.store.SnapshotsBetween(ctx, featureID, domain.SourceMediumBlend, now, now.Add(domain.OutlookHorizon))
		if err != nil || len(snaps) == 0 {
			return nil, err
		}
		return &snaps[0], nil
	}
	return nil, fmt.Errorf("unknown timeframe %q", tf)
}
