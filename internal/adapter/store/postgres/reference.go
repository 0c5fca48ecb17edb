package postgres

import (
	"context"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/driftwise/reach-api/internal/domain"
)

// LoadReference replaces the entire reference data set in one transaction:
// flowlines, monthly baselines and centroids either all swap or none do.
// Runs once per deployment region, from the ingestor's reference-load mode.
func (s *Store) LoadReference(ctx context.Context, flowlines []domain.Flowline, stats []domain.MonthlyFlowStats, centroids []domain.ReachCentroid) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Children first, then flowlines, honoring the foreign keys.
	for _, table := range []string{"nhd.monthly_flow_stats", "nhd.reach_centroids", "nhd.flowlines"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyInSchema("nhd", "flowlines",
		"feature_id", "geom", "gnis_name", "drainage_sqkm", "stream_order",
		"slope", "min_elev_m", "max_elev_m", "gradient_class", "size_class"))
	if err != nil {
		return fmt.Errorf("prepare flowlines copy: %w", err)
	}
	for _, f := range flowlines {
		var minElev, maxElev any
		if f.MinElevM != nil {
			minElev = *f.MinElevM
		}
		if f.MaxElevM != nil {
			maxElev = *f.MaxElevM
		}
		if _, err := stmt.ExecContext(ctx,
			f.FeatureID, f.Geometry, f.Name, f.DrainageSqKm, f.StreamOrder,
			f.Slope, minElev, maxElev, string(f.GradientClass), string(f.SizeClass)); err != nil {
			_ = stmt.Close()
			return fmt.Errorf("copy flowline %d: %w", f.FeatureID, err)
		}
	}
	if err := flushCopy(ctx, stmt); err != nil {
		return fmt.Errorf("flowlines: %w", err)
	}

	stmt, err = tx.PrepareContext(ctx, pq.CopyInSchema("nhd", "monthly_flow_stats",
		"feature_id", "month", "mean_flow_m3s", "mean_velocity_ms"))
	if err != nil {
		return fmt.Errorf("prepare stats copy: %w", err)
	}
	for _, st := range stats {
		var velocity any
		if st.MeanVelocity != nil {
			velocity = *st.MeanVelocity
		}
		if _, err := stmt.ExecContext(ctx, st.FeatureID, st.Month, st.MeanFlow, velocity); err != nil {
			_ = stmt.Close()
			return fmt.Errorf("copy stats %d/%d: %w", st.FeatureID, st.Month, err)
		}
	}
	if err := flushCopy(ctx, stmt); err != nil {
		return fmt.Errorf("monthly stats: %w", err)
	}

	stmt, err = tx.PrepareContext(ctx, pq.CopyInSchema("nhd", "reach_centroids", "feature_id", "lat", "lon"))
	if err != nil {
		return fmt.Errorf("prepare centroids copy: %w", err)
	}
	for _, c := range centroids {
		if _, err := stmt.ExecContext(ctx, c.FeatureID, c.Lat, c.Lon); err != nil {
			_ = stmt.Close()
			return fmt.Errorf("copy centroid %d: %w", c.FeatureID, err)
		}
	}
	if err := flushCopy(ctx, stmt); err != nil {
		return fmt.Errorf("centroids: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.log.Info("reference data loaded",
		zap.Int("flowlines", len(flowlines)),
		zap.Int("monthly_stats", len(stats)),
		zap.Int("centroids", len(centroids)))
	return nil
}

// AllFlowlines reads the whole flowline table for the in-process cache.
func (s *Store) AllFlowlines(ctx context.Context) ([]domain.Flowline, error) {
	var flowlines []domain.Flowline
	err := s.db.SelectContext(ctx, &flowlines, `
		SELECT feature_id, geom, COALESCE(gnis_name, '') AS gnis_name,
		       drainage_sqkm, stream_order, slope, min_elev_m, max_elev_m,
		       gradient_class, size_class
		FROM   nhd.flowlines`)
	if err != nil {
		return nil, fmt.Errorf("all flowlines: %w", err)
	}
	return flowlines, nil
}

// AllMonthlyStats reads the whole monthly baseline table.
func (s *Store) AllMonthlyStats(ctx context.Context) ([]domain.MonthlyFlowStats, error) {
	var stats []domain.MonthlyFlowStats
	err := s.db.SelectContext(ctx, &stats, `
		SELECT feature_id, month, mean_flow_m3s, mean_velocity_ms
		FROM   nhd.monthly_flow_stats`)
	if err != nil {
		return nil, fmt.Errorf("all monthly stats: %w", err)
	}
	return stats, nil
}

// AllCentroids reads the whole centroid table.
func (s *Store) AllCentroids(ctx context.Context) ([]domain.ReachCentroid, error) {
	var centroids []domain.ReachCentroid
	err := s.db.SelectContext(ctx, &centroids, `
		SELECT feature_id, lat, lon FROM nhd.reach_centroids`)
	if err != nil {
		return nil, fmt.Errorf("all centroids: %w", err)
	}
	return centroids, nil
}
