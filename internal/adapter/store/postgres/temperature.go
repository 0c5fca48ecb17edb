package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/driftwise/reach-api/internal/domain"
)

// BulkUpsertTemperature loads one weather probe run in a single
// transaction, overwriting any earlier values for the same identity.
func (s *Store) BulkUpsertTemperature(ctx context.Context, records []domain.TemperatureRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	var upserted int64
	start := time.Now()
	err := s.withRetry(ctx, "temperature bulk upsert", func() error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		_, err = tx.ExecContext(ctx, `
			CREATE TEMP TABLE temperature_stage
			(LIKE observations.temperature_records INCLUDING DEFAULTS)
			ON COMMIT DROP`)
		if err != nil {
			return fmt.Errorf("create staging table: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, pq.CopyIn("temperature_stage",
			"feature_id", "valid_time", "air_temp_c", "apparent_temp_c",
			"precipitation_mm", "cloud_cover_pct", "source", "forecast_hour"))
		if err != nil {
			return fmt.Errorf("prepare copy: %w", err)
		}
		for _, r := range records {
			forecastHour := 0
			if r.ForecastHour != nil {
				forecastHour = *r.ForecastHour
			}
			if _, err := stmt.ExecContext(ctx,
				r.FeatureID, r.ValidTime.UTC(), optFloat(r.AirTempC), optFloat(r.ApparentTempC),
				optFloat(r.PrecipMM), optFloat(r.CloudCoverPct), r.Source, forecastHour); err != nil {
				_ = stmt.Close()
				return fmt.Errorf("copy row: %w", err)
			}
		}
		if err := flushCopy(ctx, stmt); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO observations.temperature_records
			       (feature_id, valid_time, air_temp_c, apparent_temp_c,
			        precipitation_mm, cloud_cover_pct, source, forecast_hour)
			SELECT feature_id, valid_time, air_temp_c, apparent_temp_c,
			       precipitation_mm, cloud_cover_pct, source, forecast_hour
			FROM   temperature_stage
			ON CONFLICT (feature_id, valid_time, source, forecast_hour)
			DO UPDATE SET air_temp_c       = EXCLUDED.air_temp_c,
			              apparent_temp_c  = EXCLUDED.apparent_temp_c,
			              precipitation_mm = EXCLUDED.precipitation_mm,
			              cloud_cover_pct  = EXCLUDED.cloud_cover_pct,
			              ingested_at      = now()`)
		if err != nil {
			return fmt.Errorf("move from staging: %w", err)
		}
		upserted, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("count upserts: %w", err)
		}
		return tx.Commit()
	})
	if err != nil {
		return 0, err
	}

	s.log.Debug("temperature bulk upsert complete",
		zap.Int("records", len(records)),
		zap.Int64("upserted", upserted),
		zap.Duration("elapsed", time.Since(start)))
	return upserted, nil
}

// NearestTemperature returns the record closest in time to the anchor
// within maxAge on either side, preferring the shortest forecast lead on
// ties, or (nil, nil) when nothing qualifies.
func (s *Store) NearestTemperature(ctx context.Context, featureID int64, at time.Time, maxAge time.Duration) (*domain.TemperatureRecord, error) {
	anchor := at.UTC()
	var rec domain.TemperatureRecord
	err := s.db.GetContext(ctx, &rec, `
		SELECT feature_id, valid_time, air_temp_c, apparent_temp_c,
		       precipitation_mm, cloud_cover_pct, source, forecast_hour
		FROM   observations.temperature_records
		WHERE  feature_id = $1
		  AND  valid_time >= $2 AND valid_time <= $3
		ORDER BY abs(extract(epoch FROM valid_time - $4::timestamptz)), forecast_hour
		LIMIT 1`,
		featureID, anchor.Add(-maxAge), anchor.Add(maxAge), anchor)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("nearest temperature: %w", err)
	}
	return &rec, nil
}

// optFloat maps nil to SQL NULL for COPY arguments.
func optFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
