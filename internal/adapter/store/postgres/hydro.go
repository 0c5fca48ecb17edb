package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/driftwise/reach-api/internal/adapter/store"
	"github.com/driftwise/reach-api/internal/domain"
)

// hydroRow mirrors one nwm.hydro_records row for sqlx scanning.
type hydroRow struct {
	FeatureID    int64     `db:"feature_id"`
	ValidTime    time.Time `db:"valid_time"`
	Variable     string    `db:"variable"`
	Value        *float64  `db:"value"`
	Source       string    `db:"source"`
	ForecastHour *int      `db:"forecast_hour"`
}

// BulkUpsertHydro loads one job's records in a single transaction: COPY into
// a staging table dropped at commit, then move into nwm.hydro_records with
// last-write-wins conflict resolution. Returns the number of rows upserted.
func (s *Store) BulkUpsertHydro(ctx context.Context, records []domain.HydroRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	var upserted int64
	start := time.Now()
	err := s.withRetry(ctx, "hydro bulk upsert", func() error {
		var err error
		upserted, err = s.copyHydro(ctx, records)
		return err
	})
	if err != nil {
		return 0, err
	}

	s.log.Debug("hydro bulk upsert complete",
		zap.Int("records", len(records)),
		zap.Int64("upserted", upserted),
		zap.Duration("elapsed", time.Since(start)))
	return upserted, nil
}

func (s *Store) copyHydro(ctx context.Context, records []domain.HydroRecord) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		CREATE TEMP TABLE hydro_stage
		(LIKE nwm.hydro_records INCLUDING DEFAULTS)
		ON COMMIT DROP`)
	if err != nil {
		return 0, fmt.Errorf("create staging table: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("hydro_stage",
		"feature_id", "valid_time", "variable", "value", "source", "forecast_hour", "ingested_at"))
	if err != nil {
		return 0, fmt.Errorf("prepare copy: %w", err)
	}

	for offset := 0; offset < len(records); offset += s.opts.BatchSize {
		end := offset + s.opts.BatchSize
		if end > len(records) {
			end = len(records)
		}
		if err := s.copyHydroChunk(ctx, stmt, records[offset:end]); err != nil {
			_ = stmt.Close()
			return 0, err
		}
	}

	if err := flushCopy(ctx, stmt); err != nil {
		return 0, err
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO nwm.hydro_records
		       (feature_id, valid_time, variable, value, source, forecast_hour, ingested_at)
		SELECT feature_id, valid_time, variable, value, source, forecast_hour, ingested_at
		FROM   hydro_stage
		ON CONFLICT (feature_id, valid_time, variable, source)
		DO UPDATE SET value         = EXCLUDED.value,
		              forecast_hour = EXCLUDED.forecast_hour,
		              ingested_at   = EXCLUDED.ingested_at`)
	if err != nil {
		return 0, fmt.Errorf("move from staging: %w", err)
	}
	upserted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count upserts: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return upserted, nil
}

// copyHydroChunk streams one chunk of rows under its own deadline so a
// stalled connection fails the attempt instead of consuming the whole job
// budget.
func (s *Store) copyHydroChunk(ctx context.Context, stmt *sql.Stmt, chunk []domain.HydroRecord) error {
	chunkCtx, cancel := context.WithTimeout(ctx, s.opts.BatchTimeout)
	defer cancel()

	for _, r := range chunk {
		var value any
		if r.Value != nil {
			value = *r.Value
		}
		var forecastHour any
		if r.ForecastHour != nil {
			forecastHour = *r.ForecastHour
		}
		if _, err := stmt.ExecContext(chunkCtx,
			r.FeatureID, r.ValidTime.UTC(), string(r.Variable), value,
			string(r.Source), forecastHour, r.IngestedAt.UTC()); err != nil {
			return fmt.Errorf("copy row: %w", err)
		}
	}
	return nil
}

// BulkUpsertSpread materializes ensemble dispersion samples, replacing any
// previous value for the same reach and valid time.
func (s *Store) BulkUpsertSpread(ctx context.Context, samples []domain.SpreadSample) (int64, error) {
	if len(samples) == 0 {
		return 0, nil
	}

	var upserted int64
	err := s.withRetry(ctx, "spread bulk upsert", func() error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		_, err = tx.ExecContext(ctx, `
			CREATE TEMP TABLE spread_stage
			(LIKE derived.ensemble_spread INCLUDING DEFAULTS)
			ON COMMIT DROP`)
		if err != nil {
			return fmt.Errorf("create staging table: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, pq.CopyIn("spread_stage", "feature_id", "valid_time", "cv"))
		if err != nil {
			return fmt.Errorf("prepare copy: %w", err)
		}
		for _, sample := range samples {
			if _, err := stmt.ExecContext(ctx, sample.FeatureID, sample.ValidTime.UTC(), sample.CV); err != nil {
				_ = stmt.Close()
				return fmt.Errorf("copy row: %w", err)
			}
		}
		if err := flushCopy(ctx, stmt); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO derived.ensemble_spread (feature_id, valid_time, cv)
			SELECT feature_id, valid_time, cv FROM spread_stage
			ON CONFLICT (feature_id, valid_time)
			DO UPDATE SET cv = EXCLUDED.cv, ingested_at = now()`)
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
	return upserted, nil
}

// LatestSnapshot returns every variable of the newest snapshot from source
// at or before the anchor instant, or (nil, nil) when the reach has no data
// there yet.
func (s *Store) LatestSnapshot(ctx context.Context, featureID int64, source domain.Source, at time.Time) (*store.Snapshot, error) {
	var rows []hydroRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT feature_id, valid_time, variable, value, source, forecast_hour
		FROM   nwm.hydro_records
		WHERE  feature_id = $1 AND source = $2
		  AND  valid_time = (
		           SELECT max(valid_time) FROM nwm.hydro_records
		           WHERE  feature_id = $1 AND source = $2 AND valid_time <= $3)`,
		featureID, string(source), at.UTC())
	if err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	snap := snapshotFromRows(rows)
	return &snap, nil
}

// SnapshotsBetween returns the snapshots from source with valid_time in
// (from, to], ordered by valid time ascending.
func (s *Store) SnapshotsBetween(ctx context.Context, featureID int64, source domain.Source, from, to time.Time) ([]store.Snapshot, error) {
	var rows []hydroRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT feature_id, valid_time, variable, value, source, forecast_hour
		FROM   nwm.hydro_records
		WHERE  feature_id = $1 AND source = $2
		  AND  valid_time > $3 AND valid_time <= $4
		ORDER BY valid_time, variable`,
		featureID, string(source), from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("snapshots between: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	snapshots := make([]store.Snapshot, 0)
	begin := 0
	for i := 1; i <= len(rows); i++ {
		if i == len(rows) || !rows[i].ValidTime.Equal(rows[begin].ValidTime) {
			snapshots = append(snapshots, snapshotFromRows(rows[begin:i]))
			begin = i
		}
	}
	return snapshots, nil
}

// FlowSeries returns one variable from source over (from, to] in time order,
// including samples stored with a NULL value.
func (s *Store) FlowSeries(ctx context.Context, featureID int64, source domain.Source, variable domain.Variable, from, to time.Time) ([]domain.FlowPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT valid_time, value
		FROM   nwm.hydro_records
		WHERE  feature_id = $1 AND source = $2 AND variable = $3
		  AND  valid_time > $4 AND valid_time <= $5
		ORDER BY valid_time`,
		featureID, string(source), string(variable), from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("flow series: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var series []domain.FlowPoint
	for rows.Next() {
		var p domain.FlowPoint
		if err := rows.Scan(&p.Time, &p.Value); err != nil {
			return nil, fmt.Errorf("scan flow point: %w", err)
		}
		series = append(series, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("flow series rows: %w", err)
	}
	return series, nil
}

// EnsembleCV returns the materialized spread for a reach and valid time,
// nil when none was ingested.
func (s *Store) EnsembleCV(ctx context.Context, featureID int64, validTime time.Time) (*float64, error) {
	var cv float64
	err := s.db.GetContext(ctx, &cv, `
		SELECT cv FROM derived.ensemble_spread
		WHERE  feature_id = $1 AND valid_time = $2`,
		featureID, validTime.UTC())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ensemble spread: %w", err)
	}
	return &cv, nil
}

// snapshotFromRows folds rows sharing one valid time into a Snapshot. The
// forecast hour is uniform across a snapshot's rows by construction; the
// first non-nil value wins.
func snapshotFromRows(rows []hydroRow) store.Snapshot {
	snap := store.Snapshot{
		FeatureID: rows[0].FeatureID,
		ValidTime: rows[0].ValidTime,
		Source:    domain.Source(rows[0].Source),
		Values:    make(map[domain.Variable]*float64, len(rows)),
	}
	for _, r := range rows {
		snap.Values[domain.Variable(r.Variable)] = r.Value
		if snap.ForecastHour == nil && r.ForecastHour != nil {
			snap.ForecastHour = r.ForecastHour
		}
	}
	return snap
}
