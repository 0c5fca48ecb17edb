package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/driftwise/reach-api/internal/adapter/store"
)

// StartRun writes the started row for one ingestion job and returns it for
// later completion. The row exists from the moment work begins, so an
// operator can see wedged jobs as well as finished ones.
func (s *Store) StartRun(ctx context.Context, product string, cycleTime time.Time, domainID string) (*store.IngestionRun, error) {
	run := &store.IngestionRun{
		ID:        uuid.New().String(),
		Product:   product,
		CycleTime: cycleTime.UTC(),
		Domain:    domainID,
		Status:    store.RunStarted,
		StartedAt: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO nwm.ingestion_log
		       (id, product, cycle_time, domain, status, records_ingested, started_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6)`,
		run.ID, run.Product, run.CycleTime, run.Domain, string(run.Status), run.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}
	return run, nil
}

// CompleteRun finalizes a run row, stamping completion time and duration.
// The caller sets Status, RecordsIngested and ErrorMessage before calling.
func (s *Store) CompleteRun(ctx context.Context, run *store.IngestionRun) error {
	now := time.Now().UTC()
	duration := now.Sub(run.StartedAt).Milliseconds()
	run.CompletedAt = &now
	run.DurationMS = &duration

	res, err := s.db.ExecContext(ctx, `
		UPDATE nwm.ingestion_log
		SET    status = $2, records_ingested = $3, error_message = $4,
		       completed_at = $5, duration_ms = $6
		WHERE  id = $1`,
		run.ID, string(run.Status), run.RecordsIngested, run.ErrorMessage,
		run.CompletedAt, run.DurationMS)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("complete run: no row for id %s", run.ID)
	}
	return nil
}

// LastSuccessfulRuns returns the completion time of the newest successful
// run per product, for the health endpoint's freshness report.
func (s *Store) LastSuccessfulRuns(ctx context.Context) (map[string]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product, max(completed_at)
		FROM   nwm.ingestion_log
		WHERE  status = 'success' AND completed_at IS NOT NULL
		GROUP BY product`)
	if err != nil {
		return nil, fmt.Errorf("last successful runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	latest := make(map[string]time.Time)
	for rows.Next() {
		var product string
		var completed time.Time
		if err := rows.Scan(&product, &completed); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		latest[product] = completed
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("run rows: %w", err)
	}
	return latest, nil
}

// RecentRuns returns the newest limit rows of the ingestion log for the
// metadata endpoint, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]store.IngestionRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []store.IngestionRun
	err := s.db.SelectContext(ctx, &runs, `
		SELECT id, product, cycle_time, domain, status, records_ingested,
		       error_message, started_at, completed_at, duration_ms
		FROM   nwm.ingestion_log
		ORDER BY started_at DESC
		LIMIT  $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent runs: %w", err)
	}
	return runs, nil
}
