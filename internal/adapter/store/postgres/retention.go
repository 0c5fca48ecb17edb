package postgres

import (
	"context"
	"fmt"
	"time"
)

// PruneHydroBefore deletes time-series rows with valid_time before the
// cutoff, along with their materialized spread. Returns rows removed from
// the hydro table.
func (s *Store) PruneHydroBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM nwm.hydro_records WHERE valid_time < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune hydro records: %w", err)
	}
	pruned, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count pruned hydro records: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM derived.ensemble_spread WHERE valid_time < $1`, cutoff.UTC()); err != nil {
		return pruned, fmt.Errorf("prune ensemble spread: %w", err)
	}
	return pruned, nil
}

// PruneTemperatureBefore deletes weather rows with valid_time before the
// cutoff.
func (s *Store) PruneTemperatureBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM observations.temperature_records WHERE valid_time < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune temperature records: %w", err)
	}
	pruned, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count pruned temperature records: %w", err)
	}
	return pruned, nil
}

// PruneIngestionLogBefore deletes log rows started before the cutoff.
func (s *Store) PruneIngestionLogBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM nwm.ingestion_log WHERE started_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune ingestion log: %w", err)
	}
	pruned, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count pruned log rows: %w", err)
	}
	return pruned, nil
}
