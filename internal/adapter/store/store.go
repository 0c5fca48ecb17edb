// Package store defines the persistence contracts between the ingestion
// pipeline, the query service and the relational store, plus the immutable
// in-process cache of the reference tables.
package store

import (
	"context"
	"time"

	"github.com/driftwise/reach-api/internal/domain"
)

// Snapshot is every variable of one reach at one valid time from one
// source. A variable missing from the store at that instant is simply
// absent from Values; a variable present with a NULL value maps to nil.
type Snapshot struct {
	FeatureID    int64
	ValidTime    time.Time
	Source       domain.Source
	ForecastHour *int
	Values       map[domain.Variable]*float64
}

// Value returns the stored value for a variable, nil when missing or NULL.
func (s *Snapshot) Value(v domain.Variable) *float64 {
	if s == nil {
		return nil
	}
	return s.Values[v]
}

// RunStatus is the lifecycle state of an ingestion job row.
type RunStatus string

const (
	RunStarted RunStatus = "started"
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
	RunSkipped RunStatus = "skipped"
)

// IngestionRun is one row of the ingestion log: a fetch+load attempt for a
// single product cycle. The row is written at job start and finalized once
// at job end.
type IngestionRun struct {
	ID              string     `db:"id"`
	Product         string     `db:"product"`
	CycleTime       time.Time  `db:"cycle_time"`
	Domain          string     `db:"domain"`
	Status          RunStatus  `db:"status"`
	RecordsIngested int64      `db:"records_ingested"`
	ErrorMessage    *string    `db:"error_message"`
	StartedAt       time.Time  `db:"started_at"`
	CompletedAt     *time.Time `db:"completed_at"`
	DurationMS      *int64     `db:"duration_ms"`
}

// HydroReader serves time-series reads for the query side. Absent data is
// (nil, nil) or an empty slice, never an error: the query service renders
// absence as an explicit unknown.
type HydroReader interface {
	// LatestSnapshot returns the newest snapshot from source with
	// valid_time at or before at.
	LatestSnapshot(ctx context.Context, featureID int64, source domain.Source, at time.Time) (*Snapshot, error)

	// SnapshotsBetween returns snapshots from source with valid_time in
	// (from, to], ordered by valid_time ascending.
	SnapshotsBetween(ctx context.Context, featureID int64, source domain.Source, from, to time.Time) ([]Snapshot, error)

	// FlowSeries returns one variable from source over (from, to] as a
	// time-ordered series, including samples whose value is NULL.
	FlowSeries(ctx context.Context, featureID int64, source domain.Source, variable domain.Variable, from, to time.Time) ([]domain.FlowPoint, error)

	// EnsembleCV returns the materialized ensemble spread for a reach and
	// valid time, nil when none was ingested.
	EnsembleCV(ctx context.Context, featureID int64, validTime time.Time) (*float64, error)
}

// TemperatureReader serves the weather observations at reach centroids.
type TemperatureReader interface {
	// NearestTemperature returns the record closest in time to at within
	// maxAge on either side, preferring the shortest forecast lead on
	// ties. Nil when nothing qualifies.
	NearestTemperature(ctx context.Context, featureID int64, at time.Time, maxAge time.Duration) (*domain.TemperatureRecord, error)
}

// StatusReader serves the health endpoint.
type StatusReader interface {
	Ping(ctx context.Context) error

	// LastSuccessfulRuns returns the completion time of the newest
	// successful ingestion per product.
	LastSuccessfulRuns(ctx context.Context) (map[string]time.Time, error)
}

// Reader is the full read surface the query service depends on.
type Reader interface {
	HydroReader
	TemperatureReader
	StatusReader
}

// Loader is the bulk write path of the ingestion pipeline. Each
// BulkUpsert call is one transaction; records either land together or not
// at all.
type Loader interface {
	BulkUpsertHydro(ctx context.Context, records []domain.HydroRecord) (int64, error)
	BulkUpsertSpread(ctx context.Context, samples []domain.SpreadSample) (int64, error)
	BulkUpsertTemperature(ctx context.Context, records []domain.TemperatureRecord) (int64, error)
}

// RunLog brackets ingestion jobs in the ingestion log.
type RunLog interface {
	StartRun(ctx context.Context, product string, cycleTime time.Time, domainID string) (*IngestionRun, error)
	CompleteRun(ctx context.Context, run *IngestionRun) error
}

// ReferenceReader loads the reference tables for the in-process cache.
type ReferenceReader interface {
	AllFlowlines(ctx context.Context) ([]domain.Flowline, error)
	AllMonthlyStats(ctx context.Context) ([]domain.MonthlyFlowStats, error)
	AllCentroids(ctx context.Context) ([]domain.ReachCentroid, error)
}
