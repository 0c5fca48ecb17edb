package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/driftwise/reach-api/internal/adapter/store"
	"github.com/driftwise/reach-api/internal/domain"
)

func TestSnapshotFromRowsFoldsVariables(t *testing.T) {
	at := time.Date(2025, 5, 10, 6, 0, 0, 0, time.UTC)
	rows := []hydroRow{
		{FeatureID: 101, ValidTime: at, Variable: "streamflow", Value: domain.Float(4.2), Source: "short_forecast", ForecastHour: domain.Int(3)},
		{FeatureID: 101, ValidTime: at, Variable: "velocity", Value: domain.Float(0.7), Source: "short_forecast", ForecastHour: domain.Int(3)},
		{FeatureID: 101, ValidTime: at, Variable: "nudge", Value: nil, Source: "short_forecast", ForecastHour: domain.Int(3)},
	}

	snap := snapshotFromRows(rows)

	assert.Equal(t, int64(101), snap.FeatureID)
	assert.Equal(t, domain.SourceShortForecast, snap.Source)
	require.NotNil(t, snap.ForecastHour)
	assert.Equal(t, 3, *snap.ForecastHour)
	require.NotNil(t, snap.Value(domain.VarStreamflow))
	assert.Equal(t, 4.2, *snap.Value(domain.VarStreamflow))
	assert.Nil(t, snap.Value(domain.VarNudge), "stored NULL maps to nil")
	assert.Nil(t, snap.Value(domain.VarQSurface), "absent variable maps to nil")
}

func TestOptionsDefaults(t *testing.T) {
	opts := Options{}.withDefaults()
	assert.Equal(t, 5000, opts.BatchSize)
	assert.Equal(t, 30*time.Second, opts.BatchTimeout)

	opts = Options{BatchSize: 100, BatchTimeout: time.Second, BatchRetries: 2}.withDefaults()
	assert.Equal(t, 100, opts.BatchSize)
	assert.Equal(t, time.Second, opts.BatchTimeout)
	assert.Equal(t, 2, opts.BatchRetries)
}

// testStore connects to the database named by REACH_TEST_DATABASE_URL and
// applies the schema. Tests that need it are skipped when the variable is
// unset. A small batch size forces the chunked COPY path.
func testStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("REACH_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("Skipping integration test: REACH_TEST_DATABASE_URL not set")
	}

	db, err := sqlx.Connect("postgres", url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s := New(db, Options{BatchSize: 2, BatchTimeout: 10 * time.Second, BatchRetries: 1}, zap.NewNop())
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestHydroRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	const reach = int64(910001)
	cycle := time.Date(2025, 5, 10, 6, 0, 0, 0, time.UTC)

	records := []domain.HydroRecord{
		{FeatureID: reach, ValidTime: cycle, Variable: domain.VarStreamflow, Value: domain.Float(3.0), Source: domain.SourceAnalysis, IngestedAt: time.Now()},
		{FeatureID: reach, ValidTime: cycle, Variable: domain.VarVelocity, Value: domain.Float(0.5), Source: domain.SourceAnalysis, IngestedAt: time.Now()},
		{FeatureID: reach, ValidTime: cycle, Variable: domain.VarNudge, Value: nil, Source: domain.SourceAnalysis, IngestedAt: time.Now()},
		{FeatureID: reach, ValidTime: cycle.Add(time.Hour), Variable: domain.VarStreamflow, Value: domain.Float(3.4), Source: domain.SourceShortForecast, ForecastHour: domain.Int(1), IngestedAt: time.Now()},
	}
	n, err := s.BulkUpsertHydro(ctx, records)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	snap, err := s.LatestSnapshot(ctx, reach, domain.SourceAnalysis, cycle.Add(30*time.Minute))
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, cycle, snap.ValidTime.UTC())
	require.NotNil(t, snap.Value(domain.VarStreamflow))
	assert.Equal(t, 3.0, *snap.Value(domain.VarStreamflow))
	assert.Nil(t, snap.Value(domain.VarNudge))

	// Re-ingesting the same identity overwrites in place.
	records[0].Value = domain.Float(9.9)
	_, err = s.BulkUpsertHydro(ctx, records[:1])
	require.NoError(t, err)
	snap, err = s.LatestSnapshot(ctx, reach, domain.SourceAnalysis, cycle)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 9.9, *snap.Value(domain.VarStreamflow))

	// The forecast row lands under its own source with its lead attached.
	snaps, err := s.SnapshotsBetween(ctx, reach, domain.SourceShortForecast, cycle, cycle.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	require.NotNil(t, snaps[0].ForecastHour)
	assert.Equal(t, 1, *snaps[0].ForecastHour)

	series, err := s.FlowSeries(ctx, reach, domain.SourceAnalysis, domain.VarStreamflow, cycle.Add(-time.Hour), cycle)
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Equal(t, 9.9, *series[0].Value)

	none, err := s.LatestSnapshot(ctx, reach+1, domain.SourceAnalysis, cycle)
	require.NoError(t, err)
	assert.Nil(t, none, "unknown reach reads as absent, not as an error")
}

func TestEnsembleSpreadRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	const reach = int64(910002)
	at := time.Date(2025, 5, 11, 0, 0, 0, 0, time.UTC)

	_, err := s.BulkUpsertSpread(ctx, []domain.SpreadSample{{FeatureID: reach, ValidTime: at, CV: 0.42}})
	require.NoError(t, err)

	cv, err := s.EnsembleCV(ctx, reach, at)
	require.NoError(t, err)
	require.NotNil(t, cv)
	assert.InDelta(t, 0.42, *cv, 1e-9)

	missing, err := s.EnsembleCV(ctx, reach, at.Add(time.Hour))
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestNearestTemperaturePrefersShortestLead(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	const reach = int64(910003)
	at := time.Date(2025, 5, 12, 12, 0, 0, 0, time.UTC)

	records := []domain.TemperatureRecord{
		{FeatureID: reach, ValidTime: at, AirTempC: domain.Float(18.0), Source: "open-meteo", ForecastHour: domain.Int(6)},
		{FeatureID: reach, ValidTime: at, AirTempC: domain.Float(17.5), Source: "open-meteo", ForecastHour: domain.Int(0)},
		{FeatureID: reach, ValidTime: at.Add(2 * time.Hour), AirTempC: domain.Float(20.0), Source: "open-meteo", ForecastHour: domain.Int(2)},
	}
	_, err := s.BulkUpsertTemperature(ctx, records)
	require.NoError(t, err)

	rec, err := s.NearestTemperature(ctx, reach, at.Add(30*time.Minute), 3*time.Hour)
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.NotNil(t, rec.AirTempC)
	assert.Equal(t, 17.5, *rec.AirTempC, "closest time wins, then shortest lead")

	far, err := s.NearestTemperature(ctx, reach, at.Add(12*time.Hour), time.Hour)
	require.NoError(t, err)
	assert.Nil(t, far, "records outside the age window do not qualify")
}

func TestRunLogLifecycle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	cycle := time.Date(2025, 5, 13, 6, 0, 0, 0, time.UTC)

	run, err := s.StartRun(ctx, "analysis", cycle, "conus")
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)
	assert.Equal(t, store.RunStarted, run.Status)

	run.Status = store.RunSuccess
	run.RecordsIngested = 12
	require.NoError(t, s.CompleteRun(ctx, run))
	require.NotNil(t, run.CompletedAt)
	require.NotNil(t, run.DurationMS)

	latest, err := s.LastSuccessfulRuns(ctx)
	require.NoError(t, err)
	assert.False(t, latest["analysis"].IsZero())

	recent, err := s.RecentRuns(ctx, 5)
	require.NoError(t, err)
	require.NotEmpty(t, recent)
	assert.Equal(t, run.ID, recent[0].ID)
}

func TestRetentionPrunes(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	const reach = int64(910004)
	old := time.Now().UTC().Add(-90 * 24 * time.Hour).Truncate(time.Hour)

	_, err := s.BulkUpsertHydro(ctx, []domain.HydroRecord{
		{FeatureID: reach, ValidTime: old, Variable: domain.VarStreamflow, Value: domain.Float(1), Source: domain.SourceAnalysis, IngestedAt: time.Now()},
	})
	require.NoError(t, err)

	pruned, err := s.PruneHydroBefore(ctx, old.Add(time.Hour))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, pruned, int64(1))

	snap, err := s.LatestSnapshot(ctx, reach, domain.SourceAnalysis, time.Now())
	require.NoError(t, err)
	assert.Nil(t, snap)
}
