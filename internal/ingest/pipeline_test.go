package ingest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fhs/go-netcdf/netcdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/driftwise/reach-api/internal/adapter/store"
	"github.com/driftwise/reach-api/internal/config"
	"github.com/driftwise/reach-api/internal/domain"
	"github.com/driftwise/reach-api/internal/nwm"
)

type fakeLoader struct {
	hydro    []domain.HydroRecord
	spread   []domain.SpreadSample
	temp     []domain.TemperatureRecord
	hydroErr error
}

func (f *fakeLoader) BulkUpsertHydro(_ context.Context, records []domain.HydroRecord) (int64, error) {
	if f.hydroErr != nil {
		return 0, f.hydroErr
	}
	f.hydro = append(f.hydro, records...)
	return int64(len(records)), nil
}

func (f *fakeLoader) BulkUpsertSpread(_ context.Context, samples []domain.SpreadSample) (int64, error) {
	f.spread = append(f.spread, samples...)
	return int64(len(samples)), nil
}

func (f *fakeLoader) BulkUpsertTemperature(_ context.Context, records []domain.TemperatureRecord) (int64, error) {
	f.temp = append(f.temp, records...)
	return int64(len(records)), nil
}

type fakeRunLog struct {
	runs []*store.IngestionRun
}

func (f *fakeRunLog) StartRun(_ context.Context, product string, cycleTime time.Time, domainID string) (*store.IngestionRun, error) {
	run := &store.IngestionRun{
		ID:        "run-" + product,
		Product:   product,
		CycleTime: cycleTime,
		Domain:    domainID,
		Status:    store.RunStarted,
		StartedAt: time.Now().UTC(),
	}
	f.runs = append(f.runs, run)
	return run, nil
}

func (f *fakeRunLog) CompleteRun(_ context.Context, _ *store.IngestionRun) error { return nil }

func (f *fakeRunLog) last() *store.IngestionRun {
	if len(f.runs) == 0 {
		return nil
	}
	return f.runs[len(f.runs)-1]
}

// writeChannelArtifact creates a minimal channel artifact in the fetch
// cache layout: an int feature axis plus one float vector per variable.
func writeChannelArtifact(t *testing.T, path string, features []int32, values map[string][]float32) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))

	f, err := netcdf.CreateFile(path, netcdf.CLOBBER)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	dim, err := f.AddDim("feature_id", uint64(len(features)))
	require.NoError(t, err)
	vid, err := f.AddVar("feature_id", netcdf.INT, []netcdf.Dim{dim})
	require.NoError(t, err)

	dataVars := make(map[string]netcdf.Var, len(values))
	for name := range values {
		v, err := f.AddVar(name, netcdf.FLOAT, []netcdf.Dim{dim})
		require.NoError(t, err)
		units := "m3 s-1"
		if name == "velocity" {
			units = "m s-1"
		}
		require.NoError(t, v.Attr("units").WriteBytes([]byte(units)))
		dataVars[name] = v
	}

	require.NoError(t, f.EndDef())
	require.NoError(t, vid.WriteInt32s(features))
	for name, vals := range values {
		require.NoError(t, dataVars[name].WriteFloat32s(vals))
	}
}

func analysisVariables(n int) map[string][]float32 {
	mk := func(base float32) []float32 {
		vals := make([]float32, n)
		for i := range vals {
			vals[i] = base + float32(i)
		}
		return vals
	}
	return map[string][]float32{
		"streamflow":    mk(10),
		"velocity":      mk(0.5),
		"nudge":         mk(0),
		"q_surface":     mk(1),
		"q_subsurface":  mk(2),
		"q_groundwater": mk(3),
	}
}

func testPipeline(t *testing.T, cacheDir, baseURL string, loader *fakeLoader, runs *fakeRunLog) *Pipeline {
	t.Helper()
	log := zap.NewNop()
	fetcher := nwm.NewFetcher(nwm.FetchConfig{
		BaseURL:        baseURL,
		CacheDir:       cacheDir,
		MaxRetries:     1,
		BackoffInitial: time.Millisecond,
		BackoffMax:     2 * time.Millisecond,
		Timeout:        5 * time.Second,
	}, log)
	validator := nwm.NewValidator(map[int64]struct{}{101: {}, 102: {}}, 0, 0.05, log)
	cfg := config.IngestConfig{Domain: "conus", MalformedAlertAfter: 2}
	return NewPipeline(fetcher, validator, loader, runs, cfg, log)
}

func TestRunJobIngestsCachedCycle(t *testing.T) {
	cacheDir := t.TempDir()
	cycle := time.Date(2025, 5, 14, 6, 0, 0, 0, time.UTC)
	dest := filepath.Join(cacheDir, filepath.FromSlash(
		nwm.ArchivePath(nwm.ProductAnalysis, cycle, 0, "conus")))
	writeChannelArtifact(t, dest, []int32{101, 102}, analysisVariables(2))

	loader := &fakeLoader{}
	runs := &fakeRunLog{}
	p := testPipeline(t, cacheDir, "http://archive.invalid", loader, runs)

	job, err := nwm.NewCycleJob(nwm.ProductAnalysis, cycle, "conus")
	require.NoError(t, err)

	status, err := p.RunJob(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, store.RunSuccess, status)

	// 2 reaches x 6 variables.
	assert.Len(t, loader.hydro, 12)
	for _, r := range loader.hydro {
		assert.Equal(t, domain.SourceAnalysis, r.Source)
		assert.True(t, r.ValidTime.Equal(cycle))
		assert.Nil(t, r.ForecastHour)
	}

	run := runs.last()
	require.NotNil(t, run)
	assert.Equal(t, store.RunSuccess, run.Status)
	assert.Equal(t, int64(12), run.RecordsIngested)
	assert.Nil(t, run.ErrorMessage)
}

func TestRunJobSkipsUnpublishedCycle(t *testing.T) {
	archive := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	t.Cleanup(archive.Close)

	loader := &fakeLoader{}
	runs := &fakeRunLog{}
	p := testPipeline(t, t.TempDir(), archive.URL, loader, runs)

	job, err := nwm.NewCycleJob(nwm.ProductAnalysis, time.Date(2025, 5, 14, 7, 0, 0, 0, time.UTC), "conus")
	require.NoError(t, err)

	status, err := p.RunJob(context.Background(), job)
	require.NoError(t, err, "unpublished cycles are not failures")
	assert.Equal(t, store.RunSkipped, status)
	assert.Empty(t, loader.hydro)

	run := runs.last()
	require.NotNil(t, run)
	assert.Equal(t, store.RunSkipped, run.Status)
	require.NotNil(t, run.ErrorMessage)
	assert.Contains(t, *run.ErrorMessage, "not yet published")
}

func TestRunJobClassifiesInvalidFrame(t *testing.T) {
	cacheDir := t.TempDir()
	cycle := time.Date(2025, 5, 14, 8, 0, 0, 0, time.UTC)
	dest := filepath.Join(cacheDir, filepath.FromSlash(
		nwm.ArchivePath(nwm.ProductAnalysis, cycle, 0, "conus")))
	// Feature 999 is outside the reference domain.
	writeChannelArtifact(t, dest, []int32{101, 999}, analysisVariables(2))

	loader := &fakeLoader{}
	runs := &fakeRunLog{}
	p := testPipeline(t, cacheDir, "http://archive.invalid", loader, runs)

	job, err := nwm.NewCycleJob(nwm.ProductAnalysis, cycle, "conus")
	require.NoError(t, err)

	status, err := p.RunJob(context.Background(), job)
	require.Error(t, err)
	assert.Equal(t, store.RunFailed, status)
	assert.Empty(t, loader.hydro, "nothing loads from an invalid frame")

	run := runs.last()
	require.NotNil(t, run)
	assert.Equal(t, store.RunFailed, run.Status)
	require.NotNil(t, run.ErrorMessage)
	assert.Contains(t, *run.ErrorMessage, "invalid:")
	assert.Contains(t, *run.ErrorMessage, "domain_mismatch")
}

func TestRunJobClassifiesStoreFailure(t *testing.T) {
	cacheDir := t.TempDir()
	cycle := time.Date(2025, 5, 14, 9, 0, 0, 0, time.UTC)
	dest := filepath.Join(cacheDir, filepath.FromSlash(
		nwm.ArchivePath(nwm.ProductAnalysis, cycle, 0, "conus")))
	writeChannelArtifact(t, dest, []int32{101, 102}, analysisVariables(2))

	loader := &fakeLoader{hydroErr: assert.AnError}
	runs := &fakeRunLog{}
	p := testPipeline(t, cacheDir, "http://archive.invalid", loader, runs)

	job, err := nwm.NewCycleJob(nwm.ProductAnalysis, cycle, "conus")
	require.NoError(t, err)

	status, err := p.RunJob(context.Background(), job)
	require.Error(t, err)
	assert.Equal(t, store.RunFailed, status)

	run := runs.last()
	require.NotNil(t, run)
	require.NotNil(t, run.ErrorMessage)
	assert.Contains(t, *run.ErrorMessage, "store:")
}

func TestRunJobClassifiesDeadlineExpiry(t *testing.T) {
	cacheDir := t.TempDir()
	cycle := time.Date(2025, 5, 14, 10, 0, 0, 0, time.UTC)
	dest := filepath.Join(cacheDir, filepath.FromSlash(
		nwm.ArchivePath(nwm.ProductAnalysis, cycle, 0, "conus")))
	writeChannelArtifact(t, dest, []int32{101, 102}, analysisVariables(2))

	loader := &fakeLoader{hydroErr: fmt.Errorf("bulk upsert: %w", context.DeadlineExceeded)}
	runs := &fakeRunLog{}
	p := testPipeline(t, cacheDir, "http://archive.invalid", loader, runs)

	job, err := nwm.NewCycleJob(nwm.ProductAnalysis, cycle, "conus")
	require.NoError(t, err)

	status, err := p.RunJob(context.Background(), job)
	require.Error(t, err)
	assert.Equal(t, store.RunFailed, status)

	run := runs.last()
	require.NotNil(t, run)
	require.NotNil(t, run.ErrorMessage)
	assert.Contains(t, *run.ErrorMessage, "timeout:",
		"deadline expiry leads with the timeout class")
}

func TestMalformedStreakTracking(t *testing.T) {
	loader := &fakeLoader{}
	runs := &fakeRunLog{}
	p := testPipeline(t, t.TempDir(), "http://archive.invalid", loader, runs)

	p.noteMalformed(nwm.ProductAnalysis)
	assert.Equal(t, 1, p.streaks[nwm.ProductAnalysis])
	p.noteMalformed(nwm.ProductAnalysis)
	assert.Equal(t, 2, p.streaks[nwm.ProductAnalysis])

	p.resetStreak(nwm.ProductAnalysis)
	assert.Equal(t, 0, p.streaks[nwm.ProductAnalysis])

	// Streaks are tracked per product.
	p.noteMalformed(nwm.ProductMediumBlend)
	assert.Equal(t, 0, p.streaks[nwm.ProductAnalysis])
	assert.Equal(t, 1, p.streaks[nwm.ProductMediumBlend])
}

func TestDedupeRecordsLastWins(t *testing.T) {
	at := time.Date(2025, 5, 14, 6, 0, 0, 0, time.UTC)
	records := []domain.HydroRecord{
		{FeatureID: 101, ValidTime: at, Variable: domain.VarStreamflow, Source: domain.SourceAnalysis, Value: domain.Float(1)},
		{FeatureID: 102, ValidTime: at, Variable: domain.VarStreamflow, Source: domain.SourceAnalysis, Value: domain.Float(2)},
		{FeatureID: 101, ValidTime: at, Variable: domain.VarStreamflow, Source: domain.SourceAnalysis, Value: domain.Float(3)},
	}

	deduped := dedupeRecords(records)
	require.Len(t, deduped, 2)
	assert.Equal(t, 3.0, *deduped[0].Value, "later duplicate replaces the earlier one in place")
	assert.Equal(t, 2.0, *deduped[1].Value)
}
