// Package csv reads the reference data set distributed as CSV: flowline
// attributes, monthly historical flow baselines and reach centroids. The
// files are loaded once into the relational store by the ingestor's
// reference-load mode.
package csv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/driftwise/reach-api/internal/domain"
)

// File names expected inside the reference directory.
const (
	FlowlinesFile = "flowlines.csv"
	StatsFile     = "monthly_flow_stats.csv"
	CentroidsFile = "reach_centroids.csv"
)

// ReferenceStore reads reference CSVs from a single directory.
type ReferenceStore struct {
	dataDir string
}

// NewReferenceStore creates a CSV-backed reference reader rooted at dataDir.
func NewReferenceStore(dataDir string) *ReferenceStore {
	return &ReferenceStore{dataDir: dataDir}
}

// LoadFlowlines reads flowlines.csv. Gradient and size classes are derived
// here so the store only ever sees classified rows.
//
// Expected header: feature_id, gnis_name, stream_order, slope,
// drainage_sqkm, min_elev_m, max_elev_m, geom_wkt. Elevation fields may be
// empty.
func (s *ReferenceStore) LoadFlowlines() ([]domain.Flowline, error) {
	rows, err := s.readAll(FlowlinesFile, []string{
		"feature_id", "gnis_name", "stream_order", "slope",
		"drainage_sqkm", "min_elev_m", "max_elev_m", "geom_wkt",
	})
	if err != nil {
		return nil, err
	}

	flowlines := make([]domain.Flowline, 0, len(rows))
	for i, rec := range rows {
		featureID, err := parseInt64(rec[0])
		if err != nil {
			return nil, fmt.Errorf("%s row %d: invalid feature_id: %w", FlowlinesFile, i+2, err)
		}
		order, err := strconv.Atoi(rec[2])
		if err != nil {
			return nil, fmt.Errorf("%s row %d: invalid stream_order: %w", FlowlinesFile, i+2, err)
		}
		slope, err := strconv.ParseFloat(rec[3], 64)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: invalid slope: %w", FlowlinesFile, i+2, err)
		}
		drainage, err := strconv.ParseFloat(rec[4], 64)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: invalid drainage_sqkm: %w", FlowlinesFile, i+2, err)
		}
		minElev, err := parseOptionalFloat(rec[5])
		if err != nil {
			return nil, fmt.Errorf("%s row %d: invalid min_elev_m: %w", FlowlinesFile, i+2, err)
		}
		maxElev, err := parseOptionalFloat(rec[6])
		if err != nil {
			return nil, fmt.Errorf("%s row %d: invalid max_elev_m: %w", FlowlinesFile, i+2, err)
		}

		flowlines = append(flowlines, domain.Flowline{
			FeatureID:     featureID,
			Name:          rec[1],
			StreamOrder:   order,
			Slope:         slope,
			DrainageSqKm:  drainage,
			MinElevM:      minElev,
			MaxElevM:      maxElev,
			Geometry:      rec[7],
			GradientClass: domain.ClassifyGradient(slope),
			SizeClass:     domain.ClassifySize(drainage),
		})
	}

	if len(flowlines) == 0 {
		return nil, fmt.Errorf("no flowlines found in %s", FlowlinesFile)
	}
	return flowlines, nil
}

// LoadMonthlyStats reads monthly_flow_stats.csv. The flow column carries
// its unit in the header: mean_flow_m3s is stored as-is, mean_flow_cfs is
// converted to SI at load. mean_velocity_ms may be empty.
func (s *ReferenceStore) LoadMonthlyStats() ([]domain.MonthlyFlowStats, error) {
	path := filepath.Join(s.dataDir, StatsFile)

	//nolint:gosec // G304: File path constructed from dataDir (config) and a fixed name.
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", StatsFile, err)
	}
	defer func() { _ = file.Close() }()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s header: %w", StatsFile, err)
	}
	if len(header) != 4 || header[0] != "feature_id" || header[1] != "month" || header[3] != "mean_velocity_ms" {
		return nil, fmt.Errorf("invalid %s header: got %v", StatsFile, header)
	}

	// The flow unit is declared by the header name.
	var flowDivisor float64
	switch header[2] {
	case "mean_flow_m3s":
		flowDivisor = 1
	case "mean_flow_cfs":
		flowDivisor = domain.CFSPerCubicMeterPerSecond
	default:
		return nil, fmt.Errorf("invalid %s header: unknown flow column %q", StatsFile, header[2])
	}

	stats := make([]domain.MonthlyFlowStats, 0)
	row := 1
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s record: %w", StatsFile, err)
		}
		row++
		if len(rec) != 4 {
			return nil, fmt.Errorf("%s row %d: expected 4 columns, got %d", StatsFile, row, len(rec))
		}

		featureID, err := parseInt64(rec[0])
		if err != nil {
			return nil, fmt.Errorf("%s row %d: invalid feature_id: %w", StatsFile, row, err)
		}
		month, err := strconv.Atoi(strings.TrimSpace(rec[1]))
		if err != nil {
			return nil, fmt.Errorf("%s row %d: invalid month: %w", StatsFile, row, err)
		}
		if month < 1 || month > 12 {
			return nil, fmt.Errorf("%s row %d: month %d out of range", StatsFile, row, month)
		}
		flow, err := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: invalid mean flow: %w", StatsFile, row, err)
		}
		velocity, err := parseOptionalFloat(rec[3])
		if err != nil {
			return nil, fmt.Errorf("%s row %d: invalid mean_velocity_ms: %w", StatsFile, row, err)
		}

		stats = append(stats, domain.MonthlyFlowStats{
			FeatureID:    featureID,
			Month:        month,
			MeanFlow:     flow / flowDivisor,
			MeanVelocity: velocity,
		})
	}

	if len(stats) == 0 {
		return nil, fmt.Errorf("no monthly statistics found in %s", StatsFile)
	}
	return stats, nil
}

// LoadCentroids reads reach_centroids.csv.
func (s *ReferenceStore) LoadCentroids() ([]domain.ReachCentroid, error) {
	rows, err := s.readAll(CentroidsFile, []string{"feature_id", "lat", "lon"})
	if err != nil {
		return nil, err
	}

	centroids := make([]domain.ReachCentroid, 0, len(rows))
	for i, rec := range rows {
		featureID, err := parseInt64(rec[0])
		if err != nil {
			return nil, fmt.Errorf("%s row %d: invalid feature_id: %w", CentroidsFile, i+2, err)
		}
		lat, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: invalid lat: %w", CentroidsFile, i+2, err)
		}
		lon, err := strconv.ParseFloat(rec[2], 64)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: invalid lon: %w", CentroidsFile, i+2, err)
		}
		if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
			return nil, fmt.Errorf("%s row %d: coordinates out of range (%g, %g)", CentroidsFile, i+2, lat, lon)
		}
		centroids = append(centroids, domain.ReachCentroid{FeatureID: featureID, Lat: lat, Lon: lon})
	}

	if len(centroids) == 0 {
		return nil, fmt.Errorf("no centroids found in %s", CentroidsFile)
	}
	return centroids, nil
}

// readAll opens a reference file, validates its header against the expected
// column names and returns all trimmed data rows.
func (s *ReferenceStore) readAll(name string, expectedHeaders []string) ([][]string, error) {
	path := filepath.Join(s.dataDir, name)

	//nolint:gosec // G304: File path constructed from dataDir (config) and a fixed name.
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer func() { _ = file.Close() }()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s header: %w", name, err)
	}
	if len(header) != len(expectedHeaders) {
		return nil, fmt.Errorf("invalid %s header: expected %v, got %v", name, expectedHeaders, header)
	}
	for i, h := range header {
		if h != expectedHeaders[i] {
			return nil, fmt.Errorf("invalid %s header: expected column %d to be %s, got %s", name, i, expectedHeaders[i], h)
		}
	}

	rows := make([][]string, 0)
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s record: %w", name, err)
		}
		if len(rec) != len(expectedHeaders) {
			return nil, fmt.Errorf("%s row %d: expected %d columns, got %d", name, len(rows)+2, len(expectedHeaders), len(rec))
		}
		for i := range rec {
			rec[i] = strings.TrimSpace(rec[i])
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

func parseInt64(s string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
}

// parseOptionalFloat maps an empty field to nil.
func parseOptionalFloat(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
