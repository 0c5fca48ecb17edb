package domain

import "time"

// GradientClass is the channel morphology band derived from flowline slope.
type GradientClass string

const (
	GradientPool    GradientClass = "pool"
	GradientRun     GradientClass = "run"
	GradientRiffle  GradientClass = "riffle"
	GradientCascade GradientClass = "cascade"
)

// SizeClass is the stream size band derived from drainage area.
type SizeClass string

const (
	SizeHeadwater  SizeClass = "headwater"
	SizeCreek      SizeClass = "creek"
	SizeSmallRiver SizeClass = "small_river"
	SizeRiver      SizeClass = "river"
	SizeLargeRiver SizeClass = "large_river"
)

// Flowline is the immutable reference description of one stream reach.
// GradientClass and SizeClass are derived once at load from slope and
// drainage area.
type Flowline struct {
	FeatureID     int64         `db:"feature_id" json:"feature_id"`
	Geometry      string        `db:"geom" json:"-"` // WKT linestring
	Name          string        `db:"gnis_name" json:"name,omitempty"`
	DrainageSqKm  float64       `db:"drainage_sqkm" json:"drainage_sqkm"`
	StreamOrder   int           `db:"stream_order" json:"stream_order"`
	Slope         float64       `db:"slope" json:"slope"` // m/m
	MinElevM      *float64      `db:"min_elev_m" json:"min_elev_m,omitempty"`
	MaxElevM      *float64      `db:"max_elev_m" json:"max_elev_m,omitempty"`
	GradientClass GradientClass `db:"gradient_class" json:"gradient_class"`
	SizeClass     SizeClass     `db:"size_class" json:"size_class"`
}

// MeanElevation returns the midpoint of the reach elevation range, or nil
// when neither bound is known.
func (f Flowline) MeanElevation() *float64 {
	switch {
	case f.MinElevM != nil && f.MaxElevM != nil:
		m := (*f.MinElevM + *f.MaxElevM) / 2
		return &m
	case f.MinElevM != nil:
		return f.MinElevM
	case f.MaxElevM != nil:
		return f.MaxElevM
	}
	return nil
}

// ClassifyGradient bands a flowline slope (m/m). Thresholds follow the
// Rosgen-style breaks used for the reference load: below 0.05% the channel
// ponds, above 2% it cascades.
func ClassifyGradient(slope float64) GradientClass {
	switch {
	case slope < 0.0005:
		return GradientPool
	case slope < 0.005:
		return GradientRun
	case slope < 0.02:
		return GradientRiffle
	default:
		return GradientCascade
	}
}

// ClassifySize bands a drainage area in km² by decade.
func ClassifySize(drainageSqKm float64) SizeClass {
	switch {
	case drainageSqKm < 10:
		return SizeHeadwater
	case drainageSqKm < 100:
		return SizeCreek
	case drainageSqKm < 1000:
		return SizeSmallRiver
	case drainageSqKm < 10000:
		return SizeRiver
	default:
		return SizeLargeRiver
	}
}

// ReachCentroid is the probe location for external weather inputs, the
// geometric centroid of the flowline.
type ReachCentroid struct {
	FeatureID int64   `db:"feature_id" json:"feature_id"`
	Lat       float64 `db:"lat" json:"lat"`
	Lon       float64 `db:"lon" json:"lon"`
}

// MonthlyFlowStats is the historical baseline for one reach and month.
// Months beyond June may be absent from the reference source.
type MonthlyFlowStats struct {
	FeatureID    int64    `db:"feature_id" json:"feature_id"`
	Month        int      `db:"month" json:"month"`
	MeanFlow     float64  `db:"mean_flow_m3s" json:"mean_flow_m3s"`
	MeanVelocity *float64 `db:"mean_velocity_ms" json:"mean_velocity_ms,omitempty"`
}

// TemperatureRecord is one hourly weather observation or forecast at a
// reach centroid. Identity is (FeatureID, ValidTime, Source, ForecastHour).
type TemperatureRecord struct {
	FeatureID     int64     `db:"feature_id"`
	ValidTime     time.Time `db:"valid_time"`
	AirTempC      *float64  `db:"air_temp_c"`
	ApparentTempC *float64  `db:"apparent_temp_c"`
	PrecipMM      *float64  `db:"precipitation_mm"`
	CloudCoverPct *float64  `db:"cloud_cover_pct"`
	Source        string    `db:"source"`
	ForecastHour  *int      `db:"forecast_hour"`
}
