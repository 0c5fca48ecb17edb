// Package domain holds the canonical record model and the pure metric and
// scoring engines. Nothing in this package performs IO; every function is
// deterministic in its inputs and configuration so results are reproducible
// across runs.
package domain

import (
	"fmt"
	"time"
)

// Source tags the forecast product family a record was normalized from.
type Source string

const (
	// SourceAnalysis is the hourly current-time product with data assimilation.
	SourceAnalysis Source = "analysis"
	// SourceShortForecast is the hourly short-range forecast product.
	SourceShortForecast Source = "short_forecast"
	// SourceMediumBlend is the 6-hourly blended medium-range forecast product.
	SourceMediumBlend Source = "medium_forecast_blend"
	// SourceAnalysisNoAssim is the daily open-loop analysis without assimilation.
	SourceAnalysisNoAssim Source = "analysis_no_assim"
)

// Sources lists the closed set of canonical source tags.
func Sources() []Source {
	return []Source{SourceAnalysis, SourceShortForecast, SourceMediumBlend, SourceAnalysisNoAssim}
}

// IsForecast reports whether records from this source carry a forecast hour.
func (s Source) IsForecast() bool {
	return s == SourceShortForecast || s == SourceMediumBlend
}

// Valid reports whether s is one of the canonical source tags.
func (s Source) Valid() bool {
	switch s {
	case SourceAnalysis, SourceShortForecast, SourceMediumBlend, SourceAnalysisNoAssim:
		return true
	}
	return false
}

// Variable names one of the canonical hydrologic quantities. Product-specific
// variable names are translated to these at the parser boundary and never
// leave the ingestion pipeline.
type Variable string

const (
	VarStreamflow   Variable = "streamflow"    // m³/s
	VarVelocity     Variable = "velocity"      // m/s
	VarNudge        Variable = "nudge"         // m³/s, assimilation correction
	VarQSurface     Variable = "q_surface"     // m³/s, surface lateral runoff
	VarQSubsurface  Variable = "q_subsurface"  // m³/s, shallow subsurface flow
	VarQGroundwater Variable = "q_groundwater" // m³/s, groundwater bucket discharge
)

// Variables lists the closed set of canonical variables.
func Variables() []Variable {
	return []Variable{VarStreamflow, VarVelocity, VarNudge, VarQSurface, VarQSubsurface, VarQGroundwater}
}

// Valid reports whether v is one of the canonical variables.
func (v Variable) Valid() bool {
	switch v {
	case VarStreamflow, VarVelocity, VarNudge, VarQSurface, VarQSubsurface, VarQGroundwater:
		return true
	}
	return false
}

// HydroRecord is the canonical ingested unit: one variable value for one reach
// at one absolute UTC instant. Identity is (FeatureID, ValidTime, Variable,
// Source); ForecastHour is a derived attribute kept for observability and
// confidence classification only.
type HydroRecord struct {
	FeatureID    int64
	ValidTime    time.Time
	Variable     Variable
	Value        *float64 // nil = missing, distinguishable from zero
	Source       Source
	ForecastHour *int // nil for analysis sources
	IngestedAt   time.Time
}

// Key returns the primary identity of the record as a comparable value.
func (r HydroRecord) Key() RecordKey {
	return RecordKey{
		FeatureID: r.FeatureID,
		ValidTime: r.ValidTime.Unix(),
		Variable:  r.Variable,
		Source:    r.Source,
	}
}

// RecordKey is the comparable primary identity of a HydroRecord.
type RecordKey struct {
	FeatureID int64
	ValidTime int64
	Variable  Variable
	Source    Source
}

// Timeframe selects which slice of the time-series a reach query covers.
type Timeframe string

const (
	// TimeframeNow resolves to the latest analysis value at or before query time.
	TimeframeNow Timeframe = "now"
	// TimeframeToday covers short-forecast valid times in (T, T+18h].
	TimeframeToday Timeframe = "today"
	// TimeframeOutlook covers medium blend valid times in (T, T+10d].
	TimeframeOutlook Timeframe = "outlook"
	// TimeframeAll concatenates now, today and outlook in valid-time order.
	TimeframeAll Timeframe = "all"
)

// ParseTimeframe maps a query token onto a Timeframe.
func ParseTimeframe(s string) (Timeframe, error) {
	switch Timeframe(s) {
	case TimeframeNow, TimeframeToday, TimeframeOutlook, TimeframeAll:
		return Timeframe(s), nil
	case "":
		return TimeframeNow, nil
	}
	return "", fmt.Errorf("unknown timeframe %q (expected now, today, outlook or all)", s)
}

// Timeframes lists the externally visible timeframe tokens.
func Timeframes() []Timeframe {
	return []Timeframe{TimeframeNow, TimeframeToday, TimeframeOutlook, TimeframeAll}
}

// CFSPerCubicMeterPerSecond converts legacy imperial discharge to SI.
const CFSPerCubicMeterPerSecond = 35.3147

// TodayHorizon is the short-forecast window served by the today timeframe.
const TodayHorizon = 18 * time.Hour

// OutlookHorizon is the medium blend window served by the outlook timeframe.
const OutlookHorizon = 10 * 24 * time.Hour

// FlowPoint is one sample of a reach flow series. A nil Value marks a sample
// that exists in time but carries no usable measurement.
type FlowPoint struct {
	Time  time.Time
	Value *float64
}

// Float returns a pointer to v; convenience for building records and samples.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to n.
func Int(n int) *int { return &n }
