package nwm

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/driftwise/reach-api/internal/domain"
)

// feetPerMeter converts imperial velocity to SI.
const feetPerMeter = 3.28084

// Normalize turns a parsed, validated frame into canonical hydro records:
// absolute UTC valid times, canonical variable and source tags, SI units,
// nil values for missing samples. Records come out sorted by (feature_id,
// variable) within the frame's single valid time.
//
// Forecast-hour rules are exact: analysis products ignore the offset and
// stamp the cycle time itself; a short-range offset of 0 has no meaning and
// the whole frame is discarded; forecast offsets become both the valid-time
// shift and the retained forecast_hour attribute.
func Normalize(frame *Frame, ingestedAt time.Time) ([]domain.HydroRecord, error) {
	var validTime time.Time
	var forecastHour *int

	switch frame.Product {
	case ProductAnalysis, ProductNoAssim:
		validTime = frame.CycleTime
	case ProductShortForecast:
		if frame.ForecastHour == 0 {
			return nil, nil
		}
		validTime = frame.CycleTime.Add(time.Duration(frame.ForecastHour) * time.Hour)
		forecastHour = &frame.ForecastHour
	case ProductMediumBlend:
		validTime = frame.CycleTime.Add(time.Duration(frame.ForecastHour) * time.Hour)
		forecastHour = &frame.ForecastHour
	default:
		return nil, fmt.Errorf("unknown product %q", frame.Product)
	}

	records := make([]domain.HydroRecord, 0, len(frame.FeatureIDs)*len(frame.Columns))
	source := frame.Product.Source()
	for _, col := range frame.Columns {
		convert, err := unitConversion(col.Variable, col.Units)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", frame.Product, err)
		}
		for i, id := range frame.FeatureIDs {
			rec := domain.HydroRecord{
				FeatureID:    id,
				ValidTime:    validTime,
				Variable:     col.Variable,
				Source:       source,
				ForecastHour: forecastHour,
				IngestedAt:   ingestedAt,
			}
			if v := col.Values[i]; !math.IsNaN(v) {
				converted := convert(v)
				rec.Value = &converted
			}
			records = append(records, rec)
		}
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].FeatureID != records[j].FeatureID {
			return records[i].FeatureID < records[j].FeatureID
		}
		return records[i].Variable < records[j].Variable
	})
	return records, nil
}

// NormalizeArtifacts runs the full frame set of a cycle job through
// Normalize, concatenating the record streams.
func NormalizeArtifacts(frames []*Frame, ingestedAt time.Time) ([]domain.HydroRecord, error) {
	var all []domain.HydroRecord
	for _, frame := range frames {
		records, err := Normalize(frame, ingestedAt)
		if err != nil {
			return nil, err
		}
		all = append(all, records...)
	}
	return all, nil
}

// SpreadSamples extracts materializable ensemble dispersion from a blend
// frame, stamped with the frame's valid time. Fill values and negative
// dispersions are dropped; frames without a spread vector yield nil.
func SpreadSamples(frame *Frame) []domain.SpreadSample {
	if frame.Spread == nil || frame.Product != ProductMediumBlend || frame.ForecastHour == 0 {
		return nil
	}
	validTime := frame.CycleTime.Add(time.Duration(frame.ForecastHour) * time.Hour)

	samples := make([]domain.SpreadSample, 0, len(frame.FeatureIDs))
	for i, id := range frame.FeatureIDs {
		cv := frame.Spread[i]
		if math.IsNaN(cv) || cv < 0 {
			continue
		}
		samples = append(samples, domain.SpreadSample{FeatureID: id, ValidTime: validTime, CV: cv})
	}
	return samples
}

// unitConversion returns the SI conversion for a variable's declared unit.
// An empty unit string is taken as SI; a recognized imperial unit converts;
// anything else is a malformed artifact.
func unitConversion(variable domain.Variable, units string) (func(float64) float64, error) {
	identity := func(v float64) float64 { return v }
	u := canonicalUnit(units)

	switch variable {
	case domain.VarStreamflow, domain.VarNudge,
		domain.VarQSurface, domain.VarQSubsurface, domain.VarQGroundwater:
		switch u {
		case "", "m3 s-1", "m3/s":
			return identity, nil
		case "cfs", "ft3 s-1", "ft3/s":
			return func(v float64) float64 { return v / domain.CFSPerCubicMeterPerSecond }, nil
		}
	case domain.VarVelocity:
		switch u {
		case "", "m s-1", "m/s":
			return identity, nil
		case "ft s-1", "ft/s", "fps":
			return func(v float64) float64 { return v / feetPerMeter }, nil
		}
	}
	return nil, fmt.Errorf("unknown unit %q for variable %s", units, variable)
}

// canonicalUnit lowercases and strips the decorations unit strings pick up
// in the wild ("m^3 s^-1", "M3/S").
func canonicalUnit(units string) string {
	u := strings.ToLower(strings.TrimSpace(units))
	u = strings.ReplaceAll(u, "^", "")
	u = strings.Join(strings.Fields(u), " ")
	return u
}
