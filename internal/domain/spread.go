package domain

import (
	"fmt"
	"math"
	"time"
)

// SpreadLevel classifies ensemble disagreement by coefficient of variation.
type SpreadLevel string

const (
	SpreadLow      SpreadLevel = "low"
	SpreadModerate SpreadLevel = "moderate"
	SpreadHigh     SpreadLevel = "high"
)

// SpreadResult summarizes the dispersion of an ensemble of member flows.
type SpreadResult struct {
	N     int         `json:"n"`
	Mean  float64     `json:"mean"`
	Std   float64     `json:"std"`
	CV    float64     `json:"cv"`
	Level SpreadLevel `json:"level"`
}

// EnsembleSpread computes mean, population standard deviation and
// coefficient of variation of the member flows. CV is defined as 0 when the
// mean is not positive. ok is false for an empty ensemble.
func EnsembleSpread(flows []float64) (SpreadResult, bool) {
	n := len(flows)
	if n == 0 {
		return SpreadResult{}, false
	}
	var sum float64
	for _, q := range flows {
		sum += q
	}
	mean := sum / float64(n)
	var ss float64
	for _, q := range flows {
		d := q - mean
		ss += d * d
	}
	std := math.Sqrt(ss / float64(n))
	cv := 0.0
	if mean > 0 {
		cv = std / mean
	}
	return SpreadResult{N: n, Mean: mean, Std: std, CV: cv, Level: classifySpread(cv)}, true
}

func classifySpread(cv float64) SpreadLevel {
	switch {
	case cv < 0.15:
		return SpreadLow
	case cv < 0.30:
		return SpreadModerate
	default:
		return SpreadHigh
	}
}

// SpreadSample is the persisted ensemble dispersion for one reach and valid
// time. Member flows themselves are transient; only their coefficient of
// variation survives ingestion.
type SpreadSample struct {
	FeatureID int64     `db:"feature_id"`
	ValidTime time.Time `db:"valid_time"`
	CV        float64   `db:"cv"`
}

// ConfidenceLevel is the trust grade attached to every served value.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// ConfidenceLevels lists the grades in descending order of trust.
func ConfidenceLevels() []ConfidenceLevel {
	return []ConfidenceLevel{ConfidenceHigh, ConfidenceMedium, ConfidenceLow}
}

// Confidence is a trust grade with the reason the classifier chose it.
type Confidence struct {
	Level     ConfidenceLevel `json:"level"`
	Reasoning string          `json:"reasoning"`
}

// ClassifyConfidence grades a value by its source, forecast horizon and
// ensemble spread. Rules are evaluated top to bottom and the first match
// wins; every input combination lands on exactly one grade. A nil cv means
// no ensemble spread was available; a nil forecastHour skips the
// horizon-specific rules.
func ClassifyConfidence(source Source, forecastHour *int, cv *float64) Confidence {
	if source == SourceAnalysis {
		return Confidence{ConfidenceHigh, "analysis value with data assimilation"}
	}
	if source == SourceShortForecast && forecastHour != nil {
		fh := *forecastHour
		switch {
		case fh <= 3:
			if cv == nil {
				return Confidence{ConfidenceHigh,
					fmt.Sprintf("short-range forecast %d h from cycle; ensemble spread unknown", fh)}
			}
			if *cv < 0.15 {
				return Confidence{ConfidenceHigh,
					fmt.Sprintf("short-range forecast %d h from cycle with tight ensemble agreement (CV %.2f)", fh, *cv)}
			}
			return Confidence{ConfidenceMedium,
				fmt.Sprintf("short-range forecast %d h from cycle but elevated ensemble spread (CV %.2f)", fh, *cv)}
		case fh >= 4 && fh <= 12:
			if cv != nil && *cv > 0.30 {
				return Confidence{ConfidenceLow,
					fmt.Sprintf("short-range forecast %d h from cycle with high ensemble spread (CV %.2f)", fh, *cv)}
			}
			return Confidence{ConfidenceMedium,
				fmt.Sprintf("short-range forecast %d h from cycle", fh)}
		}
	}
	if source == SourceMediumBlend {
		if cv != nil && *cv > 0.40 {
			return Confidence{ConfidenceLow,
				fmt.Sprintf("medium-range blend with high ensemble spread (CV %.2f)", *cv)}
		}
		return Confidence{ConfidenceMedium, "medium-range blend forecast"}
	}
	return Confidence{ConfidenceMedium, fmt.Sprintf("%s value outside specific confidence rules", source)}
}
