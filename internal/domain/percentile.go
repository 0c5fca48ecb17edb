package domain

import "math"

// FlowCondition is the qualitative band of a flow percentile.
type FlowCondition string

const (
	ConditionExtremeLow  FlowCondition = "extreme_low"
	ConditionLow         FlowCondition = "low"
	ConditionBelowNormal FlowCondition = "below_normal"
	ConditionNormal      FlowCondition = "normal"
	ConditionAboveNormal FlowCondition = "above_normal"
	ConditionHigh        FlowCondition = "high"
	ConditionExtremeHigh FlowCondition = "extreme_high"
	// ConditionUnknown is reported when no historical baseline exists for
	// the reach and month.
	ConditionUnknown FlowCondition = "unknown"
)

// PercentileResult is a flow percentile with its qualitative band.
type PercentileResult struct {
	Percentile float64       `json:"percentile"`
	Condition  FlowCondition `json:"condition"`
}

// Defined reports whether a baseline existed and the percentile is usable.
func (p PercentileResult) Defined() bool { return p.Condition != ConditionUnknown }

// Percentile estimates where a flow sits within the climatological
// distribution for the month, given only the monthly mean. The ratio
// flow/mean is squashed through a tanh so that flow equal to the mean maps
// to the 50th percentile and extremes saturate at 0 and 100 instead of
// running off the scale. A missing or non-positive mean yields the unknown
// condition.
func Percentile(flow, monthlyMean float64) PercentileResult {
	if monthlyMean <= 0 {
		return PercentileResult{Condition: ConditionUnknown}
	}
	ratio := flow / monthlyMean
	pct := 50 + 50*math.Tanh((ratio-1)*2)
	if pct < 0 {
		pct = 0
	} else if pct > 100 {
		pct = 100
	}
	return PercentileResult{Percentile: pct, Condition: classifyCondition(pct)}
}

// classifyCondition maps a percentile onto its band. Bands are half-open on
// the upper edge except the last, which includes 100.
func classifyCondition(pct float64) FlowCondition {
	switch {
	case pct < 10:
		return ConditionExtremeLow
	case pct < 25:
		return ConditionLow
	case pct < 40:
		return ConditionBelowNormal
	case pct < 60:
		return ConditionNormal
	case pct < 75:
		return ConditionAboveNormal
	case pct < 90:
		return ConditionHigh
	default:
		return ConditionExtremeHigh
	}
}
