package domain

import (
	"fmt"
	"math"
)

// ThermalParams drives the air-to-water temperature translation. The
// logistic S-curve saturates at Mu for arctic air and Alpha for hot air,
// crossing its midpoint at Beta. Groundwater buffering pulls the estimate
// toward TGw in proportion to the reach BDI.
type ThermalParams struct {
	Alpha float64 `yaml:"alpha"` // warm-air asymptote, °C
	Mu    float64 `yaml:"mu"`    // cold-air asymptote, °C
	Gamma float64 `yaml:"gamma"` // logistic steepness
	Beta  float64 `yaml:"beta"`  // air temperature at curve midpoint, °C
	KGw   float64 `yaml:"k_gw"`  // groundwater buffering strength
	TGw   float64 `yaml:"t_gw"`  // groundwater temperature, °C
	ZRef  float64 `yaml:"z_ref"` // reference elevation for the lapse term, m
}

// DefaultThermalParams returns the calibration used when a region supplies
// no override.
func DefaultThermalParams() ThermalParams {
	return ThermalParams{
		Alpha: 24,
		Mu:    2,
		Gamma: 0.20,
		Beta:  15,
		KGw:   0.35,
		TGw:   10,
		ZRef:  1500,
	}
}

// lapseDegrees is the water temperature change per lapseStepMeters of
// elevation above the reference.
const (
	lapseDegrees    = -0.6
	lapseStepMeters = 300.0
)

// WaterTemperature estimates stream temperature from air temperature. The
// estimate starts on the logistic curve, is pulled toward groundwater
// temperature by the reach BDI, and is lapse-adjusted when the reach
// elevation is known.
func WaterTemperature(airTemp, bdi float64, elevation *float64, p ThermalParams) float64 {
	tw := p.Mu + (p.Alpha-p.Mu)/(1+math.Exp(p.Gamma*(p.Beta-airTemp)))
	tw -= p.KGw * bdi * (tw - p.TGw)
	if elevation != nil {
		tw += (*elevation - p.ZRef) / lapseStepMeters * lapseDegrees
	}
	return tw
}

// TempThresholds are a species' water temperature preferences in °C.
// Stress and Critical sit above the optimal band; the cold side mirrors
// them at the same distances below OptimalMin.
type TempThresholds struct {
	OptimalMin float64 `json:"optimal_min" yaml:"optimal_min"`
	OptimalMax float64 `json:"optimal_max" yaml:"optimal_max"`
	Stress     float64 `json:"stress" yaml:"stress"`
	Critical   float64 `json:"critical" yaml:"critical"`
}

// Validate checks that the thresholds are monotone.
func (t TempThresholds) Validate() error {
	if !(t.OptimalMin <= t.OptimalMax && t.OptimalMax <= t.Stress && t.Stress <= t.Critical) {
		return fmt.Errorf("temperature thresholds out of order: [%g, %g, %g, %g]",
			t.OptimalMin, t.OptimalMax, t.Stress, t.Critical)
	}
	return nil
}

// ThermalScore maps a water temperature onto [0, 1] suitability. Inside the
// optimal band the score is 1; it decays linearly to 0.5 at the stress
// threshold, to 0 at the critical threshold, and is 0 beyond. Temperatures
// below the optimal band are scored against the mirrored thresholds.
func ThermalScore(waterTemp float64, th TempThresholds) float64 {
	if waterTemp >= th.OptimalMin && waterTemp <= th.OptimalMax {
		return 1
	}
	stressGap := th.Stress - th.OptimalMax
	criticalGap := th.Critical - th.Stress
	if waterTemp > th.OptimalMax {
		return decay(waterTemp-th.OptimalMax, stressGap, criticalGap)
	}
	return decay(th.OptimalMin-waterTemp, stressGap, criticalGap)
}

// decay scores a distance past the optimal edge: 1 → 0.5 across the stress
// gap, 0.5 → 0 across the critical gap, 0 beyond. Zero-width gaps drop
// straight to the next tier.
func decay(excess, stressGap, criticalGap float64) float64 {
	if excess <= stressGap {
		if stressGap <= 0 {
			return 0.5
		}
		return 1 - 0.5*(excess/stressGap)
	}
	excess -= stressGap
	if excess <= criticalGap {
		if criticalGap <= 0 {
			return 0
		}
		return 0.5 * (1 - excess/criticalGap)
	}
	return 0
}

// ThermalResult is the water temperature estimate with its suitability.
type ThermalResult struct {
	WaterTemp float64 `json:"water_temp_c"`
	Score     float64 `json:"score"`
}

// ThermalSuitability runs both stages: air-to-water translation, then
// scoring against the species thresholds.
func ThermalSuitability(airTemp, bdi float64, elevation *float64, p ThermalParams, th TempThresholds) ThermalResult {
	tw := WaterTemperature(airTemp, bdi, elevation, p)
	return ThermalResult{WaterTemp: tw, Score: ThermalScore(tw, th)}
}
