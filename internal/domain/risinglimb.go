package domain

import (
	"fmt"
	"time"
)

// LimbIntensity classifies the steepness of a detected rising limb.
type LimbIntensity string

const (
	LimbNone     LimbIntensity = "none"
	LimbWeak     LimbIntensity = "weak"
	LimbModerate LimbIntensity = "moderate"
	LimbStrong   LimbIntensity = "strong"
)

// RisingLimbParams tunes the rising-limb detector. Slopes are in m³/s per
// hour. MinDuration counts samples, so a run of MinDuration-1 qualifying
// slopes is the shortest detectable limb.
type RisingLimbParams struct {
	MinSlope    float64       `yaml:"min_slope"`
	MinDuration int           `yaml:"min_duration"`
	Weak        float64       `yaml:"weak"`
	Moderate    float64       `yaml:"moderate"`
	Strong      float64       `yaml:"strong"`
	MaxGap      time.Duration `yaml:"max_gap"`
}

// DefaultRisingLimbParams matches the hourly cadence of the forecast
// products: a limb must persist for three hourly samples and climb faster
// than 0.5 m³/s per hour to register.
func DefaultRisingLimbParams() RisingLimbParams {
	return RisingLimbParams{
		MinSlope:    0.5,
		MinDuration: 3,
		Weak:        1.0,
		Moderate:    5.0,
		Strong:      15.0,
		MaxGap:      3 * time.Hour,
	}
}

// Validate checks that the parameters describe a workable detector.
func (p RisingLimbParams) Validate() error {
	if p.MinDuration < 2 {
		return fmt.Errorf("min_duration must cover at least 2 samples, got %d", p.MinDuration)
	}
	if !(p.Weak <= p.Moderate && p.Moderate <= p.Strong) {
		return fmt.Errorf("intensity thresholds out of order: weak=%g moderate=%g strong=%g",
			p.Weak, p.Moderate, p.Strong)
	}
	if p.MaxGap <= 0 {
		return fmt.Errorf("max_gap must be positive, got %s", p.MaxGap)
	}
	return nil
}

// RisingLimbResult reports whether a reach is on a rising limb and how hard
// the flow is climbing. MaxSlope is only meaningful when Detected.
type RisingLimbResult struct {
	Detected  bool          `json:"detected"`
	Intensity LimbIntensity `json:"intensity"`
	MaxSlope  float64       `json:"max_slope,omitempty"`
}

// DetectRisingLimb scans a time-ordered flow series for a sustained climb.
// A limb is detected when at least MinDuration consecutive samples are
// connected by per-hour slopes all strictly above MinSlope. Samples with a
// nil value, out-of-order timestamps, or spacing wider than MaxGap break the
// run; nothing is interpolated across them. Intensity classifies the
// steepest slope observed inside any qualifying run.
func DetectRisingLimb(series []FlowPoint, p RisingLimbParams) RisingLimbResult {
	res := RisingLimbResult{Intensity: LimbNone}
	run := 0      // consecutive qualifying slopes ending at the previous sample
	runMax := 0.0 // steepest slope in the current run
	for i := 1; i < len(series); i++ {
		prev, cur := series[i-1], series[i]
		if prev.Value == nil || cur.Value == nil {
			run, runMax = 0, 0
			continue
		}
		dt := cur.Time.Sub(prev.Time)
		if dt <= 0 || dt > p.MaxGap {
			run, runMax = 0, 0
			continue
		}
		slope := (*cur.Value - *prev.Value) / dt.Hours()
		if slope <= p.MinSlope {
			run, runMax = 0, 0
			continue
		}
		run++
		if slope > runMax {
			runMax = slope
		}
		if run+1 >= p.MinDuration {
			res.Detected = true
			if runMax > res.MaxSlope {
				res.MaxSlope = runMax
			}
		}
	}
	if res.Detected {
		res.Intensity = classifyLimb(res.MaxSlope, p)
	}
	return res
}

func classifyLimb(maxSlope float64, p RisingLimbParams) LimbIntensity {
	switch {
	case maxSlope > p.Strong:
		return LimbStrong
	case maxSlope > p.Moderate:
		return LimbModerate
	default:
		return LimbWeak
	}
}
