package domain

import "fmt"

// VelocityCategory is the qualitative band of a velocity against a species
// preference range.
type VelocityCategory string

const (
	VelocityTooSlow VelocityCategory = "too_slow"
	VelocitySlow    VelocityCategory = "slow"
	VelocityOptimal VelocityCategory = "optimal"
	VelocityFast    VelocityCategory = "fast"
	VelocityTooFast VelocityCategory = "too_fast"
)

// VelocityRange is a species preference envelope in m/s. The optimal band
// nests inside the tolerable band; outside the tolerable band the habitat
// contributes nothing.
type VelocityRange struct {
	MinTolerable float64 `json:"min_tolerable" yaml:"min_tolerable"`
	MinOptimal   float64 `json:"min_optimal" yaml:"min_optimal"`
	MaxOptimal   float64 `json:"max_optimal" yaml:"max_optimal"`
	MaxTolerable float64 `json:"max_tolerable" yaml:"max_tolerable"`
}

// Validate checks that the four edges are ordered.
func (r VelocityRange) Validate() error {
	if !(r.MinTolerable <= r.MinOptimal && r.MinOptimal <= r.MaxOptimal && r.MaxOptimal <= r.MaxTolerable) {
		return fmt.Errorf("velocity range edges out of order: [%g, %g, %g, %g]",
			r.MinTolerable, r.MinOptimal, r.MaxOptimal, r.MaxTolerable)
	}
	return nil
}

// Contains reports whether v falls inside the tolerable envelope.
func (r VelocityRange) Contains(v float64) bool {
	return v >= r.MinTolerable && v <= r.MaxTolerable
}

// VelocityResult is the suitability of one velocity for one species.
type VelocityResult struct {
	Score    float64          `json:"score"`
	Category VelocityCategory `json:"category"`
}

// VelocitySuitability scores velocity v against a species preference range.
// Inside the optimal band the score is 1; outside the tolerable band it is 0;
// between the two the score ramps linearly. The shoulders are categorized
// slow and fast so a caller can say which direction the water is off.
func VelocitySuitability(v float64, r VelocityRange) VelocityResult {
	switch {
	case v < r.MinTolerable:
		return VelocityResult{Score: 0, Category: VelocityTooSlow}
	case v > r.MaxTolerable:
		return VelocityResult{Score: 0, Category: VelocityTooFast}
	case v >= r.MinOptimal && v <= r.MaxOptimal:
		return VelocityResult{Score: 1, Category: VelocityOptimal}
	case v < r.MinOptimal:
		return VelocityResult{Score: ramp(v, r.MinTolerable, r.MinOptimal), Category: VelocitySlow}
	default:
		return VelocityResult{Score: 1 - ramp(v, r.MaxOptimal, r.MaxTolerable), Category: VelocityFast}
	}
}

// ramp maps v in [lo, hi] linearly onto [0, 1]. A degenerate interval maps
// to 1 so that touching edges (tolerable == optimal) score as optimal.
func ramp(v, lo, hi float64) float64 {
	if hi <= lo {
		return 1
	}
	return (v - lo) / (hi - lo)
}
