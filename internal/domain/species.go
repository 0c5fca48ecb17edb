package domain

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Conditions is the assembled hydro-ecological state of one reach at one
// instant: the input every scoring engine consumes. Pointer fields are nil
// when the underlying data is absent; the engines treat absence as an
// explicit unknown, never as zero.
type Conditions struct {
	Flow       *float64         // m³/s
	Velocity   *float64         // m/s
	Percentile PercentileResult // Condition == unknown when no baseline
	Baseflow   BaseflowResult   // Regime == undefined when components missing
	RisingLimb RisingLimbResult
	WaterTemp  *float64 // estimated stream temperature, °C
	ForecastCV *float64 // coefficient of variation of the next-18h flow forecast
}

// SpeciesWeights apportions the habitat score across its four components.
type SpeciesWeights struct {
	Flow      float64 `yaml:"flow" json:"flow"`
	Velocity  float64 `yaml:"velocity" json:"velocity"`
	Thermal   float64 `yaml:"thermal" json:"thermal"`
	Stability float64 `yaml:"stability" json:"stability"`
}

// Sum returns the weight total, which Validate requires to be 1.
func (w SpeciesWeights) Sum() float64 {
	return w.Flow + w.Velocity + w.Thermal + w.Stability
}

// PercentileRange is the flow-percentile band a species prefers.
type PercentileRange struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

// Contains reports whether pct falls inside the band.
func (r PercentileRange) Contains(pct float64) bool {
	return pct >= r.Min && pct <= r.Max
}

// Validate checks ordering and the [0, 100] domain.
func (r PercentileRange) Validate() error {
	if r.Min > r.Max || r.Min < 0 || r.Max > 100 {
		return fmt.Errorf("percentile range [%g, %g] invalid", r.Min, r.Max)
	}
	return nil
}

// SpeciesConfig is the externalized habitat preference of one species. The
// engine hard-codes no thresholds; everything tunable lives here.
type SpeciesConfig struct {
	ID             string          `yaml:"id" json:"id"`
	Name           string          `yaml:"name" json:"name"`
	Weights        SpeciesWeights  `yaml:"weights" json:"weights"`
	Velocity       VelocityRange   `yaml:"velocity" json:"velocity"`
	FlowPercentile PercentileRange `yaml:"flow_percentile" json:"flow_percentile"`
	Temperature    TempThresholds  `yaml:"temperature" json:"temperature"`
	MinBDI         float64         `yaml:"min_bdi" json:"min_bdi"`
}

// weightTolerance is the slack allowed on the weight sum.
const weightTolerance = 1e-6

// Validate rejects configurations the engines refuse to run with.
func (c SpeciesConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("species missing id")
	}
	if d := math.Abs(c.Weights.Sum() - 1); d > weightTolerance {
		return fmt.Errorf("species %s: weights sum to %g, want 1", c.ID, c.Weights.Sum())
	}
	if c.Weights.Flow < 0 || c.Weights.Velocity < 0 || c.Weights.Thermal < 0 || c.Weights.Stability < 0 {
		return fmt.Errorf("species %s: negative weight", c.ID)
	}
	if err := c.Velocity.Validate(); err != nil {
		return fmt.Errorf("species %s: %w", c.ID, err)
	}
	if err := c.FlowPercentile.Validate(); err != nil {
		return fmt.Errorf("species %s: %w", c.ID, err)
	}
	if err := c.Temperature.Validate(); err != nil {
		return fmt.Errorf("species %s: %w", c.ID, err)
	}
	if c.MinBDI < 0 || c.MinBDI > 1 {
		return fmt.Errorf("species %s: min_bdi %g outside [0,1]", c.ID, c.MinBDI)
	}
	return nil
}

// HabitatRating is the qualitative grade of an overall habitat score.
type HabitatRating string

const (
	RatingExcellent HabitatRating = "excellent"
	RatingGood      HabitatRating = "good"
	RatingFair      HabitatRating = "fair"
	RatingPoor      HabitatRating = "poor"
)

// RateHabitat grades an overall score in [0, 1].
func RateHabitat(score float64) HabitatRating {
	switch {
	case score >= 0.8:
		return RatingExcellent
	case score >= 0.6:
		return RatingGood
	case score >= 0.3:
		return RatingFair
	default:
		return RatingPoor
	}
}

// ComponentScore is one weighted term of the habitat score. Weight is the
// effective weight after unavailable components were redistributed; an
// unavailable component carries weight 0 and contributes nothing.
type ComponentScore struct {
	Score     float64 `json:"score"`
	Weight    float64 `json:"weight"`
	Available bool    `json:"available"`
}

// HabitatScore is the full output of the species scoring engine.
type HabitatScore struct {
	SpeciesID   string         `json:"species_id"`
	SpeciesName string         `json:"species_name"`
	Overall     float64        `json:"overall"`
	Rating      HabitatRating  `json:"rating"`
	Flow        ComponentScore `json:"flow"`
	Velocity    ComponentScore `json:"velocity"`
	Thermal     ComponentScore `json:"thermal"`
	Stability   ComponentScore `json:"stability"`
	Explanation string         `json:"explanation"`
}

// ScoreSpecies computes a habitat score for one species from assembled reach
// conditions. Components whose inputs are absent are excluded and their
// weight is redistributed proportionally over the rest, keeping the overall
// a convex combination in [0, 1]. An error is returned only when every
// component is unavailable.
func ScoreSpecies(c Conditions, cfg SpeciesConfig) (HabitatScore, error) {
	out := HabitatScore{SpeciesID: cfg.ID, SpeciesName: cfg.Name}
	var notes []string

	if c.Percentile.Defined() {
		out.Flow = ComponentScore{Score: flowScore(c.Percentile.Percentile, cfg.FlowPercentile), Available: true}
		notes = append(notes, flowNote(c.Percentile, cfg.FlowPercentile))
	} else {
		notes = append(notes, "flow percentile unknown (no monthly baseline)")
	}

	if c.Velocity != nil {
		v := VelocitySuitability(*c.Velocity, cfg.Velocity)
		out.Velocity = ComponentScore{Score: v.Score, Available: true}
		notes = append(notes, fmt.Sprintf("velocity %.2f m/s %s", *c.Velocity, v.Category))
	} else {
		notes = append(notes, "velocity unavailable")
	}

	if c.WaterTemp != nil {
		ts := ThermalScore(*c.WaterTemp, cfg.Temperature)
		out.Thermal = ComponentScore{Score: ts, Available: true}
		notes = append(notes, thermalNote(*c.WaterTemp, ts, cfg.Temperature))
	} else {
		notes = append(notes, "water temperature unavailable (no weather data)")
	}

	if c.Baseflow.Defined() {
		out.Stability = ComponentScore{Score: stabilityScore(c.Baseflow.BDI, c.ForecastCV), Available: true}
		notes = append(notes, stabilityNote(c.Baseflow, cfg.MinBDI))
	} else {
		notes = append(notes, "flow stability unknown (runoff components missing)")
	}

	if err := redistribute(&out, cfg.Weights); err != nil {
		return HabitatScore{}, fmt.Errorf("species %s: %w", cfg.ID, err)
	}
	out.Overall = out.Flow.Score*out.Flow.Weight +
		out.Velocity.Score*out.Velocity.Weight +
		out.Thermal.Score*out.Thermal.Weight +
		out.Stability.Score*out.Stability.Weight
	out.Rating = RateHabitat(out.Overall)
	out.Explanation = strings.Join(notes, "; ")
	return out, nil
}

// flowScore is 1 inside the species band and decays linearly to 0 at the
// extreme percentile bands (10 on the low side, 90 on the high side).
func flowScore(pct float64, r PercentileRange) float64 {
	switch {
	case r.Contains(pct):
		return 1
	case pct < r.Min:
		return rampDown(r.Min-pct, r.Min-10)
	default:
		return rampDown(pct-r.Max, 90-r.Max)
	}
}

// rampDown maps distance d over span onto a 1→0 ramp. A non-positive span
// means the band already touches the extreme, so any excursion scores 0.
func rampDown(d, span float64) float64 {
	if span <= 0 || d >= span {
		return 0
	}
	return 1 - d/span
}

// stabilityScore blends groundwater dominance with short-horizon forecast
// steadiness. Without a forecast window the BDI stands alone.
func stabilityScore(bdi float64, forecastCV *float64) float64 {
	if forecastCV == nil {
		return bdi
	}
	v := *forecastCV
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	return 0.5*bdi + 0.5*(1-v)
}

// redistribute assigns effective weights: available components share the
// configured weight of unavailable ones in proportion to their own. Errors
// when nothing is available to score.
func redistribute(s *HabitatScore, w SpeciesWeights) error {
	comps := []*ComponentScore{&s.Flow, &s.Velocity, &s.Thermal, &s.Stability}
	conf := []float64{w.Flow, w.Velocity, w.Thermal, w.Stability}
	var avail float64
	for i, c := range comps {
		if c.Available {
			avail += conf[i]
		}
	}
	if avail <= 0 {
		return fmt.Errorf("no scorable components available")
	}
	for i, c := range comps {
		if c.Available {
			c.Weight = conf[i] / avail
		}
	}
	return nil
}

func flowNote(p PercentileResult, r PercentileRange) string {
	if r.Contains(p.Percentile) {
		return fmt.Sprintf("flow at %.0fth percentile (%s), inside preferred [%g, %g]",
			p.Percentile, p.Condition, r.Min, r.Max)
	}
	return fmt.Sprintf("flow at %.0fth percentile (%s), outside preferred [%g, %g]",
		p.Percentile, p.Condition, r.Min, r.Max)
}

func thermalNote(tw, score float64, th TempThresholds) string {
	switch {
	case score >= 1:
		return fmt.Sprintf("water %.1f °C inside optimal band", tw)
	case tw > th.Critical || tw < th.OptimalMin-(th.Critical-th.OptimalMax):
		return fmt.Sprintf("water %.1f °C beyond critical threshold", tw)
	case score >= 0.5:
		return fmt.Sprintf("water %.1f °C approaching stress threshold", tw)
	default:
		return fmt.Sprintf("water %.1f °C past stress threshold", tw)
	}
}

func stabilityNote(b BaseflowResult, minBDI float64) string {
	if b.BDI >= minBDI {
		return fmt.Sprintf("%s flow (BDI %.2f) above stability threshold %.2f", b.Regime, b.BDI, minBDI)
	}
	return fmt.Sprintf("%s flow (BDI %.2f) below stability threshold %.2f", b.Regime, b.BDI, minBDI)
}

// SortHabitatScores orders scores descending by overall, then by species id
// for a stable presentation.
func SortHabitatScores(scores []HabitatScore) {
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Overall != scores[j].Overall {
			return scores[i].Overall > scores[j].Overall
		}
		return scores[i].SpeciesID < scores[j].SpeciesID
	})
}
