package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// VelocityBand is a simple closed velocity interval in m/s.
type VelocityBand struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

// Contains reports whether v falls inside the band.
func (b VelocityBand) Contains(v float64) bool { return v >= b.Min && v <= b.Max }

// Validate checks ordering.
func (b VelocityBand) Validate() error {
	if b.Min > b.Max {
		return fmt.Errorf("velocity band [%g, %g] inverted", b.Min, b.Max)
	}
	return nil
}

// HatchWindow is a day-of-year interval, inclusive on both ends. A window
// whose Start exceeds its End wraps across the year boundary.
type HatchWindow struct {
	Start int `yaml:"start" json:"start"`
	End   int `yaml:"end" json:"end"`
}

// InSeason reports whether day-of-year doy falls inside the window.
func (w HatchWindow) InSeason(doy int) bool {
	if w.Start <= w.End {
		return doy >= w.Start && doy <= w.End
	}
	return doy >= w.Start || doy <= w.End
}

// Validate checks the day-of-year domain.
func (w HatchWindow) Validate() error {
	if w.Start < 1 || w.Start > 366 || w.End < 1 || w.End > 366 {
		return fmt.Errorf("hatch window [%d, %d] outside day-of-year range [1, 366]", w.Start, w.End)
	}
	return nil
}

// HatchConfig is the externalized signature of one insect hatch: the
// hydrologic conditions under which it emerges and its seasonal window.
type HatchConfig struct {
	ID             string          `yaml:"id" json:"id"`
	Name           string          `yaml:"name" json:"name"`
	FlowPercentile PercentileRange `yaml:"flow_percentile" json:"flow_percentile"`
	AllowedLimbs   []LimbIntensity `yaml:"allowed_limbs" json:"allowed_limbs"`
	Velocity       VelocityBand    `yaml:"velocity" json:"velocity"`
	MinBDI         float64         `yaml:"min_bdi" json:"min_bdi"`
	Window         HatchWindow     `yaml:"window" json:"window"`
}

// Validate rejects configurations the engine refuses to run with.
func (c HatchConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("hatch missing id")
	}
	if err := c.FlowPercentile.Validate(); err != nil {
		return fmt.Errorf("hatch %s: %w", c.ID, err)
	}
	if len(c.AllowedLimbs) == 0 {
		return fmt.Errorf("hatch %s: no allowed rising-limb intensities", c.ID)
	}
	for _, li := range c.AllowedLimbs {
		switch li {
		case LimbNone, LimbWeak, LimbModerate, LimbStrong:
		default:
			return fmt.Errorf("hatch %s: unknown limb intensity %q", c.ID, li)
		}
	}
	if err := c.Velocity.Validate(); err != nil {
		return fmt.Errorf("hatch %s: %w", c.ID, err)
	}
	if c.MinBDI < 0 || c.MinBDI > 1 {
		return fmt.Errorf("hatch %s: min_bdi %g outside [0,1]", c.ID, c.MinBDI)
	}
	if err := c.Window.Validate(); err != nil {
		return fmt.Errorf("hatch %s: %w", c.ID, err)
	}
	return nil
}

// allowsLimb reports whether the observed intensity is in the allowed set.
func (c HatchConfig) allowsLimb(li LimbIntensity) bool {
	for _, a := range c.AllowedLimbs {
		if a == li {
			return true
		}
	}
	return false
}

// HatchRating is the qualitative grade of a hatch likelihood.
type HatchRating string

const (
	HatchVeryLikely HatchRating = "very_likely"
	HatchLikely     HatchRating = "likely"
	HatchPossible   HatchRating = "possible"
	HatchUnlikely   HatchRating = "unlikely"
)

// RateHatch grades a likelihood in [0, 1].
func RateHatch(likelihood float64) HatchRating {
	switch {
	case likelihood >= 0.75:
		return HatchVeryLikely
	case likelihood >= 0.50:
		return HatchLikely
	case likelihood >= 0.25:
		return HatchPossible
	default:
		return HatchUnlikely
	}
}

// HatchMatch carries the four per-condition signature flags.
type HatchMatch struct {
	FlowPercentile bool `json:"flow_percentile"`
	RisingLimb     bool `json:"rising_limb"`
	Velocity       bool `json:"velocity"`
	BDI            bool `json:"bdi"`
}

// HatchPrediction is the engine output for one hatch on one date.
type HatchPrediction struct {
	HatchID     string      `json:"hatch_id"`
	HatchName   string      `json:"hatch_name"`
	Date        time.Time   `json:"date"`
	InSeason    bool        `json:"in_season"`
	Likelihood  float64     `json:"likelihood"`
	Rating      HatchRating `json:"rating"`
	Matches     HatchMatch  `json:"matches"`
	Explanation string      `json:"explanation"`
}

// PredictHatch evaluates one hatch signature against reach conditions on a
// date. Outside the seasonal window no hydrology is consulted. Inside it,
// each of the four signature conditions contributes a quarter of the
// likelihood; a condition whose input is unknown counts as a miss and the
// explanation says so rather than guessing.
func PredictHatch(c Conditions, cfg HatchConfig, date time.Time) HatchPrediction {
	p := HatchPrediction{HatchID: cfg.ID, HatchName: cfg.Name, Date: date}
	doy := date.UTC().YearDay()
	if !cfg.Window.InSeason(doy) {
		p.Rating = HatchUnlikely
		p.Explanation = fmt.Sprintf("day %d outside hatch window [%d, %d]", doy, cfg.Window.Start, cfg.Window.End)
		return p
	}
	p.InSeason = true

	var notes []string
	if c.Percentile.Defined() {
		p.Matches.FlowPercentile = cfg.FlowPercentile.Contains(c.Percentile.Percentile)
		notes = append(notes, matchNote(p.Matches.FlowPercentile,
			fmt.Sprintf("flow %.0fth percentile", c.Percentile.Percentile),
			fmt.Sprintf("[%g, %g]", cfg.FlowPercentile.Min, cfg.FlowPercentile.Max)))
	} else {
		notes = append(notes, "flow percentile unknown")
	}

	limb := c.RisingLimb.Intensity
	if limb == "" {
		limb = LimbNone
	}
	p.Matches.RisingLimb = cfg.allowsLimb(limb)
	if p.Matches.RisingLimb {
		notes = append(notes, fmt.Sprintf("rising limb %s in allowed set", limb))
	} else {
		notes = append(notes, fmt.Sprintf("rising limb %s not in allowed set", limb))
	}

	if c.Velocity != nil {
		p.Matches.Velocity = cfg.Velocity.Contains(*c.Velocity)
		notes = append(notes, matchNote(p.Matches.Velocity,
			fmt.Sprintf("velocity %.2f m/s", *c.Velocity),
			fmt.Sprintf("[%g, %g]", cfg.Velocity.Min, cfg.Velocity.Max)))
	} else {
		notes = append(notes, "velocity unknown")
	}

	if c.Baseflow.Defined() {
		p.Matches.BDI = c.Baseflow.BDI >= cfg.MinBDI
		if p.Matches.BDI {
			notes = append(notes, fmt.Sprintf("BDI %.2f at or above %.2f", c.Baseflow.BDI, cfg.MinBDI))
		} else {
			notes = append(notes, fmt.Sprintf("BDI %.2f below %.2f", c.Baseflow.BDI, cfg.MinBDI))
		}
	} else {
		notes = append(notes, "BDI unknown")
	}

	matches := 0
	for _, m := range []bool{p.Matches.FlowPercentile, p.Matches.RisingLimb, p.Matches.Velocity, p.Matches.BDI} {
		if m {
			matches++
		}
	}
	p.Likelihood = float64(matches) / 4
	p.Rating = RateHatch(p.Likelihood)
	p.Explanation = strings.Join(notes, "; ")
	return p
}

func matchNote(matched bool, what, band string) string {
	if matched {
		return fmt.Sprintf("%s within %s", what, band)
	}
	return fmt.Sprintf("%s outside %s", what, band)
}

// SortHatchPredictions orders predictions descending by likelihood, then by
// hatch id for a stable presentation.
func SortHatchPredictions(preds []HatchPrediction) {
	sort.Slice(preds, func(i, j int) bool {
		if preds[i].Likelihood != preds[j].Likelihood {
			return preds[i].Likelihood > preds[j].Likelihood
		}
		return preds[i].HatchID < preds[j].HatchID
	})
}
