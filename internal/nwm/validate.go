package nwm

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/driftwise/reach-api/internal/domain"
)

// ValidationKind names the check a frame failed.
type ValidationKind string

const (
	KindDomainMismatch  ValidationKind = "domain_mismatch"
	KindOutOfRange      ValidationKind = "out_of_range"
	KindShortRead       ValidationKind = "short_read"
	KindUnknownSentinel ValidationKind = "unknown_missing_sentinel"
)

// ValidationError is the structured failure of a frame check. Variable and
// Count are populated where the kind has them.
type ValidationError struct {
	Kind     ValidationKind
	Variable domain.Variable
	Count    int
}

func (e *ValidationError) Error() string {
	if e.Variable != "" {
		return fmt.Sprintf("validation failed: %s (variable %s, count %d)", e.Kind, e.Variable, e.Count)
	}
	return fmt.Sprintf("validation failed: %s (count %d)", e.Kind, e.Count)
}

// plausibleBounds are physical sanity limits per variable in SI units.
// Values outside these are model garbage, not extreme events: the largest
// observed river discharge is two orders of magnitude under the streamflow
// cap.
var plausibleBounds = map[domain.Variable]struct{ Min, Max float64 }{
	domain.VarStreamflow:   {Min: -0.5, Max: 1e6},
	domain.VarVelocity:     {Min: -1, Max: 25},
	domain.VarNudge:        {Min: -1e5, Max: 1e5},
	domain.VarQSurface:     {Min: -0.5, Max: 1e6},
	domain.VarQSubsurface:  {Min: -0.5, Max: 1e6},
	domain.VarQGroundwater: {Min: -0.5, Max: 1e6},
}

// knownSentinels are fill markers seen in the wild. A value matching one of
// these that the artifact did not declare means the decode missed a
// sentinel, which must fail the job rather than load garbage.
var knownSentinels = []float64{-9999, -99999, -999900, -9999000}

// Validator checks parsed frames against the geographic domain, physical
// bounds and the product's documented reach count.
type Validator struct {
	features       map[int64]struct{}
	expectedCount  int
	countTolerance float64
	log            *zap.Logger
}

// NewValidator builds a Validator. features is the reference reach set of
// the geographic domain; a nil set disables the domain check (reference
// tables not loaded), which is logged loudly. expectedCount 0 disables the
// size check.
func NewValidator(features map[int64]struct{}, expectedCount int, countTolerance float64, log *zap.Logger) *Validator {
	if countTolerance <= 0 {
		countTolerance = 0.05
	}
	v := &Validator{
		features:       features,
		expectedCount:  expectedCount,
		countTolerance: countTolerance,
		log:            log.Named("validator"),
	}
	if features == nil {
		v.log.Warn("domain check disabled: no reference reach set loaded")
	}
	return v
}

// Validate runs the size, domain and range checks on a frame. It returns a
// *ValidationError for the first failing check.
func (v *Validator) Validate(frame *Frame) error {
	if v.expectedCount > 0 {
		diff := math.Abs(float64(len(frame.FeatureIDs) - v.expectedCount))
		if diff > float64(v.expectedCount)*v.countTolerance {
			return &ValidationError{Kind: KindShortRead, Count: len(frame.FeatureIDs)}
		}
	}

	if v.features != nil {
		misses := 0
		for _, id := range frame.FeatureIDs {
			if _, ok := v.features[id]; !ok {
				misses++
			}
		}
		if misses > 0 {
			return &ValidationError{Kind: KindDomainMismatch, Count: misses}
		}
	}

	for _, col := range frame.Columns {
		bounds, ok := plausibleBounds[col.Variable]
		if !ok {
			continue
		}
		outOfRange := 0
		for _, val := range col.Values {
			if math.IsNaN(val) {
				continue
			}
			for _, s := range knownSentinels {
				if val == s {
					return &ValidationError{Kind: KindUnknownSentinel, Variable: col.Variable, Count: 1}
				}
			}
			if val < bounds.Min || val > bounds.Max {
				outOfRange++
			}
		}
		if outOfRange > 0 {
			return &ValidationError{Kind: KindOutOfRange, Variable: col.Variable, Count: outOfRange}
		}
	}
	return nil
}
