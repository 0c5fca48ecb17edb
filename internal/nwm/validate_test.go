package nwm

import (
	"errors"
	"math"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/driftwise/reach-api/internal/domain"
)

func testFrame(features []int64, flows []float64) *Frame {
	return &Frame{
		Product:    ProductAnalysis,
		CycleTime:  time.Date(2025, 5, 14, 6, 0, 0, 0, time.UTC),
		Domain:     "conus",
		FeatureIDs: features,
		Columns: []Column{
			{Variable: domain.VarStreamflow, Units: "m3 s-1", Values: flows},
		},
	}
}

func featureSet(ids ...int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// TestValidate_Pass verifies a clean frame passes all checks.
func TestValidate_Pass(t *testing.T) {
	v := NewValidator(featureSet(1, 2, 3), 3, 0.1, zap.NewNop())
	frame := testFrame([]int64{1, 2, 3}, []float64{10, 20, math.NaN()})

	if err := v.Validate(frame); err != nil {
		t.Errorf("clean frame rejected: %v", err)
	}
}

// TestValidate_DomainMismatch verifies foreign reaches fail the frame with
// a mismatch count.
func TestValidate_DomainMismatch(t *testing.T) {
	v := NewValidator(featureSet(1, 2), 0, 0.1, zap.NewNop())
	frame := testFrame([]int64{1, 2, 99, 100}, []float64{1, 2, 3, 4})

	err := v.Validate(frame)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Kind != KindDomainMismatch {
		t.Errorf("Kind: expected %s, got %s", KindDomainMismatch, verr.Kind)
	}
	if verr.Count != 2 {
		t.Errorf("Count: expected 2, got %d", verr.Count)
	}
}

// TestValidate_OutOfRange verifies implausible values fail with a count and
// the offending variable.
func TestValidate_OutOfRange(t *testing.T) {
	v := NewValidator(nil, 0, 0.1, zap.NewNop())
	frame := testFrame([]int64{1, 2, 3}, []float64{10, 2e6, -50})

	err := v.Validate(frame)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Kind != KindOutOfRange {
		t.Errorf("Kind: expected %s, got %s", KindOutOfRange, verr.Kind)
	}
	if verr.Variable != domain.VarStreamflow {
		t.Errorf("Variable: expected streamflow, got %s", verr.Variable)
	}
	if verr.Count != 2 {
		t.Errorf("Count: expected 2, got %d", verr.Count)
	}
}

// TestValidate_ShortRead verifies the size check tolerance.
func TestValidate_ShortRead(t *testing.T) {
	v := NewValidator(nil, 1000, 0.05, zap.NewNop())

	// 940 of 1000 expected is past the 5% tolerance.
	short := &Frame{FeatureIDs: make([]int64, 940)}
	err := v.Validate(short)
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Kind != KindShortRead {
		t.Fatalf("expected short_read, got %v", err)
	}

	// 960 of 1000 is within tolerance.
	ok := &Frame{FeatureIDs: make([]int64, 960)}
	if err := v.Validate(ok); err != nil {
		t.Errorf("frame within tolerance rejected: %v", err)
	}
}

// TestValidate_UnknownSentinel verifies an undeclared fill marker fails the
// job rather than loading as a physical value.
func TestValidate_UnknownSentinel(t *testing.T) {
	v := NewValidator(nil, 0, 0.1, zap.NewNop())
	frame := testFrame([]int64{1, 2}, []float64{10, -9999})

	err := v.Validate(frame)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Kind != KindUnknownSentinel {
		t.Errorf("Kind: expected %s, got %s", KindUnknownSentinel, verr.Kind)
	}
}
