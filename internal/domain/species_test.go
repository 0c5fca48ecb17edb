package domain

import (
	"math"
	"strings"
	"testing"
)

func testSpecies() SpeciesConfig {
	return SpeciesConfig{
		ID:   "brown_trout",
		Name: "Brown Trout",
		Weights: SpeciesWeights{
			Flow: 0.3, Velocity: 0.2, Thermal: 0.3, Stability: 0.2,
		},
		Velocity:       VelocityRange{MinTolerable: 0.2, MinOptimal: 0.4, MaxOptimal: 0.9, MaxTolerable: 1.2},
		FlowPercentile: PercentileRange{Min: 40, Max: 70},
		Temperature:    TempThresholds{OptimalMin: 8, OptimalMax: 16, Stress: 20, Critical: 24},
		MinBDI:         0.65,
	}
}

func goodConditions() Conditions {
	return Conditions{
		Flow:       Float(12.0),
		Velocity:   Float(0.6),
		Percentile: PercentileResult{Percentile: 55, Condition: ConditionNormal},
		Baseflow:   BaseflowResult{BDI: 0.75, Regime: RegimeGroundwaterFed},
		RisingLimb: RisingLimbResult{Intensity: LimbNone},
		WaterTemp:  Float(12.0),
		ForecastCV: Float(0.10),
	}
}

// TestScoreSpecies_AllComponents verifies the weighted combination when
// every input is present and favorable.
func TestScoreSpecies_AllComponents(t *testing.T) {
	score, err := ScoreSpecies(goodConditions(), testSpecies())
	if err != nil {
		t.Fatalf("ScoreSpecies: %v", err)
	}

	// flow 1.0, velocity 1.0, thermal 1.0, stability 0.5*0.75 + 0.5*0.9 = 0.825
	// overall = 0.3 + 0.2 + 0.3 + 0.2*0.825 = 0.965
	if math.Abs(score.Overall-0.965) > 1e-9 {
		t.Errorf("Overall: expected 0.965, got %.10f", score.Overall)
	}
	if score.Rating != RatingExcellent {
		t.Errorf("Rating: expected %s, got %s", RatingExcellent, score.Rating)
	}
	for name, c := range map[string]ComponentScore{
		"flow": score.Flow, "velocity": score.Velocity, "thermal": score.Thermal, "stability": score.Stability,
	} {
		if !c.Available {
			t.Errorf("%s component reported unavailable", name)
		}
	}
	if score.Explanation == "" {
		t.Error("empty explanation")
	}
}

// TestScoreSpecies_MissingThermal verifies the thermal weight is
// redistributed when no water temperature estimate exists.
func TestScoreSpecies_MissingThermal(t *testing.T) {
	c := goodConditions()
	c.WaterTemp = nil

	score, err := ScoreSpecies(c, testSpecies())
	if err != nil {
		t.Fatalf("ScoreSpecies: %v", err)
	}

	if score.Thermal.Available {
		t.Error("thermal component should be unavailable")
	}
	if score.Thermal.Weight != 0 {
		t.Errorf("unavailable component weight: expected 0, got %g", score.Thermal.Weight)
	}

	// Remaining weights renormalize over 0.7: flow 3/7, velocity 2/7, stability 2/7.
	// overall = 3/7 + 2/7 + 0.825*2/7 = 0.95
	if math.Abs(score.Overall-0.95) > 1e-9 {
		t.Errorf("Overall: expected 0.95, got %.10f", score.Overall)
	}
	wsum := score.Flow.Weight + score.Velocity.Weight + score.Stability.Weight
	if math.Abs(wsum-1.0) > 1e-9 {
		t.Errorf("effective weights should sum to 1, got %.10f", wsum)
	}
	if !strings.Contains(score.Explanation, "water temperature unavailable") {
		t.Errorf("explanation should note the missing input, got %q", score.Explanation)
	}
}

// TestScoreSpecies_NothingAvailable verifies the engine refuses to score
// from nothing instead of fabricating a number.
func TestScoreSpecies_NothingAvailable(t *testing.T) {
	c := Conditions{
		Percentile: PercentileResult{Condition: ConditionUnknown},
		Baseflow:   BaseflowResult{Regime: RegimeUndefined},
	}
	if _, err := ScoreSpecies(c, testSpecies()); err == nil {
		t.Error("expected an error when no component is scorable")
	}
}

// TestScoreSpecies_ConvexCombination verifies the overall stays in [0, 1]
// across degraded inputs.
func TestScoreSpecies_ConvexCombination(t *testing.T) {
	cfg := testSpecies()
	cases := []Conditions{
		goodConditions(),
		{Velocity: Float(2.0), Percentile: PercentileResult{Percentile: 95, Condition: ConditionExtremeHigh},
			Baseflow: BaseflowResult{BDI: 0.1, Regime: RegimeStormDominated}, WaterTemp: Float(28)},
		{Velocity: Float(0.01), Percentile: PercentileResult{Percentile: 2, Condition: ConditionExtremeLow},
			Baseflow: BaseflowResult{BDI: 0.5, Regime: RegimeMixed}, WaterTemp: Float(-3), ForecastCV: Float(3.0)},
	}

	for i, c := range cases {
		score, err := ScoreSpecies(c, cfg)
		if err != nil {
			t.Fatalf("case %d: %v", i, err)
		}
		if score.Overall < 0 || score.Overall > 1 {
			t.Errorf("case %d: overall %.6f outside [0, 1]", i, score.Overall)
		}
	}
}

// TestFlowScore verifies the decay from the preferred band to the extreme
// percentile bands.
func TestFlowScore(t *testing.T) {
	r := PercentileRange{Min: 40, Max: 70}

	tests := []struct {
		pct      float64
		expected float64
	}{
		{55, 1.0},   // inside
		{40, 1.0},   // lower edge
		{70, 1.0},   // upper edge
		{30, 2.0 / 3}, // a third of the way to the low extreme
		{10, 0.0},   // at the low extreme band
		{5, 0.0},    // inside it
		{80, 0.5},   // halfway to the high extreme
		{90, 0.0},   // at the high extreme band
		{95, 0.0},
	}

	for _, tt := range tests {
		got := flowScore(tt.pct, r)
		if math.Abs(got-tt.expected) > 1e-9 {
			t.Errorf("flowScore(%.0f): expected %.4f, got %.10f", tt.pct, tt.expected, got)
		}
	}
}

// TestSpeciesConfig_Validate exercises the startup validation rules.
func TestSpeciesConfig_Validate(t *testing.T) {
	if err := testSpecies().Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	badWeights := testSpecies()
	badWeights.Weights.Flow = 0.5 // sum now 1.2
	if err := badWeights.Validate(); err == nil {
		t.Error("weights not summing to 1 accepted")
	}

	badRange := testSpecies()
	badRange.FlowPercentile = PercentileRange{Min: 70, Max: 40}
	if err := badRange.Validate(); err == nil {
		t.Error("inverted percentile range accepted")
	}

	badTemp := testSpecies()
	badTemp.Temperature.Stress = 30 // above critical
	if err := badTemp.Validate(); err == nil {
		t.Error("non-monotone temperature thresholds accepted")
	}

	noID := testSpecies()
	noID.ID = ""
	if err := noID.Validate(); err == nil {
		t.Error("missing id accepted")
	}
}

// TestSortHabitatScores verifies descending order with a stable tie-break.
func TestSortHabitatScores(t *testing.T) {
	scores := []HabitatScore{
		{SpeciesID: "b", Overall: 0.5},
		{SpeciesID: "a", Overall: 0.9},
		{SpeciesID: "c", Overall: 0.5},
	}
	SortHabitatScores(scores)

	want := []string{"a", "b", "c"}
	for i, id := range want {
		if scores[i].SpeciesID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, scores[i].SpeciesID)
		}
	}
}
