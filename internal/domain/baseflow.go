package domain

// Baseflow Dominance Index classification thresholds.
const (
	// BDIGroundwaterFed marks reaches whose flow is dominated by stable
	// subsurface contributions.
	BDIGroundwaterFed = 0.65
	// BDIStormDominated marks reaches whose flow is dominated by flashy
	// surface runoff.
	BDIStormDominated = 0.35
)

// FlowRegime is the qualitative classification derived from a BDI value.
type FlowRegime string

const (
	RegimeGroundwaterFed FlowRegime = "groundwater_fed"
	RegimeMixed          FlowRegime = "mixed"
	RegimeStormDominated FlowRegime = "storm_dominated"
	// RegimeUndefined is reported when the component total is zero or
	// negative and there is no flow to apportion.
	RegimeUndefined FlowRegime = "undefined"
)

// BaseflowResult is the Baseflow Dominance Index with its classification.
type BaseflowResult struct {
	BDI    float64    `json:"bdi"`
	Regime FlowRegime `json:"regime"`
}

// Defined reports whether the index could be computed from real flow.
func (b BaseflowResult) Defined() bool { return b.Regime != RegimeUndefined }

// Baseflow computes the Baseflow Dominance Index from the three runoff
// component discharges, all in the same unit. The index is the stable
// fraction (subsurface + groundwater) of the component total, clamped to
// [0, 1]. A non-positive total yields BDI 0 and the undefined regime.
func Baseflow(qSurface, qSubsurface, qGroundwater float64) BaseflowResult {
	total := qSurface + qSubsurface + qGroundwater
	if total <= 0 {
		return BaseflowResult{BDI: 0, Regime: RegimeUndefined}
	}
	bdi := (qSubsurface + qGroundwater) / total
	if bdi < 0 {
		bdi = 0
	} else if bdi > 1 {
		bdi = 1
	}
	return BaseflowResult{BDI: bdi, Regime: classifyRegime(bdi)}
}

func classifyRegime(bdi float64) FlowRegime {
	switch {
	case bdi >= BDIGroundwaterFed:
		return RegimeGroundwaterFed
	case bdi < BDIStormDominated:
		return RegimeStormDominated
	default:
		return RegimeMixed
	}
}
