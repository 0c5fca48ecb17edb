package usecase

import (
	"context"
	"time"

	"github.com/driftwise/reach-api/internal/adapter/store"
	"github.com/driftwise/reach-api/internal/domain"
)

// HydrologyEntry is the served state of one reach at one valid time. Nil
// values are data the store does not have; FlowCondition and FlowRegime
// carry their explicit unknown tokens in that case.
type HydrologyEntry struct {
	Timestamp      time.Time            `json:"timestamp"`
	FlowM3s        *float64             `json:"flow_m3s"`
	VelocityMS     *float64             `json:"velocity_m_s"`
	BDI            *float64             `json:"bdi"`
	FlowRegime     domain.FlowRegime    `json:"flow_regime"`
	FlowPercentile *float64             `json:"flow_percentile"`
	FlowCondition  domain.FlowCondition `json:"flow_condition"`
	ForecastHour   *int                 `json:"forecast_hour,omitempty"`
	Confidence     domain.Confidence    `json:"confidence"`
}

// HydrologyResponse is the hydrology read for one reach and timeframe.
// RisingLimb is always judged from recent analysis history, independent of
// the timeframe's snapshots.
type HydrologyResponse struct {
	Reach       ReachSummary            `json:"reach"`
	Timeframe   domain.Timeframe        `json:"timeframe"`
	GeneratedAt time.Time               `json:"generated_at"`
	RisingLimb  domain.RisingLimbResult `json:"rising_limb"`
	Conditions  []HydrologyEntry        `json:"conditions"`
	Message     string                  `json:"message,omitempty"`
}

// Hydrology serves flow, velocity, BDI, percentile and confidence for every
// snapshot the timeframe covers. A timeframe with no data returns an empty
// conditions list with a message, not an error.
func (s *Service) Hydrology(ctx context.Context, featureID int64, tf domain.Timeframe) (*HydrologyResponse, error) {
	fl, err := s.flowline(featureID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()

	resp := &HydrologyResponse{
		Reach:       summarize(fl),
		Timeframe:   tf,
		GeneratedAt: now,
		Conditions:  []HydrologyEntry{},
	}

	history, err := s.store.FlowSeries(ctx, featureID, domain.SourceAnalysis, domain.VarStreamflow,
		now.Add(-s.scoring.HistoryWindow), now)
	if err != nil {
		return nil, err
	}
	resp.RisingLimb = domain.DetectRisingLimb(history, s.limb)

	snaps, err := s.timeframeSnapshots(ctx, featureID, tf, now)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		resp.Message = "no hydrologic data in timeframe " + string(tf)
		return resp, nil
	}

	for i := range snaps {
		entry, err := s.hydrologyEntry(ctx, fl, &snaps[i])
		if err != nil {
			return nil, err
		}
		resp.Conditions = append(resp.Conditions, entry)
	}
	return resp, nil
}

// hydrologyEntry renders one snapshot into the served shape.
func (s *Service) hydrologyEntry(ctx context.Context, fl domain.Flowline, snap *store.Snapshot) (HydrologyEntry, error) {
	e := HydrologyEntry{
		Timestamp:     snap.ValidTime,
		FlowM3s:       snap.Value(domain.VarStreamflow),
		VelocityMS:    snap.Value(domain.VarVelocity),
		FlowRegime:    domain.RegimeUndefined,
		FlowCondition: domain.ConditionUnknown,
		ForecastHour:  snap.ForecastHour,
	}

	if b := baseflowOf(snap); b.Defined() {
		e.BDI = &b.BDI
		e.FlowRegime = b.Regime
	}

	if e.FlowM3s != nil {
		if p := s.percentileOf(fl.FeatureID, *e.FlowM3s, snap.ValidTime); p.Defined() {
			e.FlowPercentile = &p.Percentile
			e.FlowCondition = p.Condition
		}
	}

	conf, err := s.confidenceOf(ctx, fl.FeatureID, snap)
	if err != nil {
		return HydrologyEntry{}, err
	}
	e.Confidence = conf
	return e, nil
}
