package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/driftwise/reach-api/internal/adapter/store"
	"github.com/driftwise/reach-api/internal/domain"
)

// conditionsAt assembles the scoring inputs for one reach at one anchor
// snapshot, plus the confidence grade of the anchor itself. Every absent
// input stays an explicit unknown in the result; the engines decide what
// that means for their scores.
func (s *Service) conditionsAt(ctx context.Context, fl domain.Flowline, snap *store.Snapshot) (domain.Conditions, domain.Confidence, error) {
	c := domain.Conditions{
		Flow:       snap.Value(domain.VarStreamflow),
		Velocity:   snap.Value(domain.VarVelocity),
		Percentile: domain.PercentileResult{Condition: domain.ConditionUnknown},
		Baseflow:   baseflowOf(snap),
	}

	if c.Flow != nil {
		c.Percentile = s.percentileOf(fl.FeatureID, *c.Flow, snap.ValidTime)
	}

	series, err := s.limbSeries(ctx, fl.FeatureID, snap)
	if err != nil {
		return domain.Conditions{}, domain.Confidence{}, err
	}
	c.RisingLimb = domain.DetectRisingLimb(series, s.limb)

	if err := s.attachWaterTemp(ctx, fl, snap, &c); err != nil {
		return domain.Conditions{}, domain.Confidence{}, err
	}

	if err := s.attachForecastCV(ctx, fl.FeatureID, snap.ValidTime, &c); err != nil {
		return domain.Conditions{}, domain.Confidence{}, err
	}

	conf, err := s.confidenceOf(ctx, fl.FeatureID, snap)
	if err != nil {
		return domain.Conditions{}, domain.Confidence{}, err
	}
	return c, conf, nil
}

// baseflowOf computes the BDI from a snapshot's runoff components, or the
// undefined result when any component is absent.
func baseflowOf(snap *store.Snapshot) domain.BaseflowResult {
	qs := snap.Value(domain.VarQSurface)
	qss := snap.Value(domain.VarQSubsurface)
	qgw := snap.Value(domain.VarQGroundwater)
	if qs == nil || qss == nil || qgw == nil {
		return domain.BaseflowResult{Regime: domain.RegimeUndefined}
	}
	return domain.Baseflow(*qs, *qss, *qgw)
}

// percentileOf places a flow within the reach's monthly baseline for the
// valid time's month. Reaches or months without a baseline stay unknown.
func (s *Service) percentileOf(featureID int64, flow float64, at time.Time) domain.PercentileResult {
	stats, ok := s.cache.MonthlyStats(featureID, int(at.UTC().Month()))
	if !ok {
		return domain.PercentileResult{Condition: domain.ConditionUnknown}
	}
	return domain.Percentile(flow, stats.MeanFlow)
}

// limbSeries builds the flow series limb detection runs on: analysis history
// over the lookback window ending at the anchor, extended with the anchor's
// own forecast samples when it lies beyond the latest analysis.
func (s *Service) limbSeries(ctx context.Context, featureID int64, snap *store.Snapshot) ([]domain.FlowPoint, error) {
	from := snap.ValidTime.Add(-s.scoring.HistoryWindow)
	series, err := s.store.FlowSeries(ctx, featureID, domain.SourceAnalysis, domain.VarStreamflow, from, snap.ValidTime)
	if err != nil {
		return nil, fmt.Errorf("analysis flow series for reach %d: %w", featureID, err)
	}
	if !snap.Source.IsForecast() {
		return series, nil
	}

	start := from
	if len(series) > 0 {
		start = series[len(series)-1].Time
	}
	ext, err := s.store.FlowSeries(ctx, featureID, snap.Source, domain.VarStreamflow, start, snap.ValidTime)
	if err != nil {
		return nil, fmt.Errorf("%s flow series for reach %d: %w", snap.Source, featureID, err)
	}
	return append(series, ext...), nil
}

// attachWaterTemp estimates stream temperature from the nearest weather
// record at the reach centroid. Without a usable air temperature the water
// temperature stays unknown. An undefined BDI drops the groundwater
// buffering term rather than the whole estimate.
func (s *Service) attachWaterTemp(ctx context.Context, fl domain.Flowline, snap *store.Snapshot, c *domain.Conditions) error {
	rec, err := s.store.NearestTemperature(ctx, fl.FeatureID, snap.ValidTime, s.scoring.WeatherMaxAge)
	if err != nil {
		return fmt.Errorf("weather for reach %d: %w", fl.FeatureID, err)
	}
	if rec == nil || rec.AirTempC == nil {
		return nil
	}
	bdi := 0.0
	if c.Baseflow.Defined() {
		bdi = c.Baseflow.BDI
	}
	wt := domain.WaterTemperature(*rec.AirTempC, bdi, fl.MeanElevation(), s.thermal)
	c.WaterTemp = &wt
	return nil
}

// attachForecastCV measures short-horizon flow steadiness: the coefficient
// of variation of the short-forecast flow over the variability window after
// the anchor. Fewer than two samples leave it unknown.
func (s *Service) attachForecastCV(ctx context.Context, featureID int64, at time.Time, c *domain.Conditions) error {
	series, err := s.store.FlowSeries(ctx, featureID, domain.SourceShortForecast, domain.VarStreamflow,
		at, at.Add(s.scoring.VariabilityWindow))
	if err != nil {
		return fmt.Errorf("forecast flow series for reach %d: %w", featureID, err)
	}
	flows := make([]float64, 0, len(series))
	for _, p := range series {
		if p.Value != nil {
			flows = append(flows, *p.Value)
		}
	}
	if len(flows) < 2 {
		return nil
	}
	if spread, ok := domain.EnsembleSpread(flows); ok {
		c.ForecastCV = &spread.CV
	}
	return nil
}

// confidenceOf grades a snapshot, consulting the materialized ensemble
// spread for blend samples.
func (s *Service) confidenceOf(ctx context.Context, featureID int64, snap *store.Snapshot) (domain.Confidence, error) {
	var cv *float64
	if snap.Source == domain.SourceMediumBlend {
		var err error
		cv, err = s.store.EnsembleCV(ctx, featureID, snap.ValidTime)
		if err != nil {
			return domain.Confidence{}, fmt.Errorf("ensemble spread for reach %d: %w", featureID, err)
		}
	}
	return domain.ClassifyConfidence(snap.Source, snap.ForecastHour, cv), nil
}
