package usecase

import (
	"context"
	"time"

	"github.com/driftwise/reach-api/internal/domain"
)

// HatchesResponse is the hatch forecast for one reach on one date, every
// configured hatch evaluated and ordered by likelihood descending.
type HatchesResponse struct {
	Reach       ReachSummary             `json:"reach"`
	Date        string                   `json:"date"`
	GeneratedAt time.Time                `json:"generated_at"`
	Predictions []domain.HatchPrediction `json:"predictions"`
	Confidence  *domain.Confidence       `json:"confidence,omitempty"`
	Message     string                   `json:"message,omitempty"`
}

// HatchForecast evaluates every configured hatch against current reach
// conditions for the given date. With no current hydrology the seasonal
// gates still run; the signature conditions all miss and the message says
// data was absent.
func (s *Service) HatchForecast(ctx context.Context, featureID int64, date time.Time) (*HatchesResponse, error) {
	fl, err := s.flowline(featureID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()

	resp := &HatchesResponse{
		Reach:       summarize(fl),
		Date:        date.UTC().Format("2006-01-02"),
		GeneratedAt: now,
		Predictions: []domain.HatchPrediction{},
	}

	hatches := s.catalog.AllHatches()
	if len(hatches) == 0 {
		resp.Message = "no hatches configured"
		return resp, nil
	}

	cond := domain.Conditions{
		Percentile: domain.PercentileResult{Condition: domain.ConditionUnknown},
		Baseflow:   domain.BaseflowResult{Regime: domain.RegimeUndefined},
	}
	snap, err := s.anchor(ctx, featureID, domain.TimeframeNow, now)
	if err != nil {
		return nil, err
	}
	if snap != nil {
		var conf domain.Confidence
		cond, conf, err = s.conditionsAt(ctx, fl, snap)
		if err != nil {
			return nil, err
		}
		resp.Confidence = &conf
	} else {
		resp.Message = "no current hydrologic data; seasonal windows evaluated against unknown conditions"
	}

	for _, h := range hatches {
		resp.Predictions = append(resp.Predictions, domain.PredictHatch(cond, h, date))
	}
	domain.SortHatchPredictions(resp.Predictions)
	return resp, nil
}
