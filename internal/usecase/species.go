package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/driftwise/reach-api/internal/domain"
)

// SpeciesResponse is the habitat score read for one reach and species.
// Score is nil when the timeframe holds no data or nothing was scorable;
// Message then says why.
type SpeciesResponse struct {
	Reach       ReachSummary         `json:"reach"`
	Timeframe   domain.Timeframe     `json:"timeframe"`
	GeneratedAt time.Time            `json:"generated_at"`
	Timestamp   *time.Time           `json:"timestamp,omitempty"` // valid time scored
	Score       *domain.HabitatScore `json:"score,omitempty"`
	Confidence  *domain.Confidence   `json:"confidence,omitempty"`
	Message     string               `json:"message,omitempty"`
}

// SpeciesScore scores one species on a reach. The timeframe picks the
// anchor: current analysis for now and all, the first forecast sample in
// the window for today and outlook.
func (s *Service) SpeciesScore(ctx context.Context, featureID int64, speciesID string, tf domain.Timeframe) (*SpeciesResponse, error) {
	fl, err := s.flowline(featureID)
	if err != nil {
		return nil, err
	}
	cfg, ok := s.catalog.Species(speciesID)
	if !ok {
		return nil, fmt.Errorf("species %q: %w", speciesID, ErrUnknownSpecies)
	}
	now := s.now().UTC()

	resp := &SpeciesResponse{Reach: summarize(fl), Timeframe: tf, GeneratedAt: now}

	snap, err := s.anchor(ctx, featureID, tf, now)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		resp.Message = "no hydrologic data in timeframe " + string(tf)
		return resp, nil
	}

	cond, conf, err := s.conditionsAt(ctx, fl, snap)
	if err != nil {
		return nil, err
	}
	score, err := domain.ScoreSpecies(cond, cfg)
	if err != nil {
		// Every component input was absent; serve the explanation, not a 500.
		resp.Message = err.Error()
		return resp, nil
	}

	resp.Timestamp = &snap.ValidTime
	resp.Score = &score
	resp.Confidence = &conf
	return resp, nil
}
