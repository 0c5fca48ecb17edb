package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/driftwise/reach-api/internal/domain"
)

// HealthResponse reports store reachability and ingestion freshness.
type HealthResponse struct {
	Status         string               `json:"status"` // ok | degraded
	StoreReachable bool                 `json:"store_reachable"`
	Reaches        int                  `json:"reaches_loaded"`
	LastIngested   map[string]time.Time `json:"last_successful_ingestion,omitempty"`
	GeneratedAt    time.Time            `json:"generated_at"`
}

// Health pings the store and reports the newest successful ingestion per
// product. A failed ping degrades the response instead of erroring; the
// handler picks the status code.
func (s *Service) Health(ctx context.Context) HealthResponse {
	resp := HealthResponse{
		Status:      "ok",
		Reaches:     s.cache.Len(),
		GeneratedAt: s.now().UTC(),
	}
	if err := s.store.Ping(ctx); err != nil {
		s.log.Warn("store ping failed", zap.Error(err))
		resp.Status = "degraded"
		return resp
	}
	resp.StoreReachable = true

	runs, err := s.store.LastSuccessfulRuns(ctx)
	if err != nil {
		s.log.Warn("could not read ingestion log", zap.Error(err))
		resp.Status = "degraded"
		return resp
	}
	resp.LastIngested = runs
	return resp
}

// SpeciesInfo is one catalog species in the metadata enumeration.
type SpeciesInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// HatchInfo is one catalog hatch in the metadata enumeration.
type HatchInfo struct {
	ID     string             `json:"id"`
	Name   string             `json:"name"`
	Window domain.HatchWindow `json:"window"`
}

// MetadataResponse enumerates what the deployment is configured to serve.
type MetadataResponse struct {
	Species          []SpeciesInfo            `json:"species"`
	Hatches          []HatchInfo              `json:"hatches"`
	Timeframes       []domain.Timeframe       `json:"timeframes"`
	ConfidenceLevels []domain.ConfidenceLevel `json:"confidence_levels"`
}

// Metadata enumerates configured species and hatches plus the fixed
// timeframe and confidence vocabularies.
func (s *Service) Metadata() MetadataResponse {
	resp := MetadataResponse{
		Species:          []SpeciesInfo{},
		Hatches:          []HatchInfo{},
		Timeframes:       domain.Timeframes(),
		ConfidenceLevels: domain.ConfidenceLevels(),
	}
	for _, sp := range s.catalog.AllSpecies() {
		resp.Species = append(resp.Species, SpeciesInfo{ID: sp.ID, Name: sp.Name})
	}
	for _, h := range s.catalog.AllHatches() {
		resp.Hatches = append(resp.Hatches, HatchInfo{ID: h.ID, Name: h.Name, Window: h.Window})
	}
	return resp
}
