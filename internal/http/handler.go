// Package http serves the reach-centric query API over gin. Handlers own
// parameter parsing and status-code mapping; everything of substance happens
// in the usecase service.
package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/driftwise/reach-api/internal/domain"
	"github.com/driftwise/reach-api/internal/usecase"
)

// Handler handles HTTP requests for reach hydrology and scoring.
type Handler struct {
	service *usecase.Service
	log     *zap.Logger
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *usecase.Service, log *zap.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.Named("http"),
	}
}

// featureID parses the reach identifier path parameter. On failure it writes
// the 400 response and reports false.
func (h *Handler) featureID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("feature_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid feature_id: %v", err)})
		return 0, false
	}
	return id, true
}

// fail maps service errors onto status codes: unknown reach or species is a
// 404, anything else means the store let us down.
func (h *Handler) fail(c *gin.Context, err error) {
	if errors.Is(err, usecase.ErrUnknownReach) || errors.Is(err, usecase.ErrUnknownSpecies) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	h.log.Error("query failed", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable"})
}

// GetHydrology handles GET /v1/reaches/:feature_id/hydrology.
func (h *Handler) GetHydrology(c *gin.Context) {
	id, ok := h.featureID(c)
	if !ok {
		return
	}

	tf, err := domain.ParseTimeframe(c.Query("timeframe"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.service.Hydrology(c.Request.Context(), id, tf)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetSpeciesScore handles GET /v1/reaches/:feature_id/species/:species_id.
func (h *Handler) GetSpeciesScore(c *gin.Context) {
	id, ok := h.featureID(c)
	if !ok {
		return
	}

	tf, err := domain.ParseTimeframe(c.Query("timeframe"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.service.SpeciesScore(c.Request.Context(), id, c.Param("species_id"), tf)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetHatches handles GET /v1/reaches/:feature_id/hatches. The date defaults
// to today when absent.
func (h *Handler) GetHatches(c *gin.Context) {
	id, ok := h.featureID(c)
	if !ok {
		return
	}

	date := time.Now().UTC()
	if dateStr := c.Query("date"); dateStr != "" {
		var err error
		date, err = time.Parse("2006-01-02", dateStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid date (expected YYYY-MM-DD): %v", err)})
			return
		}
	}

	resp, err := h.service.HatchForecast(c.Request.Context(), id, date)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetMetadata handles GET /v1/metadata.
func (h *Handler) GetMetadata(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Metadata())
}

// HealthCheck handles GET /health. A degraded store answers 503 so load
// balancers rotate the instance out.
func (h *Handler) HealthCheck(c *gin.Context) {
	resp := h.service.Health(c.Request.Context())
	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}
