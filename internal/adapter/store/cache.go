package store

import (
	"context"
	"fmt"

	"github.com/driftwise/reach-api/internal/domain"
)

// Cache is the immutable in-process copy of the reference tables, indexed
// for point lookup. It is built once at startup; the underlying tables do
// not change while the process runs.
type Cache struct {
	flowlines map[int64]domain.Flowline
	stats     map[statsKey]domain.MonthlyFlowStats
	centroids map[int64]domain.ReachCentroid
}

type statsKey struct {
	featureID int64
	month     int
}

// LoadCache reads all three reference tables and indexes them.
func LoadCache(ctx context.Context, r ReferenceReader) (*Cache, error) {
	flowlines, err := r.AllFlowlines(ctx)
	if err != nil {
		return nil, fmt.Errorf("load flowlines: %w", err)
	}
	stats, err := r.AllMonthlyStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("load monthly statistics: %w", err)
	}
	centroids, err := r.AllCentroids(ctx)
	if err != nil {
		return nil, fmt.Errorf("load centroids: %w", err)
	}
	return NewCache(flowlines, stats, centroids), nil
}

// NewCache indexes already-loaded reference rows.
func NewCache(flowlines []domain.Flowline, stats []domain.MonthlyFlowStats, centroids []domain.ReachCentroid) *Cache {
	c := &Cache{
		flowlines: make(map[int64]domain.Flowline, len(flowlines)),
		stats:     make(map[statsKey]domain.MonthlyFlowStats, len(stats)),
		centroids: make(map[int64]domain.ReachCentroid, len(centroids)),
	}
	for _, f := range flowlines {
		c.flowlines[f.FeatureID] = f
	}
	for _, s := range stats {
		c.stats[statsKey{s.FeatureID, s.Month}] = s
	}
	for _, p := range centroids {
		c.centroids[p.FeatureID] = p
	}
	return c
}

// Flowline returns the reference row for one reach.
func (c *Cache) Flowline(featureID int64) (domain.Flowline, bool) {
	f, ok := c.flowlines[featureID]
	return f, ok
}

// MonthlyStats returns the historical baseline for a reach and month.
// Months absent from the reference source return false.
func (c *Cache) MonthlyStats(featureID int64, month int) (domain.MonthlyFlowStats, bool) {
	s, ok := c.stats[statsKey{featureID, month}]
	return s, ok
}

// Centroid returns the weather probe location for one reach.
func (c *Cache) Centroid(featureID int64) (domain.ReachCentroid, bool) {
	p, ok := c.centroids[featureID]
	return p, ok
}

// Centroids returns every probe location; order is unspecified.
func (c *Cache) Centroids() []domain.ReachCentroid {
	out := make([]domain.ReachCentroid, 0, len(c.centroids))
	for _, p := range c.centroids {
		out = append(out, p)
	}
	return out
}

// FeatureSet returns the reach identifiers of the geographic domain, the
// set the ingest validator checks frames against.
func (c *Cache) FeatureSet() map[int64]struct{} {
	set := make(map[int64]struct{}, len(c.flowlines))
	for id := range c.flowlines {
		set[id] = struct{}{}
	}
	return set
}

// Len returns the number of reaches in the domain.
func (c *Cache) Len() int { return len(c.flowlines) }
