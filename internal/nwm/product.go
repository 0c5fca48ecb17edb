// Package nwm implements the ingestion pipeline for the national water
// model product archive: product schedules, artifact fetch, NetCDF decode,
// validation and normalization into canonical hydro records.
package nwm

import (
	"fmt"
	"time"

	"github.com/driftwise/reach-api/internal/domain"
)

// Product identifies one of the four ingested forecast products. The token
// doubles as the canonical source tag on normalized records.
type Product string

const (
	ProductAnalysis      Product = "analysis"
	ProductShortForecast Product = "short_forecast"
	ProductMediumBlend   Product = "medium_forecast_blend"
	ProductNoAssim       Product = "analysis_no_assim"
)

// Products lists the closed product set in schedule order.
func Products() []Product {
	return []Product{ProductAnalysis, ProductShortForecast, ProductMediumBlend, ProductNoAssim}
}

// ParseProduct maps a token onto a Product.
func ParseProduct(s string) (Product, error) {
	p := Product(s)
	switch p {
	case ProductAnalysis, ProductShortForecast, ProductMediumBlend, ProductNoAssim:
		return p, nil
	}
	return "", fmt.Errorf("unknown product %q", s)
}

// Source returns the canonical source tag for records of this product.
func (p Product) Source() domain.Source { return domain.Source(p) }

// Schedule describes when a product cycles and which forecast offsets are
// retained from each cycle. CycleHours is sorted ascending.
type Schedule struct {
	CycleHours []int // valid UTC cycle hours
	Offsets    []int // forecast offsets fetched per cycle; {0} for analysis
}

// schedules is the closed product schedule table. Offsets for the forecast
// products are defaults; configuration may override them per deployment.
var schedules = map[Product]Schedule{
	ProductAnalysis:      {CycleHours: hourRange(0, 23), Offsets: []int{0}},
	ProductShortForecast: {CycleHours: hourRange(0, 23), Offsets: []int{1, 18}},
	ProductMediumBlend:   {CycleHours: []int{0, 6, 12, 18}, Offsets: []int{24}},
	ProductNoAssim:       {CycleHours: []int{0}, Offsets: []int{0}},
}

func hourRange(lo, hi int) []int {
	hours := make([]int, 0, hi-lo+1)
	for h := lo; h <= hi; h++ {
		hours = append(hours, h)
	}
	return hours
}

// ScheduleFor returns the schedule table entry for a product.
func ScheduleFor(p Product) (Schedule, bool) {
	s, ok := schedules[p]
	return s, ok
}

// ValidCycleHour reports whether hour is a valid UTC cycle hour for the
// product.
func (p Product) ValidCycleHour(hour int) bool {
	s, ok := schedules[p]
	if !ok {
		return false
	}
	for _, h := range s.CycleHours {
		if h == hour {
			return true
		}
	}
	return false
}

// LatestCycle rounds now down to the product's most recent valid cycle
// time. The result is always on a valid cycle hour, possibly on the
// previous UTC day.
func (p Product) LatestCycle(now time.Time) (time.Time, error) {
	s, ok := schedules[p]
	if !ok {
		return time.Time{}, fmt.Errorf("unknown product %q", p)
	}
	now = now.UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	for i := len(s.CycleHours) - 1; i >= 0; i-- {
		if s.CycleHours[i] <= now.Hour() {
			return day.Add(time.Duration(s.CycleHours[i]) * time.Hour), nil
		}
	}
	// Before the first cycle of the day: take the last cycle of yesterday.
	last := s.CycleHours[len(s.CycleHours)-1]
	return day.AddDate(0, 0, -1).Add(time.Duration(last) * time.Hour), nil
}

// CycleJob is one unit of ingestion work: every retained artifact of one
// product cycle, fetched, parsed, validated, normalized and loaded as a
// single transaction.
type CycleJob struct {
	Product   Product
	CycleTime time.Time
	Offsets   []int
	Domain    string
}

// NewCycleJob builds the job for a product cycle, rejecting cycle times
// that are off the product's schedule or not hour-aligned.
func NewCycleJob(p Product, cycleTime time.Time, domainID string) (CycleJob, error) {
	s, ok := schedules[p]
	if !ok {
		return CycleJob{}, fmt.Errorf("unknown product %q", p)
	}
	cycleTime = cycleTime.UTC().Truncate(time.Hour)
	if !p.ValidCycleHour(cycleTime.Hour()) {
		return CycleJob{}, fmt.Errorf("hour %02d is not a valid cycle hour for %s", cycleTime.Hour(), p)
	}
	offsets := make([]int, len(s.Offsets))
	copy(offsets, s.Offsets)
	return CycleJob{Product: p, CycleTime: cycleTime, Offsets: offsets, Domain: domainID}, nil
}

// WithOffsets returns a copy of the job fetching the given forecast offsets
// instead of the schedule defaults.
func (j CycleJob) WithOffsets(offsets []int) CycleJob {
	j.Offsets = append([]int(nil), offsets...)
	return j
}

// String renders the job identity for logs.
func (j CycleJob) String() string {
	return fmt.Sprintf("%s/%s", j.Product, j.CycleTime.Format("2006-01-02T15Z"))
}

// ArtifactName is the published file name for one (product, cycle hour,
// forecast offset, domain) tuple, e.g. "analysis.t06z.f000.conus.nc".
func ArtifactName(p Product, cycleHour, offset int, domainID string) string {
	return fmt.Sprintf("%s.t%02dz.f%03d.%s.nc", p, cycleHour, offset, domainID)
}

// ArchivePath is the artifact path below the archive base URL:
// products/{product}/{cycle_date}/{cycle_hour}/{artifact}.
func ArchivePath(p Product, cycleTime time.Time, offset int, domainID string) string {
	cycleTime = cycleTime.UTC()
	return fmt.Sprintf("products/%s/%s/%02d/%s",
		p, cycleTime.Format("20060102"), cycleTime.Hour(),
		ArtifactName(p, cycleTime.Hour(), offset, domainID))
}
