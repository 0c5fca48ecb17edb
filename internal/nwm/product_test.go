package nwm

import (
	"testing"
	"time"
)

// TestLatestCycle verifies the round-down for each product cadence.
func TestLatestCycle(t *testing.T) {
	now := time.Date(2025, 5, 14, 15, 42, 10, 0, time.UTC)

	tests := []struct {
		product  Product
		expected time.Time
	}{
		{ProductAnalysis, time.Date(2025, 5, 14, 15, 0, 0, 0, time.UTC)},
		{ProductShortForecast, time.Date(2025, 5, 14, 15, 0, 0, 0, time.UTC)},
		{ProductMediumBlend, time.Date(2025, 5, 14, 12, 0, 0, 0, time.UTC)},
		{ProductNoAssim, time.Date(2025, 5, 14, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		got, err := tt.product.LatestCycle(now)
		if err != nil {
			t.Errorf("%s: %v", tt.product, err)
			continue
		}
		if !got.Equal(tt.expected) {
			t.Errorf("%s: expected cycle %v, got %v", tt.product, tt.expected, got)
		}
	}
}

// TestLatestCycle_ScheduleSafety verifies that any wall-clock instant maps
// every product onto one of its own valid cycle hours.
func TestLatestCycle_ScheduleSafety(t *testing.T) {
	start := time.Date(2025, 5, 13, 0, 0, 0, 0, time.UTC)
	for minutes := 0; minutes < 48*60; minutes += 17 {
		now := start.Add(time.Duration(minutes) * time.Minute)
		for _, p := range Products() {
			cycle, err := p.LatestCycle(now)
			if err != nil {
				t.Fatalf("%s at %v: %v", p, now, err)
			}
			if !p.ValidCycleHour(cycle.Hour()) {
				t.Fatalf("%s at %v: cycle hour %d not in schedule", p, now, cycle.Hour())
			}
			if cycle.After(now) {
				t.Fatalf("%s at %v: cycle %v in the future", p, now, cycle)
			}
			if now.Sub(cycle) > 25*time.Hour {
				t.Fatalf("%s at %v: cycle %v unreasonably old", p, now, cycle)
			}
		}
	}
}

// TestNewCycleJob verifies off-schedule cycle hours are rejected rather
// than silently fetched.
func TestNewCycleJob(t *testing.T) {
	good := time.Date(2025, 5, 14, 6, 0, 0, 0, time.UTC)
	job, err := NewCycleJob(ProductMediumBlend, good, "conus")
	if err != nil {
		t.Fatalf("valid cycle rejected: %v", err)
	}
	if len(job.Offsets) != 1 || job.Offsets[0] != 24 {
		t.Errorf("blend offsets: expected [24], got %v", job.Offsets)
	}

	bad := time.Date(2025, 5, 14, 7, 0, 0, 0, time.UTC)
	if _, err := NewCycleJob(ProductMediumBlend, bad, "conus"); err == nil {
		t.Error("hour 7 accepted for a 6-hourly product")
	}

	if _, err := NewCycleJob(ProductNoAssim, bad, "conus"); err == nil {
		t.Error("hour 7 accepted for a daily product")
	}

	// Sub-hour precision is truncated, not rejected.
	ragged := time.Date(2025, 5, 14, 6, 33, 12, 0, time.UTC)
	job, err = NewCycleJob(ProductAnalysis, ragged, "conus")
	if err != nil {
		t.Fatalf("ragged cycle time rejected: %v", err)
	}
	if job.CycleTime.Minute() != 0 || job.CycleTime.Second() != 0 {
		t.Errorf("cycle time not truncated to the hour: %v", job.CycleTime)
	}
}

// TestArchivePath verifies the published path convention.
func TestArchivePath(t *testing.T) {
	cycle := time.Date(2025, 5, 14, 6, 0, 0, 0, time.UTC)

	got := ArchivePath(ProductShortForecast, cycle, 18, "conus")
	want := "products/short_forecast/20250514/06/short_forecast.t06z.f018.conus.nc"
	if got != want {
		t.Errorf("ArchivePath: expected %q, got %q", want, got)
	}

	name := ArtifactName(ProductAnalysis, 0, 0, "conus")
	if name != "analysis.t00z.f000.conus.nc" {
		t.Errorf("ArtifactName: got %q", name)
	}
}

// TestParseProduct verifies the closed token set.
func TestParseProduct(t *testing.T) {
	for _, p := range Products() {
		got, err := ParseProduct(string(p))
		if err != nil || got != p {
			t.Errorf("ParseProduct(%s): got %s, %v", p, got, err)
		}
	}
	if _, err := ParseProduct("long_range"); err == nil {
		t.Error("unknown product accepted")
	}
}
