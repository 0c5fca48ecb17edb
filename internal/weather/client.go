// Package weather fetches hourly air conditions at reach centroids from an
// Open-Meteo compatible forecast endpoint and shapes them into temperature
// records for the observation store.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/driftwise/reach-api/internal/domain"
)

// SourceName tags temperature records fetched by this client.
const SourceName = "open-meteo"

// Config tunes the probe client and its scheduling.
type Config struct {
	BaseURL     string        `mapstructure:"base_url"`
	HorizonDays int           `mapstructure:"horizon_days"`
	Schedule    string        `mapstructure:"schedule"` // cron spec
	Concurrency int           `mapstructure:"concurrency"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// Hour is one decoded hourly sample at a probe point. A nil field means the
// upstream served null for that hour.
type Hour struct {
	Time          time.Time
	AirTempC      *float64
	ApparentTempC *float64
	PrecipMM      *float64
	CloudCoverPct *float64
}

// Client fetches hourly forecasts for single points.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient builds a probe client from configuration.
func NewClient(cfg Config) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// hourlyVariables are the fields requested per hour, in response order.
const hourlyVariables = "temperature_2m,apparent_temperature,precipitation,cloud_cover"

// forecastResponse mirrors the upstream JSON envelope. Null samples decode
// to nil pointers.
type forecastResponse struct {
	Error  bool   `json:"error"`
	Reason string `json:"reason"`
	Hourly struct {
		Time          []string   `json:"time"`
		Temperature   []*float64 `json:"temperature_2m"`
		Apparent      []*float64 `json:"apparent_temperature"`
		Precipitation []*float64 `json:"precipitation"`
		CloudCover    []*float64 `json:"cloud_cover"`
	} `json:"hourly"`
}

// HourlyForecast fetches the hourly series at one point over the configured
// horizon. Times come back in UTC.
func (c *Client) HourlyForecast(ctx context.Context, lat, lon float64) ([]Hour, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', 5, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', 5, 64))
	q.Set("hourly", hourlyVariables)
	q.Set("forecast_days", strconv.Itoa(c.cfg.HorizonDays))
	q.Set("timezone", "UTC")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"?"+q.Encode(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build forecast request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch forecast: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("read forecast response: %w", err)
	}

	var payload forecastResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("forecast HTTP %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("decode forecast response: %w", err)
	}
	if payload.Error {
		return nil, fmt.Errorf("forecast endpoint rejected request: %s", payload.Reason)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("forecast HTTP %d", resp.StatusCode)
	}

	hours := make([]Hour, 0, len(payload.Hourly.Time))
	for i, stamp := range payload.Hourly.Time {
		t, err := parseHourStamp(stamp)
		if err != nil {
			return nil, fmt.Errorf("hour %d: %w", i, err)
		}
		hours = append(hours, Hour{
			Time:          t,
			AirTempC:      sampleAt(payload.Hourly.Temperature, i),
			ApparentTempC: sampleAt(payload.Hourly.Apparent, i),
			PrecipMM:      sampleAt(payload.Hourly.Precipitation, i),
			CloudCoverPct: sampleAt(payload.Hourly.CloudCover, i),
		})
	}
	return hours, nil
}

// parseHourStamp accepts the minute-resolution ISO stamps the endpoint
// serves, with or without a zone suffix. Zoneless stamps are UTC because
// every request pins timezone=UTC.
func parseHourStamp(stamp string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02T15:04", time.RFC3339} {
		if t, err := time.Parse(layout, stamp); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable time stamp %q", stamp)
}

// sampleAt guards against the upstream serving vectors shorter than the
// time axis.
func sampleAt(vec []*float64, i int) *float64 {
	if i >= len(vec) {
		return nil
	}
	return vec[i]
}

// Records shapes an hourly series into temperature records for one reach.
// The forecast hour is the lead from the probe cycle, clamped at zero for
// hours already in the past.
func Records(featureID int64, probeCycle time.Time, hours []Hour) []domain.TemperatureRecord {
	probeCycle = probeCycle.UTC().Truncate(time.Hour)
	records := make([]domain.TemperatureRecord, 0, len(hours))
	for _, h := range hours {
		lead := int(h.Time.Sub(probeCycle) / time.Hour)
		if lead < 0 {
			lead = 0
		}
		records = append(records, domain.TemperatureRecord{
			FeatureID:     featureID,
			ValidTime:     h.Time,
			AirTempC:      h.AirTempC,
			ApparentTempC: h.ApparentTempC,
			PrecipMM:      h.PrecipMM,
			CloudCoverPct: h.CloudCoverPct,
			Source:        SourceName,
			ForecastHour:  domain.Int(lead),
		})
	}
	return records
}
