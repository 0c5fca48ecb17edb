package weather

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		BaseURL:     srv.URL,
		HorizonDays: 2,
		Timeout:     5 * time.Second,
	})
}

func TestHourlyForecastDecodesSeries(t *testing.T) {
	var gotQuery map[string][]string
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"latitude": 40.05, "longitude": -105.05,
			"hourly": {
				"time": ["2025-05-10T00:00", "2025-05-10T01:00", "2025-05-10T02:00"],
				"temperature_2m": [11.4, null, 10.2],
				"apparent_temperature": [10.0, 9.5, 9.0],
				"precipitation": [0.0, 0.2, null],
				"cloud_cover": [55, 60, 80]
			}
		}`))
	})

	hours, err := client.HourlyForecast(t.Context(), 40.05, -105.05)
	require.NoError(t, err)
	require.Len(t, hours, 3)

	assert.Equal(t, []string{"40.05000"}, gotQuery["latitude"])
	assert.Equal(t, []string{"UTC"}, gotQuery["timezone"])
	assert.Equal(t, []string{"2"}, gotQuery["forecast_days"])

	assert.Equal(t, time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC), hours[0].Time)
	require.NotNil(t, hours[0].AirTempC)
	assert.Equal(t, 11.4, *hours[0].AirTempC)
	assert.Nil(t, hours[1].AirTempC, "null sample decodes to nil")
	assert.Nil(t, hours[2].PrecipMM)
	require.NotNil(t, hours[2].CloudCoverPct)
	assert.Equal(t, 80.0, *hours[2].CloudCoverPct)
}

func TestHourlyForecastRejectedRequest(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": true, "reason": "Latitude must be in range of -90 to 90"}`))
	})

	_, err := client.HourlyForecast(t.Context(), 95, -105)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Latitude must be in range")
}

func TestHourlyForecastServerError(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream unavailable"))
	})

	_, err := client.HourlyForecast(t.Context(), 40, -105)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestRecordsLeadClamping(t *testing.T) {
	cycle := time.Date(2025, 5, 10, 6, 0, 0, 0, time.UTC)
	hours := []Hour{
		{Time: cycle.Add(-2 * time.Hour), AirTempC: floatPtr(9)},
		{Time: cycle, AirTempC: floatPtr(10)},
		{Time: cycle.Add(5 * time.Hour), AirTempC: floatPtr(14)},
	}

	records := Records(101, cycle, hours)
	require.Len(t, records, 3)

	assert.Equal(t, int64(101), records[0].FeatureID)
	assert.Equal(t, SourceName, records[0].Source)
	require.NotNil(t, records[0].ForecastHour)
	assert.Equal(t, 0, *records[0].ForecastHour, "past hours clamp to lead 0")
	assert.Equal(t, 0, *records[1].ForecastHour)
	assert.Equal(t, 5, *records[2].ForecastHour)
}

func floatPtr(v float64) *float64 { return &v }
