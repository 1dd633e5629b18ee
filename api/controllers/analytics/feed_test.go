package analytics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/feedledger-backend/internal/analytics/types"
	"github.com/angelmondragon/feedledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/feedledger-backend/pkg/errors"
)

func kg(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestStatsRendersNumbers(t *testing.T) {
	svc := &testAnalyticsService{stats: &types.Stats{
		TotalQuantityKg:     kg("350"),
		TotalValue:          kg("150"),
		AvgDailyConsumption: kg("20"),
		DaysAutonomy:        kg("17.5"),
		ByFeedType: []types.FeedTypeTotal{
			{FeedType: enums.FeedTypeStarter, QuantityKg: kg("300"), Value: kg("150"), Items: 1},
			{FeedType: enums.FeedTypeGrower, QuantityKg: kg("50"), Items: 1, LowItems: 1},
		},
		LowStockCount: 1,
		StockCount:    2,
		WindowDays:    7,
		AsOf:          time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}}

	rec := httptest.NewRecorder()
	Stats(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/feed/stats?window_days=7", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 7, svc.lastWindow)

	var payload struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, 350.0, payload.Data["total_quantity_kg"])
	assert.Equal(t, 20.0, payload.Data["avg_daily_consumption"])
	assert.Equal(t, 17.5, payload.Data["days_autonomy"])
	assert.Equal(t, 1.0, payload.Data["low_stock_count"])
	assert.Len(t, payload.Data["by_feed_type"], 2)
	assert.Contains(t, rec.Body.String(), `"total_quantity_kg":350.00`)
}

func TestStatsDefaultsAndValidatesWindow(t *testing.T) {
	svc := &testAnalyticsService{}
	rec := httptest.NewRecorder()
	Stats(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/feed/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, svc.lastWindow)

	for _, q := range []string{"window_days=0", "window_days=367", "window_days=week"} {
		rec = httptest.NewRecorder()
		Stats(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/feed/stats?"+q, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestTotalsUsesLocationFilter(t *testing.T) {
	siteID := uuid.New()
	svc := &testAnalyticsService{
		total:  kg("120.5"),
		byFeed: []types.FeedTypeTotal{{FeedType: enums.FeedTypeLayer, QuantityKg: kg("120.5"), Items: 1}},
	}
	rec := httptest.NewRecorder()
	Totals(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/feed/totals?location_type=site&site_id="+siteID.String(), nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, enums.LocationSite, *svc.lastFilter.LocationType)
	assert.Equal(t, siteID, *svc.lastFilter.SiteID)
	assert.Contains(t, rec.Body.String(), `"total_quantity_kg":120.50`)
	assert.Contains(t, rec.Body.String(), `"feed_type":"layer"`)
}

func TestConsumptionTrend(t *testing.T) {
	svc := &testAnalyticsService{trend: []types.TrendDay{
		{Date: "2026-03-09", TotalKg: decimal.Zero, ByFeedType: map[enums.FeedType]decimal.Decimal{}},
		{Date: "2026-03-10", TotalKg: kg("40"), ByFeedType: map[enums.FeedType]decimal.Decimal{enums.FeedTypeStarter: kg("40")}},
	}}
	rec := httptest.NewRecorder()
	ConsumptionTrend(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/feed/consumption-trend?days=2", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, svc.lastWindow)

	var payload struct {
		Data []struct {
			Date       string             `json:"date"`
			TotalKg    float64            `json:"total_kg"`
			ByFeedType map[string]float64 `json:"by_feed_type"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Data, 2)
	assert.Equal(t, 0.0, payload.Data[0].TotalKg)
	assert.Equal(t, 40.0, payload.Data[1].ByFeedType["starter"])
}

func TestAnalyticsPropagatesServiceErrors(t *testing.T) {
	svc := &testAnalyticsService{err: pkgerrors.New(pkgerrors.CodeDependency, "db down")}
	rec := httptest.NewRecorder()
	ConsumptionTrend(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/feed/consumption-trend", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	Stats(nil, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/feed/stats", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
