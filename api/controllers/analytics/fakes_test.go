package analytics

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/feedledger-backend/internal/analytics/types"
	"github.com/angelmondragon/feedledger-backend/internal/stock"
)

type testAnalyticsService struct {
	lastWindow int
	lastFilter stock.Filter
	stats      *types.Stats
	trend      []types.TrendDay
	total      decimal.Decimal
	byFeed     []types.FeedTypeTotal
	err        error
}

func (s *testAnalyticsService) TotalStock(_ context.Context, filter stock.Filter) (decimal.Decimal, error) {
	s.lastFilter = filter
	return s.total, s.err
}

func (s *testAnalyticsService) ByFeedType(_ context.Context, filter stock.Filter) ([]types.FeedTypeTotal, error) {
	s.lastFilter = filter
	return s.byFeed, s.err
}

func (s *testAnalyticsService) AverageDailyConsumption(_ context.Context, windowDays int) (decimal.Decimal, error) {
	s.lastWindow = windowDays
	return decimal.Zero, s.err
}

func (s *testAnalyticsService) DaysOfAutonomy(_ context.Context, windowDays int) (decimal.Decimal, error) {
	s.lastWindow = windowDays
	return decimal.Zero, s.err
}

func (s *testAnalyticsService) Stats(_ context.Context, windowDays int) (*types.Stats, error) {
	s.lastWindow = windowDays
	if s.err != nil {
		return nil, s.err
	}
	if s.stats == nil {
		s.stats = &types.Stats{}
	}
	return s.stats, nil
}

func (s *testAnalyticsService) ConsumptionTrend(_ context.Context, days int) ([]types.TrendDay, error) {
	s.lastWindow = days
	if s.err != nil {
		return nil, s.err
	}
	return s.trend, nil
}
