package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/feedledger-backend/internal/analytics/query"
	"github.com/angelmondragon/feedledger-backend/internal/analytics/types"
	"github.com/angelmondragon/feedledger-backend/internal/stock"
	"github.com/angelmondragon/feedledger-backend/pkg/db/models"
	"github.com/angelmondragon/feedledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/feedledger-backend/pkg/errors"
	"github.com/angelmondragon/feedledger-backend/pkg/quantity"
)

const (
	// DefaultWindowDays is the trailing window for average consumption.
	DefaultWindowDays = 7
	MaxWindowDays     = 366
	dayLayout         = "2006-01-02"
)

type itemLister interface {
	List(ctx context.Context, filter stock.Filter) ([]models.FeedStockItem, error)
}

// Service derives reporting figures from stock items and movements on every
// call. It never writes.
type Service interface {
	TotalStock(ctx context.Context, filter stock.Filter) (decimal.Decimal, error)
	ByFeedType(ctx context.Context, filter stock.Filter) ([]types.FeedTypeTotal, error)
	AverageDailyConsumption(ctx context.Context, windowDays int) (decimal.Decimal, error)
	DaysOfAutonomy(ctx context.Context, windowDays int) (decimal.Decimal, error)
	Stats(ctx context.Context, windowDays int) (*types.Stats, error)
	ConsumptionTrend(ctx context.Context, days int) ([]types.TrendDay, error)
}

type service struct {
	items         itemLister
	consumption   query.ConsumptionReader
	defaultWindow int
	now           func() time.Time
}

// NewService builds the aggregation view. defaultWindow <= 0 falls back to
// DefaultWindowDays.
func NewService(items itemLister, consumption query.ConsumptionReader, defaultWindow int, clock func() time.Time) (Service, error) {
	if items == nil {
		return nil, fmt.Errorf("stock item lister required")
	}
	if consumption == nil {
		return nil, fmt.Errorf("consumption reader required")
	}
	if defaultWindow <= 0 {
		defaultWindow = DefaultWindowDays
	}
	if clock == nil {
		clock = time.Now
	}
	return &service{items: items, consumption: consumption, defaultWindow: defaultWindow, now: clock}, nil
}

func (s *service) TotalStock(ctx context.Context, filter stock.Filter) (decimal.Decimal, error) {
	items, err := s.items.List(ctx, filter)
	if err != nil {
		return decimal.Zero, err
	}
	return totalQuantity(items), nil
}

func (s *service) ByFeedType(ctx context.Context, filter stock.Filter) ([]types.FeedTypeTotal, error) {
	items, err := s.items.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return byFeedType(items), nil
}

// AverageDailyConsumption divides unreversed consumption in the trailing
// window by the window length.
func (s *service) AverageDailyConsumption(ctx context.Context, windowDays int) (decimal.Decimal, error) {
	windowDays, err := s.window(windowDays)
	if err != nil {
		return decimal.Zero, err
	}
	return s.averageDaily(ctx, windowDays, s.now().UTC())
}

func (s *service) DaysOfAutonomy(ctx context.Context, windowDays int) (decimal.Decimal, error) {
	windowDays, err := s.window(windowDays)
	if err != nil {
		return decimal.Zero, err
	}
	total, err := s.TotalStock(ctx, stock.Filter{})
	if err != nil {
		return decimal.Zero, err
	}
	avg, err := s.averageDaily(ctx, windowDays, s.now().UTC())
	if err != nil {
		return decimal.Zero, err
	}
	return autonomy(total, avg), nil
}

func (s *service) Stats(ctx context.Context, windowDays int) (*types.Stats, error) {
	windowDays, err := s.window(windowDays)
	if err != nil {
		return nil, err
	}
	asOf := s.now().UTC()
	items, err := s.items.List(ctx, stock.Filter{})
	if err != nil {
		return nil, err
	}
	avg, err := s.averageDaily(ctx, windowDays, asOf)
	if err != nil {
		return nil, err
	}

	total := totalQuantity(items)
	value := decimal.Zero
	low := 0
	for _, item := range items {
		if item.PricePerKg.Valid {
			value = quantity.Sum(value, quantity.Multiply(item.QuantityKg, item.PricePerKg.Decimal))
		}
		if stock.IsLow(item) {
			low++
		}
	}
	return &types.Stats{
		TotalQuantityKg:     total,
		TotalValue:          value,
		AvgDailyConsumption: avg,
		DaysAutonomy:        autonomy(total, avg),
		ByFeedType:          byFeedType(items),
		LowStockCount:       low,
		StockCount:          len(items),
		WindowDays:          windowDays,
		AsOf:                asOf,
	}, nil
}

// ConsumptionTrend returns one entry per UTC day, oldest first, ending today.
// Days without consumption are present with zero totals.
func (s *service) ConsumptionTrend(ctx context.Context, days int) ([]types.TrendDay, error) {
	days, err := s.window(days)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	start := today.AddDate(0, 0, -(days - 1))

	rows, err := s.consumption.Consumption(ctx, start, today.AddDate(0, 0, 1))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load consumption")
	}

	trend := make([]types.TrendDay, days)
	index := make(map[string]int, days)
	for i := range trend {
		date := start.AddDate(0, 0, i).Format(dayLayout)
		trend[i] = types.TrendDay{Date: date, TotalKg: decimal.Zero, ByFeedType: map[enums.FeedType]decimal.Decimal{}}
		index[date] = i
	}
	for _, row := range rows {
		i, ok := index[row.OccurredAt.UTC().Format(dayLayout)]
		if !ok {
			continue
		}
		day := &trend[i]
		day.TotalKg = quantity.Sum(day.TotalKg, row.QuantityKg)
		day.ByFeedType[row.FeedType] = quantity.Sum(day.ByFeedType[row.FeedType], row.QuantityKg)
	}
	return trend, nil
}

func (s *service) averageDaily(ctx context.Context, windowDays int, asOf time.Time) (decimal.Decimal, error) {
	since := asOf.Add(-time.Duration(windowDays) * 24 * time.Hour)
	rows, err := s.consumption.Consumption(ctx, since, asOf.Add(time.Nanosecond))
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load consumption")
	}
	consumed := decimal.Zero
	for _, row := range rows {
		consumed = quantity.Sum(consumed, row.QuantityKg)
	}
	return quantity.Divide(consumed, decimal.NewFromInt(int64(windowDays)), quantity.Scale), nil
}

func (s *service) window(days int) (int, error) {
	if days == 0 {
		return s.defaultWindow, nil
	}
	if days < 0 || days > MaxWindowDays {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("window must be between 1 and %d days", MaxWindowDays))
	}
	return days, nil
}

func totalQuantity(items []models.FeedStockItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = quantity.Sum(total, item.QuantityKg)
	}
	return total
}

func byFeedType(items []models.FeedStockItem) []types.FeedTypeTotal {
	totals := make(map[enums.FeedType]*types.FeedTypeTotal)
	for _, item := range items {
		entry, ok := totals[item.FeedType]
		if !ok {
			entry = &types.FeedTypeTotal{FeedType: item.FeedType, QuantityKg: decimal.Zero, Value: decimal.Zero}
			totals[item.FeedType] = entry
		}
		entry.QuantityKg = quantity.Sum(entry.QuantityKg, item.QuantityKg)
		if item.PricePerKg.Valid {
			entry.Value = quantity.Sum(entry.Value, quantity.Multiply(item.QuantityKg, item.PricePerKg.Decimal))
		}
		entry.Items++
		if stock.IsLow(item) {
			entry.LowItems++
		}
	}

	out := make([]types.FeedTypeTotal, 0, len(totals))
	for _, ft := range enums.AllFeedTypes() {
		if entry, ok := totals[ft]; ok {
			out = append(out, *entry)
			delete(totals, ft)
		}
	}
	rest := make([]types.FeedTypeTotal, 0, len(totals))
	for _, entry := range totals {
		rest = append(rest, *entry)
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i].FeedType < rest[j].FeedType })
	return append(out, rest...)
}

// autonomy is total / avg rounded to one decimal, or zero without consumption.
func autonomy(total, avg decimal.Decimal) decimal.Decimal {
	if !avg.IsPositive() {
		return decimal.Zero
	}
	return quantity.Divide(total, avg, 1)
}
