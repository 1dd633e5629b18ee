package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/feedledger-backend/internal/analytics/query"
	"github.com/angelmondragon/feedledger-backend/internal/stock"
	"github.com/angelmondragon/feedledger-backend/pkg/db/models"
	"github.com/angelmondragon/feedledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/feedledger-backend/pkg/errors"
)

var asOf = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func kg(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:analytics_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.FeedStockItem{}, &models.FeedStockMovement{}))
	return db
}

func newTestService(t *testing.T, db *gorm.DB) Service {
	t.Helper()
	store, err := stock.NewStore(stock.NewRepository(db), decimal.NewFromInt(100))
	require.NoError(t, err)
	svc, err := NewService(store, query.NewConsumptionReader(db), 0, func() time.Time { return asOf })
	require.NoError(t, err)
	return svc
}

type fixture struct {
	starter, grower models.FeedStockItem
}

func seed(t *testing.T, db *gorm.DB) fixture {
	t.Helper()
	siteID, buildingID := uuid.New(), uuid.New()
	f := fixture{
		starter: models.FeedStockItem{
			ID: uuid.New(), FeedType: enums.FeedTypeStarter, LocationType: enums.LocationGlobal, LocationKey: "global",
			QuantityKg: kg("300"), MinQuantityKg: kg("100"), PricePerKg: decimal.NewNullDecimal(kg("0.5")),
		},
		grower: models.FeedStockItem{
			ID: uuid.New(), FeedType: enums.FeedTypeGrower, LocationType: enums.LocationBuilding,
			LocationKey: "building:" + buildingID.String(), SiteID: &siteID, BuildingID: &buildingID,
			QuantityKg: kg("50"), MinQuantityKg: kg("100"),
		},
	}
	require.NoError(t, db.Create(&f.starter).Error)
	require.NoError(t, db.Create(&f.grower).Error)

	reversed := uuid.New()
	movements := []models.FeedStockMovement{
		consumption(f.starter.ID, "70", time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)),
		consumption(f.starter.ID, "500", time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)),
		consumption(f.grower.ID, "70", time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)),
	}
	mistake := consumption(f.starter.ID, "70", time.Date(2026, 3, 8, 9, 0, 0, 0, time.UTC))
	mistake.ID = reversed
	movements = append(movements, mistake, models.FeedStockMovement{
		ID: uuid.New(), StockItemID: f.starter.ID, Type: enums.MovementAdjustment, Direction: 1,
		QuantityKg: kg("70"), BalanceAfterKg: kg("300"), OccurredAt: time.Date(2026, 3, 8, 11, 0, 0, 0, time.UTC),
		ReversesMovementID: &reversed,
	})
	for i := range movements {
		require.NoError(t, db.Create(&movements[i]).Error)
	}
	return f
}

func consumption(itemID uuid.UUID, qty string, at time.Time) models.FeedStockMovement {
	return models.FeedStockMovement{
		ID: uuid.New(), StockItemID: itemID, Type: enums.MovementConsumption, Direction: -1,
		QuantityKg: kg(qty), BalanceAfterKg: decimal.Zero, OccurredAt: at,
	}
}

func TestStatsSummarisesStockAndConsumption(t *testing.T) {
	db := newTestDB(t)
	seed(t, db)
	svc := newTestService(t, db)

	stats, err := svc.Stats(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, DefaultWindowDays, stats.WindowDays)
	assert.Equal(t, "350.00", stats.TotalQuantityKg.StringFixed(2))
	assert.Equal(t, "150.00", stats.TotalValue.StringFixed(2))
	assert.Equal(t, "20.00", stats.AvgDailyConsumption.StringFixed(2))
	assert.Equal(t, "17.5", stats.DaysAutonomy.StringFixed(1))
	assert.Equal(t, 1, stats.LowStockCount)
	assert.Equal(t, 2, stats.StockCount)
	assert.True(t, stats.AsOf.Equal(asOf))

	require.Len(t, stats.ByFeedType, 2)
	assert.Equal(t, enums.FeedTypeStarter, stats.ByFeedType[0].FeedType)
	assert.Equal(t, "300.00", stats.ByFeedType[0].QuantityKg.StringFixed(2))
	assert.Equal(t, enums.FeedTypeGrower, stats.ByFeedType[1].FeedType)
	assert.Equal(t, 1, stats.ByFeedType[1].LowItems)
}

func TestStatsValueUsesFullUnitPrice(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&models.FeedStockItem{
		ID: uuid.New(), FeedType: enums.FeedTypeLayer, LocationType: enums.LocationGlobal, LocationKey: "global",
		QuantityKg: kg("2000"), MinQuantityKg: kg("100"), PricePerKg: decimal.NewNullDecimal(kg("0.3349")),
	}).Error)
	svc := newTestService(t, db)

	stats, err := svc.Stats(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "669.80", stats.TotalValue.StringFixed(2))
	require.Len(t, stats.ByFeedType, 1)
	assert.Equal(t, "669.80", stats.ByFeedType[0].Value.StringFixed(2))
}

func TestStatsIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	seed(t, db)
	svc := newTestService(t, db)

	first, err := svc.Stats(context.Background(), 7)
	require.NoError(t, err)
	second, err := svc.Stats(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestTotalStockFiltersByLocation(t *testing.T) {
	db := newTestDB(t)
	f := seed(t, db)
	svc := newTestService(t, db)

	global := enums.LocationGlobal
	total, err := svc.TotalStock(context.Background(), stock.Filter{LocationType: &global})
	require.NoError(t, err)
	assert.Equal(t, "300.00", total.StringFixed(2))

	total, err = svc.TotalStock(context.Background(), stock.Filter{SiteID: f.grower.SiteID})
	require.NoError(t, err)
	assert.Equal(t, "50.00", total.StringFixed(2))
}

func TestAutonomyIsZeroWithoutConsumption(t *testing.T) {
	db := newTestDB(t)
	item := models.FeedStockItem{
		ID: uuid.New(), FeedType: enums.FeedTypeLayer, LocationType: enums.LocationGlobal, LocationKey: "global",
		QuantityKg: kg("900"), MinQuantityKg: kg("100"),
	}
	require.NoError(t, db.Create(&item).Error)
	svc := newTestService(t, db)

	avg, err := svc.AverageDailyConsumption(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, avg.IsZero())

	days, err := svc.DaysOfAutonomy(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, days.IsZero())
}

func TestConsumptionTrendFillsEveryDay(t *testing.T) {
	db := newTestDB(t)
	seed(t, db)
	svc := newTestService(t, db)

	trend, err := svc.ConsumptionTrend(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, trend, 3)

	assert.Equal(t, "2026-03-08", trend[0].Date)
	assert.True(t, trend[0].TotalKg.IsZero())
	assert.Empty(t, trend[0].ByFeedType)

	assert.Equal(t, "2026-03-09", trend[1].Date)
	assert.Equal(t, "70.00", trend[1].ByFeedType[enums.FeedTypeStarter].StringFixed(2))

	assert.Equal(t, "2026-03-10", trend[2].Date)
	assert.Equal(t, "70.00", trend[2].TotalKg.StringFixed(2))
	assert.Equal(t, "70.00", trend[2].ByFeedType[enums.FeedTypeGrower].StringFixed(2))
}

func TestWindowValidation(t *testing.T) {
	svc := newTestService(t, newTestDB(t))

	_, err := svc.Stats(context.Background(), -1)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = svc.ConsumptionTrend(context.Background(), MaxWindowDays+1)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(nil, nil, 0, nil)
	require.Error(t, err)
}
