package types

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/feedledger-backend/pkg/enums"
)

// FeedTypeTotal is the on-hand quantity of one feed type across the filtered items.
type FeedTypeTotal struct {
	FeedType   enums.FeedType  `json:"feed_type"`
	QuantityKg decimal.Decimal `json:"quantity_kg"`
	Value      decimal.Decimal `json:"value"`
	Items      int             `json:"items"`
	LowItems   int             `json:"low_items"`
}

// Stats is the dashboard summary. Nothing in it is stored.
type Stats struct {
	TotalQuantityKg     decimal.Decimal `json:"total_quantity_kg"`
	TotalValue          decimal.Decimal `json:"total_value"`
	AvgDailyConsumption decimal.Decimal `json:"avg_daily_consumption"`
	DaysAutonomy        decimal.Decimal `json:"days_autonomy"`
	ByFeedType          []FeedTypeTotal `json:"by_feed_type"`
	LowStockCount       int             `json:"low_stock_count"`
	StockCount          int             `json:"stock_count"`
	WindowDays          int             `json:"window_days"`
	AsOf                time.Time       `json:"as_of"`
}

// TrendDay holds one calendar day (UTC) of net consumption.
type TrendDay struct {
	Date       string                             `json:"date"`
	TotalKg    decimal.Decimal                    `json:"total_kg"`
	ByFeedType map[enums.FeedType]decimal.Decimal `json:"by_feed_type"`
}
