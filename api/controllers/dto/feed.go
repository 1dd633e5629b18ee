package dto

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	analyticstypes "github.com/angelmondragon/feedledger-backend/internal/analytics/types"
	"github.com/angelmondragon/feedledger-backend/internal/ledger"
	"github.com/angelmondragon/feedledger-backend/pkg/db/models"
	"github.com/angelmondragon/feedledger-backend/pkg/enums"
	"github.com/angelmondragon/feedledger-backend/pkg/quantity"
)

// StockItem is the public shape of a stock item. Quantities are JSON numbers
// with two decimals.
type StockItem struct {
	ID            uuid.UUID          `json:"id"`
	FeedType      enums.FeedType     `json:"feed_type"`
	AgeRange      string             `json:"age_range,omitempty"`
	LocationType  enums.LocationType `json:"location_type"`
	LocationKey   string             `json:"location_key"`
	SiteID        *uuid.UUID         `json:"site_id,omitempty"`
	BuildingID    *uuid.UUID         `json:"building_id,omitempty"`
	QuantityKg    json.Number        `json:"quantity_kg"`
	MinQuantityKg json.Number        `json:"min_quantity_kg"`
	IsLow         bool               `json:"is_low"`
	PricePerKg    *json.Number       `json:"price_per_kg,omitempty"`
	SupplierName  *string            `json:"supplier_name,omitempty"`
	Brand         *string            `json:"brand,omitempty"`
	LastRestockAt *time.Time         `json:"last_restock_at,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

type Movement struct {
	ID                 uuid.UUID          `json:"id"`
	StockItemID        uuid.UUID          `json:"stock_item_id"`
	FeedType           enums.FeedType     `json:"feed_type,omitempty"`
	LocationKey        string             `json:"location_key,omitempty"`
	Type               enums.MovementType `json:"type"`
	Direction          int                `json:"direction"`
	QuantityKg         json.Number        `json:"quantity_kg"`
	BalanceAfterKg     json.Number        `json:"balance_after_kg"`
	OccurredAt         time.Time          `json:"occurred_at"`
	Source             *string            `json:"source,omitempty"`
	InvoiceNumber      *string            `json:"invoice_number,omitempty"`
	Notes              *string            `json:"notes,omitempty"`
	UnitPrice          *json.Number       `json:"unit_price,omitempty"`
	TotalAmount        *json.Number       `json:"total_amount,omitempty"`
	ReversesMovementID *uuid.UUID         `json:"reverses_movement_id,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
}

type MovementPage struct {
	Movements  []Movement `json:"movements"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

type FeedTypeTotal struct {
	FeedType   enums.FeedType `json:"feed_type"`
	QuantityKg json.Number    `json:"quantity_kg"`
	Value      json.Number    `json:"value"`
	Items      int            `json:"items"`
	LowItems   int            `json:"low_items"`
}

type Stats struct {
	TotalQuantityKg     json.Number     `json:"total_quantity_kg"`
	TotalValue          json.Number     `json:"total_value"`
	AvgDailyConsumption json.Number     `json:"avg_daily_consumption"`
	DaysAutonomy        json.Number     `json:"days_autonomy"`
	ByFeedType          []FeedTypeTotal `json:"by_feed_type"`
	LowStockCount       int             `json:"low_stock_count"`
	StockCount          int             `json:"stock_count"`
	WindowDays          int             `json:"window_days"`
	AsOf                time.Time       `json:"as_of"`
}

type TrendDay struct {
	Date       string                         `json:"date"`
	TotalKg    json.Number                    `json:"total_kg"`
	ByFeedType map[enums.FeedType]json.Number `json:"by_feed_type"`
}

func StockItemFrom(item models.FeedStockItem) StockItem {
	return StockItem{
		ID:            item.ID,
		FeedType:      item.FeedType,
		AgeRange:      item.FeedType.AgeRange(),
		LocationType:  item.LocationType,
		LocationKey:   item.LocationKey,
		SiteID:        item.SiteID,
		BuildingID:    item.BuildingID,
		QuantityKg:    Kg(item.QuantityKg),
		MinQuantityKg: Kg(item.MinQuantityKg),
		IsLow:         item.IsLow(),
		PricePerKg:    nullable(item.PricePerKg, 4),
		SupplierName:  item.SupplierName,
		Brand:         item.Brand,
		LastRestockAt: item.LastRestockAt,
		CreatedAt:     item.CreatedAt,
		UpdatedAt:     item.UpdatedAt,
	}
}

func StockItemsFrom(items []models.FeedStockItem) []StockItem {
	out := make([]StockItem, 0, len(items))
	for _, item := range items {
		out = append(out, StockItemFrom(item))
	}
	return out
}

func MovementFrom(record ledger.MovementRecord) Movement {
	m := record.FeedStockMovement
	return Movement{
		ID:                 m.ID,
		StockItemID:        m.StockItemID,
		FeedType:           record.FeedType,
		LocationKey:        record.LocationKey,
		Type:               m.Type,
		Direction:          m.Direction,
		QuantityKg:         Kg(m.QuantityKg),
		BalanceAfterKg:     Kg(m.BalanceAfterKg),
		OccurredAt:         m.OccurredAt,
		Source:             m.Source,
		InvoiceNumber:      m.InvoiceNumber,
		Notes:              m.Notes,
		UnitPrice:          nullable(m.UnitPrice, 4),
		TotalAmount:        nullable(m.TotalAmount, quantity.Scale),
		ReversesMovementID: m.ReversesMovementID,
		CreatedAt:          m.CreatedAt,
	}
}

func MovementPageFrom(page *ledger.MovementPage) MovementPage {
	out := MovementPage{Movements: make([]Movement, 0)}
	if page == nil {
		return out
	}
	for _, record := range page.Movements {
		out.Movements = append(out.Movements, MovementFrom(record))
	}
	out.NextCursor = page.NextCursor
	return out
}

func StatsFrom(stats *analyticstypes.Stats) Stats {
	out := Stats{
		TotalQuantityKg:     Kg(stats.TotalQuantityKg),
		TotalValue:          Kg(stats.TotalValue),
		AvgDailyConsumption: Kg(stats.AvgDailyConsumption),
		DaysAutonomy:        json.Number(stats.DaysAutonomy.StringFixed(1)),
		ByFeedType:          make([]FeedTypeTotal, 0, len(stats.ByFeedType)),
		LowStockCount:       stats.LowStockCount,
		StockCount:          stats.StockCount,
		WindowDays:          stats.WindowDays,
		AsOf:                stats.AsOf,
	}
	for _, total := range stats.ByFeedType {
		out.ByFeedType = append(out.ByFeedType, FeedTypeTotal{
			FeedType:   total.FeedType,
			QuantityKg: Kg(total.QuantityKg),
			Value:      Kg(total.Value),
			Items:      total.Items,
			LowItems:   total.LowItems,
		})
	}
	return out
}

func TrendFrom(days []analyticstypes.TrendDay) []TrendDay {
	out := make([]TrendDay, 0, len(days))
	for _, day := range days {
		byFeed := make(map[enums.FeedType]json.Number, len(day.ByFeedType))
		for feedType, kg := range day.ByFeedType {
			byFeed[feedType] = Kg(kg)
		}
		out = append(out, TrendDay{Date: day.Date, TotalKg: Kg(day.TotalKg), ByFeedType: byFeed})
	}
	return out
}

// Kg renders a quantity as a JSON number with the stored two-decimal scale.
func Kg(v decimal.Decimal) json.Number {
	return json.Number(quantity.Format(quantity.Kg(v)))
}

func nullable(v decimal.NullDecimal, decimals int32) *json.Number {
	if !v.Valid {
		return nil
	}
	n := json.Number(quantity.Round(v.Decimal, decimals).StringFixed(decimals))
	return &n
}
