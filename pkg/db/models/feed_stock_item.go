package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/feedledger-backend/pkg/enums"
)

// FeedStockItem is the on-hand quantity of one feed type at one location.
type FeedStockItem struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	FeedType      enums.FeedType      `gorm:"column:feed_type;type:feed_type_enum;not null;uniqueIndex:uniq_feed_stock_items_key,priority:1"`
	LocationType  enums.LocationType  `gorm:"column:location_type;type:location_type_enum;not null"`
	LocationKey   string              `gorm:"column:location_key;not null;uniqueIndex:uniq_feed_stock_items_key,priority:2"`
	SiteID        *uuid.UUID          `gorm:"column:site_id;type:uuid"`
	BuildingID    *uuid.UUID          `gorm:"column:building_id;type:uuid"`
	Brand         *string             `gorm:"column:brand"`
	QuantityKg    decimal.Decimal     `gorm:"column:quantity_kg;type:numeric(12,2);not null"`
	MinQuantityKg decimal.Decimal     `gorm:"column:min_quantity_kg;type:numeric(12,2);not null"`
	PricePerKg    decimal.NullDecimal `gorm:"column:price_per_kg;type:numeric(12,4)"`
	SupplierName  *string             `gorm:"column:supplier_name"`
	LastRestockAt *time.Time          `gorm:"column:last_restock_at"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (FeedStockItem) TableName() string { return "feed_stock_items" }

// IsLow reports whether the on-hand quantity is at or below the alert threshold.
func (f FeedStockItem) IsLow() bool {
	return f.QuantityKg.LessThanOrEqual(f.MinQuantityKg)
}
