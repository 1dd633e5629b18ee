package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/feedledger-backend/pkg/enums"
)

// FeedStockMovement is an immutable record of one change to a stock item.
// QuantityKg is always a positive magnitude; Direction carries the sign of
// its effect on the item (+1 or -1).
type FeedStockMovement struct {
	ID                 uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	StockItemID        uuid.UUID           `gorm:"column:stock_item_id;type:uuid;not null;index:idx_feed_stock_movements_item_time,priority:1"`
	Type               enums.MovementType  `gorm:"column:type;type:movement_type_enum;not null"`
	Direction          int                 `gorm:"column:direction;not null"`
	QuantityKg         decimal.Decimal     `gorm:"column:quantity_kg;type:numeric(12,2);not null"`
	BalanceAfterKg     decimal.Decimal     `gorm:"column:balance_after_kg;type:numeric(12,2);not null"`
	OccurredAt         time.Time           `gorm:"column:occurred_at;not null;index:idx_feed_stock_movements_item_time,priority:2"`
	Source             *string             `gorm:"column:source"`
	InvoiceNumber      *string             `gorm:"column:invoice_number"`
	Notes              *string             `gorm:"column:notes"`
	UnitPrice          decimal.NullDecimal `gorm:"column:unit_price;type:numeric(12,4)"`
	TotalAmount        decimal.NullDecimal `gorm:"column:total_amount;type:numeric(14,2)"`
	ReversesMovementID *uuid.UUID          `gorm:"column:reverses_movement_id;type:uuid;uniqueIndex:uniq_feed_stock_movements_reverses"`
	CreatedAt          time.Time           `gorm:"column:created_at;autoCreateTime"`
}

func (FeedStockMovement) TableName() string { return "feed_stock_movements" }

// SignedQuantity returns the movement's effect on its stock item.
func (m FeedStockMovement) SignedQuantity() decimal.Decimal {
	if m.Direction < 0 {
		return m.QuantityKg.Neg()
	}
	return m.QuantityKg
}
