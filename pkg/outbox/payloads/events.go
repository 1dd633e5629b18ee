package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/feedledger-backend/pkg/enums"
)

// MovementRecordedEvent is emitted for every committed restock or consumption.
type MovementRecordedEvent struct {
	MovementID     uuid.UUID          `json:"movement_id"`
	StockItemID    uuid.UUID          `json:"stock_item_id"`
	FeedType       enums.FeedType     `json:"feed_type"`
	LocationKey    string             `json:"location_key"`
	Type           enums.MovementType `json:"type"`
	Direction      int                `json:"direction"`
	QuantityKg     decimal.Decimal    `json:"quantity_kg"`
	BalanceAfterKg decimal.Decimal    `json:"balance_after_kg"`
	Source         *string            `json:"source,omitempty"`
	OccurredAt     time.Time          `json:"occurred_at"`
}

// MovementReversedEvent is emitted when a compensating adjustment cancels a movement.
type MovementReversedEvent struct {
	MovementID         uuid.UUID       `json:"movement_id"`
	ReversedMovementID uuid.UUID       `json:"reversed_movement_id"`
	StockItemID        uuid.UUID       `json:"stock_item_id"`
	Direction          int             `json:"direction"`
	QuantityKg         decimal.Decimal `json:"quantity_kg"`
	BalanceAfterKg     decimal.Decimal `json:"balance_after_kg"`
	Reason             string          `json:"reason,omitempty"`
	OccurredAt         time.Time       `json:"occurred_at"`
}

// StockLowEvent fires when an item drops to or below its alert threshold.
type StockLowEvent struct {
	StockItemID   uuid.UUID       `json:"stock_item_id"`
	FeedType      enums.FeedType  `json:"feed_type"`
	LocationKey   string          `json:"location_key"`
	QuantityKg    decimal.Decimal `json:"quantity_kg"`
	MinQuantityKg decimal.Decimal `json:"min_quantity_kg"`
	DetectedAt    time.Time       `json:"detected_at"`
}

// AutonomyLowEvent is raised by the scheduled scan when remaining stock
// covers fewer days than the configured floor.
type AutonomyLowEvent struct {
	TotalQuantityKg     decimal.Decimal `json:"total_quantity_kg"`
	AvgDailyConsumption decimal.Decimal `json:"avg_daily_consumption"`
	DaysAutonomy        decimal.Decimal `json:"days_autonomy"`
	ThresholdDays       int             `json:"threshold_days"`
	WindowDays          int             `json:"window_days"`
	DetectedAt          time.Time       `json:"detected_at"`
}
