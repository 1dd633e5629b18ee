package query

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/feedledger-backend/pkg/enums"
)

// ConsumptionRow is one consumption movement that has not been reversed.
type ConsumptionRow struct {
	OccurredAt time.Time       `gorm:"column:occurred_at"`
	FeedType   enums.FeedType  `gorm:"column:feed_type"`
	QuantityKg decimal.Decimal `gorm:"column:quantity_kg"`
}

// ConsumptionReader reads consumption movements for reporting.
type ConsumptionReader interface {
	Consumption(ctx context.Context, since, until time.Time) ([]ConsumptionRow, error)
}

type consumptionReader struct {
	db *gorm.DB
}

func NewConsumptionReader(db *gorm.DB) ConsumptionReader {
	return &consumptionReader{db: db}
}

const consumptionSQL = `
SELECT m.occurred_at, i.feed_type, m.quantity_kg
FROM feed_stock_movements m
JOIN feed_stock_items i ON i.id = m.stock_item_id
LEFT JOIN feed_stock_movements adj ON adj.reverses_movement_id = m.id
WHERE m.type = ?
  AND adj.id IS NULL
  AND m.occurred_at >= ?
  AND m.occurred_at < ?
ORDER BY m.occurred_at ASC
`

// Consumption returns unreversed consumption in [since, until).
func (r *consumptionReader) Consumption(ctx context.Context, since, until time.Time) ([]ConsumptionRow, error) {
	var rows []ConsumptionRow
	if err := r.db.WithContext(ctx).
		Raw(consumptionSQL, enums.MovementConsumption, since.UTC(), until.UTC()).
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
