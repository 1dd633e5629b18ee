package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/feedledger-backend/pkg/db/models"
	"github.com/angelmondragon/feedledger-backend/pkg/enums"
	"github.com/angelmondragon/feedledger-backend/pkg/pagination"
)

// MovementRecord is a movement joined with the identity of its stock item.
type MovementRecord struct {
	models.FeedStockMovement
	FeedType    enums.FeedType `gorm:"column:feed_type" json:"feed_type"`
	LocationKey string         `gorm:"column:location_key" json:"location_key"`
}

// Cursor positions the record in the newest-first movement listing.
func (r MovementRecord) Cursor() pagination.Cursor {
	return pagination.Cursor{At: r.OccurredAt, ID: r.ID}
}

// MovementFilter narrows movement listings. Zero values are ignored.
type MovementFilter struct {
	Since       *time.Time
	Until       *time.Time
	FeedType    enums.FeedType
	Type        enums.MovementType
	StockItemID *uuid.UUID
	// LotID restricts the listing to consumptions drawn by that lot.
	LotID *string
}

// Repository manages persistence for stock movements. Movements are append-only.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, movement *models.FeedStockMovement) error
	FindByID(ctx context.Context, id uuid.UUID) (*MovementRecord, error)
	FindReversal(ctx context.Context, movementID uuid.UUID) (*models.FeedStockMovement, error)
	List(ctx context.Context, filter MovementFilter, cursor *pagination.Cursor, limit int) ([]MovementRecord, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a movement repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, movement *models.FeedStockMovement) error {
	return r.db.WithContext(ctx).Create(movement).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*MovementRecord, error) {
	var records []MovementRecord
	if err := r.joined(ctx).
		Where("m.id = ?", id).
		Limit(1).
		Scan(&records).Error; err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return &records[0], nil
}

func (r *repository) FindReversal(ctx context.Context, movementID uuid.UUID) (*models.FeedStockMovement, error) {
	var movement models.FeedStockMovement
	if err := r.db.WithContext(ctx).
		Where("reverses_movement_id = ?", movementID).
		First(&movement).Error; err != nil {
		return nil, err
	}
	return &movement, nil
}

// List returns movements newest first, strictly after cursor when provided.
func (r *repository) List(ctx context.Context, filter MovementFilter, cursor *pagination.Cursor, limit int) ([]MovementRecord, error) {
	query := r.joined(ctx)
	if filter.Since != nil {
		query = query.Where("m.occurred_at >= ?", filter.Since.UTC())
	}
	if filter.Until != nil {
		query = query.Where("m.occurred_at <= ?", filter.Until.UTC())
	}
	if filter.FeedType != "" {
		query = query.Where("i.feed_type = ?", filter.FeedType)
	}
	if filter.Type != "" {
		query = query.Where("m.type = ?", filter.Type)
	}
	if filter.StockItemID != nil {
		query = query.Where("m.stock_item_id = ?", *filter.StockItemID)
	}
	if filter.LotID != nil {
		query = query.Where("m.type = ? AND m.source = ?", enums.MovementConsumption, *filter.LotID)
	}

	var records []MovementRecord
	if err := query.
		Scopes(pagination.After(cursor, "m.occurred_at", "m.id")).
		Order("m.occurred_at DESC").
		Order("m.id DESC").
		Limit(limit).
		Scan(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repository) joined(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("feed_stock_movements AS m").
		Select("m.*, i.feed_type, i.location_key").
		Joins("JOIN feed_stock_items i ON i.id = m.stock_item_id")
}
