package stock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/feedledger-backend/pkg/db/models"
	"github.com/angelmondragon/feedledger-backend/pkg/enums"
)

// Repository persists stock items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.FeedStockItem, error)
	FindByKey(ctx context.Context, feedType enums.FeedType, locationKey string) (*models.FeedStockItem, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.FeedStockItem, error)
	FindByKeyForUpdate(ctx context.Context, feedType enums.FeedType, locationKey string) (*models.FeedStockItem, error)
	InsertIfAbsent(ctx context.Context, item *models.FeedStockItem) error
	UpdateQuantity(ctx context.Context, id uuid.UUID, quantity decimal.Decimal, at time.Time) error
	UpdateRestockInfo(ctx context.Context, id uuid.UUID, info RestockInfo) error
	UpdateThreshold(ctx context.Context, id uuid.UUID, threshold decimal.Decimal) error
	List(ctx context.Context, filter Filter) ([]models.FeedStockItem, error)
}

// RestockInfo is the item metadata refreshed by a restock.
type RestockInfo struct {
	At           time.Time
	SupplierName *string
	Brand        *string
	PricePerKg   decimal.NullDecimal
}

// Filter narrows List. A site filter includes the site's buildings.
type Filter struct {
	FeedType     *enums.FeedType
	LocationType *enums.LocationType
	SiteID       *uuid.UUID
	BuildingID   *uuid.UUID
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.FeedStockItem, error) {
	var item models.FeedStockItem
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) FindByKey(ctx context.Context, feedType enums.FeedType, locationKey string) (*models.FeedStockItem, error) {
	var item models.FeedStockItem
	if err := r.db.WithContext(ctx).
		Where("feed_type = ? AND location_key = ?", feedType, locationKey).
		First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.FeedStockItem, error) {
	var item models.FeedStockItem
	if err := forUpdate(r.db.WithContext(ctx)).
		Where("id = ?", id).
		First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) FindByKeyForUpdate(ctx context.Context, feedType enums.FeedType, locationKey string) (*models.FeedStockItem, error) {
	var item models.FeedStockItem
	if err := forUpdate(r.db.WithContext(ctx)).
		Where("feed_type = ? AND location_key = ?", feedType, locationKey).
		First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// InsertIfAbsent creates the item unless one already exists for its key.
func (r *repository) InsertIfAbsent(ctx context.Context, item *models.FeedStockItem) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "feed_type"}, {Name: "location_key"}},
			DoNothing: true,
		}).
		Create(item).Error
}

func (r *repository) UpdateQuantity(ctx context.Context, id uuid.UUID, quantity decimal.Decimal, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.FeedStockItem{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"quantity_kg": quantity,
			"updated_at":  at,
		}).Error
}

func (r *repository) UpdateRestockInfo(ctx context.Context, id uuid.UUID, info RestockInfo) error {
	updates := map[string]any{
		"last_restock_at": info.At,
		"updated_at":      info.At,
	}
	if info.SupplierName != nil {
		updates["supplier_name"] = *info.SupplierName
	}
	if info.Brand != nil {
		updates["brand"] = *info.Brand
	}
	if info.PricePerKg.Valid {
		updates["price_per_kg"] = info.PricePerKg.Decimal
	}
	return r.db.WithContext(ctx).
		Model(&models.FeedStockItem{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) UpdateThreshold(ctx context.Context, id uuid.UUID, threshold decimal.Decimal) error {
	result := r.db.WithContext(ctx).
		Model(&models.FeedStockItem{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"min_quantity_kg": threshold,
			"updated_at":      time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) List(ctx context.Context, filter Filter) ([]models.FeedStockItem, error) {
	query := r.db.WithContext(ctx).Model(&models.FeedStockItem{})
	if filter.FeedType != nil {
		query = query.Where("feed_type = ?", *filter.FeedType)
	}
	if filter.LocationType != nil {
		query = query.Where("location_type = ?", *filter.LocationType)
	}
	if filter.SiteID != nil {
		query = query.Where("site_id = ?", *filter.SiteID)
	}
	if filter.BuildingID != nil {
		query = query.Where("building_id = ?", *filter.BuildingID)
	}
	var items []models.FeedStockItem
	if err := query.Order("feed_type ASC").Order("location_key ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// forUpdate adds a row lock. sqlite has no row locks and serialises writers
// on its own.
func forUpdate(db *gorm.DB) *gorm.DB {
	if db.Dialector != nil && db.Dialector.Name() == "sqlite" {
		return db
	}
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}
