package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/feedledger-backend/internal/locations"
	"github.com/angelmondragon/feedledger-backend/pkg/db"
	"github.com/angelmondragon/feedledger-backend/pkg/db/models"
	"github.com/angelmondragon/feedledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/feedledger-backend/pkg/errors"
	"github.com/angelmondragon/feedledger-backend/pkg/quantity"
)

// Key identifies a stock item: one feed type at one resolved location.
type Key struct {
	FeedType enums.FeedType
	Location locations.Location
}

func (k Key) String() string {
	return locations.StockKey(k.FeedType, k.Location)
}

// Shortfall is attached to INSUFFICIENT_STOCK errors.
type Shortfall struct {
	RequestedKg decimal.Decimal `json:"requested_kg"`
	AvailableKg decimal.Decimal `json:"available_kg"`
}

// InsufficientStock builds the rejection returned when a decrement would
// drive stock below zero.
func InsufficientStock(requested, available decimal.Decimal) *pkgerrors.Error {
	requested = quantity.Kg(requested)
	available = quantity.Kg(available)
	msg := fmt.Sprintf("%s kg available, %s kg requested", quantity.Format(available), quantity.Format(requested))
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, msg).
		WithDetails(Shortfall{RequestedKg: requested, AvailableKg: available})
}

// Store owns every read and write of stock item quantities. ApplyDelta is the
// only path that changes quantity_kg.
type Store struct {
	repo         Repository
	defaultMinKg decimal.Decimal
}

func NewStore(repo Repository, defaultMinKg decimal.Decimal) (*Store, error) {
	if repo == nil {
		return nil, fmt.Errorf("stock repository required")
	}
	if defaultMinKg.IsNegative() {
		return nil, fmt.Errorf("default min quantity must not be negative")
	}
	return &Store{repo: repo, defaultMinKg: quantity.Kg(defaultMinKg)}, nil
}

// Get returns the item for key or a NOT_FOUND error.
func (s *Store) Get(ctx context.Context, key Key) (*models.FeedStockItem, error) {
	item, err := s.repo.FindByKey(ctx, key.FeedType, key.Location.Key())
	if err != nil {
		return nil, notFoundOr(err, "load stock item")
	}
	return item, nil
}

func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*models.FeedStockItem, error) {
	item, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "load stock item")
	}
	return item, nil
}

// GetOrCreate returns the locked item for key inside tx, creating it with
// zero quantity on first use.
func (s *Store) GetOrCreate(ctx context.Context, tx *gorm.DB, key Key) (*models.FeedStockItem, bool, error) {
	if tx == nil {
		return nil, false, gorm.ErrInvalidTransaction
	}
	repo := s.repo.WithTx(tx)
	locationKey := key.Location.Key()

	item, err := repo.FindByKeyForUpdate(ctx, key.FeedType, locationKey)
	if err == nil {
		return item, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stock item")
	}

	candidate := &models.FeedStockItem{
		ID:            uuid.New(),
		FeedType:      key.FeedType,
		LocationType:  key.Location.Type,
		LocationKey:   locationKey,
		SiteID:        key.Location.SiteID,
		BuildingID:    key.Location.BuildingID,
		QuantityKg:    decimal.Zero,
		MinQuantityKg: s.defaultMinKg,
	}
	if err := repo.InsertIfAbsent(ctx, candidate); err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create stock item")
	}

	item, err = repo.FindByKeyForUpdate(ctx, key.FeedType, locationKey)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load created stock item")
	}
	return item, item.ID == candidate.ID, nil
}

// LockByID loads and row-locks an existing item inside tx.
func (s *Store) LockByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.FeedStockItem, error) {
	if tx == nil {
		return nil, gorm.ErrInvalidTransaction
	}
	item, err := s.repo.WithTx(tx).FindByIDForUpdate(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "lock stock item")
	}
	return item, nil
}

// ApplyDelta adds delta to the item's quantity inside tx. A result below zero
// is rejected with INSUFFICIENT_STOCK and nothing is written.
func (s *Store) ApplyDelta(ctx context.Context, tx *gorm.DB, item *models.FeedStockItem, delta decimal.Decimal, at time.Time) (*models.FeedStockItem, error) {
	if tx == nil {
		return nil, gorm.ErrInvalidTransaction
	}
	if item == nil {
		return nil, fmt.Errorf("stock item is required")
	}
	delta = quantity.Kg(delta)
	current := quantity.Kg(item.QuantityKg)
	next := quantity.Sum(current, delta)
	if next.IsNegative() {
		return nil, InsufficientStock(delta.Neg(), current)
	}
	if next.GreaterThan(quantity.MaxKg) {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidQuantity, "stock balance would exceed the maximum").
			WithDetails(map[string]string{
				"quantity_kg": quantity.Format(current),
				"delta_kg":    quantity.Format(delta),
				"max_kg":      quantity.Format(quantity.MaxKg),
			})
	}

	if err := s.repo.WithTx(tx).UpdateQuantity(ctx, item.ID, next, at); err != nil {
		if db.IsCheckViolation(err, "") {
			return nil, InsufficientStock(delta.Neg(), current)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update stock quantity")
	}
	updated := *item
	updated.QuantityKg = next
	updated.UpdatedAt = at
	return &updated, nil
}

// RecordRestock refreshes restock metadata on an item inside tx.
func (s *Store) RecordRestock(ctx context.Context, tx *gorm.DB, item *models.FeedStockItem, info RestockInfo) (*models.FeedStockItem, error) {
	if tx == nil {
		return nil, gorm.ErrInvalidTransaction
	}
	if err := s.repo.WithTx(tx).UpdateRestockInfo(ctx, item.ID, info); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update restock info")
	}
	updated := *item
	at := info.At
	updated.LastRestockAt = &at
	updated.UpdatedAt = at
	if info.SupplierName != nil {
		updated.SupplierName = info.SupplierName
	}
	if info.Brand != nil {
		updated.Brand = info.Brand
	}
	if info.PricePerKg.Valid {
		updated.PricePerKg = info.PricePerKg
	}
	return &updated, nil
}

// SetThreshold changes the low-stock alert threshold. Quantity is untouched.
func (s *Store) SetThreshold(ctx context.Context, id uuid.UUID, threshold decimal.Decimal) (*models.FeedStockItem, error) {
	if threshold.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidQuantity, "min_quantity_kg must not be negative")
	}
	if quantity.Kg(threshold).GreaterThan(quantity.MaxKg) {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidQuantity, "min_quantity_kg exceeds the maximum")
	}
	if err := s.repo.UpdateThreshold(ctx, id, quantity.Kg(threshold)); err != nil {
		return nil, notFoundOr(err, "update threshold")
	}
	return s.GetByID(ctx, id)
}

func (s *Store) List(ctx context.Context, filter Filter) ([]models.FeedStockItem, error) {
	items, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stock items")
	}
	return items, nil
}

// IsLow reports whether item is at or below its alert threshold.
func IsLow(item models.FeedStockItem) bool {
	return item.IsLow()
}

func notFoundOr(err error, action string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "stock item not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}
