// Package reconcile turns a daily husbandry entry into an optional stock
// deduction.
package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/feedledger-backend/internal/ledger"
	"github.com/angelmondragon/feedledger-backend/internal/stock"
	"github.com/angelmondragon/feedledger-backend/pkg/db/models"
	"github.com/angelmondragon/feedledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/feedledger-backend/pkg/errors"
	"github.com/angelmondragon/feedledger-backend/pkg/logger"
	"github.com/angelmondragon/feedledger-backend/pkg/quantity"
)

// Outcome reports what a reconciliation did.
type Outcome string

const (
	OutcomeNotRequested Outcome = "not_requested"
	OutcomeConsumed     Outcome = "consumed"
)

// DailyEntry is the subset of a daily lot entry the reconciler reads.
type DailyEntry struct {
	LotID           string
	Date            time.Time
	FeedQuantityKg  decimal.Decimal
	FeedType        enums.FeedType
	DeductFromStock bool
	FeedStockID     *uuid.UUID
	Notes           *string
}

type Result struct {
	Outcome  Outcome
	Movement *ledger.MovementRecord
	Item     *models.FeedStockItem
}

type itemLoader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.FeedStockItem, error)
}

type consumer interface {
	ConsumeItem(ctx context.Context, cmd ledger.ConsumeItemCommand) (*ledger.ConsumeResult, error)
}

// Service validates a daily entry before asking the ledger to deduct stock.
type Service struct {
	items  itemLoader
	ledger consumer
	logg   *logger.Logger
}

func NewService(items itemLoader, ledger consumer, logg *logger.Logger) (*Service, error) {
	if items == nil {
		return nil, fmt.Errorf("stock item loader required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	return &Service{items: items, ledger: ledger, logg: logg}, nil
}

// Reconcile fails fast. A rejected entry never reaches the ledger.
func (s *Service) Reconcile(ctx context.Context, entry DailyEntry) (*Result, error) {
	if !entry.DeductFromStock {
		return &Result{Outcome: OutcomeNotRequested}, nil
	}
	if entry.FeedStockID == nil || *entry.FeedStockID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeMissingStockReference, "feed_stock_id is required when deduct_from_stock is set")
	}
	requested := quantity.Kg(entry.FeedQuantityKg)
	if !quantity.IsPositive(requested) {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidQuantity, "feed_quantity_kg must be greater than zero").
			WithDetails(map[string]string{"feed_quantity_kg": entry.FeedQuantityKg.String()})
	}
	lotID := strings.TrimSpace(entry.LotID)
	if lotID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "lot_id is required")
	}

	item, err := s.items.GetByID(ctx, *entry.FeedStockID)
	if err != nil {
		return nil, err
	}
	if entry.FeedType != "" && entry.FeedType != item.FeedType {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "feed type does not match stock item").
			WithDetails(map[string]string{
				"reason":          "feed_type_mismatch",
				"entry_feed_type": string(entry.FeedType),
				"stock_feed_type": string(item.FeedType),
			})
	}
	if requested.GreaterThan(item.QuantityKg) {
		return nil, stock.InsufficientStock(requested, item.QuantityKg)
	}

	res, err := s.ledger.ConsumeItem(ctx, ledger.ConsumeItemCommand{
		StockItemID: item.ID,
		QuantityKg:  requested,
		LotID:       lotID,
		Notes:       entry.Notes,
		OccurredAt:  occurredAt(entry.Date),
	})
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		logCtx := s.logg.WithLotID(ctx, lotID)
		logCtx = s.logg.WithMovementID(logCtx, res.Movement.ID.String())
		s.logg.Info(logCtx, "daily entry deducted from stock")
	}
	return &Result{Outcome: OutcomeConsumed, Movement: res.Movement, Item: res.Item}, nil
}

// occurredAt stamps a bare calendar date at noon UTC.
func occurredAt(date time.Time) time.Time {
	if date.IsZero() {
		return time.Time{}
	}
	date = date.UTC()
	if date.Hour() == 0 && date.Minute() == 0 && date.Second() == 0 && date.Nanosecond() == 0 {
		return date.Add(12 * time.Hour)
	}
	return date
}
