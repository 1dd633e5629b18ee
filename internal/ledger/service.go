package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/feedledger-backend/internal/locations"
	"github.com/angelmondragon/feedledger-backend/internal/stock"
	"github.com/angelmondragon/feedledger-backend/pkg/db"
	"github.com/angelmondragon/feedledger-backend/pkg/db/models"
	"github.com/angelmondragon/feedledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/feedledger-backend/pkg/errors"
	"github.com/angelmondragon/feedledger-backend/pkg/keylock"
	"github.com/angelmondragon/feedledger-backend/pkg/logger"
	"github.com/angelmondragon/feedledger-backend/pkg/metrics"
	"github.com/angelmondragon/feedledger-backend/pkg/outbox"
	"github.com/angelmondragon/feedledger-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/feedledger-backend/pkg/pagination"
	"github.com/angelmondragon/feedledger-backend/pkg/quantity"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type locationResolver interface {
	Resolve(ctx context.Context, ref locations.Ref) (locations.Location, error)
}

type stockStore interface {
	Get(ctx context.Context, key stock.Key) (*models.FeedStockItem, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.FeedStockItem, error)
	GetOrCreate(ctx context.Context, tx *gorm.DB, key stock.Key) (*models.FeedStockItem, bool, error)
	LockByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.FeedStockItem, error)
	ApplyDelta(ctx context.Context, tx *gorm.DB, item *models.FeedStockItem, delta decimal.Decimal, at time.Time) (*models.FeedStockItem, error)
	RecordRestock(ctx context.Context, tx *gorm.DB, item *models.FeedStockItem, info stock.RestockInfo) (*models.FeedStockItem, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service records stock movements. Every committed movement changes exactly
// one stock item in the same transaction.
type Service interface {
	Restock(ctx context.Context, cmd RestockCommand) (*RestockResult, error)
	Consume(ctx context.Context, cmd ConsumeCommand) (*ConsumeResult, error)
	ConsumeItem(ctx context.Context, cmd ConsumeItemCommand) (*ConsumeResult, error)
	Reverse(ctx context.Context, cmd ReverseCommand) (*ReverseResult, error)
	Movement(ctx context.Context, id uuid.UUID) (*MovementRecord, error)
	Movements(ctx context.Context, query MovementQuery) (*MovementPage, error)
}

// ServiceParams wires the ledger's collaborators.
type ServiceParams struct {
	Tx        txRunner
	Repo      Repository
	Stock     stockStore
	Locations locationResolver
	Locker    keylock.Locker
	Outbox    outboxPublisher
	Metrics   *metrics.LedgerMetrics
	Logger    *logger.Logger
	Clock     func() time.Time
}

type service struct {
	tx        txRunner
	repo      Repository
	stock     stockStore
	locations locationResolver
	locker    keylock.Locker
	outbox    outboxPublisher
	metrics   *metrics.LedgerMetrics
	logg      *logger.Logger
	now       func() time.Time
}

// NewService builds the movement ledger.
func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("movement repository required")
	}
	if params.Stock == nil {
		return nil, fmt.Errorf("stock store required")
	}
	if params.Locations == nil {
		return nil, fmt.Errorf("location resolver required")
	}
	if params.Locker == nil {
		return nil, fmt.Errorf("key locker required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.New(logger.Options{ServiceName: "ledger", Output: io.Discard})
	}
	now := params.Clock
	if now == nil {
		now = time.Now
	}
	return &service{
		tx:        params.Tx,
		repo:      params.Repo,
		stock:     params.Stock,
		locations: params.Locations,
		locker:    params.Locker,
		outbox:    params.Outbox,
		metrics:   params.Metrics,
		logg:      logg,
		now:       now,
	}, nil
}

func (s *service) Restock(ctx context.Context, cmd RestockCommand) (result *RestockResult, err error) {
	defer func() { s.observe(ctx, "restock", err) }()

	if err := cmd.normalize(); err != nil {
		return nil, err
	}
	loc, err := s.locations.Resolve(ctx, cmd.Location)
	if err != nil {
		return nil, err
	}
	key := stock.Key{FeedType: cmd.FeedType, Location: loc}
	ctx = s.logg.WithStockKey(ctx, key.String())

	unlock, err := s.lock(ctx, "restock", key.String())
	if err != nil {
		return nil, err
	}
	defer unlock()

	at := s.timestamp(cmd.OccurredAt)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		item, created, err := s.stock.GetOrCreate(ctx, tx, key)
		if err != nil {
			return err
		}
		updated, err := s.stock.ApplyDelta(ctx, tx, item, cmd.QuantityKg, at)
		if err != nil {
			return err
		}
		updated, err = s.stock.RecordRestock(ctx, tx, updated, stock.RestockInfo{
			At:           at,
			SupplierName: cmd.SupplierName,
			Brand:        cmd.Brand,
			PricePerKg:   cmd.UnitPrice,
		})
		if err != nil {
			return err
		}

		movement := &models.FeedStockMovement{
			ID:             newMovementID(),
			StockItemID:    updated.ID,
			Type:           enums.MovementRestock,
			Direction:      1,
			QuantityKg:     cmd.QuantityKg,
			BalanceAfterKg: updated.QuantityKg,
			OccurredAt:     at,
			Source:         cmd.SupplierName,
			InvoiceNumber:  cmd.InvoiceNumber,
			Notes:          cmd.Notes,
			UnitPrice:      cmd.UnitPrice,
		}
		if cmd.UnitPrice.Valid {
			movement.TotalAmount = decimal.NewNullDecimal(quantity.Multiply(cmd.QuantityKg, cmd.UnitPrice.Decimal))
		}
		record, err := s.append(ctx, tx, updated, movement)
		if err != nil {
			return err
		}
		if err := s.emitRecorded(ctx, tx, record); err != nil {
			return err
		}
		result = &RestockResult{Item: updated, Movement: record, Created: created}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.AddQuantity(string(cmd.FeedType), string(enums.MovementRestock), cmd.QuantityKg.InexactFloat64())
	logCtx := s.logg.WithMovementID(ctx, result.Movement.ID.String())
	s.logg.Info(logCtx, fmt.Sprintf("restocked %s kg, balance %s kg", quantity.Format(cmd.QuantityKg), quantity.Format(result.Item.QuantityKg)))
	return result, nil
}

func (s *service) Consume(ctx context.Context, cmd ConsumeCommand) (result *ConsumeResult, err error) {
	defer func() { s.observe(ctx, "consume", err) }()

	if err := cmd.normalize(); err != nil {
		return nil, err
	}
	loc, err := s.locations.Resolve(ctx, cmd.Location)
	if err != nil {
		return nil, err
	}
	item, err := s.stock.Get(ctx, stock.Key{FeedType: cmd.FeedType, Location: loc})
	if err != nil {
		return nil, err
	}
	return s.consume(ctx, item, ConsumeItemCommand{
		StockItemID: item.ID,
		QuantityKg:  cmd.QuantityKg,
		LotID:       cmd.LotID,
		Notes:       cmd.Notes,
		OccurredAt:  cmd.OccurredAt,
	})
}

func (s *service) ConsumeItem(ctx context.Context, cmd ConsumeItemCommand) (result *ConsumeResult, err error) {
	defer func() { s.observe(ctx, "consume", err) }()

	if err := cmd.normalize(); err != nil {
		return nil, err
	}
	item, err := s.stock.GetByID(ctx, cmd.StockItemID)
	if err != nil {
		return nil, err
	}
	return s.consume(ctx, item, cmd)
}

// consume expects a normalized command. item is only used to derive the lock
// key; the quantity is re-read under the row lock.
func (s *service) consume(ctx context.Context, item *models.FeedStockItem, cmd ConsumeItemCommand) (*ConsumeResult, error) {
	lockKey := stockKeyOf(item)
	ctx = s.logg.WithStockKey(ctx, lockKey)
	ctx = s.logg.WithLotID(ctx, cmd.LotID)

	unlock, err := s.lock(ctx, "consume", lockKey)
	if err != nil {
		return nil, err
	}
	defer unlock()

	at := s.timestamp(cmd.OccurredAt)
	var result *ConsumeResult
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		current, err := s.stock.LockByID(ctx, tx, item.ID)
		if err != nil {
			return err
		}
		updated, err := s.stock.ApplyDelta(ctx, tx, current, cmd.QuantityKg.Neg(), at)
		if err != nil {
			return err
		}
		lotID := cmd.LotID
		record, err := s.append(ctx, tx, updated, &models.FeedStockMovement{
			ID:             newMovementID(),
			StockItemID:    updated.ID,
			Type:           enums.MovementConsumption,
			Direction:      -1,
			QuantityKg:     cmd.QuantityKg,
			BalanceAfterKg: updated.QuantityKg,
			OccurredAt:     at,
			Source:         &lotID,
			Notes:          cmd.Notes,
		})
		if err != nil {
			return err
		}
		if err := s.emitRecorded(ctx, tx, record); err != nil {
			return err
		}
		becameLow := crossedThreshold(current, updated)
		if becameLow {
			if err := s.emitLow(ctx, tx, updated, at); err != nil {
				return err
			}
		}
		result = &ConsumeResult{Item: updated, Movement: record, BecameLow: becameLow}
		return nil
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock) {
			s.logg.Warn(ctx, err.Error())
		}
		return nil, err
	}

	s.metrics.AddQuantity(string(item.FeedType), string(enums.MovementConsumption), cmd.QuantityKg.InexactFloat64())
	logCtx := s.logg.WithMovementID(ctx, result.Movement.ID.String())
	s.logg.Info(logCtx, fmt.Sprintf("consumed %s kg, balance %s kg", quantity.Format(cmd.QuantityKg), quantity.Format(result.Item.QuantityKg)))
	if result.BecameLow {
		s.logg.Warn(logCtx, "stock item at or below threshold")
	}
	return result, nil
}

func (s *service) Reverse(ctx context.Context, cmd ReverseCommand) (result *ReverseResult, err error) {
	defer func() { s.observe(ctx, "reverse", err) }()

	if cmd.MovementID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "movement id is required")
	}
	original, err := s.Movement(ctx, cmd.MovementID)
	if err != nil {
		return nil, err
	}
	if original.Type == enums.MovementAdjustment {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "adjustments cannot be reversed").
			WithDetails(map[string]string{"movement_id": original.ID.String()})
	}

	lockKey := locations.JoinStockKey(original.FeedType, original.LocationKey)
	ctx = s.logg.WithStockKey(ctx, lockKey)
	unlock, err := s.lock(ctx, "reverse", lockKey)
	if err != nil {
		return nil, err
	}
	defer unlock()

	at := s.timestamp(cmd.OccurredAt)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.FindReversal(ctx, original.ID)
		if err == nil {
			return alreadyReversed(original.ID, existing.ID)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing reversal")
		}

		current, err := s.stock.LockByID(ctx, tx, original.StockItemID)
		if err != nil {
			return err
		}
		updated, err := s.stock.ApplyDelta(ctx, tx, current, original.SignedQuantity().Neg(), at)
		if err != nil {
			return err
		}
		source := original.ID.String()
		originalID := original.ID
		movement := &models.FeedStockMovement{
			ID:                 newMovementID(),
			StockItemID:        updated.ID,
			Type:               enums.MovementAdjustment,
			Direction:          -original.Direction,
			QuantityKg:         original.QuantityKg,
			BalanceAfterKg:     updated.QuantityKg,
			OccurredAt:         at,
			Source:             &source,
			Notes:              trimmed(&cmd.Reason),
			ReversesMovementID: &originalID,
		}
		record, err := s.append(ctx, tx, updated, movement)
		if err != nil {
			if db.IsUniqueViolation(err, "") {
				return alreadyReversed(original.ID, uuid.Nil)
			}
			return err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventFeedMovementReversed,
			AggregateType: enums.AggregateFeedMovement,
			AggregateID:   record.ID,
			OccurredAt:    at,
			Data: payloads.MovementReversedEvent{
				MovementID:         record.ID,
				ReversedMovementID: original.ID,
				StockItemID:        updated.ID,
				Direction:          record.Direction,
				QuantityKg:         record.QuantityKg,
				BalanceAfterKg:     record.BalanceAfterKg,
				Reason:             cmd.Reason,
				OccurredAt:         at,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue reversal event")
		}
		if crossedThreshold(current, updated) {
			if err := s.emitLow(ctx, tx, updated, at); err != nil {
				return err
			}
		}
		result = &ReverseResult{Item: updated, Movement: record, Reversed: original}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithMovementID(ctx, result.Movement.ID.String())
	s.logg.Info(logCtx, fmt.Sprintf("reversed %s movement %s", original.Type, original.ID))
	return result, nil
}

func (s *service) Movement(ctx context.Context, id uuid.UUID) (*MovementRecord, error) {
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "movement not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load movement")
	}
	return record, nil
}

func (s *service) Movements(ctx context.Context, query MovementQuery) (*MovementPage, error) {
	filter := query.MovementFilter
	if filter.FeedType != "" && !filter.FeedType.IsValid() {
		return nil, invalidFeedType(filter.FeedType)
	}
	if filter.Type != "" && !filter.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid movement type").
			WithDetails(map[string]string{"type": string(filter.Type)})
	}
	if filter.LotID != nil && strings.TrimSpace(*filter.LotID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "lot_id must not be blank")
	}
	if filter.Since != nil && filter.Until != nil && filter.Since.After(*filter.Until) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "since must not be after until")
	}
	cursor, err := pagination.ParseCursor(query.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	records, err := s.repo.List(ctx, filter, cursor, pagination.LimitWithBuffer(query.Limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list movements")
	}
	records, next := pagination.Page(records, query.Limit, MovementRecord.Cursor)
	if records == nil {
		records = []MovementRecord{}
	}
	return &MovementPage{Movements: records, NextCursor: next}, nil
}

func (s *service) append(ctx context.Context, tx *gorm.DB, item *models.FeedStockItem, movement *models.FeedStockMovement) (*MovementRecord, error) {
	if err := s.repo.WithTx(tx).Create(ctx, movement); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append movement")
	}
	return &MovementRecord{
		FeedStockMovement: *movement,
		FeedType:          item.FeedType,
		LocationKey:       item.LocationKey,
	}, nil
}

func (s *service) emitRecorded(ctx context.Context, tx *gorm.DB, record *MovementRecord) error {
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventFeedMovementRecorded,
		AggregateType: enums.AggregateFeedMovement,
		AggregateID:   record.ID,
		OccurredAt:    record.OccurredAt,
		Data: payloads.MovementRecordedEvent{
			MovementID:     record.ID,
			StockItemID:    record.StockItemID,
			FeedType:       record.FeedType,
			LocationKey:    record.LocationKey,
			Type:           record.Type,
			Direction:      record.Direction,
			QuantityKg:     record.QuantityKg,
			BalanceAfterKg: record.BalanceAfterKg,
			Source:         record.Source,
			OccurredAt:     record.OccurredAt,
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue movement event")
	}
	return nil
}

func (s *service) emitLow(ctx context.Context, tx *gorm.DB, item *models.FeedStockItem, at time.Time) error {
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventFeedStockLow,
		AggregateType: enums.AggregateFeedStockItem,
		AggregateID:   item.ID,
		OccurredAt:    at,
		Data: payloads.StockLowEvent{
			StockItemID:   item.ID,
			FeedType:      item.FeedType,
			LocationKey:   item.LocationKey,
			QuantityKg:    item.QuantityKg,
			MinQuantityKg: item.MinQuantityKg,
			DetectedAt:    at,
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue low stock event")
	}
	return nil
}

func (s *service) lock(ctx context.Context, operation, key string) (keylock.Unlock, error) {
	started := s.now()
	unlock, err := s.locker.Lock(ctx, key)
	s.metrics.ObserveLockWait(operation, s.now().Sub(started))
	if err != nil {
		return nil, err
	}
	return unlock, nil
}

func (s *service) observe(ctx context.Context, operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(pkgerrors.As(err).Code())
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			outcome = "canceled"
		}
	}
	s.metrics.ObserveOperation(operation, outcome)

	switch {
	case err == nil:
	case pkgerrors.IsCode(err, pkgerrors.CodeDependency), pkgerrors.As(err) == nil:
		s.logg.Error(ctx, operation+" failed", err)
	case pkgerrors.IsCode(err, pkgerrors.CodeBusy):
		s.logg.Warn(ctx, operation+" rejected: "+err.Error())
	}
}

func (s *service) timestamp(at time.Time) time.Time {
	if at.IsZero() {
		at = s.now()
	}
	return at.UTC()
}

func alreadyReversed(movementID, reversalID uuid.UUID) error {
	details := map[string]string{"movement_id": movementID.String()}
	if reversalID != uuid.Nil {
		details["reversal_movement_id"] = reversalID.String()
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict, "movement already reversed").WithDetails(details)
}

func crossedThreshold(before, after *models.FeedStockItem) bool {
	return !before.IsLow() && after.IsLow()
}

func stockKeyOf(item *models.FeedStockItem) string {
	return locations.JoinStockKey(item.FeedType, item.LocationKey)
}

func newMovementID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}
