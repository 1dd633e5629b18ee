package ledger

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/feedledger-backend/internal/locations"
	"github.com/angelmondragon/feedledger-backend/pkg/db/models"
	"github.com/angelmondragon/feedledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/feedledger-backend/pkg/errors"
	"github.com/angelmondragon/feedledger-backend/pkg/quantity"
)

// RestockCommand adds feed to the stock item identified by feed type and location.
type RestockCommand struct {
	FeedType      enums.FeedType
	Location      locations.Ref
	QuantityKg    decimal.Decimal
	SupplierName  *string
	Brand         *string
	InvoiceNumber *string
	UnitPrice     decimal.NullDecimal
	Notes         *string
	OccurredAt    time.Time
}

// ConsumeCommand removes feed eaten by a lot from an existing stock item.
type ConsumeCommand struct {
	FeedType   enums.FeedType
	Location   locations.Ref
	QuantityKg decimal.Decimal
	LotID      string
	Notes      *string
	OccurredAt time.Time
}

// ConsumeItemCommand is ConsumeCommand addressed by stock item id.
type ConsumeItemCommand struct {
	StockItemID uuid.UUID
	QuantityKg  decimal.Decimal
	LotID       string
	Notes       *string
	OccurredAt  time.Time
}

// ReverseCommand cancels a restock or consumption with a compensating adjustment.
type ReverseCommand struct {
	MovementID uuid.UUID
	Reason     string
	OccurredAt time.Time
}

type RestockResult struct {
	Item     *models.FeedStockItem
	Movement *MovementRecord
	Created  bool
}

type ConsumeResult struct {
	Item      *models.FeedStockItem
	Movement  *MovementRecord
	BecameLow bool
}

type ReverseResult struct {
	Item     *models.FeedStockItem
	Movement *MovementRecord
	Reversed *MovementRecord
}

// MovementQuery drives the paginated movement listing.
type MovementQuery struct {
	MovementFilter
	Limit  int
	Cursor string
}

type MovementPage struct {
	Movements  []MovementRecord
	NextCursor string
}

func (c *RestockCommand) normalize() error {
	if !c.FeedType.IsValid() {
		return invalidFeedType(c.FeedType)
	}
	qty, err := positiveQuantity(c.QuantityKg)
	if err != nil {
		return err
	}
	c.QuantityKg = qty
	if c.UnitPrice.Valid {
		if c.UnitPrice.Decimal.IsNegative() {
			return pkgerrors.New(pkgerrors.CodeValidation, "unit_price must not be negative")
		}
		c.UnitPrice.Decimal = quantity.Round(c.UnitPrice.Decimal, 4)
		if c.UnitPrice.Decimal.GreaterThan(quantity.MaxUnitPrice) {
			return pkgerrors.New(pkgerrors.CodeValidation, "unit_price exceeds the maximum")
		}
		if quantity.Multiply(c.QuantityKg, c.UnitPrice.Decimal).GreaterThan(quantity.MaxAmount) {
			return pkgerrors.New(pkgerrors.CodeValidation, "total amount exceeds the maximum")
		}
	}
	c.SupplierName = trimmed(c.SupplierName)
	c.Brand = trimmed(c.Brand)
	c.InvoiceNumber = trimmed(c.InvoiceNumber)
	c.Notes = trimmed(c.Notes)
	return nil
}

func (c *ConsumeCommand) normalize() error {
	if !c.FeedType.IsValid() {
		return invalidFeedType(c.FeedType)
	}
	qty, err := positiveQuantity(c.QuantityKg)
	if err != nil {
		return err
	}
	c.QuantityKg = qty
	c.LotID = strings.TrimSpace(c.LotID)
	if c.LotID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "lot_id is required for consumption")
	}
	c.Notes = trimmed(c.Notes)
	return nil
}

func (c *ConsumeItemCommand) normalize() error {
	if c.StockItemID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeMissingStockReference, "stock item id is required")
	}
	qty, err := positiveQuantity(c.QuantityKg)
	if err != nil {
		return err
	}
	c.QuantityKg = qty
	c.LotID = strings.TrimSpace(c.LotID)
	if c.LotID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "lot_id is required for consumption")
	}
	c.Notes = trimmed(c.Notes)
	return nil
}

// positiveQuantity rounds to the storage scale first so 0.001 kg is rejected
// rather than stored as zero.
func positiveQuantity(v decimal.Decimal) (decimal.Decimal, error) {
	rounded := quantity.Kg(v)
	if !quantity.IsPositive(rounded) {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeInvalidQuantity, "quantity_kg must be greater than zero").
			WithDetails(map[string]string{"quantity_kg": v.String()})
	}
	if rounded.GreaterThan(quantity.MaxKg) {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeInvalidQuantity, "quantity_kg exceeds the maximum").
			WithDetails(map[string]string{"quantity_kg": v.String(), "max_kg": quantity.Format(quantity.MaxKg)})
	}
	return rounded, nil
}

func invalidFeedType(ft enums.FeedType) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "invalid feed type").
		WithDetails(map[string]string{"feed_type": string(ft)})
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return nil
	}
	return &s
}
