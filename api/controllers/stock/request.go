package stock

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/feedledger-backend/api/validators"
	"github.com/angelmondragon/feedledger-backend/internal/ledger"
	"github.com/angelmondragon/feedledger-backend/internal/locations"
	"github.com/angelmondragon/feedledger-backend/pkg/enums"
	"github.com/angelmondragon/feedledger-backend/pkg/quantity"
)

// Quantities are accepted as JSON numbers or strings ("12,5" and "12.5" both work).

type locationRequest struct {
	LocationType string     `json:"location_type"`
	SiteID       *uuid.UUID `json:"site_id"`
	BuildingID   *uuid.UUID `json:"building_id"`
}

func (l locationRequest) ref() locations.Ref {
	locType, err := enums.ParseLocationType(l.LocationType)
	if err != nil {
		// the resolver reports unknown types as INVALID_LOCATION
		locType = enums.LocationType(strings.TrimSpace(l.LocationType))
	}
	return locations.Ref{Type: locType, SiteID: l.SiteID, BuildingID: l.BuildingID}
}

type restockRequest struct {
	locationRequest
	FeedType      string     `json:"feed_type" validate:"required,feed_type"`
	QuantityKg    any        `json:"quantity_kg" validate:"required"`
	SupplierName  *string    `json:"supplier_name" validate:"omitempty,max=200"`
	Brand         *string    `json:"brand" validate:"omitempty,max=200"`
	InvoiceNumber *string    `json:"invoice_number" validate:"omitempty,max=100"`
	UnitPrice     any        `json:"unit_price"`
	Notes         *string    `json:"notes" validate:"omitempty,max=1000"`
	OccurredAt    *time.Time `json:"occurred_at"`
}

func (r restockRequest) command() ledger.RestockCommand {
	feedType, _ := enums.ParseFeedType(r.FeedType)
	cmd := ledger.RestockCommand{
		FeedType:      feedType,
		Location:      r.ref(),
		QuantityKg:    quantity.Parse(r.QuantityKg),
		SupplierName:  validators.SanitizeOptional(r.SupplierName, 200),
		Brand:         validators.SanitizeOptional(r.Brand, 200),
		InvoiceNumber: validators.SanitizeOptional(r.InvoiceNumber, 100),
		Notes:         validators.SanitizeOptional(r.Notes, 1000),
		OccurredAt:    timeOrZero(r.OccurredAt),
	}
	if r.UnitPrice != nil {
		cmd.UnitPrice = decimal.NewNullDecimal(quantity.Parse(r.UnitPrice))
	}
	return cmd
}

type consumeRequest struct {
	locationRequest
	FeedType   string     `json:"feed_type" validate:"required,feed_type"`
	QuantityKg any        `json:"quantity_kg" validate:"required"`
	LotID      string     `json:"lot_id" validate:"required,max=100"`
	Notes      *string    `json:"notes" validate:"omitempty,max=1000"`
	OccurredAt *time.Time `json:"occurred_at"`
}

func (r consumeRequest) command() ledger.ConsumeCommand {
	feedType, _ := enums.ParseFeedType(r.FeedType)
	return ledger.ConsumeCommand{
		FeedType:   feedType,
		Location:   r.ref(),
		QuantityKg: quantity.Parse(r.QuantityKg),
		LotID:      validators.SanitizeString(r.LotID, 100),
		Notes:      validators.SanitizeOptional(r.Notes, 1000),
		OccurredAt: timeOrZero(r.OccurredAt),
	}
}

type thresholdRequest struct {
	MinQuantityKg any `json:"min_quantity_kg" validate:"required"`
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
