package reconcile

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/feedledger-backend/api/controllers/dto"
	"github.com/angelmondragon/feedledger-backend/api/responses"
	"github.com/angelmondragon/feedledger-backend/api/validators"
	internalreconcile "github.com/angelmondragon/feedledger-backend/internal/reconcile"
	"github.com/angelmondragon/feedledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/feedledger-backend/pkg/errors"
	"github.com/angelmondragon/feedledger-backend/pkg/logger"
	"github.com/angelmondragon/feedledger-backend/pkg/quantity"
)

type Reconciler interface {
	Reconcile(ctx context.Context, entry internalreconcile.DailyEntry) (*internalreconcile.Result, error)
}

type dailyEntryRequest struct {
	LotID           string     `json:"lot_id" validate:"max=100"`
	Date            string     `json:"date"`
	FeedQuantityKg  any        `json:"feed_quantity_kg"`
	FeedType        string     `json:"feed_type" validate:"omitempty,feed_type"`
	DeductFromStock bool       `json:"deduct_from_stock"`
	FeedStockID     *uuid.UUID `json:"feed_stock_id"`
	Notes           *string    `json:"notes" validate:"omitempty,max=1000"`
}

type reconcileResponse struct {
	Outcome  internalreconcile.Outcome `json:"outcome"`
	Item     *dto.StockItem            `json:"item,omitempty"`
	Movement *dto.Movement             `json:"movement,omitempty"`
}

// Reconcile deducts the feed recorded on a daily lot entry from stock when
// the entry asks for it.
func Reconcile(svc Reconciler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconciler unavailable"))
			return
		}
		var body dailyEntryRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		entry, err := body.entry()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Reconcile(r.Context(), entry)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := reconcileResponse{Outcome: result.Outcome}
		if result.Item != nil {
			item := dto.StockItemFrom(*result.Item)
			resp.Item = &item
		}
		if result.Movement != nil {
			movement := dto.MovementFrom(*result.Movement)
			resp.Movement = &movement
		}
		status := http.StatusOK
		if result.Outcome == internalreconcile.OutcomeConsumed {
			status = http.StatusCreated
		}
		responses.WriteSuccessStatus(w, status, resp)
	}
}

func (b dailyEntryRequest) entry() (internalreconcile.DailyEntry, error) {
	entry := internalreconcile.DailyEntry{
		LotID:           b.LotID,
		FeedQuantityKg:  quantity.Parse(b.FeedQuantityKg),
		DeductFromStock: b.DeductFromStock,
		FeedStockID:     b.FeedStockID,
		Notes:           validators.SanitizeOptional(b.Notes, 1000),
	}
	if b.FeedType != "" {
		feedType, err := enums.ParseFeedType(b.FeedType)
		if err != nil {
			return entry, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid feed_type")
		}
		entry.FeedType = feedType
	}
	date, err := parseDate(b.Date)
	if err != nil {
		return entry, err
	}
	entry.Date = date
	return entry, nil
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if day, err := time.Parse("2006-01-02", raw); err == nil {
		return day, nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "date must be YYYY-MM-DD or an RFC3339 timestamp").
			WithDetails(map[string]string{"field": "date"})
	}
	return ts, nil
}
