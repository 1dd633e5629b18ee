package stock

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/feedledger-backend/api/controllers/dto"
	"github.com/angelmondragon/feedledger-backend/api/responses"
	"github.com/angelmondragon/feedledger-backend/api/validators"
	"github.com/angelmondragon/feedledger-backend/internal/ledger"
	internalstock "github.com/angelmondragon/feedledger-backend/internal/stock"
	"github.com/angelmondragon/feedledger-backend/pkg/db/models"
	"github.com/angelmondragon/feedledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/feedledger-backend/pkg/errors"
	"github.com/angelmondragon/feedledger-backend/pkg/logger"
	"github.com/angelmondragon/feedledger-backend/pkg/quantity"
)

// Reader is the read and threshold surface of the stock store.
type Reader interface {
	List(ctx context.Context, filter internalstock.Filter) ([]models.FeedStockItem, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.FeedStockItem, error)
	SetThreshold(ctx context.Context, id uuid.UUID, threshold decimal.Decimal) (*models.FeedStockItem, error)
}

// Mutator records stock movements.
type Mutator interface {
	Restock(ctx context.Context, cmd ledger.RestockCommand) (*ledger.RestockResult, error)
	Consume(ctx context.Context, cmd ledger.ConsumeCommand) (*ledger.ConsumeResult, error)
}

type restockResponse struct {
	Item     dto.StockItem `json:"item"`
	Movement dto.Movement  `json:"movement"`
	Created  bool          `json:"created"`
}

type consumeResponse struct {
	Item      dto.StockItem `json:"item"`
	Movement  dto.Movement  `json:"movement"`
	BecameLow bool          `json:"became_low"`
}

// List returns stock items filtered by location and feed type.
func List(reader Reader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if reader == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stock store unavailable"))
			return
		}
		filter, err := parseFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items, err := reader.List(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.StockItemsFrom(items))
	}
}

func Detail(reader Reader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if reader == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stock store unavailable"))
			return
		}
		id, err := validators.ParsePathUUID(chi.URLParam(r, "stockId"), "stock id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		item, err := reader.GetByID(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.StockItemFrom(*item))
	}
}

// UpdateThreshold changes the low-stock alert threshold of one item.
func UpdateThreshold(reader Reader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if reader == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stock store unavailable"))
			return
		}
		id, err := validators.ParsePathUUID(chi.URLParam(r, "stockId"), "stock id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body thresholdRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		item, err := reader.SetThreshold(r.Context(), id, quantity.Parse(body.MinQuantityKg))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.StockItemFrom(*item))
	}
}

func Restock(mutator Mutator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if mutator == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger unavailable"))
			return
		}
		var body restockRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := mutator.Restock(r.Context(), body.command())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, restockResponse{
			Item:     dto.StockItemFrom(*result.Item),
			Movement: dto.MovementFrom(*result.Movement),
			Created:  result.Created,
		})
	}
}

func Consume(mutator Mutator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if mutator == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger unavailable"))
			return
		}
		var body consumeRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := mutator.Consume(r.Context(), body.command())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, consumeResponse{
			Item:      dto.StockItemFrom(*result.Item),
			Movement:  dto.MovementFrom(*result.Movement),
			BecameLow: result.BecameLow,
		})
	}
}

func parseFilter(r *http.Request) (internalstock.Filter, error) {
	var filter internalstock.Filter
	query := r.URL.Query()

	if raw := strings.TrimSpace(query.Get("feed_type")); raw != "" {
		feedType, err := enums.ParseFeedType(raw)
		if err != nil {
			return filter, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid feed_type")
		}
		filter.FeedType = &feedType
	}
	if raw := strings.TrimSpace(query.Get("location_type")); raw != "" {
		locType, err := enums.ParseLocationType(raw)
		if err != nil {
			return filter, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid location_type")
		}
		filter.LocationType = &locType
	}
	siteID, err := validators.ParseQueryUUID(r, "site_id")
	if err != nil {
		return filter, err
	}
	filter.SiteID = siteID
	buildingID, err := validators.ParseQueryUUID(r, "building_id")
	if err != nil {
		return filter, err
	}
	filter.BuildingID = buildingID
	return filter, nil
}
