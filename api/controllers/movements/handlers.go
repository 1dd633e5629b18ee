package movements

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/feedledger-backend/api/controllers/dto"
	"github.com/angelmondragon/feedledger-backend/api/responses"
	"github.com/angelmondragon/feedledger-backend/api/validators"
	"github.com/angelmondragon/feedledger-backend/internal/ledger"
	"github.com/angelmondragon/feedledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/feedledger-backend/pkg/errors"
	"github.com/angelmondragon/feedledger-backend/pkg/logger"
	"github.com/angelmondragon/feedledger-backend/pkg/pagination"
)

type Ledger interface {
	Movements(ctx context.Context, query ledger.MovementQuery) (*ledger.MovementPage, error)
	Reverse(ctx context.Context, cmd ledger.ReverseCommand) (*ledger.ReverseResult, error)
}

type reverseRequest struct {
	Reason     string     `json:"reason" validate:"omitempty,max=500"`
	OccurredAt *time.Time `json:"occurred_at"`
}

type reverseResponse struct {
	Item     dto.StockItem `json:"item"`
	Movement dto.Movement  `json:"movement"`
	Reversed dto.Movement  `json:"reversed"`
}

// List returns movements newest first with cursor pagination.
func List(svc Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger unavailable"))
			return
		}
		query, err := parseQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.Movements(r.Context(), query)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.MovementPageFrom(page))
	}
}

// Reverse cancels a restock or consumption with a compensating adjustment.
func Reverse(svc Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger unavailable"))
			return
		}
		movementID, err := validators.ParsePathUUID(chi.URLParam(r, "movementId"), "movement id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body reverseRequest
		hasBody, err := hasJSONBody(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if hasBody {
			if err := validators.DecodeJSONBody(r, &body); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}
		cmd := ledger.ReverseCommand{
			MovementID: movementID,
			Reason:     validators.SanitizeString(body.Reason, 500),
		}
		if body.OccurredAt != nil {
			cmd.OccurredAt = *body.OccurredAt
		}
		result, err := svc.Reverse(r.Context(), cmd)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, reverseResponse{
			Item:     dto.StockItemFrom(*result.Item),
			Movement: dto.MovementFrom(*result.Movement),
			Reversed: dto.MovementFrom(*result.Reversed),
		})
	}
}

func parseQuery(r *http.Request) (ledger.MovementQuery, error) {
	var query ledger.MovementQuery
	values := r.URL.Query()

	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return query, err
	}
	query.Limit = limit
	query.Cursor = strings.TrimSpace(values.Get("cursor"))

	if query.Since, err = validators.ParseQueryTime(r, "since"); err != nil {
		return query, err
	}
	if query.Until, err = validators.ParseQueryTime(r, "until"); err != nil {
		return query, err
	}
	if raw := strings.TrimSpace(values.Get("feed_type")); raw != "" {
		feedType, err := enums.ParseFeedType(raw)
		if err != nil {
			return query, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid feed_type")
		}
		query.FeedType = feedType
	}
	if raw := strings.TrimSpace(values.Get("type")); raw != "" {
		movementType, err := enums.ParseMovementType(raw)
		if err != nil {
			return query, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid type")
		}
		query.Type = movementType
	}
	if query.StockItemID, err = validators.ParseQueryUUID(r, "stock_id"); err != nil {
		return query, err
	}
	if raw := validators.SanitizeString(values.Get("lot_id"), 100); raw != "" {
		query.LotID = &raw
	}
	return query, nil
}

// hasJSONBody reports whether the request carries a non-empty body and
// rewinds it for decoding.
func hasJSONBody(r *http.Request) (bool, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return false, nil
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body")
	}
	r.Body = io.NopCloser(bytes.NewReader(raw))
	return len(bytes.TrimSpace(raw)) > 0, nil
}
