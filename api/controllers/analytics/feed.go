package analytics

import (
	"encoding/json"
	"net/http"

	"github.com/angelmondragon/feedledger-backend/api/controllers/dto"
	"github.com/angelmondragon/feedledger-backend/api/responses"
	internalanalytics "github.com/angelmondragon/feedledger-backend/internal/analytics"
	pkgerrors "github.com/angelmondragon/feedledger-backend/pkg/errors"
	"github.com/angelmondragon/feedledger-backend/pkg/logger"
)

type totalsResponse struct {
	TotalQuantityKg json.Number         `json:"total_quantity_kg"`
	ByFeedType      []dto.FeedTypeTotal `json:"by_feed_type"`
}

// Stats returns the stock summary with consumption over window_days.
func Stats(service internalanalytics.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if service == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "analytics unavailable"))
			return
		}
		window, err := parseWindow(r, "window_days")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		stats, err := service.Stats(ctx, window)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.StatsFrom(stats))
	}
}

// Totals returns on-hand quantity for the location filter, split by feed type.
func Totals(service internalanalytics.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if service == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "analytics unavailable"))
			return
		}
		filter, err := parseLocationFilter(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		total, err := service.TotalStock(ctx, filter)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		byFeed, err := service.ByFeedType(ctx, filter)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		resp := totalsResponse{TotalQuantityKg: dto.Kg(total), ByFeedType: make([]dto.FeedTypeTotal, 0, len(byFeed))}
		for _, row := range byFeed {
			resp.ByFeedType = append(resp.ByFeedType, dto.FeedTypeTotal{
				FeedType:   row.FeedType,
				QuantityKg: dto.Kg(row.QuantityKg),
				Value:      dto.Kg(row.Value),
				Items:      row.Items,
				LowItems:   row.LowItems,
			})
		}
		responses.WriteSuccess(w, resp)
	}
}

// ConsumptionTrend returns daily consumption for the last `days` days.
func ConsumptionTrend(service internalanalytics.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if service == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "analytics unavailable"))
			return
		}
		days, err := parseWindow(r, "days")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		trend, err := service.ConsumptionTrend(ctx, days)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.TrendFrom(trend))
	}
}
