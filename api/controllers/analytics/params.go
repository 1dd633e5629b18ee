package analytics

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/feedledger-backend/api/validators"
	internalanalytics "github.com/angelmondragon/feedledger-backend/internal/analytics"
	"github.com/angelmondragon/feedledger-backend/internal/stock"
	"github.com/angelmondragon/feedledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/feedledger-backend/pkg/errors"
)

// parseWindow reads a day count. Zero means the service default.
func parseWindow(r *http.Request, key string) (int, error) {
	return validators.ParseQueryInt(r, key, 0, 1, internalanalytics.MaxWindowDays)
}

func parseLocationFilter(r *http.Request) (stock.Filter, error) {
	var filter stock.Filter
	if raw := strings.TrimSpace(r.URL.Query().Get("location_type")); raw != "" {
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
