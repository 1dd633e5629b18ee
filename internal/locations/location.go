package locations

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/feedledger-backend/pkg/enums"
)

// Ref is an unresolved location as supplied by a caller.
type Ref struct {
	Type       enums.LocationType `json:"location_type"`
	SiteID     *uuid.UUID         `json:"site_id,omitempty"`
	BuildingID *uuid.UUID         `json:"building_id,omitempty"`
}

// Location is a validated position in the global > site > building hierarchy.
// For buildings both ids are set and the site id is the building's real site.
type Location struct {
	Type       enums.LocationType `json:"location_type"`
	SiteID     *uuid.UUID         `json:"site_id,omitempty"`
	BuildingID *uuid.UUID         `json:"building_id,omitempty"`
}

func Global() Location {
	return Location{Type: enums.LocationGlobal}
}

// Key is the canonical string form used for uniqueness and lock keys.
func (l Location) Key() string {
	switch l.Type {
	case enums.LocationSite:
		if l.SiteID != nil {
			return "site:" + l.SiteID.String()
		}
	case enums.LocationBuilding:
		if l.BuildingID != nil {
			return "building:" + l.BuildingID.String()
		}
	}
	return string(enums.LocationGlobal)
}

// StockKey joins a feed type with a location key.
func StockKey(feedType enums.FeedType, loc Location) string {
	return JoinStockKey(feedType, loc.Key())
}

// JoinStockKey builds the stock key from an already persisted location key.
func JoinStockKey(feedType enums.FeedType, locationKey string) string {
	return string(feedType) + "|" + locationKey
}
