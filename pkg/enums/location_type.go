package enums

import (
	"fmt"
	"strings"
)

// LocationType identifies the level of the site hierarchy a stock item lives at.
type LocationType string

const (
	LocationGlobal   LocationType = "global"
	LocationSite     LocationType = "site"
	LocationBuilding LocationType = "building"
)

var validLocationTypes = []LocationType{
	LocationGlobal,
	LocationSite,
	LocationBuilding,
}

func (l LocationType) IsValid() bool {
	for _, candidate := range validLocationTypes {
		if candidate == l {
			return true
		}
	}
	return false
}

func ParseLocationType(value string) (LocationType, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validLocationTypes {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid location type %q", value)
}
