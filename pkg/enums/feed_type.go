package enums

import (
	"fmt"
	"strings"
)

// FeedType maps to the feed_type_enum enum in Postgres.
type FeedType string

const (
	FeedTypeStarter  FeedType = "starter"
	FeedTypeGrower   FeedType = "grower"
	FeedTypeFinisher FeedType = "finisher"
	FeedTypePreLayer FeedType = "pre_layer"
	FeedTypeLayer    FeedType = "layer"
	FeedTypeBreeder  FeedType = "breeder"
)

var validFeedTypes = []FeedType{
	FeedTypeStarter,
	FeedTypeGrower,
	FeedTypeFinisher,
	FeedTypePreLayer,
	FeedTypeLayer,
	FeedTypeBreeder,
}

// AllFeedTypes returns the canonical feed types in display order.
func AllFeedTypes() []FeedType {
	out := make([]FeedType, len(validFeedTypes))
	copy(out, validFeedTypes)
	return out
}

// IsValid reports whether the value matches the canonical feed type enum.
func (f FeedType) IsValid() bool {
	for _, candidate := range validFeedTypes {
		if candidate == f {
			return true
		}
	}
	return false
}

// AgeRange describes when the feed is given to a flock.
func (f FeedType) AgeRange() string {
	switch f {
	case FeedTypeStarter:
		return "J1-J14"
	case FeedTypeGrower:
		return "J15-J28"
	case FeedTypeFinisher:
		return "J29+"
	case FeedTypePreLayer:
		return "16-20 weeks"
	case FeedTypeLayer, FeedTypeBreeder:
		return "in production"
	default:
		return ""
	}
}

// ParseFeedType converts raw input into FeedType. Hyphenated spellings such as
// "pre-layer" are accepted.
func ParseFeedType(value string) (FeedType, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(value)), "-", "_")
	for _, candidate := range validFeedTypes {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid feed type %q", value)
}
