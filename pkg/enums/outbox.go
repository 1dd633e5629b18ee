package enums

import (
	"fmt"
	"slices"
)

// OutboxAggregateType maps to aggregate_type_enum in Postgres.
type OutboxAggregateType string

const (
	AggregateFeedStockItem OutboxAggregateType = "feed_stock_item"
	AggregateFeedMovement  OutboxAggregateType = "feed_movement"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateFeedStockItem,
	AggregateFeedMovement,
}

func (a OutboxAggregateType) IsValid() bool {
	return slices.Contains(validAggregateTypes, a)
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	if a := OutboxAggregateType(value); a.IsValid() {
		return a, nil
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to event_type_enum in Postgres.
type OutboxEventType string

const (
	EventFeedMovementRecorded OutboxEventType = "feed_movement_recorded"
	EventFeedMovementReversed OutboxEventType = "feed_movement_reversed"
	EventFeedStockLow         OutboxEventType = "feed_stock_low"
	EventFeedAutonomyLow      OutboxEventType = "feed_autonomy_low"
)

var validOutboxEventTypes = []OutboxEventType{
	EventFeedMovementRecorded,
	EventFeedMovementReversed,
	EventFeedStockLow,
	EventFeedAutonomyLow,
}

// AllOutboxEventTypes returns every event type the ledger emits.
func AllOutboxEventTypes() []OutboxEventType {
	return slices.Clone(validOutboxEventTypes)
}

func (e OutboxEventType) IsValid() bool {
	return slices.Contains(validOutboxEventTypes, e)
}

// IsAlert reports whether the event is a threshold alert rather than a
// ledger fact. Alerts are routed to their own topic.
func (e OutboxEventType) IsAlert() bool {
	return e == EventFeedStockLow || e == EventFeedAutonomyLow
}

// AggregateType returns the aggregate an event of this type is keyed by.
func (e OutboxEventType) AggregateType() OutboxAggregateType {
	switch e {
	case EventFeedMovementRecorded, EventFeedMovementReversed:
		return AggregateFeedMovement
	case EventFeedStockLow, EventFeedAutonomyLow:
		return AggregateFeedStockItem
	default:
		return ""
	}
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	if e := OutboxEventType(value); e.IsValid() {
		return e, nil
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

// OutboxDLQErrorReason maps to outbox_dlq_error_reason_enum.
type OutboxDLQErrorReason string

const (
	// OutboxDLQReasonMaxAttempts marks rows that kept failing until the
	// publisher gave up.
	OutboxDLQReasonMaxAttempts OutboxDLQErrorReason = "max_attempts"
	// OutboxDLQReasonNonRetryable marks rows that can never be delivered,
	// such as undecodable payloads.
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	return r == OutboxDLQReasonMaxAttempts || r == OutboxDLQReasonNonRetryable
}
