package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/google/uuid"

	"github.com/angelmondragon/feedledger-backend/pkg/config"
	"github.com/angelmondragon/feedledger-backend/pkg/db/models"
	"github.com/angelmondragon/feedledger-backend/pkg/enums"
	"github.com/angelmondragon/feedledger-backend/pkg/outbox"
	"github.com/angelmondragon/feedledger-backend/pkg/outbox/payloads"
)

// EventDescriptor routes one event type: the aggregate it must belong to,
// the topic it is published on and how to decode its data block.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	newPayload    func() any
}

// ResolvedEvent is an outbox row that passed validation, with its envelope
// and typed payload decoded.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// EventRegistry knows every event type the ledger emits.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

var payloadTypes = map[enums.OutboxEventType]func() any{
	enums.EventFeedMovementRecorded: func() any { return &payloads.MovementRecordedEvent{} },
	enums.EventFeedMovementReversed: func() any { return &payloads.MovementReversedEvent{} },
	enums.EventFeedStockLow:         func() any { return &payloads.StockLowEvent{} },
	enums.EventFeedAutonomyLow:      func() any { return &payloads.AutonomyLowEvent{} },
}

// NewEventRegistry routes movement events to the ledger topic and threshold
// alerts to the alerts topic. Alerts share the ledger topic when no alerts
// topic is configured.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.LedgerTopic == "" {
		return nil, errors.New("ledger topic is required")
	}
	alerts := cfg.AlertsTopic
	if alerts == "" {
		alerts = cfg.LedgerTopic
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(payloadTypes))}
	for _, eventType := range enums.AllOutboxEventTypes() {
		newPayload, ok := payloadTypes[eventType]
		if !ok {
			return nil, fmt.Errorf("no payload decoder for %s", eventType)
		}
		topic := cfg.LedgerTopic
		if eventType.IsAlert() {
			topic = alerts
		}
		reg.entries[eventType] = EventDescriptor{
			EventType:     eventType,
			AggregateType: eventType.AggregateType(),
			Topic:         topic,
			newPayload:    newPayload,
		}
	}
	return reg, nil
}

// Topics lists the distinct topics, sorted.
func (r *EventRegistry) Topics() []string {
	set := make(map[string]struct{}, 2)
	for _, desc := range r.entries {
		set[desc.Topic] = struct{}{}
	}
	return slices.Sorted(maps.Keys(set))
}

// Resolve checks the row against its descriptor and decodes the payload.
// Every failure is non-retryable: a stored row does not change between
// attempts.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	resolved, err := r.resolve(event)
	if err != nil {
		return nil, NewNonRetryableError(err)
	}
	return resolved, nil
}

func (r *EventRegistry) resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return nil, fmt.Errorf("unsupported event type %s", event.EventType)
	case desc.AggregateType != event.AggregateType:
		return nil, fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return nil, errors.New("missing aggregate_id")
	}

	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", event.EventType, err)
	}
	payload := desc.newPayload()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", event.EventType, err)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
