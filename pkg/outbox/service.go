package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/feedledger-backend/pkg/db/models"
	"github.com/angelmondragon/feedledger-backend/pkg/enums"
	"github.com/angelmondragon/feedledger-backend/pkg/logger"
)

const envelopeVersion = 1

// DomainEvent is queued in the same transaction as the change it describes.
// AggregateType may be left empty; it is derived from EventType.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Origin        *Origin
	Data          any
	Version       int
	OccurredAt    time.Time
}

// Service writes domain events to outbox_events. Rows are delivered later by
// the outbox publisher.
type Service struct {
	repo *Repository
	logg *logger.Logger
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg}
}

// Emit validates event, wraps it in a PayloadEnvelope and inserts it using
// tx. Callers pass the transaction of the stock mutation so the event
// commits or rolls back with it.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.normalize(ctx, &event); err != nil {
		return err
	}

	envelope, payload, err := encodeEnvelope(event)
	if err != nil {
		return err
	}
	row := models.OutboxEvent{
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       payload,
	}
	if err := s.repo.Insert(tx.WithContext(ctx), row); err != nil {
		return fmt.Errorf("insert outbox row: %w", err)
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"event_id":       envelope.EventID,
			"event_type":     event.EventType,
			"aggregate_id":   event.AggregateID.String(),
			"aggregate_type": event.AggregateType,
		}), "outbox event queued")
	}
	return nil
}

func (s *Service) normalize(ctx context.Context, event *DomainEvent) error {
	if !event.EventType.IsValid() {
		return fmt.Errorf("invalid outbox event type %q", event.EventType)
	}
	expected := event.EventType.AggregateType()
	if event.AggregateType == "" {
		event.AggregateType = expected
	}
	if event.AggregateType != expected {
		return fmt.Errorf("event %s belongs to aggregate %s, got %s", event.EventType, expected, event.AggregateType)
	}
	if event.AggregateID == uuid.Nil {
		return fmt.Errorf("event %s requires an aggregate id", event.EventType)
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	event.OccurredAt = event.OccurredAt.UTC()
	if event.Version <= 0 {
		event.Version = envelopeVersion
	}
	if event.Origin == nil {
		origin := &Origin{Service: s.logg.ServiceName(), RequestID: logger.RequestIDFromContext(ctx)}
		if origin.Service != "" || origin.RequestID != "" {
			event.Origin = origin
		}
	}
	return nil
}
