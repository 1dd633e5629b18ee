// Package idempotency keeps a publish mark per outbox row in Redis.
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Store is the part of the redis client the manager uses.
type Store interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Manager marks a row before it is published and forgets the mark when the
// publish fails. A batch that rolls back after a successful publish then
// finds the mark on the next poll and skips the second delivery.
//
// Keys look like fl:idempotency:outbox:published:<publisher>:<outbox_id>.
type Manager struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// NewManager builds a guard whose marks expire after ttl. A zero ttl keeps
// marks until they are forgotten explicitly.
func NewManager(store Store, ttl time.Duration) (*Manager, error) {
	switch {
	case store == nil:
		return nil, errors.New("idempotency store is required")
	case ttl < 0:
		return nil, errors.New("ttl must be non-negative")
	}
	return &Manager{store: store, ttl: ttl, now: time.Now}, nil
}

// MarkPublishing sets the mark and reports whether it was already present.
func (m *Manager) MarkPublishing(ctx context.Context, publisher string, outboxID uuid.UUID) (bool, error) {
	key, err := m.key(publisher, outboxID)
	if err != nil {
		return false, err
	}
	created, err := m.store.SetNX(ctx, key, m.now().UTC().Format(time.RFC3339), m.ttl)
	if err != nil {
		return false, err
	}
	return !created, nil
}

func (m *Manager) Forget(ctx context.Context, publisher string, outboxID uuid.UUID) error {
	key, err := m.key(publisher, outboxID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) key(publisher string, outboxID uuid.UUID) (string, error) {
	if publisher == "" {
		return "", errors.New("publisher name is required")
	}
	if outboxID == uuid.Nil {
		return "", errors.New("outbox id is required")
	}
	return m.store.IdempotencyKey("outbox:published:"+publisher, outboxID.String()), nil
}
