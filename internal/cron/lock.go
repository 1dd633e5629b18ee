package cron

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/angelmondragon/feedledger-backend/pkg/keylock"
)

const defaultLockTTL = 10 * time.Minute

// Lock keeps two cycles from running at the same time.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// NewRedisLock returns a lock shared by every cron-worker replica. The TTL
// should outlive the slowest cycle.
func NewRedisLock(client keylock.Store, key string, ttl time.Duration) (Lock, error) {
	switch {
	case client == nil:
		return nil, errors.New("redis client required for lock")
	case key == "":
		return nil, errors.New("lock key is required")
	case ttl <= 0:
		ttl = defaultLockTTL
	}
	return keylock.NewMutex(client, key, ttl)
}

// ProcessLock only excludes overlapping cycles inside one process, for
// single-replica deployments. Releasing an unheld lock is a no-op.
type ProcessLock struct {
	held atomic.Bool
}

func (l *ProcessLock) Acquire(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return l.held.CompareAndSwap(false, true), nil
}

func (l *ProcessLock) Release(context.Context) error {
	l.held.Store(false)
	return nil
}
