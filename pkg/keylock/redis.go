package keylock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	pkgerrors "github.com/angelmondragon/feedledger-backend/pkg/errors"
)

const defaultMutexTTL = 25 * time.Hour

// Store is the subset of the Redis client used for locking.
type Store interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

type compareAndDeleter interface {
	DelIfValue(ctx context.Context, key, value string) (bool, error)
}

// Mutex is a single Redis key owned through SETNX with a TTL. The owner token
// is checked before release so an expired holder never frees a successor.
type Mutex struct {
	client Store
	key    string
	ttl    time.Duration

	mu    sync.Mutex
	owner string
}

// NewMutex constructs a Redis-backed mutex for key.
func NewMutex(client Store, key string, ttl time.Duration) (*Mutex, error) {
	if client == nil {
		return nil, errors.New("redis client required for lock")
	}
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultMutexTTL
	}
	return &Mutex{client: client, key: key, ttl: ttl}, nil
}

// Acquire tries once to own the key for the configured TTL.
func (m *Mutex) Acquire(ctx context.Context) (bool, error) {
	owner := uuid.NewString()
	ok, err := m.client.SetNX(ctx, m.key, owner, m.ttl)
	if err != nil {
		return false, fmt.Errorf("setnx: %w", err)
	}
	if ok {
		m.mu.Lock()
		m.owner = owner
		m.mu.Unlock()
	}
	return ok, nil
}

// Release frees the key only if the owner value still matches. Stores that
// can compare-and-delete do so atomically.
func (m *Mutex) Release(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owner == "" {
		return nil
	}
	owner := m.owner
	m.owner = ""
	if cad, ok := m.client.(compareAndDeleter); ok {
		if _, err := cad.DelIfValue(ctx, m.key, owner); err != nil {
			m.owner = owner
			return fmt.Errorf("delete lock: %w", err)
		}
		return nil
	}
	value, err := m.client.Get(ctx, m.key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		m.owner = owner
		return fmt.Errorf("read lock owner: %w", err)
	}
	if value != owner {
		return nil
	}
	if err := m.client.Del(ctx, m.key); err != nil {
		m.owner = owner
		return fmt.Errorf("delete lock: %w", err)
	}
	return nil
}

// Redis is a Locker shared by every API replica. It polls a Mutex with
// exponential backoff until the wait budget is spent.
type Redis struct {
	client  Store
	keyFunc func(string) string
	ttl     time.Duration
	wait    time.Duration
	onError func(ctx context.Context, key string, err error)
}

// RedisParams configure a Redis locker.
type RedisParams struct {
	Client Store
	// KeyFunc maps a logical key to its namespaced Redis key.
	KeyFunc func(string) string
	TTL     time.Duration
	Wait    time.Duration
	// OnReleaseError is notified when an unlock cannot reach Redis; the key
	// then expires after TTL.
	OnReleaseError func(ctx context.Context, key string, err error)
}

func NewRedis(params RedisParams) (*Redis, error) {
	if params.Client == nil {
		return nil, errors.New("redis client required for locker")
	}
	keyFunc := params.KeyFunc
	if keyFunc == nil {
		keyFunc = func(key string) string { return key }
	}
	wait := params.Wait
	if wait <= 0 {
		wait = defaultWait
	}
	ttl := params.TTL
	if ttl < wait {
		ttl = wait * 5
	}
	return &Redis{
		client:  params.Client,
		keyFunc: keyFunc,
		ttl:     ttl,
		wait:    wait,
		onError: params.OnReleaseError,
	}, nil
}

func (r *Redis) Lock(ctx context.Context, key string) (Unlock, error) {
	mutex, err := NewMutex(r.client, r.keyFunc(key), r.ttl)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(r.wait)
	interval := time.Duration(0)
	for {
		ok, err := mutex.Acquire(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire stock lock")
		}
		if ok {
			break
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, busy(key, r.wait)
		}
		interval = nextPoll(interval)
		if interval > remaining {
			interval = remaining
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// the caller's ctx may already be canceled after commit
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
			defer cancel()
			if err := mutex.Release(releaseCtx); err != nil && r.onError != nil {
				r.onError(ctx, key, err)
			}
		})
	}, nil
}
