// Package keylock serialises work per key with a bounded wait.
//
// Stock mutations take the lock for their (feed type, location) key before
// opening a database transaction, so two requests for the same item never
// interleave while requests for different items proceed in parallel.
package keylock

import (
	"context"
	"math/rand"
	"time"

	pkgerrors "github.com/angelmondragon/feedledger-backend/pkg/errors"
)

// Unlock releases a held key. It is safe to call more than once.
type Unlock func()

// Locker grants exclusive ownership of a key.
type Locker interface {
	// Lock blocks until key is owned, the wait budget elapses (CodeBusy) or
	// ctx is done (ctx.Err()).
	Lock(ctx context.Context, key string) (Unlock, error)
}

const (
	defaultWait       = 3 * time.Second
	minPollInterval   = 5 * time.Millisecond
	maxPollInterval   = 200 * time.Millisecond
	pollJitterPercent = 20
)

func busy(key string, waited time.Duration) error {
	return pkgerrors.New(pkgerrors.CodeBusy, "lock wait exceeded").
		WithDetails(map[string]any{"key": key, "waited_ms": waited.Milliseconds()})
}

// nextPoll doubles the interval up to maxPollInterval and adds jitter.
func nextPoll(current time.Duration) time.Duration {
	next := current * 2
	if next < minPollInterval {
		next = minPollInterval
	}
	if next > maxPollInterval {
		next = maxPollInterval
	}
	jitter := time.Duration(rand.Int63n(int64(next)*pollJitterPercent/100 + 1))
	return next + jitter
}
