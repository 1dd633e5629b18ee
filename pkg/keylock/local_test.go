package keylock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/feedledger-backend/pkg/errors"
)

func TestLocalSerialisesSameKey(t *testing.T) {
	locker := NewLocal(2 * time.Second)
	var inside int32
	var maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(context.Background(), "starter|global")
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), maxInside)
	require.Equal(t, 0, locker.held())
}

func TestLocalDistinctKeysDoNotBlock(t *testing.T) {
	locker := NewLocal(50 * time.Millisecond)
	unlockA, err := locker.Lock(context.Background(), "starter|global")
	require.NoError(t, err)
	defer unlockA()

	unlockB, err := locker.Lock(context.Background(), "grower|global")
	require.NoError(t, err)
	unlockB()
}

func TestLocalTimesOutWithBusy(t *testing.T) {
	locker := NewLocal(20 * time.Millisecond)
	unlock, err := locker.Lock(context.Background(), "layer|site:s1")
	require.NoError(t, err)

	_, err = locker.Lock(context.Background(), "layer|site:s1")
	require.Error(t, err)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeBusy))

	unlock()
	unlock()

	again, err := locker.Lock(context.Background(), "layer|site:s1")
	require.NoError(t, err)
	again()
	require.Equal(t, 0, locker.held())
}

func TestLocalHonoursContextCancellation(t *testing.T) {
	locker := NewLocal(time.Second)
	unlock, err := locker.Lock(context.Background(), "finisher|global")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = locker.Lock(ctx, "finisher|global")
	require.ErrorIs(t, err, context.Canceled)
}

func TestNextPollIsBounded(t *testing.T) {
	interval := time.Duration(0)
	for i := 0; i < 20; i++ {
		interval = nextPoll(interval)
		require.GreaterOrEqual(t, interval, minPollInterval)
		require.LessOrEqual(t, interval, maxPollInterval+maxPollInterval*pollJitterPercent/100)
	}
}
