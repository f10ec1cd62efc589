package auction

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestLocalLocker(t *testing.T) {
	defer goleak.VerifyNone(t)

	t.Run("serializes the same auction", func(t *testing.T) {
		locker := NewLocalLocker()
		id := uuid.New()
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			inside  int
			maxSeen int
		)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock, err := locker.Lock(context.Background(), id)
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				inside++
				maxSeen = max(maxSeen, inside)
				mu.Unlock()
				time.Sleep(time.Millisecond)
				mu.Lock()
				inside--
				mu.Unlock()
				unlock()
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, maxSeen)
		assert.Equal(t, 0, locker.Len())
	})

	t.Run("different auctions do not block", func(t *testing.T) {
		locker := NewLocalLocker()
		unlockA, err := locker.Lock(context.Background(), uuid.New())
		require.NoError(t, err)
		defer unlockA()

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		unlockB, err := locker.Lock(ctx, uuid.New())
		require.NoError(t, err)
		unlockB()
		assert.Equal(t, 1, locker.Len())
	})

	t.Run("context deadline while held", func(t *testing.T) {
		locker := NewLocalLocker()
		id := uuid.New()
		unlock, err := locker.Lock(context.Background(), id)
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err = locker.Lock(ctx, id)
		assert.ErrorIs(t, err, context.DeadlineExceeded)

		unlock()
		// 重複釋放不會有副作用
		unlock()
		assert.Equal(t, 0, locker.Len())
	})
}

type failingLocker struct{ err error }

func (f failingLocker) Lock(context.Context, uuid.UUID) (func(), error) {
	return nil, f.err
}

func TestChainLocker(t *testing.T) {
	local := NewLocalLocker()
	id := uuid.New()

	boom := errors.New("boom")
	_, err := ChainLocker{local, failingLocker{err: boom}}.Lock(context.Background(), id)
	assert.ErrorIs(t, err, boom)
	// 第一個鎖必須已經被釋放
	assert.Equal(t, 0, local.Len())

	unlock, err := ChainLocker{local, NewLocalLocker()}.Lock(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 1, local.Len())
	unlock()
	assert.Equal(t, 0, local.Len())
}
