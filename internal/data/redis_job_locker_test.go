package data

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/dtapi/booking-engine/internal/errors"
	"github.com/dtapi/booking-engine/internal/testutil"
)

func TestRedisJobLocker(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	client := testutil.SetupTestRedis(t)
	defer client.Close()

	locker := NewRedisJobLocker(RedisJobLockerOptions{
		Client:        client,
		TTL:           5 * time.Second,
		RetryInterval: 5 * time.Millisecond,
	})

	t.Run("second holder waits until release", func(t *testing.T) {
		ctx := context.Background()
		unlock, err := locker.Lock(ctx, "job-1")
		require.NoError(t, err)

		acquired := make(chan struct{})
		go func() {
			u, lerr := locker.Lock(ctx, "job-1")
			if lerr == nil {
				close(acquired)
				u()
			}
		}()

		select {
		case <-acquired:
			t.Fatal("lock acquired while held")
		case <-time.After(50 * time.Millisecond):
		}

		unlock()
		select {
		case <-acquired:
		case <-time.After(2 * time.Second):
			t.Fatal("lock not acquired after release")
		}
	})

	t.Run("times out as transient", func(t *testing.T) {
		unlock, err := locker.Lock(context.Background(), "job-2")
		require.NoError(t, err)
		defer unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()
		_, err = locker.Lock(ctx, "job-2")
		require.Error(t, err)
		assert.True(t, apperrors.IsTransient(err))
	})

	t.Run("stale release does not free a new holder", func(t *testing.T) {
		ctx := context.Background()
		unlock, err := locker.Lock(ctx, "job-3")
		require.NoError(t, err)

		// Simulate TTL expiry and a new holder.
		require.NoError(t, client.Del(ctx, "booking:job_lock:job-3").Err())
		unlock2, err := locker.Lock(ctx, "job-3")
		require.NoError(t, err)
		defer unlock2()

		unlock()
		exists, err := client.Exists(ctx, "booking:job_lock:job-3").Result()
		require.NoError(t, err)
		assert.Equal(t, int64(1), exists)
	})

	t.Run("mutual exclusion", func(t *testing.T) {
		var inside, maxInside int32
		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock, err := locker.Lock(context.Background(), "job-4")
				if err != nil {
					return
				}
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				unlock()
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), maxInside)
	})
}
