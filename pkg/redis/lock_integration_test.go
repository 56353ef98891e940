//go:build integration

package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	url, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)

	client := NewClientFromRedis(redis.NewClient(opts), ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx))
	return client
}

func TestLocker_AcquireAndRelease(t *testing.T) {
	ctx := context.Background()
	locker := NewLocker(newTestClient(t), "")

	lease, err := locker.Acquire(ctx, []string{"email:a@x.com", "phone:111"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []string{"lock:email:a@x.com", "lock:phone:111"}, lease.Keys())

	// one shared key blocks the whole lease
	_, err = locker.Acquire(ctx, []string{"email:b@x.com", "phone:111"}, time.Second)
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	// and a failed attempt holds nothing
	other, err := locker.Acquire(ctx, []string{"email:b@x.com"}, time.Second)
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, lease.Release(ctx))
	assert.ErrorIs(t, lease.Release(ctx), ErrLockNotHeld)

	again, err := locker.Acquire(ctx, []string{"phone:111"}, time.Second)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestLocker_AcquireWithinTimesOut(t *testing.T) {
	ctx := context.Background()
	locker := NewLocker(newTestClient(t), "")

	_, err := locker.Acquire(ctx, []string{"k"}, 5*time.Second)
	require.NoError(t, err)

	_, err = locker.AcquireWithin(ctx, []string{"k"}, time.Second, 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrLockNotAcquired)
}

func TestLease_ExpiredKeyIsNotHeld(t *testing.T) {
	ctx := context.Background()
	locker := NewLocker(newTestClient(t), "")

	lease, err := locker.Acquire(ctx, []string{"k"}, 20*time.Millisecond)
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	assert.ErrorIs(t, lease.Release(ctx), ErrLockNotHeld)
}

func TestKeyLocker_SerializesOverlappingKeys(t *testing.T) {
	ctx := context.Background()
	keys := NewKeyLocker(newTestClient(t), 5*time.Second, 5*time.Second, ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))

	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := keys.Acquire(ctx, []string{"phone:111", "email:a@x.com"})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			release(ctx)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
}
