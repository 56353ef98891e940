package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrLockNotAcquired is returned when another holder owns at least one of the keys.
	ErrLockNotAcquired = errors.New("lock not acquired")
	// ErrLockNotHeld is returned when a lease lost some of its keys before release.
	ErrLockNotHeld = errors.New("lock not held")
)

// Takes every key or none. ARGV[1] is the owner token, ARGV[2] the TTL in ms.
var acquireScript = redis.NewScript(`
	for i = 1, #KEYS do
		if redis.call("exists", KEYS[i]) == 1 then
			return 0
		end
	end
	for i = 1, #KEYS do
		redis.call("set", KEYS[i], ARGV[1], "PX", ARGV[2])
	end
	return 1
`)

// Deletes only the keys still owned by ARGV[1] and returns how many it deleted.
var releaseScript = redis.NewScript(`
	local released = 0
	for i = 1, #KEYS do
		if redis.call("get", KEYS[i]) == ARGV[1] then
			released = released + redis.call("del", KEYS[i])
		end
	end
	return released
`)

// Lease is a set of keys held under one owner token. Keys expire after the TTL
// even if the lease is never released.
type Lease struct {
	client *Client
	keys   []string
	token  string
}

// Locker takes leases on prefixed keys.
type Locker struct {
	client    *Client
	keyPrefix string
}

// NewLocker creates a Locker. An empty prefix defaults to "lock:".
func NewLocker(client *Client, keyPrefix string) *Locker {
	if keyPrefix == "" {
		keyPrefix = "lock:"
	}
	return &Locker{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Acquire makes a single attempt to take all keys atomically.
func (l *Locker) Acquire(ctx context.Context, keys []string, ttl time.Duration) (*Lease, error) {
	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = l.keyPrefix + key
	}
	token := uuid.New().String()

	ok, err := acquireScript.Run(ctx, l.client.rdb, prefixed, token, ttl.Milliseconds()).Int64()
	if err != nil {
		return nil, err
	}
	if ok == 0 {
		return nil, ErrLockNotAcquired
	}

	l.client.logger.WithContext(ctx).WithField("keys", keys).Debug("Acquired lease")
	return &Lease{
		client: l.client,
		keys:   prefixed,
		token:  token,
	}, nil
}

// AcquireWithin retries Acquire with capped exponential backoff until timeout elapses.
func (l *Locker) AcquireWithin(ctx context.Context, keys []string, ttl, timeout time.Duration) (*Lease, error) {
	deadline := time.Now().Add(timeout)
	backoff := 10 * time.Millisecond

	for {
		lease, err := l.Acquire(ctx, keys, ttl)
		if err == nil {
			return lease, nil
		}
		if !errors.Is(err, ErrLockNotAcquired) || !time.Now().Before(deadline) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
			backoff = min(backoff*2, 500*time.Millisecond)
		}
	}
}

// Release drops the keys this lease still owns. ErrLockNotHeld means at least
// one key expired or was taken over first.
func (lease *Lease) Release(ctx context.Context) error {
	released, err := releaseScript.Run(ctx, lease.client.rdb, lease.keys, lease.token).Int64()
	if err != nil {
		return err
	}
	if int(released) < len(lease.keys) {
		return ErrLockNotHeld
	}
	return nil
}

// Keys returns the prefixed keys covered by the lease.
func (lease *Lease) Keys() []string {
	return lease.keys
}
