package redis

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/Gobusters/ectologger"
)

// KeyLocker holds a Redis lease on the identity keys of one unit of work,
// serializing identify calls that share an email or phone across instances.
type KeyLocker struct {
	locker  *Locker
	ttl     time.Duration
	timeout time.Duration
	logger  ectologger.Logger
}

// NewKeyLocker creates a locker whose leases expire after ttl and whose waits give up after timeout.
func NewKeyLocker(client *Client, ttl, timeout time.Duration, logger ectologger.Logger) *KeyLocker {
	return &KeyLocker{
		locker:  NewLocker(client, "bitespeed:identity:"),
		ttl:     ttl,
		timeout: timeout,
		logger:  logger,
	}
}

// Acquire takes all keys at once and returns the function that releases them.
func (k *KeyLocker) Acquire(ctx context.Context, keys []string) (func(context.Context), error) {
	keys = slices.Compact(slices.Sorted(slices.Values(keys)))

	lease, err := k.locker.AcquireWithin(ctx, keys, k.ttl, k.timeout)
	if err != nil {
		return nil, fmt.Errorf("lock %v: %w", keys, err)
	}

	return func(ctx context.Context) {
		if err := lease.Release(ctx); err != nil {
			k.logger.WithContext(ctx).WithError(err).WithField("keys", lease.Keys()).Warn("Failed to release identity lease")
		}
	}, nil
}
