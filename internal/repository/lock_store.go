package repository

import (
	"context"
	"time"
)

// Unlock releases a lock obtained from a LockStore. Calling it more than
// once is harmless.
type Unlock func()

// LockStore hands out expiring, non-reentrant named locks.
// Implementations: Redis (shared across processes) or in-memory (single instance).
type LockStore interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (Unlock, bool, error)
}

// Lock blocks until key is acquired, ctx is done or the store fails.
func Lock(ctx context.Context, store LockStore, key string, ttl, retry time.Duration) (Unlock, error) {
	if retry <= 0 {
		retry = 50 * time.Millisecond
	}
	for {
		unlock, ok, err := store.TryLock(ctx, key, ttl)
		if err != nil {
			return nil, err
		}
		if ok {
			return unlock, nil
		}
		timer := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}
