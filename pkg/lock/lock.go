package lock

import (
	"context"
	"time"
)

// Unlock releases a held lock. It is safe to call after the lock expired.
type Unlock func(ctx context.Context) error

// Locker acquires a named lock without blocking.
// When acquired is false the returned Unlock is nil.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock Unlock, acquired bool, err error)
}
