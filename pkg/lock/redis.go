package lock

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/mailpipe/pkg/id"
)

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker backed by a single Redis key per lock.
type Redis struct {
	client redis.UniversalClient
}

// NewRedis returns a Redis locker.
func NewRedis(client redis.UniversalClient) (*Redis, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	return &Redis{client: client}, nil
}

// TryLock sets key to a fresh token if it is absent, expiring after ttl.
func (r *Redis) TryLock(ctx context.Context, key string, ttl time.Duration) (Unlock, bool, error) {
	if ttl <= 0 {
		return nil, false, ErrInvalidTTL
	}

	token := id.Token()
	ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, errors.Join(ErrAcquire, err)
	}
	if !ok {
		return nil, false, nil
	}

	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, r.client, []string{key}, token).Err(); err != nil {
			return errors.Join(ErrRelease, err)
		}
		return nil
	}, true, nil
}
