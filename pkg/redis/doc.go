// Package redis opens the go-redis client used by the delivery leader lock.
//
// Open parses a redis:// or rediss:// URL from Config, applies pool and
// timeout settings and pings the server with linear backoff:
//
//	client, err := redis.Open(ctx, cfg.Redis, log)
//	if err != nil {
//		return err
//	}
//	defer redis.Shutdown(client)(ctx)
//
// Healthcheck plugs into the readiness probe of package health.
package redis
