// Package health serves liveness and readiness probes.
//
// ReadinessHandler runs named checks concurrently under one timeout. The
// Healthcheck closures of packages db, redis and job plug in directly:
//
//	r.Get("/health/ready", health.ReadinessHandler(health.Checks{
//		"postgres": db.Healthcheck(pool),
//		"redis":    redis.Healthcheck(client),
//	}, health.WithQueueStats(stats)))
//
// Responses are plain text unless the client asks for JSON with an Accept
// header or ?format=json. JSON readiness responses carry per-check results
// and, with WithQueueStats, queue item counts by status.
package health
