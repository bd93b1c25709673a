package health

import (
	"context"
	"log/slog"
	"maps"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/mailpipe/pkg/logger"
)

const (
	defaultTimeout = 5 * time.Second

	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// CheckFunc matches the Healthcheck closures of packages db, redis and job.
type CheckFunc func(ctx context.Context) error

// Checks maps a check name to its function.
type Checks map[string]CheckFunc

// QueueStatsFunc reports queue item counts by status.
type QueueStatsFunc func(ctx context.Context) (map[string]int, error)

// Response is the readiness report.
type Response struct {
	Checks map[string]Check `json:"checks,omitempty"`
	Queue  map[string]int   `json:"queue,omitempty"`
	Status string           `json:"status"`
}

// Check is the result of one named check.
type Check struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type config struct {
	logger     *slog.Logger
	queueStats QueueStatsFunc
	timeout    time.Duration
}

// Option configures the readiness handler.
type Option func(*config)

// WithTimeout bounds all checks together. Default: 5s.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger logs failing checks.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithQueueStats adds queue counts to JSON readiness responses.
// A failing stats call is reported as the "queue" check.
func WithQueueStats(fn QueueStatsFunc) Option {
	return func(c *config) {
		c.queueStats = fn
	}
}

func newConfig(opts ...Option) *config {
	cfg := &config{timeout: defaultTimeout, logger: logger.NewNope()}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Run executes checks concurrently and aggregates the result.
func Run(ctx context.Context, checks Checks, opts ...Option) *Response {
	return runChecks(ctx, checks, newConfig(opts...))
}

func runChecks(ctx context.Context, checks Checks, cfg *config) *Response {
	ctx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	all := maps.Clone(checks)
	if all == nil {
		all = Checks{}
	}

	var (
		mu    sync.Mutex
		resp  = &Response{Status: StatusHealthy, Checks: make(map[string]Check, len(all)+1)}
		group errgroup.Group
	)

	record := func(name string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err == nil {
			resp.Checks[name] = Check{Status: StatusHealthy}
			return
		}
		resp.Status = StatusUnhealthy
		resp.Checks[name] = Check{Status: StatusUnhealthy, Error: err.Error()}
		cfg.logger.WarnContext(ctx, "health check failed",
			slog.String("check", name),
			slog.String("error", err.Error()),
		)
	}

	for name, check := range all {
		group.Go(func() error {
			record(name, check(ctx))
			return nil
		})
	}
	if cfg.queueStats != nil {
		group.Go(func() error {
			stats, err := cfg.queueStats(ctx)
			record("queue", err)
			if err == nil {
				mu.Lock()
				resp.Queue = stats
				mu.Unlock()
			}
			return nil
		})
	}
	_ = group.Wait()

	if len(resp.Checks) == 0 {
		resp.Checks = nil
	}
	return resp
}
