package delivery

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/mailpipe/pkg/lock"
	"github.com/dmitrymomot/mailpipe/pkg/metrics"
)

// Option configures a Worker.
type Option func(*Worker)

// WithConfig sets the worker configuration.
func WithConfig(cfg Config) Option {
	return func(w *Worker) {
		w.cfg = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithMetrics records tick and outcome metrics.
func WithMetrics(m metrics.DeliveryMetrics) Option {
	return func(w *Worker) {
		if m != nil {
			w.metrics = m
		}
	}
}

// WithLocker makes each tick hold LockKey, skipping the tick when another
// process has it.
func WithLocker(l lock.Locker) Option {
	return func(w *Worker) {
		w.locker = l
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) {
		if now != nil {
			w.now = now
		}
	}
}
