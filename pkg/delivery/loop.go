package delivery

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// ParseSchedule parses a five-field cron expression or a descriptor such as @every 30s.
func ParseSchedule(expr string) (cron.Schedule, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, errors.Join(ErrInvalidSchedule, err)
	}
	return sched, nil
}

// Run ticks on the configured schedule until ctx is done. Ticks never
// overlap: a tick that outlasts its slot delays the next one.
func (w *Worker) Run(ctx context.Context) error {
	sched, err := ParseSchedule(w.cfg.Schedule)
	if err != nil {
		return err
	}

	w.logger.InfoContext(ctx, "delivery loop started", slog.String("schedule", w.cfg.Schedule))
	defer w.logger.InfoContext(ctx, "delivery loop stopped")

	for {
		timer := time.NewTimer(time.Until(sched.Next(time.Now())))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		// Errors are logged inside Tick; the next slot retries.
		_, _ = w.Tick(ctx)
	}
}
