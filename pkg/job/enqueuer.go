package job

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"

	"github.com/dmitrymomot/mailpipe/pkg/logger"
	"github.com/dmitrymomot/mailpipe/pkg/producer"
)

// Enqueuer inserts jobs without working them.
type Enqueuer struct {
	pool   *pgxpool.Pool
	client *river.Client[pgx.Tx]
	logger *slog.Logger
}

// NewEnqueuer creates an insert-only River client.
func NewEnqueuer(pool *pgxpool.Pool, log *slog.Logger) (*Enqueuer, error) {
	if pool == nil {
		return nil, ErrPoolRequired
	}
	if log == nil {
		log = logger.NewNope()
	}

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{Logger: log})
	if err != nil {
		return nil, fmt.Errorf("job: create enqueuer client: %w", err)
	}
	return &Enqueuer{pool: pool, client: client, logger: log}, nil
}

// Enqueue inserts a job for task name. Unknown names fail on the worker side.
func (e *Enqueuer) Enqueue(ctx context.Context, name string, payload any, opts ...EnqueueOption) error {
	args, insertOpts, err := buildJobArgs(name, payload, opts...)
	if err != nil {
		return err
	}
	if _, err := e.client.Insert(ctx, args, insertOpts); err != nil {
		return fmt.Errorf("job: enqueue %s: %w", name, err)
	}
	return nil
}

// EnqueueTx inserts a job inside tx; it becomes visible on commit.
func (e *Enqueuer) EnqueueTx(ctx context.Context, tx pgx.Tx, name string, payload any, opts ...EnqueueOption) error {
	args, insertOpts, err := buildJobArgs(name, payload, opts...)
	if err != nil {
		return err
	}
	if _, err := e.client.InsertTx(ctx, tx, args, insertOpts); err != nil {
		return fmt.Errorf("job: enqueue %s in tx: %w", name, err)
	}
	return nil
}

var _ producer.FanoutScheduler = (*Enqueuer)(nil)

// ScheduleFanout queues the next fan-out step. A repeated cursor within an
// hour is dropped by River's uniqueness check.
func (e *Enqueuer) ScheduleFanout(ctx context.Context, cur producer.FanoutCursor) error {
	return e.Enqueue(ctx, TaskCampaignFanout, cur,
		Unique(cur.CampaignID+":"+cur.After, time.Hour),
		MaxAttempts(fanoutMaxAttempts),
	)
}

// ScheduleWelcome queues the welcome mail for u.
func (e *Enqueuer) ScheduleWelcome(ctx context.Context, u producer.User) error {
	return e.Enqueue(ctx, TaskWelcome, u,
		Unique(u.ID, 24*time.Hour),
		MaxAttempts(welcomeMaxAttempts),
		Priority(1),
	)
}
