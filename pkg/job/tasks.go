package job

import (
	"context"
	"errors"
	"log/slog"

	"github.com/riverqueue/river"

	"github.com/dmitrymomot/mailpipe/pkg/delivery"
	"github.com/dmitrymomot/mailpipe/pkg/inbox"
	"github.com/dmitrymomot/mailpipe/pkg/logger"
	"github.com/dmitrymomot/mailpipe/pkg/producer"
	"github.com/dmitrymomot/mailpipe/pkg/queue"
)

// Task names.
const (
	TaskDeliveryTick   = "delivery_tick"
	TaskCampaignFanout = "campaign_fanout"
	TaskWelcome        = "welcome_email"
	TaskInboxSync      = "inbox_sync"
)

const (
	fanoutMaxAttempts  = 5
	welcomeMaxAttempts = 5
)

// Ticker runs one delivery pass. *delivery.Worker implements it.
type Ticker interface {
	Tick(ctx context.Context) (*delivery.TickResult, error)
}

// DeliveryTick drives the delivery worker from a River periodic job.
type DeliveryTick struct {
	worker   Ticker
	schedule string
}

// NewDeliveryTick wraps worker with its cron schedule.
func NewDeliveryTick(worker Ticker, schedule string) *DeliveryTick {
	return &DeliveryTick{worker: worker, schedule: schedule}
}

func (t *DeliveryTick) Name() string     { return TaskDeliveryTick }
func (t *DeliveryTick) Schedule() string { return t.schedule }

func (t *DeliveryTick) Handle(ctx context.Context) error {
	_, err := t.worker.Tick(ctx)
	return err
}

// FanoutContinuer enqueues one page of deferred campaign members.
// *producer.Campaigns implements it.
type FanoutContinuer interface {
	Continue(ctx context.Context, cur producer.FanoutCursor) (*producer.FanoutCursor, int, error)
}

// CampaignFanout enqueues the next page of a capped campaign and schedules
// the page after it.
type CampaignFanout struct {
	campaigns FanoutContinuer
	next      producer.FanoutScheduler
	logger    *slog.Logger
}

// NewCampaignFanout creates the fan-out task.
func NewCampaignFanout(campaigns FanoutContinuer, next producer.FanoutScheduler, log *slog.Logger) *CampaignFanout {
	if log == nil {
		log = logger.NewNope()
	}
	return &CampaignFanout{campaigns: campaigns, next: next, logger: log}
}

func (t *CampaignFanout) Name() string { return TaskCampaignFanout }

func (t *CampaignFanout) Handle(ctx context.Context, cur producer.FanoutCursor) error {
	ctx = logger.WithCampaignID(ctx, cur.CampaignID)

	next, queued, err := t.campaigns.Continue(ctx, cur)
	switch {
	case errors.Is(err, producer.ErrFanoutCursor), errors.Is(err, queue.ErrCampaignNotFound), errors.Is(err, queue.ErrNotFound):
		return river.JobCancel(err)
	case err != nil:
		return err
	}

	if next == nil {
		t.logger.InfoContext(ctx, "campaign fan-out finished", slog.Int("users_queued", queued))
		return nil
	}
	return t.next.ScheduleFanout(ctx, *next)
}

// SignupHook enqueues the welcome mail. *producer.Hooks implements it.
type SignupHook interface {
	Signup(ctx context.Context, u producer.User) (*queue.Item, error)
}

// Welcome runs the signup hook off the request path.
type Welcome struct {
	hooks SignupHook
}

// NewWelcome creates the welcome task.
func NewWelcome(hooks SignupHook) *Welcome {
	return &Welcome{hooks: hooks}
}

func (t *Welcome) Name() string { return TaskWelcome }

func (t *Welcome) Handle(ctx context.Context, u producer.User) error {
	_, err := t.hooks.Signup(ctx, u)
	if errors.Is(err, producer.ErrNoRecipient) {
		return river.JobCancel(err)
	}
	return err
}

// InboxSyncer pulls unseen inbound mail into the reply store.
// *inbox.Syncer implements it.
type InboxSyncer interface {
	Sync(ctx context.Context) (inbox.SyncResult, error)
}

// InboxSync runs the inbound reply sync on a schedule.
type InboxSync struct {
	syncer   InboxSyncer
	schedule string
}

// NewInboxSync wraps syncer with its cron schedule.
func NewInboxSync(syncer InboxSyncer, schedule string) *InboxSync {
	return &InboxSync{syncer: syncer, schedule: schedule}
}

func (t *InboxSync) Name() string     { return TaskInboxSync }
func (t *InboxSync) Schedule() string { return t.schedule }

func (t *InboxSync) Handle(ctx context.Context) error {
	_, err := t.syncer.Sync(ctx)
	return err
}
