package delivery

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/dmitrymomot/mailpipe/pkg/id"
	"github.com/dmitrymomot/mailpipe/pkg/lock"
	"github.com/dmitrymomot/mailpipe/pkg/logger"
	"github.com/dmitrymomot/mailpipe/pkg/mailer"
	"github.com/dmitrymomot/mailpipe/pkg/metrics"
	"github.com/dmitrymomot/mailpipe/pkg/queue"
)

const (
	tickStatusOK      = "ok"
	tickStatusError   = "error"
	tickStatusSkipped = "skipped"
)

// Worker is the delivery worker. It is safe to call Tick concurrently;
// leases keep two ticks from sending the same item.
type Worker struct {
	store   queue.Store
	sender  mailer.Sender
	logger  *slog.Logger
	metrics metrics.DeliveryMetrics
	locker  lock.Locker
	limiter *rate.Limiter
	now     func() time.Time
	cfg     Config
}

// TickResult summarises one tick.
type TickResult struct {
	TickID string
	// Completed lists campaigns that finished in this tick.
	Completed []string
	Claimed   int
	Sent      int
	Retried   int
	Failed    int
	// Stale counts resolutions dropped because the lease was lost mid-tick.
	Stale    int
	Released int
	// Skipped is set when another process held the leader lock.
	Skipped bool
}

// NewWorker creates a worker over store and sender.
func NewWorker(store queue.Store, sender mailer.Sender, opts ...Option) (*Worker, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if sender == nil {
		return nil, ErrNilSender
	}

	w := &Worker{
		store:   store,
		sender:  sender,
		logger:  logger.NewNope(),
		metrics: metrics.NewNoOp(),
		now:     time.Now,
		cfg:     DefaultConfig(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.cfg = w.cfg.normalize()

	if w.cfg.SendRate > 0 {
		w.limiter = rate.NewLimiter(rate.Limit(w.cfg.SendRate), 1)
	}
	return w, nil
}

// Config returns the effective configuration.
func (w *Worker) Config() Config {
	return w.cfg
}

// Tick runs one delivery pass. Only store and lock failures are returned;
// delivery failures are recorded on the items themselves.
func (w *Worker) Tick(ctx context.Context) (*TickResult, error) {
	res := &TickResult{TickID: id.New()}
	ctx = logger.WithTickID(ctx, res.TickID)
	start := time.Now()

	if w.locker != nil {
		unlock, acquired, err := w.locker.TryLock(ctx, LockKey, w.cfg.LockTTL)
		if err != nil {
			w.metrics.RecordTick(ctx, time.Since(start), 0, tickStatusError)
			return nil, errors.Join(ErrLock, err)
		}
		if !acquired {
			w.logger.DebugContext(ctx, "delivery tick skipped, lock held elsewhere")
			w.metrics.RecordTick(ctx, time.Since(start), 0, tickStatusSkipped)
			res.Skipped = true
			return res, nil
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				w.logger.WarnContext(ctx, "release delivery lock", slog.Any("error", err))
			}
		}()
	}

	err := w.tick(ctx, res)

	status := tickStatusOK
	if err != nil {
		status = tickStatusError
		w.logger.ErrorContext(ctx, "delivery tick failed", slog.Any("error", err))
	}
	w.metrics.RecordTick(ctx, time.Since(start), res.Claimed, status)
	if err != nil {
		return res, err
	}

	if res.Claimed > 0 || res.Released > 0 {
		w.logger.InfoContext(ctx, "delivery tick finished",
			slog.Int("claimed", res.Claimed),
			slog.Int("sent", res.Sent),
			slog.Int("retried", res.Retried),
			slog.Int("failed", res.Failed),
			slog.Int("stale", res.Stale),
			slog.Int("released", res.Released),
			slog.Duration("took", time.Since(start)),
		)
	}
	return res, nil
}

func (w *Worker) tick(ctx context.Context, res *TickResult) error {
	now := w.now()

	released, err := w.store.ReleaseExpired(ctx, now)
	if err != nil {
		return errors.Join(ErrReleaseExpired, err)
	}
	res.Released = released
	w.metrics.RecordReleased(ctx, released)
	if released > 0 {
		w.logger.WarnContext(ctx, "released expired leases", slog.Int("count", released))
	}

	token := id.Token()
	items, err := w.store.Claim(ctx, queue.ClaimParams{
		Now:        now,
		LeaseUntil: now.Add(w.cfg.Lease),
		Token:      token,
		Limit:      w.cfg.BatchSize,
	})
	if err != nil {
		return errors.Join(ErrClaim, err)
	}
	res.Claimed = len(items)
	if len(items) == 0 {
		return nil
	}

	resolutions := make([]queue.Resolution, 0, len(items))
	for _, it := range items {
		// Unsent items keep their lease and return to pending once it expires.
		if ctx.Err() != nil {
			break
		}
		if w.limiter != nil {
			if err := w.limiter.Wait(ctx); err != nil {
				break
			}
		}
		resolutions = append(resolutions, w.attempt(ctx, it, token))
	}

	// Sends already happened; record them even if the caller gave up.
	commitRes, err := w.store.Commit(context.WithoutCancel(ctx), queue.TickCommit{Resolutions: resolutions})
	if err != nil {
		return errors.Join(ErrCommit, err)
	}
	res.Stale = commitRes.Stale
	res.Completed = commitRes.Completed

	for _, r := range resolutions {
		switch r.Outcome {
		case queue.OutcomeSent:
			res.Sent++
		case queue.OutcomeRetry:
			res.Retried++
		case queue.OutcomeFailed:
			res.Failed++
		}
		w.metrics.RecordOutcome(ctx, string(r.Outcome))
	}
	w.metrics.RecordCampaignCompleted(ctx, len(commitRes.Completed))
	for _, campaignID := range commitRes.Completed {
		w.logger.InfoContext(logger.WithCampaignID(ctx, campaignID), "campaign completed")
	}
	if commitRes.Stale > 0 {
		w.logger.WarnContext(ctx, "lease lost before commit", slog.Int("stale", commitRes.Stale))
	}
	return nil
}

// attempt sends one item and decides its next state.
func (w *Worker) attempt(ctx context.Context, it *queue.Item, token string) queue.Resolution {
	if it.CampaignID != "" {
		ctx = logger.WithCampaignID(ctx, it.CampaignID)
	}

	r := queue.Resolution{
		ItemID:     it.ID,
		LeaseToken: token,
		CampaignID: it.CampaignID,
		RetryCount: it.RetryCount,
	}

	receipt, err := w.sender.Send(ctx, toEmail(it))
	now := w.now()
	if err == nil {
		r.Outcome = queue.OutcomeSent
		r.SentAt = &now
		if receipt != nil {
			r.MessageID = receipt.MessageID
			r.Response = receipt.Response
		}
		r.Log = w.logEntry(it, now, queue.LogSent, "")
		w.logger.DebugContext(ctx, "email sent",
			slog.String("item_id", it.ID),
			slog.String("message_id", r.MessageID),
		)
		return r
	}

	r.RetryCount = it.RetryCount + 1
	r.LastError = err.Error()

	if r.RetryCount >= w.cfg.MaxRetries {
		r.Outcome = queue.OutcomeFailed
		r.Log = w.logEntry(it, now, queue.LogFailed, r.LastError)
		w.logger.ErrorContext(ctx, "email delivery failed permanently",
			slog.String("item_id", it.ID),
			slog.String("to", it.To),
			slog.Int("retry_count", r.RetryCount),
			slog.Any("error", err),
		)
		return r
	}

	next := now.Add(w.cfg.RetryDelay)
	r.Outcome = queue.OutcomeRetry
	r.NextRetryAt = &next
	if w.cfg.LogRetries {
		r.Log = w.logEntry(it, now, queue.LogRetrying, r.LastError)
	}
	w.logger.WarnContext(ctx, "email delivery failed, will retry",
		slog.String("item_id", it.ID),
		slog.Int("retry_count", r.RetryCount),
		slog.Time("next_retry_at", next),
		slog.Any("error", err),
	)
	return r
}

func (w *Worker) logEntry(it *queue.Item, at time.Time, status queue.LogStatus, errMsg string) *queue.EmailLog {
	return &queue.EmailLog{
		ID:         id.NewAt(at),
		Timestamp:  at,
		EmailID:    it.ID,
		To:         it.To,
		Subject:    it.Subject,
		Status:     status,
		Error:      errMsg,
		CampaignID: it.CampaignID,
	}
}

func toEmail(it *queue.Item) *mailer.Email {
	email := &mailer.Email{
		To:      it.To,
		Subject: it.Subject,
		HTML:    it.HTML,
		Text:    it.Text,
	}
	if it.CampaignID != "" {
		email.Tags = map[string]string{"campaign_id": it.CampaignID}
	}
	return email
}
