package producer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	validation "github.com/jellydator/validation"

	"github.com/dmitrymomot/mailpipe/pkg/id"
	"github.com/dmitrymomot/mailpipe/pkg/logger"
	"github.com/dmitrymomot/mailpipe/pkg/queue"
	"github.com/dmitrymomot/mailpipe/pkg/segment"
)

// CampaignRequest is the input of Campaigns.Create.
type CampaignRequest struct {
	Name      string `json:"name"`
	Subject   string `json:"subject"`
	Segment   string `json:"segment"`
	Content   string `json:"content"`
	CreatedBy string `json:"created_by"`
}

// Validate checks the required fields.
func (r *CampaignRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Name,
			validation.Required.Error("name is required"),
			validation.Length(1, 255).Error("name must be at most 255 characters"),
		),
		validation.Field(&r.Subject,
			validation.Required.Error("subject is required"),
			validation.Length(1, 998).Error("subject must be at most 998 characters"),
		),
		validation.Field(&r.Content,
			validation.Required.Error("content is required"),
		),
	)
}

// CampaignResult reports what Create enqueued.
type CampaignResult struct {
	CampaignID string `json:"campaign_id"`
	// UsersQueued counts items written, after skipping members without an email.
	UsersQueued int `json:"users_queued"`
	// Deferred counts segment members left out by the safety cap.
	Deferred        int  `json:"deferred"`
	FanoutScheduled bool `json:"fanout_scheduled"`
}

// FanoutCursor points at the last member enqueued for a campaign.
type FanoutCursor struct {
	CampaignID string `json:"campaign_id"`
	After      string `json:"after"`
}

// FanoutScheduler queues the next fan-out step for a campaign.
type FanoutScheduler interface {
	ScheduleFanout(ctx context.Context, cur FanoutCursor) error
}

// Campaigns creates bulk sends.
type Campaigns struct {
	store    queue.Store
	resolver *segment.Resolver
	enq      *Enqueuer
	fanout   FanoutScheduler
	logger   *slog.Logger
	pageSize int
}

// NewCampaigns creates the campaign producer.
func NewCampaigns(store queue.Store, resolver *segment.Resolver, opts ...Option) (*Campaigns, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if resolver == nil {
		return nil, ErrNilResolver
	}
	o := buildOptions(opts)
	enq, err := NewEnqueuer(store, opts...)
	if err != nil {
		return nil, err
	}
	return &Campaigns{
		store:    store,
		resolver: resolver,
		enq:      enq,
		fanout:   o.fanout,
		logger:   o.logger,
		pageSize: o.pageSize,
	}, nil
}

// BuildCampaignItems makes one bulk item per member with an email address.
// Members without one are skipped.
func BuildCampaignItems(campaignID, subject, html string, members []segment.Member) []*queue.Item {
	items := make([]*queue.Item, 0, len(members))
	for _, m := range members {
		if m.Email == "" {
			continue
		}
		it := &queue.Item{
			ID:         id.New(),
			To:         m.Email,
			Subject:    subject,
			HTML:       Personalize(html, m.Name, m.Email, CampaignFallbackName),
			Status:     queue.StatusPending,
			Priority:   queue.PriorityBulk,
			CampaignID: campaignID,
		}
		if m.ID != "" {
			it.Metadata = map[string]string{"userId": m.ID}
		}
		items = append(items, it)
	}
	return items
}

// Create validates req, resolves its segment, records the campaign and
// enqueues one item per reachable recipient.
func (c *Campaigns) Create(ctx context.Context, req CampaignRequest) (*CampaignResult, error) {
	if err := req.Validate(); err != nil {
		return nil, errors.Join(ErrValidation, err)
	}

	members, err := c.resolver.Resolve(ctx, req.Segment)
	if err != nil {
		return nil, fmt.Errorf("producer: create campaign: %w", err)
	}

	campaignID := uuid.NewString()
	ctx = logger.WithCampaignID(ctx, campaignID)

	items := BuildCampaignItems(campaignID, req.Subject, req.Content, members)
	camp := &queue.Campaign{
		ID:           campaignID,
		Name:         req.Name,
		Subject:      req.Subject,
		Segment:      req.Segment,
		TemplateHTML: req.Content,
		Status:       queue.CampaignSending,
		CreatedBy:    req.CreatedBy,
		Stats:        queue.CampaignStats{Total: len(members), Queued: len(items)},
	}
	if len(items) == 0 {
		camp.Status = queue.CampaignCompleted
	}
	if err := c.store.CreateCampaign(ctx, camp); err != nil {
		return nil, fmt.Errorf("producer: create campaign: %w", err)
	}

	written, err := c.enq.Enqueue(ctx, items)
	if err != nil {
		c.shrink(ctx, campaignID, len(items)-written)
		return nil, err
	}

	res := &CampaignResult{CampaignID: campaignID, UsersQueued: written}
	res.Deferred = c.deferred(ctx, req.Segment, len(members))
	if res.Deferred > 0 && c.fanout != nil && len(members) > 0 {
		cur := FanoutCursor{CampaignID: campaignID, After: members[len(members)-1].ID}
		if err := c.fanout.ScheduleFanout(ctx, cur); err != nil {
			c.logger.ErrorContext(ctx, "schedule campaign fan-out failed", slog.String("error", err.Error()))
		} else {
			res.FanoutScheduled = true
		}
	}

	c.logger.InfoContext(ctx, "campaign created",
		slog.String("segment", req.Segment),
		slog.Int("resolved", len(members)),
		slog.Int("users_queued", written),
		slog.Int("deferred", res.Deferred),
	)
	return res, nil
}

// deferred reports how many segment members the cap left out.
func (c *Campaigns) deferred(ctx context.Context, seg string, resolved int) int {
	size, err := c.resolver.Size(ctx, seg)
	if err != nil {
		c.logger.WarnContext(ctx, "segment size unavailable", slog.String("error", err.Error()))
		return 0
	}
	n := max(size-resolved, 0)
	if n > 0 {
		c.logger.WarnContext(ctx, "segment capped, recipients deferred",
			slog.String("segment", seg),
			slog.Int("size", size),
			slog.Int("deferred", n),
		)
	}
	return n
}

// Continue enqueues the next page of deferred members after cur. It returns
// the cursor for the following page, or nil when the segment is exhausted.
func (c *Campaigns) Continue(ctx context.Context, cur FanoutCursor) (*FanoutCursor, int, error) {
	if cur.CampaignID == "" || cur.After == "" {
		return nil, 0, ErrFanoutCursor
	}
	ctx = logger.WithCampaignID(ctx, cur.CampaignID)

	camp, err := c.store.GetCampaign(ctx, cur.CampaignID)
	if err != nil {
		return nil, 0, fmt.Errorf("producer: continue fan-out: %w", err)
	}

	members, err := c.resolver.Page(ctx, camp.Segment, cur.After, c.pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("producer: continue fan-out: %w", err)
	}
	if len(members) == 0 {
		return nil, 0, nil
	}

	items := BuildCampaignItems(camp.ID, camp.Subject, camp.TemplateHTML, members)
	// Counters go up before the items exist so a fast worker cannot complete
	// the campaign between the two writes.
	if err := c.store.AddCampaignRecipients(ctx, camp.ID, len(members), len(items)); err != nil {
		return nil, 0, fmt.Errorf("producer: continue fan-out: %w", err)
	}

	written, err := c.enq.Enqueue(ctx, items)
	if err != nil {
		c.shrink(ctx, camp.ID, len(items)-written)
		return nil, written, err
	}

	var next *FanoutCursor
	if len(members) == c.pageSize {
		next = &FanoutCursor{CampaignID: camp.ID, After: members[len(members)-1].ID}
	}
	c.logger.InfoContext(ctx, "campaign fan-out page enqueued",
		slog.Int("members", len(members)),
		slog.Int("users_queued", written),
		slog.Bool("more", next != nil),
	)
	return next, written, nil
}

// shrink takes unwritten items back out of the campaign's queued counter.
func (c *Campaigns) shrink(ctx context.Context, campaignID string, unwritten int) {
	if unwritten <= 0 {
		return
	}
	if err := c.store.AddCampaignRecipients(ctx, campaignID, 0, -unwritten); err != nil {
		c.logger.ErrorContext(ctx, "campaign counter correction failed",
			slog.Int("unwritten", unwritten),
			slog.String("error", err.Error()),
		)
	}
}
