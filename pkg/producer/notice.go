package producer

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"strconv"

	validation "github.com/jellydator/validation"

	"github.com/dmitrymomot/mailpipe/pkg/id"
	"github.com/dmitrymomot/mailpipe/pkg/mailer"
	"github.com/dmitrymomot/mailpipe/pkg/queue"
)

// Notice templates from the built-in catalog.
const (
	NoticeWelcome      = "welcome"
	NoticePlanUpgrade  = "plan_upgrade"
	NoticeWalletCredit = "wallet_credit"
)

var noticeFiles = map[string]string{
	NoticeWelcome:      mailer.TemplateWelcome,
	NoticePlanUpgrade:  mailer.TemplatePlanUpgrade,
	NoticeWalletCredit: mailer.TemplateWalletCredit,
}

// NoticeRecipient is an account an admin notice goes to.
type NoticeRecipient struct {
	ID            string  `json:"id"`
	Email         string  `json:"email"`
	Name          string  `json:"name"`
	Plan          string  `json:"plan"`
	ReferralCode  string  `json:"referral_code"`
	WalletBalance float64 `json:"wallet_balance"`
}

// NoticeRequest sends one catalog template to hand-picked accounts.
type NoticeRequest struct {
	Template   string            `json:"template"`
	Recipients []NoticeRecipient `json:"recipients"`
	// Amount fills {{amount}} in the wallet credit template.
	Amount float64 `json:"amount"`
}

// Validate checks the required fields.
func (r *NoticeRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Template,
			validation.Required.Error("template is required"),
			validation.In(NoticeWelcome, NoticePlanUpgrade, NoticeWalletCredit).Error("unknown template"),
		),
		validation.Field(&r.Recipients, validation.Required.Error("recipients are required")),
	)
}

// NoticeResult reports what Send enqueued.
type NoticeResult struct {
	UsersQueued int `json:"users_queued"`
}

// Notices renders catalog templates per recipient and enqueues them.
type Notices struct {
	enq      *Enqueuer
	renderer *mailer.Renderer
	logger   *slog.Logger
}

// NewNotices creates the notice producer over the built-in catalog.
func NewNotices(store queue.Store, opts ...Option) (*Notices, error) {
	enq, err := NewEnqueuer(store, opts...)
	if err != nil {
		return nil, err
	}
	return &Notices{
		enq:      enq,
		renderer: mailer.NewRenderer(mailer.Catalog(), mailer.WithLayout(mailer.BaseLayout)),
		logger:   buildOptions(opts).logger,
	}, nil
}

// Send validates req and enqueues one item per recipient with an email
// address. A notice to a single account is transactional; larger selections
// are queued at bulk priority.
func (n *Notices) Send(ctx context.Context, req NoticeRequest) (*NoticeResult, error) {
	if err := req.Validate(); err != nil {
		return nil, errors.Join(ErrValidation, err)
	}

	priority := queue.PriorityBulk
	if len(req.Recipients) == 1 {
		priority = queue.PriorityTransactional
	}

	items := make([]*queue.Item, 0, len(req.Recipients))
	for _, rcpt := range req.Recipients {
		if rcpt.Email == "" {
			continue
		}
		msg, err := n.renderer.Render(noticeFiles[req.Template], noticeVars(rcpt, req.Amount))
		if err != nil {
			return nil, err
		}
		it := &queue.Item{
			ID:       id.New(),
			To:       rcpt.Email,
			Subject:  msg.Subject,
			HTML:     msg.HTML,
			Text:     msg.Text,
			Status:   queue.StatusPending,
			Priority: priority,
			Metadata: map[string]string{"trigger": "admin_notice", "template": req.Template},
		}
		if rcpt.ID != "" {
			it.Metadata["userId"] = rcpt.ID
		}
		items = append(items, it)
	}

	written, err := n.enq.Enqueue(ctx, items)
	if err != nil {
		return nil, err
	}
	n.logger.InfoContext(ctx, "admin notice enqueued",
		slog.String("template", req.Template),
		slog.Int("recipients", len(req.Recipients)),
		slog.Int("users_queued", written),
	)
	return &NoticeResult{UsersQueued: written}, nil
}

func noticeVars(r NoticeRecipient, amount float64) mailer.Vars {
	return mailer.Vars{
		{Key: "name", Value: cmp.Or(r.Name, NoticeFallbackName)},
		{Key: "email", Value: r.Email},
		{Key: "plan", Value: cmp.Or(r.Plan, "free")},
		{Key: "walletBalance", Value: formatAmount(r.WalletBalance)},
		{Key: "referralCode", Value: cmp.Or(r.ReferralCode, "N/A")},
		{Key: "amount", Value: formatAmount(amount)},
	}
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
