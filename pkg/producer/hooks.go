package producer

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	validation "github.com/jellydator/validation"
	"golang.org/x/sync/singleflight"

	"github.com/dmitrymomot/mailpipe/pkg/id"
	"github.com/dmitrymomot/mailpipe/pkg/inbox"
	"github.com/dmitrymomot/mailpipe/pkg/mailer"
	"github.com/dmitrymomot/mailpipe/pkg/queue"
)

// Welcome mail defaults, used when the stored template is missing or empty.
const (
	WelcomeTemplateID     = "welcome-email"
	DefaultWelcomeSubject = "Welcome to CreatorOS!"
	DefaultWelcomeHTML    = "<h1>Welcome, {{name}}!</h1><p>We are excited to have you on board.</p>"
)

// Confirmation mail to someone who used the contact form ranks just below
// transactional mail.
const priorityAcknowledgement = 2

// TemplateSource loads stored templates. queue.Store satisfies it.
type TemplateSource interface {
	Template(ctx context.Context, id string) (*queue.Template, error)
}

// User is a newly signed-up account.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// ReplyRequest answers a synced inbound message.
type ReplyRequest struct {
	ReplyID string `json:"reply_id"`
	Message string `json:"message"`
}

// Validate checks the required fields.
func (r *ReplyRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.ReplyID, validation.Required.Error("reply_id is required")),
		validation.Field(&r.Message, validation.Required.Error("message is required"), notBlank),
	)
}

// ContactMessage is a contact form submission.
type ContactMessage struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// Validate checks the required fields.
func (m *ContactMessage) Validate() error {
	return validation.ValidateStruct(m,
		validation.Field(&m.Message, validation.Required.Error("message is required"), notBlank),
	)
}

var notBlank = validation.By(func(value any) error {
	s, _ := value.(string)
	if s != "" && strings.TrimSpace(s) == "" {
		return validation.NewError("validation_not_blank", "must not be blank")
	}
	return nil
})

// Hooks produces single-recipient transactional mail.
type Hooks struct {
	store      queue.Store
	templates  TemplateSource
	logger     *slog.Logger
	adminEmail string
	group      singleflight.Group
}

// NewHooks creates the hook producers. Templates are read from store unless
// WithTemplateSource says otherwise.
func NewHooks(store queue.Store, opts ...Option) (*Hooks, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	o := buildOptions(opts)
	h := &Hooks{
		store:      store,
		templates:  o.templates,
		logger:     o.logger,
		adminEmail: o.adminEmail,
	}
	if h.templates == nil {
		h.templates = store
	}
	return h, nil
}

// Signup enqueues the welcome mail for u.
func (h *Hooks) Signup(ctx context.Context, u User) (*queue.Item, error) {
	if u.Email == "" {
		h.logger.InfoContext(ctx, "user has no email, skipping welcome mail", slog.String("user_id", u.ID))
		return nil, ErrNoRecipient
	}

	subject, html := h.welcomeTemplate(ctx)
	it := &queue.Item{
		ID:       id.New(),
		To:       u.Email,
		Subject:  subject,
		HTML:     Personalize(html, u.Name, u.Email, WelcomeFallbackName),
		Status:   queue.StatusPending,
		Priority: queue.PriorityTransactional,
		Metadata: map[string]string{"userId": u.ID, "trigger": "signup"},
	}
	if err := h.write(ctx, it); err != nil {
		return nil, err
	}
	h.logger.InfoContext(ctx, "welcome mail enqueued", slog.String("item_id", it.ID), slog.String("user_id", u.ID))
	return it, nil
}

// welcomeTemplate loads the stored welcome template, falling back to the
// defaults field by field. Concurrent signups share one lookup.
func (h *Hooks) welcomeTemplate(ctx context.Context) (string, string) {
	subject, html := DefaultWelcomeSubject, DefaultWelcomeHTML

	v, err, _ := h.group.Do(WelcomeTemplateID, func() (any, error) {
		return h.templates.Template(ctx, WelcomeTemplateID)
	})
	if err != nil {
		if !errors.Is(err, queue.ErrTemplateNotFound) {
			h.logger.WarnContext(ctx, "welcome template lookup failed, using default", slog.String("error", err.Error()))
		}
		return subject, html
	}

	t, ok := v.(*queue.Template)
	if !ok || t == nil {
		return subject, html
	}
	return cmp.Or(t.Subject, subject), cmp.Or(t.BodyHTML, html)
}

// ContactReply enqueues an admin reply to a synced inbound message, quoting
// the original body.
func (h *Hooks) ContactReply(ctx context.Context, req ReplyRequest) (*queue.Item, error) {
	if err := req.Validate(); err != nil {
		return nil, errors.Join(ErrValidation, err)
	}

	orig, err := h.store.GetReply(ctx, req.ReplyID)
	if err != nil {
		return nil, fmt.Errorf("producer: contact reply: %w", err)
	}
	// Inbox sync stores a placeholder when the sender header was missing.
	if orig.From == "" || orig.From == inbox.UnknownSender {
		return nil, ErrNoRecipient
	}

	var b strings.Builder
	b.WriteString("<p>")
	b.WriteString(strings.ReplaceAll(req.Message, "\n", "<br>"))
	b.WriteString("</p><br><hr><blockquote>")
	b.WriteString(mailer.SanitizeHTML(orig.Body))
	b.WriteString("</blockquote>")

	it := &queue.Item{
		ID:       id.New(),
		To:       orig.From,
		Subject:  "Re: " + orig.Subject,
		HTML:     b.String(),
		Status:   queue.StatusPending,
		Priority: queue.PriorityTransactional,
		Metadata: map[string]string{"replyToId": orig.ID, "type": "reply"},
	}
	if err := h.write(ctx, it); err != nil {
		return nil, err
	}
	h.logger.InfoContext(ctx, "reply enqueued", slog.String("item_id", it.ID), slog.String("reply_id", orig.ID))
	return it, nil
}

// ContactMessage enqueues the admin notification for a contact form
// submission and, when the sender left an address, a confirmation to them.
// Both items are written atomically.
func (h *Hooks) ContactMessage(ctx context.Context, m ContactMessage) ([]*queue.Item, error) {
	if err := m.Validate(); err != nil {
		return nil, errors.Join(ErrValidation, err)
	}

	items := []*queue.Item{{
		ID:      id.New(),
		To:      h.adminEmail,
		Subject: fmt.Sprintf("[New Contact] %s - %s", m.Subject, m.Name),
		HTML: fmt.Sprintf(`<h2>New Contact Message</h2>
<p><strong>From:</strong> %s (%s)</p>
<p><strong>Subject:</strong> %s</p>
<p><strong>Message:</strong></p>
<blockquote style="background: #f9f9f9; padding: 10px; border-left: 4px solid #ccc;">%s</blockquote>`,
			m.Name, m.Email, m.Subject, strings.ReplaceAll(m.Message, "\n", "<br>")),
		Status:   queue.StatusPending,
		Priority: queue.PriorityTransactional,
		Metadata: map[string]string{"trigger": "contact_form_admin", "contactId": m.ID},
	}}

	if m.Email != "" {
		items = append(items, &queue.Item{
			ID:      id.New(),
			To:      m.Email,
			Subject: "We received your message: " + m.Subject,
			HTML: fmt.Sprintf(`<h2>Hi %s,</h2>
<p>Thanks for reaching out to HubSnap. We've received your message regarding "<strong>%s</strong>".</p>
<p>Our team will review it and get back to you as soon as possible (usually within 24 hours).</p>
<p>Best regards,<br>The HubSnap Team</p>
<hr>
<small>Your message:</small>
<p><i>%s</i></p>`, m.Name, m.Subject, m.Message),
			Status:   queue.StatusPending,
			Priority: priorityAcknowledgement,
			Metadata: map[string]string{"trigger": "contact_form_user", "contactId": m.ID},
		})
	}

	if err := h.store.CreateItems(ctx, items); err != nil {
		return nil, errors.Join(ErrEnqueue, err)
	}
	h.logger.InfoContext(ctx, "contact message processed",
		slog.String("contact_id", m.ID),
		slog.Int("items", len(items)),
	)
	return items, nil
}

func (h *Hooks) write(ctx context.Context, it *queue.Item) error {
	if err := h.store.CreateItems(ctx, []*queue.Item{it}); err != nil {
		return errors.Join(ErrEnqueue, err)
	}
	return nil
}
