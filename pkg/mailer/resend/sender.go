// Package resend implements mailer.Sender on the Resend API.
package resend

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/resend/resend-go/v3"

	"github.com/dmitrymomot/mailpipe/pkg/mailer"
)

// ErrEmptyResponse is returned when Resend accepts a request without an id.
var ErrEmptyResponse = errors.New("resend: empty response")

// Sender delivers through Resend.
type Sender struct {
	client *resend.Client
	from   string
}

// New creates a Resend sender.
func New(cfg Config) *Sender {
	return &Sender{
		client: resend.NewClient(cfg.APIKey),
		from:   mailer.Recipient(cfg.SenderName, cfg.SenderEmail),
	}
}

var _ mailer.Sender = (*Sender)(nil)

// Send implements mailer.Sender.
func (s *Sender) Send(ctx context.Context, email *mailer.Email) (*mailer.Receipt, error) {
	from := email.From
	if from == "" {
		from = s.from
	}

	req := &resend.SendEmailRequest{
		From:    from,
		To:      []string{email.To},
		Subject: email.Subject,
		Html:    email.HTML,
		Text:    email.Text,
		ReplyTo: email.ReplyTo,
		Headers: email.Headers,
	}
	if len(email.Tags) > 0 {
		for _, name := range slices.Sorted(maps.Keys(email.Tags)) {
			req.Tags = append(req.Tags, resend.Tag{Name: name, Value: email.Tags[name]})
		}
	}

	resp, err := s.client.Emails.SendWithContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("resend: send: %w", err)
	}
	if resp == nil || resp.Id == "" {
		return nil, ErrEmptyResponse
	}
	return &mailer.Receipt{MessageID: resp.Id, Response: "accepted"}, nil
}
