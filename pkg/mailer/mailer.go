package mailer

import "context"

// Mailer validates outgoing email and fills in the plain-text part before
// handing it to the underlying Sender.
type Mailer struct {
	sender Sender
	from   string
}

// Option configures a Mailer.
type Option func(*Mailer)

// WithFrom sets the sender address used when an Email has none.
func WithFrom(from string) Option {
	return func(m *Mailer) {
		m.from = from
	}
}

// New wraps sender.
func New(sender Sender, opts ...Option) *Mailer {
	m := &Mailer{sender: sender}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

var _ Sender = (*Mailer)(nil)

// Send implements Sender.
func (m *Mailer) Send(ctx context.Context, email *Email) (*Receipt, error) {
	if err := Validate(email); err != nil {
		return nil, err
	}

	out := *email
	if out.Text == "" {
		out.Text = PlainText(out.HTML)
	}
	if out.From == "" {
		out.From = m.from
	}

	receipt, err := m.sender.Send(ctx, &out)
	if err != nil {
		return nil, &sendError{cause: err}
	}
	if receipt == nil {
		receipt = &Receipt{}
	}
	return receipt, nil
}

// Validate checks the fields every provider needs.
func Validate(email *Email) error {
	switch {
	case email == nil || email.To == "":
		return ErrNoRecipient
	case email.Subject == "":
		return ErrNoSubject
	case email.HTML == "":
		return ErrNoContent
	}
	return nil
}
