package mailer

import "context"

// Sender delivers one email. Errors are delivery failures; the caller decides
// whether to retry. Senders handle their own timeouts.
type Sender interface {
	Send(ctx context.Context, email *Email) (*Receipt, error)
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, email *Email) (*Receipt, error)

// Send implements Sender.
func (f SenderFunc) Send(ctx context.Context, email *Email) (*Receipt, error) {
	return f(ctx, email)
}
