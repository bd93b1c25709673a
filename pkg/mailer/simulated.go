package mailer

import (
	"context"
	"log/slog"
)

// Simulated receipt values reported by LogSender.
const (
	SimulatedMessageID = "simulated-id"
	SimulatedResponse  = "Simulated success"
)

// LogSender pretends to deliver by logging the message.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a LogSender. A nil logger discards output.
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &LogSender{logger: logger}
}

// Send implements Sender.
func (s *LogSender) Send(ctx context.Context, email *Email) (*Receipt, error) {
	s.logger.InfoContext(ctx, "simulated email send",
		slog.String("to", email.To),
		slog.String("subject", email.Subject),
		slog.Int("html_bytes", len(email.HTML)),
	)
	return &Receipt{MessageID: SimulatedMessageID, Response: SimulatedResponse}, nil
}
