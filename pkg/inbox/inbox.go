package inbox

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/dmitrymomot/mailpipe/pkg/id"
	"github.com/dmitrymomot/mailpipe/pkg/logger"
	"github.com/dmitrymomot/mailpipe/pkg/queue"
)

// Fallbacks for headers an inbound message lacks.
const (
	UnknownSender  = "Unknown"
	DefaultSubject = "No Subject"
)

// Message is one parsed inbound email.
type Message struct {
	Date    time.Time
	RawID   string
	From    string
	Subject string
	Text    string
	HTML    string
}

// Body prefers the plain-text part.
func (m Message) Body() string {
	return cmp.Or(m.Text, m.HTML)
}

// Reader yields unseen messages. Ack marks the given messages seen; the
// Syncer calls it only for messages it stored.
type Reader interface {
	Unseen(ctx context.Context) ([]Message, error)
	Ack(ctx context.Context, rawIDs ...string) error
}

// ReplyStore persists replies. queue.Store satisfies it.
type ReplyStore interface {
	SaveReply(ctx context.Context, r *queue.Reply) error
}

// Syncer copies unseen inbound mail into the reply store.
type Syncer struct {
	store  ReplyStore
	reader Reader
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Syncer) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides time.Now for messages without a Date header.
func WithClock(now func() time.Time) Option {
	return func(s *Syncer) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSyncer creates a Syncer. A nil reader makes Sync a logged no-op.
func NewSyncer(store ReplyStore, reader Reader, opts ...Option) (*Syncer, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	s := &Syncer{store: store, reader: reader, logger: logger.NewNope(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SyncResult counts what one Sync did.
type SyncResult struct {
	Fetched int `json:"fetched"`
	Stored  int `json:"stored"`
	Failed  int `json:"failed"`
}

// Sync stores every unseen message. A message that fails to store stays
// unseen and is retried by the next Sync.
func (s *Syncer) Sync(ctx context.Context) (SyncResult, error) {
	var res SyncResult
	if s.reader == nil {
		s.logger.WarnContext(ctx, "inbox reader not configured, skipping sync")
		return res, nil
	}

	msgs, err := s.reader.Unseen(ctx)
	if err != nil {
		return res, errors.Join(ErrRead, err)
	}
	res.Fetched = len(msgs)

	stored := make([]string, 0, len(msgs))
	for _, m := range msgs {
		r := s.reply(m)
		if err := s.store.SaveReply(ctx, r); err != nil {
			res.Failed++
			s.logger.ErrorContext(ctx, "store inbound reply",
				slog.String("raw_id", m.RawID),
				slog.Any("error", err),
			)
			continue
		}
		res.Stored++
		stored = append(stored, m.RawID)
		s.logger.InfoContext(ctx, "synced inbound email",
			slog.String("reply_id", r.ID),
			slog.String("from", r.From),
		)
	}

	if len(stored) > 0 {
		if err := s.reader.Ack(ctx, stored...); err != nil {
			return res, errors.Join(ErrRead, err)
		}
	}
	return res, nil
}

func (s *Syncer) reply(m Message) *queue.Reply {
	received := m.Date
	if received.IsZero() {
		received = s.now()
	}
	return &queue.Reply{
		ID:         id.NewAt(received),
		From:       cmp.Or(strings.TrimSpace(m.From), UnknownSender),
		Subject:    cmp.Or(strings.TrimSpace(m.Subject), DefaultSubject),
		Body:       m.Body(),
		RawID:      m.RawID,
		Status:     queue.ReplyStatusUnread,
		ReceivedAt: received,
	}
}
