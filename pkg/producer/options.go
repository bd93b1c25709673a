package producer

import (
	"log/slog"

	"github.com/dmitrymomot/mailpipe/pkg/queue"
)

// DefaultChunkSize is how many items go into one atomic store write.
const DefaultChunkSize = 400

// DefaultPageSize is how many deferred members one fan-out step enqueues.
const DefaultPageSize = 400

// DefaultAdminEmail receives contact form notifications.
const DefaultAdminEmail = "support@hubsnap.com"

type options struct {
	logger     *slog.Logger
	fanout     FanoutScheduler
	templates  TemplateSource
	adminEmail string
	chunkSize  int
	pageSize   int
}

// Option configures producers.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithChunkSize sets the items per store write. Values outside
// [1, queue.MaxBatchWrite) fall back to DefaultChunkSize.
func WithChunkSize(n int) Option {
	return func(o *options) {
		o.chunkSize = n
	}
}

// WithFanout enables resumable fan-out of capped segments.
func WithFanout(s FanoutScheduler) Option {
	return func(o *options) {
		o.fanout = s
	}
}

// WithPageSize sets the members per fan-out step.
func WithPageSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.pageSize = n
		}
	}
}

// WithTemplateSource overrides where hook templates are loaded from.
func WithTemplateSource(t TemplateSource) Option {
	return func(o *options) {
		o.templates = t
	}
}

// WithAdminEmail sets the contact form notification address.
func WithAdminEmail(addr string) Option {
	return func(o *options) {
		if addr != "" {
			o.adminEmail = addr
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger:     slog.New(slog.DiscardHandler),
		adminEmail: DefaultAdminEmail,
		chunkSize:  DefaultChunkSize,
		pageSize:   DefaultPageSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.chunkSize <= 0 || o.chunkSize >= queue.MaxBatchWrite {
		o.chunkSize = DefaultChunkSize
	}
	return o
}
