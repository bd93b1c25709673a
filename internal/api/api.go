// Package api exposes the producers over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/mailpipe/pkg/health"
	"github.com/dmitrymomot/mailpipe/pkg/logger"
	"github.com/dmitrymomot/mailpipe/pkg/producer"
	"github.com/dmitrymomot/mailpipe/pkg/queue"
)

const maxBodyBytes = 1 << 20

// CampaignCreator starts bulk sends. *producer.Campaigns implements it.
type CampaignCreator interface {
	Create(ctx context.Context, req producer.CampaignRequest) (*producer.CampaignResult, error)
}

// HookProducer enqueues transactional mail. *producer.Hooks implements it.
type HookProducer interface {
	Signup(ctx context.Context, u producer.User) (*queue.Item, error)
	ContactReply(ctx context.Context, req producer.ReplyRequest) (*queue.Item, error)
	ContactMessage(ctx context.Context, m producer.ContactMessage) ([]*queue.Item, error)
}

// NoticeSender enqueues catalog notices. *producer.Notices implements it.
type NoticeSender interface {
	Send(ctx context.Context, req producer.NoticeRequest) (*producer.NoticeResult, error)
}

// WelcomeScheduler defers signup mail to a background job.
type WelcomeScheduler interface {
	ScheduleWelcome(ctx context.Context, u producer.User) error
}

// Deps are the collaborators behind the routes. Store, Campaigns and Hooks
// are required.
type Deps struct {
	Store     queue.Store
	Campaigns CampaignCreator
	Hooks     HookProducer
	// Notices enables POST /notices when set.
	Notices NoticeSender
	// Welcome, when set, receives signups instead of Hooks.Signup.
	Welcome WelcomeScheduler
	// Checks back the readiness probe.
	Checks health.Checks
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
}

// Config tunes the HTTP surface.
type Config struct {
	APIToken       string
	RequestTimeout time.Duration
	RequestRate    float64
	RequestBurst   int
}

type server struct {
	deps Deps
	log  *slog.Logger
}

// New builds the router. ctx bounds background housekeeping such as the rate
// limiter sweep.
func New(ctx context.Context, deps Deps, cfg Config, log *slog.Logger) http.Handler {
	if log == nil {
		log = logger.NewNope()
	}
	s := &server{deps: deps, log: log}

	r := chi.NewRouter()
	r.Use(withRequestID, withRecover(log))

	r.Get("/health/live", health.LivenessHandler())
	r.Get("/health/ready", health.ReadinessHandler(deps.Checks,
		health.WithLogger(log),
		health.WithQueueStats(s.queueStats),
	))
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(
			withBearerToken(cfg.APIToken, log),
			withRateLimit(ctx, cfg.RequestRate, cfg.RequestBurst, log),
			withTimeout(cfg.RequestTimeout, log),
		)

		r.Post("/campaigns", s.createCampaign)
		r.Get("/campaigns/{id}", s.getCampaign)
		r.Post("/hooks/signup", s.signup)
		r.Post("/contact/messages", s.contactMessage)
		r.Post("/contact/replies", s.contactReply)
		r.Get("/queue/stats", s.stats)
		if deps.Notices != nil {
			r.Post("/notices", s.sendNotice)
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, log, &HTTPError{Code: http.StatusNotFound, ErrorCode: "not_found", Message: "route not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, log, &HTTPError{Code: http.StatusMethodNotAllowed, ErrorCode: "method_not_allowed", Message: "method not allowed"})
	})
	return r
}

func (s *server) queueStats(ctx context.Context) (map[string]int, error) {
	counts, err := s.deps.Store.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(counts))
	for st, n := range counts {
		out[string(st)] = n
	}
	return out, nil
}

// NewProbes serves only the health probes and metrics. Worker processes use
// it in place of the full API.
func NewProbes(store queue.Store, checks health.Checks, metrics http.Handler, log *slog.Logger) http.Handler {
	if log == nil {
		log = logger.NewNope()
	}
	s := &server{deps: Deps{Store: store}, log: log}

	r := chi.NewRouter()
	r.Use(withRequestID, withRecover(log))
	r.Get("/health/live", health.LivenessHandler())
	r.Get("/health/ready", health.ReadinessHandler(checks,
		health.WithLogger(log),
		health.WithQueueStats(s.queueStats),
	))
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}
	return r
}
