package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/mailpipe/internal/api"
	"github.com/dmitrymomot/mailpipe/internal/config"
	"github.com/dmitrymomot/mailpipe/pkg/cache"
	"github.com/dmitrymomot/mailpipe/pkg/db"
	"github.com/dmitrymomot/mailpipe/pkg/delivery"
	"github.com/dmitrymomot/mailpipe/pkg/health"
	"github.com/dmitrymomot/mailpipe/pkg/inbox"
	"github.com/dmitrymomot/mailpipe/pkg/job"
	"github.com/dmitrymomot/mailpipe/pkg/lock"
	"github.com/dmitrymomot/mailpipe/pkg/logger"
	"github.com/dmitrymomot/mailpipe/pkg/mailer"
	"github.com/dmitrymomot/mailpipe/pkg/mailer/resend"
	"github.com/dmitrymomot/mailpipe/pkg/metrics"
	"github.com/dmitrymomot/mailpipe/pkg/producer"
	"github.com/dmitrymomot/mailpipe/pkg/queue"
	"github.com/dmitrymomot/mailpipe/pkg/queue/pgstore"
	"github.com/dmitrymomot/mailpipe/pkg/redis"
	"github.com/dmitrymomot/mailpipe/pkg/segment"
)

const templateCacheSize = 256

// app holds the process-wide connections shared by every command.
type app struct {
	cfg     config.Config
	log     *slog.Logger
	pool    *pgxpool.Pool
	store   *pgstore.Store
	rdb     goredis.UniversalClient
	metrics *metrics.Provider
	closers []func(context.Context) error
}

func bootstrap(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	extractors := append(logger.DefaultExtractors(), api.RequestIDExtractor())
	a := &app{
		cfg: *cfg,
		log: logger.NewWithSentry(cfg.Log, cfg.Sentry, extractors...),
	}

	a.pool, err = db.Connect(ctx, cfg.Database, a.log)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, db.Shutdown(a.pool))
	a.store = pgstore.New(a.pool)

	if cfg.Database.AutoMigrate {
		if err := a.migrate(ctx); err != nil {
			return nil, errors.Join(err, a.close(ctx))
		}
	}

	if cfg.Redis.Enabled() {
		a.rdb, err = redis.Open(ctx, cfg.Redis, a.log)
		if err != nil {
			return nil, errors.Join(err, a.close(ctx))
		}
		a.closers = append(a.closers, redis.Shutdown(a.rdb))
	}

	if cfg.Metrics.Enabled {
		a.metrics, err = metrics.NewProvider(cfg.Metrics.Namespace)
		if err != nil {
			return nil, errors.Join(err, a.close(ctx))
		}
		a.closers = append(a.closers, a.metrics.Shutdown)
	}
	return a, nil
}

// close runs the closers in reverse order of registration.
func (a *app) close(ctx context.Context) error {
	var errs []error
	for _, fn := range slices.Backward(a.closers) {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *app) migrate(ctx context.Context) error {
	if err := pgstore.Migrate(ctx, a.pool, a.cfg.Database.MigrationsTable, a.log); err != nil {
		return err
	}
	return job.Migrate(ctx, a.pool, a.log)
}

func (a *app) sender() mailer.Sender {
	if a.cfg.Resend.Enabled() {
		return mailer.New(resend.New(a.cfg.Resend))
	}
	a.log.Warn("RESEND_API_KEY is not set, emails are logged instead of sent")
	return mailer.New(mailer.NewLogSender(a.log))
}

func (a *app) deliveryWorker() (*delivery.Worker, error) {
	opts := []delivery.Option{
		delivery.WithConfig(a.cfg.Delivery),
		delivery.WithLogger(a.log),
	}
	// Without Redis only ticks inside this process are serialised.
	var locker lock.Locker = lock.NewLocal()
	if a.rdb != nil {
		l, err := lock.NewRedis(a.rdb)
		if err != nil {
			return nil, err
		}
		locker = l
	}
	opts = append(opts, delivery.WithLocker(locker))
	if a.metrics != nil {
		m, err := metrics.NewDeliveryMetrics(a.metrics.MeterProvider(), a.metrics.Namespace())
		if err != nil {
			return nil, err
		}
		opts = append(opts, delivery.WithMetrics(m))
	}
	return delivery.NewWorker(a.store, a.sender(), opts...)
}

// producers builds the campaign and hook producers. fanout may be nil.
func (a *app) producers(fanout producer.FanoutScheduler) (*producer.Campaigns, *producer.Hooks, error) {
	resolver, err := segment.NewResolver(
		segment.NewPGDirectory(a.pool, a.cfg.Producer.UsersTable),
		segment.WithLogger(a.log),
	)
	if err != nil {
		return nil, nil, err
	}

	opts := []producer.Option{
		producer.WithLogger(a.log),
		producer.WithChunkSize(a.cfg.Producer.ChunkSize),
		producer.WithPageSize(a.cfg.Producer.FanoutPageSize),
		producer.WithAdminEmail(a.cfg.Producer.AdminEmail),
		producer.WithTemplateSource(a.templates()),
	}
	if fanout != nil {
		opts = append(opts, producer.WithFanout(fanout))
	}

	campaigns, err := producer.NewCampaigns(a.store, resolver, opts...)
	if err != nil {
		return nil, nil, err
	}
	hooks, err := producer.NewHooks(a.store, opts...)
	if err != nil {
		return nil, nil, err
	}
	return campaigns, hooks, nil
}

func (a *app) templates() producer.TemplateSource {
	ttl := a.cfg.Producer.TemplateCacheTTL
	if ttl <= 0 {
		return a.store
	}
	if a.rdb != nil {
		if c, err := cache.NewRedis[queue.Template](a.rdb, "mailpipe:template", ttl); err == nil {
			return cache.NewTemplates(a.store, c)
		}
	}
	return cache.NewTemplates(a.store, cache.NewMemory[queue.Template](ttl, templateCacheSize))
}

// syncer returns nil when no inbox is configured.
func (a *app) syncer() (*inbox.Syncer, error) {
	var reader inbox.Reader
	switch {
	case a.cfg.Inbox.S3.Enabled():
		r, err := inbox.NewS3Reader(a.cfg.Inbox.S3, a.log)
		if err != nil {
			return nil, err
		}
		reader = r
	case a.cfg.Inbox.Dir != "":
		reader = inbox.NewDirReader(a.cfg.Inbox.Dir, a.log)
	default:
		return nil, nil
	}
	return inbox.NewSyncer(a.store, reader, inbox.WithLogger(a.log))
}

func (a *app) checks() health.Checks {
	checks := health.Checks{"database": db.Healthcheck(a.pool)}
	if a.rdb != nil {
		checks["redis"] = redis.Healthcheck(a.rdb)
	}
	return checks
}

func (a *app) metricsHandler() http.Handler {
	if a.metrics == nil {
		return nil
	}
	return a.metrics.Handler()
}
