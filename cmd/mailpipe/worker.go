package main

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/mailpipe/internal/api"
	"github.com/dmitrymomot/mailpipe/pkg/delivery"
	"github.com/dmitrymomot/mailpipe/pkg/health"
	"github.com/dmitrymomot/mailpipe/pkg/inbox"
	"github.com/dmitrymomot/mailpipe/pkg/job"
	"github.com/dmitrymomot/mailpipe/pkg/producer"
)

// runWorker runs the delivery side: scheduled ticks, campaign fan-out,
// deferred welcome mail and inbox sync.
func runWorker(ctx context.Context) error {
	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	g, ctx := errgroup.WithContext(ctx)
	checks := a.checks()
	run, err := buildWork(a, checks)
	if err != nil {
		return err
	}

	if a.cfg.Metrics.Addr != "" {
		probes := api.NewProbes(a.store, checks, a.metricsHandler(), a.log)
		g.Go(func() error {
			return serveHTTP(ctx, a, a.cfg.Metrics.Addr, probes)
		})
	}
	g.Go(func() error {
		return run(ctx)
	})
	return g.Wait()
}

// work runs the delivery side until ctx is done.
func work(ctx context.Context, a *app) error {
	run, err := buildWork(a, nil)
	if err != nil {
		return err
	}
	return run(ctx)
}

// buildWork wires the delivery side. With jobs enabled it runs on River;
// otherwise the worker's own cron loop drives ticks. checks, when not nil,
// receives the job manager's health check.
func buildWork(a *app, checks health.Checks) (func(context.Context) error, error) {
	w, err := a.deliveryWorker()
	if err != nil {
		return nil, err
	}
	syncer, err := a.syncer()
	if err != nil {
		return nil, err
	}

	if !a.cfg.Jobs.Enabled {
		return func(ctx context.Context) error {
			return runLoops(ctx, a, w, syncer)
		}, nil
	}

	enq, err := job.NewEnqueuer(a.pool, a.log)
	if err != nil {
		return nil, err
	}
	campaigns, hooks, err := a.producers(enq)
	if err != nil {
		return nil, err
	}

	opts := []job.Option{
		job.WithLogger(a.log),
		job.WithMaxWorkers(a.cfg.Jobs.Workers),
		job.WithScheduledTask(job.NewDeliveryTick(w, a.cfg.Delivery.Schedule)),
		job.WithTask[producer.FanoutCursor](job.NewCampaignFanout(campaigns, enq, a.log)),
		job.WithTask[producer.User](job.NewWelcome(hooks)),
	}
	if syncer != nil {
		opts = append(opts, job.WithScheduledTask(job.NewInboxSync(syncer, a.cfg.Inbox.Schedule)))
	}

	mgr, err := job.NewManager(a.pool, opts...)
	if err != nil {
		return nil, err
	}
	if checks != nil {
		checks["jobs"] = job.Healthcheck(mgr)
	}
	a.log.Info("job manager configured", slog.Any("tasks", mgr.Tasks()))
	return mgr.Run, nil
}

// runLoops drives delivery and inbox sync without River.
func runLoops(ctx context.Context, a *app, w *delivery.Worker, syncer *inbox.Syncer) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.Run(ctx)
	})

	if syncer != nil {
		c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
		if _, err := c.AddFunc(a.cfg.Inbox.Schedule, func() {
			if _, err := syncer.Sync(ctx); err != nil {
				a.log.ErrorContext(ctx, "inbox sync failed", slog.Any("error", err))
			}
		}); err != nil {
			return err
		}
		g.Go(func() error {
			c.Start()
			<-ctx.Done()
			<-c.Stop().Done()
			return nil
		})
	}
	return g.Wait()
}
