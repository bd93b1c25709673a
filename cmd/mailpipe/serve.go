package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/mailpipe/internal/api"
	"github.com/dmitrymomot/mailpipe/pkg/job"
	"github.com/dmitrymomot/mailpipe/pkg/producer"
)

const (
	readHeaderTimeout = 5 * time.Second
	idleTimeout       = 60 * time.Second
	maxHeaderBytes    = 1 << 20
)

// runServe starts the producer API. withWorker also runs the delivery side
// in the same process.
func runServe(ctx context.Context, withWorker bool) error {
	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	var enq *job.Enqueuer
	if a.cfg.Jobs.Enabled && (a.cfg.Producer.ResumableFanout || a.cfg.Producer.AsyncWelcome) {
		if enq, err = job.NewEnqueuer(a.pool, a.log); err != nil {
			return err
		}
	}

	var fanout producer.FanoutScheduler
	if enq != nil && a.cfg.Producer.ResumableFanout {
		fanout = enq
	}
	campaigns, hooks, err := a.producers(fanout)
	if err != nil {
		return err
	}
	notices, err := producer.NewNotices(a.store,
		producer.WithLogger(a.log),
		producer.WithChunkSize(a.cfg.Producer.ChunkSize),
	)
	if err != nil {
		return err
	}

	deps := api.Deps{
		Store:     a.store,
		Campaigns: campaigns,
		Hooks:     hooks,
		Notices:   notices,
		Checks:    a.checks(),
		Metrics:   a.metricsHandler(),
	}
	if enq != nil && a.cfg.Producer.AsyncWelcome {
		deps.Welcome = enq
	}

	g, ctx := errgroup.WithContext(ctx)
	handler := api.New(ctx, deps, api.Config{
		APIToken:       a.cfg.HTTP.APIToken,
		RequestTimeout: a.cfg.HTTP.WriteTimeout,
		RequestRate:    a.cfg.HTTP.RequestRate,
		RequestBurst:   a.cfg.HTTP.RequestBurst,
	}, a.log)

	g.Go(func() error {
		return serveHTTP(ctx, a, a.cfg.HTTP.Addr, handler)
	})
	if withWorker {
		g.Go(func() error {
			return work(ctx, a)
		})
	}
	return g.Wait()
}

// serveHTTP serves handler on addr until ctx is done, then shuts down within
// the configured timeout.
func serveHTTP(ctx context.Context, a *app, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       a.cfg.HTTP.ReadTimeout,
		WriteTimeout:      a.cfg.HTTP.WriteTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
		MaxHeaderBytes:    maxHeaderBytes,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("server starting", slog.String("address", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.log.Info("shutting down server", slog.String("address", addr))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func closeApp(a *app) {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := a.close(ctx); err != nil {
		a.log.Error("shutdown completed with errors", slog.Any("error", err))
	}
}
