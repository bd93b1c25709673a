// Command mailpipe runs the email delivery pipeline: the producer API, the
// delivery worker and their maintenance commands.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/urfave/cli/v3"
)

var version = "dev"

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Value:   "text",
		Usage:   "Output format: 'text' or 'json'",
	}
}

func main() {
	cmd := &cli.Command{
		Name:    "mailpipe",
		Usage:   "Email delivery pipeline",
		Version: version,
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Start the producer HTTP API",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "with-worker",
						Usage: "Also run the delivery worker in this process",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runServe(ctx, cmd.Bool("with-worker"))
				},
			},
			{
				Name:  "worker",
				Usage: "Run scheduled delivery ticks, campaign fan-out and inbox sync",
				Action: func(ctx context.Context, _ *cli.Command) error {
					return runWorker(ctx)
				},
			},
			{
				Name:  "tick",
				Usage: "Run a single delivery tick and exit",
				Flags: []cli.Flag{formatFlag()},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runTick(ctx, cmd.String("format"))
				},
			},
			{
				Name:  "sync-inbox",
				Usage: "Pull unseen inbound mail into the reply store once",
				Flags: []cli.Flag{formatFlag()},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runSyncInbox(ctx, cmd.String("format"))
				},
			},
			{
				Name:  "migrate",
				Usage: "Apply the queue and job schemas",
				Action: func(ctx context.Context, _ *cli.Command) error {
					return runMigrate(ctx)
				},
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cmd.Run(ctx, os.Args)
	stop()
	sentry.Flush(2 * time.Second)

	if err != nil {
		slog.Error("application error", slog.Any("error", err))
		os.Exit(1)
	}
}
