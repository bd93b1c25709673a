package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrymomot/mailpipe/pkg/delivery"
	"github.com/dmitrymomot/mailpipe/pkg/inbox"
)

var errNoInbox = errors.New("neither INBOX_S3_BUCKET nor INBOX_DIR is set")

func runMigrate(ctx context.Context) error {
	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	if a.cfg.Database.AutoMigrate {
		return nil
	}
	return a.migrate(ctx)
}

// runTick runs a single delivery tick and prints its result.
func runTick(ctx context.Context, format string) error {
	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	w, err := a.deliveryWorker()
	if err != nil {
		return err
	}
	res, err := w.Tick(ctx)
	if err != nil {
		return err
	}
	return printTick(os.Stdout, format, res)
}

func printTick(out io.Writer, format string, res *delivery.TickResult) error {
	if format == "json" {
		return json.NewEncoder(out).Encode(res)
	}
	if res.Skipped {
		_, err := fmt.Fprintf(out, "tick %s skipped: another worker holds the lock\n", res.TickID)
		return err
	}
	_, err := fmt.Fprintf(out, "tick %s: claimed=%d sent=%d retried=%d failed=%d stale=%d released=%d",
		res.TickID, res.Claimed, res.Sent, res.Retried, res.Failed, res.Stale, res.Released)
	if err != nil {
		return err
	}
	if len(res.Completed) > 0 {
		_, err = fmt.Fprintf(out, " completed=%s", strings.Join(res.Completed, ","))
		if err != nil {
			return err
		}
	}
	_, err = fmt.Fprintln(out)
	return err
}

// runSyncInbox pulls unseen inbound mail once.
func runSyncInbox(ctx context.Context, format string) error {
	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	syncer, err := a.syncer()
	if err != nil {
		return err
	}
	if syncer == nil {
		return errNoInbox
	}
	res, err := syncer.Sync(ctx)
	if err != nil {
		return err
	}
	return printSync(os.Stdout, format, res)
}

func printSync(out io.Writer, format string, res inbox.SyncResult) error {
	if format == "json" {
		return json.NewEncoder(out).Encode(res)
	}
	_, err := fmt.Fprintf(out, "inbox: fetched=%d stored=%d failed=%d\n", res.Fetched, res.Stored, res.Failed)
	return err
}
