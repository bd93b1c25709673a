// Package delivery drains the email queue.
//
// A Worker tick returns expired leases to pending, claims up to BatchSize due
// items in dispatch order under a fresh lease token, sends them one by one
// through a mailer.Sender and writes every outcome back in a single
// queue.Store Commit. A failing item never stops the rest of the batch.
//
// Failed attempts increment RetryCount and push NextRetryAt forward by
// RetryDelay; the attempt that reaches MaxRetries marks the item failed and
// appends its only failure log row. Sent items get a log row and bump their
// campaign's counters in the same commit.
//
// Ticks run from Run on a cron schedule, from a River periodic job, or once
// from the command line. With a Locker configured only one process ticks at
// a time.
package delivery
