// Package queue defines the durable email work queue: queue items, campaigns,
// the append-only delivery log and the storage contract shared by producers
// and the delivery worker.
//
// # State machine
//
// Every item starts as [StatusPending]. The delivery worker claims it
// ([StatusInProgress], internal), attempts delivery and resolves it:
//
//	pending -> in_progress -> sent     (terminal)
//	pending -> in_progress -> pending  (retry, retryCount+1, nextRetryAt set)
//	pending -> in_progress -> failed   (terminal, retryCount reached MaxRetries)
//
// A claimed item whose lease expires is returned to pending by the reaper
// without touching its retry count.
//
// # Ordering
//
// Items are dispatched by priority ascending, then creation time ascending,
// then store insertion sequence. See [Less].
//
// # Ownership
//
// Producers only create items and campaigns. Only the delivery worker mutates
// status, retry, error and lease fields after creation, and it does so through
// a single atomic [Store.Commit] per tick.
package queue
