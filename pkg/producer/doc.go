// Package producer turns triggers into queue items.
//
// Every producer converges on the same item shape: status pending, zero
// retries, a priority (1 for single-recipient transactional mail, 5 for
// campaign fan-out) and a body whose {{name}} and {{email}} placeholders were
// replaced literally for the recipient.
//
// Campaigns resolves a segment, records the campaign and writes its items in
// chunks of at most 400, below the store's 500-item atomic write limit.
// Recipients without an email address are skipped and not counted. When the
// segment policy caps the recipient list, the number of deferred members is
// logged and, if a FanoutScheduler is configured, the remainder is enqueued
// page by page through Continue.
//
// Hooks builds the signup welcome mail, contact form notifications and admin
// replies to inbound messages.
package producer
