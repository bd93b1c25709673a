package queue

import (
	"context"
	"time"
)

// Store is the queue persistence contract.
// Implementations must make CreateItems, Claim, ReleaseExpired and Commit atomic.
type Store interface {
	// CreateItems atomically inserts up to MaxBatchWrite items.
	// Items receive a store sequence and, when CreatedAt is zero, a store timestamp.
	CreateItems(ctx context.Context, items []*Item) error
	GetItem(ctx context.Context, id string) (*Item, error)

	CreateCampaign(ctx context.Context, c *Campaign) error
	GetCampaign(ctx context.Context, id string) (*Campaign, error)
	// AddCampaignRecipients adds to Stats.Total and Stats.Queued. A positive
	// queued delta reopens a completed campaign; a negative one (items that
	// failed to enqueue) may complete it.
	AddCampaignRecipients(ctx context.Context, id string, total, queued int) error

	// Claim moves up to Limit due pending items to in_progress under a lease,
	// returning them in dispatch order.
	Claim(ctx context.Context, p ClaimParams) ([]*Item, error)
	// ReleaseExpired returns in_progress items whose lease ended at or before now to pending.
	ReleaseExpired(ctx context.Context, now time.Time) (int, error)
	// Commit applies every resolution of a tick and its audit rows in one atomic write.
	Commit(ctx context.Context, c TickCommit) (CommitResult, error)

	ListLogs(ctx context.Context, f LogFilter) ([]*EmailLog, error)
	CountByStatus(ctx context.Context) (map[Status]int, error)

	SaveReply(ctx context.Context, r *Reply) error
	GetReply(ctx context.Context, id string) (*Reply, error)

	// Template returns a stored template by id or ErrTemplateNotFound.
	Template(ctx context.Context, id string) (*Template, error)
	SaveTemplate(ctx context.Context, t *Template) error
}

// ClaimParams configures a claim.
type ClaimParams struct {
	Now        time.Time
	LeaseUntil time.Time
	Token      string
	Limit      int
}

// Outcome is the result of one delivery attempt.
type Outcome string

const (
	OutcomeSent   Outcome = "sent"
	OutcomeRetry  Outcome = "retry"
	OutcomeFailed Outcome = "failed"
)

// Status maps an outcome to the item status it produces.
func (o Outcome) Status() Status {
	switch o {
	case OutcomeSent:
		return StatusSent
	case OutcomeFailed:
		return StatusFailed
	default:
		return StatusPending
	}
}

// Resolution is the worker's decision for one claimed item.
// It is applied only while the item is still held under LeaseToken.
type Resolution struct {
	SentAt      *time.Time
	NextRetryAt *time.Time
	// Log is appended together with the item update, or not at all.
	Log        *EmailLog
	ItemID     string
	LeaseToken string
	LastError  string
	MessageID  string
	Response   string
	CampaignID string
	Outcome    Outcome
	RetryCount int
}

// TickCommit is everything a tick writes back.
type TickCommit struct {
	Resolutions []Resolution
}

// CommitResult reports how many resolutions were applied and how many were
// dropped because the lease was lost.
type CommitResult struct {
	Applied int
	Stale   int
	// Completed lists campaigns that moved to completed in this commit.
	Completed []string
}
