package queue

import (
	"fmt"
	"maps"
	"time"
)

// Status is the lifecycle state of a queue item.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further worker action is possible.
func (s Status) Terminal() bool {
	return s == StatusSent || s == StatusFailed
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusSent, StatusFailed:
		return true
	}
	return false
}

const (
	// PriorityTransactional is used for single-recipient triggers (signup, contact reply).
	PriorityTransactional = 1
	// PriorityBulk is used for campaign fan-out.
	PriorityBulk = 5

	// MaxRetries is the failed-attempt ceiling after which an item becomes failed.
	MaxRetries = 3

	// MaxBatchWrite is the store's atomic multi-document write limit.
	MaxBatchWrite = 500
)

// Item is one email to be delivered.
type Item struct {
	CreatedAt   time.Time
	NextRetryAt *time.Time
	SentAt      *time.Time
	LeaseUntil  *time.Time
	Metadata    map[string]string

	ID         string
	To         string
	Subject    string
	HTML       string
	Text       string
	Status     Status
	LastError  string
	CampaignID string
	MessageID  string
	Response   string
	LeaseToken string

	Priority   int
	RetryCount int
	// Seq is the insertion sequence assigned by the store; last dispatch tie-break.
	Seq int64
}

// Due reports whether a pending item may be picked up at now.
func (it *Item) Due(now time.Time) bool {
	if it.Status != StatusPending {
		return false
	}
	return it.NextRetryAt == nil || !it.NextRetryAt.After(now)
}

// Clone returns a deep copy of the item.
func (it *Item) Clone() *Item {
	if it == nil {
		return nil
	}
	c := *it
	c.NextRetryAt = cloneTime(it.NextRetryAt)
	c.SentAt = cloneTime(it.SentAt)
	c.LeaseUntil = cloneTime(it.LeaseUntil)
	if it.Metadata != nil {
		c.Metadata = maps.Clone(it.Metadata)
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Validate checks the fields a producer must set before insertion.
func (it *Item) Validate() error {
	switch {
	case it == nil:
		return ErrInvalidItem
	case it.ID == "":
		return fmt.Errorf("%w: missing id", ErrInvalidItem)
	case it.To == "":
		return fmt.Errorf("%w: %s: missing recipient", ErrInvalidItem, it.ID)
	case it.Status != StatusPending:
		return fmt.Errorf("%w: %s: new items must be pending, got %q", ErrInvalidItem, it.ID, it.Status)
	case it.RetryCount != 0:
		return fmt.Errorf("%w: %s: new items must have zero retries", ErrInvalidItem, it.ID)
	}
	return nil
}
