package queue

import "time"

// ReplyStatusUnread marks a synced reply nobody has opened yet.
const ReplyStatusUnread = "unread"

// Reply is an inbound message synced from the mailbox.
type Reply struct {
	ReceivedAt time.Time
	ID         string
	From       string
	Subject    string
	Body       string
	RawID      string
	Status     string
}
