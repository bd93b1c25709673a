package queue

import "time"

// LogStatus is the outcome recorded in an EmailLog row.
type LogStatus string

const (
	LogSent   LogStatus = "sent"
	LogFailed LogStatus = "failed"
	// LogRetrying is only written when per-attempt retry logging is enabled.
	LogRetrying LogStatus = "retrying"
)

// EmailLog is an append-only audit record of a delivery attempt outcome.
type EmailLog struct {
	Timestamp  time.Time
	ID         string
	EmailID    string
	To         string
	Subject    string
	Status     LogStatus
	Error      string
	CampaignID string
}

// LogFilter narrows ListLogs. Empty fields match everything.
type LogFilter struct {
	EmailID    string
	CampaignID string
	Limit      int
}

// Match reports whether the entry satisfies the filter.
func (f LogFilter) Match(e *EmailLog) bool {
	if f.EmailID != "" && e.EmailID != f.EmailID {
		return false
	}
	if f.CampaignID != "" && e.CampaignID != f.CampaignID {
		return false
	}
	return true
}
