package queue

import "time"

// CampaignStatus is the lifecycle state of a campaign.
type CampaignStatus string

const (
	CampaignSending   CampaignStatus = "sending"
	CampaignCompleted CampaignStatus = "completed"
)

// Campaign is the aggregate summarizing a bulk send.
type Campaign struct {
	CreatedAt    time.Time
	ID           string
	Name         string
	Subject      string
	Segment      string
	TemplateHTML string
	Status       CampaignStatus
	CreatedBy    string
	Stats        CampaignStats
}

// CampaignStats holds the campaign counters.
// Total is the resolved recipient count; Queued counts items actually enqueued
// (recipients without an email are skipped) and drives completion.
type CampaignStats struct {
	Total  int `json:"total"`
	Queued int `json:"queued"`
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
	Opened int `json:"opened"`
}

// Resolved is the number of the campaign's items that reached a terminal state.
func (s CampaignStats) Resolved() int {
	return s.Sent + s.Failed
}

// Done reports whether every queued item has resolved.
func (s CampaignStats) Done() bool {
	return s.Resolved() >= s.Queued
}
