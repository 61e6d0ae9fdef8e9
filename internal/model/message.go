// internal/model/message.go
package model

import "time"

// Message record statuses.
const (
	MessagePending = "pending"
	MessageSent    = "sent"
	MessageFailed  = "failed"
)

// MessageRecord is the durable per-contact outcome of a campaign. There is
// one logical record per (campaign, phone) pair; a later write for the same
// pair overwrites the earlier one.
type MessageRecord struct {
	CampaignID string    `json:"campaign_id"`
	Phone      string    `json:"phone"`
	Status     string    `json:"status"`
	DeliveryID string    `json:"delivery_id,omitempty"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// HistoryEntry is one line of the global send history feed.
type HistoryEntry struct {
	CampaignID string    `json:"campaign_id"`
	Phone      string    `json:"phone"`
	Status     string    `json:"status"`
	DeliveryID string    `json:"delivery_id,omitempty"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
