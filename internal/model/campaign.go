// internal/model/campaign.go
package model

import "time"

// Campaign statuses.
const (
	StatusPending    = "pending"
	StatusScheduled  = "scheduled"
	StatusProcessing = "processing"
	StatusPaused     = "paused"
	StatusCompleted  = "completed"
)

type Campaign struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	MessageTemplate string     `json:"message_template"`
	TotalContacts   int        `json:"total_contacts"`
	InvalidContacts int        `json:"invalid_contacts"`
	Status          string     `json:"status"`
	ScheduleDate    *time.Time `json:"schedule_date,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       *time.Time `json:"updated_at,omitempty"`
}

// Due reports whether a scheduled campaign should start dispatching.
func (c *Campaign) Due(now time.Time) bool {
	return c.Status == StatusScheduled && c.ScheduleDate != nil && !c.ScheduleDate.After(now)
}
