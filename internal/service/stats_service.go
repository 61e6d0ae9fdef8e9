// internal/service/stats_service.go
package service

import (
	"context"
	"math"
	"time"

	appErrors "github.com/zapblast/zapblast-backend/internal/errors"
	"github.com/zapblast/zapblast-backend/internal/model"
	"github.com/zapblast/zapblast-backend/internal/phone"
	"github.com/zapblast/zapblast-backend/internal/queue"
)

// DashboardStats aggregates queue, campaign and message counters for the
// operator dashboard.
type DashboardStats struct {
	Queue     queue.Stats    `json:"queue"`
	Campaigns CampaignCounts `json:"campaigns"`
	Messages  MessageTotals  `json:"messages"`
	System    SystemInfo     `json:"system"`
}

type CampaignCounts struct {
	Total     int `json:"total"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Scheduled int `json:"scheduled"`
	Paused    int `json:"paused"`
}

type MessageTotals struct {
	Total       int     `json:"total"`
	Sent        int     `json:"sent"`
	Failed      int     `json:"failed"`
	Pending     int     `json:"pending"`
	SuccessRate float64 `json:"success_rate"`
}

type SystemInfo struct {
	MessagesPerSecond int     `json:"messages_per_second"`
	UptimeSeconds     float64 `json:"uptime_seconds"`
}

var startedAt = time.Now()

// Dashboard walks every campaign's records to build global totals. The
// queue counters come straight from the dispatcher snapshot.
func (s *CampaignService) Dashboard(ctx context.Context, ratePerSecond int) (*DashboardStats, error) {
	campaigns, err := s.store.ListCampaigns(ctx)
	if err != nil {
		return nil, err
	}

	out := &DashboardStats{
		Queue: s.dispatcher.Stats(),
		System: SystemInfo{
			MessagesPerSecond: ratePerSecond,
			UptimeSeconds:     time.Since(startedAt).Seconds(),
		},
	}
	out.Campaigns.Total = len(campaigns)

	for _, c := range campaigns {
		switch c.Status {
		case model.StatusProcessing:
			out.Campaigns.Active++
		case model.StatusCompleted:
			out.Campaigns.Completed++
		case model.StatusScheduled:
			out.Campaigns.Scheduled++
		case model.StatusPaused:
			out.Campaigns.Paused++
		}

		messages, err := s.store.GetMessageStatuses(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		for _, m := range messages {
			out.Messages.Total++
			switch m.Status {
			case model.MessageSent:
				out.Messages.Sent++
			case model.MessageFailed:
				out.Messages.Failed++
			default:
				out.Messages.Pending++
			}
		}
	}
	out.Messages.SuccessRate = successRate(out.Messages.Sent, out.Messages.Total)
	return out, nil
}

// QueueStats exposes the dispatcher's counter snapshot.
func (s *CampaignService) QueueStats() queue.Stats {
	return s.dispatcher.Stats()
}

// History returns the most recent send outcomes, newest first.
func (s *CampaignService) History(ctx context.Context, limit int) ([]model.HistoryEntry, error) {
	return s.store.ListHistory(ctx, limit)
}

// TestSend pushes one message straight through the configured provider,
// bypassing the queue. Used by the operator smoke-test endpoint.
func (s *CampaignService) TestSend(ctx context.Context, rawPhone, text string) (string, string, error) {
	canonical, err := phone.Normalize(rawPhone)
	if err != nil {
		return "", "", appErrors.NewValidation("invalid phone number %q", rawPhone)
	}
	deliveryID, err := s.sender.Send(ctx, canonical, text)
	if err != nil {
		return "", canonical, err
	}
	return deliveryID, canonical, nil
}

// ContactValidation is the per-contact result of a validation request.
type ContactValidation struct {
	model.Contact
	IsValid   bool   `json:"is_valid"`
	Canonical string `json:"canonical,omitempty"`
	Formatted string `json:"formatted,omitempty"`
}

// ValidateContacts normalizes a batch without creating anything.
func ValidateContacts(contacts []model.Contact) []ContactValidation {
	out := make([]ContactValidation, 0, len(contacts))
	for _, c := range contacts {
		v := ContactValidation{Contact: c}
		if canonical, err := phone.Normalize(c.Phone); err == nil {
			v.IsValid = true
			v.Canonical = canonical
			v.Formatted = phone.Format(canonical)
		}
		out = append(out, v)
	}
	return out
}

// successRate is sent/total as a percentage rounded to two decimals,
// zero when nothing was attempted.
func successRate(sent, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(sent)/float64(total)*100*100) / 100
}
