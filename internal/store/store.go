// internal/store/store.go
package store

import (
	"context"

	"github.com/zapblast/zapblast-backend/internal/model"
)

// HistoryCap bounds the global send-history feed.
const HistoryCap = 1000

// Store is the durable status storage the dispatch pipeline writes through
// to. Message-status writes are idempotent overwrites keyed by
// (campaignID, phone): the final outcome for a contact wins.
type Store interface {
	PutCampaign(ctx context.Context, c *model.Campaign) error
	GetCampaign(ctx context.Context, id string) (*model.Campaign, error)
	ListCampaigns(ctx context.Context) ([]model.Campaign, error)

	// Contact lists are retained so scheduled campaigns and crash
	// recovery can re-render messages with full contact data.
	PutContacts(ctx context.Context, campaignID string, contacts []model.Contact) error
	GetContacts(ctx context.Context, campaignID string) ([]model.Contact, error)

	PutMessageStatus(ctx context.Context, rec model.MessageRecord) error
	GetMessageStatuses(ctx context.Context, campaignID string) ([]model.MessageRecord, error)

	AppendHistory(ctx context.Context, entry model.HistoryEntry) error
	// ListHistory returns up to limit entries, most recent first.
	ListHistory(ctx context.Context, limit int) ([]model.HistoryEntry, error)

	Ping(ctx context.Context) error
	Close() error
}
