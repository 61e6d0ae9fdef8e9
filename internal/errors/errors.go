// internal/errors/errors.go
package appErrors

import "fmt"

// ErrCampaignNotFound is returned when a campaign id has no stored campaign.
type ErrCampaignNotFound struct {
	CampaignID string
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign %s not found", e.CampaignID)
}

func NewCampaignNotFound(id string) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

// ErrValidation covers bad campaign input; it is surfaced to the caller and
// never retried.
type ErrValidation struct {
	Reason string
}

func (e *ErrValidation) Error() string {
	return e.Reason
}

func NewValidation(format string, args ...any) error {
	return &ErrValidation{Reason: fmt.Sprintf(format, args...)}
}
