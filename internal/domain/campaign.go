package domain

import (
	"time"
)

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignDraft   CampaignStatus = "draft"
	CampaignSending CampaignStatus = "sending"
	CampaignSent    CampaignStatus = "sent"
	CampaignFailed  CampaignStatus = "failed"
)

// Valid reports whether s is one of the known campaign states.
func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignDraft, CampaignSending, CampaignSent, CampaignFailed:
		return true
	}
	return false
}

// Campaign is a single outbound bulk-email send job with one subject/content pair.
type Campaign struct {
	ID             string         `json:"id" db:"id"`
	OwnerID        string         `json:"owner_id" db:"owner_id"`
	TemplateID     *string        `json:"template_id" db:"template_id"`
	Name           string         `json:"name" db:"name"`
	Subject        string         `json:"subject" db:"subject"`
	Content        string         `json:"content" db:"content"`
	Status         CampaignStatus `json:"status" db:"status"`
	SendAt         *time.Time     `json:"send_at" db:"send_at"`
	SentAt         *time.Time     `json:"sent_at" db:"sent_at"`
	RecipientCount *int           `json:"recipient_count" db:"recipient_count"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at" db:"updated_at"`
}

// IsTerminal returns true if the campaign is in a final state.
func (c *Campaign) IsTerminal() bool {
	return c.Status == CampaignSent || c.Status == CampaignFailed
}

// ContentLocked reports whether content edits and deletion are forbidden.
// Once a campaign leaves draft for sending, its content is what recipients got.
func (c *Campaign) ContentLocked() bool {
	return c.Status == CampaignSending || c.Status == CampaignSent
}
