package model

import "github.com/google/uuid"

// CampaignStatus represents the lifecycle state of a campaign.
type CampaignStatus string

const (
	CampaignStatusActive    CampaignStatus = "active"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusCompleted CampaignStatus = "completed"
	CampaignStatusFailed    CampaignStatus = "failed"
)

// MessageTemplate holds the message text sent to every contact of a campaign.
// Placeholder tokens of the form {{nome}} are substituted per recipient at
// send time.
type MessageTemplate struct {
	ID      uuid.UUID
	Content string
}

// Campaign pairs a message template with a set of recipients owned by one tenant.
type Campaign struct {
	ID       uuid.UUID
	TenantID uuid.UUID
	Name     string
	Status   CampaignStatus
	Template *MessageTemplate
}
