package model

import "github.com/google/uuid"

// ContactStatus represents the delivery state of a campaign contact.
// The dispatch pipeline only ever advances pending -> sent or pending -> failed.
type ContactStatus string

const (
	ContactStatusPending ContactStatus = "pending"
	ContactStatusSent    ContactStatus = "sent"
	ContactStatusFailed  ContactStatus = "failed"
)

// Customer is the recipient behind a campaign contact.
type Customer struct {
	ID       uuid.UUID
	TenantID uuid.UUID
	Name     string
	Phone    string
}

// CampaignContact is the per-recipient unit of work within a campaign.
// Campaign and Customer are loaded relations; either may be nil when the
// contact was fetched without them.
type CampaignContact struct {
	ID         uuid.UUID
	CampaignID uuid.UUID
	Status     ContactStatus
	Campaign   *Campaign
	Customer   *Customer
}
