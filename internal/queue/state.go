package queue

import (
	"github.com/google/uuid"

	"github.com/zapflow/dispatch/internal/model"
)

// CampaignState is the per-campaign bookkeeping record, created at enqueue
// time and advanced on every item completion. It is the only place that knows
// whether a campaign is done.
//
// ProcessedContacts is monotonically non-decreasing and never exceeds
// TotalContacts; Status moves active -> completed when they meet.
type CampaignState struct {
	CampaignID        uuid.UUID            `json:"campaign_id"`
	TenantID          uuid.UUID            `json:"tenant_id"`
	CreatedBy         uuid.UUID            `json:"created_by"`
	Status            model.CampaignStatus `json:"status"`
	TotalContacts     int64                `json:"total_contacts"`
	ProcessedContacts int64                `json:"processed_contacts"`
}
