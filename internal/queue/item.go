// Package queue implements the durable campaign dispatch queue: a Redis-backed,
// time-ordered set of pending sends, an in-flight list for crash recovery, an
// error list for operator replay, and the tenant-validated enqueue and consumer
// loop on top of them.
package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Item is one pending send, serialized into the durable ordered set.
type Item struct {
	CampaignID          uuid.UUID `json:"campaign_id"`
	ContactID           uuid.UUID `json:"contact_id"`
	TenantID            uuid.UUID `json:"tenant_id"`
	ScheduledAt         time.Time `json:"scheduled_at"`
	ProcessingStartedAt time.Time `json:"processing_started_at,omitempty"`
	BatchNumber         int       `json:"batch_number"`
	CreatedBy           uuid.UUID `json:"created_by"`
}

// Key identifies the unit of work. A (campaign, contact) pair appears in at
// most one of the pending set and the in-flight list at a time.
func (i *Item) Key() string {
	return i.CampaignID.String() + ":" + i.ContactID.String()
}

// Encode serializes the item for storage. Field order is fixed by the struct,
// so an unmodified item re-encodes to the same bytes it was decoded from.
func (i *Item) Encode() (string, error) {
	data, err := json.Marshal(i)
	if err != nil {
		return "", fmt.Errorf("marshal queue item %s: %w", i.Key(), err)
	}
	return string(data), nil
}

// DecodeItem deserializes an item from its stored form.
func DecodeItem(data string) (*Item, error) {
	var item Item
	if err := json.Unmarshal([]byte(data), &item); err != nil {
		return nil, fmt.Errorf("unmarshal queue item: %w", err)
	}
	return &item, nil
}

// ErrorEntry wraps a failed item with failure metadata for the error list.
type ErrorEntry struct {
	Item     *Item     `json:"item"`
	Reason   string    `json:"reason"`
	FailedAt time.Time `json:"failed_at"`
}

// Redis key layout. Pending is a sorted set scored by scheduled time,
// processing and errors are lists, the rest are plain keys.
const (
	pendingKey      = "dispatch:queue:pending"
	processingKey   = "dispatch:queue:processing"
	errorsKey       = "dispatch:queue:errors"
	consumerLockKey = "dispatch:queue:consumer-lock"
)

// campaignStateKey returns the key of a campaign's state hash.
func campaignStateKey(campaignID uuid.UUID) string {
	return "dispatch:campaign:" + campaignID.String()
}

// enqueueMarkerKey returns the idempotent-enqueue marker key for a campaign.
func enqueueMarkerKey(campaignID uuid.UUID) string {
	return "dispatch:campaign:" + campaignID.String() + ":enqueued"
}
