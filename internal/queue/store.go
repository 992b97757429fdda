package queue

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/zapflow/dispatch/internal/model"
)

// ScoredItem pairs an item with its position in the pending set.
type ScoredItem struct {
	Item  *Item
	Score time.Time
}

// Store is the narrow interface over the durable queue structures. All
// mutations are single-key atomic operations except MoveToProcessing, which
// removes from pending and pushes to in-flight in one transaction so a crash
// mid-processing always leaves evidence in exactly one place.
type Store interface {
	// AddPending adds items to the pending ordered set at their scores.
	AddPending(ctx context.Context, items []ScoredItem) error
	// DuePending returns up to limit pending items whose score is at or
	// before now, in ascending score order. limit <= 0 means no limit.
	DuePending(ctx context.Context, now time.Time, limit int) ([]*Item, error)
	// RemovePending removes an item from the pending set.
	RemovePending(ctx context.Context, item *Item) error
	// MoveToProcessing atomically removes the item from pending and pushes
	// it, stamped with startedAt, onto the in-flight list. It returns the
	// stamped item, whose encoding identifies it in the in-flight list.
	MoveToProcessing(ctx context.Context, item *Item, startedAt time.Time) (*Item, error)
	// RemoveProcessing removes an item from the in-flight list.
	RemoveProcessing(ctx context.Context, item *Item) error
	// ProcessingItems returns all items currently on the in-flight list.
	ProcessingItems(ctx context.Context) ([]*Item, error)

	// PushError appends a failed item to the error list.
	PushError(ctx context.Context, entry *ErrorEntry) error
	// ErrorItems returns all entries on the error list.
	ErrorItems(ctx context.Context) ([]*ErrorEntry, error)
	// RemoveError removes an entry from the error list.
	RemoveError(ctx context.Context, entry *ErrorEntry) error

	// HasEnqueueMarker reports whether a campaign's idempotency marker exists.
	HasEnqueueMarker(ctx context.Context, campaignID uuid.UUID) (bool, error)
	// SetEnqueueMarker sets a campaign's idempotency marker with the given expiry.
	SetEnqueueMarker(ctx context.Context, campaignID uuid.UUID, ttl time.Duration) error

	// CreateCampaignState persists a fresh campaign state record.
	CreateCampaignState(ctx context.Context, state *CampaignState) error
	// CampaignState loads a campaign's state record, or nil if absent.
	CampaignState(ctx context.Context, campaignID uuid.UUID) (*CampaignState, error)
	// IncrementProcessed atomically advances the processed counter and
	// returns the new value.
	IncrementProcessed(ctx context.Context, campaignID uuid.UUID) (int64, error)
	// SetCampaignStatus updates the status field of a campaign's state.
	SetCampaignStatus(ctx context.Context, campaignID uuid.UUID, status model.CampaignStatus) error

	// TryLock attempts the cross-process consumer lock with a set-if-absent
	// write. It reports whether this instance now holds the lock.
	TryLock(ctx context.Context, ttl time.Duration) (bool, error)
	// Unlock releases the consumer lock if this instance still holds it.
	Unlock(ctx context.Context) error

	// Sizes returns the pending, in-flight, and error list lengths.
	Sizes(ctx context.Context) (pending, processing, errors int64, err error)
}
