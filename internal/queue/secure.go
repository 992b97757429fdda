package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zapflow/dispatch/internal/model"
	"github.com/zapflow/dispatch/internal/store"
)

var (
	// ErrCampaignNotFound is returned when an enqueue names a campaign that
	// does not exist.
	ErrCampaignNotFound = errors.New("queue: campaign not found")
	// ErrTenantAccessDenied is returned when a campaign's owning tenant does
	// not match the caller's tenant.
	ErrTenantAccessDenied = errors.New("queue: tenant access denied")
)

// errItemDeferred marks a claimed item that must return to the pending set
// instead of being dropped (e.g. its campaign is paused).
var errItemDeferred = errors.New("queue: item deferred")

// errValidationUnavailable marks a claimed item whose re-validation could not
// run because the entity store was unreachable. The item goes back to the
// pending set untouched so the next sweep can retry it.
var errValidationUnavailable = errors.New("queue: validation unavailable")

// SecureConfig holds enqueue and consumer-loop configuration.
type SecureConfig struct {
	// BatchSize is the fixed number of contacts per batch.
	BatchSize int
	// Shuffle randomizes contact processing order at enqueue time.
	Shuffle bool
	// ItemSpacing is the score gap between consecutive items, pacing the
	// drain of a freshly enqueued campaign.
	ItemSpacing time.Duration
	// MarkerTTL is the lifetime of the idempotent-enqueue marker.
	MarkerTTL time.Duration
	// LockTTL is the expiry of the cross-process consumer lock.
	LockTTL time.Duration
}

// SecureQueue adds tenant safety and campaign-level bookkeeping on top of the
// Processor's primitives: enqueue is idempotent and tenant-checked, the
// consumer loop runs on at most one process across the fleet, and every item
// outcome advances the campaign's state record.
type SecureQueue struct {
	store     Store
	data      store.Store
	processor *Processor
	config    SecureConfig
	log       zerolog.Logger
	now       func() time.Time
}

// NewSecureQueue creates a SecureQueue and its underlying Processor.
func NewSecureQueue(st Store, data store.Store, sender Sender, pcfg ProcessorConfig, cfg SecureConfig, log zerolog.Logger) *SecureQueue {
	q := &SecureQueue{
		store:  st,
		data:   data,
		config: cfg,
		log:    log,
		now:    time.Now,
	}
	q.processor = NewProcessor(st, data, sender, pcfg, Hooks{
		Validate:  q.validateItem,
		OnOutcome: q.recordOutcome,
	}, log)
	return q
}

// Processor exposes the underlying consumer primitive for recovery, shutdown,
// status, and error replay.
func (q *SecureQueue) Processor() *Processor {
	return q.processor
}

// EnqueueCampaign fans a campaign out into one queue item per pending
// contact. The call is idempotent: while the campaign's enqueue marker is
// alive a second call is silently ignored. Campaigns that are not active, or
// have no pending contacts, are a no-op. A tenant mismatch aborts with
// ErrTenantAccessDenied before any state is touched.
func (q *SecureQueue) EnqueueCampaign(ctx context.Context, campaignID, tenantID, createdBy uuid.UUID) error {
	campaign, err := q.data.FindCampaign(ctx, campaignID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrCampaignNotFound, campaignID)
		}
		return fmt.Errorf("resolve campaign %s: %w", campaignID, err)
	}
	if campaign.TenantID != tenantID {
		q.log.Warn().
			Stringer("campaign_id", campaignID).
			Stringer("caller_tenant", tenantID).
			Stringer("owner_tenant", campaign.TenantID).
			Msg("cross-tenant enqueue rejected")
		return fmt.Errorf("%w: campaign %s", ErrTenantAccessDenied, campaignID)
	}

	marked, err := q.store.HasEnqueueMarker(ctx, campaignID)
	if err != nil {
		return err
	}
	if marked {
		q.log.Debug().Stringer("campaign_id", campaignID).Msg("campaign already enqueued, ignoring")
		return nil
	}

	if campaign.Status != model.CampaignStatusActive {
		q.log.Debug().
			Stringer("campaign_id", campaignID).
			Str("status", string(campaign.Status)).
			Msg("campaign not active, nothing to enqueue")
		return nil
	}

	contacts, err := q.data.FindPendingContacts(ctx, campaignID)
	if err != nil {
		return fmt.Errorf("load pending contacts for campaign %s: %w", campaignID, err)
	}
	if len(contacts) == 0 {
		q.log.Debug().Stringer("campaign_id", campaignID).Msg("campaign has no pending contacts")
		return nil
	}

	// Batch numbers are fixed by fetch order before any shuffling, so the
	// batch-size partition of the campaign is deterministic.
	batchNumbers := AssignBatchNumbers(len(contacts), q.config.BatchSize)
	items := make([]*Item, len(contacts))
	for i, contact := range contacts {
		items[i] = &Item{
			CampaignID:  campaignID,
			ContactID:   contact.ID,
			TenantID:    campaign.TenantID,
			BatchNumber: batchNumbers[i],
			CreatedBy:   createdBy,
		}
	}

	if q.config.Shuffle {
		shuffleItems(items, nil)
	}

	base := q.now()
	scored := make([]ScoredItem, len(items))
	for i, item := range items {
		item.ScheduledAt = base.Add(time.Duration(i) * q.config.ItemSpacing)
		scored[i] = ScoredItem{Item: item, Score: item.ScheduledAt}
	}
	if err := q.store.AddPending(ctx, scored); err != nil {
		return err
	}

	if err := q.store.CreateCampaignState(ctx, &CampaignState{
		CampaignID:    campaignID,
		TenantID:      campaign.TenantID,
		CreatedBy:     createdBy,
		Status:        model.CampaignStatusActive,
		TotalContacts: int64(len(contacts)),
	}); err != nil {
		return err
	}

	if err := q.store.SetEnqueueMarker(ctx, campaignID, q.config.MarkerTTL); err != nil {
		return err
	}

	ItemsEnqueuedTotal.Add(float64(len(items)))
	q.log.Info().
		Stringer("campaign_id", campaignID).
		Int("contacts", len(contacts)).
		Int("batches", batchNumbers[len(batchNumbers)-1]).
		Bool("shuffled", q.config.Shuffle).
		Msg("campaign enqueued")
	return nil
}

// ProcessMessageQueue runs one consumer sweep under the cross-process lock.
// If another instance holds the lock the call returns immediately; across a
// fleet, only one consumer loop runs at a time.
func (q *SecureQueue) ProcessMessageQueue(ctx context.Context) error {
	acquired, err := q.store.TryLock(ctx, q.config.LockTTL)
	if err != nil {
		return err
	}
	if !acquired {
		q.log.Debug().Msg("consumer lock held elsewhere, skipping sweep")
		return nil
	}
	defer func() {
		if err := q.store.Unlock(ctx); err != nil {
			q.log.Error().Err(err).Msg("failed to release consumer lock")
		}
	}()

	return q.processor.ProcessQueue(ctx)
}

// validateItem re-checks tenant and campaign access for a claimed item. The
// enqueue-time check already passed; this defends against state that changed
// while the item sat in the queue.
func (q *SecureQueue) validateItem(ctx context.Context, item *Item) error {
	campaign, err := q.data.FindCampaign(ctx, item.CampaignID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrCampaignNotFound, item.CampaignID)
		}
		return fmt.Errorf("%w: re-resolve campaign %s: %w", errValidationUnavailable, item.CampaignID, err)
	}
	if campaign.TenantID != item.TenantID {
		q.log.Warn().
			Str("item", item.Key()).
			Stringer("item_tenant", item.TenantID).
			Stringer("owner_tenant", campaign.TenantID).
			Msg("cross-tenant queue item rejected")
		return fmt.Errorf("%w: campaign %s", ErrTenantAccessDenied, item.CampaignID)
	}
	if campaign.Status != model.CampaignStatusActive {
		// Paused campaigns keep their items; they simply stop being dequeued
		// until reactivation or marker expiry.
		return fmt.Errorf("%w: campaign %s is %s", errItemDeferred, item.CampaignID, campaign.Status)
	}
	return nil
}

// recordOutcome advances the contact and campaign records after an item
// reached a terminal outcome.
func (q *SecureQueue) recordOutcome(ctx context.Context, item *Item, delivered bool) {
	status := model.ContactStatusFailed
	if delivered {
		status = model.ContactStatusSent
	}
	if err := q.data.UpdateContactStatus(ctx, item.ContactID, status); err != nil {
		q.log.Error().Err(err).Str("item", item.Key()).Msg("failed to update contact status")
	}

	processed, err := q.store.IncrementProcessed(ctx, item.CampaignID)
	if err != nil {
		q.log.Error().Err(err).Str("item", item.Key()).Msg("failed to advance campaign progress")
		return
	}

	state, err := q.store.CampaignState(ctx, item.CampaignID)
	if err != nil || state == nil {
		q.log.Error().Err(err).Stringer("campaign_id", item.CampaignID).Msg("failed to load campaign state")
		return
	}

	if processed >= state.TotalContacts && state.Status == model.CampaignStatusActive {
		if err := q.store.SetCampaignStatus(ctx, item.CampaignID, model.CampaignStatusCompleted); err != nil {
			q.log.Error().Err(err).Stringer("campaign_id", item.CampaignID).Msg("failed to complete campaign")
			return
		}
		q.log.Info().
			Stringer("campaign_id", item.CampaignID).
			Int64("contacts", state.TotalContacts).
			Msg("campaign completed")
	}
}
