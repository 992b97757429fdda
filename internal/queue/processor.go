package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/zapflow/dispatch/internal/model"
	"github.com/zapflow/dispatch/internal/store"
)

// Sender delivers one contact's message. The channel receives exactly one
// value, true only when delivery succeeded.
type Sender interface {
	Send(ctx context.Context, contact *model.CampaignContact) <-chan bool
}

// ProcessorConfig holds consumer configuration.
type ProcessorConfig struct {
	// MaxConcurrency bounds in-flight sends for this instance.
	MaxConcurrency int
	// StuckThreshold is the in-flight age past which an item is considered
	// abandoned by a dead worker and returned to pending.
	StuckThreshold time.Duration
	// DeferDelay is how far a deferred item (see Hooks.Validate) is pushed
	// into the future before its next eligibility check.
	DeferDelay time.Duration
	// LatestSendInstant returns the latest instant a send claimed at
	// claimedAt may legitimately begin, accounting for the pre-send delay
	// and any send window. Recovery counts an item as stuck only
	// StuckThreshold past it, so an item waiting out the window overnight
	// is not reclaimed into a duplicate. When nil the claim time is used.
	LatestSendInstant func(claimedAt time.Time) time.Time
}

// Hooks lets a higher layer participate in item processing. Both fields are
// optional.
type Hooks struct {
	// Validate runs after an item is claimed and before dispatch. A non-nil
	// error drops the item: it is removed from in-flight, no send happens,
	// and no error-list entry is recorded. Two sentinels soften this: an
	// error wrapping errItemDeferred returns the item to the pending set
	// re-scored DeferDelay into the future, and one wrapping
	// errValidationUnavailable returns it at its original score so the next
	// sweep retries a check that could not run.
	Validate func(ctx context.Context, item *Item) error
	// OnOutcome runs after an item's terminal outcome has been reconciled.
	OnOutcome func(ctx context.Context, item *Item, delivered bool)
}

// Status is a point-in-time snapshot of the queue.
type Status struct {
	QueueSize            int64 `json:"queue_size"`
	InFlightSize         int64 `json:"in_flight_size"`
	ErrorSize            int64 `json:"error_size"`
	AvailableConcurrency int   `json:"available_concurrency"`
	MaxConcurrency       int   `json:"max_concurrency"`
}

// Processor is the lower-level consumer primitive: it claims due items from
// the pending set into the in-flight list under a concurrency budget,
// dispatches them to the sender, and reconciles each outcome.
type Processor struct {
	store    Store
	contacts store.ContactStore
	sender   Sender
	permits  *Permits
	config   ProcessorConfig
	hooks    Hooks
	log      zerolog.Logger
	now      func() time.Time
	wg       sync.WaitGroup
}

// NewProcessor creates a Processor with a full permit pool.
func NewProcessor(st Store, contacts store.ContactStore, sender Sender, cfg ProcessorConfig, hooks Hooks, log zerolog.Logger) *Processor {
	if cfg.DeferDelay <= 0 {
		cfg.DeferDelay = time.Minute
	}
	return &Processor{
		store:    st,
		contacts: contacts,
		sender:   sender,
		permits:  NewPermits(cfg.MaxConcurrency),
		config:   cfg,
		hooks:    hooks,
		log:      log,
		now:      time.Now,
	}
}

// ProcessQueue runs one consumer sweep: it claims up to the number of
// currently available permits worth of due items and dispatches each on its
// own goroutine. With no permits available the sweep is a no-op; it never
// blocks waiting for capacity. Only a store failure at sweep start aborts the
// sweep, and only for this sweep.
func (p *Processor) ProcessQueue(ctx context.Context) error {
	defer p.publishSizes(ctx)

	available := p.permits.Available()
	if available == 0 {
		p.log.Debug().Msg("no permits available, skipping sweep")
		return nil
	}

	items, err := p.store.DuePending(ctx, p.now(), available)
	if err != nil {
		return fmt.Errorf("read due items: %w", err)
	}

	for _, item := range items {
		if !p.permits.TryAcquire() {
			break
		}

		claimed, err := p.store.MoveToProcessing(ctx, item, p.now())
		if err != nil {
			p.permits.Release()
			p.log.Error().Err(err).Str("item", item.Key()).Msg("failed to claim item")
			continue
		}

		p.wg.Add(1)
		go p.dispatch(ctx, claimed)
	}
	return nil
}

// dispatch processes one claimed item to a terminal outcome. A failure here
// never propagates to other items; the permit is released once the outcome is
// finalized.
func (p *Processor) dispatch(ctx context.Context, item *Item) {
	defer p.wg.Done()
	defer p.permits.Release()

	start := p.now()
	defer func() {
		SendDuration.Observe(p.now().Sub(start).Seconds())
	}()

	log := p.log.With().Str("item", item.Key()).Int("batch", item.BatchNumber).Logger()

	if p.hooks.Validate != nil {
		if err := p.hooks.Validate(ctx, item); err != nil {
			switch {
			case errors.Is(err, errItemDeferred):
				log.Debug().Err(err).Msg("item deferred")
				p.deferItem(ctx, item)
			case errors.Is(err, errValidationUnavailable):
				// Store unavailable: return the item so the next sweep can retry it.
				log.Error().Err(err).Msg("item validation unavailable, returning item to pending")
				p.requeue(ctx, item)
			default:
				log.Error().Err(err).Msg("item failed re-validation, dropping")
				p.removeInFlight(ctx, item)
				ItemsProcessedTotal.WithLabelValues("dropped").Inc()
			}
			return
		}
	}

	contact, err := p.contacts.FindContactWithRelations(ctx, item.ContactID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		log.Debug().Msg("contact no longer exists, dropping item")
		p.removeInFlight(ctx, item)
		ItemsProcessedTotal.WithLabelValues("dropped").Inc()
		return
	case err != nil:
		// Store unavailable: return the item so the next sweep can retry it.
		log.Error().Err(err).Msg("contact lookup failed, returning item to pending")
		p.requeue(ctx, item)
		return
	case contact.Status != model.ContactStatusPending:
		log.Debug().Str("status", string(contact.Status)).Msg("contact no longer pending, dropping item")
		p.removeInFlight(ctx, item)
		ItemsProcessedTotal.WithLabelValues("dropped").Inc()
		return
	}

	delivered := <-p.sender.Send(ctx, contact)
	if !delivered && ctx.Err() != nil {
		// Shutdown interrupted the send. Leave the item in-flight so
		// Shutdown returns it to the pending set instead of error-routing it.
		log.Debug().Msg("send interrupted by shutdown, leaving item in-flight")
		return
	}

	p.removeInFlight(ctx, item)
	if delivered {
		ItemsProcessedTotal.WithLabelValues("sent").Inc()
		log.Info().Msg("item delivered")
	} else {
		ItemsProcessedTotal.WithLabelValues("failed").Inc()
		log.Warn().Msg("item failed, routing to error list")
		entry := &ErrorEntry{Item: item, Reason: "delivery failed after retries", FailedAt: p.now()}
		if err := p.store.PushError(ctx, entry); err != nil {
			log.Error().Err(err).Msg("failed to record error entry")
		}
	}

	if p.hooks.OnOutcome != nil {
		p.hooks.OnOutcome(ctx, item, delivered)
	}
}

// RecoverStuckMessages returns every in-flight item older than the staleness
// threshold to the pending set, re-scored for immediate eligibility. Fresh
// items are left untouched. This is the sole mechanism that heals state after
// a process crash mid-delivery.
func (p *Processor) RecoverStuckMessages(ctx context.Context) (int, error) {
	items, err := p.store.ProcessingItems(ctx)
	if err != nil {
		return 0, fmt.Errorf("read in-flight items: %w", err)
	}

	now := p.now()
	recovered := 0
	for _, item := range items {
		deadline := item.ProcessingStartedAt
		if p.config.LatestSendInstant != nil {
			deadline = p.config.LatestSendInstant(item.ProcessingStartedAt)
		}
		age := now.Sub(deadline)
		if age < p.config.StuckThreshold {
			continue
		}

		p.log.Warn().
			Str("item", item.Key()).
			Dur("age", age).
			Msg("recovering stuck item")

		if err := p.returnToPending(ctx, item, now); err != nil {
			p.log.Error().Err(err).Str("item", item.Key()).Msg("failed to recover stuck item")
			continue
		}
		StuckItemsRecoveredTotal.Inc()
		recovered++
	}
	return recovered, nil
}

// Shutdown unconditionally returns all in-flight items to the pending set so
// no work is lost across a graceful stop. Callers cancel the sweep context
// and wait for dispatches to settle before invoking it.
func (p *Processor) Shutdown(ctx context.Context) error {
	p.wg.Wait()

	items, err := p.store.ProcessingItems(ctx)
	if err != nil {
		return fmt.Errorf("read in-flight items: %w", err)
	}

	now := p.now()
	for _, item := range items {
		if err := p.returnToPending(ctx, item, now); err != nil {
			return err
		}
	}

	p.log.Info().Int("returned", len(items)).Msg("processor shut down")
	return nil
}

// ReplayErrors moves error-list entries back to the pending set for another
// delivery attempt. With an empty keys slice every entry is replayed;
// otherwise only entries whose item key matches. Replay is operator-triggered
// only, never automatic.
func (p *Processor) ReplayErrors(ctx context.Context, keys []string) (int, error) {
	entries, err := p.store.ErrorItems(ctx)
	if err != nil {
		return 0, fmt.Errorf("read error items: %w", err)
	}

	wanted := make(map[string]bool, len(keys))
	for _, k := range keys {
		wanted[k] = true
	}

	now := p.now()
	replayed := 0
	for _, entry := range entries {
		if len(wanted) > 0 && !wanted[entry.Item.Key()] {
			continue
		}

		requeued := *entry.Item
		requeued.ProcessingStartedAt = time.Time{}
		requeued.ScheduledAt = now
		if err := p.store.AddPending(ctx, []ScoredItem{{Item: &requeued, Score: now}}); err != nil {
			return replayed, err
		}
		if err := p.store.RemoveError(ctx, entry); err != nil {
			return replayed, err
		}

		p.log.Info().Str("item", entry.Item.Key()).Msg("error item replayed")
		replayed++
	}
	return replayed, nil
}

// GetStatus returns a snapshot of queue sizes and the concurrency budget.
func (p *Processor) GetStatus(ctx context.Context) (*Status, error) {
	pending, processing, errorCount, err := p.store.Sizes(ctx)
	if err != nil {
		return nil, fmt.Errorf("read queue sizes: %w", err)
	}
	return &Status{
		QueueSize:            pending,
		InFlightSize:         processing,
		ErrorSize:            errorCount,
		AvailableConcurrency: p.permits.Available(),
		MaxConcurrency:       p.permits.Cap(),
	}, nil
}

// returnToPending re-scores an in-flight item for immediate eligibility and
// removes it from the in-flight list.
func (p *Processor) returnToPending(ctx context.Context, item *Item, score time.Time) error {
	requeued := *item
	requeued.ProcessingStartedAt = time.Time{}
	requeued.ScheduledAt = score
	if err := p.store.AddPending(ctx, []ScoredItem{{Item: &requeued, Score: score}}); err != nil {
		return err
	}
	return p.store.RemoveProcessing(ctx, item)
}

// removeInFlight removes an item from the in-flight list, logging rather than
// propagating a failure so reconciliation of other items continues.
func (p *Processor) removeInFlight(ctx context.Context, item *Item) {
	if err := p.store.RemoveProcessing(ctx, item); err != nil {
		p.log.Error().Err(err).Str("item", item.Key()).Msg("failed to remove in-flight item")
	}
}

// deferItem returns a claimed item to the pending set, re-scored DeferDelay
// into the future so a paused campaign's items are not reclaimed every sweep.
func (p *Processor) deferItem(ctx context.Context, item *Item) {
	score := p.now().Add(p.config.DeferDelay)
	requeued := *item
	requeued.ProcessingStartedAt = time.Time{}
	requeued.ScheduledAt = score
	if err := p.store.AddPending(ctx, []ScoredItem{{Item: &requeued, Score: score}}); err != nil {
		p.log.Error().Err(err).Str("item", item.Key()).Msg("failed to defer item")
		return
	}
	p.removeInFlight(ctx, item)
}

// requeue puts a claimed item back on the pending set after an infrastructure
// failure, leaving its original scheduled time as the score.
func (p *Processor) requeue(ctx context.Context, item *Item) {
	requeued := *item
	requeued.ProcessingStartedAt = time.Time{}
	if err := p.store.AddPending(ctx, []ScoredItem{{Item: &requeued, Score: requeued.ScheduledAt}}); err != nil {
		p.log.Error().Err(err).Str("item", item.Key()).Msg("failed to requeue item")
		return
	}
	p.removeInFlight(ctx, item)
}

// publishSizes updates the queue gauges. It runs on every sweep regardless of
// whether any item was processed.
func (p *Processor) publishSizes(ctx context.Context) {
	pending, processing, errorCount, err := p.store.Sizes(ctx)
	if err != nil {
		p.log.Error().Err(err).Msg("failed to read queue sizes for metrics")
		return
	}
	QueueDepth.Set(float64(pending))
	InFlightDepth.Set(float64(processing))
	ErrorDepth.Set(float64(errorCount))
}
