// Package sender personalizes campaign messages and delivers them through the
// outbound transport, retrying transient failures with a fixed pause between
// attempts.
package sender

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"github.com/zapflow/dispatch/internal/model"
	"github.com/zapflow/dispatch/internal/scheduler"
	"github.com/zapflow/dispatch/internal/transport"
)

// Config holds retry and delay configuration for the sender.
type Config struct {
	// MaxRetries is the total number of transport attempts per send.
	MaxRetries int
	// RetryDelay is the fixed pause between consecutive failed attempts.
	RetryDelay time.Duration
	// MinSendDelay and MaxSendDelay bound the random per-contact delay
	// handed to the scheduler on the async path.
	MinSendDelay time.Duration
	MaxSendDelay time.Duration
}

// RetryingSender delivers one contact's message with bounded retries.
type RetryingSender struct {
	transport transport.Transport
	scheduler *scheduler.DelayScheduler
	config    Config
	log       zerolog.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

// New creates a RetryingSender.
func New(tr transport.Transport, sched *scheduler.DelayScheduler, cfg Config, log zerolog.Logger) *RetryingSender {
	return &RetryingSender{
		transport: tr,
		scheduler: sched,
		config:    cfg,
		log:       log,
		sleep:     sleepCtx,
	}
}

// Send delivers the contact's message asynchronously: a delay is drawn
// uniformly from [MinSendDelay, MaxSendDelay] and the actual delivery runs at
// the business-hours-safe instant the scheduler resolves for it. The returned
// channel receives exactly one value, true only when delivery succeeded.
//
// Contacts failing the validation gate resolve to false immediately, with no
// transport or scheduler interaction.
func (s *RetryingSender) Send(ctx context.Context, contact *model.CampaignContact) <-chan bool {
	result := make(chan bool, 1)

	if !validate(contact) {
		s.log.Debug().Msg("contact rejected by validation gate")
		result <- false
		return result
	}

	delay := s.pickDelay()
	outcomes := s.scheduler.Schedule(ctx, delay, func(ctx context.Context) (bool, error) {
		return s.deliver(ctx, contact)
	})

	go func() {
		out := <-outcomes
		if out.Err != nil {
			s.log.Error().Err(out.Err).
				Stringer("contact_id", contact.ID).
				Msg("scheduled send failed")
			result <- false
			return
		}
		result <- out.Delivered
	}()
	return result
}

// SendNow delivers the contact's message synchronously, skipping the random
// delay and the scheduler entirely.
func (s *RetryingSender) SendNow(ctx context.Context, contact *model.CampaignContact) bool {
	if !validate(contact) {
		s.log.Debug().Msg("contact rejected by validation gate")
		return false
	}
	delivered, err := s.deliver(ctx, contact)
	if err != nil {
		s.log.Error().Err(err).
			Stringer("contact_id", contact.ID).
			Msg("send aborted")
		return false
	}
	return delivered
}

// deliver attempts the transport call up to MaxRetries times with a fixed
// pause between failed attempts. It returns true on the first success and
// false with a nil error once attempts are exhausted; the error is non-nil
// only when the context ends mid-delivery.
func (s *RetryingSender) deliver(ctx context.Context, contact *model.CampaignContact) (bool, error) {
	body := Personalize(contact.Campaign.Template.Content, contact.Customer.Name)
	phone := contact.Customer.Phone

	for attempt := 1; attempt <= s.config.MaxRetries; attempt++ {
		res, err := s.transport.SendMessage(ctx, phone, body)
		if err == nil && res.Success {
			s.log.Info().
				Stringer("contact_id", contact.ID).
				Str("message_id", res.MessageID).
				Int("attempt", attempt).
				Msg("message delivered")
			return true, nil
		}

		evt := s.log.Warn().
			Stringer("contact_id", contact.ID).
			Int("attempt", attempt).
			Int("max_retries", s.config.MaxRetries)
		if err != nil {
			evt.Err(err).Msg("delivery attempt errored")
		} else {
			evt.Str("reason", res.Error).Msg("delivery attempt rejected by gateway")
		}

		if attempt < s.config.MaxRetries {
			if err := s.sleep(ctx, s.config.RetryDelay); err != nil {
				return false, err
			}
		}
	}
	return false, nil
}

// pickDelay draws a delay uniformly at random from [MinSendDelay, MaxSendDelay].
func (s *RetryingSender) pickDelay() time.Duration {
	min, max := s.config.MinSendDelay, s.config.MaxSendDelay
	if max <= min {
		return min
	}
	return min + rand.N(max-min+1)
}

// validate is the gate in front of every send: a contact missing its
// customer, phone number, campaign, or template content is rejected without
// any side effects.
func validate(contact *model.CampaignContact) bool {
	if contact == nil {
		return false
	}
	if contact.Customer == nil || contact.Customer.Phone == "" {
		return false
	}
	if contact.Campaign == nil || contact.Campaign.Template == nil {
		return false
	}
	return contact.Campaign.Template.Content != ""
}

// sleepCtx pauses for d or until ctx ends, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
