// Package scheduler resolves the instant at which a message send may run and
// executes the send closure at that instant. It only answers "when"; retry
// policy lives with the sender.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Config holds the business-hours window applied to scheduled sends.
type Config struct {
	// BusinessHoursEnabled clamps send instants into [StartHour, EndHour)
	// local time when set. When unset, sends run at now + delay.
	BusinessHoursEnabled bool
	// StartHour and EndHour bound the window in whole hours, 0-24.
	StartHour int
	EndHour   int
	// Location is the deployment's local time zone. Defaults to time.Local.
	Location *time.Location
}

// Task is the unit of work executed at the resolved instant. It reports
// whether the message was delivered; a non-nil error is surfaced to the
// Outcome, never swallowed.
type Task func(ctx context.Context) (bool, error)

// Outcome is the result of a scheduled task.
type Outcome struct {
	Delivered bool
	Err       error
}

// DelayScheduler computes business-hours-safe send instants and runs tasks
// at them.
type DelayScheduler struct {
	config Config
	log    zerolog.Logger
	now    func() time.Time
}

// New creates a DelayScheduler. A nil Location falls back to time.Local.
func New(cfg Config, log zerolog.Logger) *DelayScheduler {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &DelayScheduler{
		config: cfg,
		log:    log,
		now:    time.Now,
	}
}

// Schedule arranges for task to run at the resolved instant for the given
// base delay. The returned channel receives exactly one Outcome: the task's
// result, or a cancellation error if ctx ends before the instant arrives.
func (s *DelayScheduler) Schedule(ctx context.Context, baseDelay time.Duration, task Task) <-chan Outcome {
	now := s.now()
	at := s.ResolveSendInstant(now, baseDelay)
	wait := at.Sub(now)

	s.log.Debug().
		Dur("base_delay", baseDelay).
		Time("send_at", at).
		Msg("send scheduled")

	out := make(chan Outcome, 1)
	go func() {
		timer := time.NewTimer(wait)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			out <- Outcome{Err: ctx.Err()}
			return
		case <-timer.C:
		}

		delivered, err := task(ctx)
		out <- Outcome{Delivered: delivered, Err: err}
	}()
	return out
}

// ResolveSendInstant returns the instant a send with the given base delay
// may run: now + delay, clamped into the business-hours window when enforcement
// is enabled.
func (s *DelayScheduler) ResolveSendInstant(now time.Time, baseDelay time.Duration) time.Time {
	candidate := now.Add(baseDelay)
	if !s.config.BusinessHoursEnabled {
		return candidate
	}
	return resolveBusinessHourInstant(candidate.In(s.config.Location), s.config.StartHour, s.config.EndHour)
}

// resolveBusinessHourInstant clamps a candidate instant into the [startHour,
// endHour) window of its own time zone. An instant before the window moves to
// the window start the same day; an instant at or past the window end moves
// to the window start of the next day.
func resolveBusinessHourInstant(candidate time.Time, startHour, endHour int) time.Time {
	h := candidate.Hour()
	switch {
	case h >= startHour && h < endHour:
		return candidate
	case h < startHour:
		return time.Date(candidate.Year(), candidate.Month(), candidate.Day(),
			startHour, 0, 0, 0, candidate.Location())
	default:
		next := candidate.AddDate(0, 0, 1)
		return time.Date(next.Year(), next.Month(), next.Day(),
			startHour, 0, 0, 0, candidate.Location())
	}
}
