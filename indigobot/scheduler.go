package indigobot

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/time/rate"
)

// SchedulerState tracks where the scheduler is in its lifecycle.
// The transition to SchedulerRunning only happens on an external
// readiness signal - the scheduler never polls for readiness.
type SchedulerState int32

const (
	SchedulerNotStarted SchedulerState = iota
	SchedulerWaitingForReady
	SchedulerRunning
)

func (s SchedulerState) String() string {
	switch s {
	case SchedulerNotStarted:
		return "not_started"
	case SchedulerWaitingForReady:
		return "waiting_for_ready"
	case SchedulerRunning:
		return "running"
	default:
		return "unknown"
	}
}

// ReminderNotifier is the delivery side of a firing reminder - the
// notification sink. Delivery is best-effort: the scheduler never
// couples a reminder's lifecycle to the delivery outcome.
type ReminderNotifier interface {
	DeliverReminder(ctx context.Context, r Reminder) error
}

// Scheduler runs the periodic due-reminder check. On each tick it
// captures the current time, scans the registry for due reminders,
// attempts delivery for each, then applies the resulting removals and
// reschedules as a single batch (one store flush per tick, at most).
//
// A reminder fires at most once per tick. A recurring reminder's next
// due time is its previous due time plus its interval - never "now" -
// so scheduler latency doesn't accumulate drift. If more than one
// interval has elapsed, the advanced due time can still be in the
// past; the reminder simply fires again on the next tick rather than
// "catching up" with multiple sends in one tick.
type Scheduler struct {
	registry *ReminderRegistry
	notifier ReminderNotifier
	config   *SchedulerConfig
	limiter  *rate.Limiter
	logger   *slog.Logger
	state    atomic.Int32

	// metricFired counts delivery attempts across all ticks
	metricFired atomic.Int64
}

func NewScheduler(
	registry *ReminderRegistry,
	notifier ReminderNotifier,
	config *SchedulerConfig,
	logger *slog.Logger,
) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	var limiter *rate.Limiter
	if config.DeliveriesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.DeliveriesPerSecond), 1)
	}
	return &Scheduler{
		registry: registry,
		notifier: notifier,
		config:   config,
		limiter:  limiter,
		logger:   logger.With(loggerNameKey, "scheduler"),
	}
}

// State returns the scheduler's current lifecycle state.
func (s *Scheduler) State() SchedulerState {
	return SchedulerState(s.state.Load())
}

// RemindersFired returns the number of delivery attempts made since
// the scheduler started.
func (s *Scheduler) RemindersFired() int64 {
	return s.metricFired.Load()
}

// Run blocks until ctx is cancelled. No tick runs before a value
// arrives on ready - the host signals readiness once the Discord
// session is up, so the first scan can't fire reminders into a
// connection that doesn't exist yet.
func (s *Scheduler) Run(ctx context.Context, ready <-chan struct{}) {
	s.state.Store(int32(SchedulerWaitingForReady))
	s.logger.Info("waiting for ready signal")

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled before ready signal")
		return
	case <-ready:
		//
	}

	s.state.Store(int32(SchedulerRunning))
	s.logger.Info(
		"scheduler running",
		"check_interval", s.config.CheckInterval,
	)

	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped", "fired_total", s.metricFired.Load())
			return
		case <-ticker.C:
			s.checkReminders(ctx, time.Now().UTC())
		}
	}
}

// checkReminders performs one due-check tick against the given
// reference time.
func (s *Scheduler) checkReminders(ctx context.Context, now time.Time) {
	dueReminders := s.registry.due(now)
	if len(dueReminders) == 0 {
		return
	}

	var removals []string
	reschedules := map[string]time.Time{}

	for _, rem := range dueReminders {
		s.deliver(ctx, rem)

		if !rem.Recurring {
			removals = append(removals, rem.ID)
			continue
		}

		interval, err := parseTimespan(rem.Interval)
		if err != nil {
			// A malformed interval can't crash the tick or block the
			// other due reminders. The record is left in place for
			// manual cleanup via /cancelreminder.
			s.logger.Error(
				"recurring reminder has an unparseable interval, not rescheduling",
				tint.Err(err),
				slog.Group("reminder", reminderLogAttrs(rem)...),
			)
			continue
		}

		// Advance from the old due time, not from now. If the new due
		// time is still in the past, the reminder fires again next tick.
		reschedules[rem.ID] = rem.DueAt.Add(interval)
	}

	s.registry.applyTick(removals, reschedules)
}

// deliver makes a single bounded delivery attempt. Failures are
// logged and swallowed - the requester isn't around at fire time, and
// the reminder's lifecycle moves on regardless.
func (s *Scheduler) deliver(ctx context.Context, rem Reminder) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			s.logger.Warn("delivery rate limiter interrupted", tint.Err(err))
			return
		}
	}

	deliverCtx, cancel := context.WithTimeout(ctx, s.config.DeliveryTimeout)
	defer cancel()

	s.metricFired.Add(1)
	if err := s.notifier.DeliverReminder(deliverCtx, rem); err != nil {
		s.logger.Error(
			"error delivering reminder",
			tint.Err(err),
			slog.Group("reminder", reminderLogAttrs(rem)...),
		)
		return
	}
	s.logger.Info(
		"delivered reminder",
		slog.Group("reminder", reminderLogAttrs(rem)...),
	)
}
