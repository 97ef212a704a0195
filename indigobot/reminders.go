package indigobot

import (
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/lmittmann/tint"
)

// CancelOutcome is the result of a cancellation attempt.
type CancelOutcome int

const (
	// CancelNotFound means no reminder exists with the given ID.
	CancelNotFound CancelOutcome = iota

	// CancelForbidden means the reminder exists but belongs to
	// someone other than the requester. Nothing is mutated.
	CancelForbidden

	// Cancelled means the reminder was removed and the store updated.
	Cancelled
)

func (o CancelOutcome) String() string {
	switch o {
	case CancelNotFound:
		return "not_found"
	case CancelForbidden:
		return "forbidden"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ReminderRegistry owns the authoritative in-memory reminder mapping,
// loaded once at startup and flushed to the ReminderStore after every
// mutation. IDs come from a strictly monotonic counter persisted with
// the snapshot - a freed number is never handed out again, so a
// cancel-then-create sequence can't collide with a live reminder.
//
// The registry is safe for concurrent use: interaction handlers and
// the scheduler run on separate goroutines.
type ReminderRegistry struct {
	mu        sync.RWMutex
	reminders map[string]*Reminder
	nextID    int64
	store     *ReminderStore
	logger    *slog.Logger
}

func NewReminderRegistry(store *ReminderStore, logger *slog.Logger) *ReminderRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReminderRegistry{
		reminders: map[string]*Reminder{},
		nextID:    1,
		store:     store,
		logger:    logger.With(loggerNameKey, "reminder_registry"),
	}
}

// Load populates the registry from the backing store. Call once,
// before the scheduler or any command handler touches the registry.
func (r *ReminderRegistry) Load() error {
	reminders, nextID, err := r.store.Load()
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reminders = reminders
	r.nextID = nextID
	r.logger.Info("loaded reminders", "count", len(reminders), "next_id", nextID)
	return nil
}

// Create inserts a new reminder and flushes the store. The assigned ID
// is returned. A save failure leaves the reminder active in memory
// (the bot keeps working in a degraded mode) and is reported so the
// caller can log it.
func (r *ReminderRegistry) Create(
	userID string,
	channelID string,
	message string,
	dueAt time.Time,
	recurring bool,
	interval string,
) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := strconv.FormatInt(r.nextID, 10)
	r.nextID++

	r.reminders[id] = &Reminder{
		ID:        id,
		UserID:    userID,
		ChannelID: channelID,
		Message:   message,
		DueAt:     dueAt.UTC(),
		Recurring: recurring,
		Interval:  interval,
	}
	return id, r.persistLocked()
}

// ListFor returns the given user's reminders, sorted by ID for a
// stable display order.
func (r *ReminderRegistry) ListFor(userID string) []Reminder {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var owned []Reminder
	for _, rem := range r.reminders {
		if rem.UserID == userID {
			owned = append(owned, *rem)
		}
	}
	sort.Slice(
		owned, func(i, j int) bool {
			a, aErr := strconv.ParseInt(owned[i].ID, 10, 64)
			b, bErr := strconv.ParseInt(owned[j].ID, 10, 64)
			if aErr != nil || bErr != nil {
				return owned[i].ID < owned[j].ID
			}
			return a < b
		},
	)
	return owned
}

// Cancel removes the reminder with the given ID if it's owned by the
// requesting user. Only the Cancelled outcome mutates anything.
func (r *ReminderRegistry) Cancel(id string, userID string) CancelOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	rem, ok := r.reminders[id]
	if !ok {
		return CancelNotFound
	}
	if rem.UserID != userID {
		return CancelForbidden
	}
	delete(r.reminders, id)
	if err := r.persistLocked(); err != nil {
		r.logger.Error("error persisting after cancel", tint.Err(err), "id", id)
	}
	return Cancelled
}

// Len returns the total number of reminders, across all owners.
func (r *ReminderRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.reminders)
}

// due returns copies of every reminder whose due time is at or before
// now (the non-strict comparison means arbitrarily overdue reminders
// still fire).
func (r *ReminderRegistry) due(now time.Time) []Reminder {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var dueReminders []Reminder
	for _, rem := range r.reminders {
		if !rem.DueAt.After(now) {
			dueReminders = append(dueReminders, *rem)
		}
	}
	return dueReminders
}

// applyTick applies one scheduler tick's worth of mutations in a
// single batch: removals of fired one-time reminders, and due-time
// advances for fired recurring reminders. The store is flushed once,
// and only if something actually changed. Reminders cancelled while
// the tick was delivering are skipped.
func (r *ReminderRegistry) applyTick(
	removals []string,
	reschedules map[string]time.Time,
) {
	r.mu.Lock()
	defer r.mu.Unlock()

	changed := false
	for _, id := range removals {
		if _, ok := r.reminders[id]; ok {
			delete(r.reminders, id)
			changed = true
		}
	}
	for id, dueAt := range reschedules {
		rem, ok := r.reminders[id]
		if !ok {
			continue
		}
		rem.DueAt = dueAt.UTC()
		changed = true
	}

	if !changed {
		return
	}
	if err := r.persistLocked(); err != nil {
		r.logger.Error("error persisting after tick", tint.Err(err))
	}
}

// persistLocked flushes the full snapshot. Callers must hold the
// write lock.
func (r *ReminderRegistry) persistLocked() error {
	return r.store.Save(r.reminders, r.nextID)
}
