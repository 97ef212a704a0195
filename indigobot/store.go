package indigobot

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/lmittmann/tint"
)

// Reminder is the sole persisted entity: an owner-scoped notification
// with a due time and optional recurrence. The JSON field names match
// the on-disk snapshot layout.
type Reminder struct {
	// ID is the registry key; it's not serialized as a field since
	// the snapshot keys the reminder map by ID.
	ID string `json:"-"`

	// UserID identifies the owner. Only the owner may cancel.
	UserID string `json:"user_id"`

	// ChannelID is the channel notified when the reminder fires.
	ChannelID string `json:"channel_id"`

	// Message is the user-supplied reminder text.
	Message string `json:"message"`

	// DueAt is the next firing time, always UTC.
	DueAt time.Time `json:"time"`

	// Recurring indicates the reminder reschedules itself after firing.
	Recurring bool `json:"recurring"`

	// Interval is the original human-readable span string for
	// recurring reminders. It's re-parsed at every firing.
	Interval string `json:"interval,omitempty"`
}

func (r Reminder) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", r.ID),
		slog.String("user_id", r.UserID),
		slog.String("channel_id", r.ChannelID),
		slog.Time("due_at", r.DueAt),
		slog.Bool("recurring", r.Recurring),
		slog.String("interval", r.Interval),
	)
}

// storeSnapshot is the on-disk layout: the reminder mapping plus the
// persisted monotonic ID counter (so a freed reminder number is never
// reused, even across restarts).
type storeSnapshot struct {
	NextID    int64                `json:"next_id"`
	Reminders map[string]*Reminder `json:"reminders"`
}

// ReminderStore persists the reminder set as a JSON snapshot file.
// It's pure data access - no scheduling logic lives here. The full
// snapshot is rewritten on every save.
type ReminderStore struct {
	path   string
	logger *slog.Logger
}

func NewReminderStore(path string, logger *slog.Logger) *ReminderStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReminderStore{
		path:   path,
		logger: logger.With(loggerNameKey, "reminder_store"),
	}
}

// Load reads the snapshot file, returning the reminder mapping and the
// next reminder ID to allocate.
//
// A missing file is a first run: the containing directory is created
// and an empty snapshot written immediately. An unreadable or corrupt
// file degrades to an empty store (logged loudly) rather than failing
// startup - the bot stays up, reminders start fresh.
//
// Files written by older versions hold the bare id->reminder mapping
// with no counter; those are read as-is with the counter derived from
// the highest numeric ID.
func (s *ReminderStore) Load() (map[string]*Reminder, int64, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Info("no reminders file yet, bootstrapping", "path", s.path)
		empty := map[string]*Reminder{}
		if saveErr := s.Save(empty, 1); saveErr != nil {
			return empty, 1, saveErr
		}
		return empty, 1, nil
	}
	if err != nil {
		s.logger.Error("unable to read reminders file", tint.Err(err), "path", s.path)
		return map[string]*Reminder{}, 1, nil
	}

	var snapshot storeSnapshot
	if unmarshalErr := json.Unmarshal(data, &snapshot); unmarshalErr == nil && snapshot.Reminders != nil {
		setReminderIDs(snapshot.Reminders)
		nextID := snapshot.NextID
		if derived := highestReminderID(snapshot.Reminders) + 1; derived > nextID {
			nextID = derived
		}
		if nextID < 1 {
			nextID = 1
		}
		return snapshot.Reminders, nextID, nil
	}

	// Legacy layout: the top-level object IS the id->reminder mapping
	legacy := map[string]*Reminder{}
	if unmarshalErr := json.Unmarshal(data, &legacy); unmarshalErr != nil {
		s.logger.Error(
			"reminders file is corrupt, starting with an empty store",
			tint.Err(unmarshalErr),
			"path", s.path,
		)
		return map[string]*Reminder{}, 1, nil
	}
	setReminderIDs(legacy)
	s.logger.Info(
		"loaded legacy reminders file, counter derived from highest id",
		"path", s.path,
		"count", len(legacy),
	)
	return legacy, highestReminderID(legacy) + 1, nil
}

// Save rewrites the full snapshot. The write goes to a temp file in
// the same directory followed by a rename, so a crash mid-write can't
// leave a truncated snapshot behind.
func (s *ReminderStore) Save(reminders map[string]*Reminder, nextID int64) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("error creating reminders directory: %w", err)
	}

	data, err := json.MarshalIndent(
		storeSnapshot{NextID: nextID, Reminders: reminders},
		"",
		"    ",
	)
	if err != nil {
		return fmt.Errorf("error marshaling reminders: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".reminders-*.json")
	if err != nil {
		return fmt.Errorf("error creating temp reminders file: %w", err)
	}
	tmpName := tmp.Name()

	if _, writeErr := tmp.Write(data); writeErr != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("error writing reminders file: %w", writeErr)
	}
	if closeErr := tmp.Close(); closeErr != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("error closing reminders file: %w", closeErr)
	}
	if renameErr := os.Rename(tmpName, s.path); renameErr != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("error replacing reminders file: %w", renameErr)
	}
	return nil
}

// setReminderIDs copies each map key onto its reminder record
func setReminderIDs(reminders map[string]*Reminder) {
	for id, r := range reminders {
		r.ID = id
	}
}

// highestReminderID returns the largest numeric reminder ID present,
// or 0 when the mapping is empty. Non-numeric IDs are ignored.
func highestReminderID(reminders map[string]*Reminder) int64 {
	var highest int64
	for id := range reminders {
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			continue
		}
		if n > highest {
			highest = n
		}
	}
	return highest
}
