package indigobot

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/lmittmann/tint"
)

func newTestLogger(t testing.TB) *slog.Logger {
	t.Helper()
	lvl := &slog.LevelVar{}
	lvl.Set(slog.LevelDebug)
	return slog.New(
		tint.NewHandler(
			os.Stdout, &tint.Options{
				Level:     lvl,
				AddSource: true,
			},
		),
	).With("test", t.Name())
}

// newTestRegistry returns a loaded registry backed by a snapshot file
// in a temp dir, along with the snapshot path.
func newTestRegistry(t testing.TB) (*ReminderRegistry, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reminders.json")
	logger := newTestLogger(t)
	registry := NewReminderRegistry(NewReminderStore(path, logger), logger)
	if err := registry.Load(); err != nil {
		t.Fatalf("error loading registry: %v", err)
	}
	return registry, path
}

// mockNotifier records delivered reminders, optionally failing every
// delivery with err.
type mockNotifier struct {
	mu        sync.Mutex
	delivered []Reminder
	err       error
}

func (m *mockNotifier) DeliverReminder(_ context.Context, r Reminder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delivered = append(m.delivered, r)
	return m.err
}

func (m *mockNotifier) deliveredReminders() []Reminder {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Reminder{}, m.delivered...)
}

func newTestScheduler(
	t testing.TB,
	registry *ReminderRegistry,
	notifier ReminderNotifier,
) *Scheduler {
	t.Helper()
	return NewScheduler(
		registry,
		notifier,
		&SchedulerConfig{
			CheckInterval:   10 * time.Millisecond,
			DeliveryTimeout: time.Second,
		},
		newTestLogger(t),
	)
}
