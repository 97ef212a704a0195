package indigobot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerOneTimeReminderFiresOnce(t *testing.T) {
	registry, _ := newTestRegistry(t)
	notifier := &mockNotifier{}
	scheduler := newTestScheduler(t, registry, notifier)

	now := time.Now().UTC()
	id, err := registry.Create(
		"user-1", "channel-1", "one and done", now.Add(-time.Minute), false, "",
	)
	require.NoError(t, err)

	scheduler.checkReminders(context.Background(), now)

	delivered := notifier.deliveredReminders()
	require.Len(t, delivered, 1)
	assert.Equal(t, id, delivered[0].ID)
	assert.Equal(t, "one and done", delivered[0].Message)

	// removed after firing; a second tick delivers nothing
	assert.Equal(t, 0, registry.Len())
	scheduler.checkReminders(context.Background(), now.Add(time.Minute))
	assert.Len(t, notifier.deliveredReminders(), 1)
}

func TestSchedulerFutureReminderDoesNotFire(t *testing.T) {
	registry, _ := newTestRegistry(t)
	notifier := &mockNotifier{}
	scheduler := newTestScheduler(t, registry, notifier)

	now := time.Now().UTC()
	_, err := registry.Create(
		"user-1", "channel-1", "later", now.Add(time.Hour), false, "",
	)
	require.NoError(t, err)

	scheduler.checkReminders(context.Background(), now)
	assert.Empty(t, notifier.deliveredReminders())
	assert.Equal(t, 1, registry.Len())
}

// A recurring reminder's next due time advances from its previous due
// time, not from the tick time, so a late tick doesn't shift the
// schedule.
func TestSchedulerRecurringAdvancesFromDueTime(t *testing.T) {
	registry, _ := newTestRegistry(t)
	notifier := &mockNotifier{}
	scheduler := newTestScheduler(t, registry, notifier)

	now := time.Now().UTC()
	dueAt := now.Add(-10 * time.Minute)
	id, err := registry.Create(
		"user-1", "channel-1", "hourly", dueAt, true, "1h",
	)
	require.NoError(t, err)

	// the tick fires 10 minutes late
	scheduler.checkReminders(context.Background(), now)

	require.Len(t, notifier.deliveredReminders(), 1)
	owned := registry.ListFor("user-1")
	require.Len(t, owned, 1)
	assert.Equal(t, id, owned[0].ID)
	assert.True(
		t,
		owned[0].DueAt.Equal(dueAt.Add(time.Hour)),
		"expected next due %s, got %s", dueAt.Add(time.Hour), owned[0].DueAt,
	)
}

// When several intervals have elapsed, the reminder fires once per
// tick rather than sending a burst of catch-up notifications.
func TestSchedulerRecurringNoCatchUp(t *testing.T) {
	registry, _ := newTestRegistry(t)
	notifier := &mockNotifier{}
	scheduler := newTestScheduler(t, registry, notifier)

	now := time.Now().UTC()
	dueAt := now.Add(-3 * time.Hour)
	id, err := registry.Create(
		"user-1", "channel-1", "hourly", dueAt, true, "1h",
	)
	require.NoError(t, err)

	scheduler.checkReminders(context.Background(), now)
	require.Len(t, notifier.deliveredReminders(), 1)

	// advanced one interval; still in the past, so the next tick
	// fires it again
	owned := registry.ListFor("user-1")
	require.Len(t, owned, 1)
	assert.True(t, owned[0].DueAt.Equal(dueAt.Add(time.Hour)))

	scheduler.checkReminders(context.Background(), now)
	delivered := notifier.deliveredReminders()
	require.Len(t, delivered, 2)
	assert.Equal(t, id, delivered[1].ID)
}

// A recurring reminder whose stored interval no longer parses is left
// in place so the owner can cancel it; the tick carries on.
func TestSchedulerMalformedIntervalLeavesRecord(t *testing.T) {
	registry, _ := newTestRegistry(t)
	notifier := &mockNotifier{}
	scheduler := newTestScheduler(t, registry, notifier)

	now := time.Now().UTC()
	dueAt := now.Add(-time.Minute)
	badID, err := registry.Create(
		"user-1", "channel-1", "broken interval", dueAt, true, "whenever",
	)
	require.NoError(t, err)
	_, err = registry.Create(
		"user-1", "channel-1", "fine", dueAt, false, "",
	)
	require.NoError(t, err)

	scheduler.checkReminders(context.Background(), now)

	// both were delivered, the one-time reminder was removed, and the
	// malformed one is untouched
	assert.Len(t, notifier.deliveredReminders(), 2)
	owned := registry.ListFor("user-1")
	require.Len(t, owned, 1)
	assert.Equal(t, badID, owned[0].ID)
	assert.True(t, owned[0].DueAt.Equal(dueAt))

	// still owner-cancellable
	assert.Equal(t, Cancelled, registry.Cancel(badID, "user-1"))
}

// Delivery failures never block the reminder lifecycle: one-time
// reminders are still removed, recurring ones still advance.
func TestSchedulerDeliveryFailure(t *testing.T) {
	registry, _ := newTestRegistry(t)
	notifier := &mockNotifier{err: errors.New("discord is down")}
	scheduler := newTestScheduler(t, registry, notifier)

	now := time.Now().UTC()
	dueAt := now.Add(-time.Minute)
	_, err := registry.Create(
		"user-1", "channel-1", "one-time", dueAt, false, "",
	)
	require.NoError(t, err)
	recurringID, err := registry.Create(
		"user-1", "channel-1", "recurring", dueAt, true, "1h",
	)
	require.NoError(t, err)

	scheduler.checkReminders(context.Background(), now)

	assert.Len(t, notifier.deliveredReminders(), 2)
	owned := registry.ListFor("user-1")
	require.Len(t, owned, 1)
	assert.Equal(t, recurringID, owned[0].ID)
	assert.True(t, owned[0].DueAt.Equal(dueAt.Add(time.Hour)))
}

func TestSchedulerReadyGating(t *testing.T) {
	registry, _ := newTestRegistry(t)
	notifier := &mockNotifier{}
	scheduler := newTestScheduler(t, registry, notifier)

	now := time.Now().UTC()
	_, err := registry.Create(
		"user-1", "channel-1", "due immediately", now.Add(-time.Minute), false, "",
	)
	require.NoError(t, err)

	assert.Equal(t, SchedulerNotStarted, scheduler.State())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ready := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		scheduler.Run(ctx, ready)
	}()

	// no ticks before the ready signal, even with a due reminder
	assert.Eventually(
		t, func() bool {
			return scheduler.State() == SchedulerWaitingForReady
		}, time.Second, 5*time.Millisecond,
	)
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, notifier.deliveredReminders())

	close(ready)
	assert.Eventually(
		t, func() bool {
			return scheduler.State() == SchedulerRunning
		}, time.Second, 5*time.Millisecond,
	)
	assert.Eventually(
		t, func() bool {
			return len(notifier.deliveredReminders()) == 1
		}, time.Second, 5*time.Millisecond,
	)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for scheduler to stop")
	}
	assert.Equal(t, int64(1), scheduler.RemindersFired())
}

func TestSchedulerStopsBeforeReady(t *testing.T) {
	registry, _ := newTestRegistry(t)
	scheduler := newTestScheduler(t, registry, &mockNotifier{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		scheduler.Run(ctx, make(chan struct{}))
	}()

	assert.Eventually(
		t, func() bool {
			return scheduler.State() == SchedulerWaitingForReady
		}, time.Second, 5*time.Millisecond,
	)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for scheduler to stop")
	}
}
