package indigobot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReminderRegistryCreate(t *testing.T) {
	registry, path := newTestRegistry(t)

	dueAt := time.Now().Add(time.Hour)
	id, err := registry.Create(
		"user-1",
		"channel-1",
		"take out the trash",
		dueAt,
		false,
		"",
	)
	require.NoError(t, err)
	assert.Equal(t, "1", id)
	assert.Equal(t, 1, registry.Len())

	// a new registry sees the persisted reminder
	logger := newTestLogger(t)
	reloaded := NewReminderRegistry(NewReminderStore(path, logger), logger)
	require.NoError(t, reloaded.Load())
	assert.Equal(t, 1, reloaded.Len())

	owned := reloaded.ListFor("user-1")
	require.Len(t, owned, 1)
	assert.Equal(t, "1", owned[0].ID)
	assert.Equal(t, "take out the trash", owned[0].Message)
	assert.Equal(t, time.UTC, owned[0].DueAt.Location())
}

func TestReminderRegistrySequentialIDs(t *testing.T) {
	registry, _ := newTestRegistry(t)

	dueAt := time.Now().Add(time.Hour)
	for i, expected := range []string{"1", "2", "3"} {
		id, err := registry.Create(
			"user-1",
			"channel-1",
			"reminder",
			dueAt.Add(time.Duration(i)*time.Minute),
			false,
			"",
		)
		require.NoError(t, err)
		assert.Equal(t, expected, id)
	}
}

// Cancelling a reminder must not make its ID available again - a
// stale "cancel 2" from a user can't hit a different, newer reminder.
func TestReminderRegistryNeverReusesIDs(t *testing.T) {
	registry, path := newTestRegistry(t)
	dueAt := time.Now().Add(time.Hour)

	id1, err := registry.Create("user-1", "channel-1", "first", dueAt, false, "")
	require.NoError(t, err)
	id2, err := registry.Create("user-1", "channel-1", "second", dueAt, false, "")
	require.NoError(t, err)

	require.Equal(t, Cancelled, registry.Cancel(id1, "user-1"))
	require.Equal(t, Cancelled, registry.Cancel(id2, "user-1"))

	id3, err := registry.Create("user-1", "channel-1", "third", dueAt, false, "")
	require.NoError(t, err)
	assert.Equal(t, "3", id3)

	// and the counter survives a restart
	logger := newTestLogger(t)
	reloaded := NewReminderRegistry(NewReminderStore(path, logger), logger)
	require.NoError(t, reloaded.Load())
	id4, err := reloaded.Create("user-1", "channel-1", "fourth", dueAt, false, "")
	require.NoError(t, err)
	assert.Equal(t, "4", id4)
}

func TestReminderRegistryListForIsolation(t *testing.T) {
	registry, _ := newTestRegistry(t)
	dueAt := time.Now().Add(time.Hour)

	_, err := registry.Create("user-1", "channel-1", "mine", dueAt, false, "")
	require.NoError(t, err)
	_, err = registry.Create("user-2", "channel-1", "theirs", dueAt, false, "")
	require.NoError(t, err)
	_, err = registry.Create("user-1", "channel-2", "also mine", dueAt, true, "1d")
	require.NoError(t, err)

	owned := registry.ListFor("user-1")
	require.Len(t, owned, 2)
	assert.Equal(t, "1", owned[0].ID)
	assert.Equal(t, "3", owned[1].ID)
	for _, rem := range owned {
		assert.Equal(t, "user-1", rem.UserID)
	}

	assert.Empty(t, registry.ListFor("user-3"))
}

func TestReminderRegistryListSortsNumerically(t *testing.T) {
	registry, _ := newTestRegistry(t)
	dueAt := time.Now().Add(time.Hour)

	// push the set past single digits so lexical ordering would
	// put "10" before "2"
	for i := 0; i < 12; i++ {
		_, err := registry.Create("user-1", "channel-1", "r", dueAt, false, "")
		require.NoError(t, err)
	}

	owned := registry.ListFor("user-1")
	require.Len(t, owned, 12)
	assert.Equal(t, "1", owned[0].ID)
	assert.Equal(t, "2", owned[1].ID)
	assert.Equal(t, "10", owned[9].ID)
	assert.Equal(t, "12", owned[11].ID)
}

func TestReminderRegistryCancelOutcomes(t *testing.T) {
	registry, _ := newTestRegistry(t)
	dueAt := time.Now().Add(time.Hour)

	id, err := registry.Create("user-1", "channel-1", "secret", dueAt, false, "")
	require.NoError(t, err)

	assert.Equal(t, CancelNotFound, registry.Cancel("999", "user-1"))

	// someone else's cancel attempt mutates nothing
	assert.Equal(t, CancelForbidden, registry.Cancel(id, "user-2"))
	assert.Equal(t, 1, registry.Len())

	assert.Equal(t, Cancelled, registry.Cancel(id, "user-1"))
	assert.Equal(t, 0, registry.Len())

	// cancelling again reports not found
	assert.Equal(t, CancelNotFound, registry.Cancel(id, "user-1"))
}

func TestReminderRegistryDue(t *testing.T) {
	registry, _ := newTestRegistry(t)
	now := time.Now().UTC()

	overdueID, err := registry.Create(
		"user-1",
		"channel-1",
		"overdue",
		now.Add(-time.Hour),
		false,
		"",
	)
	require.NoError(t, err)
	exactID, err := registry.Create(
		"user-1", "channel-1", "exactly now", now, false, "",
	)
	require.NoError(t, err)
	_, err = registry.Create(
		"user-1", "channel-1", "future", now.Add(time.Hour), false, "",
	)
	require.NoError(t, err)

	dueReminders := registry.due(now)
	require.Len(t, dueReminders, 2)

	dueIDs := []string{dueReminders[0].ID, dueReminders[1].ID}
	assert.ElementsMatch(t, []string{overdueID, exactID}, dueIDs)
}

func TestReminderRegistryApplyTick(t *testing.T) {
	registry, _ := newTestRegistry(t)
	now := time.Now().UTC()

	oneTimeID, err := registry.Create(
		"user-1", "channel-1", "one-time", now.Add(-time.Minute), false, "",
	)
	require.NoError(t, err)
	recurringID, err := registry.Create(
		"user-1", "channel-1", "recurring", now.Add(-time.Minute), true, "1h",
	)
	require.NoError(t, err)

	newDue := now.Add(time.Hour)
	registry.applyTick(
		[]string{oneTimeID},
		map[string]time.Time{recurringID: newDue},
	)

	assert.Equal(t, 1, registry.Len())
	owned := registry.ListFor("user-1")
	require.Len(t, owned, 1)
	assert.Equal(t, recurringID, owned[0].ID)
	assert.True(t, owned[0].DueAt.Equal(newDue))
}

// A reminder cancelled while a tick is mid-delivery is skipped when
// the tick's batch is applied.
func TestReminderRegistryApplyTickSkipsCancelled(t *testing.T) {
	registry, _ := newTestRegistry(t)
	now := time.Now().UTC()

	id, err := registry.Create(
		"user-1", "channel-1", "cancelled mid-tick", now, true, "1h",
	)
	require.NoError(t, err)
	require.Equal(t, Cancelled, registry.Cancel(id, "user-1"))

	registry.applyTick(nil, map[string]time.Time{id: now.Add(time.Hour)})
	assert.Equal(t, 0, registry.Len())
}
