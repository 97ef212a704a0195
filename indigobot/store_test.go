package indigobot

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReminderStoreBootstrap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "reminders.json")
	store := NewReminderStore(path, newTestLogger(t))

	reminders, nextID, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, reminders)
	assert.Equal(t, int64(1), nextID)

	// bootstrap writes an empty snapshot immediately
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var snapshot storeSnapshot
	require.NoError(t, json.Unmarshal(data, &snapshot))
	assert.Equal(t, int64(1), snapshot.NextID)
	assert.Empty(t, snapshot.Reminders)
}

func TestReminderStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reminders.json")
	store := NewReminderStore(path, newTestLogger(t))

	dueAt := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	reminders := map[string]*Reminder{
		"1": {
			ID:        "1",
			UserID:    "user-1",
			ChannelID: "channel-1",
			Message:   "water the plants",
			DueAt:     dueAt,
		},
		"4": {
			ID:        "4",
			UserID:    "user-2",
			ChannelID: "channel-2",
			Message:   "standup",
			DueAt:     dueAt,
			Recurring: true,
			Interval:  "1d",
		},
	}
	require.NoError(t, store.Save(reminders, 5))

	loaded, nextID, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, int64(5), nextID)
	require.Len(t, loaded, 2)

	one := loaded["1"]
	require.NotNil(t, one)
	assert.Equal(t, "1", one.ID)
	assert.Equal(t, "user-1", one.UserID)
	assert.Equal(t, "water the plants", one.Message)
	assert.False(t, one.Recurring)

	four := loaded["4"]
	require.NotNil(t, four)
	assert.True(t, four.Recurring)
	assert.Equal(t, "1d", four.Interval)
	assert.True(t, four.DueAt.Equal(dueAt))
}

// Snapshot files written before the counter existed are a bare
// id->reminder mapping. They load as-is, with the counter picking up
// past the highest ID.
func TestReminderStoreLegacyFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reminders.json")
	legacy := map[string]any{
		"1": map[string]any{
			"user_id":    "user-1",
			"channel_id": "channel-1",
			"message":    "legacy reminder",
			"time":       time.Now().UTC().Add(time.Hour).Format(time.RFC3339),
			"recurring":  false,
		},
		"7": map[string]any{
			"user_id":    "user-1",
			"channel_id": "channel-1",
			"message":    "another",
			"time":       time.Now().UTC().Add(time.Hour).Format(time.RFC3339),
			"recurring":  true,
			"interval":   "1h",
		},
	}
	data, err := json.Marshal(legacy)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	store := NewReminderStore(path, newTestLogger(t))
	reminders, nextID, loadErr := store.Load()
	require.NoError(t, loadErr)
	require.Len(t, reminders, 2)
	assert.Equal(t, int64(8), nextID)
	assert.Equal(t, "7", reminders["7"].ID)
}

// A snapshot with a stale counter still never reuses an ID: the
// counter is bumped past the highest reminder present.
func TestReminderStoreCounterBehindHighestID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reminders.json")
	store := NewReminderStore(path, newTestLogger(t))

	reminders := map[string]*Reminder{
		"12": {
			ID:        "12",
			UserID:    "user-1",
			ChannelID: "channel-1",
			Message:   "hello",
			DueAt:     time.Now().UTC().Add(time.Hour),
		},
	}
	require.NoError(t, store.Save(reminders, 3))

	_, nextID, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, int64(13), nextID)
}

func TestReminderStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reminders.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	store := NewReminderStore(path, newTestLogger(t))
	reminders, nextID, err := store.Load()

	// degrades to an empty store rather than failing startup
	require.NoError(t, err)
	assert.Empty(t, reminders)
	assert.Equal(t, int64(1), nextID)

	// the corrupt file is left untouched until the next save
	data, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, "{not json", string(data))
}

func TestReminderStoreSaveReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reminders.json")
	store := NewReminderStore(path, newTestLogger(t))

	require.NoError(t, store.Save(map[string]*Reminder{}, 1))
	require.NoError(
		t, store.Save(
			map[string]*Reminder{
				"1": {
					ID:        "1",
					UserID:    "user-1",
					ChannelID: "channel-1",
					Message:   "hi",
					DueAt:     time.Now().UTC(),
				},
			}, 2,
		),
	)

	// no temp files left behind
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "reminders.json", entries[0].Name())
}
