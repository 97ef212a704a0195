package indigobot

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newRunnableBot returns a bot wired with a mock gateway session so
// Run can be exercised without Discord. The audit database is
// disabled.
func newRunnableBot(t testing.TB) (*IndigoBot, *mockDiscordSession) {
	t.Helper()
	bot := newTestBot(t)
	bot.config.Database = ""

	discord, session := newTestDiscord(t)
	discord.bot = bot
	bot.discord = discord
	bot.scheduler = newTestScheduler(t, bot.registry, &mockNotifier{})
	return bot, session
}

func TestRunStopsOnContextCancel(t *testing.T) {
	bot, _ := newRunnableBot(t)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() {
		runErr <- bot.Run(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("bot did not stop after context cancellation")
	}
}

func TestRunReturnsAPIServeError(t *testing.T) {
	bot, _ := newRunnableBot(t)

	// a listener closed before Serve makes the API server fail
	// immediately, which should take the whole bot down
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, ln.Close())

	api := newAPI(bot, DefaultConfig().API)
	api.listener = ln
	bot.api = api

	runErr := make(chan error, 1)
	go func() {
		runErr <- bot.Run(context.Background())
	}()

	select {
	case err := <-runErr:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "api server")
	case <-time.After(5 * time.Second):
		t.Fatal("bot did not stop after API server failure")
	}
}
