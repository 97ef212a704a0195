package indigobot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// Set via ldflags at build time
var (
	Version   = "dev"
	CommitSHA = ""
	BuildTime = ""
)

// IndigoBot is the top-level component. It owns the reminder registry
// and scheduler, the Discord connection, the interaction audit
// database, and the status API, and wires them together at startup.
type IndigoBot struct {
	config     *Config
	logger     *slog.Logger
	logHandler slog.Handler

	store     *ReminderStore
	registry  *ReminderRegistry
	scheduler *Scheduler
	discord   *Discord
	db        *gorm.DB
	api       *API

	// signalReady is closed when the first Ready gateway event
	// arrives, releasing the scheduler for its first tick.
	signalReady chan struct{}
	readyOnce   sync.Once

	runMu     sync.Mutex
	wg        sync.WaitGroup
	startedAt time.Time
}

// New creates an [IndigoBot] from the given config. The Discord
// session is created but not opened; call [IndigoBot.Run] to connect
// and start serving.
func New(config *Config) (*IndigoBot, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := structValidator.Struct(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logHandler := tint.NewHandler(
		os.Stdout, &tint.Options{
			Level:     config.LogLevel,
			AddSource: true,
		},
	)
	logger := slog.New(logHandler).With(loggerNameKey, "indigobot")
	slog.SetDefault(slog.New(logHandler))

	bot := &IndigoBot{
		config:      config,
		logger:      logger,
		logHandler:  logHandler,
		signalReady: make(chan struct{}),
	}

	bot.store = NewReminderStore(
		config.RemindersFile,
		slog.New(logHandler).With(loggerNameKey, "reminder_store"),
	)
	bot.registry = NewReminderRegistry(bot.store, slog.New(logHandler))

	discordLogHandler := tint.NewHandler(
		os.Stdout, &tint.Options{
			Level:     config.Discord.LogLevel,
			AddSource: true,
		},
	)
	discordgo.Logger = discordgoLoggerFunc(
		context.Background(),
		discordLogHandler,
	)

	bot.discord = newDiscord(config.Discord)
	bot.discord.bot = bot
	bot.discord.logger = slog.New(discordLogHandler).With(
		loggerNameKey,
		"discord",
	)
	if config.HTTPClient != nil {
		config.Discord.httpClient = config.HTTPClient
	}
	session, err := bot.discord.newSession()
	if err != nil {
		return nil, err
	}
	bot.discord.session = session

	bot.scheduler = NewScheduler(
		bot.registry,
		bot.discord,
		config.Scheduler,
		slog.New(logHandler),
	)

	if config.API != nil && config.API.Listen != "" {
		bot.api = newAPI(bot, config.API)
	}

	return bot, nil
}

// signalSchedulerReady releases the scheduler for its first due-check.
// Safe to call multiple times; only the first call has any effect.
func (b *IndigoBot) signalSchedulerReady() {
	b.readyOnce.Do(
		func() {
			b.logger.Info("discord ready, releasing scheduler")
			close(b.signalReady)
		},
	)
}

// Run starts the bot and blocks until ctx is cancelled, then shuts
// down gracefully within [Config.ShutdownTimeout].
func (b *IndigoBot) Run(ctx context.Context) error {
	b.runMu.Lock()
	defer b.runMu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	b.startedAt = time.Now()
	b.logger.Info("starting", "config", b.config)

	if err := b.registry.Load(); err != nil {
		return fmt.Errorf("error loading reminders: %w", err)
	}
	b.logger.Info("loaded reminders", "count", b.registry.Len())

	if b.config.Database != "" {
		dbLogHandler := tint.NewHandler(
			os.Stdout, &tint.Options{
				Level:     b.config.DatabaseLogLevel,
				AddSource: true,
			},
		)
		db, err := newDatabase(b.config.Database, dbLogHandler)
		if err != nil {
			return err
		}
		b.db = db
	}

	g, groupCtx := errgroup.WithContext(ctx)

	if b.api != nil {
		g.Go(func() error {
			err := b.api.Serve(groupCtx)
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				b.logger.Error("API server error", tint.Err(err))
				return fmt.Errorf("api server: %w", err)
			}
			return nil
		})
	}

	startupCtx, startupCancel := context.WithTimeout(
		groupCtx,
		b.config.StartupTimeout,
	)
	err := b.startDiscord(groupCtx, startupCtx)
	startupCancel()
	if err != nil {
		return err
	}

	g.Go(func() error {
		b.scheduler.Run(groupCtx, b.signalReady)
		return nil
	})

	b.logger.Info("indigobot started", "version", Version)

	// groupCtx is done when ctx is cancelled or either background
	// goroutine fails, so a dead API server takes the bot down with it
	<-groupCtx.Done()

	b.shutdown()
	return g.Wait()
}

// startDiscord wires gateway event handlers, opens the websocket
// connection, and registers the bot's slash commands. runCtx scopes
// interaction handling for the bot's lifetime; startupCtx only bounds
// startup API calls.
func (b *IndigoBot) startDiscord(runCtx, startupCtx context.Context) error {
	d := b.discord
	d.session.SetIdentify(
		discordgo.Identify{Intents: b.config.Discord.GatewayIntents},
	)

	d.discordgoRemoveHandlerFuncs = append(
		d.discordgoRemoveHandlerFuncs,
		d.session.AddHandler(d.handlerReady()),
		d.session.AddHandler(d.handlerConnect()),
		d.session.AddHandler(d.handlerDisconnect()),
		d.session.AddHandler(d.handlerGuildMemberAdd()),
		d.session.AddHandler(d.handlerMessageCreate()),
		d.session.AddHandler(b.handlerInteractionCreate(runCtx)),
	)

	if err := d.session.Open(); err != nil {
		return fmt.Errorf("error opening discord connection: %w", err)
	}

	if _, err := d.registerCommands(discordgo.WithContext(startupCtx)); err != nil {
		return fmt.Errorf("error registering discord commands: %w", err)
	}

	if b.config.Discord.CustomStatus != "" {
		if err := d.updateCustomStatus(b.config.Discord.CustomStatus); err != nil {
			d.logger.Warn("error setting custom status", tint.Err(err))
		}
	}

	return nil
}

// handlerInteractionCreate returns the gateway InteractionCreate
// handler. Each interaction is handled in its own goroutine so a slow
// command can't block the gateway event loop.
func (b *IndigoBot) handlerInteractionCreate(ctx context.Context) func(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
) {
	return func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		handler := GatewayHandler{
			session:     b.discord.session,
			interaction: i,
			logger: b.discord.logger.With(
				loggerNameKey,
				"gateway_handler",
			),
		}
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.handleInteraction(ctx, handler)
		}()
	}
}

func (b *IndigoBot) shutdown() {
	b.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		b.config.ShutdownTimeout,
	)
	defer cancel()

	for _, removeHandler := range b.discord.discordgoRemoveHandlerFuncs {
		removeHandler()
	}
	if err := b.discord.session.Close(); err != nil {
		b.logger.Error("error closing discord session", tint.Err(err))
	}

	if b.api != nil {
		b.api.shutdown(shutdownCtx)
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		b.logger.Warn("shutdown timeout exceeded")
	}

	if b.db != nil {
		if sqlDB, err := b.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	b.logger.Info("shutdown complete")
}
