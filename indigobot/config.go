//nolint:lll // struct tags can't be split
package indigobot

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/go-playground/validator/v10"
)

const (
	EnvvarSetEnvPrefix = "INDIGOBOT_ENV_PREFIX"
	DefaultEnvPrefix   = "INDIGO"

	DefaultRemindersFile = "data/reminders.json"
	DefaultDatabase      = "indigobot.sqlite3"

	DefaultLogLevel          = slog.LevelInfo
	DefaultDiscordLogLevel   = slog.LevelWarn
	DefaultDiscordgoLogLevel = slog.LevelWarn
	DefaultDatabaseLogLevel  = slog.LevelInfo
	DefaultAPILogLevel       = slog.LevelInfo

	DefaultStartupTimeout  = 30 * time.Second
	DefaultShutdownTimeout = 60 * time.Second

	// DefaultCheckInterval is how often the scheduler scans the
	// registry for due reminders. It's a tunable, not a correctness
	// constant - reminders that come due between ticks fire on the
	// next one.
	DefaultCheckInterval = 30 * time.Second

	// DefaultDeliveryTimeout bounds a single reminder delivery
	// attempt so a hung Discord call can't stall the whole tick.
	DefaultDeliveryTimeout = 15 * time.Second

	// DefaultDeliveriesPerSecond caps the rate of reminder sends in
	// a single tick, so a pile of simultaneously-due reminders
	// doesn't hammer the Discord API.
	DefaultDeliveriesPerSecond = 2

	// minReminderDuration and maxReminderDuration bound the lead
	// time accepted by /remind and /remindme (1 minute to 1 week).
	minReminderDuration = 60 * time.Second
	maxReminderDuration = 604800 * time.Second

	DefaultCommandPrefix        = "!"
	DefaultDiscordCustomStatus  = "Reminders | Indigo RP"
	DefaultDiscordGatewayIntent = discordgo.IntentsAllWithoutPrivileged |
		discordgo.IntentGuildMembers |
		discordgo.IntentMessageContent

	DefaultAPIListen         = "127.0.0.1:5000"
	DefaultReadTimeout       = 5 * time.Second
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultIdleTimeout       = 30 * time.Second
	defaultListenNetwork     = "tcp"

	DiscordSlashCommandRemind         = "remind"
	DiscordSlashCommandRemindMe       = "remindme"
	DiscordSlashCommandListReminders  = "reminders"
	DiscordSlashCommandCancelReminder = "cancelreminder"

	remindCommandTimeOption     = "time"
	remindCommandIntervalOption = "interval"
	remindCommandMessageOption  = "message"
	cancelCommandIDOption       = "reminder_id"
)

var structValidator = validator.New()

//nolint:gochecknoinits
func init() {
	structValidator.SetTagName("binding")
}

// Config is the top-level configuration for the bot.
type Config struct {
	// RemindersFile is the path of the JSON snapshot file backing the
	// reminder registry. Containing directories are created on first use.
	RemindersFile string `yaml:"reminders_file" mapstructure:"reminders_file" json:"reminders_file" binding:"required"`

	// Database is the sqlite file used for the interaction audit log.
	// Empty disables the log entirely.
	Database string `yaml:"database" mapstructure:"database" json:"database"`

	// DatabaseLogLevel sets the log level for database operations
	DatabaseLogLevel *slog.LevelVar `yaml:"database_log_level" mapstructure:"database_log_level" json:"database_log_level"`

	// LogLevel is the base log level, for the default logger
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// StartupTimeout limits how long the bot has to initialize. If it's
	// exceeded, startup is aborted.
	StartupTimeout time.Duration `yaml:"startup_timeout" mapstructure:"startup_timeout" json:"startup_timeout"`

	// ShutdownTimeout is the time to allow for a graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" json:"shutdown_timeout"`

	// Scheduler configures the due-check loop
	Scheduler *SchedulerConfig `yaml:"scheduler" mapstructure:"scheduler" json:"scheduler"`

	// Discord configures the Discord bot itself
	Discord *DiscordConfig `yaml:"discord" mapstructure:"discord" json:"discord"`

	// API configures the read-only status API server
	API *APIConfig `yaml:"api" mapstructure:"api" json:"api"`

	HTTPClient *http.Client `log:"[redacted]"`
}

func (c Config) LogValue() slog.Value {
	return structToSlogValue(c)
}

// SchedulerConfig configures the periodic due-reminder check.
type SchedulerConfig struct {
	// CheckInterval is the tick interval for due-reminder scans
	CheckInterval time.Duration `yaml:"check_interval" mapstructure:"check_interval" json:"check_interval" binding:"required,min=1s"`

	// DeliveryTimeout bounds a single notification delivery attempt
	DeliveryTimeout time.Duration `yaml:"delivery_timeout" mapstructure:"delivery_timeout" json:"delivery_timeout" binding:"required,min=1s"`

	// DeliveriesPerSecond rate-limits reminder sends within a tick. 0=unlimited
	DeliveriesPerSecond float64 `yaml:"deliveries_per_second" mapstructure:"deliveries_per_second" json:"deliveries_per_second" binding:"min=0"`
}

// DiscordConfig configures the discord bot itself.
//
//nolint:lll // can't break tags
type DiscordConfig struct {
	// Discord bot token (from the 'Bot' tab in the discord dev portal)
	Token string `yaml:"token" mapstructure:"token" json:"token" log:"[redacted]" binding:"required"`

	// Discord application ID (from the 'General Information' tab in the discord dev portal)
	ApplicationID string `yaml:"application_id" mapstructure:"application_id" json:"application_id" binding:"required"`

	// GuildID specifies the guild ID used when registering slash commands.
	// Leave empty for commands to be registered as global.
	GuildID string `yaml:"guild_id" mapstructure:"guild_id" json:"guild_id"`

	// CommandPrefix is the prefix for plain message commands (!ping etc.)
	CommandPrefix string `yaml:"command_prefix" mapstructure:"command_prefix" json:"command_prefix"`

	// WelcomeChannelID, if set, is the channel that receives a greeting
	// embed whenever a member joins the guild.
	WelcomeChannelID string `yaml:"welcome_channel_id" mapstructure:"welcome_channel_id" json:"welcome_channel_id"`

	// LogsChannelID is reserved for moderation features. It doesn't
	// affect reminder handling.
	LogsChannelID string `yaml:"logs_channel_id" mapstructure:"logs_channel_id" json:"logs_channel_id"`

	// AdminRoleID and ModeratorRoleID are reserved for moderation
	// features. They don't affect reminder handling.
	AdminRoleID     string `yaml:"admin_role_id" mapstructure:"admin_role_id" json:"admin_role_id"`
	ModeratorRoleID string `yaml:"moderator_role_id" mapstructure:"moderator_role_id" json:"moderator_role_id"`

	// CustomStatus is the presence set after connecting to the gateway
	CustomStatus string `yaml:"custom_status" mapstructure:"custom_status" json:"custom_status"`

	// Base discord logging level
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// Log level for the `discordgo` library's logger
	DiscordGoLogLevel *slog.LevelVar `yaml:"discordgo_log_level" mapstructure:"discordgo_log_level" json:"discordgo_log_level"`

	// Discord gateway intents. See: https://discord.com/developers/docs/topics/gateway#gateway-intents
	GatewayIntents discordgo.Intent `yaml:"gateway_intents" mapstructure:"gateway_intents" json:"gateway_intents"`

	httpClient *http.Client
}

// APIConfig configures the status API server
type APIConfig struct {
	// The address and port on which the server should listen
	// (e.g., "127.0.0.1:5000"). Empty disables the API.
	Listen string `yaml:"listen" mapstructure:"listen" json:"listen"`

	// The network type for listening (e.g., "tcp", "tcp4", "tcp6", "unix").
	ListenNetwork string `yaml:"listen_network" mapstructure:"listen_network" json:"listen_network"`

	// The logging level for the API server.
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// Maximum duration for reading the entire request, including the body.
	ReadTimeout time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" json:"read_timeout"`

	// Amount of time allowed to read request headers.
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" mapstructure:"read_header_timeout" json:"read_header_timeout"`

	// Maximum duration before timing out writes of the response.
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" json:"write_timeout"`

	// Maximum amount of time to wait for the next request when keep-alives are enabled.
	IdleTimeout time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" json:"idle_timeout"`
}

// DefaultConfig returns a Config with all default settings populated
func DefaultConfig() *Config {
	mainLogLevel := &slog.LevelVar{}
	discordLogLevel := &slog.LevelVar{}
	discordgoLogLevel := &slog.LevelVar{}
	dbLogLevel := &slog.LevelVar{}
	apiLogLevel := &slog.LevelVar{}

	mainLogLevel.Set(DefaultLogLevel)
	discordLogLevel.Set(DefaultDiscordLogLevel)
	discordgoLogLevel.Set(DefaultDiscordgoLogLevel)
	dbLogLevel.Set(DefaultDatabaseLogLevel)
	apiLogLevel.Set(DefaultAPILogLevel)

	return &Config{
		RemindersFile:    DefaultRemindersFile,
		Database:         DefaultDatabase,
		DatabaseLogLevel: dbLogLevel,
		LogLevel:         mainLogLevel,
		StartupTimeout:   DefaultStartupTimeout,
		ShutdownTimeout:  DefaultShutdownTimeout,
		Scheduler: &SchedulerConfig{
			CheckInterval:       DefaultCheckInterval,
			DeliveryTimeout:     DefaultDeliveryTimeout,
			DeliveriesPerSecond: DefaultDeliveriesPerSecond,
		},
		Discord: &DiscordConfig{
			CommandPrefix:     DefaultCommandPrefix,
			CustomStatus:      DefaultDiscordCustomStatus,
			GatewayIntents:    DefaultDiscordGatewayIntent,
			LogLevel:          discordLogLevel,
			DiscordGoLogLevel: discordgoLogLevel,
		},
		API: &APIConfig{
			Listen:            DefaultAPIListen,
			ListenNetwork:     defaultListenNetwork,
			LogLevel:          apiLogLevel,
			ReadTimeout:       DefaultReadTimeout,
			ReadHeaderTimeout: DefaultReadHeaderTimeout,
			WriteTimeout:      DefaultWriteTimeout,
			IdleTimeout:       DefaultIdleTimeout,
		},
	}
}
