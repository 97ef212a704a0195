package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"reflect"
	"strings"
	"syscall"

	"github.com/itsluap/indigo-bot/indigobot"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfg        = indigobot.DefaultConfig()
	configFile string
)

var rootCmd = &cobra.Command{
	Use: "indigobot [flags]",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		err := viper.Unmarshal(
			cfg,
			viper.DecodeHook(
				mapstructure.ComposeDecodeHookFunc(
					mapstructure.StringToTimeDurationHookFunc(),
					LevelToStringHookFunc(),
				),
			),
		)
		if err != nil {
			log.Fatalln(err)
		}
	},
}

func getLogLevel(level string) (slog.Level, error) {
	switch level {
	case slog.LevelDebug.String():
		return slog.LevelDebug, nil
	case slog.LevelInfo.String():
		return slog.LevelInfo, nil
	case slog.LevelWarn.String():
		return slog.LevelWarn, nil
	case slog.LevelError.String():
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s", level)
	}
}

// LevelToStringHookFunc decodes string log levels into *slog.LevelVar
// during viper unmarshaling.
func LevelToStringHookFunc() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data any,
	) (any, error) {
		if f.Kind() != reflect.String {
			return data, nil
		}
		if t.Kind() != reflect.Ptr {
			return data, nil
		}

		typ := t.Elem()

		if typ != reflect.TypeOf(slog.LevelVar{}) {
			return data, nil
		}
		lvl, err := getLogLevel(data.(string))
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %s", data)
		}
		lvlVar := &slog.LevelVar{}
		lvlVar.Set(lvl)
		return lvlVar, nil
	}
}

func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	rootCmd.SetContext(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(
		signals,
		os.Interrupt,
		syscall.SIGHUP,
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer func() {
		signal.Stop(signals)
		cancel()
	}()
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
			//
		}
	}()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func initConfig() {
	if configFile == "" {
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found")
		}
	} else {
		fmt.Println("loading env from file", configFile)
		if err := godotenv.Load(configFile); err != nil {
			log.Println("No .env file found")
		}
	}

	viper.SetDefault("reminders_file", indigobot.DefaultRemindersFile)
	viper.SetDefault("database", indigobot.DefaultDatabase)
	viper.SetDefault(
		"database_log_level",
		indigobot.DefaultDatabaseLogLevel.String(),
	)

	viper.SetDefault("log_level", indigobot.DefaultLogLevel.String())

	viper.SetDefault("startup_timeout", indigobot.DefaultStartupTimeout)
	viper.SetDefault("shutdown_timeout", indigobot.DefaultShutdownTimeout)

	// Scheduler config
	viper.SetDefault(
		"scheduler.check_interval",
		indigobot.DefaultCheckInterval,
	)
	viper.SetDefault(
		"scheduler.delivery_timeout",
		indigobot.DefaultDeliveryTimeout,
	)
	viper.SetDefault(
		"scheduler.deliveries_per_second",
		indigobot.DefaultDeliveriesPerSecond,
	)

	// Discord config
	viper.SetDefault("discord.token", "")
	viper.SetDefault("discord.application_id", "")
	viper.SetDefault("discord.guild_id", "")
	viper.SetDefault("discord.command_prefix", indigobot.DefaultCommandPrefix)
	viper.SetDefault("discord.welcome_channel_id", "")
	viper.SetDefault("discord.logs_channel_id", "")
	viper.SetDefault("discord.admin_role_id", "")
	viper.SetDefault("discord.moderator_role_id", "")
	viper.SetDefault(
		"discord.custom_status",
		indigobot.DefaultDiscordCustomStatus,
	)
	viper.SetDefault(
		"discord.log_level",
		indigobot.DefaultDiscordLogLevel.String(),
	)
	viper.SetDefault(
		"discord.discordgo_log_level",
		indigobot.DefaultDiscordgoLogLevel.String(),
	)
	viper.SetDefault(
		"discord.gateway_intents",
		indigobot.DefaultDiscordGatewayIntent,
	)

	// API config
	viper.SetDefault("api.listen", indigobot.DefaultAPIListen)
	viper.SetDefault("api.log_level", indigobot.DefaultAPILogLevel.String())
	viper.SetDefault("api.read_timeout", indigobot.DefaultReadTimeout)
	viper.SetDefault(
		"api.read_header_timeout",
		indigobot.DefaultReadHeaderTimeout,
	)
	viper.SetDefault("api.write_timeout", indigobot.DefaultWriteTimeout)
	viper.SetDefault("api.idle_timeout", indigobot.DefaultIdleTimeout)

	envPrefix := os.Getenv(indigobot.EnvvarSetEnvPrefix)
	if envPrefix == "" {
		envPrefix = indigobot.DefaultEnvPrefix
	}
	viper.SetEnvPrefix(envPrefix)

	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv()

	for _, key := range []string{
		"log_level",
		"database_log_level",
		"discord.log_level",
		"discord.discordgo_log_level",
		"api.log_level",
	} {
		logLevelVar, err := levelStringToLevelVar(viper.GetString(key))
		if err != nil {
			log.Fatalf("error parsing %s: %v", key, err)
		}
		viper.Set(key, logLevelVar)
	}
}

func levelStringToLevelVar(lvl string) (*slog.LevelVar, error) {
	level := &slog.LevelVar{}
	err := level.UnmarshalText([]byte(lvl))
	return level, err
}

//nolint:gochecknoinits
func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(
		&configFile,
		"config",
		"",
		"Config file to use",
	)
}
