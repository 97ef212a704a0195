package indigobot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

// maxReminderMessageLen caps what's stored for a single reminder, to
// keep the delivery embed within Discord's description limit.
const maxReminderMessageLen = 2000

// InteractionHandler abstracts the response side of a Discord
// interaction, so command executors can be tested without a live
// gateway session.
type InteractionHandler interface {
	// Respond sends an initial response to a Discord interaction.
	Respond(ctx context.Context, i *discordgo.InteractionResponse) error

	// GetInteraction returns the original InteractionCreate event.
	GetInteraction() *discordgo.InteractionCreate

	// Logger returns the logger associated with this handler.
	Logger() *slog.Logger
}

// GatewayHandler implements [InteractionHandler] for interactions
// received over the discord websocket gateway.
type GatewayHandler struct {
	session     DiscordSessionHandler
	interaction *discordgo.InteractionCreate
	logger      *slog.Logger
}

func (w GatewayHandler) Respond(
	ctx context.Context,
	response *discordgo.InteractionResponse,
) error {
	err := w.session.InteractionRespond(w.interaction.Interaction, response)
	if err != nil {
		w.logger.ErrorContext(ctx, "error responding to interaction", tint.Err(err))
	} else {
		w.logger.InfoContext(ctx, "responded to interaction")
	}
	return err
}

func (w GatewayHandler) GetInteraction() *discordgo.InteractionCreate {
	return w.interaction
}

func (w GatewayHandler) Logger() *slog.Logger {
	return w.logger
}

// handleInteraction processes an incoming Discord interaction: it logs
// and audits the event, then dispatches slash commands to their
// executors.
func (b *IndigoBot) handleInteraction(
	ctx context.Context,
	handler InteractionHandler,
) {
	i := handler.GetInteraction()
	logger := handler.Logger()

	discordUser := getDiscordUser(i)
	if discordUser == nil {
		logger.ErrorContext(
			ctx,
			"no user found in interaction",
			"interaction", structToSlogValue(i),
		)
		return
	}

	logger = logger.With(slog.Group("interaction", interactionLogAttrs(*i)...))
	ctx = WithLogger(ctx, logger)
	logger.InfoContext(
		ctx,
		"received new interaction",
		"user", structToSlogValue(discordUser),
	)

	b.logInteraction(ctx, i, discordUser)

	if discordUser.Bot {
		logger.WarnContext(ctx, "user is bot, ignoring", "user", discordUser)
		return
	}

	switch i.Type {
	case discordgo.InteractionPing:
		_ = handler.Respond(
			ctx, &discordgo.InteractionResponse{
				Type: discordgo.InteractionResponsePong,
			},
		)
	case discordgo.InteractionApplicationCommand:
		commandName := i.ApplicationCommandData().Name
		logger = logger.With("command", commandName)
		ctx = WithLogger(ctx, logger)

		switch commandName {
		case DiscordSlashCommandRemind:
			b.handleRemind(ctx, handler, discordUser, false)
		case DiscordSlashCommandRemindMe:
			b.handleRemind(ctx, handler, discordUser, true)
		case DiscordSlashCommandListReminders:
			b.handleListReminders(ctx, handler, discordUser)
		case DiscordSlashCommandCancelReminder:
			b.handleCancelReminder(ctx, handler, discordUser)
		default:
			logger.WarnContext(ctx, "unknown command")
		}
	default:
		logger.WarnContext(
			ctx,
			"unexpected interaction type",
			"interaction_type", i.Type.String(),
		)
	}
}

// handleRemind executes /remind, and /remindme when recurring is true.
func (b *IndigoBot) handleRemind(
	ctx context.Context,
	handler InteractionHandler,
	user *discordgo.User,
	recurring bool,
) {
	i := handler.GetInteraction()
	logger := handler.Logger()
	optionMap := discordInteractionOptions(i)

	var timespan string
	var interval string
	var message string
	if opt := optionMap[remindCommandTimeOption]; opt != nil {
		timespan = opt.StringValue()
	}
	if opt := optionMap[remindCommandIntervalOption]; opt != nil {
		interval = opt.StringValue()
	}
	if opt := optionMap[remindCommandMessageOption]; opt != nil {
		message = opt.StringValue()
	}
	message = truncate(strings.TrimSpace(message), maxReminderMessageLen)
	if message == "" {
		logger.InfoContext(ctx, "rejected reminder with empty message")
		respondEphemeral(
			ctx,
			handler,
			"Please include a message for your reminder.",
		)
		return
	}

	duration, err := parseTimespan(timespan)
	if err != nil {
		logger.InfoContext(
			ctx,
			"rejected reminder with bad timespan",
			"timespan", timespan,
			tint.Err(err),
		)
		respondEphemeral(
			ctx,
			handler,
			"Invalid time format. Please use formats like: 1min, 1h, 1d, 1w",
		)
		return
	}

	switch {
	case duration < minReminderDuration:
		respondEphemeral(
			ctx,
			handler,
			"Please set a reminder for at least 1 minute.",
		)
		return
	case duration > maxReminderDuration:
		respondEphemeral(
			ctx,
			handler,
			"Reminders can be set for no more than 1 week.",
		)
		return
	}

	if recurring {
		intervalDuration, intervalErr := parseTimespan(interval)
		if intervalErr != nil {
			logger.InfoContext(
				ctx,
				"rejected recurring reminder with bad interval",
				"interval", interval,
				tint.Err(intervalErr),
			)
			respondEphemeral(
				ctx,
				handler,
				"Invalid time format. Please use formats like: 1min, 1h, 1d, 1w",
			)
			return
		}
		switch {
		case intervalDuration < minReminderDuration:
			respondEphemeral(
				ctx,
				handler,
				"Please set a reminder for at least 1 minute.",
			)
			return
		case intervalDuration > maxReminderDuration:
			respondEphemeral(
				ctx,
				handler,
				"Reminders can be set for no more than 1 week.",
			)
			return
		}
	}

	dueAt := time.Now().UTC().Add(duration)
	id, err := b.registry.Create(
		user.ID,
		i.ChannelID,
		message,
		dueAt,
		recurring,
		interval,
	)
	if err != nil {
		// the reminder is live in memory even when saving the snapshot
		// fails, so the user still gets a confirmation
		logger.ErrorContext(ctx, "error persisting reminder", tint.Err(err))
	}

	title := "✅ Reminder Set"
	whenField := "When"
	if recurring {
		title = "✅ Recurring Reminder Set"
		whenField = "First reminder"
	}
	embed := &discordgo.MessageEmbed{
		Title:       title,
		Description: fmt.Sprintf("I'll remind you about: **%s**", message),
		Color:       colorGreen,
		Fields: []*discordgo.MessageEmbedField{
			{
				Name:   whenField,
				Value:  fmt.Sprintf("<t:%d:R>", dueAt.Unix()),
				Inline: true,
			},
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Reminder ID: %s", id),
		},
	}
	if recurring {
		embed.Fields = append(
			embed.Fields,
			&discordgo.MessageEmbedField{
				Name:   "Repeats every",
				Value:  interval,
				Inline: true,
			},
		)
	}
	_ = handler.Respond(
		ctx, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Embeds: []*discordgo.MessageEmbed{embed},
			},
		},
	)
}

// handleListReminders executes /reminders, showing the calling user's
// active reminders. Other users' reminders are never shown.
func (b *IndigoBot) handleListReminders(
	ctx context.Context,
	handler InteractionHandler,
	user *discordgo.User,
) {
	reminders := b.registry.ListFor(user.ID)
	if len(reminders) == 0 {
		respondEphemeral(ctx, handler, "You have no active reminders.")
		return
	}

	fields := make([]*discordgo.MessageEmbedField, 0, len(reminders))
	for _, rem := range reminders {
		name := fmt.Sprintf("ID: %s", rem.ID)
		if rem.Recurring {
			name = fmt.Sprintf("ID: %s (every %s)", rem.ID, rem.Interval)
		}
		fields = append(
			fields, &discordgo.MessageEmbedField{
				Name: name,
				Value: fmt.Sprintf(
					"%s\nDue: <t:%d:R>",
					rem.Message,
					rem.DueAt.Unix(),
				),
			},
		)
	}
	_ = handler.Respond(
		ctx, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Embeds: []*discordgo.MessageEmbed{
					{
						Title:  "Your Active Reminders",
						Color:  colorBlue,
						Fields: fields,
					},
				},
				Flags: discordgo.MessageFlagsEphemeral,
			},
		},
	)
}

// handleCancelReminder executes /cancelreminder. Only the reminder's
// owner may cancel it.
func (b *IndigoBot) handleCancelReminder(
	ctx context.Context,
	handler InteractionHandler,
	user *discordgo.User,
) {
	i := handler.GetInteraction()
	optionMap := discordInteractionOptions(i)

	var reminderID string
	if opt := optionMap[cancelCommandIDOption]; opt != nil {
		reminderID = strings.TrimSpace(opt.StringValue())
	}

	outcome := b.registry.Cancel(reminderID, user.ID)
	handler.Logger().InfoContext(
		ctx,
		"cancel reminder",
		"reminder_id", reminderID,
		"outcome", outcome.String(),
	)

	switch outcome {
	case Cancelled:
		respondEphemeral(
			ctx,
			handler,
			fmt.Sprintf("✅ Reminder #%s cancelled.", reminderID),
		)
	case CancelForbidden:
		respondEphemeral(
			ctx,
			handler,
			"You can only cancel your own reminders.",
		)
	default:
		respondEphemeral(
			ctx,
			handler,
			fmt.Sprintf("Reminder #%s was not found.", reminderID),
		)
	}
}

// respondEphemeral sends a plain-text response visible only to the
// calling user.
func respondEphemeral(
	ctx context.Context,
	handler InteractionHandler,
	content string,
) {
	_ = handler.Respond(
		ctx, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content: content,
				Flags:   discordgo.MessageFlagsEphemeral,
			},
		},
	)
}
