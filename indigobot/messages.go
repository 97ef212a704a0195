package indigobot

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

// handlerMessageCreate dispatches prefix commands (!ping, !serverinfo,
// !userinfo) from plain channel messages. Messages from bots and
// messages without the configured prefix are ignored.
func (d *Discord) handlerMessageCreate() func(
	s *discordgo.Session,
	m *discordgo.MessageCreate,
) {
	return func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author == nil || m.Author.Bot {
			return
		}
		if s != nil && s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID {
			return
		}

		prefix := d.config.CommandPrefix
		if prefix == "" || !strings.HasPrefix(m.Content, prefix) {
			return
		}

		fields := strings.Fields(strings.TrimPrefix(m.Content, prefix))
		if len(fields) == 0 {
			return
		}
		command := strings.ToLower(fields[0])

		logger := d.logger.With(
			"command", command,
			"user_id", m.Author.ID,
			"channel_id", m.ChannelID,
		)

		switch command {
		case "ping":
			d.messageCommandPing(logger, m)
		case "serverinfo":
			d.messageCommandServerInfo(logger, m)
		case "userinfo":
			d.messageCommandUserInfo(logger, m)
		}
	}
}

func (d *Discord) messageCommandPing(
	logger *slog.Logger,
	m *discordgo.MessageCreate,
) {
	latency := d.session.HeartbeatLatency()
	content := fmt.Sprintf("Pong! 🏓 Latency: %dms", latency.Milliseconds())
	if _, err := d.session.ChannelMessageSend(m.ChannelID, content); err != nil {
		logger.Error("error sending pong", tint.Err(err))
	}
}

func (d *Discord) messageCommandServerInfo(
	logger *slog.Logger,
	m *discordgo.MessageCreate,
) {
	if m.GuildID == "" {
		return
	}
	guild, err := d.session.Guild(m.GuildID)
	if err != nil {
		logger.Error("error fetching guild", tint.Err(err))
		return
	}

	embed := &discordgo.MessageEmbed{
		Title: guild.Name,
		Color: colorBlue,
		Fields: []*discordgo.MessageEmbedField{
			{
				Name:   "Owner",
				Value:  fmt.Sprintf("<@%s>", guild.OwnerID),
				Inline: true,
			},
			{
				Name:   "Members",
				Value:  fmt.Sprintf("%d", guild.MemberCount),
				Inline: true,
			},
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Server ID: %s", guild.ID),
		},
	}
	if created, tsErr := discordgo.SnowflakeTimestamp(guild.ID); tsErr == nil {
		embed.Fields = append(
			embed.Fields, &discordgo.MessageEmbedField{
				Name:   "Created",
				Value:  fmt.Sprintf("<t:%d:D>", created.Unix()),
				Inline: true,
			},
		)
	}
	if guild.Icon != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{
			URL: guild.IconURL("256"),
		}
	}

	if _, err = d.session.ChannelMessageSendComplex(
		m.ChannelID,
		&discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{embed}},
	); err != nil {
		logger.Error("error sending server info", tint.Err(err))
	}
}

func (d *Discord) messageCommandUserInfo(
	logger *slog.Logger,
	m *discordgo.MessageCreate,
) {
	target := m.Author
	if len(m.Mentions) > 0 {
		target = m.Mentions[0]
	}

	embed := &discordgo.MessageEmbed{
		Title: target.Username,
		Color: colorBlue,
		Thumbnail: &discordgo.MessageEmbedThumbnail{
			URL: target.AvatarURL("256"),
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("User ID: %s", target.ID),
		},
	}
	if created, tsErr := discordgo.SnowflakeTimestamp(target.ID); tsErr == nil {
		embed.Fields = append(
			embed.Fields, &discordgo.MessageEmbedField{
				Name:   "Account created",
				Value:  fmt.Sprintf("<t:%d:D>", created.Unix()),
				Inline: true,
			},
		)
	}

	if m.GuildID != "" {
		member, err := d.session.GuildMember(m.GuildID, target.ID)
		if err != nil {
			logger.Warn("error fetching guild member", tint.Err(err))
		} else {
			embed.Fields = append(
				embed.Fields, &discordgo.MessageEmbedField{
					Name:   "Joined server",
					Value:  fmt.Sprintf("<t:%d:D>", member.JoinedAt.Unix()),
					Inline: true,
				},
			)
			if len(member.Roles) > 0 {
				embed.Fields = append(
					embed.Fields, &discordgo.MessageEmbedField{
						Name:   "Roles",
						Value:  fmt.Sprintf("%d", len(member.Roles)),
						Inline: true,
					},
				)
			}
		}
	}

	if _, err := d.session.ChannelMessageSendComplex(
		m.ChannelID,
		&discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{embed}},
	); err != nil {
		logger.Error("error sending user info", tint.Err(err))
	}
}
