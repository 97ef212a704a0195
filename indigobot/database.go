package indigobot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var sqliteExecPragma = []string{
	"pragma journal_mode=WAL;",
	"pragma synchronous = normal;",
	"pragma temp_store = memory;",
	"pragma foreign_keys = ON;",
}

// InteractionLog is an audit record of a received Discord interaction.
// It exists for operator forensics and has no effect on reminder
// behavior.
type InteractionLog struct {
	ID            uint   `gorm:"primarykey" json:"id"`
	CreatedAt     int64  `gorm:"autoCreateTime:milli" json:"created_at"`
	InteractionID string `json:"interaction_id"`
	Type          string `json:"type"`
	UserID        string `gorm:"index" json:"user_id"`
	Username      string `json:"username"`
	GuildID       string `json:"guild_id"`
	ChannelID     string `json:"channel_id"`
	CommandName   string `json:"command_name"`
	Payload       string `json:"payload"`
}

// newDatabase opens (creating if necessary) the sqlite database used
// for the interaction audit log, and runs migrations.
func newDatabase(path string, handler slog.Handler) (*gorm.DB, error) {
	db, err := gorm.Open(
		sqlite.Open(path),
		&gorm.Config{Logger: newGORMLogger(handler)},
	)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	for _, pragma := range sqliteExecPragma {
		if err = db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("error setting pragma %q: %w", pragma, err)
		}
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("error getting database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err = db.AutoMigrate(&InteractionLog{}); err != nil {
		return nil, fmt.Errorf("error migrating database: %w", err)
	}
	return db, nil
}

// logInteraction writes an [InteractionLog] record in the background.
// It's a no-op when the audit database is disabled, and never blocks
// or fails interaction handling.
func (b *IndigoBot) logInteraction(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	u *discordgo.User,
) {
	if b.db == nil {
		return
	}
	logger, ok := ContextLogger(ctx)
	if !ok || logger == nil {
		logger = b.logger
	}

	payload, err := json.Marshal(i)
	if err != nil {
		logger.ErrorContext(ctx, "error marshaling interaction", tint.Err(err))
	}
	record := &InteractionLog{
		InteractionID: i.ID,
		Type:          i.Type.String(),
		UserID:        u.ID,
		Username:      u.String(),
		GuildID:       i.GuildID,
		ChannelID:     i.ChannelID,
		Payload:       string(payload),
	}
	if i.Type == discordgo.InteractionApplicationCommand {
		record.CommandName = i.ApplicationCommandData().Name
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if createErr := b.db.Create(record).Error; createErr != nil {
			logger.Error("error logging interaction", tint.Err(createErr))
		}
	}()
}
