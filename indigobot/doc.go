// Package indigobot implements the Indigo RP community Discord bot.
//
// The bot greets new members, answers a handful of informational
// commands, and manages user-scheduled reminders. Reminders are the
// heart of the package: they're kept in an in-memory registry backed
// by a JSON snapshot file, and a periodic scheduler checks for due
// reminders, delivers them to the originating channel, and either
// reschedules (recurring) or removes (one-time) each fired record.
//
// Key components:
//
//   - IndigoBot: The main struct wiring configuration, logging,
//     Discord, storage and the scheduler together.
//   - ReminderStore: File-backed JSON persistence for reminders.
//   - ReminderRegistry: The authoritative in-memory reminder set,
//     flushed to the store after every mutation.
//   - Scheduler: The fixed-interval due-check loop. It holds off
//     until the Discord session reports ready, then scans the
//     registry once per tick.
//   - Discord: Session management, slash command registration, and
//     the delivery side of reminder notifications.
//
// Slash commands:
//
//   - /remind: Set a one-time reminder.
//   - /remindme: Set a recurring reminder.
//   - /reminders: Privately list your own active reminders.
//   - /cancelreminder: Cancel one of your reminders by ID.
//
// A small prefix-command surface (!ping, !serverinfo, !userinfo) and a
// welcome embed for new members round out the original bot's behavior.
package indigobot
