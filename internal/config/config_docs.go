package config

// ///////////////////////////////////////////////
// Documentation Types
// ///////////////////////////////////////////////

// FieldDoc holds documentation and alternative examples for a single config field.
// The genconfig tool uses [FieldDoc] values to annotate the generated config.default.toml.
type FieldDoc struct {
	// Comment is shown as a header comment above the field in the example config.
	Comment string

	// Alternatives are shown as commented-out lines below the active value.
	Alternatives []string
}

// ///////////////////////////////////////////////
// Field Documentation Map
// ///////////////////////////////////////////////

// ConfigDocs maps TOML field paths (dot-separated, e.g. "behavior.timezone")
// to their [FieldDoc] entries.
var ConfigDocs = map[string]FieldDoc{
	"version": {
		Comment: "Config schema version. Do not edit.",
	},

	// Discord
	"discord.token": {
		Comment: "Bot token. The DISCORD_TOKEN environment variable takes precedence.",
	},
	"discord.app_id": {
		Comment: "Application ID used to register slash commands.",
	},
	"discord.guild_id": {
		Comment: "Guild (server) the bot serves.",
	},
	"discord.voice_channel_id": {
		Comment: "Voice channel users must be connected to while clocked in.",
	},
	"discord.start_command": {
		Comment: "Slash command names.",
	},
	"discord.history_command": {},

	// Behavior
	"behavior.watchdog_interval_ms": {
		Comment: "How often an active session re-checks the user's voice channel.",
	},
	"behavior.timezone": {
		Comment: "IANA timezone used to bucket worked time into calendar days.\n\"Local\" uses the host timezone.",
		Alternatives: []string{
			`timezone = "America/Sao_Paulo"`,
			`timezone = "UTC"`,
		},
	},
	"behavior.record_on_shutdown": {
		Comment: "Record open sessions into the ledger when the daemon shuts down.",
	},

	// Ledger
	"ledger.file": {
		Comment: "Ledger file, relative to the data directory unless absolute.",
	},
	"ledger.legacy_date_layouts": {
		Comment: "Go time layouts tried, in order, when importing a legacy dailyData.json.",
	},

	// History
	"history.exclude": {
		Comment: "Glob patterns (user IDs or display names) hidden from the history command.",
		Alternatives: []string{
			`exclude = ["bot-*", "123456789012345678"]`,
		},
	},
	"history.max_days": {
		Comment: "Show at most this many most recent days per user (0 = all).",
	},

	// Slack
	"notify.slack": {
		Comment: "Mirrors forced clock-outs to Slack. Set either an incoming webhook, or a\nbot token together with a channel. Leave both empty to disable.",
	},
	"notify.slack.webhook_url": {
		Alternatives: []string{
			`webhook_url = "https://hooks.slack.com/services/T000/B000/XXXX"`,
		},
	},
	"notify.slack.token": {},
	"notify.slack.channel": {
		Comment: "Channel override for the webhook, or the target channel for the bot token.",
	},

	// Metrics
	"metrics.listen": {
		Comment: "Prometheus listen address. Empty disables.",
		Alternatives: []string{
			`listen = "127.0.0.1:9464"`,
		},
	},

	// Update
	"update.manifest_url": {
		Comment: "Release manifest checked at startup. Empty disables.",
	},

	// Log
	"log": {
		Comment: "Logging configuration",
	},
	"log.level": {
		Comment: "Minimum log level. Options: \"trace\", \"debug\", \"info\", \"warn\", \"error\"",
		Alternatives: []string{
			`level = "debug"`,
			`level = "warn"`,
		},
	},
	"log.max_size_mb": {
		Comment: "Maximum log file size in megabytes before rotation.",
	},
}
