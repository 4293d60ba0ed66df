// Package config provides configuration loading and defaults for the
// clockcord daemon.
//
// Configuration is loaded from config.toml in the data directory. The
// package covers the Discord connection, session behavior, the ledger
// file, history filtering, notification sinks, metrics, update checks
// and logging.
package config

//go:generate go run ../../cmd/genconfig

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"

	"tools.zach/dev/clockcord/internal/atomicfile"
	"tools.zach/dev/clockcord/internal/ledger"
	"tools.zach/dev/clockcord/internal/migrate"
	"tools.zach/dev/clockcord/internal/paths"
)

// TokenEnv overrides [DiscordConfig.Token] when set.
const TokenEnv = "DISCORD_TOKEN"

// ///////////////////////////////////////////////
// Configuration Types
// ///////////////////////////////////////////////

// Config represents the top-level application configuration.
type Config struct {
	// Version is the config schema version used for migrations.
	Version int `toml:"version"`
	// Discord holds the bot connection and command settings.
	Discord DiscordConfig `toml:"discord"`
	// Behavior holds session tracking settings.
	Behavior BehaviorConfig `toml:"behavior"`
	// Ledger holds ledger file settings.
	Ledger LedgerConfig `toml:"ledger"`
	// History holds settings for the history command.
	History HistoryConfig `toml:"history"`
	// Notify holds extra notification sinks.
	Notify NotifyConfig `toml:"notify"`
	// Metrics holds the Prometheus endpoint settings.
	Metrics MetricsConfig `toml:"metrics"`
	// Update holds release check settings.
	Update UpdateConfig `toml:"update"`
	// Log holds logging settings.
	Log LogConfig `toml:"log"`
}

// DiscordConfig holds the bot connection and command settings.
type DiscordConfig struct {
	// Token is the bot token. [TokenEnv] takes precedence.
	Token string `toml:"token"`
	// AppID is the application ID slash commands are registered under.
	AppID string `toml:"app_id"`
	// GuildID is the server the bot serves.
	GuildID string `toml:"guild_id"`
	// VoiceChannelID is the channel users must be connected to while clocked in.
	VoiceChannelID string `toml:"voice_channel_id"`
	// StartCommand is the slash command that clocks a user in.
	StartCommand string `toml:"start_command"`
	// HistoryCommand is the slash command that shows the ledger.
	HistoryCommand string `toml:"history_command"`
}

// BehaviorConfig holds session tracking settings.
type BehaviorConfig struct {
	// WatchdogIntervalMS is how often a live session re-checks the user's voice channel.
	WatchdogIntervalMS int `toml:"watchdog_interval_ms"`
	// Timezone is the IANA zone that decides a session's calendar day.
	Timezone string `toml:"timezone"`
	// RecordOnShutdown records open sessions when the daemon stops.
	RecordOnShutdown bool `toml:"record_on_shutdown"`
}

// LedgerConfig holds ledger file settings.
type LedgerConfig struct {
	// File is the ledger path, relative to the data directory unless absolute.
	File string `toml:"file"`
	// LegacyDateLayouts are tried in order on dates from a legacy ledger.
	LegacyDateLayouts []string `toml:"legacy_date_layouts"`
}

// HistoryConfig holds settings for the history command.
type HistoryConfig struct {
	// Exclude lists glob patterns matched against user IDs and display names.
	Exclude []string `toml:"exclude"`
	// MaxDays limits each user to their most recent days (0 = all).
	MaxDays int `toml:"max_days"`
}

// NotifyConfig holds extra notification sinks.
type NotifyConfig struct {
	Slack SlackConfig `toml:"slack"`
}

// SlackConfig mirrors forced clock-outs to Slack.
type SlackConfig struct {
	// WebhookURL is an incoming webhook. Takes precedence over Token.
	WebhookURL string `toml:"webhook_url"`
	// Token is a bot token used with Channel when no webhook is set.
	Token string `toml:"token"`
	// Channel overrides the webhook channel, or is the bot token's target.
	Channel string `toml:"channel"`
}

// Enabled reports whether any Slack delivery is configured.
func (s SlackConfig) Enabled() bool {
	return s.WebhookURL != "" || s.Token != ""
}

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig struct {
	// Listen is the host:port to serve /metrics on. Empty disables.
	Listen string `toml:"listen"`
}

// UpdateConfig holds release check settings.
type UpdateConfig struct {
	// ManifestURL points at the release manifest. Empty disables the check.
	ManifestURL string `toml:"manifest_url"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string `toml:"level"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation.
	MaxSizeMB int `toml:"max_size_mb"`
}

// ///////////////////////////////////////////////
// Default Configuration
// ///////////////////////////////////////////////

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: migrate.Config.CurrentVersion,
		Discord: DiscordConfig{
			StartCommand:   "clockin",
			HistoryCommand: "history",
		},
		Behavior: BehaviorConfig{
			WatchdogIntervalMS: 1500,
			Timezone:           "Local",
			RecordOnShutdown:   true,
		},
		Ledger: LedgerConfig{
			File:              paths.LedgerFile,
			LegacyDateLayouts: append([]string(nil), ledger.DefaultLegacyLayouts...),
		},
		History: HistoryConfig{
			Exclude: []string{},
		},
		Log: LogConfig{
			Level:     "info",
			MaxSizeMB: 10,
		},
	}
}

// ExampleConfig returns a Config suitable for generating config.default.toml.
func ExampleConfig() *Config {
	return DefaultConfig()
}

// ///////////////////////////////////////////////
// PeekVersion
// ///////////////////////////////////////////////

// PeekVersion reads just the version field from raw TOML bytes.
// Returns 1 if the version field is missing or zero.
func PeekVersion(data []byte) int {
	var v struct {
		Version int `toml:"version"`
	}
	if err := toml.Unmarshal(data, &v); err != nil {
		return 1
	}
	if v.Version == 0 {
		return 1
	}
	return v.Version
}

// ///////////////////////////////////////////////
// Loading and Saving
// ///////////////////////////////////////////////

// Load reads and parses dataDir/config.toml. If the file doesn't exist,
// DefaultConfig is returned. [TokenEnv] is applied last and never saved.
func Load(dataDir string) (*Config, error) {
	cfg, err := load(filepath.Join(dataDir, paths.ConfigFile))
	if err != nil {
		return nil, err
	}
	if tok := os.Getenv(TokenEnv); tok != "" {
		cfg.Discord.Token = tok
	}
	return cfg, nil
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	version := PeekVersion(data)

	shouldMigrate := migrate.Config.NeedsMigration(version)
	if shouldMigrate {
		if backupErr := os.WriteFile(path+".bak", data, 0o600); backupErr != nil {
			slog.Warn("failed to write config backup", "error", backupErr)
		}
		var migrateErr error
		data, _, migrateErr = migrate.Config.Run(data, version)
		if migrateErr != nil {
			return nil, fmt.Errorf("migrate config: %w", migrateErr)
		}
	}

	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Version = migrate.Config.CurrentVersion

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	if shouldMigrate {
		if err := cfg.Save(path); err != nil {
			slog.Warn("failed to save migrated config", "error", err)
		}
	}

	return cfg, nil
}

// Save writes the config to disk as TOML using atomic file write. The file
// may hold a bot token, so it is private to the owner.
func (c *Config) Save(path string) error {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return atomicfile.Write(path, buf.Bytes(), 0o600)
}

// ///////////////////////////////////////////////
// Validation
// ///////////////////////////////////////////////

// commandNameRe matches Discord's rules for slash command names.
var commandNameRe = regexp.MustCompile(`^[-_a-z0-9]{1,32}$`)

// validLogLevels is the set of accepted log level strings.
var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

// minWatchdogInterval keeps the watchdog from hammering the gateway cache.
const minWatchdogInterval = 100

// Validate checks that all configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log.level %q: must be trace, debug, info, warn, or error", c.Log.Level)
	}

	if c.Log.MaxSizeMB <= 0 {
		return fmt.Errorf("log.max_size_mb must be > 0, got %d", c.Log.MaxSizeMB)
	}

	if c.Behavior.WatchdogIntervalMS < minWatchdogInterval {
		return fmt.Errorf("watchdog_interval_ms must be >= %d, got %d", minWatchdogInterval, c.Behavior.WatchdogIntervalMS)
	}

	if _, err := c.Location(); err != nil {
		return err
	}

	for _, name := range []string{c.Discord.StartCommand, c.Discord.HistoryCommand} {
		if !commandNameRe.MatchString(name) {
			return fmt.Errorf("invalid command name %q: must be 1-32 lowercase letters, digits, - or _", name)
		}
	}
	if c.Discord.StartCommand == c.Discord.HistoryCommand {
		return fmt.Errorf("start_command and history_command must differ, both are %q", c.Discord.StartCommand)
	}

	if c.Ledger.File == "" {
		return errors.New("ledger.file must not be empty")
	}
	if len(c.Ledger.LegacyDateLayouts) == 0 {
		return errors.New("ledger.legacy_date_layouts must list at least one layout")
	}

	if c.History.MaxDays < 0 {
		return fmt.Errorf("history.max_days must be >= 0, got %d", c.History.MaxDays)
	}
	for _, pattern := range c.History.Exclude {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid history.exclude pattern %q", pattern)
		}
	}

	s := c.Notify.Slack
	if s.WebhookURL != "" {
		if err := checkURL("notify.slack.webhook_url", s.WebhookURL); err != nil {
			return err
		}
	} else if s.Token != "" && s.Channel == "" {
		return errors.New("notify.slack.channel is required when notify.slack.token is set")
	}

	if c.Metrics.Listen != "" {
		if _, _, err := net.SplitHostPort(c.Metrics.Listen); err != nil {
			return fmt.Errorf("invalid metrics.listen %q: %w", c.Metrics.Listen, err)
		}
	}

	if c.Update.ManifestURL != "" {
		if err := checkURL("update.manifest_url", c.Update.ManifestURL); err != nil {
			return err
		}
	}

	return nil
}

func checkURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid %s %q: must be an http or https URL", field, raw)
	}
	return nil
}

// MissingDiscord lists the Discord settings the daemon cannot run without.
func (c *Config) MissingDiscord() []string {
	var missing []string
	if c.Discord.Token == "" {
		missing = append(missing, "discord.token (or "+TokenEnv+")")
	}
	if c.Discord.AppID == "" {
		missing = append(missing, "discord.app_id")
	}
	if c.Discord.GuildID == "" {
		missing = append(missing, "discord.guild_id")
	}
	if c.Discord.VoiceChannelID == "" {
		missing = append(missing, "discord.voice_channel_id")
	}
	return missing
}

// ///////////////////////////////////////////////
// Derived Values
// ///////////////////////////////////////////////

// Location resolves [BehaviorConfig.Timezone].
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Behavior.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid behavior.timezone %q: %w", c.Behavior.Timezone, err)
	}
	return loc, nil
}

// WatchdogInterval returns [BehaviorConfig.WatchdogIntervalMS] as a duration.
func (c *Config) WatchdogInterval() time.Duration {
	return time.Duration(c.Behavior.WatchdogIntervalMS) * time.Millisecond
}

// LedgerPath resolves the ledger file against dataDir.
func (c *Config) LedgerPath(dataDir string) string {
	return paths.DataDir{Root: dataDir}.Ledger(c.Ledger.File)
}

// HistoryExcluded reports whether a user is hidden from history. Each
// pattern is tried against the user ID and the display name.
func (c *Config) HistoryExcluded(userID, displayName string) bool {
	for _, pattern := range c.History.Exclude {
		for _, subject := range []string{userID, displayName} {
			if subject == "" {
				continue
			}
			matched, err := doublestar.Match(pattern, subject)
			if err != nil {
				slog.Warn("invalid glob pattern", "pattern", pattern, "error", err)
				break
			}
			if matched {
				return true
			}
		}
	}
	return false
}
