package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	rootpkg "tools.zach/dev/clockcord"
	"tools.zach/dev/clockcord/internal/attendance"
	"tools.zach/dev/clockcord/internal/config"
	"tools.zach/dev/clockcord/internal/discord"
	"tools.zach/dev/clockcord/internal/ledger"
	"tools.zach/dev/clockcord/internal/logger"
	"tools.zach/dev/clockcord/internal/metrics"
	"tools.zach/dev/clockcord/internal/notify"
	"tools.zach/dev/clockcord/internal/update"
)

// shutdownTimeout bounds closing sessions and stopping servers.
const shutdownTimeout = 15 * time.Second

// ///////////////////////////////////////////////
// Daemon
// ///////////////////////////////////////////////

func runDaemon(cmd *cobra.Command, _ []string) error {
	dp := DataPaths{Root: dataDir}
	if err := os.MkdirAll(dp.Root, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	if alive, pid := checkStalePID(dp); alive {
		return fmt.Errorf("daemon already running (pid %d)", pid)
	}

	seedConfig(dp)
	cfg, err := config.Load(dp.Root)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if missing := cfg.MissingDiscord(); len(missing) > 0 {
		return fmt.Errorf("%s is missing required settings: %s", dp.Config(), strings.Join(missing, ", "))
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	level := new(slog.LevelVar)
	level.Set(logger.ParseLevel(cfg.Log.Level))
	log, logCloser := logger.NewLogger(logger.Options{
		Path:      dp.Log(),
		Level:     level,
		MaxSizeMB: cfg.Log.MaxSizeMB,
		Stderr:    logStderr,
	})
	defer logCloser.Close()
	slog.SetDefault(log)

	ver := resolveVersion()
	slog.Info("clockcord starting", "version", ver, "data_dir", dp.Root)

	token := pidToken()
	pidFile, err := writePID(dp, token)
	if err != nil {
		logger.Fail(log, "failed to write PID file", "error", err)
		return err
	}
	defer removePID(dp, token, pidFile)

	ctx, stop := signal.NotifyContext(cmd.Context(), shutdownSignals...)
	defer stop()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("update check panic", "error", r)
			}
		}()
		update.Check(ctx, cfg.Update.ManifestURL, ver)
	}()

	led, err := ledger.Load(cfg.LedgerPath(dp.Root), ledger.Options{LegacyLayouts: cfg.Ledger.LegacyDateLayouts})
	if err != nil {
		logger.Fail(log, "failed to load ledger", "error", err)
		return fmt.Errorf("load ledger: %w", err)
	}
	slog.Info("ledger loaded", "path", led.Path(), "users", led.Len())

	if cfg.Metrics.Listen != "" {
		srv := metrics.NewServer(cfg.Metrics.Listen, log)
		if err := srv.Start(); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Stop(stopCtx); err != nil {
				slog.Warn("metrics server stop failed", "error", err)
			}
		}()
	}

	bot, err := discord.New(discord.Options{
		Token:          cfg.Discord.Token,
		AppID:          cfg.Discord.AppID,
		GuildID:        cfg.Discord.GuildID,
		StartCommand:   cfg.Discord.StartCommand,
		HistoryCommand: cfg.Discord.HistoryCommand,
		Ledger:         led,
		Exclude:        cfg.HistoryExcluded,
		MaxDays:        cfg.History.MaxDays,
		Location:       loc,
		Logger:         log,
	})
	if err != nil {
		return err
	}

	notifier, err := buildNotifier(cfg, bot, log)
	if err != nil {
		return err
	}

	tracker := attendance.NewTracker(bot, led, notifier, attendance.Config{
		RequiredLocation: cfg.Discord.VoiceChannelID,
		WatchdogInterval: cfg.WatchdogInterval(),
		Location:         loc,
		RecordOnShutdown: cfg.Behavior.RecordOnShutdown,
		Logger:           log,
	})
	bot.Attach(tracker)

	if err := bot.Open(ctx); err != nil {
		logger.Fail(log, "failed to connect to Discord", "error", err)
		return err
	}
	slog.Info("connected to Discord", "guild", cfg.Discord.GuildID, "voice_channel", cfg.Discord.VoiceChannelID)

	var reloads <-chan struct{}
	watcher, err := config.NewWatcher(dp.Config())
	if err != nil {
		slog.Warn("config hot reload disabled", "error", err)
	} else {
		defer watcher.Close()
		if watcher.Polling() {
			slog.Info("using polling mode for config watching")
		}
		reloads = watcher.Events()
	}

	for running := true; running; {
		select {
		case <-ctx.Done():
			slog.Info("received shutdown signal")
			running = false
		case <-reloads:
			reloadConfig(dp, tracker, level)
		}
	}

	return shutdown(tracker, bot, led)
}

// shutdown ends every open session, then disconnects. Sessions are closed
// first so their notifications can still reach Discord.
func shutdown(tracker *attendance.Tracker, bot *discord.Bot, led *ledger.Ledger) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := tracker.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close tracker: %w", err))
	}
	if err := bot.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close discord: %w", err))
	}
	if err := led.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("flush ledger: %w", err))
	}
	if len(errs) > 0 {
		slog.Warn("shutdown finished with errors", "error", errors.Join(errs...))
	} else {
		slog.Info("clockcord stopped")
	}
	return errors.Join(errs...)
}

// ///////////////////////////////////////////////
// Setup Helpers
// ///////////////////////////////////////////////

// seedConfig writes the annotated default config on first run.
func seedConfig(dp DataPaths) {
	if _, err := os.Stat(dp.Config()); !errors.Is(err, os.ErrNotExist) {
		return
	}
	if err := os.WriteFile(dp.Config(), rootpkg.DefaultConfigTOML, 0o600); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to write default config: %v\n", err)
	}
}

// buildNotifier fans notifications out to Discord and, when configured,
// Slack.
func buildNotifier(cfg *config.Config, bot attendance.Notifier, log *slog.Logger) (*notify.Fanout, error) {
	fan := notify.NewFanout(log)
	fan.Add("discord", bot)

	slackSink, err := notify.NewSlack(notify.SlackOptions{
		WebhookURL: cfg.Notify.Slack.WebhookURL,
		Token:      cfg.Notify.Slack.Token,
		Channel:    cfg.Notify.Slack.Channel,
	})
	if err != nil {
		return nil, fmt.Errorf("configure slack: %w", err)
	}
	if slackSink != nil {
		fan.Add("slack", slackSink)
	}
	return fan, nil
}

// reloadConfig re-reads the config file and applies the settings that can
// change at runtime. An invalid file is logged and the running settings
// are kept.
func reloadConfig(dp DataPaths, tracker *attendance.Tracker, level *slog.LevelVar) {
	cfg, err := config.Load(dp.Root)
	if err != nil {
		slog.Warn("config reload failed, keeping current settings", "error", err)
		return
	}
	applyReload(cfg, tracker, level)
}

func applyReload(cfg *config.Config, tracker *attendance.Tracker, level *slog.LevelVar) {
	if ch := cfg.Discord.VoiceChannelID; ch != "" && ch != tracker.RequiredLocation() {
		slog.Info("voice channel changed", "from", tracker.RequiredLocation(), "to", ch)
		tracker.SetRequiredLocation(ch)
	}
	if lv := logger.ParseLevel(cfg.Log.Level); lv != level.Level() {
		level.Set(lv)
		slog.Info("log level changed", "level", cfg.Log.Level)
	}
}
