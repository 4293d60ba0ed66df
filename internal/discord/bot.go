// Package discord connects the attendance tracker to a Discord guild.
//
// [Bot] wraps a discordgo gateway session. It is the tracker's
// [attendance.PresenceSource] (voice states from the gateway cache) and one
// of its [attendance.Notifier] sinks, registers the clock-in and history
// slash commands, and turns interactions and voice-state updates into
// tracker calls.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"tools.zach/dev/clockcord/internal/attendance"
	"tools.zach/dev/clockcord/internal/ledger"
	"tools.zach/dev/clockcord/internal/logger"
)

// ///////////////////////////////////////////////
// Sentinel Errors
// ///////////////////////////////////////////////

// ErrNotAttached is returned by Open when no tracker has been attached.
var ErrNotAttached = errors.New("no tracker attached")

// ///////////////////////////////////////////////
// Bot
// ///////////////////////////////////////////////

// Options configures a Bot.
type Options struct {
	Token          string
	AppID          string
	GuildID        string
	StartCommand   string
	HistoryCommand string

	// Ledger backs the history command.
	Ledger *ledger.Ledger
	// Exclude hides users from history.
	Exclude func(userID, name string) bool
	// MaxDays limits history to each user's most recent days (0 = all).
	MaxDays int
	// Location renders clock times. Nil means time.Local.
	Location *time.Location

	Logger *slog.Logger
}

// Bot is the Discord side of clockcord.
type Bot struct {
	session *discordgo.Session
	opts    Options
	loc     *time.Location
	log     *slog.Logger

	tracker *attendance.Tracker

	// ctx is the daemon context handed to Open; handlers derive from it.
	ctx     context.Context
	mu      sync.Mutex
	removes []func()
}

// New creates a Bot. It does not connect until Open.
func New(opts Options) (*Bot, error) {
	s, err := discordgo.New("Bot " + opts.Token)
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates
	s.StateEnabled = true
	s.State.TrackVoice = true
	s.State.TrackMembers = true

	return newBot(s, opts), nil
}

func newBot(s *discordgo.Session, opts Options) *Bot {
	b := &Bot{session: s, opts: opts, loc: opts.Location, log: opts.Logger, ctx: context.Background()}
	if b.loc == nil {
		b.loc = time.Local
	}
	if b.log == nil {
		b.log = slog.Default()
	}
	b.log = b.log.With("component", "discord")
	return b
}

// Attach sets the tracker that interactions drive. It must be called
// before Open.
func (b *Bot) Attach(t *attendance.Tracker) {
	b.tracker = t
}

// Open connects to the gateway and registers the slash commands.
// Handlers use ctx for tracker calls and notifications.
func (b *Bot) Open(ctx context.Context) error {
	if b.tracker == nil {
		return ErrNotAttached
	}
	b.ctx = ctx

	b.mu.Lock()
	b.removes = append(b.removes,
		b.session.AddHandler(b.onReady),
		b.session.AddHandler(b.onVoiceStateUpdate),
		b.session.AddHandler(b.onInteraction),
	)
	b.mu.Unlock()

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("opening gateway: %w", err)
	}

	if _, err := b.session.ApplicationCommandBulkOverwrite(b.opts.AppID, b.opts.GuildID, b.commands(), discordgo.WithContext(ctx)); err != nil {
		b.session.Close()
		return fmt.Errorf("registering commands: %w", err)
	}
	b.log.Info("commands registered", "start", b.opts.StartCommand, "history", b.opts.HistoryCommand)
	return nil
}

// Close removes the handlers and disconnects from the gateway.
func (b *Bot) Close() error {
	b.mu.Lock()
	for _, remove := range b.removes {
		remove()
	}
	b.removes = nil
	b.mu.Unlock()
	return b.session.Close()
}

func (b *Bot) commands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        b.opts.StartCommand,
			Description: "Clock in. You must be in the attendance voice channel.",
		},
		{
			Name:        b.opts.HistoryCommand,
			Description: "Show time worked per user and day.",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "Only show this user",
				},
			},
		},
	}
}

// ///////////////////////////////////////////////
// Presence Source
// ///////////////////////////////////////////////

// CurrentLocation returns the voice channel userID is connected to in the
// guild, or "" when they are not connected. It reads the gateway cache.
func (b *Bot) CurrentLocation(ctx context.Context, userID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	vs, err := b.session.State.VoiceState(b.opts.GuildID, userID)
	if err != nil {
		if errors.Is(err, discordgo.ErrStateNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("voice state for %s: %w", userID, err)
	}
	return vs.ChannelID, nil
}

// ///////////////////////////////////////////////
// Notifier
// ///////////////////////////////////////////////

// Notify posts n to its text channel with a status embed. When the session
// has a status message, that message is first rewritten to its final state
// so its buttons go away.
func (b *Bot) Notify(ctx context.Context, n attendance.Notification) error {
	if n.ChannelID == "" {
		return errors.New("notification has no channel")
	}
	embed := StatusEmbed(b.displayName(ctx, n.UserID), n.Status, b.loc)
	if id := n.Status.MessageID; id != "" {
		b.retireStatusMessage(ctx, n.ChannelID, id, n.Status, embed)
	}
	msg := &discordgo.MessageSend{
		Content: n.Text,
		Embeds:  []*discordgo.MessageEmbed{embed},
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Users: []string{n.UserID},
		},
	}
	if _, err := b.session.ChannelMessageSendComplex(n.ChannelID, msg, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("sending to channel %s: %w", n.ChannelID, err)
	}
	return nil
}

// retireStatusMessage replaces a session's status message with its ended
// state and no buttons. Failures are logged; the notice is still sent.
func (b *Bot) retireStatusMessage(ctx context.Context, channelID, messageID string, st attendance.Status, embed *discordgo.MessageEmbed) {
	content := statusContent(st)
	embeds := []*discordgo.MessageEmbed{embed}
	edit := &discordgo.MessageEdit{
		ID:              messageID,
		Channel:         channelID,
		Content:         &content,
		Embeds:          &embeds,
		Components:      &[]discordgo.MessageComponent{},
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}
	if _, err := b.session.ChannelMessageEditComplex(edit, discordgo.WithContext(ctx)); err != nil {
		b.log.Warn("failed to retire status message", "message", messageID, "error", err)
	}
}

// displayName resolves a guild member's display name, falling back to the
// raw id when the member cannot be found.
func (b *Bot) displayName(ctx context.Context, userID string) string {
	if m, err := b.session.State.Member(b.opts.GuildID, userID); err == nil {
		return m.DisplayName()
	}
	m, err := b.session.GuildMember(b.opts.GuildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		b.log.Debug("member lookup failed", "user", userID, "error", err)
		return userID
	}
	return m.DisplayName()
}

// ///////////////////////////////////////////////
// Gateway Handlers
// ///////////////////////////////////////////////

func (b *Bot) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	b.log.Info("connected to gateway", "user", r.User.Username, "guilds", len(r.Guilds))
}

// onVoiceStateUpdate forwards voice moves in the guild to the tracker. The
// gateway cache has already been updated when this runs.
func (b *Bot) onVoiceStateUpdate(_ *discordgo.Session, v *discordgo.VoiceStateUpdate) {
	defer b.recoverHandler("voice_state_update")
	if v.VoiceState == nil || v.GuildID != b.opts.GuildID {
		return
	}
	var before string
	if v.BeforeUpdate != nil {
		before = v.BeforeUpdate.ChannelID
	}
	if before == v.ChannelID {
		return
	}
	b.tracker.HandlePresenceChange(b.ctx, v.UserID, before, v.ChannelID)
}

func (b *Bot) onInteraction(_ *discordgo.Session, i *discordgo.InteractionCreate) {
	defer b.recoverHandler("interaction_create")
	if i.GuildID != b.opts.GuildID {
		return
	}
	user := interactionUser(i.Interaction)
	if user == nil {
		return
	}

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		switch i.ApplicationCommandData().Name {
		case b.opts.StartCommand:
			resp, st := b.startResponse(b.ctx, user.ID, memberName(i.Interaction), i.ChannelID)
			if b.respond(i.Interaction, resp) == nil && st.SessionID != "" {
				b.bindStatusMessage(i.Interaction, st)
			}
		case b.opts.HistoryCommand:
			b.handleHistory(i.Interaction)
		}
	case discordgo.InteractionMessageComponent:
		b.respond(i.Interaction, b.componentResponse(user.ID, memberName(i.Interaction), i.MessageComponentData().CustomID))
	}
}

// recoverHandler keeps a panicking handler from taking the daemon down.
func (b *Bot) recoverHandler(event string) {
	if r := recover(); r != nil {
		logger.Fail(b.log, "handler panic", "event", event, "panic", r)
	}
}

func (b *Bot) respond(i *discordgo.Interaction, resp *discordgo.InteractionResponse) error {
	err := b.session.InteractionRespond(i, resp, discordgo.WithContext(b.ctx))
	if err != nil {
		b.log.Warn("failed to respond to interaction", "interaction", i.ID, "error", err)
	}
	return err
}

// bindStatusMessage attaches the message answering a start command to its
// session. If the session ended before the reply landed, the buttons are
// cleared straight away.
func (b *Bot) bindStatusMessage(i *discordgo.Interaction, st attendance.Status) {
	msg, err := b.session.InteractionResponse(i, discordgo.WithContext(b.ctx))
	if err != nil {
		b.log.Warn("failed to fetch status message", "user", st.UserID, "session", st.SessionID, "error", err)
		return
	}
	if err := b.tracker.AttachMessage(st.UserID, st.SessionID, msg.ID); err != nil {
		edit := &discordgo.MessageEdit{ID: msg.ID, Channel: msg.ChannelID, Components: &[]discordgo.MessageComponent{}}
		if _, err := b.session.ChannelMessageEditComplex(edit, discordgo.WithContext(b.ctx)); err != nil {
			b.log.Warn("failed to clear status buttons", "message", msg.ID, "error", err)
		}
	}
}

// handleHistory defers, since member lookups may need REST calls, then
// edits in the first history message and sends the rest as followups.
func (b *Bot) handleHistory(i *discordgo.Interaction) {
	b.respond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})

	var only []string
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == "user" {
			only = append(only, opt.UserValue(nil).ID)
		}
	}

	messages := HistoryMessages(b.opts.Ledger.History(ledger.HistoryOptions{
		Name:    func(id string) string { return b.displayName(b.ctx, id) },
		Exclude: b.opts.Exclude,
		Only:    only,
		MaxDays: b.opts.MaxDays,
	}))
	if _, err := b.session.InteractionResponseEdit(i, &discordgo.WebhookEdit{Embeds: &messages[0]}, discordgo.WithContext(b.ctx)); err != nil {
		b.log.Warn("failed to send history", "error", err)
		return
	}
	for n, embeds := range messages[1:] {
		params := &discordgo.WebhookParams{Embeds: embeds, Flags: discordgo.MessageFlagsEphemeral}
		if _, err := b.session.FollowupMessageCreate(i, true, params, discordgo.WithContext(b.ctx)); err != nil {
			b.log.Warn("failed to send history followup", "part", n+2, "parts", len(messages), "error", err)
			return
		}
	}
}

func interactionUser(i *discordgo.Interaction) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

func memberName(i *discordgo.Interaction) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.DisplayName()
	}
	if i.User != nil {
		return i.User.Username
	}
	return ""
}
