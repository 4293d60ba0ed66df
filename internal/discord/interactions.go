package discord

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/discordgo"

	"tools.zach/dev/clockcord/internal/attendance"
	"tools.zach/dev/clockcord/internal/metrics"
)

// ///////////////////////////////////////////////
// Response Builders
// ///////////////////////////////////////////////

// startResponse clocks userID in and returns the status message with the
// new session, or an ephemeral rejection and a zero Status.
func (b *Bot) startResponse(ctx context.Context, userID, name, channelID string) (*discordgo.InteractionResponse, attendance.Status) {
	st, err := b.tracker.Start(ctx, userID, channelID)
	if err != nil {
		return b.reject("start", userID, err), attendance.Status{}
	}
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: statusData(name, st, b.loc),
	}, st
}

// componentResponse applies a status-message button press by clickerID.
// Successful presses replace the status message in place.
func (b *Bot) componentResponse(clickerID, name, id string) *discordgo.InteractionResponse {
	action, ownerID, ok := parseCustomID(id)
	if !ok {
		b.log.Debug("ignoring unknown component", "custom_id", id)
		return ephemeral("That button is no longer supported.")
	}
	if clickerID != ownerID {
		metrics.CommandRejections.WithLabelValues(action, "not_owner").Inc()
		return ephemeral("These buttons belong to another user.")
	}

	var (
		st  attendance.Status
		err error
	)
	switch action {
	case ActionPause:
		st, err = b.tracker.Pause(ownerID)
	case ActionResume:
		st, err = b.tracker.Resume(ownerID)
	case ActionEnd:
		st, err = b.tracker.End(ownerID)
	}
	if err != nil {
		return b.reject(action, ownerID, err)
	}
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: statusData(name, st, b.loc),
	}
}

func statusData(name string, st attendance.Status, loc *time.Location) *discordgo.InteractionResponseData {
	components := StatusButtons(st)
	if components == nil {
		// An empty slice clears the buttons of an updated message.
		components = []discordgo.MessageComponent{}
	}
	return &discordgo.InteractionResponseData{
		Content:    statusContent(st),
		Embeds:     []*discordgo.MessageEmbed{StatusEmbed(name, st, loc)},
		Components: components,
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Users: []string{st.UserID},
		},
	}
}

func (b *Bot) reject(command, userID string, err error) *discordgo.InteractionResponse {
	msg, code := rejection(err)
	metrics.CommandRejections.WithLabelValues(command, code).Inc()
	if code == "internal" {
		b.log.Warn("command failed", "command", command, "user", userID, "error", err)
	} else {
		b.log.Debug("command rejected", "command", command, "user", userID, "reason", code)
	}
	return ephemeral(msg)
}

// rejection maps a tracker error to a user-facing message and a metrics
// label.
func rejection(err error) (msg, code string) {
	switch {
	case errors.Is(err, attendance.ErrAlreadyActive):
		return "You already have an active session.", "already_active"
	case errors.Is(err, attendance.ErrWrongLocation):
		return "You must be in the attendance voice channel to clock in.", "wrong_location"
	case errors.Is(err, attendance.ErrNoActiveSession):
		return "You have no active session.", "no_session"
	case errors.Is(err, attendance.ErrAlreadyPaused):
		return "Your session is already paused.", "already_paused"
	case errors.Is(err, attendance.ErrNotPaused):
		return "Your session is not paused.", "not_paused"
	case errors.Is(err, attendance.ErrClosed):
		return "Attendance is shutting down. Try again shortly.", "closed"
	default:
		return "Something went wrong. Please try again.", "internal"
	}
}

func ephemeral(msg string) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: msg,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	}
}
