package discord

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"tools.zach/dev/clockcord/internal/attendance"
	"tools.zach/dev/clockcord/internal/ledger"
)

// Discord embed limits.
const (
	maxEmbedFields     = 25
	maxFieldName       = 256
	maxFieldValue      = 1024
	maxEmbedsPerMsg    = 10
	maxMessageChars    = 6000
	historyTitle       = "Attendance History"
	clockLayout        = "15:04:05"
	emptyHistoryMarker = "No time recorded"
)

// ///////////////////////////////////////////////
// Button IDs
// ///////////////////////////////////////////////

// Button actions. The owning user is carried in the custom ID so that only
// they can drive the buttons on their status message.
const (
	ActionPause  = "pause"
	ActionResume = "resume"
	ActionEnd    = "end"
)

const customIDPrefix = "clockcord"

// customID builds a component ID such as "clockcord:pause:1234".
func customID(action, userID string) string {
	return customIDPrefix + ":" + action + ":" + userID
}

// parseCustomID splits an ID built by customID.
func parseCustomID(id string) (action, userID string, ok bool) {
	parts := strings.Split(id, ":")
	if len(parts) != 3 || parts[0] != customIDPrefix || parts[2] == "" {
		return "", "", false
	}
	switch parts[1] {
	case ActionPause, ActionResume, ActionEnd:
		return parts[1], parts[2], true
	}
	return "", "", false
}

// ///////////////////////////////////////////////
// Status Message
// ///////////////////////////////////////////////

// StatusEmbed renders a session for the status message.
func StatusEmbed(name string, st attendance.Status, loc *time.Location) *discordgo.MessageEmbed {
	total := "Total"
	if st.State == attendance.StateEnded {
		total = "Total Duration"
	}
	fields := []*discordgo.MessageEmbedField{
		{Name: "Status", Value: st.State.String(), Inline: true},
		{Name: "Start", Value: st.StartedAt.In(loc).Format(clockLayout), Inline: true},
		{Name: total, Value: attendance.FormatDuration(st.Elapsed), Inline: true},
	}
	if len(st.Events) > 1 {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "History", Value: eventLines(st.Events, loc)})
	}
	return &discordgo.MessageEmbed{
		Title:  "Attendance: " + name,
		Color:  st.State.Color(),
		Fields: fields,
		Footer: &discordgo.MessageEmbedFooter{Text: st.SessionID},
	}
}

func eventLines(events []attendance.Event, loc *time.Location) string {
	lines := make([]string, len(events))
	for i, e := range events {
		lines[i] = e.Kind.String() + ": " + e.At.In(loc).Format(clockLayout)
	}
	return truncate(strings.Join(lines, "\n"), maxFieldValue)
}

// StatusButtons returns the action row for a live session, or nil once it
// has ended.
func StatusButtons(st attendance.Status) []discordgo.MessageComponent {
	var toggle discordgo.Button
	switch st.State {
	case attendance.StateWorking:
		toggle = discordgo.Button{Label: "Pause", Style: discordgo.PrimaryButton, CustomID: customID(ActionPause, st.UserID)}
	case attendance.StatePaused:
		toggle = discordgo.Button{Label: "Resume", Style: discordgo.PrimaryButton, CustomID: customID(ActionResume, st.UserID)}
	default:
		return nil
	}
	end := discordgo.Button{Label: "End", Style: discordgo.DangerButton, CustomID: customID(ActionEnd, st.UserID)}
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{toggle, end}},
	}
}

// statusContent is the message line above the embed.
func statusContent(st attendance.Status) string {
	mention := "<@" + st.UserID + ">"
	switch {
	case st.State == attendance.StateEnded:
		return fmt.Sprintf("%s clocked out. Total: %s.", mention, attendance.FormatDuration(st.Elapsed))
	case st.State == attendance.StatePaused:
		return mention + " paused."
	case len(st.Events) > 1:
		return mention + " resumed."
	default:
		return mention + " clocked in!"
	}
}

// ///////////////////////////////////////////////
// History
// ///////////////////////////////////////////////

// HistoryMessages renders the ledger as one field per user and groups the
// embeds into messages that each fit Discord's embed limits, including the
// 6000 character total per message.
func HistoryMessages(history []ledger.UserHistory) [][]*discordgo.MessageEmbed {
	if len(history) == 0 {
		return [][]*discordgo.MessageEmbed{{{
			Title:       historyTitle,
			Description: emptyHistoryMarker,
			Color:       attendance.ColorHistory,
		}}}
	}

	var (
		messages [][]*discordgo.MessageEmbed
		msg      []*discordgo.MessageEmbed
		cur      *discordgo.MessageEmbed
		used     int
	)
	flush := func() {
		messages = append(messages, msg)
		msg, cur, used = nil, nil, 0
	}

	for _, h := range history {
		f := &discordgo.MessageEmbedField{
			Name:   truncate(fmt.Sprintf("%s (ID: %s)", h.Name, h.UserID), maxFieldName),
			Value:  historyValue(h),
			Inline: true,
		}
		size := utf8.RuneCountInString(f.Name) + utf8.RuneCountInString(f.Value)
		if msg != nil && used+size > maxMessageChars {
			flush()
		}
		if cur == nil || len(cur.Fields) == maxEmbedFields {
			if len(msg) == maxEmbedsPerMsg {
				flush()
			}
			cur = &discordgo.MessageEmbed{Color: attendance.ColorHistory}
			if len(messages) == 0 && len(msg) == 0 {
				cur.Title = historyTitle
			}
			used += embedChars(cur)
			msg = append(msg, cur)
		}
		cur.Fields = append(cur.Fields, f)
		used += size
	}
	return append(messages, msg)
}

// embedChars counts the text Discord weighs against a message's character
// limit.
func embedChars(e *discordgo.MessageEmbed) int {
	n := utf8.RuneCountInString(e.Title) + utf8.RuneCountInString(e.Description)
	for _, f := range e.Fields {
		n += utf8.RuneCountInString(f.Name) + utf8.RuneCountInString(f.Value)
	}
	if e.Footer != nil {
		n += utf8.RuneCountInString(e.Footer.Text)
	}
	if e.Author != nil {
		n += utf8.RuneCountInString(e.Author.Name)
	}
	return n
}

func historyValue(h ledger.UserHistory) string {
	if len(h.Days) == 0 {
		return emptyHistoryMarker
	}
	lines := make([]string, len(h.Days))
	for i, d := range h.Days {
		lines[i] = d.Day.String() + ": " + attendance.FormatDuration(d.Total)
	}
	// Keep the most recent days when the list does not fit.
	value := strings.Join(lines, "\n")
	for len(value) > maxFieldValue && len(lines) > 1 {
		lines = lines[1:]
		value = "…\n" + strings.Join(lines, "\n")
	}
	return truncate(value, maxFieldValue)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n - len("…")
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
