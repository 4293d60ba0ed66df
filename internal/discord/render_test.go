package discord

import (
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"tools.zach/dev/clockcord/internal/attendance"
	"tools.zach/dev/clockcord/internal/ledger"
)

func TestParseCustomID(t *testing.T) {
	tests := []struct {
		id         string
		wantAction string
		wantUser   string
		wantOK     bool
	}{
		{customID(ActionPause, "123"), ActionPause, "123", true},
		{customID(ActionResume, "123"), ActionResume, "123", true},
		{customID(ActionEnd, "123"), ActionEnd, "123", true},
		{"clockcord:explode:123", "", "", false},
		{"clockcord:end:", "", "", false},
		{"other:end:123", "", "", false},
		{"clockcord:end", "", "", false},
		{"", "", "", false},
	}
	for _, tt := range tests {
		action, user, ok := parseCustomID(tt.id)
		if action != tt.wantAction || user != tt.wantUser || ok != tt.wantOK {
			t.Errorf("parseCustomID(%q) = %q, %q, %v; want %q, %q, %v",
				tt.id, action, user, ok, tt.wantAction, tt.wantUser, tt.wantOK)
		}
	}
}

func sampleStatus(state attendance.State) attendance.Status {
	start := time.Date(2026, time.October, 19, 9, 0, 0, 0, time.UTC)
	st := attendance.Status{
		SessionID: "sess-1",
		UserID:    "alice",
		State:     state,
		StartedAt: start,
		Elapsed:   90 * time.Minute,
		Events:    []attendance.Event{{Kind: attendance.EventStart, At: start}},
	}
	if state != attendance.StateWorking {
		st.Events = append(st.Events, attendance.Event{Kind: attendance.EventPause, At: start.Add(90 * time.Minute)})
	}
	return st
}

func TestStatusEmbed(t *testing.T) {
	e := StatusEmbed("Alice", sampleStatus(attendance.StateWorking), time.UTC)
	if e.Color != attendance.ColorWorking {
		t.Errorf("color = %#x", e.Color)
	}
	if len(e.Fields) != 3 {
		t.Fatalf("fields = %d, want 3 without history", len(e.Fields))
	}
	if e.Fields[1].Value != "09:00:00" || e.Fields[2].Value != "1h 30m 0s" {
		t.Errorf("start/total = %q/%q", e.Fields[1].Value, e.Fields[2].Value)
	}
	if e.Footer == nil || e.Footer.Text != "sess-1" {
		t.Errorf("footer = %+v", e.Footer)
	}

	paused := StatusEmbed("Alice", sampleStatus(attendance.StatePaused), time.UTC)
	if len(paused.Fields) != 4 || paused.Fields[3].Value != "Start: 09:00:00\nPause: 10:30:00" {
		t.Errorf("paused fields = %+v", paused.Fields)
	}

	ended := StatusEmbed("Alice", sampleStatus(attendance.StateEnded), time.UTC)
	if ended.Fields[2].Name != "Total Duration" || ended.Color != attendance.ColorEnded {
		t.Errorf("ended embed = %+v", ended)
	}
}

func TestStatusButtons(t *testing.T) {
	labels := func(c []discordgo.MessageComponent) []string {
		if len(c) != 1 {
			return nil
		}
		var out []string
		for _, b := range c[0].(discordgo.ActionsRow).Components {
			out = append(out, b.(discordgo.Button).Label)
		}
		return out
	}

	if got := labels(StatusButtons(sampleStatus(attendance.StateWorking))); strings.Join(got, ",") != "Pause,End" {
		t.Errorf("working buttons = %v", got)
	}
	if got := labels(StatusButtons(sampleStatus(attendance.StatePaused))); strings.Join(got, ",") != "Resume,End" {
		t.Errorf("paused buttons = %v", got)
	}
	if got := StatusButtons(sampleStatus(attendance.StateEnded)); got != nil {
		t.Errorf("ended buttons = %v, want nil", got)
	}
}

func TestHistoryMessagesEmpty(t *testing.T) {
	messages := HistoryMessages(nil)
	if len(messages) != 1 || len(messages[0]) != 1 || messages[0][0].Description != emptyHistoryMarker {
		t.Errorf("messages = %+v", messages)
	}
}

func TestHistoryMessagesSplitsFields(t *testing.T) {
	var history []ledger.UserHistory
	for i := range 30 {
		history = append(history, ledger.UserHistory{
			UserID: fmt.Sprint(i),
			Name:   fmt.Sprintf("user%d", i),
			Days:   []ledger.DayTotal{{Day: ledger.DateOf(time.Date(2026, time.October, 19, 0, 0, 0, 0, time.UTC), time.UTC), Total: time.Hour}},
		})
	}

	messages := HistoryMessages(history)
	if len(messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(messages))
	}
	embeds := messages[0]
	if len(embeds) != 2 {
		t.Fatalf("embeds = %d, want 2", len(embeds))
	}
	if len(embeds[0].Fields) != maxEmbedFields || len(embeds[1].Fields) != 5 {
		t.Errorf("fields = %d/%d", len(embeds[0].Fields), len(embeds[1].Fields))
	}
	if embeds[0].Title != historyTitle || embeds[1].Title != "" {
		t.Errorf("titles = %q/%q", embeds[0].Title, embeds[1].Title)
	}
	if f := embeds[0].Fields[0]; f.Name != "user0 (ID: 0)" || f.Value != "2026-10-19: 1h 0m 0s" {
		t.Errorf("first field = %+v", f)
	}
}

func TestHistoryMessagesFitMessageLimit(t *testing.T) {
	start := time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC)
	var history []ledger.UserHistory
	for u := range 10 {
		h := ledger.UserHistory{UserID: fmt.Sprintf("10000000000000000%d", u), Name: fmt.Sprintf("member %d", u)}
		for d := range 30 {
			h.Days = append(h.Days, ledger.DayTotal{Day: ledger.DateOf(start.AddDate(0, 0, d), time.UTC), Total: 8 * time.Hour})
		}
		history = append(history, h)
	}

	messages := HistoryMessages(history)
	if len(messages) < 2 {
		t.Fatalf("messages = %d, want the ledger split across several", len(messages))
	}

	var names []string
	for n, embeds := range messages {
		if len(embeds) == 0 || len(embeds) > maxEmbedsPerMsg {
			t.Errorf("message %d has %d embeds", n, len(embeds))
		}
		total := 0
		for _, e := range embeds {
			if len(e.Fields) > maxEmbedFields {
				t.Errorf("message %d embed has %d fields", n, len(e.Fields))
			}
			for _, f := range e.Fields {
				names = append(names, f.Name)
			}
			total += embedChars(e)
		}
		if total > maxMessageChars {
			t.Errorf("message %d is %d chars, over %d", n, total, maxMessageChars)
		}
	}

	if len(names) != len(history) {
		t.Fatalf("rendered %d users, want %d", len(names), len(history))
	}
	for i, h := range history {
		if want := fmt.Sprintf("%s (ID: %s)", h.Name, h.UserID); names[i] != want {
			t.Errorf("field %d = %q, want %q", i, names[i], want)
		}
	}
}

func TestHistoryMessagesManyUsersKeepsEveryone(t *testing.T) {
	var history []ledger.UserHistory
	for i := range maxEmbedFields*maxEmbedsPerMsg + 1 {
		history = append(history, ledger.UserHistory{UserID: fmt.Sprint(i), Name: "u"})
	}

	count := 0
	for _, embeds := range HistoryMessages(history) {
		if len(embeds) > maxEmbedsPerMsg {
			t.Errorf("message has %d embeds", len(embeds))
		}
		for _, e := range embeds {
			count += len(e.Fields)
		}
	}
	if count != len(history) {
		t.Errorf("rendered %d users, want %d", count, len(history))
	}
}

func TestHistoryValueKeepsRecentDays(t *testing.T) {
	h := ledger.UserHistory{UserID: "alice"}
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	for i := range 100 {
		h.Days = append(h.Days, ledger.DayTotal{Day: ledger.DateOf(start.AddDate(0, 0, i), time.UTC), Total: time.Hour})
	}

	got := historyValue(h)
	if len(got) > maxFieldValue {
		t.Fatalf("len = %d, over the field limit", len(got))
	}
	if !strings.HasPrefix(got, "…\n") {
		t.Errorf("value should mark dropped days: %q", got[:20])
	}
	last := h.Days[len(h.Days)-1].Day.String()
	if !strings.HasSuffix(got, last+": 1h 0m 0s") {
		t.Errorf("most recent day %s missing", last)
	}
}

func TestTruncateRuneSafe(t *testing.T) {
	s := strings.Repeat("é", 10)
	got := truncate(s, 7)
	if !utf8.ValidString(got) || len(got) > 7 || !strings.HasSuffix(got, "…") {
		t.Errorf("truncate = %q (len %d)", got, len(got))
	}
	if truncate("short", 10) != "short" {
		t.Error("short strings are unchanged")
	}
}
