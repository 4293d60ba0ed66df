package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"tools.zach/dev/clockcord/internal/attendance"
	"tools.zach/dev/clockcord/internal/ledger"
)

const (
	testGuild = "guild-1"
	testVoice = "voice-1"
)

type staticPresence struct {
	mu  sync.Mutex
	loc map[string]string
}

func (p *staticPresence) CurrentLocation(_ context.Context, userID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loc[userID], nil
}

type nopRecorder struct{}

func (nopRecorder) RecordDuration(string, ledger.Date, time.Duration) error { return nil }

func newTestBot(t *testing.T) *Bot {
	t.Helper()
	s, err := discordgo.New("Bot test-token")
	if err != nil {
		t.Fatalf("discordgo.New: %v", err)
	}
	b := newBot(s, Options{GuildID: testGuild, StartCommand: "start", HistoryCommand: "history", Location: time.UTC})

	presence := &staticPresence{loc: map[string]string{"alice": testVoice}}
	tr := attendance.NewTracker(presence, nopRecorder{}, nil, attendance.Config{
		RequiredLocation: testVoice,
		WatchdogInterval: time.Hour,
		Location:         time.UTC,
	})
	t.Cleanup(func() { tr.Close(context.Background()) })
	b.Attach(tr)
	return b
}

func TestOpenRequiresTracker(t *testing.T) {
	s, _ := discordgo.New("Bot test-token")
	b := newBot(s, Options{})
	if err := b.Open(context.Background()); !errors.Is(err, ErrNotAttached) {
		t.Errorf("Open = %v, want ErrNotAttached", err)
	}
}

func TestCommandsUseConfiguredNames(t *testing.T) {
	b := newTestBot(t)
	cmds := b.commands()
	if len(cmds) != 2 || cmds[0].Name != "start" || cmds[1].Name != "history" {
		t.Fatalf("commands = %+v", cmds)
	}
	if opts := cmds[1].Options; len(opts) != 1 || opts[0].Type != discordgo.ApplicationCommandOptionUser || opts[0].Required {
		t.Errorf("history options = %+v, want one optional user", opts)
	}
}

func TestCurrentLocationReadsVoiceState(t *testing.T) {
	b := newTestBot(t)
	err := b.session.State.GuildAdd(&discordgo.Guild{
		ID: testGuild,
		VoiceStates: []*discordgo.VoiceState{
			{GuildID: testGuild, UserID: "alice", ChannelID: testVoice},
		},
	})
	if err != nil {
		t.Fatalf("GuildAdd: %v", err)
	}

	ctx := context.Background()
	if loc, err := b.CurrentLocation(ctx, "alice"); err != nil || loc != testVoice {
		t.Errorf("alice = %q, %v; want %q", loc, err, testVoice)
	}
	if loc, err := b.CurrentLocation(ctx, "bob"); err != nil || loc != "" {
		t.Errorf("bob = %q, %v; want disconnected", loc, err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := b.CurrentLocation(cancelled, "alice"); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled lookup = %v", err)
	}
}

func TestCurrentLocationUnknownGuild(t *testing.T) {
	b := newTestBot(t)
	if loc, err := b.CurrentLocation(context.Background(), "alice"); err != nil || loc != "" {
		t.Errorf("got %q, %v; want disconnected", loc, err)
	}
}

func TestDisplayNameFromState(t *testing.T) {
	b := newTestBot(t)
	if err := b.session.State.GuildAdd(&discordgo.Guild{ID: testGuild}); err != nil {
		t.Fatal(err)
	}
	err := b.session.State.MemberAdd(&discordgo.Member{
		GuildID: testGuild,
		Nick:    "Ali",
		User:    &discordgo.User{ID: "alice", Username: "alice"},
	})
	if err != nil {
		t.Fatalf("MemberAdd: %v", err)
	}
	if got := b.displayName(context.Background(), "alice"); got != "Ali" {
		t.Errorf("displayName = %q, want Ali", got)
	}
}

func TestStartResponse(t *testing.T) {
	b := newTestBot(t)

	resp, _ := b.startResponse(context.Background(), "alice", "Alice", "text-1")
	if resp.Type != discordgo.InteractionResponseChannelMessageWithSource {
		t.Fatalf("type = %v", resp.Type)
	}
	if resp.Data.Flags&discordgo.MessageFlagsEphemeral != 0 {
		t.Error("status message should be public")
	}
	if !strings.Contains(resp.Data.Content, "<@alice> clocked in") {
		t.Errorf("content = %q", resp.Data.Content)
	}
	if len(resp.Data.Embeds) != 1 || resp.Data.Embeds[0].Title != "Attendance: Alice" {
		t.Errorf("embeds = %+v", resp.Data.Embeds)
	}
	if len(resp.Data.Components) != 1 {
		t.Errorf("components = %+v, want one action row", resp.Data.Components)
	}

	again, _ := b.startResponse(context.Background(), "alice", "Alice", "text-1")
	if again.Data.Flags&discordgo.MessageFlagsEphemeral == 0 || again.Data.Content != "You already have an active session." {
		t.Errorf("second start = %+v", again.Data)
	}
}

func TestStartResponseOutsideVoice(t *testing.T) {
	b := newTestBot(t)
	resp, _ := b.startResponse(context.Background(), "bob", "Bob", "text-1")
	if resp.Data.Flags&discordgo.MessageFlagsEphemeral == 0 {
		t.Error("rejection should be ephemeral")
	}
	if !strings.Contains(resp.Data.Content, "voice channel") {
		t.Errorf("content = %q", resp.Data.Content)
	}
}

func TestComponentResponseFlow(t *testing.T) {
	b := newTestBot(t)
	b.startResponse(context.Background(), "alice", "Alice", "text-1")

	paused := b.componentResponse("alice", "Alice", customID(ActionPause, "alice"))
	if paused.Type != discordgo.InteractionResponseUpdateMessage {
		t.Fatalf("pause type = %v", paused.Type)
	}
	if got := paused.Data.Embeds[0].Color; got != attendance.ColorPaused {
		t.Errorf("pause color = %#x", got)
	}

	resumed := b.componentResponse("alice", "Alice", customID(ActionResume, "alice"))
	if !strings.Contains(resumed.Data.Content, "resumed") {
		t.Errorf("resume content = %q", resumed.Data.Content)
	}

	ended := b.componentResponse("alice", "Alice", customID(ActionEnd, "alice"))
	if ended.Type != discordgo.InteractionResponseUpdateMessage {
		t.Fatalf("end type = %v", ended.Type)
	}
	if ended.Data.Components == nil || len(ended.Data.Components) != 0 {
		t.Errorf("end components = %#v, want cleared", ended.Data.Components)
	}
	if !strings.Contains(ended.Data.Content, "clocked out") {
		t.Errorf("end content = %q", ended.Data.Content)
	}

	stale := b.componentResponse("alice", "Alice", customID(ActionEnd, "alice"))
	if stale.Data.Content != "You have no active session." {
		t.Errorf("stale end = %q", stale.Data.Content)
	}
}

func TestComponentResponseRejectsOtherUsers(t *testing.T) {
	b := newTestBot(t)
	b.startResponse(context.Background(), "alice", "Alice", "text-1")

	resp := b.componentResponse("mallory", "Mallory", customID(ActionEnd, "alice"))
	if resp.Data.Flags&discordgo.MessageFlagsEphemeral == 0 {
		t.Error("rejection should be ephemeral")
	}
	if _, err := b.tracker.Snapshot("alice"); err != nil {
		t.Errorf("alice's session should survive: %v", err)
	}
}

func TestComponentResponseUnknownID(t *testing.T) {
	b := newTestBot(t)
	resp := b.componentResponse("alice", "Alice", "something-else")
	if resp.Data.Flags&discordgo.MessageFlagsEphemeral == 0 {
		t.Error("unknown components should answer ephemerally")
	}
}

func TestRejection(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{attendance.ErrAlreadyActive, "already_active"},
		{attendance.ErrWrongLocation, "wrong_location"},
		{attendance.ErrNoActiveSession, "no_session"},
		{attendance.ErrAlreadyPaused, "already_paused"},
		{attendance.ErrNotPaused, "not_paused"},
		{attendance.ErrClosed, "closed"},
		{errors.New("gateway down"), "internal"},
	}
	for _, tt := range tests {
		msg, code := rejection(tt.err)
		if code != tt.code {
			t.Errorf("rejection(%v) code = %q, want %q", tt.err, code, tt.code)
		}
		if msg == "" {
			t.Errorf("rejection(%v) has no message", tt.err)
		}
	}
}

func TestInteractionUser(t *testing.T) {
	member := &discordgo.Interaction{Member: &discordgo.Member{Nick: "Ali", User: &discordgo.User{ID: "alice", Username: "alice"}}}
	if u := interactionUser(member); u == nil || u.ID != "alice" {
		t.Errorf("member user = %+v", u)
	}
	if got := memberName(member); got != "Ali" {
		t.Errorf("memberName = %q, want nick", got)
	}

	dm := &discordgo.Interaction{User: &discordgo.User{ID: "bob", Username: "bob"}}
	if u := interactionUser(dm); u == nil || u.ID != "bob" {
		t.Errorf("dm user = %+v", u)
	}
	if got := memberName(dm); got != "bob" {
		t.Errorf("memberName = %q", got)
	}

	if interactionUser(&discordgo.Interaction{}) != nil {
		t.Error("empty interaction should have no user")
	}
}

func TestHandlerPanicIsRecovered(t *testing.T) {
	b := newTestBot(t)
	func() {
		defer b.recoverHandler("test")
		panic("boom")
	}()
}

func TestVoiceUpdateOutsideGuildIgnored(t *testing.T) {
	b := newTestBot(t)
	b.startResponse(context.Background(), "alice", "Alice", "text-1")

	b.onVoiceStateUpdate(nil, &discordgo.VoiceStateUpdate{
		VoiceState:   &discordgo.VoiceState{GuildID: "other", UserID: "alice"},
		BeforeUpdate: &discordgo.VoiceState{GuildID: "other", UserID: "alice", ChannelID: testVoice},
	})
	if _, err := b.tracker.Snapshot("alice"); err != nil {
		t.Errorf("session ended by another guild's update: %v", err)
	}

	b.onVoiceStateUpdate(nil, &discordgo.VoiceStateUpdate{
		VoiceState:   &discordgo.VoiceState{GuildID: testGuild, UserID: "alice"},
		BeforeUpdate: &discordgo.VoiceState{GuildID: testGuild, UserID: "alice", ChannelID: testVoice},
	})
	if _, err := b.tracker.Snapshot("alice"); !errors.Is(err, attendance.ErrNoActiveSession) {
		t.Errorf("leaving the voice channel should end the session, got %v", err)
	}
}

// ///////////////////////////////////////////////
// REST
// ///////////////////////////////////////////////

type restCall struct {
	method string
	path   string
	body   string
}

// restRecorder stands in for Discord's REST API. Every call succeeds with a
// body that decodes as both a message and a guild member.
type restRecorder struct {
	mu    sync.Mutex
	calls []restCall
}

func (r *restRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
	}
	r.mu.Lock()
	r.calls = append(r.calls, restCall{req.Method, req.URL.Path, string(body)})
	r.mu.Unlock()
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       io.NopCloser(strings.NewReader(`{"id":"msg-1","channel_id":"text-1","user":{"id":"someone","username":"someone"}}`)),
		Request:    req,
	}, nil
}

func (r *restRecorder) Calls() []restCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]restCall(nil), r.calls...)
}

func withREST(t *testing.T, b *Bot) *restRecorder {
	t.Helper()
	rec := &restRecorder{}
	b.session.Client = &http.Client{Transport: rec}
	return rec
}

func startInteraction(userID string) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		ID:        "interaction-1",
		AppID:     "app-1",
		Token:     "token-1",
		Type:      discordgo.InteractionApplicationCommand,
		GuildID:   testGuild,
		ChannelID: "text-1",
		Member:    &discordgo.Member{User: &discordgo.User{ID: userID, Username: userID}},
		Data:      discordgo.ApplicationCommandInteractionData{Name: "start"},
	}}
}

func TestStartCommandBindsStatusMessage(t *testing.T) {
	b := newTestBot(t)
	rec := withREST(t, b)

	b.onInteraction(nil, startInteraction("alice"))

	st, err := b.tracker.Snapshot("alice")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if st.MessageID != "msg-1" {
		t.Errorf("MessageID = %q, want msg-1", st.MessageID)
	}
	calls := rec.Calls()
	if len(calls) != 2 || calls[0].method != http.MethodPost || calls[1].method != http.MethodGet {
		t.Errorf("calls = %+v, want respond then fetch", calls)
	}
}

func TestRejectedStartBindsNothing(t *testing.T) {
	b := newTestBot(t)
	rec := withREST(t, b)

	b.onInteraction(nil, startInteraction("bob"))

	if calls := rec.Calls(); len(calls) != 1 {
		t.Errorf("calls = %+v, want only the ephemeral reply", calls)
	}
}

func TestNotifyRetiresStatusMessage(t *testing.T) {
	b := newTestBot(t)
	rec := withREST(t, b)

	resp, st := b.startResponse(context.Background(), "alice", "Alice", "text-1")
	if st.SessionID == "" {
		t.Fatalf("start rejected: %q", resp.Data.Content)
	}
	if err := b.tracker.AttachMessage("alice", st.SessionID, "status-1"); err != nil {
		t.Fatalf("AttachMessage: %v", err)
	}
	b.tracker.HandlePresenceChange(context.Background(), "alice", testVoice, "")

	ended := st
	ended.State = attendance.StateEnded
	ended.Reason = attendance.ReasonPresenceLost
	ended.MessageID = "status-1"
	if err := b.Notify(context.Background(), attendance.Notification{ChannelID: "text-1", UserID: "alice", Text: "bye", Status: ended}); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	var edit, post *restCall
	for _, c := range rec.Calls() {
		switch {
		case c.method == http.MethodPatch && strings.HasSuffix(c.path, "/channels/text-1/messages/status-1"):
			edit = &c
		case c.method == http.MethodPost && strings.HasSuffix(c.path, "/channels/text-1/messages"):
			post = &c
		}
	}
	if edit == nil || post == nil {
		t.Fatalf("calls = %+v, want an edit of the status message and a new notice", rec.Calls())
	}
	var body struct {
		Components *[]json.RawMessage `json:"components"`
	}
	if err := json.Unmarshal([]byte(edit.body), &body); err != nil {
		t.Fatalf("decode edit: %v", err)
	}
	if body.Components == nil || len(*body.Components) != 0 {
		t.Errorf("edit body = %s, want buttons cleared", edit.body)
	}
}

func TestNotifyWithoutStatusMessageOnlyPosts(t *testing.T) {
	b := newTestBot(t)
	rec := withREST(t, b)

	err := b.Notify(context.Background(), attendance.Notification{
		ChannelID: "text-1",
		UserID:    "alice",
		Status:    attendance.Status{UserID: "alice", State: attendance.StateEnded},
	})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	for _, c := range rec.Calls() {
		if c.method == http.MethodPatch {
			t.Errorf("unexpected edit %+v", c)
		}
	}
}

func TestHistoryCommandSendsFollowups(t *testing.T) {
	b := newTestBot(t)
	rec := withREST(t, b)

	led := ledger.New(filepath.Join(t.TempDir(), "ledger.json"))
	start := time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC)
	for u := range 10 {
		for d := range 30 {
			if err := led.RecordDuration(fmt.Sprintf("user-%d", u), ledger.DateOf(start.AddDate(0, 0, d), time.UTC), 8*time.Hour); err != nil {
				t.Fatalf("RecordDuration: %v", err)
			}
		}
	}
	b.opts.Ledger = led

	ic := startInteraction("alice")
	ic.Data = discordgo.ApplicationCommandInteractionData{Name: "history"}
	b.onInteraction(nil, ic)

	var edits, followups int
	for _, c := range rec.Calls() {
		switch {
		case c.method == http.MethodPatch && strings.HasSuffix(c.path, "/messages/@original"):
			edits++
		case c.method == http.MethodPost && strings.HasSuffix(c.path, "/webhooks/app-1/token-1"):
			followups++
			if !strings.Contains(c.body, `"flags":64`) {
				t.Errorf("followup is not ephemeral: %s", c.body)
			}
		}
	}
	if edits != 1 || followups == 0 {
		t.Errorf("edits = %d, followups = %d; want the first page edited in and the rest followed up", edits, followups)
	}
}
