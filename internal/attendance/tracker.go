package attendance

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"tools.zach/dev/clockcord/internal/ledger"
	"tools.zach/dev/clockcord/internal/logger"
	"tools.zach/dev/clockcord/internal/metrics"
)

// DefaultWatchdogInterval is how often a live session's voice channel is
// re-checked when Config leaves it unset.
const DefaultWatchdogInterval = 1500 * time.Millisecond

// notifyTimeout bounds a single notification delivery.
const notifyTimeout = 10 * time.Second

// Config wires a Tracker to its environment.
type Config struct {
	// RequiredLocation is the voice channel a user must be in to work.
	RequiredLocation string
	WatchdogInterval time.Duration
	// Location decides which calendar day a finished session is recorded
	// under. Nil means time.Local.
	Location *time.Location
	// RecordOnShutdown controls whether Close records the sessions it ends.
	RecordOnShutdown bool
	// Clock returns the current time. Nil means time.Now.
	Clock  func() time.Time
	Logger *slog.Logger
}

// Tracker owns the per-user sessions. Every transition runs under one
// mutex; presence lookups, ledger writes and notifications happen outside
// it, after the transition they belong to has been committed.
type Tracker struct {
	presence PresenceSource
	recorder Recorder
	notifier Notifier

	now              func() time.Time
	loc              *time.Location
	interval         time.Duration
	recordOnShutdown bool
	log              *slog.Logger

	mu       sync.Mutex
	required string
	sessions map[string]*session
	closed   bool
}

// NewTracker returns a Tracker. notifier may be nil, in which case forced
// ends are only logged.
func NewTracker(presence PresenceSource, recorder Recorder, notifier Notifier, cfg Config) *Tracker {
	t := &Tracker{
		presence:         presence,
		recorder:         recorder,
		notifier:         notifier,
		now:              cfg.Clock,
		loc:              cfg.Location,
		interval:         cfg.WatchdogInterval,
		recordOnShutdown: cfg.RecordOnShutdown,
		log:              cfg.Logger,
		required:         cfg.RequiredLocation,
		sessions:         make(map[string]*session),
	}
	if t.now == nil {
		t.now = time.Now
	}
	if t.loc == nil {
		t.loc = time.Local
	}
	if t.interval <= 0 {
		t.interval = DefaultWatchdogInterval
	}
	if t.log == nil {
		t.log = slog.Default()
	}
	t.log = t.log.With("component", "tracker")
	return t
}

// ///////////////////////////////////////////////
// Required Location
// ///////////////////////////////////////////////

// SetRequiredLocation changes the voice channel sessions are bound to. Live
// sessions are judged against the new channel from their next check on.
func (t *Tracker) SetRequiredLocation(loc string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if loc != t.required {
		t.log.Info("required voice channel changed", "from", t.required, "to", loc)
	}
	t.required = loc
}

// RequiredLocation returns the voice channel sessions are bound to.
func (t *Tracker) RequiredLocation() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.required
}

// ///////////////////////////////////////////////
// User Transitions
// ///////////////////////////////////////////////

// Start clocks the user in. channelID is the text channel status updates
// for this session are sent to. The user must currently be connected to
// the required voice channel and must not already have a session.
func (t *Tracker) Start(ctx context.Context, userID, channelID string) (Status, error) {
	// Cheap rejection before the presence round trip.
	t.mu.Lock()
	if err := t.startAllowedLocked(userID); err != nil {
		t.mu.Unlock()
		return Status{}, err
	}
	t.mu.Unlock()

	loc, err := t.presence.CurrentLocation(ctx, userID)
	if err != nil {
		return Status{}, fmt.Errorf("looking up voice channel: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// Re-check: another Start may have won while the lookup was in flight.
	if err := t.startAllowedLocked(userID); err != nil {
		return Status{}, err
	}
	if loc == "" || loc != t.required {
		return Status{}, ErrWrongLocation
	}

	now := t.now()
	s := &session{
		id:        uuid.NewString(),
		userID:    userID,
		channelID: channelID,
		startedAt: now,
		events:    []Event{{Kind: EventStart, At: now}},
	}
	s.watchdog = t.startWatchdog(s)
	t.sessions[userID] = s

	metrics.SessionsActive.Inc()
	metrics.SessionTransitions.WithLabelValues("start").Inc()
	t.log.Info("session started", "user", userID, "session", s.id, "channel", channelID)
	return s.status(now), nil
}

func (t *Tracker) startAllowedLocked(userID string) error {
	if t.closed {
		return ErrClosed
	}
	if _, ok := t.sessions[userID]; ok {
		return ErrAlreadyActive
	}
	return nil
}

// Pause stops the clock on the user's session.
func (t *Tracker) Pause(userID string) (Status, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[userID]
	if !ok {
		return Status{}, ErrNoActiveSession
	}
	if s.paused {
		return Status{}, ErrAlreadyPaused
	}

	now := t.now()
	s.paused = true
	s.pauseStartedAt = now
	s.events = append(s.events, Event{Kind: EventPause, At: now})

	metrics.SessionTransitions.WithLabelValues("pause").Inc()
	t.log.Info("session paused", "user", userID, "session", s.id)
	return s.status(now), nil
}

// Resume restarts the clock on a paused session.
func (t *Tracker) Resume(userID string) (Status, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[userID]
	if !ok {
		return Status{}, ErrNoActiveSession
	}
	if !s.paused {
		return Status{}, ErrNotPaused
	}

	now := t.now()
	s.pauseAccumulated += now.Sub(s.pauseStartedAt)
	s.paused = false
	s.pauseStartedAt = time.Time{}
	s.events = append(s.events, Event{Kind: EventResume, At: now})

	metrics.SessionTransitions.WithLabelValues("resume").Inc()
	t.log.Info("session resumed", "user", userID, "session", s.id)
	return s.status(now), nil
}

// End clocks the user out and records the worked time under today's date.
// The returned Status is the final summary. A failed ledger write is logged
// and does not fail End; the total stays in the in-memory ledger.
func (t *Tracker) End(userID string) (Status, error) {
	t.mu.Lock()
	s, ok := t.sessions[userID]
	if !ok {
		t.mu.Unlock()
		return Status{}, ErrNoActiveSession
	}
	st := t.finishLocked(s, ReasonUser)
	t.mu.Unlock()

	t.record(st)
	return st, nil
}

// AttachMessage records messageID as the status message of the user's
// session sessionID, so a forced end can retire its buttons. It returns
// [ErrNoActiveSession] when that session is no longer live.
func (t *Tracker) AttachMessage(userID, sessionID, messageID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[userID]
	if !ok || s.id != sessionID {
		return ErrNoActiveSession
	}
	s.messageID = messageID
	return nil
}

// ///////////////////////////////////////////////
// Presence
// ///////////////////////////////////////////////

// HandlePresenceChange applies a voice-state transition for userID. If the
// user has a session and newLoc is not the required channel, the session
// is force-ended and its channel is notified. It reports whether a session
// was ended.
func (t *Tracker) HandlePresenceChange(ctx context.Context, userID, oldLoc, newLoc string) bool {
	t.mu.Lock()
	s, ok := t.sessions[userID]
	if !ok || newLoc == t.required {
		t.mu.Unlock()
		return false
	}
	t.log.Debug("voice state change ends session", "user", userID, "from", oldLoc, "to", newLoc)
	st := t.finishLocked(s, ReasonPresenceLost)
	t.mu.Unlock()

	t.record(st)
	t.notify(ctx, st)
	return true
}

// checkPresence is one watchdog tick for s.
func (t *Tracker) checkPresence(ctx context.Context, s *session) {
	t.mu.Lock()
	live := t.sessions[s.userID] == s
	t.mu.Unlock()
	if !live {
		return
	}

	lookupCtx, cancel := context.WithTimeout(ctx, t.interval)
	loc, err := t.presence.CurrentLocation(lookupCtx, s.userID)
	cancel()
	if err != nil {
		metrics.WatchdogChecks.WithLabelValues("error").Inc()
		t.log.Warn("presence lookup failed, skipping check", "user", s.userID, "error", err)
		return
	}

	t.mu.Lock()
	// The session may have ended, or been replaced, during the lookup.
	if t.sessions[s.userID] != s || s.watchdog.stopped() {
		t.mu.Unlock()
		return
	}
	if loc == t.required {
		t.mu.Unlock()
		metrics.WatchdogChecks.WithLabelValues("present").Inc()
		logger.Trace(t.log, "watchdog check passed", "user", s.userID)
		return
	}
	metrics.WatchdogChecks.WithLabelValues("absent").Inc()
	st := t.finishLocked(s, ReasonPresenceLost)
	t.mu.Unlock()

	t.record(st)
	t.notify(ctx, st)
}

// ///////////////////////////////////////////////
// Queries
// ///////////////////////////////////////////////

// Snapshot returns the user's current status without changing it.
func (t *Tracker) Snapshot(userID string) (Status, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[userID]
	if !ok {
		return Status{}, ErrNoActiveSession
	}
	return s.status(t.now()), nil
}

// Active returns every live session, oldest first.
func (t *Tracker) Active() []Status {
	t.mu.Lock()
	now := t.now()
	out := make([]Status, 0, len(t.sessions))
	for _, s := range t.sessions {
		out = append(out, s.status(now))
	}
	t.mu.Unlock()

	slices.SortFunc(out, func(a, b Status) int { return a.StartedAt.Compare(b.StartedAt) })
	return out
}

// ///////////////////////////////////////////////
// Shutdown
// ///////////////////////////////////////////////

// Close ends every live session with [ReasonShutdown], recording each one
// when RecordOnShutdown is set, and waits for the watchdogs to exit or ctx
// to expire. Start fails with [ErrClosed] afterwards.
func (t *Tracker) Close(ctx context.Context) error {
	t.mu.Lock()
	t.closed = true
	ended := make([]Status, 0, len(t.sessions))
	dogs := make([]*watchdog, 0, len(t.sessions))
	for _, s := range t.sessions {
		dogs = append(dogs, s.watchdog)
		ended = append(ended, t.finishLocked(s, ReasonShutdown))
	}
	t.mu.Unlock()

	for _, st := range ended {
		if t.recordOnShutdown {
			t.record(st)
		}
		t.notify(ctx, st)
	}

	for _, w := range dogs {
		select {
		case <-w.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// ///////////////////////////////////////////////
// Internals
// ///////////////////////////////////////////////

// finishLocked stops s's watchdog, appends End, removes s from the live
// set and returns the ended status. The caller must hold t.mu.
func (t *Tracker) finishLocked(s *session, reason EndReason) Status {
	s.watchdog.cancel()

	now := t.now()
	worked := s.worked(now)
	s.events = append(s.events, Event{Kind: EventEnd, At: now})
	delete(t.sessions, s.userID)

	st := s.status(now)
	st.State = StateEnded
	st.Elapsed = worked
	st.Reason = reason
	st.Day = ledger.DateOf(now, t.loc)

	metrics.SessionsActive.Dec()
	metrics.SessionTransitions.WithLabelValues("end").Inc()
	metrics.SessionsEnded.WithLabelValues(reason.String()).Inc()
	metrics.SessionWorkedSeconds.Observe(worked.Seconds())
	t.log.Info("session ended",
		"user", s.userID,
		"session", s.id,
		"reason", reason.String(),
		"worked", worked.Round(time.Second).String(),
	)
	return st
}

// record hands an ended session to the ledger.
func (t *Tracker) record(st Status) {
	if err := t.recorder.RecordDuration(st.UserID, st.Day, st.Elapsed); err != nil {
		metrics.LedgerWriteErrors.Inc()
		t.log.Error("failed to record session", "user", st.UserID, "session", st.SessionID, "error", err)
	}
}

// notify reports a session the user did not end themselves.
func (t *Tracker) notify(ctx context.Context, st Status) {
	if t.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	n := Notification{
		ChannelID: st.ChannelID,
		UserID:    st.UserID,
		Text:      EndMessage(st),
		Status:    st,
	}
	if err := t.notifier.Notify(ctx, n); err != nil {
		t.log.Warn("failed to send notification", "user", st.UserID, "channel", st.ChannelID, "error", err)
	}
}
