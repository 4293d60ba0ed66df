// Package attendance implements the clock-in session tracker.
//
// A [Tracker] owns every active session. Sessions move through
// Working → Paused → Working … → Ended, driven by user commands
// ([Tracker.Start], [Tracker.Pause], [Tracker.Resume], [Tracker.End]),
// voice-state transitions ([Tracker.HandlePresenceChange]) and a
// per-session watchdog that re-checks the user's voice channel. Ending a
// session hands its worked time to the ledger.
//
// The package talks to the outside world only through the
// [PresenceSource], [Recorder] and [Notifier] interfaces; the Discord
// adapter in internal/discord implements the first and last.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"tools.zach/dev/clockcord/internal/ledger"
)

// ///////////////////////////////////////////////
// Sentinel Errors
// ///////////////////////////////////////////////

var (
	// ErrAlreadyActive is returned by Start when the user is already clocked in.
	ErrAlreadyActive = errors.New("session already active")
	// ErrWrongLocation is returned by Start when the user is not in the
	// required voice channel.
	ErrWrongLocation = errors.New("not in the required voice channel")
	// ErrNoActiveSession is returned when the user has no session.
	ErrNoActiveSession = errors.New("no active session")
	// ErrAlreadyPaused is returned by Pause on a paused session.
	ErrAlreadyPaused = errors.New("session already paused")
	// ErrNotPaused is returned by Resume on a running session.
	ErrNotPaused = errors.New("session not paused")
	// ErrClosed is returned by Start after the tracker has been closed.
	ErrClosed = errors.New("tracker closed")
)

// ///////////////////////////////////////////////
// Collaborators
// ///////////////////////////////////////////////

// PresenceSource reports which voice channel a user is connected to.
// An empty location means the user is not connected anywhere.
type PresenceSource interface {
	CurrentLocation(ctx context.Context, userID string) (string, error)
}

// Recorder accumulates finished sessions. *ledger.Ledger satisfies it.
type Recorder interface {
	RecordDuration(userID string, date ledger.Date, d time.Duration) error
}

// Notifier delivers a status message. Delivery is best effort: errors are
// logged by the caller and never undo the transition being reported.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Notification is a rendered status update addressed to a text channel
// and, optionally, a user to mention.
type Notification struct {
	ChannelID string
	UserID    string
	Text      string
	Status    Status
}

// ///////////////////////////////////////////////
// Events and States
// ///////////////////////////////////////////////

// EventKind labels an entry in a session's history.
type EventKind int

const (
	EventStart EventKind = iota
	EventPause
	EventResume
	EventEnd
)

func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "Start"
	case EventPause:
		return "Pause"
	case EventResume:
		return "Resume"
	case EventEnd:
		return "End"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is one timestamped transition.
type Event struct {
	Kind EventKind
	At   time.Time
}

// State is the externally visible phase of a session.
type State int

const (
	StateWorking State = iota
	StatePaused
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateWorking:
		return "Working"
	case StatePaused:
		return "Paused"
	case StateEnded:
		return "Ended"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// EndReason explains why a session ended.
type EndReason int

const (
	// ReasonNone is the zero value, used while a session is live.
	ReasonNone EndReason = iota
	// ReasonUser is an explicit End from the user.
	ReasonUser
	// ReasonPresenceLost means the user left the required voice channel.
	ReasonPresenceLost
	// ReasonShutdown means the daemon stopped with the session open.
	ReasonShutdown
)

func (r EndReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonUser:
		return "user"
	case ReasonPresenceLost:
		return "presence_lost"
	case ReasonShutdown:
		return "shutdown"
	default:
		return fmt.Sprintf("EndReason(%d)", int(r))
	}
}

// ///////////////////////////////////////////////
// Status
// ///////////////////////////////////////////////

// Status is an immutable snapshot of a session, suitable for rendering.
type Status struct {
	SessionID string
	UserID    string
	ChannelID string
	State     State
	StartedAt time.Time
	// Elapsed is the worked time so far, excluding pauses. For an ended
	// session it is the total that was recorded.
	Elapsed time.Duration
	Events  []Event
	// Reason and Day are set only once the session has ended.
	Reason EndReason
	Day    ledger.Date
	// MessageID is the status message carrying the session's buttons, if
	// one was attached with [Tracker.AttachMessage].
	MessageID string
}

// ///////////////////////////////////////////////
// Session
// ///////////////////////////////////////////////

// session is the mutable record behind a Status. It is only touched with
// the owning Tracker's mutex held.
type session struct {
	id        string
	userID    string
	channelID string
	messageID string

	startedAt        time.Time
	pauseAccumulated time.Duration
	paused           bool
	pauseStartedAt   time.Time // zero unless paused

	events   []Event
	watchdog *watchdog
}

// worked returns the effective time at now: wall time since start minus
// completed pauses minus the pause in progress, never negative.
func (s *session) worked(now time.Time) time.Duration {
	d := now.Sub(s.startedAt) - s.pauseAccumulated
	if s.paused {
		d -= now.Sub(s.pauseStartedAt)
	}
	return max(d, 0)
}

// status snapshots s at now.
func (s *session) status(now time.Time) Status {
	st := Status{
		SessionID: s.id,
		UserID:    s.userID,
		ChannelID: s.channelID,
		MessageID: s.messageID,
		State:     StateWorking,
		StartedAt: s.startedAt,
		Elapsed:   s.worked(now),
		Events:    slices.Clone(s.events),
	}
	if s.paused {
		st.State = StatePaused
	}
	return st
}
