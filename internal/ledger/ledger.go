// Package ledger implements the persistent daily attendance ledger: for
// every user, the milliseconds worked on each calendar day.
//
// The whole ledger lives in memory and is rewritten to a single JSON file
// after every mutation:
//
//	{"$version":2,"entries":[{"userId":"123","days":{"2026-10-19":5400000}}]}
//
// Totals only grow. Users and days are added lazily and keep insertion
// order for reporting. Unversioned v1 files (a bare array of
// [userId, {localeDate: ms}] pairs) are upgraded on load; see legacy.go.
package ledger

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"tools.zach/dev/clockcord/internal/atomicfile"
)

// CurrentVersion is the ledger file schema version written by [Ledger.Flush].
const CurrentVersion = 2

// ///////////////////////////////////////////////
// Sentinel Errors
// ///////////////////////////////////////////////

var (
	// ErrStorageCorrupt is returned by [Load] when the file exists but cannot
	// be decoded. It is a startup error and is never recovered automatically.
	ErrStorageCorrupt = errors.New("ledger storage corrupt")

	// ErrStorageWriteFailed is returned when a flush fails. The in-memory
	// ledger keeps the mutation; the file catches up on the next good flush.
	ErrStorageWriteFailed = errors.New("ledger storage write failed")
)

// ///////////////////////////////////////////////
// File Format
// ///////////////////////////////////////////////

// document is the on-disk shape of the ledger.
type document struct {
	Version int     `json:"$version"`
	Entries []entry `json:"entries"`
}

// entry holds one user's per-day totals in milliseconds.
type entry struct {
	UserID string         `json:"userId"`
	Days   map[Date]int64 `json:"days"`
}

// ///////////////////////////////////////////////
// Ledger
// ///////////////////////////////////////////////

// account is one user's days, with insertion order kept alongside the map.
type account struct {
	days  map[Date]int64
	order []Date
}

// Ledger is the process-wide attendance ledger. It is safe for concurrent use.
type Ledger struct {
	path string

	mu    sync.Mutex
	users map[string]*account
	order []string
}

// New returns an empty ledger that flushes to path.
func New(path string) *Ledger {
	return &Ledger{path: path, users: make(map[string]*account)}
}

// Path returns the file the ledger flushes to.
func (l *Ledger) Path() string { return l.path }

// Options tunes [Load].
type Options struct {
	// LegacyLayouts are time.Parse layouts tried, in order, on the locale
	// date strings of a legacy file.
	LegacyLayouts []string
}

// Load reads the ledger at path. A missing file yields an empty ledger.
// Unreadable or malformed content yields an error wrapping
// [ErrStorageCorrupt]. Legacy files are upgraded in memory, the original is
// kept as path+".v1.bak" and the upgraded ledger is flushed.
func Load(path string, opts Options) (*Ledger, error) {
	l := New(path)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return l, nil
		}
		return nil, fmt.Errorf("%w: read %s: %w", ErrStorageCorrupt, path, err)
	}

	version, err := peekVersion(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrStorageCorrupt, path, err)
	}
	if version > CurrentVersion {
		return nil, fmt.Errorf("%w: %s has version %d, newest supported is %d", ErrStorageCorrupt, path, version, CurrentVersion)
	}

	migrated := false
	reg := registry(opts)
	if reg.NeedsMigration(version) {
		if data, version, err = reg.Run(data, version); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrStorageCorrupt, path, err)
		}
		migrated = true
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrStorageCorrupt, path, err)
	}
	if err := l.restore(doc.Entries); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrStorageCorrupt, path, err)
	}

	if migrated {
		slog.Info("ledger upgraded", "path", path, "version", version, "users", len(l.order))
		bak := path + ".v1.bak"
		if orig, rErr := os.ReadFile(path); rErr == nil {
			if wErr := os.WriteFile(bak, orig, 0o600); wErr != nil {
				slog.Warn("failed to write ledger backup", "path", bak, "error", wErr)
			}
		}
		if err := l.Flush(); err != nil {
			slog.Warn("failed to save upgraded ledger", "path", path, "error", err)
		}
	}
	return l, nil
}

// peekVersion reports the schema version of raw ledger bytes. A top-level
// array is the unversioned legacy format (version 1); an object without
// "$version" is treated as current.
func peekVersion(data []byte) (int, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return 1, nil
	}
	var partial struct {
		Version int `json:"$version"`
	}
	if err := json.Unmarshal(trimmed, &partial); err != nil {
		return 0, fmt.Errorf("peeking version: %w", err)
	}
	if partial.Version == 0 {
		return CurrentVersion, nil
	}
	return partial.Version, nil
}

// restore fills an empty ledger from decoded entries. Days are ordered
// chronologically since that is the order they were originally recorded in.
func (l *Ledger) restore(entries []entry) error {
	for _, e := range entries {
		if e.UserID == "" {
			return errors.New("entry with empty userId")
		}
		acct := l.account(e.UserID)
		dates := make([]Date, 0, len(e.Days))
		for d, ms := range e.Days {
			if ms < 0 {
				return fmt.Errorf("user %s: negative total %d on %s", e.UserID, ms, d)
			}
			dates = append(dates, d)
		}
		slices.SortFunc(dates, Date.Compare)
		for _, d := range dates {
			if _, seen := acct.days[d]; !seen {
				acct.order = append(acct.order, d)
			}
			acct.days[d] += e.Days[d]
		}
	}
	return nil
}

// account returns the user's account, creating it on first use. The
// caller must hold l.mu (or own l exclusively, as during Load).
func (l *Ledger) account(userID string) *account {
	acct, ok := l.users[userID]
	if !ok {
		acct = &account{days: make(map[Date]int64)}
		l.users[userID] = acct
		l.order = append(l.order, userID)
	}
	return acct
}

// ///////////////////////////////////////////////
// Mutation
// ///////////////////////////////////////////////

// RecordDuration adds d to the user's total for date and flushes the whole
// ledger. Negative durations count as zero so totals never shrink. When the
// flush fails the returned error wraps [ErrStorageWriteFailed] and the new
// total stays in memory.
func (l *Ledger) RecordDuration(userID string, date Date, d time.Duration) error {
	ms := max(d.Milliseconds(), 0)

	l.mu.Lock()
	defer l.mu.Unlock()

	acct := l.account(userID)
	if _, ok := acct.days[date]; !ok {
		acct.order = append(acct.order, date)
	}
	acct.days[date] += ms

	return l.flushLocked()
}

// Flush rewrites the ledger file with the full in-memory contents.
func (l *Ledger) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flushLocked()
}

// flushLocked serializes and atomically replaces the file. The caller must hold l.mu.
func (l *Ledger) flushLocked() error {
	doc := document{Version: CurrentVersion, Entries: make([]entry, 0, len(l.order))}
	for _, id := range l.order {
		doc.Entries = append(doc.Entries, entry{UserID: id, Days: l.users[id].days})
	}

	err := atomicfile.WriteFunc(l.path, 0o600, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrStorageWriteFailed, l.path, err)
	}
	return nil
}

// ///////////////////////////////////////////////
// Queries
// ///////////////////////////////////////////////

// Total returns the user's accumulated time on date.
func (l *Ledger) Total(userID string, date Date) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	if acct, ok := l.users[userID]; ok {
		return time.Duration(acct.days[date]) * time.Millisecond
	}
	return 0
}

// Report yields the user's (day, total) pairs in insertion order. Each
// range over the result takes a fresh snapshot, so the sequence can be
// iterated any number of times and never observes a half-applied update.
func (l *Ledger) Report(userID string) iter.Seq2[Date, time.Duration] {
	return func(yield func(Date, time.Duration) bool) {
		l.mu.Lock()
		acct, ok := l.users[userID]
		var dates []Date
		var totals []int64
		if ok {
			dates = slices.Clone(acct.order)
			totals = make([]int64, len(dates))
			for i, d := range dates {
				totals[i] = acct.days[d]
			}
		}
		l.mu.Unlock()

		for i, d := range dates {
			if !yield(d, time.Duration(totals[i])*time.Millisecond) {
				return
			}
		}
	}
}

// Users yields every user with at least one recorded day, in the order
// they were first recorded.
func (l *Ledger) Users() iter.Seq[string] {
	return func(yield func(string) bool) {
		l.mu.Lock()
		ids := slices.Clone(l.order)
		l.mu.Unlock()

		for _, id := range ids {
			if !yield(id) {
				return
			}
		}
	}
}

// Len returns the number of users in the ledger.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.order)
}
