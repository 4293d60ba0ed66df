package ledger

import "time"

// DayTotal is one day of a user's history.
type DayTotal struct {
	Day   Date
	Total time.Duration
}

// UserHistory is one user's recorded days, in report order.
type UserHistory struct {
	UserID string
	Name   string
	Days   []DayTotal
}

// Sum returns the total over all listed days.
func (h UserHistory) Sum() time.Duration {
	var sum time.Duration
	for _, d := range h.Days {
		sum += d.Total
	}
	return sum
}

// HistoryOptions shapes [Ledger.History].
type HistoryOptions struct {
	// Name resolves a display name. Nil, or an empty result, uses the id.
	Name func(userID string) string
	// Exclude hides users. It sees the resolved name.
	Exclude func(userID, name string) bool
	// Only restricts the result to these users when non-empty.
	Only []string
	// MaxDays keeps each user's most recent days (0 = all).
	MaxDays int
}

// History collects every user's days in ledger order.
func (l *Ledger) History(opts HistoryOptions) []UserHistory {
	var only map[string]bool
	if len(opts.Only) > 0 {
		only = make(map[string]bool, len(opts.Only))
		for _, id := range opts.Only {
			only[id] = true
		}
	}

	var out []UserHistory
	for id := range l.Users() {
		if only != nil && !only[id] {
			continue
		}
		name := id
		if opts.Name != nil {
			if n := opts.Name(id); n != "" {
				name = n
			}
		}
		if opts.Exclude != nil && opts.Exclude(id, name) {
			continue
		}

		h := UserHistory{UserID: id, Name: name}
		for day, total := range l.Report(id) {
			h.Days = append(h.Days, DayTotal{Day: day, Total: total})
		}
		if opts.MaxDays > 0 && len(h.Days) > opts.MaxDays {
			h.Days = h.Days[len(h.Days)-opts.MaxDays:]
		}
		out = append(out, h)
	}
	return out
}
