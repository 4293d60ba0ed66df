package ledger

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"tools.zach/dev/clockcord/internal/migrate"
)

// DefaultLegacyLayouts covers the two locales v1 files were written
// under: pt-BR (dd/mm/yyyy) first, then en-US (m/d/yyyy).
var DefaultLegacyLayouts = []string{"02/01/2006", "1/2/2006"}

// registry returns the ledger migrations. It is built per load because the
// legacy upgrade needs the configured date layouts.
func registry(opts Options) *migrate.Registry {
	layouts := opts.LegacyLayouts
	if len(layouts) == 0 {
		layouts = DefaultLegacyLayouts
	}
	r := &migrate.Registry{CurrentVersion: CurrentVersion}
	r.Register(migrate.Migration{
		Version:     2,
		Description: "convert legacy [userId, {localeDate: ms}] pairs",
		Upgrade: func(data []byte) ([]byte, error) {
			return upgradeLegacy(data, layouts)
		},
	})
	return r
}

// upgradeLegacy rewrites a v1 dailyData.json into the current
// document format. Day keys that parse to the same calendar day are merged.
func upgradeLegacy(data []byte, layouts []string) ([]byte, error) {
	var pairs [][]json.RawMessage
	if err := json.Unmarshal(data, &pairs); err != nil {
		return nil, fmt.Errorf("decode legacy ledger: %w", err)
	}

	type legacyEntry struct {
		userID string
		raw    map[string]float64
	}
	parsed := make([]legacyEntry, 0, len(pairs))
	var keys []string
	for i, p := range pairs {
		if len(p) != 2 {
			return nil, fmt.Errorf("legacy entry %d: want [userId, days], got %d elements", i, len(p))
		}
		var e legacyEntry
		if err := json.Unmarshal(p[0], &e.userID); err != nil {
			return nil, fmt.Errorf("legacy entry %d: user id: %w", i, err)
		}
		if err := json.Unmarshal(p[1], &e.raw); err != nil {
			return nil, fmt.Errorf("legacy entry %d: days: %w", i, err)
		}
		for key := range e.raw {
			keys = append(keys, key)
		}
		parsed = append(parsed, e)
	}

	// A v1 file was written under a single locale, so one layout should
	// read all of its keys. Fall back to trying layouts per key otherwise.
	if layout, ok := fileLayout(keys, layouts); ok {
		layouts = []string{layout}
	}

	doc := document{Version: CurrentVersion, Entries: make([]entry, 0, len(parsed))}
	for i, e := range parsed {
		days := make(map[Date]int64, len(e.raw))
		for key, ms := range e.raw {
			d, err := parseLegacyDate(key, layouts)
			if err != nil {
				return nil, fmt.Errorf("legacy entry %d (user %s): %w", i, e.userID, err)
			}
			days[d] += int64(math.Round(ms))
		}
		doc.Entries = append(doc.Entries, entry{UserID: e.userID, Days: days})
	}
	return json.Marshal(doc)
}

// fileLayout returns the first layout that parses every key. Keys already
// in YYYY-MM-DD form do not take part in the choice.
func fileLayout(keys, layouts []string) (string, bool) {
	var locale []string
	for _, k := range keys {
		if _, err := time.Parse(dateLayout, k); err != nil {
			locale = append(locale, k)
		}
	}
	if len(locale) == 0 {
		return "", false
	}
next:
	for _, layout := range layouts {
		for _, k := range locale {
			if _, err := time.Parse(layout, k); err != nil {
				continue next
			}
		}
		return layout, true
	}
	return "", false
}

// parseLegacyDate tries each layout in order. A YYYY-MM-DD key is accepted
// too, for files that were hand-edited.
func parseLegacyDate(s string, layouts []string) (Date, error) {
	for _, layout := range append([]string{dateLayout}, layouts...) {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOf(t, nil), nil
		}
	}
	return Date{}, fmt.Errorf("unrecognized legacy date %q", s)
}
