package chat

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// UntitledGroup is the bucket for history entries saved without a title.
const UntitledGroup = "Untitled Session"

// HistoryEntry is the read-only listing projection of a saved session.
// Date comes back from the server as a naive UTC timestamp, usually without
// a trailing zone marker.
type HistoryEntry struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	Date         string `json:"date"`
	MessageCount int    `json:"message_count"`
}

// HistoryGroup is a title bucket in the sidebar listing.
type HistoryGroup struct {
	Title   string
	Entries []HistoryEntry
	// Latest is the most recent entry timestamp in the group and drives the
	// group ordering. Zero when no entry date parses.
	Latest time.Time
}

// HasEntry reports whether the group contains the given session id. Used for
// selection highlighting only; it plays no part in state transitions.
func (g HistoryGroup) HasEntry(id int64) bool {
	for _, e := range g.Entries {
		if e.ID == id {
			return true
		}
	}
	return false
}

// GroupHistory buckets entries by title (untitled ones under UntitledGroup)
// and orders groups by their most recent entry, newest first. Entry order
// within a group is preserved as delivered by the server (already newest
// first).
func GroupHistory(entries []HistoryEntry) []HistoryGroup {
	byTitle := map[string]*HistoryGroup{}
	order := []string{}
	for _, e := range entries {
		title := e.Title
		if title == "" {
			title = UntitledGroup
		}
		g, ok := byTitle[title]
		if !ok {
			g = &HistoryGroup{Title: title}
			byTitle[title] = g
			order = append(order, title)
		}
		g.Entries = append(g.Entries, e)
		if ts, err := ParseServerDate(e.Date); err == nil && ts.After(g.Latest) {
			g.Latest = ts
		}
	}

	groups := make([]HistoryGroup, 0, len(order))
	for _, title := range order {
		groups = append(groups, *byTitle[title])
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Latest.After(groups[j].Latest)
	})
	return groups
}

// ParseServerDate parses a session timestamp. The server emits naive UTC
// timestamps (no zone suffix), so a missing marker gets a "Z" appended before
// parsing rather than being read as local time.
func ParseServerDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if !strings.HasSuffix(s, "Z") && !hasZoneOffset(s) {
		s += "Z"
	}
	return time.Parse(time.RFC3339, s)
}

func hasZoneOffset(s string) bool {
	// An offset sign can only appear after the time part ('T' sits at index
	// 10 in RFC 3339); a '-' before that is just a date separator.
	for i := 11; i < len(s); i++ {
		if s[i] == '+' || s[i] == '-' {
			return true
		}
	}
	return false
}

// RelativeTime renders an entry timestamp for the listing: "Just now" inside
// a minute, then minutes, then hours, then the plain date.
func RelativeTime(date string, now time.Time) string {
	ts, err := ParseServerDate(date)
	if err != nil {
		return date
	}
	diff := now.Sub(ts)
	switch {
	case diff < time.Minute:
		return "Just now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	default:
		return ts.Format("Jan 2, 2006")
	}
}
