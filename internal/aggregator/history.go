package aggregator

import (
	"slices"
	"time"
)

// Occurrence is one timestamped entry in the global error history.
type Occurrence struct {
	Timestamp time.Time
	Event     ErrorEvent
}

// history is a chronological buffer of recent occurrences, bounded both by
// entry count and by age so a long-running process cannot grow without limit.
// Not safe for concurrent use; the Aggregator serializes access.
type history struct {
	entries    []Occurrence
	maxEntries int
	maxAge     time.Duration
}

func newHistory(maxEntries int, maxAge time.Duration) *history {
	return &history{
		maxEntries: maxEntries,
		maxAge:     maxAge,
	}
}

// append adds an occurrence and evicts entries that are too old or beyond
// the count cap, oldest first.
func (h *history) append(occ Occurrence) {
	h.entries = append(h.entries, occ)

	cutoff := occ.Timestamp.Add(-h.maxAge)
	start := 0
	for start < len(h.entries) && h.entries[start].Timestamp.Before(cutoff) {
		start++
	}
	h.entries = h.entries[start:]

	if len(h.entries) > h.maxEntries {
		h.entries = h.entries[len(h.entries)-h.maxEntries:]
	}
}

// snapshot returns a copy of the current entries, oldest first.
func (h *history) snapshot() []Occurrence {
	return slices.Clone(h.entries)
}

func (h *history) len() int {
	return len(h.entries)
}
