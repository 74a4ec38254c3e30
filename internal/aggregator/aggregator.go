package aggregator

import (
	"sort"
	"sync"
	"time"
)

// Config bounds the aggregator's in-memory state.
type Config struct {
	MaxHistoryEntries    int
	MaxHistoryAge        time.Duration
	MaxSamplesPerPattern int
}

// DefaultConfig returns the retention bounds used when none are configured.
func DefaultConfig() Config {
	return Config{
		MaxHistoryEntries:    10000,
		MaxHistoryAge:        24 * time.Hour,
		MaxSamplesPerPattern: 10,
	}
}

// Aggregator maintains the signature→pattern map and the global error
// history. A single coarse mutex protects both; per-event work is cheap
// enough that finer locking buys nothing.
type Aggregator struct {
	mu       sync.Mutex
	patterns map[string]*Pattern
	hist     *history
	cfg      Config
}

// New creates an Aggregator with the given retention bounds. Zero or
// negative bounds fall back to defaults.
func New(cfg Config) *Aggregator {
	def := DefaultConfig()
	if cfg.MaxHistoryEntries <= 0 {
		cfg.MaxHistoryEntries = def.MaxHistoryEntries
	}
	if cfg.MaxHistoryAge <= 0 {
		cfg.MaxHistoryAge = def.MaxHistoryAge
	}
	if cfg.MaxSamplesPerPattern <= 0 {
		cfg.MaxSamplesPerPattern = def.MaxSamplesPerPattern
	}
	return &Aggregator{
		patterns: make(map[string]*Pattern),
		hist:     newHistory(cfg.MaxHistoryEntries, cfg.MaxHistoryAge),
		cfg:      cfg,
	}
}

// Add normalizes and records one raw error record, creating or updating its
// pattern, and returns a copy of the updated pattern. It never rejects a
// record: missing fields degrade to defaults.
func (a *Aggregator) Add(data map[string]any) Pattern {
	return a.AddAt(data, time.Now())
}

// AddAt is Add with an explicit occurrence time, used by tests and replays.
func (a *Aggregator) AddAt(data map[string]any, now time.Time) Pattern {
	ev := EventFromMap(data)
	sig := NewSignature(ev)

	a.mu.Lock()
	defer a.mu.Unlock()

	p, ok := a.patterns[sig.PatternHash]
	if !ok {
		p = newPattern(sig, now)
		a.patterns[sig.PatternHash] = p
	}
	p.record(ev, now, a.cfg.MaxSamplesPerPattern)
	a.hist.append(Occurrence{Timestamp: now, Event: ev})

	return p.Clone()
}

// PatternsInWindow returns copies of all patterns whose last occurrence
// falls within the trailing window ending at now.
func (a *Aggregator) PatternsInWindow(window time.Duration, now time.Time) []Pattern {
	cutoff := now.Add(-window)

	a.mu.Lock()
	defer a.mu.Unlock()

	var out []Pattern
	for _, p := range a.patterns {
		if !p.LastOccurrence.Before(cutoff) {
			out = append(out, p.Clone())
		}
	}
	return out
}

// TopPatterns returns up to n patterns with the highest counts, ties broken
// by most recent last occurrence.
func (a *Aggregator) TopPatterns(n int) []Pattern {
	a.mu.Lock()
	all := make([]Pattern, 0, len(a.patterns))
	for _, p := range a.patterns {
		all = append(all, p.Clone())
	}
	a.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].Count != all[j].Count {
			return all[i].Count > all[j].Count
		}
		return all[i].LastOccurrence.After(all[j].LastOccurrence)
	})
	if n < len(all) {
		all = all[:n]
	}
	return all
}

// Pattern returns a copy of the pattern for the given hash, if it exists.
func (a *Aggregator) Pattern(hash string) (Pattern, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.patterns[hash]
	if !ok {
		return Pattern{}, false
	}
	return p.Clone(), true
}

// PatternCount returns the number of distinct patterns tracked.
func (a *Aggregator) PatternCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.patterns)
}

// HistorySnapshot returns a copy of the global error history, oldest first.
func (a *Aggregator) HistorySnapshot() []Occurrence {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hist.snapshot()
}

// HistoryLen returns the number of retained history entries.
func (a *Aggregator) HistoryLen() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hist.len()
}
