package aggregator

import (
	"maps"
	"slices"
	"time"
)

// Pattern is the cumulative aggregate for one signature. Count never
// decreases while the pattern is retained, and always equals the sum of the
// severity distribution.
type Pattern struct {
	Signature            Signature           `json:"signature"`
	Count                int                 `json:"count"`
	FirstOccurrence      time.Time           `json:"first_occurrence"`
	LastOccurrence       time.Time           `json:"last_occurrence"`
	SeverityDistribution map[Severity]int    `json:"severity_distribution"`
	AffectedUsers        map[string]struct{} `json:"-"`
	AffectedOperations   map[string]struct{} `json:"-"`
	Samples              []ErrorEvent        `json:"samples,omitempty"`
	TrendScore           float64             `json:"trend_score"`
}

// newPattern initializes a pattern on first sight of a signature.
func newPattern(sig Signature, now time.Time) *Pattern {
	return &Pattern{
		Signature:            sig,
		FirstOccurrence:      now,
		LastOccurrence:       now,
		SeverityDistribution: make(map[Severity]int),
		AffectedUsers:        make(map[string]struct{}),
		AffectedOperations:   make(map[string]struct{}),
	}
}

// record applies one occurrence to the pattern. maxSamples bounds the
// diagnostic sample buffer (oldest dropped first).
func (p *Pattern) record(ev ErrorEvent, now time.Time, maxSamples int) {
	p.Count++
	p.LastOccurrence = now
	p.SeverityDistribution[ev.Severity]++
	if ev.UserID != "" {
		p.AffectedUsers[ev.UserID] = struct{}{}
	}
	if ev.Operation != "" {
		p.AffectedOperations[ev.Operation] = struct{}{}
	}
	p.Samples = append(p.Samples, ev)
	if len(p.Samples) > maxSamples {
		p.Samples = p.Samples[len(p.Samples)-maxSamples:]
	}
}

// Clone returns a deep copy safe to hand to callers outside the
// aggregator's lock.
func (p *Pattern) Clone() Pattern {
	out := *p
	out.Signature.KeyTerms = slices.Clone(p.Signature.KeyTerms)
	out.SeverityDistribution = maps.Clone(p.SeverityDistribution)
	out.AffectedUsers = maps.Clone(p.AffectedUsers)
	out.AffectedOperations = maps.Clone(p.AffectedOperations)
	out.Samples = slices.Clone(p.Samples)
	return out
}

// UserCount returns the number of distinct affected users.
func (p *Pattern) UserCount() int {
	return len(p.AffectedUsers)
}

// Age returns the elapsed time since the pattern was first seen.
func (p *Pattern) Age(now time.Time) time.Duration {
	return now.Sub(p.FirstOccurrence)
}

// SeverityCount returns the number of occurrences recorded at the given severity.
func (p *Pattern) SeverityCount(sev Severity) int {
	return p.SeverityDistribution[sev]
}
