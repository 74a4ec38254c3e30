package monitor

import (
	"time"
)

const topPatternLimit = 5

// PatternSummary is a compact view of one pattern for status reporting.
type PatternSummary struct {
	PatternHash string `json:"pattern_hash"`
	ErrorType   string `json:"error_type"`
	Module      string `json:"module"`
	Count       int    `json:"count"`
}

// SystemStatus summarizes the pipeline for external health/metrics queries.
type SystemStatus struct {
	TotalPatterns    int              `json:"total_patterns"`
	ActivePatterns   int              `json:"active_patterns"`
	TotalAlerts      int              `json:"total_alerts"`
	UnresolvedAlerts int              `json:"unresolved_alerts"`
	TopPatterns      []PatternSummary `json:"top_patterns"`
}

// Status reports read-only aggregate state. It never fails: an empty system
// yields zero counts and an empty top-patterns list.
func (s *System) Status() SystemStatus {
	return s.StatusAt(time.Now())
}

// StatusAt is Status with an explicit reference time.
func (s *System) StatusAt(now time.Time) SystemStatus {
	status := SystemStatus{
		TotalPatterns:    s.agg.PatternCount(),
		ActivePatterns:   len(s.agg.PatternsInWindow(s.activeWindow, now)),
		TotalAlerts:      s.engine.TotalAlerts(),
		UnresolvedAlerts: s.engine.UnresolvedCount(),
		TopPatterns:      []PatternSummary{},
	}

	for _, p := range s.agg.TopPatterns(topPatternLimit) {
		status.TopPatterns = append(status.TopPatterns, PatternSummary{
			PatternHash: p.Signature.PatternHash,
			ErrorType:   p.Signature.ErrorType,
			Module:      p.Signature.Module,
			Count:       p.Count,
		})
	}
	return status
}
