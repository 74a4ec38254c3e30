// Package trend computes time-windowed trend statistics (growth rate,
// acceleration, spike and sustained flags, short-horizon projection) for
// error patterns.
package trend

import (
	"time"

	"github.com/opsflare/errwatch/internal/aggregator"
)

// Window is one fixed-width time bucket. Start is inclusive, Start+size
// exclusive. Windows in a trend are contiguous and ordered ascending; empty
// buckets are materialized with a zero count so the trend math always sees a
// gap-free series.
type Window struct {
	Start time.Time `json:"start"`
	Count int       `json:"count"`
}

// Trend is the point-in-time analysis of one pattern's behavior. It is
// recomputed on every evaluation cycle and never persisted.
type Trend struct {
	Pattern      aggregator.Pattern `json:"pattern"`
	Windows      []Window           `json:"windows"`
	GrowthRate   float64            `json:"growth_rate"`          // errors per window
	Acceleration float64            `json:"acceleration"`         // second derivative
	Projection   *int               `json:"projection,omitempty"` // next-window estimate, never negative
	IsSpike      bool               `json:"is_spike"`
	IsSustained  bool               `json:"is_sustained"`
	ComputedAt   time.Time          `json:"computed_at"`
}

// Score collapses the trend into a single scalar for pattern ranking:
// growth dominates, with spike and sustained flags adding fixed weight.
func (t *Trend) Score() float64 {
	score := t.GrowthRate
	if t.IsSpike {
		score += 10
	}
	if t.IsSustained {
		score += 5
	}
	return score
}
