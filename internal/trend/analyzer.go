package trend

import (
	"math"
	"time"

	"github.com/opsflare/errwatch/internal/aggregator"
)

const (
	// DefaultWindowSize is the width of each time bucket.
	DefaultWindowSize = 10 * time.Minute
	// DefaultSpikeThreshold is the current/baseline ratio that declares a spike.
	DefaultSpikeThreshold = 5.0

	// growthWindows is how many trailing windows feed the regression slope.
	growthWindows = 10
	// spikeWindows is how many trailing windows feed spike detection and
	// acceleration.
	spikeWindows = 5
	// sustainedWindows is how many trailing windows feed sustained detection.
	sustainedWindows = 6
	// sustainedMinNonZero is how many of those must have activity.
	sustainedMinNonZero = 4
	// spikeAbsoluteFloor declares a spike on a zero baseline: a ratio
	// against zero is undefined, so an absolute count is used instead.
	spikeAbsoluteFloor = 10
	// projectionHorizon is how many windows ahead the projection looks.
	projectionHorizon = 3
)

// Analyzer buckets a pattern's history into fixed windows and derives trend
// statistics. It is stateless and safe for concurrent use.
type Analyzer struct {
	windowSize     time.Duration
	spikeThreshold float64
}

// NewAnalyzer creates an Analyzer. Non-positive arguments fall back to
// defaults.
func NewAnalyzer(windowSize time.Duration, spikeThreshold float64) *Analyzer {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	if spikeThreshold <= 1 {
		spikeThreshold = DefaultSpikeThreshold
	}
	return &Analyzer{windowSize: windowSize, spikeThreshold: spikeThreshold}
}

// AnalyzePattern computes the trend for one pattern from the global error
// history. History entries are matched on error identity (type, module,
// function) rather than the full pattern hash, so message-text drift does
// not fragment a pattern's series.
func (a *Analyzer) AnalyzePattern(pattern aggregator.Pattern, hist []aggregator.Occurrence) *Trend {
	return a.AnalyzePatternAt(pattern, hist, time.Now())
}

// AnalyzePatternAt is AnalyzePattern with an explicit reference time.
func (a *Analyzer) AnalyzePatternAt(pattern aggregator.Pattern, hist []aggregator.Occurrence, now time.Time) *Trend {
	var filtered []aggregator.Occurrence
	for _, occ := range hist {
		sig := aggregator.Signature{
			ErrorType: occ.Event.ErrorType,
			Module:    occ.Event.Module,
			Function:  occ.Event.Function,
		}
		if sig.SameIdentity(pattern.Signature) {
			filtered = append(filtered, occ)
		}
	}

	windows := a.bucket(filtered, now)
	counts := windowCounts(windows)
	rate := growthRate(counts)

	t := &Trend{
		Pattern:      pattern,
		Windows:      windows,
		GrowthRate:   rate,
		Acceleration: acceleration(counts),
		Projection:   projection(counts, rate),
		IsSpike:      a.isSpike(counts),
		IsSustained:  isSustained(counts),
		ComputedAt:   now,
	}
	return t
}

// bucket splits occurrences into contiguous fixed-size windows spanning from
// the earliest timestamp to now. Empty windows are materialized with zero
// counts. An empty input produces no windows.
func (a *Analyzer) bucket(occs []aggregator.Occurrence, now time.Time) []Window {
	if len(occs) == 0 {
		return nil
	}

	first := occs[0].Timestamp
	for _, occ := range occs[1:] {
		if occ.Timestamp.Before(first) {
			first = occ.Timestamp
		}
	}

	span := now.Sub(first)
	n := int(math.Ceil(float64(span) / float64(a.windowSize)))
	if n < 1 {
		n = 1
	}

	windows := make([]Window, n)
	for i := range windows {
		windows[i].Start = first.Add(time.Duration(i) * a.windowSize)
	}
	for _, occ := range occs {
		idx := int(occ.Timestamp.Sub(first) / a.windowSize)
		if idx < 0 {
			idx = 0
		}
		if idx >= n {
			// Entries exactly at "now" land in the last window.
			idx = n - 1
		}
		windows[idx].Count++
	}
	return windows
}

func windowCounts(windows []Window) []int {
	counts := make([]int, len(windows))
	for i, w := range windows {
		counts[i] = w.Count
	}
	return counts
}

func tail(counts []int, n int) []int {
	if len(counts) > n {
		return counts[len(counts)-n:]
	}
	return counts
}

// growthRate is the ordinary least-squares slope of count versus window
// index over the trailing growthWindows windows. Fewer than two windows
// yield zero; the slope denominator is zero only in that case, but it is
// guarded independently anyway.
func growthRate(counts []int) float64 {
	recent := tail(counts, growthWindows)
	n := len(recent)
	if n < 2 {
		return 0
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, c := range recent {
		x := float64(i)
		y := float64(c)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	denom := float64(n)*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (float64(n)*sumXY - sumX*sumY) / denom
}

// acceleration is the mean second discrete derivative of the counts over
// the trailing spikeWindows windows. Fewer than three windows yield zero.
func acceleration(counts []int) float64 {
	recent := tail(counts, spikeWindows)
	if len(recent) < 3 {
		return 0
	}

	diffs := make([]float64, len(recent)-1)
	for i := range diffs {
		diffs[i] = float64(recent[i+1] - recent[i])
	}

	var sum float64
	for i := 0; i < len(diffs)-1; i++ {
		sum += diffs[i+1] - diffs[i]
	}
	return sum / float64(len(diffs)-1)
}

// isSpike compares the latest window against the mean of the four before
// it. A zero baseline uses the absolute floor, since a ratio against zero
// is undefined. Fewer than five windows never spike.
func (a *Analyzer) isSpike(counts []int) bool {
	if len(counts) < spikeWindows {
		return false
	}
	recent := tail(counts, spikeWindows)
	current := float64(recent[spikeWindows-1])

	var baseline float64
	for _, c := range recent[:spikeWindows-1] {
		baseline += float64(c)
	}
	baseline /= float64(spikeWindows - 1)

	if baseline == 0 {
		return current > spikeAbsoluteFloor
	}
	return current/baseline >= a.spikeThreshold
}

// isSustained reports whether at least sustainedMinNonZero of the trailing
// sustainedWindows windows saw activity.
func isSustained(counts []int) bool {
	recent := tail(counts, sustainedWindows)
	nonZero := 0
	for _, c := range recent {
		if c > 0 {
			nonZero++
		}
	}
	return nonZero >= sustainedMinNonZero
}

// projection estimates the next window's count from the recent mean plus
// the growth rate over the projection horizon. It is absent when the
// pattern is flat or shrinking, and never negative.
func projection(counts []int, rate float64) *int {
	if rate <= 0 || len(counts) == 0 {
		return nil
	}

	recent := tail(counts, projectionHorizon)
	var mean float64
	for _, c := range recent {
		mean += float64(c)
	}
	mean /= float64(len(recent))

	projected := int(math.Round(mean + rate*projectionHorizon))
	if projected < 0 {
		projected = 0
	}
	return &projected
}
