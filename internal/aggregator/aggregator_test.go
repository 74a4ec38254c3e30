package aggregator

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dbTimeoutRecord() map[string]any {
	return map[string]any{
		"error_type": "DBTimeoutError",
		"module":     "orders",
		"function":   "checkout",
		"severity":   "HIGH",
		"message":    "query timed out",
	}
}

func TestAdd_IdempotentGrouping(t *testing.T) {
	agg := New(DefaultConfig())
	now := time.Now()

	var last Pattern
	for i := 0; i < 10; i++ {
		last = agg.AddAt(dbTimeoutRecord(), now.Add(time.Duration(i)*time.Second))
	}

	assert.Equal(t, 10, last.Count, "repeated identical errors must increment one pattern")
	assert.Equal(t, 1, agg.PatternCount())
}

func TestAdd_CountEqualsSeveritySum(t *testing.T) {
	agg := New(DefaultConfig())
	now := time.Now()

	record := dbTimeoutRecord()
	for i, sev := range []string{"LOW", "HIGH", "HIGH", "CRITICAL", ""} {
		record["severity"] = sev
		agg.AddAt(record, now.Add(time.Duration(i)*time.Second))
	}

	p, ok := agg.Pattern(NewSignature(EventFromMap(dbTimeoutRecord())).PatternHash)
	require.True(t, ok)

	sum := 0
	for _, n := range p.SeverityDistribution {
		sum += n
	}
	assert.Equal(t, p.Count, sum)
	assert.Equal(t, 1, p.SeverityCount(SeverityLow))
	assert.Equal(t, 2, p.SeverityCount(SeverityHigh))
	assert.Equal(t, 1, p.SeverityCount(SeverityCritical))
	assert.Equal(t, 1, p.SeverityCount(SeverityMedium), "empty severity defaults")
	assert.False(t, p.FirstOccurrence.After(p.LastOccurrence))
}

func TestAdd_TracksUsersAndOperations(t *testing.T) {
	agg := New(DefaultConfig())
	now := time.Now()

	record := dbTimeoutRecord()
	for i := 0; i < 3; i++ {
		record["user_id"] = fmt.Sprintf("user-%d", i%2)
		record["operation"] = "place_order"
		agg.AddAt(record, now)
	}

	p, ok := agg.Pattern(NewSignature(EventFromMap(dbTimeoutRecord())).PatternHash)
	require.True(t, ok)
	assert.Equal(t, 2, p.UserCount())
	assert.Len(t, p.AffectedOperations, 1)
}

func TestAdd_SampleBufferBounded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSamplesPerPattern = 3
	agg := New(cfg)
	now := time.Now()

	record := dbTimeoutRecord()
	for i := 0; i < 10; i++ {
		record["message"] = "query timed out"
		agg.AddAt(record, now.Add(time.Duration(i)*time.Second))
	}

	p, ok := agg.Pattern(NewSignature(EventFromMap(dbTimeoutRecord())).PatternHash)
	require.True(t, ok)
	assert.Len(t, p.Samples, 3)
}

func TestHistory_BoundedByCount(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxHistoryEntries = 5
	agg := New(cfg)
	now := time.Now()

	for i := 0; i < 20; i++ {
		agg.AddAt(dbTimeoutRecord(), now.Add(time.Duration(i)*time.Second))
	}

	assert.Equal(t, 5, agg.HistoryLen())
	hist := agg.HistorySnapshot()
	assert.Equal(t, now.Add(19*time.Second), hist[len(hist)-1].Timestamp, "newest entries retained")
}

func TestHistory_BoundedByAge(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxHistoryAge = time.Hour
	agg := New(cfg)
	now := time.Now()

	agg.AddAt(dbTimeoutRecord(), now.Add(-2*time.Hour))
	agg.AddAt(dbTimeoutRecord(), now.Add(-30*time.Minute))
	agg.AddAt(dbTimeoutRecord(), now)

	assert.Equal(t, 2, agg.HistoryLen(), "entries older than max age evicted")
}

func TestPatternsInWindow(t *testing.T) {
	agg := New(DefaultConfig())
	now := time.Now()

	old := map[string]any{"error_type": "OldError", "module": "m", "function": "f"}
	agg.AddAt(old, now.Add(-2*time.Hour))
	agg.AddAt(dbTimeoutRecord(), now.Add(-5*time.Minute))

	active := agg.PatternsInWindow(time.Hour, now)
	require.Len(t, active, 1)
	assert.Equal(t, "DBTimeoutError", active[0].Signature.ErrorType)

	assert.Len(t, agg.PatternsInWindow(3*time.Hour, now), 2)
}

func TestTopPatterns_OrderAndTieBreak(t *testing.T) {
	agg := New(DefaultConfig())
	now := time.Now()

	for i := 0; i < 5; i++ {
		agg.AddAt(map[string]any{"error_type": "Frequent", "module": "m", "function": "f"}, now)
	}
	// Two patterns with equal counts; the later one wins the tie.
	agg.AddAt(map[string]any{"error_type": "TieOld", "module": "m", "function": "f"}, now.Add(-time.Minute))
	agg.AddAt(map[string]any{"error_type": "TieNew", "module": "m", "function": "f"}, now)

	top := agg.TopPatterns(2)
	require.Len(t, top, 2)
	assert.Equal(t, "Frequent", top[0].Signature.ErrorType)
	assert.Equal(t, "TieNew", top[1].Signature.ErrorType)

	assert.Len(t, agg.TopPatterns(10), 3, "limit above population returns all")
}

func TestAdd_ConcurrentCallersDoNotCorruptCounters(t *testing.T) {
	agg := New(DefaultConfig())

	const goroutines = 8
	const perGoroutine = 50

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				agg.Add(dbTimeoutRecord())
			}
		}()
	}
	wg.Wait()

	p, ok := agg.Pattern(NewSignature(EventFromMap(dbTimeoutRecord())).PatternHash)
	require.True(t, ok)
	assert.Equal(t, goroutines*perGoroutine, p.Count)

	sum := 0
	for _, n := range p.SeverityDistribution {
		sum += n
	}
	assert.Equal(t, p.Count, sum)
}

func TestClone_IsolatedFromLiveState(t *testing.T) {
	agg := New(DefaultConfig())
	first := agg.Add(dbTimeoutRecord())
	agg.Add(dbTimeoutRecord())

	assert.Equal(t, 1, first.Count, "returned pattern is a snapshot, not live state")
}
