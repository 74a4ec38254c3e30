package aggregator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSignature_StableAcrossVolatileContent(t *testing.T) {
	a := EventFromMap(map[string]any{
		"error_type": "DBTimeoutError",
		"module":     "orders",
		"function":   "checkout",
		"message":    "query timed out after 3012ms for request 0xdeadbeef1234",
	})
	b := EventFromMap(map[string]any{
		"error_type": "DBTimeoutError",
		"module":     "orders",
		"function":   "checkout",
		"message":    "query timed out after 87ms for request 0xcafebabe9999",
	})

	sigA := NewSignature(a)
	sigB := NewSignature(b)
	assert.Equal(t, sigA.PatternHash, sigB.PatternHash,
		"messages differing only in numbers and addresses should share a hash")
	assert.Equal(t, sigA.KeyTerms, sigB.KeyTerms)
}

func TestNewSignature_DistinctIdentitiesDiffer(t *testing.T) {
	base := map[string]any{
		"error_type": "DBTimeoutError",
		"module":     "orders",
		"function":   "checkout",
	}
	sigA := NewSignature(EventFromMap(base))

	other := map[string]any{
		"error_type": "DBTimeoutError",
		"module":     "payments",
		"function":   "checkout",
	}
	sigB := NewSignature(EventFromMap(other))

	assert.NotEqual(t, sigA.PatternHash, sigB.PatternHash)
	assert.False(t, sigA.SameIdentity(sigB))
}

func TestNewSignature_KeyTermsSkipStopwordsAndDuplicates(t *testing.T) {
	ev := EventFromMap(map[string]any{
		"error_type": "ValidationError",
		"module":     "billing",
		"function":   "validate",
		"message":    "invoice validation failed for the invoice currency mismatch",
	})
	sig := NewSignature(ev)

	assert.Contains(t, sig.KeyTerms, "invoice")
	assert.Contains(t, sig.KeyTerms, "currency")
	assert.NotContains(t, sig.KeyTerms, "the")
	assert.NotContains(t, sig.KeyTerms, "failed")

	seen := map[string]int{}
	for _, term := range sig.KeyTerms {
		seen[term]++
	}
	for term, n := range seen {
		assert.Equal(t, 1, n, "duplicate key term %q", term)
	}
	assert.LessOrEqual(t, len(sig.KeyTerms), maxKeyTerms)
}

func TestEventFromMap_MissingIdentityFallsBackToUnknown(t *testing.T) {
	ev := EventFromMap(map[string]any{"message": "something broke"})
	assert.Equal(t, "unknown", ev.ErrorType)
	assert.Equal(t, DefaultSeverity, ev.Severity)
}

func TestEventFromMap_NonStringValuesCoerced(t *testing.T) {
	ev := EventFromMap(map[string]any{
		"error_type": 500,
		"module":     "api",
		"function":   "handler",
		"user_id":    12345,
	})
	assert.Equal(t, "500", ev.ErrorType)
	assert.Equal(t, "12345", ev.UserID)
}

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		in   string
		want Severity
	}{
		{"critical", SeverityCritical},
		{"CRITICAL", SeverityCritical},
		{" high ", SeverityHigh},
		{"medium", SeverityMedium},
		{"low", SeverityLow},
		{"", DefaultSeverity},
		{"bogus", DefaultSeverity},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseSeverity(tt.in), "input %q", tt.in)
	}
}
