package alerting

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opsflare/errwatch/internal/aggregator"
	"github.com/opsflare/errwatch/internal/trend"
)

// Alert is an immutable record of a rule firing against a pattern. The
// Acknowledged and Resolved flags are the only mutable state and are only
// ever set by external callers through the engine.
type Alert struct {
	ID           string              `json:"id"`
	RuleID       string              `json:"rule_id"`
	RuleName     string              `json:"rule_name"`
	Severity     aggregator.Severity `json:"severity"`
	Pattern      aggregator.Pattern  `json:"pattern"`
	Trend        *trend.Trend        `json:"trend,omitempty"`
	Timestamp    time.Time           `json:"timestamp"`
	Message      string              `json:"message"`
	Acknowledged bool                `json:"acknowledged"`
	Resolved     bool                `json:"resolved"`
}

// newAlert synthesizes an alert for a rule firing.
func newAlert(rule *Rule, pattern aggregator.Pattern, tr *trend.Trend, now time.Time) *Alert {
	return &Alert{
		ID:        uuid.NewString(),
		RuleID:    rule.ID,
		RuleName:  rule.Name,
		Severity:  rule.Severity,
		Pattern:   pattern,
		Trend:     tr,
		Timestamp: now,
		Message:   renderMessage(rule, pattern, tr),
	}
}

// renderMessage builds the pipe-delimited human-readable alert text: rule
// name, pattern identity, count, affected users, then any trend fragments.
func renderMessage(rule *Rule, pattern aggregator.Pattern, tr *trend.Trend) string {
	parts := []string{
		rule.Name,
		fmt.Sprintf("%s in %s", pattern.Signature.ErrorType, pattern.Signature.Module),
		fmt.Sprintf("count=%d", pattern.Count),
		fmt.Sprintf("users=%d", pattern.UserCount()),
	}
	if tr != nil {
		if tr.IsSpike {
			parts = append(parts, "spike")
		}
		if tr.IsSustained {
			parts = append(parts, "sustained")
		}
		if tr.Projection != nil {
			parts = append(parts, fmt.Sprintf("projected=%d", *tr.Projection))
		}
	}
	return strings.Join(parts, " | ")
}
