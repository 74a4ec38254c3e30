package alerting

import (
	"time"

	"github.com/opsflare/errwatch/internal/aggregator"
	"github.com/opsflare/errwatch/internal/conf"
)

// Default rule IDs.
const (
	RuleHighErrorRate      = "high_error_rate"
	RuleCriticalErrorSpike = "critical_error_spike"
	RuleSustainedErrors    = "sustained_errors"
	RuleNewErrorPattern    = "new_error_pattern"
)

// DefaultRules returns the built-in rule set seeded at engine construction.
// Any of them can be overwritten or disabled later via AddRule/SetEnabled.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:             RuleHighErrorRate,
			Name:           "High error rate",
			Description:    "More than 50 occurrences of the same error pattern",
			Condition:      CountAbove(50),
			Severity:       aggregator.SeverityHigh,
			ThresholdCount: 50,
			TimeWindow:     conf.Duration(60 * time.Minute),
			Cooldown:       conf.Duration(30 * time.Minute),
			Enabled:        true,
		},
		{
			ID:          RuleCriticalErrorSpike,
			Name:        "Critical error spike",
			Description: "A spike in a pattern that has produced critical-severity errors",
			Condition: All(
				IsSpike(),
				HasSeverity(aggregator.SeverityCritical),
			),
			Severity:   aggregator.SeverityCritical,
			TimeWindow: conf.Duration(30 * time.Minute),
			Cooldown:   conf.Duration(15 * time.Minute),
			Enabled:    true,
		},
		{
			ID:          RuleSustainedErrors,
			Name:        "Sustained errors",
			Description: "Errors recurring across most recent windows with meaningful volume",
			Condition: All(
				IsSustained(),
				CountAbove(20),
			),
			Severity:       aggregator.SeverityMedium,
			ThresholdCount: 20,
			TimeWindow:     conf.Duration(120 * time.Minute),
			Cooldown:       conf.Duration(60 * time.Minute),
			Enabled:        true,
		},
		{
			ID:          RuleNewErrorPattern,
			Name:        "New error pattern",
			Description: "A freshly seen pattern already recurring",
			Condition: All(
				CountAtLeast(5),
				PatternAgeBelow(30*time.Minute),
			),
			Severity:       aggregator.SeverityMedium,
			ThresholdCount: 5,
			TimeWindow:     conf.Duration(30 * time.Minute),
			Cooldown:       conf.Duration(30 * time.Minute),
			Enabled:        true,
		},
	}
}
