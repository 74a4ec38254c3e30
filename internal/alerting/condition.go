// Package alerting evaluates error patterns against configurable rules and
// emits deduplicated alerts with per-rule cooldowns.
package alerting

import (
	"fmt"
	"strings"
	"time"

	"github.com/opsflare/errwatch/internal/aggregator"
	"github.com/opsflare/errwatch/internal/trend"
)

// EvalContext is the fixed evaluation context a condition sees. Conditions
// have no access to any other state, which replaces the dynamic boolean
// expressions of rule configuration with a closed, typed vocabulary.
type EvalContext struct {
	Pattern       aggregator.Pattern
	Trend         *trend.Trend // nil when no trend was computed
	WindowMinutes int
	PatternAge    time.Duration
}

// Condition is a boolean predicate over an EvalContext. Implementations
// must be side-effect free.
type Condition interface {
	Evaluate(ctx *EvalContext) bool
	String() string
}

type countAbove struct{ n int }

// CountAbove matches when the pattern's cumulative count exceeds n.
func CountAbove(n int) Condition { return countAbove{n: n} }

func (c countAbove) Evaluate(ctx *EvalContext) bool { return ctx.Pattern.Count > c.n }
func (c countAbove) String() string                 { return fmt.Sprintf("count > %d", c.n) }

type countAtLeast struct{ n int }

// CountAtLeast matches when the pattern's cumulative count is at least n.
func CountAtLeast(n int) Condition { return countAtLeast{n: n} }

func (c countAtLeast) Evaluate(ctx *EvalContext) bool { return ctx.Pattern.Count >= c.n }
func (c countAtLeast) String() string                 { return fmt.Sprintf("count >= %d", c.n) }

type isSpike struct{}

// IsSpike matches when the computed trend flags a spike. Without a trend it
// never matches.
func IsSpike() Condition { return isSpike{} }

func (isSpike) Evaluate(ctx *EvalContext) bool { return ctx.Trend != nil && ctx.Trend.IsSpike }
func (isSpike) String() string                 { return "is_spike" }

type isSustained struct{}

// IsSustained matches when the computed trend flags sustained occurrence.
// Without a trend it never matches.
func IsSustained() Condition { return isSustained{} }

func (isSustained) Evaluate(ctx *EvalContext) bool { return ctx.Trend != nil && ctx.Trend.IsSustained }
func (isSustained) String() string                 { return "is_sustained" }

type patternAgeBelow struct{ d time.Duration }

// PatternAgeBelow matches while the pattern is younger than d.
func PatternAgeBelow(d time.Duration) Condition { return patternAgeBelow{d: d} }

func (c patternAgeBelow) Evaluate(ctx *EvalContext) bool { return ctx.PatternAge < c.d }
func (c patternAgeBelow) String() string                 { return fmt.Sprintf("age < %s", c.d) }

type hasSeverity struct{ sev aggregator.Severity }

// HasSeverity matches when the pattern recorded at least one occurrence at
// the given severity.
func HasSeverity(sev aggregator.Severity) Condition { return hasSeverity{sev: sev} }

func (c hasSeverity) Evaluate(ctx *EvalContext) bool { return ctx.Pattern.SeverityCount(c.sev) > 0 }
func (c hasSeverity) String() string                 { return fmt.Sprintf("severity %s seen", c.sev) }

type growthRateAbove struct{ rate float64 }

// GrowthRateAbove matches when the trend's growth rate exceeds the given
// errors-per-window rate. Without a trend it never matches.
func GrowthRateAbove(rate float64) Condition { return growthRateAbove{rate: rate} }

func (c growthRateAbove) Evaluate(ctx *EvalContext) bool {
	return ctx.Trend != nil && ctx.Trend.GrowthRate > c.rate
}
func (c growthRateAbove) String() string { return fmt.Sprintf("growth_rate > %g", c.rate) }

type allOf struct{ conds []Condition }

// All matches when every child condition matches. An empty All always
// matches.
func All(conds ...Condition) Condition { return allOf{conds: conds} }

func (c allOf) Evaluate(ctx *EvalContext) bool {
	for _, cond := range c.conds {
		if cond == nil || !cond.Evaluate(ctx) {
			return false
		}
	}
	return true
}

func (c allOf) String() string { return joinConds(c.conds, " and ") }

type anyOf struct{ conds []Condition }

// Any matches when at least one child condition matches. An empty Any never
// matches.
func Any(conds ...Condition) Condition { return anyOf{conds: conds} }

func (c anyOf) Evaluate(ctx *EvalContext) bool {
	for _, cond := range c.conds {
		if cond != nil && cond.Evaluate(ctx) {
			return true
		}
	}
	return false
}

func (c anyOf) String() string { return joinConds(c.conds, " or ") }

func joinConds(conds []Condition, sep string) string {
	parts := make([]string, 0, len(conds))
	for _, c := range conds {
		if c != nil {
			parts = append(parts, c.String())
		}
	}
	return "(" + strings.Join(parts, sep) + ")"
}
