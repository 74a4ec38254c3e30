package alerting

import (
	"errors"
	"sync"
	"time"

	"github.com/opsflare/errwatch/internal/aggregator"
	"github.com/opsflare/errwatch/internal/logger"
	"github.com/opsflare/errwatch/internal/trend"
)

var (
	// ErrRuleNotFound is returned when a rule ID does not exist.
	ErrRuleNotFound = errors.New("alert rule not found")
	// ErrAlertNotFound is returned when an alert ID does not exist.
	ErrAlertNotFound = errors.New("alert not found")
)

// ActionFunc is called once per fired alert, outside the engine's locks.
type ActionFunc func(rule *Rule, alert *Alert)

// Engine owns the rule registry, per-rule cooldowns, and the in-memory
// alert list. Evaluation is at-most-once per rule within its cooldown
// window; the cooldown re-arms on every fire.
type Engine struct {
	log        logger.Logger
	actionFunc ActionFunc

	rulesMu sync.RWMutex
	rules   map[string]*Rule
	order   []string // registration order, for deterministic evaluation

	cooldownsMu sync.RWMutex
	cooldowns   map[string]time.Time // rule ID → last fired

	alertsMu sync.RWMutex
	alerts   []*Alert
}

// NewEngine creates an engine seeded with the default rule set. actionFunc
// may be nil.
func NewEngine(log logger.Logger, actionFunc ActionFunc) *Engine {
	e := &Engine{
		log:        log,
		actionFunc: actionFunc,
		rules:      make(map[string]*Rule),
		cooldowns:  make(map[string]time.Time),
	}
	for _, rule := range DefaultRules() {
		e.AddRule(rule)
	}
	return e
}

// AddRule registers a rule. A rule with an existing ID overwrites the prior
// definition but keeps its cooldown state.
func (e *Engine) AddRule(rule Rule) {
	e.rulesMu.Lock()
	defer e.rulesMu.Unlock()
	if _, exists := e.rules[rule.ID]; !exists {
		e.order = append(e.order, rule.ID)
	}
	e.rules[rule.ID] = &rule
}

// Rules returns the registered rules in registration order.
func (e *Engine) Rules() []Rule {
	e.rulesMu.RLock()
	defer e.rulesMu.RUnlock()
	out := make([]Rule, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, *e.rules[id])
	}
	return out
}

// Rule returns a copy of the rule with the given ID.
func (e *Engine) Rule(id string) (Rule, bool) {
	e.rulesMu.RLock()
	defer e.rulesMu.RUnlock()
	r, ok := e.rules[id]
	if !ok {
		return Rule{}, false
	}
	return *r, true
}

// SetEnabled toggles a rule without touching its definition.
func (e *Engine) SetEnabled(id string, enabled bool) error {
	e.rulesMu.Lock()
	defer e.rulesMu.Unlock()
	r, ok := e.rules[id]
	if !ok {
		return ErrRuleNotFound
	}
	r.Enabled = enabled
	return nil
}

// EvaluatePattern runs every active, non-cooling rule against the pattern
// and optional trend, returning any alerts produced. A failing condition
// evaluation is treated as "did not fire" and logged, never propagated.
func (e *Engine) EvaluatePattern(pattern aggregator.Pattern, tr *trend.Trend) []*Alert {
	return e.EvaluatePatternAt(pattern, tr, time.Now())
}

// EvaluatePatternAt is EvaluatePattern with an explicit evaluation time.
func (e *Engine) EvaluatePatternAt(pattern aggregator.Pattern, tr *trend.Trend, now time.Time) []*Alert {
	rules := e.Rules()

	var fired []*Alert
	for i := range rules {
		rule := &rules[i]
		if !rule.Enabled {
			continue
		}
		if e.inCooldown(rule.ID, rule.Cooldown.Std(), now) {
			continue
		}

		ctx := &EvalContext{
			Pattern:       pattern,
			Trend:         tr,
			WindowMinutes: rule.WindowMinutes(),
			PatternAge:    pattern.Age(now),
		}
		if !e.safeEvaluate(rule, ctx) {
			continue
		}
		if !e.armCooldown(rule.ID, rule.Cooldown.Std(), now) {
			// Lost the race to a concurrent evaluation of the same rule.
			continue
		}

		alert := e.fire(rule, pattern, tr, now)
		fired = append(fired, alert)
	}
	return fired
}

// safeEvaluate runs the rule's condition with panic isolation. A nil
// condition never fires.
func (e *Engine) safeEvaluate(rule *Rule, ctx *EvalContext) (matched bool) {
	if rule.Condition == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			e.log.Warn("rule condition evaluation failed",
				logger.String("rule_id", rule.ID),
				logger.Any("panic", r))
			matched = false
		}
	}()
	return rule.Condition.Evaluate(ctx)
}

func (e *Engine) inCooldown(ruleID string, cooldown time.Duration, now time.Time) bool {
	if cooldown <= 0 {
		return false
	}
	e.cooldownsMu.RLock()
	lastFired, exists := e.cooldowns[ruleID]
	e.cooldownsMu.RUnlock()
	if !exists {
		return false
	}
	return now.Sub(lastFired) < cooldown
}

// armCooldown atomically re-checks and records the cooldown so that
// concurrent evaluations of the same rule produce at most one alert per
// cooldown window.
func (e *Engine) armCooldown(ruleID string, cooldown time.Duration, now time.Time) bool {
	e.cooldownsMu.Lock()
	defer e.cooldownsMu.Unlock()
	if lastFired, exists := e.cooldowns[ruleID]; exists && cooldown > 0 && now.Sub(lastFired) < cooldown {
		return false
	}
	e.cooldowns[ruleID] = now
	return true
}

func (e *Engine) fire(rule *Rule, pattern aggregator.Pattern, tr *trend.Trend, now time.Time) *Alert {
	alert := newAlert(rule, pattern, tr, now)

	e.alertsMu.Lock()
	e.alerts = append(e.alerts, alert)
	e.alertsMu.Unlock()

	e.log.Info("alert fired",
		logger.String("rule_id", rule.ID),
		logger.String("pattern", pattern.Signature.PatternHash),
		logger.String("severity", string(alert.Severity)),
		logger.Int("count", pattern.Count))

	if e.actionFunc != nil {
		e.actionFunc(rule, alert)
	}
	return alert
}

// AlertFilter selects alerts for listing.
type AlertFilter struct {
	// Unresolved restricts the listing to alerts not yet resolved.
	Unresolved bool
	// RuleID restricts the listing to one rule when non-empty.
	RuleID string
}

// Alerts returns copies of alerts matching the filter, oldest first.
func (e *Engine) Alerts(filter AlertFilter) []Alert {
	e.alertsMu.RLock()
	defer e.alertsMu.RUnlock()
	var out []Alert
	for _, a := range e.alerts {
		if filter.Unresolved && a.Resolved {
			continue
		}
		if filter.RuleID != "" && a.RuleID != filter.RuleID {
			continue
		}
		out = append(out, *a)
	}
	return out
}

// TotalAlerts returns the number of alerts ever generated.
func (e *Engine) TotalAlerts() int {
	e.alertsMu.RLock()
	defer e.alertsMu.RUnlock()
	return len(e.alerts)
}

// UnresolvedCount returns the number of alerts not yet resolved.
func (e *Engine) UnresolvedCount() int {
	e.alertsMu.RLock()
	defer e.alertsMu.RUnlock()
	n := 0
	for _, a := range e.alerts {
		if !a.Resolved {
			n++
		}
	}
	return n
}

// Acknowledge marks an alert as acknowledged.
func (e *Engine) Acknowledge(id string) error {
	return e.setAlertFlag(id, func(a *Alert) { a.Acknowledged = true })
}

// Resolve marks an alert as resolved.
func (e *Engine) Resolve(id string) error {
	return e.setAlertFlag(id, func(a *Alert) { a.Resolved = true })
}

func (e *Engine) setAlertFlag(id string, set func(*Alert)) error {
	e.alertsMu.Lock()
	defer e.alertsMu.Unlock()
	for _, a := range e.alerts {
		if a.ID == id {
			set(a)
			return nil
		}
	}
	return ErrAlertNotFound
}
