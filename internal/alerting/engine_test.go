package alerting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsflare/errwatch/internal/aggregator"
	"github.com/opsflare/errwatch/internal/conf"
	"github.com/opsflare/errwatch/internal/logger"
	"github.com/opsflare/errwatch/internal/trend"
)

func patternWithCount(count int, firstSeen time.Time) aggregator.Pattern {
	return aggregator.Pattern{
		Signature: aggregator.Signature{
			ErrorType:   "DBTimeoutError",
			Module:      "orders",
			Function:    "checkout",
			PatternHash: "deadbeefdeadbeef",
		},
		Count:           count,
		FirstOccurrence: firstSeen,
		LastOccurrence:  firstSeen,
		SeverityDistribution: map[aggregator.Severity]int{
			aggregator.SeverityHigh: count,
		},
	}
}

// disableDefaults turns off the seeded rule set so tests can observe a
// single rule in isolation.
func disableDefaults(t *testing.T, e *Engine) {
	t.Helper()
	for _, r := range DefaultRules() {
		require.NoError(t, e.SetEnabled(r.ID, false))
	}
}

func TestNewEngine_SeedsDefaultRules(t *testing.T) {
	e := NewEngine(logger.NewTestLogger(), nil)
	rules := e.Rules()
	require.Len(t, rules, 4)

	ids := make(map[string]bool)
	for _, r := range rules {
		ids[r.ID] = true
		assert.True(t, r.Enabled)
		assert.NotNil(t, r.Condition)
	}
	assert.True(t, ids[RuleHighErrorRate])
	assert.True(t, ids[RuleCriticalErrorSpike])
	assert.True(t, ids[RuleSustainedErrors])
	assert.True(t, ids[RuleNewErrorPattern])
}

func TestAddRule_OverwritesByID(t *testing.T) {
	e := NewEngine(logger.NewTestLogger(), nil)

	e.AddRule(Rule{ID: RuleHighErrorRate, Name: "Custom", Condition: CountAbove(5), Enabled: true})

	r, ok := e.Rule(RuleHighErrorRate)
	require.True(t, ok)
	assert.Equal(t, "Custom", r.Name)
	assert.Len(t, e.Rules(), 4, "overwriting must not duplicate the rule")
}

func TestEvaluate_HighErrorRateFires(t *testing.T) {
	e := NewEngine(logger.NewTestLogger(), nil)
	now := time.Now()

	// Old enough that new_error_pattern stays quiet.
	p := patternWithCount(51, now.Add(-2*time.Hour))
	alerts := e.EvaluatePatternAt(p, nil, now)

	require.Len(t, alerts, 1)
	assert.Equal(t, RuleHighErrorRate, alerts[0].RuleID)
	assert.Equal(t, aggregator.SeverityHigh, alerts[0].Severity)
	assert.NotEmpty(t, alerts[0].ID)
}

func TestEvaluate_CooldownSuppressesAndRearms(t *testing.T) {
	e := NewEngine(logger.NewTestLogger(), nil)
	disableDefaults(t, e)
	e.AddRule(Rule{
		ID:        "always",
		Name:      "Always",
		Condition: CountAbove(0),
		Cooldown:  conf.Duration(30 * time.Minute),
		Enabled:   true,
	})

	t0 := time.Now()
	p := patternWithCount(1, t0.Add(-time.Hour))

	require.Len(t, e.EvaluatePatternAt(p, nil, t0), 1, "first evaluation fires")
	assert.Empty(t, e.EvaluatePatternAt(p, nil, t0.Add(29*time.Minute)), "within cooldown")
	require.Len(t, e.EvaluatePatternAt(p, nil, t0.Add(30*time.Minute)), 1, "eligible at cooldown expiry")

	// Cooldown re-arms from the second fire, not the first.
	assert.Empty(t, e.EvaluatePatternAt(p, nil, t0.Add(59*time.Minute)))
	assert.Len(t, e.EvaluatePatternAt(p, nil, t0.Add(60*time.Minute)), 1)
}

func TestEvaluate_DisabledRuleSkipped(t *testing.T) {
	e := NewEngine(logger.NewTestLogger(), nil)
	require.NoError(t, e.SetEnabled(RuleHighErrorRate, false))

	p := patternWithCount(51, time.Now().Add(-2*time.Hour))
	assert.Empty(t, e.EvaluatePatternAt(p, nil, time.Now()))
}

func TestSetEnabled_UnknownRule(t *testing.T) {
	e := NewEngine(logger.NewTestLogger(), nil)
	assert.ErrorIs(t, e.SetEnabled("nope", true), ErrRuleNotFound)
}

func TestEvaluate_CriticalSpikeNeedsBothSignals(t *testing.T) {
	e := NewEngine(logger.NewTestLogger(), nil)
	disableDefaults(t, e)
	require.NoError(t, e.SetEnabled(RuleCriticalErrorSpike, true))

	now := time.Now()
	p := patternWithCount(10, now.Add(-2*time.Hour))
	spiky := &trend.Trend{IsSpike: true}

	assert.Empty(t, e.EvaluatePatternAt(p, spiky, now), "no critical occurrences")

	p.SeverityDistribution[aggregator.SeverityCritical] = 1
	assert.Empty(t, e.EvaluatePatternAt(p, nil, now), "no trend, no spike signal")

	alerts := e.EvaluatePatternAt(p, spiky, now)
	require.Len(t, alerts, 1)
	assert.Equal(t, RuleCriticalErrorSpike, alerts[0].RuleID)
}

func TestEvaluate_NewPatternRule(t *testing.T) {
	e := NewEngine(logger.NewTestLogger(), nil)
	disableDefaults(t, e)
	require.NoError(t, e.SetEnabled(RuleNewErrorPattern, true))

	now := time.Now()

	young := patternWithCount(5, now.Add(-10*time.Minute))
	require.Len(t, e.EvaluatePatternAt(young, nil, now), 1)

	e2 := NewEngine(logger.NewTestLogger(), nil)
	disableDefaults(t, e2)
	require.NoError(t, e2.SetEnabled(RuleNewErrorPattern, true))

	old := patternWithCount(5, now.Add(-31*time.Minute))
	assert.Empty(t, e2.EvaluatePatternAt(old, nil, now), "pattern too old")
}

type panicCondition struct{}

func (panicCondition) Evaluate(*EvalContext) bool { panic("boom") }
func (panicCondition) String() string             { return "panics" }

func TestEvaluate_PanickingConditionTreatedAsFalse(t *testing.T) {
	e := NewEngine(logger.NewTestLogger(), nil)
	disableDefaults(t, e)
	e.AddRule(Rule{ID: "broken", Name: "Broken", Condition: panicCondition{}, Enabled: true})
	e.AddRule(Rule{ID: "fine", Name: "Fine", Condition: CountAbove(0), Enabled: true})

	p := patternWithCount(1, time.Now().Add(-time.Hour))
	alerts := e.EvaluatePatternAt(p, nil, time.Now())

	require.Len(t, alerts, 1, "healthy rules still evaluate after a panicking one")
	assert.Equal(t, "fine", alerts[0].RuleID)
}

func TestEvaluate_NilConditionNeverFires(t *testing.T) {
	e := NewEngine(logger.NewTestLogger(), nil)
	disableDefaults(t, e)
	e.AddRule(Rule{ID: "blank", Name: "Blank", Enabled: true})

	p := patternWithCount(100, time.Now().Add(-time.Hour))
	assert.Empty(t, e.EvaluatePatternAt(p, nil, time.Now()))
}

func TestActionFunc_CalledPerFire(t *testing.T) {
	var firedRules []string
	e := NewEngine(logger.NewTestLogger(), func(rule *Rule, alert *Alert) {
		firedRules = append(firedRules, rule.ID)
		assert.NotEmpty(t, alert.Message)
	})
	disableDefaults(t, e)
	e.AddRule(Rule{ID: "a", Name: "A", Condition: CountAbove(0), Enabled: true})

	p := patternWithCount(1, time.Now().Add(-time.Hour))
	e.EvaluatePatternAt(p, nil, time.Now())

	assert.Equal(t, []string{"a"}, firedRules)
}

func TestRenderMessage_OrderedFacts(t *testing.T) {
	now := time.Now()
	p := patternWithCount(51, now.Add(-time.Hour))
	p.AffectedUsers = map[string]struct{}{"u1": {}, "u2": {}}

	projected := 12
	tr := &trend.Trend{IsSpike: true, IsSustained: true, Projection: &projected}

	rule := Rule{ID: "r", Name: "High error rate"}
	msg := renderMessage(&rule, p, tr)

	assert.Equal(t, "High error rate | DBTimeoutError in orders | count=51 | users=2 | spike | sustained | projected=12", msg)
}

func TestRenderMessage_NoTrendFragments(t *testing.T) {
	p := patternWithCount(7, time.Now())
	rule := Rule{ID: "r", Name: "Rule"}
	assert.Equal(t, "Rule | DBTimeoutError in orders | count=7 | users=0", renderMessage(&rule, p, nil))
}

func TestAlertListingAndFlags(t *testing.T) {
	e := NewEngine(logger.NewTestLogger(), nil)
	disableDefaults(t, e)
	e.AddRule(Rule{ID: "a", Name: "A", Condition: CountAbove(0), Enabled: true})

	p := patternWithCount(1, time.Now().Add(-time.Hour))
	fired := e.EvaluatePatternAt(p, nil, time.Now())
	require.Len(t, fired, 1)

	assert.Equal(t, 1, e.TotalAlerts())
	assert.Equal(t, 1, e.UnresolvedCount())

	require.NoError(t, e.Acknowledge(fired[0].ID))
	require.NoError(t, e.Resolve(fired[0].ID))
	assert.Zero(t, e.UnresolvedCount())
	assert.Empty(t, e.Alerts(AlertFilter{Unresolved: true}))

	all := e.Alerts(AlertFilter{})
	require.Len(t, all, 1)
	assert.True(t, all[0].Acknowledged)
	assert.True(t, all[0].Resolved)

	assert.ErrorIs(t, e.Acknowledge("missing"), ErrAlertNotFound)
	assert.ErrorIs(t, e.Resolve("missing"), ErrAlertNotFound)
}
