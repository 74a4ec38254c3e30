package alerting

import (
	"time"

	"github.com/opsflare/errwatch/internal/aggregator"
	"github.com/opsflare/errwatch/internal/conf"
)

// Rule is an alerting rule. Rules are keyed by ID; registering a rule with
// an existing ID overwrites the prior definition.
type Rule struct {
	ID             string              `json:"id"`
	Name           string              `json:"name"`
	Description    string              `json:"description"`
	Condition      Condition           `json:"-"`
	Severity       aggregator.Severity `json:"severity"`
	ThresholdCount int                 `json:"threshold_count"`
	ThresholdRate  float64             `json:"threshold_rate"`
	TimeWindow     conf.Duration       `json:"time_window"`
	Cooldown       conf.Duration       `json:"cooldown"`
	Enabled        bool                `json:"enabled"`
}

// WindowMinutes returns the rule's evaluation window in whole minutes.
func (r *Rule) WindowMinutes() int {
	return int(r.TimeWindow.Std() / time.Minute)
}
