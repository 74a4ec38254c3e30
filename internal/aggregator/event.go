// Package aggregator groups raw error events into recurring patterns and
// keeps a bounded chronological history for trend analysis.
package aggregator

import (
	"fmt"
	"strings"
)

// Severity classifies an error occurrence.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// DefaultSeverity is assigned when an incoming record carries no severity.
const DefaultSeverity = SeverityMedium

// ParseSeverity normalizes a severity string, falling back to
// DefaultSeverity for empty or unrecognized values.
func ParseSeverity(s string) Severity {
	switch Severity(strings.ToUpper(strings.TrimSpace(s))) {
	case SeverityLow:
		return SeverityLow
	case SeverityMedium:
		return SeverityMedium
	case SeverityHigh:
		return SeverityHigh
	case SeverityCritical:
		return SeverityCritical
	default:
		return DefaultSeverity
	}
}

// ErrorEvent is a normalized error record. Missing optional fields degrade
// to zero values; a record missing every identity field is still accepted
// and grouped under the "unknown" error type so malformed errors stay visible.
type ErrorEvent struct {
	ErrorType string   `json:"error_type"`
	Module    string   `json:"module"`
	Function  string   `json:"function"`
	Severity  Severity `json:"severity"`
	UserID    string   `json:"user_id,omitempty"`
	Operation string   `json:"operation,omitempty"`
	Message   string   `json:"message,omitempty"`
}

// EventFromMap normalizes a raw error record. It never fails: absent fields
// default and non-string values are rendered with %v.
func EventFromMap(data map[string]any) ErrorEvent {
	ev := ErrorEvent{
		ErrorType: stringField(data, "error_type"),
		Module:    stringField(data, "module"),
		Function:  stringField(data, "function"),
		Severity:  ParseSeverity(stringField(data, "severity")),
		UserID:    stringField(data, "user_id"),
		Operation: stringField(data, "operation"),
		Message:   stringField(data, "message"),
	}
	if ev.ErrorType == "" && ev.Module == "" && ev.Function == "" {
		ev.ErrorType = "unknown"
	}
	return ev
}

func stringField(data map[string]any, key string) string {
	v, ok := data[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprintf("%v", v))
}
