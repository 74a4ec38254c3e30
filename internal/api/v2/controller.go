// Package api exposes the v2 HTTP surface: status, patterns, alerts, rule
// management, and error ingestion for hosts that report over HTTP.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/opsflare/errwatch/internal/alerting"
	"github.com/opsflare/errwatch/internal/logger"
	"github.com/opsflare/errwatch/internal/monitor"
)

const defaultWindowMinutes = 60

// Controller handles the v2 API endpoints.
type Controller struct {
	system *monitor.System
	log    logger.Logger
}

// NewController creates a Controller and registers its routes on the group.
func NewController(g *echo.Group, system *monitor.System, log logger.Logger) *Controller {
	c := &Controller{system: system, log: log}

	g.GET("/health", c.GetHealth)
	g.GET("/status", c.GetStatus)
	g.GET("/patterns", c.ListPatterns)
	g.GET("/patterns/top", c.TopPatterns)
	g.GET("/alerts", c.ListAlerts)
	g.POST("/alerts/:id/ack", c.AcknowledgeAlert)
	g.POST("/alerts/:id/resolve", c.ResolveAlert)
	g.GET("/rules", c.ListRules)
	g.PATCH("/rules/:id/toggle", c.ToggleRule)
	g.POST("/errors", c.IngestError)

	return c
}

// GetHealth is a liveness probe.
func (c *Controller) GetHealth(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// GetStatus returns the aggregate system status.
func (c *Controller) GetStatus(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, c.system.Status())
}

// ListPatterns returns patterns active within the trailing window
// (default 60 minutes, override with ?window_minutes=).
func (c *Controller) ListPatterns(ctx echo.Context) error {
	minutes := defaultWindowMinutes
	if param := ctx.QueryParam("window_minutes"); param != "" {
		v, err := strconv.Atoi(param)
		if err != nil || v <= 0 {
			return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid window_minutes"})
		}
		minutes = v
	}

	patterns := c.system.Aggregator().PatternsInWindow(time.Duration(minutes)*time.Minute, time.Now())
	return ctx.JSON(http.StatusOK, map[string]any{
		"patterns": patterns,
		"count":    len(patterns),
	})
}

// TopPatterns returns the highest-count patterns (?limit=, default 5).
func (c *Controller) TopPatterns(ctx echo.Context) error {
	limit := 5
	if param := ctx.QueryParam("limit"); param != "" {
		v, err := strconv.Atoi(param)
		if err != nil || v <= 0 {
			return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid limit"})
		}
		limit = v
	}

	patterns := c.system.Aggregator().TopPatterns(limit)
	return ctx.JSON(http.StatusOK, map[string]any{
		"patterns": patterns,
		"count":    len(patterns),
	})
}

// ListAlerts returns generated alerts, optionally filtered with
// ?unresolved=true and ?rule_id=.
func (c *Controller) ListAlerts(ctx echo.Context) error {
	filter := alerting.AlertFilter{
		Unresolved: ctx.QueryParam("unresolved") == "true",
		RuleID:     ctx.QueryParam("rule_id"),
	}
	alerts := c.system.Engine().Alerts(filter)
	return ctx.JSON(http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// AcknowledgeAlert marks an alert as acknowledged.
func (c *Controller) AcknowledgeAlert(ctx echo.Context) error {
	return c.setAlertFlag(ctx, c.system.Engine().Acknowledge)
}

// ResolveAlert marks an alert as resolved.
func (c *Controller) ResolveAlert(ctx echo.Context) error {
	return c.setAlertFlag(ctx, c.system.Engine().Resolve)
}

func (c *Controller) setAlertFlag(ctx echo.Context, set func(string) error) error {
	id := ctx.Param("id")
	if err := set(id); err != nil {
		if errors.Is(err, alerting.ErrAlertNotFound) {
			return ctx.JSON(http.StatusNotFound, map[string]string{"error": "Alert not found"})
		}
		c.log.Error("failed to update alert", logger.String("alert_id", id), logger.Error(err))
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to update alert"})
	}
	return ctx.NoContent(http.StatusNoContent)
}

// ListRules returns the registered alert rules.
func (c *Controller) ListRules(ctx echo.Context) error {
	rules := c.system.Engine().Rules()
	return ctx.JSON(http.StatusOK, map[string]any{
		"rules": rules,
		"count": len(rules),
	})
}

// ToggleRule enables or disables a rule (?enabled=true|false).
func (c *Controller) ToggleRule(ctx echo.Context) error {
	id := ctx.Param("id")
	enabled := ctx.QueryParam("enabled") == "true"
	if err := c.system.Engine().SetEnabled(id, enabled); err != nil {
		if errors.Is(err, alerting.ErrRuleNotFound) {
			return ctx.JSON(http.StatusNotFound, map[string]string{"error": "Rule not found"})
		}
		c.log.Error("failed to toggle rule", logger.String("rule_id", id), logger.Error(err))
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to toggle rule"})
	}
	return ctx.NoContent(http.StatusNoContent)
}

// IngestError accepts a raw error record as JSON and runs it through the
// synchronous pipeline. Malformed records are still accepted as long as the
// body is a JSON object.
func (c *Controller) IngestError(ctx echo.Context) error {
	var record map[string]any
	if err := ctx.Bind(&record); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Request body must be a JSON object"})
	}

	alerts := c.system.ProcessError(record)
	return ctx.JSON(http.StatusAccepted, map[string]any{
		"alerts_fired": len(alerts),
	})
}
