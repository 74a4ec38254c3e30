// Package monitor wires the aggregator, trend analyzer, and alert engine
// into the error monitoring pipeline: a synchronous per-event path plus a
// periodic background sweep over recently active patterns.
package monitor

import (
	"sync"
	"time"

	"github.com/opsflare/errwatch/internal/aggregator"
	"github.com/opsflare/errwatch/internal/alerting"
	"github.com/opsflare/errwatch/internal/conf"
	"github.com/opsflare/errwatch/internal/logger"
	"github.com/opsflare/errwatch/internal/telemetry"
	"github.com/opsflare/errwatch/internal/trend"
)

// System is the orchestrator. Construct one with New and inject it where
// needed; there is no package-level instance.
type System struct {
	log      logger.Logger
	metrics  *telemetry.Metrics
	agg      *aggregator.Aggregator
	analyzer *trend.Analyzer
	engine   *alerting.Engine

	sweepInterval time.Duration
	activeWindow  time.Duration

	mu      sync.Mutex // guards lifecycle state
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New builds a System from settings. metrics may be nil.
func New(settings *conf.Settings, log logger.Logger, metrics *telemetry.Metrics) *System {
	if settings == nil {
		settings = conf.DefaultSettings()
	}

	agg := aggregator.New(aggregator.Config{
		MaxHistoryEntries:    settings.Aggregator.MaxHistoryEntries,
		MaxHistoryAge:        settings.Aggregator.MaxHistoryAge.Std(),
		MaxSamplesPerPattern: settings.Aggregator.MaxSamplesPerPattern,
	})
	analyzer := trend.NewAnalyzer(settings.Trend.WindowSize.Std(), settings.Trend.SpikeThreshold)
	engine := alerting.NewEngine(log, func(rule *alerting.Rule, _ *alerting.Alert) {
		metrics.AlertFired(rule.ID)
	})

	return &System{
		log:           log,
		metrics:       metrics,
		agg:           agg,
		analyzer:      analyzer,
		engine:        engine,
		sweepInterval: settings.Monitor.SweepInterval.Std(),
		activeWindow:  settings.Monitor.ActiveWindow.Std(),
	}
}

// Aggregator exposes the pattern store for read-side collaborators.
func (s *System) Aggregator() *aggregator.Aggregator { return s.agg }

// Engine exposes the alert engine for rule management and alert listing.
func (s *System) Engine() *alerting.Engine { return s.engine }

// ProcessError is the synchronous per-event pipeline: aggregate the record,
// recompute the affected pattern's trend, evaluate alert rules, and return
// any alerts fired. It never fails on malformed input and never blocks on
// the background sweep.
func (s *System) ProcessError(data map[string]any) []*alerting.Alert {
	return s.ProcessErrorAt(data, time.Now())
}

// ProcessErrorAt is ProcessError with an explicit event time, used by tests
// and backfills.
func (s *System) ProcessErrorAt(data map[string]any, now time.Time) []*alerting.Alert {
	pattern := s.agg.AddAt(data, now)
	s.metrics.ErrorIngested()
	s.metrics.SetPatterns(s.agg.PatternCount())
	s.metrics.SetHistoryEntries(s.agg.HistoryLen())

	tr := s.analyzer.AnalyzePatternAt(pattern, s.agg.HistorySnapshot(), now)
	alerts := s.engine.EvaluatePatternAt(pattern, tr, now)

	for _, alert := range alerts {
		s.log.Warn("alert generated",
			logger.String("alert_id", alert.ID),
			logger.String("rule_id", alert.RuleID),
			logger.String("message", alert.Message))
	}
	return alerts
}

// Start launches the background sweep. Starting a running system is a no-op.
func (s *System) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go s.sweepLoop(s.stopCh, s.doneCh)
	s.log.Info("background sweep started",
		logger.Duration("interval", s.sweepInterval))
}

// Stop cancels the background sweep and blocks until it has fully exited.
// An in-flight pattern evaluation completes before the loop stops. Stopping
// a stopped system is a no-op.
func (s *System) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stopCh, doneCh := s.stopCh, s.doneCh
	s.stopCh, s.doneCh = nil, nil
	s.mu.Unlock()

	close(stopCh)
	<-doneCh
	s.log.Info("background sweep stopped")
}

// sweepLoop re-evaluates recently active patterns on a fixed interval until
// stopped. A sweep-level failure is logged and the loop retries on the next
// tick rather than terminating.
func (s *System) sweepLoop(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(stopCh)
		case <-stopCh:
			return
		}
	}
}

// sweep recomputes trends and re-evaluates rules for every pattern active
// within the trailing window. It iterates over a snapshot so concurrent
// ProcessError calls never expose half-updated patterns, and one pattern's
// failure never aborts the rest. It checks stopCh between patterns so
// cancellation finishes the current pattern and then exits.
func (s *System) sweep(stopCh <-chan struct{}) {
	now := time.Now()
	patterns := s.agg.PatternsInWindow(s.activeWindow, now)
	if len(patterns) == 0 {
		s.metrics.SweepRun()
		return
	}
	hist := s.agg.HistorySnapshot()

	for i := range patterns {
		select {
		case <-stopCh:
			return
		default:
		}
		s.evaluateOne(patterns[i], hist, now)
	}
	s.metrics.SweepRun()
}

// evaluateOne analyzes and evaluates a single pattern with panic isolation.
func (s *System) evaluateOne(pattern aggregator.Pattern, hist []aggregator.Occurrence, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.SweepFailure()
			s.log.Error("pattern evaluation failed during sweep",
				logger.String("pattern", pattern.Signature.PatternHash),
				logger.Any("panic", r))
		}
	}()

	tr := s.analyzer.AnalyzePatternAt(pattern, hist, now)
	alerts := s.engine.EvaluatePatternAt(pattern, tr, now)
	for _, alert := range alerts {
		s.log.Warn("alert generated by sweep",
			logger.String("alert_id", alert.ID),
			logger.String("rule_id", alert.RuleID),
			logger.String("message", alert.Message))
	}
}
