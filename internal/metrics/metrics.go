// Package metrics counts scenario outcomes and harness events for one run and
// optionally pushes them to a Prometheus Pushgateway when the run ends.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "storefront_e2e"

// Metrics holds the run's collectors on a private registry. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	Scenarios          *prometheus.CounterVec
	ScenarioDuration   prometheus.Histogram
	ContextRecreations prometheus.Counter
	ReportFailures     *prometheus.CounterVec
	Screenshots        *prometheus.CounterVec
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		Scenarios: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scenarios_total",
			Help:      "Scenarios finished, by reported status.",
		}, []string{"status"}),
		ScenarioDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scenario_duration_seconds",
			Help:      "Wall time of each scenario.",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 40, 80, 160},
		}),
		ContextRecreations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "context_recreations_total",
			Help:      "Browser contexts opened at feature boundaries.",
		}),
		ReportFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_failures_total",
			Help:      "Best-effort reporting calls that failed, by call.",
		}, []string{"call"}),
		Screenshots: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "screenshots_total",
			Help:      "Failure screenshots, by result (captured, skipped, failed).",
		}, []string{"result"}),
	}
}

// ScenarioFinished records one scenario outcome.
func (m *Metrics) ScenarioFinished(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Scenarios.WithLabelValues(status).Inc()
	m.ScenarioDuration.Observe(elapsed.Seconds())
}

// ContextRecreated records a feature boundary that opened a new context.
func (m *Metrics) ContextRecreated() {
	if m == nil {
		return
	}
	m.ContextRecreations.Inc()
}

// ReportFailed records a failed best-effort call.
func (m *Metrics) ReportFailed(call string) {
	if m == nil {
		return
	}
	m.ReportFailures.WithLabelValues(call).Inc()
}

// Screenshot records what happened to a failure screenshot.
func (m *Metrics) Screenshot(result string) {
	if m == nil {
		return
	}
	m.Screenshots.WithLabelValues(result).Inc()
}

// Push sends the registry to a Pushgateway under job, grouped by run.
func (m *Metrics) Push(ctx context.Context, url, job, runID string) error {
	if m == nil || url == "" {
		return nil
	}
	p := push.New(url, job).Gatherer(m.Registry)
	if runID != "" {
		p = p.Grouping("run", runID)
	}
	if err := p.PushContext(ctx); err != nil {
		return fmt.Errorf("metrics: push to %s: %w", url, err)
	}
	return nil
}
