package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ppiankov/promptspeak/internal/model"
)

// Surfaces label which guard produced a decision.
const (
	SurfaceTool       = "tool"
	SurfaceMiddleware = "middleware"
	SurfaceMCP        = "mcp"
	SurfaceCLI        = "cli"
)

// Metrics holds the Prometheus collectors for governance decisions.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	decisionsTotal     *prometheus.CounterVec
	driftAlertsTotal   *prometheus.CounterVec
	evaluationDuration *prometheus.HistogramVec
	holdResolutions    *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a metrics set on its own registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "promptspeak_decisions_total",
				Help: "Governance decisions by surface and outcome",
			},
			[]string{"surface", "decision"},
		),
		driftAlertsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "promptspeak_drift_alerts_total",
				Help: "Drift alerts reported by post-execution audits",
			},
			[]string{"severity"},
		),
		evaluationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "promptspeak_evaluation_duration_seconds",
				Help:    "Time spent evaluating one tool call",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"surface"},
		),
		holdResolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "promptspeak_hold_resolutions_total",
				Help: "Holds resolved out of band",
			},
			[]string{"resolution"},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.decisionsTotal,
		m.driftAlertsTotal,
		m.evaluationDuration,
		m.holdResolutions,
	)

	return m
}

// RecordDecision counts one decision and its drift alerts.
func (m *Metrics) RecordDecision(surface string, ev model.GovernanceEvent, duration time.Duration) {
	if m == nil {
		return
	}
	m.decisionsTotal.WithLabelValues(surface, string(ev.Decision)).Inc()
	m.evaluationDuration.WithLabelValues(surface).Observe(duration.Seconds())
	for _, a := range ev.DriftAlerts {
		m.driftAlertsTotal.WithLabelValues(string(a.Severity)).Inc()
	}
}

// RecordHoldResolution counts an approved or denied hold.
func (m *Metrics) RecordHoldResolution(status model.HoldStatus) {
	if m == nil {
		return
	}
	m.holdResolutions.WithLabelValues(string(status)).Inc()
}

// Handler returns the Prometheus metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
