// Package metrics exposes Prometheus metrics for the agent.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voxflow-go/voxflow/pkg/engine/call"
)

// Metrics holds all Prometheus metrics for the call engine.
type Metrics struct {
	registry *prometheus.Registry

	CallsTotal    *prometheus.CounterVec
	CallDuration  *prometheus.HistogramVec
	ActiveCalls   prometheus.Gauge
	LeadScore     prometheus.Histogram
	DialsRefused  prometheus.Counter
	PhaseDuration *prometheus.HistogramVec
}

// New creates a Metrics instance with its own registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "voxflow"
	}
	registry := prometheus.NewRegistry()

	callsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_total",
			Help:      "Finished calls by scenario and outcome",
		},
		[]string{"scenario", "outcome"},
	)
	callDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_duration_seconds",
			Help:      "Call duration from origination to hangup",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"scenario", "outcome"},
	)
	activeCalls := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_calls",
			Help:      "Calls currently in flight",
		},
	)
	leadScore := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lead_score",
			Help:      "Qualification score of finished calls",
			Buckets:   []float64{0, 10, 25, 50, 75, 100},
		},
	)
	dialsRefused := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dials_refused_total",
			Help:      "Originations refused by dial pacing",
		},
	)
	phaseDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "phase_duration_seconds",
			Help:      "Duration of individual call phases",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"phase"},
	)

	registry.MustRegister(callsTotal, callDuration, activeCalls, leadScore, dialsRefused, phaseDuration)

	return &Metrics{
		registry:      registry,
		CallsTotal:    callsTotal,
		CallDuration:  callDuration,
		ActiveCalls:   activeCalls,
		LeadScore:     leadScore,
		DialsRefused:  dialsRefused,
		PhaseDuration: phaseDuration,
	}
}

// RecordOutcome satisfies call.OutcomeSink.
func (m *Metrics) RecordOutcome(ctx context.Context, res call.Result) error {
	outcome := string(res.Outcome)
	m.CallsTotal.WithLabelValues(res.Scenario, outcome).Inc()
	m.CallDuration.WithLabelValues(res.Scenario, outcome).Observe(res.Duration.Seconds())
	m.LeadScore.Observe(res.Score)
	return nil
}

// Handler serves the registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
