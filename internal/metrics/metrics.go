// Package metrics provides Prometheus metrics for the classification workflow.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WorkflowMetrics contains all Prometheus metrics related to the workflow.
type WorkflowMetrics struct {
	Transitions     *prometheus.CounterVec
	Failures        *prometheus.CounterVec
	Rejected        *prometheus.CounterVec
	Classifications *prometheus.CounterVec
	InferenceTime   prometheus.Histogram
	ActiveSessions  prometheus.Gauge
}

// NewWorkflowMetrics creates the metrics and registers them with registry.
func NewWorkflowMetrics(registry prometheus.Registerer) (*WorkflowMetrics, error) {
	m := &WorkflowMetrics{
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "waste_phase_transitions_total",
			Help: "Total number of phase transitions by source and target phase",
		}, []string{"from", "to"}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "waste_workflow_failures_total",
			Help: "Total number of failed workflow operations by failure kind",
		}, []string{"kind"}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "waste_workflow_rejected_total",
			Help: "Total number of operations rejected because another was in flight",
		}, []string{"operation"}),
		Classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "waste_classifications_total",
			Help: "Total number of completed classifications by predicted label",
		}, []string{"label"}),
		InferenceTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "waste_inference_duration_seconds",
			Help:    "Duration of preprocessing plus forward pass in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "waste_active_sessions",
			Help: "Number of live workflow sessions",
		}),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register workflow metrics: %w", err)
	}
	return m, nil
}

// Describe implements the prometheus.Collector interface.
func (m *WorkflowMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.Transitions.Describe(ch)
	m.Failures.Describe(ch)
	m.Rejected.Describe(ch)
	m.Classifications.Describe(ch)
	m.InferenceTime.Describe(ch)
	m.ActiveSessions.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *WorkflowMetrics) Collect(ch chan<- prometheus.Metric) {
	m.Transitions.Collect(ch)
	m.Failures.Collect(ch)
	m.Rejected.Collect(ch)
	m.Classifications.Collect(ch)
	m.InferenceTime.Collect(ch)
	m.ActiveSessions.Collect(ch)
}

// The recorders below accept a nil receiver so callers can run without metrics.

func (m *WorkflowMetrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(from, to).Inc()
}

func (m *WorkflowMetrics) RecordFailure(kind string) {
	if m == nil {
		return
	}
	m.Failures.WithLabelValues(kind).Inc()
}

func (m *WorkflowMetrics) RecordRejected(operation string) {
	if m == nil {
		return
	}
	m.Rejected.WithLabelValues(operation).Inc()
}

func (m *WorkflowMetrics) RecordClassification(label string, took time.Duration) {
	if m == nil {
		return
	}
	m.Classifications.WithLabelValues(label).Inc()
	m.InferenceTime.Observe(took.Seconds())
}

func (m *WorkflowMetrics) SessionOpened() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

func (m *WorkflowMetrics) SessionClosed() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}
