// Package telemetry registers the Prometheus collectors for tool calls
// and workflow sections.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	toolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agents_tool_calls_total",
		Help: "Tool calls by tool name and status.",
	}, []string{"tool", "status"})

	toolDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agents_tool_call_duration_seconds",
		Help:    "Tool call latency by tool name.",
		Buckets: prometheus.DefBuckets,
	}, []string{"tool"})

	workflowSections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agents_workflow_sections_total",
		Help: "Workflow sections by analysis key and status.",
	}, []string{"analysis", "status"})

	workflowDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "agents_workflow_duration_seconds",
		Help:    "End-to-end workflow latency.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	})
)

// ObserveToolCall records one tool call outcome.
func ObserveToolCall(tool, status string, elapsed time.Duration) {
	toolCalls.WithLabelValues(tool, status).Inc()
	toolDuration.WithLabelValues(tool).Observe(elapsed.Seconds())
}

// ObserveSection records one workflow section outcome.
func ObserveSection(analysis, status string) {
	workflowSections.WithLabelValues(analysis, status).Inc()
}

// ObserveWorkflow records one full workflow run.
func ObserveWorkflow(elapsed time.Duration) {
	workflowDuration.Observe(elapsed.Seconds())
}
