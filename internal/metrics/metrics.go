// Package metrics exposes the ambient Prometheus counters the server
// runtime maintains: turns run, tool executions, and approval latencies.
// Additive observability only; nothing branches on a metric value.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "codex_turns_total",
		Help: "Orchestrator turns run, labeled by model.",
	}, []string{"model"})

	ToolExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "codex_tool_executions_total",
		Help: "Tool executions, labeled by tool name and outcome.",
	}, []string{"tool", "outcome"})

	ApprovalLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "codex_approval_latency_seconds",
		Help:    "Time between an approval_required event and its resolution.",
		Buckets: prometheus.DefBuckets,
	})
)

// RecordTool records one tool execution outcome.
func RecordTool(toolName string, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	ToolExecutionsTotal.WithLabelValues(toolName, outcome).Inc()
}

// RecordTurn records one orchestrator turn for a given model.
func RecordTurn(model string) {
	TurnsTotal.WithLabelValues(model).Inc()
}
