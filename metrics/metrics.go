// Package metrics holds claw's process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "claw"

// Outcome label values.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

var (
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "turns_total",
			Help:      "User turns handled, by message kind.",
		},
		[]string{"kind"},
	)

	TurnFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "turn_failures_total",
			Help:      "User turns that ended with the generic failure reply.",
		},
		[]string{"kind"},
	)

	UnauthorizedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "unauthorized_total",
			Help:      "Inbound messages dropped because the sender is not allow-listed.",
		},
	)

	TurnDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "turn_duration_seconds",
			Help:      "Wall time from inbound message to reply.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		},
	)

	ModelCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "model_calls_total",
			Help:      "Chat completion requests, by outcome.",
		},
		[]string{"outcome"},
	)

	AgentIterations = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "iterations",
			Help:      "Model calls needed to finish one turn.",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 8, 10},
		},
	)

	ToolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tools",
			Name:      "calls_total",
			Help:      "Tool executions, by tool and outcome.",
		},
		[]string{"tool", "outcome"},
	)

	IndexUpsertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "memory",
			Name:      "index_upserts_total",
			Help:      "Semantic index writes, by outcome.",
		},
		[]string{"outcome"},
	)

	IndexDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "memory",
			Name:      "index_dropped_total",
			Help:      "Index writes that could not be enqueued and wait for reconciliation.",
		},
	)

	RecallTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "memory",
			Name:      "recall_total",
			Help:      "Semantic recall queries, by outcome.",
		},
		[]string{"outcome"},
	)

	ReconciledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "memory",
			Name:      "reconciled_total",
			Help:      "Unindexed messages re-enqueued by the reconciler.",
		},
	)
)
