package workqueue

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// queueDepth is only written from the owning shard worker.
var (
	submissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "claw",
			Subsystem: "workqueue",
			Name:      "submissions_total",
			Help:      "Jobs accepted for execution.",
		},
		[]string{"queue", "shard"},
	)

	queueFullTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "claw",
			Subsystem: "workqueue",
			Name:      "queue_full_total",
			Help:      "Enqueue attempts rejected because the shard was full.",
		},
		[]string{"queue", "shard"},
	)

	failuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "claw",
			Subsystem: "workqueue",
			Name:      "failures_total",
			Help:      "Jobs that failed after all retries.",
		},
		[]string{"queue"},
	)

	runDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "claw",
			Subsystem: "workqueue",
			Name:      "run_duration_seconds",
			Help:      "Job execution latency.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"queue", "shard"},
	)

	queueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "claw",
			Subsystem: "workqueue",
			Name:      "queue_depth",
			Help:      "Current depth of each shard queue.",
		},
		[]string{"queue", "shard"},
	)

	activeLanes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "claw",
			Subsystem: "workqueue",
			Name:      "active_lanes",
			Help:      "Conversation lanes with a running worker.",
		},
	)
)

func labelFor(i int) string { return strconv.Itoa(i) }
