package workflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "loom",
		Subsystem: "workflow",
		Name:      "runs_total",
		Help:      "Workflow runs by outcome.",
	}, []string{"outcome"})

	nodeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "loom",
		Subsystem: "workflow",
		Name:      "node_duration_seconds",
		Help:      "Node execution latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"node"})

	stepErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "loom",
		Subsystem: "workflow",
		Name:      "step_errors_total",
		Help:      "Recorded step errors by kind.",
	}, []string{"kind"})
)
