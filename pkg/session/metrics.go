package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "loom",
		Subsystem: "session",
		Name:      "active",
		Help:      "Number of retained chat sessions.",
	})

	framesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "loom",
		Subsystem: "session",
		Name:      "frames_total",
		Help:      "Chat frames by direction and type.",
	}, []string{"direction", "type"})
)
