package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metricsConnections = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "server",
	Name:      "connections_active",
	Help:      "Number of active ws connections",
})

var metricsActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "server",
	Name:      "sessions_active",
	Help:      "Number of active charging sessions",
})

var metricsCallCounts = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ocpp",
	Name:      "call_count",
	Help:      "Total number of handled calls by action.",
}, []string{"version", "action"})

var metricsCallErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ocpp",
	Name:      "call_error_count",
	Help:      "Total number of call errors by code.",
}, []string{"code"})

func observeCall(version, action string) {
	metricsCallCounts.With(prometheus.Labels{"version": version, "action": action}).Inc()
}

func observeCallError(code string) {
	metricsCallErrors.With(prometheus.Labels{"code": code}).Inc()
}
