package pool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricSessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gatepass",
		Name:      "pool_sessions_created_total",
		Help:      "Number of browser sessions created by or for the pool.",
	})
	metricCreateFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gatepass",
		Name:      "pool_session_create_failures_total",
		Help:      "Number of browser session creations that failed.",
	})
)
