package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricRequests = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gatepass",
		Name:      "requests_total",
		Help:      "Number of clearance requests received.",
	})
	metricSuccesses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gatepass",
		Name:      "requests_succeeded_total",
		Help:      "Number of clearance requests that returned an artifact.",
	})
	metricFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gatepass",
		Name:      "requests_failed_total",
		Help:      "Number of clearance requests that exhausted retries or were cancelled.",
	})
	metricCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gatepass",
		Name:      "cache_hits_total",
		Help:      "Number of requests served from the result cache.",
	})
	metricQueueWaiting = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gatepass",
		Name:      "queue_waiting",
		Help:      "Requests waiting for an admission slot.",
	})
	metricProcessing = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gatepass",
		Name:      "processing",
		Help:      "Requests currently past admission.",
	})
)
