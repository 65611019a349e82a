package fetch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quantdata",
		Subsystem: "fetch",
		Name:      "requests_total",
		Help:      "Vendor HTTP requests by outcome.",
	}, []string{"vendor", "status"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quantdata",
		Subsystem: "fetch",
		Name:      "retries_total",
		Help:      "Vendor HTTP request retries.",
	}, []string{"vendor"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "quantdata",
		Subsystem: "fetch",
		Name:      "request_duration_seconds",
		Help:      "Vendor HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"vendor"})
)
