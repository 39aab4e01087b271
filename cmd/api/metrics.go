package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vendorflow",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method and status code",
		},
		[]string{"method", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vendorflow",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method"},
	)

	// workflowTransitionsTotal counts successful agreement status transitions
	// by resulting status.
	workflowTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vendorflow",
			Subsystem: "workflow",
			Name:      "transitions_total",
			Help:      "Total successful agreement transitions by resulting status",
		},
		[]string{"status"},
	)

	verificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vendorflow",
			Subsystem: "workflow",
			Name:      "verifications_total",
			Help:      "Total verification decisions recorded by outcome",
		},
		[]string{"status"},
	)
)
