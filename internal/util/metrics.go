package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QuotationsPricedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quotations_priced_total",
		Help: "Total number of price computations",
	})

	NegativePricesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quotation_negative_prices_total",
		Help: "Total number of price computations that went below zero",
	})

	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lifecycle_transitions_total",
		Help: "Total number of attempted status transitions",
	}, []string{"entity", "action", "result"})

	PaymentsRecordedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_payments_recorded_total",
		Help: "Total number of customer order payments by resulting status",
	}, []string{"status"})

	AllocationStepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "allocation_steps_total",
		Help: "Total number of per-instance allocation steps",
	}, []string{"result"})

	AllocationRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "allocation_rejections_total",
		Help: "Total number of allocations rejected before any side effect",
	}, []string{"reason"})

	BackendRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "backend_request_duration_seconds",
		Help:    "Latency of calls to the backend domain services",
		Buckets: prometheus.DefBuckets,
	}, []string{"service", "method", "status"})

	CacheRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_requests_total",
		Help: "Total number of read cache lookups",
	}, []string{"result"})

	EventsConsumedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_consumed_total",
		Help: "Total number of lifecycle events consumed",
	}, []string{"event_type", "result"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
