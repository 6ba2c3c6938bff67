package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "code", "method"},
	)

	DBTxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "checkout_db_tx_seconds",
			Help:    "Duration of DB transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	HoldsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "checkout_holds_created_total",
			Help: "Total reservation holds created",
		},
	)

	HoldsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "checkout_holds_expired_total",
			Help: "Total reservation holds swept after TTL expiry",
		},
	)

	AvailabilityConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "checkout_availability_conflicts_total",
			Help: "Total prepare requests rejected for inventory or lost races",
		},
	)

	FinalizeFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "checkout_finalize_failures_total",
			Help: "Payments accepted whose post-payment bookkeeping failed",
		},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "checkout_outbox_lag_seconds",
			Help: "Age of the oldest unpublished outbox record",
		},
	)

	RabbitPublishRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "checkout_rabbit_publish_retries_total",
			Help: "Total rabbit publish retries",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "checkout_rate_limit_exceeded_total",
			Help: "Total requests rejected by the rate limiter",
		},
	)
)
