package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CartItemsAddedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cart_items_added_total",
		Help: "Total number of add-to-cart operations that succeeded",
	})

	CheckoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkouts_total",
		Help: "Total number of committed checkouts",
	}, []string{"type"})

	CheckoutsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkouts_failed_total",
		Help: "Total number of failed checkouts",
	}, []string{"type", "reason"})

	CheckoutLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkout_latency_seconds",
		Help:    "Latency of checkout operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})

	DiscountsConsumedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "discounts_consumed_total",
		Help: "Total number of discount usage units spent by committed orders",
	})

	OrderStatusTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_status_transitions_total",
		Help: "Total number of order status transitions",
	}, []string{"status"})

	StockDebitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_debits_total",
		Help: "Total number of orders whose stock was debited",
	})

	PostCommitFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "post_commit_failures_total",
		Help: "Failures of steps that run after an order committed",
	}, []string{"step"})

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
