package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ChatRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_requests_total",
		Help: "Total number of chat utterances by classified intent",
	}, []string{"intent"})

	ChatStreamErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_stream_errors_total",
		Help: "Total number of chat streams terminated with an error event",
	})

	StreamEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stream_events_total",
		Help: "Total number of stream events written",
	}, []string{"type"})

	SearchRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_search_requests_total",
		Help: "Total number of catalog searches",
	}, []string{"source", "cache"})

	SearchFuzzyFallbackTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_search_fuzzy_fallback_total",
		Help: "Total number of searches answered by the fuzzy fallback",
	})

	CatalogReloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_reloads_total",
		Help: "Total number of catalog snapshot reloads",
	}, []string{"result"})

	UpstreamLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "upstream_latency_seconds",
		Help:    "Latency of remote catalog and LLM calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"upstream"})

	PendingTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pending_order_transitions_total",
		Help: "Total number of pending-order state transitions",
	}, []string{"transition"})

	OrdersCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created",
	}, []string{"channel"})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of failed order creations",
	}, []string{"reason"})

	OrderRevenueTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_revenue_total",
		Help: "Sum of placed order totals observed on the event stream",
	}, []string{"channel"})

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
