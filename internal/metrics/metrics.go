// Package metrics declares the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts handled requests by route and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zerobase_http_requests_total",
		Help: "The total number of HTTP requests",
	}, []string{"method", "route", "status"})

	// HTTPRequestDuration observes handler latency.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "zerobase_http_request_duration_seconds",
		Help:    "The HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	// AccessDecisionsTotal counts access gate outcomes by rule.
	AccessDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zerobase_access_decisions_total",
		Help: "The total number of access gate decisions",
	}, []string{"rule"})

	// TenantPools is the number of open per-tenant connection pools.
	TenantPools = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "zerobase_tenant_pools",
		Help: "Open per-tenant connection pools",
	})

	// RealtimeConnections is the number of live websocket connections.
	RealtimeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "zerobase_realtime_connections",
		Help: "Live realtime connections",
	})

	// RealtimeMessagesTotal counts change messages queued for delivery.
	RealtimeMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zerobase_realtime_messages_total",
		Help: "The total number of realtime change messages",
	}, []string{"result"})

	// StorageUploadsTotal counts uploads by outcome.
	StorageUploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zerobase_storage_uploads_total",
		Help: "The total number of storage uploads",
	}, []string{"result"})
)
