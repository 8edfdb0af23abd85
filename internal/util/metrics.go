package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created",
	})

	OrdersEscrowedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_escrowed_total",
		Help: "Total number of payments captured into escrow",
	})

	OrdersReleasedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_released_total",
		Help: "Total number of escrow releases by trigger",
	}, []string{"trigger"})

	OrdersRefundedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_refunded_total",
		Help: "Total number of refunded orders",
	})

	FundsReleaseDuplicatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "funds_release_duplicates_total",
		Help: "Release invocations absorbed by the terminal-state guard",
	})

	AuctionsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auctions_created_total",
		Help: "Total number of auctions created",
	})

	AuctionsClosedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auctions_closed_total",
		Help: "Total number of auctions closed by outcome",
	}, []string{"outcome"})

	BidsPlacedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bids_placed_total",
		Help: "Total number of bid attempts by result",
	}, []string{"result"})

	NotificationsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifications_created_total",
		Help: "Total number of notifications created",
	})

	NotificationFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notification_failures_total",
		Help: "Total number of failed notification writes",
	})

	SweepRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sweep_runs_total",
		Help: "Background sweep executions by task",
	}, []string{"task"})

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
