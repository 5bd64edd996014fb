// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	OutboxPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taxi_outbox_events_published_total",
		Help: "Outbox events published to Kafka.",
	})
	OutboxPublishErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taxi_outbox_publish_errors_total",
		Help: "Failed outbox publish attempts.",
	})

	Estimates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taxi_estimates_total",
		Help: "Fare estimates by tariff code, or by failure kind.",
	}, []string{"result"})

	RouteLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taxi_route_lookups_total",
		Help: "Routing lookups by outcome (hit, miss, error, flat).",
	}, []string{"outcome"})

	BookingsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taxi_bookings_created_total",
		Help: "Bookings created by source.",
	}, []string{"source"})

	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taxi_booking_transitions_total",
		Help: "Applied booking status transitions.",
	}, []string{"from", "to"})

	TransitionConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taxi_booking_write_conflicts_total",
		Help: "Booking writes retried after losing an optimistic concurrency race.",
	})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taxi_notifications_total",
		Help: "Customer e-mails by template and result.",
	}, []string{"template", "result"})

	LiveSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "taxi_ws_subscribers",
		Help: "Open websocket connections on the live booking feed.",
	})
)

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }
