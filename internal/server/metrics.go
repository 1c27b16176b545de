// Package server exposes Prometheus collectors for the relay's operational
// signals.
package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	connectionsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_connections_open",
		Help: "Number of WebSocket connections currently open.",
	})

	roomsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_rooms_active",
		Help: "Number of rooms with at least one member.",
	})

	eventsRelayed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_events_relayed_total",
		Help: "Events fanned out to room members, by event type.",
	}, []string{"type"})

	sendsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_sends_dropped_total",
		Help: "Events dropped because a client's send buffer was full.",
	})
)

// MetricsHandler exposes Prometheus metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
