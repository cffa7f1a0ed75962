// Package metrics provides Prometheus instrumentation for the chat server.
// It exposes gauges for connection and presence counts, and counters for
// socket event and fanout throughput.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of active socket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "parley_connections_total",
		Help: "Current number of active socket connections",
	})

	// OnlineUsers tracks the current size of the presence set.
	OnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "parley_online_users",
		Help: "Current number of users marked present in a chat view",
	})

	// EventsTotal counts inbound socket events, labeled by event name.
	EventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "parley_events_total",
		Help: "Total number of inbound socket events processed",
	}, []string{"event"})

	// FanoutDeliveries counts outbound event deliveries to individual
	// connections, labeled by outcome: "sent" or "failed".
	FanoutDeliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "parley_fanout_deliveries_total",
		Help: "Total number of per-connection event deliveries",
	}, []string{"outcome"})

	// MessagesPersisted counts message persistence attempts, labeled by
	// outcome: "ok" or "error".
	MessagesPersisted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "parley_messages_persisted_total",
		Help: "Total number of message persistence attempts",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		OnlineUsers,
		EventsTotal,
		FanoutDeliveries,
		MessagesPersisted,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
