// Package metrics exposes Prometheus instrumentation for the signaling relay.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all relay-side Prometheus collectors.
type Metrics struct {
	ActiveRooms    prometheus.Gauge
	ActiveSessions prometheus.Gauge

	JoinsTotal      prometheus.Counter
	DeparturesTotal prometheus.Counter
	KicksTotal      prometheus.Counter

	SignalsRelayed *prometheus.CounterVec
	SignalsDropped prometheus.Counter
	ChatMessages   prometheus.Counter
	ProtocolErrors prometheus.Counter
}

// New creates and registers the relay metrics against reg. Tests pass a fresh
// registry; the server passes prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ActiveRooms: factory.NewGauge(prometheus.GaugeOpts{
			Name: "concord_active_rooms",
			Help: "Number of rooms with at least one participant.",
		}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "concord_active_sessions",
			Help: "Number of live websocket sessions.",
		}),
		JoinsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "concord_joins_total",
			Help: "Total successful room joins.",
		}),
		DeparturesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "concord_departures_total",
			Help: "Total departures, disconnects and kicks included.",
		}),
		KicksTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "concord_kicks_total",
			Help: "Total participants removed by the room creator.",
		}),
		SignalsRelayed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "concord_signals_relayed_total",
			Help: "Handshake messages relayed between peers, by type.",
		}, []string{"type"}),
		SignalsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "concord_signals_dropped_total",
			Help: "Handshake messages dropped because the target was not live.",
		}),
		ChatMessages: factory.NewCounter(prometheus.CounterOpts{
			Name: "concord_chat_messages_total",
			Help: "Chat messages broadcast to rooms.",
		}),
		ProtocolErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "concord_protocol_errors_total",
			Help: "Requests rejected as protocol violations.",
		}),
	}
}
