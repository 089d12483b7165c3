// Package metrics exposes Prometheus instrumentation for the presence server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	ConnectedSessions prometheus.Gauge
	ActiveRooms       prometheus.Gauge
	MessagesTotal     *prometheus.CounterVec
	DroppedRelays     prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ConnectedSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "office_connected_sessions",
			Help: "Number of live client sessions across all rooms.",
		}),
		ActiveRooms: factory.NewGauge(prometheus.GaugeOpts{
			Name: "office_active_rooms",
			Help: "Number of room instances currently running.",
		}),
		MessagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "office_messages_total",
			Help: "Inbound client messages processed, by envelope type.",
		}, []string{"type"}),
		DroppedRelays: factory.NewCounter(prometheus.CounterOpts{
			Name: "office_dropped_relays_total",
			Help: "Relays addressed to sessions that had already disconnected.",
		}),
	}
}
