// Package metrics instruments treescope with Prometheus collectors. All
// collectors live on a private registry so tests and embedded uses never
// fight over the global default.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the inspector updates.
type Metrics struct {
	registry *prometheus.Registry

	NodesLive        prometheus.Gauge
	EventsApplied    *prometheus.CounterVec
	EventsRejected   prometheus.Counter
	DeltasBroadcast  prometheus.Counter
	ClientsConnected prometheus.Gauge
}

// New creates the collectors on a fresh private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		NodesLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "treescope",
			Name:      "nodes_live",
			Help:      "Number of nodes currently in the tree mapping, root included.",
		}),
		EventsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "treescope",
			Name:      "events_applied_total",
			Help:      "Mutation events applied to the tree, by operation.",
		}, []string{"op"}),
		EventsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "treescope",
			Name:      "events_rejected_total",
			Help:      "Mutation events skipped as malformed or unknown.",
		}),
		DeltasBroadcast: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "treescope",
			Name:      "deltas_broadcast_total",
			Help:      "Subtree membership deltas broadcast to websocket clients.",
		}),
		ClientsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "treescope",
			Name:      "websocket_clients",
			Help:      "Websocket clients currently connected.",
		}),
	}

	registry.MustRegister(
		m.NodesLive,
		m.EventsApplied,
		m.EventsRejected,
		m.DeltasBroadcast,
		m.ClientsConnected,
	)
	return m
}

// Handler returns the scrape endpoint for the private registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
