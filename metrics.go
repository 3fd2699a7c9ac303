package kithttp

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes Prometheus counters for the socket side of the server. The
// registry is private to each KitHttp instance so tests can run servers side
// by side without collisions.
type Metrics struct {
	registry *prometheus.Registry

	ActiveConnections prometheus.Gauge
	ConnectionsTotal  prometheus.Counter
	FramesReceived    prometheus.Counter
	FramesSent        prometheus.Counter
	DispatchErrors    prometheus.Counter
	BroadcastsTotal   prometheus.Counter
}

func newMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "socket_active_connections",
			Help:      "Number of currently registered socket connections.",
		}),
		ConnectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "socket_connections_total",
			Help:      "Total accepted socket connections.",
		}),
		FramesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "socket_frames_received_total",
			Help:      "Total inbound text frames.",
		}),
		FramesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "socket_frames_sent_total",
			Help:      "Total outbound frames, including replies and errors.",
		}),
		DispatchErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "socket_dispatch_errors_total",
			Help:      "Total handler errors converted to error frames.",
		}),
		BroadcastsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "socket_broadcasts_total",
			Help:      "Total broadcast operations.",
		}),
	}
}

// Handler serves this instance's metrics in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
