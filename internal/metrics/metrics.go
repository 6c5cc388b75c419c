// Package metrics holds the relay's Prometheus collectors. Everything is
// registered on the default registry and served at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_connected_clients",
		Help: "Number of WebSocket clients currently connected.",
	})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_active_sessions",
		Help: "Number of live relay sessions.",
	})

	DegradedSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_degraded_sessions",
		Help: "Live sessions running without a real transcoder subprocess.",
	})

	BytesRelayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_bytes_relayed_total",
		Help: "Media bytes piped to transcoder subprocesses.",
	})

	ChunksRelayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_chunks_relayed_total",
		Help: "Binary frames piped to transcoder subprocesses.",
	})

	SessionStarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_session_starts_total",
		Help: "Start directives by outcome.",
	}, []string{"result"})
)
