package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Command outcomes.
const (
	OutcomeApplied  = "applied"
	OutcomeRejected = "rejected"
	OutcomeDropped  = "dropped"
)

type Metrics struct {
	Registry *prometheus.Registry

	clients         prometheus.Gauge
	commands        *prometheus.CounterVec
	persistFailures prometheus.Counter
	broadcasts      *prometheus.CounterVec
	slowDrops       prometheus.Counter
}

// New builds the metric set on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "auction",
			Name:      "connected_clients",
			Help:      "Websocket clients currently subscribed.",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auction",
			Name:      "commands_total",
			Help:      "Ledger commands by type and outcome.",
		}, []string{"command", "outcome"}),
		persistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "auction",
			Name:      "persist_failures_total",
			Help:      "Ledger snapshots that failed to save.",
		}),
		broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auction",
			Name:      "broadcasts_total",
			Help:      "Messages fanned out to all clients, by event.",
		}, []string{"event"}),
		slowDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "auction",
			Name:      "slow_client_drops_total",
			Help:      "Clients disconnected because their outbox was full.",
		}),
	}
	reg.MustRegister(
		m.clients,
		m.commands,
		m.persistFailures,
		m.broadcasts,
		m.slowDrops,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) SetClients(n int) { m.clients.Set(float64(n)) }

func (m *Metrics) Command(command, outcome string) {
	m.commands.WithLabelValues(command, outcome).Inc()
}

func (m *Metrics) PersistFailed() { m.persistFailures.Inc() }

func (m *Metrics) Broadcast(event string) { m.broadcasts.WithLabelValues(event).Inc() }

func (m *Metrics) SlowClientDropped() { m.slowDrops.Inc() }
