// If you are AI: This file defines the process-wide Prometheus metrics.
// Counters mirror the periodic status block so dashboards and the log agree.

package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains every collector the relay exports.
type Metrics struct {
	BytesRelayed    *prometheus.CounterVec
	RingOverflow    *prometheus.CounterVec
	ConsumersServed *prometheus.CounterVec
	Consumers       *prometheus.GaugeVec
	ProducerUp      *prometheus.GaugeVec

	BridgeProducerUp   prometheus.Gauge
	BridgeControllerUp prometheus.Gauge

	RegistryEdges    prometheus.Gauge
	RegistryServices prometheus.Gauge
}

// NewMetrics creates all collectors. Nothing is registered; call Register
// with the registry the HTTP handler serves.
func NewMetrics() *Metrics {
	return &Metrics{
		BytesRelayed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pnrelay",
				Subsystem: "stream",
				Name:      "bytes_relayed_total",
				Help:      "Bytes broadcast from the producer into consumer rings",
			},
			[]string{"stream"},
		),

		RingOverflow: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pnrelay",
				Subsystem: "stream",
				Name:      "ring_overflow_bytes_total",
				Help:      "Bytes lost to ring overflow across all consumers",
			},
			[]string{"stream"},
		),

		ConsumersServed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pnrelay",
				Subsystem: "stream",
				Name:      "consumers_served_total",
				Help:      "Consumers ever attached",
			},
			[]string{"stream"},
		),

		Consumers: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "pnrelay",
				Subsystem: "stream",
				Name:      "consumers",
				Help:      "Currently attached consumers",
			},
			[]string{"stream"},
		),

		ProducerUp: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "pnrelay",
				Subsystem: "stream",
				Name:      "producer_up",
				Help:      "Whether the stream has a producer (0 or 1)",
			},
			[]string{"stream"},
		),

		BridgeProducerUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pnrelay",
			Subsystem: "control",
			Name:      "producer_up",
			Help:      "Whether the control bridge has its producer side (0 or 1)",
		}),

		BridgeControllerUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pnrelay",
			Subsystem: "control",
			Name:      "controller_up",
			Help:      "Whether the control bridge has its controller side (0 or 1)",
		}),

		RegistryEdges: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pnrelay",
			Subsystem: "discovery",
			Name:      "edges",
			Help:      "Connected edge-node sessions",
		}),

		RegistryServices: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pnrelay",
			Subsystem: "discovery",
			Name:      "services",
			Help:      "Registered services",
		}),
	}
}

// Register adds every collector to reg.
func (m *Metrics) Register(reg prometheus.Registerer) {
	reg.MustRegister(
		m.BytesRelayed,
		m.RingOverflow,
		m.ConsumersServed,
		m.Consumers,
		m.ProducerUp,
		m.BridgeProducerUp,
		m.BridgeControllerUp,
		m.RegistryEdges,
		m.RegistryServices,
	)
}
