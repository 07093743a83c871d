// If you are AI: This file implements the periodic status report and keeps
// the Prometheus collectors in sync with the component counters.

package server

import (
	"context"
	"log"
	"time"

	"pnrelay/internal/svc/stream"
)

// statusInterval paces the human-readable status block and the metrics sync.
const statusInterval = 5 * time.Second

// statusLoop prints the status block and refreshes metrics until ctx ends.
func (s *Server) statusLoop(ctx context.Context) {
	start := time.Now()
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	var lastDetector, lastDisplay stream.Stats

	for {
		select {
		case <-ticker.C:
			det := s.detector.Status()
			dis := s.display.Status()
			bri := s.bridge.Status()
			reg := s.disco.Status()

			log.Printf("[STATUS] Uptime: %d sec", int64(time.Since(start).Seconds()))
			s.logStream(det)
			s.logStream(dis)
			log.Printf("[STATUS] Control: source=%s client=%s",
				upDown(bri.ProducerUp), connected(bri.ControllerUp))
			log.Printf("[STATUS] Discovery: edges=%d services=%d", reg.Edges, reg.Services)

			s.syncMetrics(det, &lastDetector)
			s.syncMetrics(dis, &lastDisplay)
			boolGauge(s.metrics.BridgeProducerUp, bri.ProducerUp)
			boolGauge(s.metrics.BridgeControllerUp, bri.ControllerUp)
			s.metrics.RegistryEdges.Set(float64(reg.Edges))
			s.metrics.RegistryServices.Set(float64(reg.Services))

		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) logStream(st stream.Status) {
	log.Printf("[STATUS] %s: source=%s clients=%d (total_served=%d)",
		st.Name, upDown(st.ProducerUp), st.Stats.Consumers, st.Stats.Served)
	log.Printf("[STATUS]   Relayed: %d bytes, %d lost to overflow",
		st.Stats.Relayed, st.Stats.Dropped)
}

// syncMetrics converts monotonic snapshot counters into Prometheus
// counter increments and sets the gauges.
func (s *Server) syncMetrics(st stream.Status, last *stream.Stats) {
	name := st.Name
	s.metrics.BytesRelayed.WithLabelValues(name).Add(float64(st.Stats.Relayed - last.Relayed))
	s.metrics.RingOverflow.WithLabelValues(name).Add(float64(st.Stats.Dropped - last.Dropped))
	s.metrics.ConsumersServed.WithLabelValues(name).Add(float64(st.Stats.Served - last.Served))
	s.metrics.Consumers.WithLabelValues(name).Set(float64(st.Stats.Consumers))
	g := s.metrics.ProducerUp.WithLabelValues(name)
	boolGauge(g, st.ProducerUp)
	*last = st.Stats
}

func boolGauge(g interface{ Set(float64) }, up bool) {
	if up {
		g.Set(1)
	} else {
		g.Set(0)
	}
}

func upDown(up bool) string {
	if up {
		return "UP"
	}
	return "DOWN"
}

func connected(up bool) string {
	if up {
		return "CONNECTED"
	}
	return "---"
}
