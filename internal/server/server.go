// If you are AI: This file wires the relay components together: the two
// stream relays, the control bridge, the discovery coordinator, and the HTTP
// surface (health, metrics, API, WebSocket taps). Binding happens up front in
// Start so a port conflict is fatal before anything runs.

package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"

	"pnrelay/internal/config"
	"pnrelay/internal/metric"
	"pnrelay/internal/svc/api"
	"pnrelay/internal/svc/control"
	"pnrelay/internal/svc/discovery"
	"pnrelay/internal/svc/health"
	"pnrelay/internal/svc/stream"
	"pnrelay/internal/svc/wsstream"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server owns every relay component and their lifecycle.
type Server struct {
	cfg *config.Config

	detector *stream.Relay
	display  *stream.Relay
	bridge   *control.Bridge
	disco    *discovery.Coordinator

	httpServer *http.Server
	httpLn     net.Listener
	httpDone   chan struct{}
	metrics    *metric.Metrics

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a server instance with the given configuration.
// Nothing is bound until Start is called.
func New(cfg *config.Config) *Server {
	s := &Server{
		cfg:      cfg,
		detector: stream.NewRelay("DETECTOR", uint32(cfg.Streams.DetectorSampleRate), cfg.DetectorRingBytes(), cfg.Limits.MaxConsumers),
		display:  stream.NewRelay("DISPLAY", uint32(cfg.Streams.DisplaySampleRate), cfg.DisplayRingBytes(), cfg.Limits.MaxConsumers),
		bridge:   control.NewBridge(),
		disco:    discovery.NewCoordinator(cfg.Limits.MaxEdges, cfg.Limits.MaxServices),
		metrics:  metric.NewMetrics(),
	}

	reg := prometheus.NewRegistry()
	s.metrics.Register(reg)
	// Create the per-stream series up front so /metrics lists them before
	// the first status tick.
	for _, r := range []*stream.Relay{s.detector, s.display} {
		s.syncMetrics(r.Status(), &stream.Stats{})
	}

	mux := http.NewServeMux()
	health.New(func() health.Report {
		disc := s.disco.Status()
		bri := s.bridge.Status()
		return health.Report{
			DetectorProducer: s.detector.Status().ProducerUp,
			DisplayProducer:  s.display.Status().ProducerUp,
			BridgePaired:     bri.ProducerUp && bri.ControllerUp,
			Edges:            disc.Edges,
			Services:         disc.Services,
		}
	}).RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	api.NewService([]*stream.Relay{s.detector, s.display}, s.bridge, s.disco).RegisterRoutes(mux)
	wsstream.NewService(map[string]*stream.Relay{
		"detector": s.detector,
		"display":  s.display,
	}).RegisterRoutes(mux)

	s.httpServer = &http.Server{Handler: mux}
	return s
}

// Start binds every listener and launches the component goroutines.
// Returns an error (and binds nothing further) on the first failure; a relay
// that cannot claim its ports has nothing useful to do.
func (s *Server) Start() error {
	addr := func(port int) string { return fmt.Sprintf(":%d", port) }

	if err := s.detector.Listen(addr(s.cfg.Server.DetectorPort)); err != nil {
		return err
	}
	if err := s.display.Listen(addr(s.cfg.Server.DisplayPort)); err != nil {
		return err
	}
	if err := s.bridge.Listen(addr(s.cfg.Server.ControlPort)); err != nil {
		return err
	}
	if err := s.disco.Listen(addr(s.cfg.Server.DiscoveryPort)); err != nil {
		return err
	}

	httpLn, err := net.Listen("tcp", addr(s.cfg.Server.HTTPPort))
	if err != nil {
		return fmt.Errorf("listen http on %s: %w", addr(s.cfg.Server.HTTPPort), err)
	}
	s.httpLn = httpLn
	log.Printf("[LISTEN] http surface ready on %s", httpLn.Addr())

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	run := func(f func(context.Context)) {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			f(ctx)
		}()
	}
	run(s.detector.Run)
	run(s.display.Run)
	run(s.bridge.Run)
	run(s.disco.Run)
	run(s.statusLoop)

	s.httpDone = make(chan struct{})
	go func() {
		defer close(s.httpDone)
		if err := s.httpServer.Serve(httpLn); err != nil && err != http.ErrServerClosed {
			log.Printf("[HTTP] Serve: %v", err)
		}
	}()

	log.Printf("[STARTUP] Ready to relay signals")
	return nil
}

// Detector exposes the detector stream relay (for the tests' port lookup).
func (s *Server) Detector() *stream.Relay { return s.detector }

// Display exposes the display stream relay.
func (s *Server) Display() *stream.Relay { return s.display }

// Bridge exposes the control bridge.
func (s *Server) Bridge() *control.Bridge { return s.bridge }

// Discovery exposes the discovery coordinator.
func (s *Server) Discovery() *discovery.Coordinator { return s.disco }

// HTTPAddr returns the bound HTTP address. Valid after Start.
func (s *Server) HTTPAddr() net.Addr { return s.httpLn.Addr() }
