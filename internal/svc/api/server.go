// If you are AI: This file provides HTTP API service integration.
// The API exposes relay state read-only and never blocks stream paths.

package api

import (
	"net/http"
	"time"

	"pnrelay/internal/core/lineproto"
	"pnrelay/internal/svc/control"
	"pnrelay/internal/svc/discovery"
	"pnrelay/internal/svc/stream"
)

// Service provides HTTP API functionality.
type Service struct {
	streams   []*stream.Relay
	bridge    BridgeStatus
	registry  RegistryStatus
	startTime int64
}

// BridgeStatus is the read-only view the API needs from the control bridge.
type BridgeStatus interface {
	Status() control.Status
}

// RegistryStatus is the read-only view the API needs from the discovery
// coordinator.
type RegistryStatus interface {
	Status() discovery.Status
	Services() []lineproto.ServiceInfo
}

// NewService creates a new API service over the given components.
func NewService(streams []*stream.Relay, bridge BridgeStatus, registry RegistryStatus) *Service {
	return &Service{
		streams:   streams,
		bridge:    bridge,
		registry:  registry,
		startTime: getCurrentTime(),
	}
}

// RegisterRoutes registers API routes on the provided mux.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/server", s.handleServer)
	mux.HandleFunc("/api/streams", s.handleStreams)
	mux.HandleFunc("/api/registry", s.handleRegistry)
}

// getCurrentTime returns current Unix timestamp.
// Extracted for testability.
func getCurrentTime() int64 {
	return time.Now().Unix()
}
