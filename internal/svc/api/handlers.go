// If you are AI: This file implements HTTP API handlers.
// All handlers are fast, allocation-light, and never block relay paths.

package api

import (
	"encoding/json"
	"net/http"
	"runtime"

	"pnrelay/internal/core/lineproto"
)

// ServerResponse represents the /api/server response.
type ServerResponse struct {
	Version         string   `json:"version"`
	Uptime          int64    `json:"uptime"` // seconds
	GoVersion       string   `json:"go_version"`
	EnabledServices []string `json:"enabled_services"`
}

// StreamInfo represents the state of one I/Q stream.
type StreamInfo struct {
	Name            string `json:"name"`
	SampleRate      uint32 `json:"sample_rate"`
	ProducerUp      bool   `json:"producer_up"`
	Consumers       int    `json:"consumers"`
	ConsumersServed uint64 `json:"consumers_served"`
	BytesRelayed    uint64 `json:"bytes_relayed"`
	OverflowBytes   uint64 `json:"overflow_bytes"`
}

// StreamsResponse represents the /api/streams response.
type StreamsResponse struct {
	Streams []StreamInfo `json:"streams"`
}

// BridgeInfo represents the control bridge state.
type BridgeInfo struct {
	ProducerUp   bool `json:"producer_up"`
	ControllerUp bool `json:"controller_up"`
}

// RegistryResponse represents the /api/registry response.
type RegistryResponse struct {
	Edges    int                     `json:"edges"`
	Bridge   BridgeInfo              `json:"bridge"`
	Services []lineproto.ServiceInfo `json:"services"`
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// handleServer handles GET /api/server.
// Returns server version, uptime, and enabled services.
func (s *Service) handleServer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	response := ServerResponse{
		Version:   "1.0.0", // TODO: Get from build info
		Uptime:    getCurrentTime() - s.startTime,
		GoVersion: runtime.Version(),
		EnabledServices: []string{
			"stream_relay",
			"control_bridge",
			"discovery",
			"ws_stream",
		},
	}

	s.writeJSON(w, http.StatusOK, response)
}

// handleStreams handles GET /api/streams.
// Returns producer liveness and consumer counters per stream.
func (s *Service) handleStreams(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	streams := make([]StreamInfo, 0, len(s.streams))
	for _, relay := range s.streams {
		st := relay.Status()
		streams = append(streams, StreamInfo{
			Name:            st.Name,
			SampleRate:      st.SampleRate,
			ProducerUp:      st.ProducerUp,
			Consumers:       st.Stats.Consumers,
			ConsumersServed: st.Stats.Served,
			BytesRelayed:    st.Stats.Relayed,
			OverflowBytes:   st.Stats.Dropped,
		})
	}

	s.writeJSON(w, http.StatusOK, StreamsResponse{Streams: streams})
}

// handleRegistry handles GET /api/registry.
// Returns bridge liveness and the discovery table as last published by the
// coordinator.
func (s *Service) handleRegistry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	services := s.registry.Services()
	if services == nil {
		services = []lineproto.ServiceInfo{}
	}
	bst := s.bridge.Status()

	s.writeJSON(w, http.StatusOK, RegistryResponse{
		Edges:    s.registry.Status().Edges,
		Bridge:   BridgeInfo{ProducerUp: bst.ProducerUp, ControllerUp: bst.ControllerUp},
		Services: services,
	})
}

// writeJSON writes a JSON response.
func (s *Service) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func (s *Service) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, ErrorResponse{Error: message})
}
