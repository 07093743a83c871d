// If you are AI: This file implements WebSocket access to the I/Q streams.
// A WebSocket client attaches to a stream's consumer set exactly like a TCP
// consumer and receives the 16-byte stream header followed by raw stream
// bytes as binary frames.

package wsstream

import (
	"net/http"
	"strings"

	"pnrelay/internal/svc/stream"

	"github.com/gorilla/websocket"
)

// Service serves WebSocket consumers for a fixed set of streams.
type Service struct {
	relays   map[string]*stream.Relay
	upgrader websocket.Upgrader
}

// NewService creates the WebSocket endpoint over the given relays, keyed by
// URL name (e.g. "detector", "display").
func NewService(relays map[string]*stream.Relay) *Service {
	return &Service{
		relays: relays,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Allow all origins for now
				// NOTE: In production, this should be restricted
				return true
			},
		},
	}
}

// RegisterRoutes registers the WebSocket routes on the provided mux.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/", s.ServeHTTP)
}

// ServeHTTP handles GET /ws/{stream}: upgrade, attach, and let the relay's
// drain deliver bytes until the client goes away.
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/ws/")
	relay, ok := s.relays[name]
	if !ok || strings.Contains(name, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return // Upgrade failed, response already sent
	}

	adapter := newWSConn(conn)
	if err := relay.AttachConsumer(adapter); err != nil {
		conn.Close()
		return
	}

	// The relay owns the adapter from here: its drain loop writes frames and
	// evicts on error. This handler's job is done; the adapter's read side
	// watches for the client closing.
}
