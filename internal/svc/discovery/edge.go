// If you are AI: This file implements the edge-session side of the discovery
// coordinator: accepting edge connections, the per-session reader, removal
// with atomic service cleanup, and the idle-session sweep.

package discovery

import (
	"errors"
	"log"
	"net"
	"os"
	"time"

	"pnrelay/internal/core/lineproto"
)

const (
	// readChunk is the per-read unit for edge sockets.
	readChunk = 4096

	// EdgeTimeout is how long an edge may stay silent before it is removed
	// with all its services. Any inbound message refreshes the clock; the
	// protocol has no mandatory heartbeat.
	EdgeTimeout = 120 * time.Second
)

// edge is one connected edge-node session.
type edge struct {
	id       uint64
	conn     net.Conn
	ip       string // Observed remote host, without port
	lastSeen time.Time
	framer   lineproto.Framer
}

type edgeEvent struct {
	id   uint64
	data []byte
	err  error
}

func (c *Coordinator) acceptLoop() {
	for {
		conn, err := c.ln.Accept()
		if err != nil {
			return
		}
		select {
		case c.accepts <- conn:
		case <-c.done:
			conn.Close()
			return
		}
	}
}

func (c *Coordinator) handleAccept(conn net.Conn) {
	if len(c.edges) >= c.maxEdges {
		log.Printf("[DISCOVERY] Max edge nodes reached, rejecting %s", conn.RemoteAddr())
		conn.Close()
		return
	}

	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		host = conn.RemoteAddr().String()
	}

	c.nextID++
	e := &edge{
		id:       c.nextID,
		conn:     conn,
		ip:       host,
		lastSeen: c.now(),
	}
	c.edges[e.id] = e
	c.edgeCount.Store(int32(len(c.edges)))

	log.Printf("[DISCOVERY] Edge node connected: %s (edges: %d)", e.ip, len(c.edges))
	go c.readLoop(e.id, conn)
}

func (c *Coordinator) readLoop(id uint64, conn net.Conn) {
	for {
		buf := make([]byte, readChunk)
		n, err := conn.Read(buf)

		ev := edgeEvent{id: id, err: err}
		if n > 0 {
			ev.data = buf[:n]
		}

		select {
		case c.events <- ev:
		case <-c.done:
			return
		}
		if err != nil {
			return
		}
	}
}

// removeEdge closes the session and drops every service it owns, in one
// step, so no record ever outlives its edge.
func (c *Coordinator) removeEdge(e *edge, reason string) {
	if _, ok := c.edges[e.id]; !ok {
		return
	}

	if n := c.reg.RemoveOwner(e.id); n > 0 {
		log.Printf("[DISCOVERY] Removing %d service(s) of edge %s", n, e.ip)
	}
	e.conn.Close()
	delete(c.edges, e.id)

	c.edgeCount.Store(int32(len(c.edges)))
	c.publish()
	log.Printf("[DISCOVERY] Edge node disconnected: %s (%s)", e.ip, reason)
}

func (c *Coordinator) sweepTimeouts() {
	now := c.now()
	for _, e := range c.edges {
		if now.Sub(e.lastSeen) > EdgeTimeout {
			c.removeEdge(e, "timeout")
		}
	}
}

// isWouldBlock reports whether a send failed only because the short write
// deadline expired.
func isWouldBlock(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, os.ErrDeadlineExceeded)
}
