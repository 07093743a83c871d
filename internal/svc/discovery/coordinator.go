// If you are AI: This file implements the discovery coordinator's core loop
// and message dispatch (HELO/BYE/LIST/FIND). One goroutine owns the edge
// table and the service registry; edge-session mechanics live in edge.go.

package discovery

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync/atomic"
	"time"

	"pnrelay/internal/core/lineproto"
)

const (
	// writeWait is the send deadline for LIST/FIND responses.
	writeWait = 10 * time.Millisecond

	// sweepInterval paces the idle-edge check.
	sweepInterval = 5 * time.Second
)

// Coordinator runs the discovery side of the relay.
// Lock expectations: edges and registry are owned by the Run goroutine; the
// atomic counters exist for status readers.
type Coordinator struct {
	ln       net.Listener
	accepts  chan net.Conn
	events   chan edgeEvent
	done     chan struct{}
	maxEdges int

	nextID uint64
	edges  map[uint64]*edge
	reg    *Registry

	edgeCount    atomic.Int32
	serviceCount atomic.Int32
	snapshot     atomic.Value // []lineproto.ServiceInfo for the API

	// now and sweepEvery are stubbed in tests driving the timeout sweep.
	now        func() time.Time
	sweepEvery time.Duration
}

// NewCoordinator creates a coordinator capped at maxEdges sessions and
// maxServices registry entries.
func NewCoordinator(maxEdges, maxServices int) *Coordinator {
	return &Coordinator{
		accepts:    make(chan net.Conn, 8),
		events:     make(chan edgeEvent, 32),
		done:       make(chan struct{}),
		maxEdges:   maxEdges,
		edges:      make(map[uint64]*edge),
		reg:        NewRegistry(maxServices),
		now:        time.Now,
		sweepEvery: sweepInterval,
	}
}

// Listen binds the discovery port. Must be called before Run.
func (c *Coordinator) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen discovery on %s: %w", addr, err)
	}
	c.ln = ln
	log.Printf("[LISTEN] discovery coordinator ready on %s", ln.Addr())
	return nil
}

// Addr returns the bound listen address. Valid after Listen.
func (c *Coordinator) Addr() net.Addr {
	return c.ln.Addr()
}

// Run accepts edges and dispatches their messages until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) {
	go c.acceptLoop()

	sweep := time.NewTicker(c.sweepEvery)
	defer sweep.Stop()

	for {
		select {
		case conn := <-c.accepts:
			c.handleAccept(conn)

		case ev := <-c.events:
			c.handleEvent(ev)

		case <-sweep.C:
			c.sweepTimeouts()

		case <-ctx.Done():
			close(c.done)
			c.ln.Close()
			for _, e := range c.edges {
				e.conn.Close()
			}
			return
		}
	}
}

func (c *Coordinator) handleEvent(ev edgeEvent) {
	e, ok := c.edges[ev.id]
	if !ok {
		return // Removed by sweep or write error; reader raced the teardown
	}

	if len(ev.data) > 0 {
		e.lastSeen = c.now()
		for _, line := range e.framer.Append(ev.data) {
			c.dispatch(e, line)
			if _, still := c.edges[ev.id]; !still {
				return // A write failure mid-dispatch removed the edge
			}
		}
	}

	if ev.err != nil {
		c.removeEdge(e, fmt.Sprintf("connection closed: %v", ev.err))
	}
}

// dispatch handles one complete line from an edge. Non-JSON lines and
// unknown commands are ignored; a malformed line never disconnects the edge.
func (c *Coordinator) dispatch(e *edge, line []byte) {
	req, err := lineproto.ParseRequest(line)
	if err != nil {
		return // Stray text or broken JSON; tolerate and move on
	}

	switch req.Cmd {
	case lineproto.CmdHelo:
		created, err := c.reg.Upsert(e.id, e.ip, req, c.now())
		if err != nil {
			log.Printf("[DISCOVERY] Max services reached, dropping %s/%s from %s", req.Svc, req.ID, e.ip)
			return
		}
		c.publish()
		if created {
			log.Printf("[DISCOVERY] Registered: %s/%s at %s:%d/%d caps=%s",
				req.Svc, req.ID, e.ip, req.Port, req.Data, req.Caps)
		}

	case lineproto.CmdBye:
		if n := c.reg.Remove(e.id, req.ID, req.Svc); n > 0 {
			c.publish()
			log.Printf("[DISCOVERY] Unregistered: %s/%s (%d entries)", req.Svc, req.ID, n)
		}

	case lineproto.CmdList:
		c.respond(e, "")

	case lineproto.CmdFind:
		c.respond(e, req.Svc)
	}
}

func (c *Coordinator) respond(e *edge, filterSvc string) {
	out, err := lineproto.EncodeListResponse(c.reg.List(filterSvc))
	if err != nil {
		log.Printf("[DISCOVERY] Encoding response: %v", err)
		return
	}

	e.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if _, err := e.conn.Write(out); err != nil {
		if isWouldBlock(err) {
			// A wedged peer loses this response but keeps its session; the
			// next query will answer again.
			log.Printf("[DISCOVERY] Response to %s stalled, dropped", e.ip)
			return
		}
		c.removeEdge(e, fmt.Sprintf("write failed: %v", err))
	}
}

// Status is a point-in-time view for the status reporter and the API.
type Status struct {
	Edges    int
	Services int
}

// Status returns the current table sizes; safe from any goroutine.
func (c *Coordinator) Status() Status {
	return Status{
		Edges:    int(c.edgeCount.Load()),
		Services: int(c.serviceCount.Load()),
	}
}

// publish refreshes the service-table snapshot and counter after a mutation.
// Runs on the owner goroutine.
func (c *Coordinator) publish() {
	c.serviceCount.Store(int32(c.reg.Len()))
	c.snapshot.Store(c.reg.List(""))
}

// Services returns the latest published view of the table, for the
// inspection API; safe from any goroutine.
func (c *Coordinator) Services() []lineproto.ServiceInfo {
	if v := c.snapshot.Load(); v != nil {
		return v.([]lineproto.ServiceInfo)
	}
	return nil
}
