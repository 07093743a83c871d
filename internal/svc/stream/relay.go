// If you are AI: This file implements the per-stream relay loop: accept
// connections, adopt the transmitting peer as producer, broadcast its bytes
// into every consumer ring, and drain rings to sockets on a fixed tick.
// One goroutine owns each stream; per-connection readers only read their own
// socket and post events into the owner's channel.

package stream

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// readChunk is the largest producer read handled per event.
	readChunk = 64 * 1024

	// tickInterval bounds the wait between drain passes. Drains also run
	// after every accept and read event, so under load the effective pace
	// is event-driven; the tick covers idle backlog and shutdown latency.
	tickInterval = 100 * time.Millisecond
)

// readBufPool recycles the 64 KB read buffers that carry bytes from reader
// goroutines to the owner loop.
var readBufPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, readChunk)
		return &buf
	},
}

// readEvent is one socket read posted by a reader goroutine.
type readEvent struct {
	id  uint64
	buf *[]byte // Pooled; owner returns it after use. Nil when n == 0.
	n   int
	err error
}

// Relay is one stream: a listen port, at most one producer, and a consumer
// set. Every accepted connection attaches as a consumer; the first
// connection to transmit bytes is adopted as the producer, and any later
// transmitting connection displaces it (the old socket is usually a
// half-closed ghost, so last-wins matches operator expectation).
type Relay struct {
	name       string
	sampleRate uint32
	ln         net.Listener
	set        *Set

	accepts chan net.Conn
	events  chan readEvent
	done    chan struct{}

	// Owner-goroutine state.
	nextID     uint64
	conns      map[uint64]net.Conn
	byID       map[uint64]*Consumer
	producerID uint64 // 0 when no producer

	producerUp atomic.Bool
}

// NewRelay creates a relay for one stream. ringBytes sizes each consumer's
// ring; maxConsumers caps the set.
func NewRelay(name string, sampleRate uint32, ringBytes, maxConsumers int) *Relay {
	return &Relay{
		name:       name,
		sampleRate: sampleRate,
		set:        NewSet(name, sampleRate, ringBytes, maxConsumers),
		accepts:    make(chan net.Conn, 16),
		events:     make(chan readEvent, 64),
		done:       make(chan struct{}),
		conns:      make(map[uint64]net.Conn),
		byID:       make(map[uint64]*Consumer),
	}
}

// Listen binds the stream's TCP port. Must be called before Run.
func (r *Relay) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s stream on %s: %w", r.name, addr, err)
	}
	r.ln = ln
	log.Printf("[LISTEN] %s stream ready on %s", r.name, ln.Addr())
	return nil
}

// Addr returns the bound listen address. Valid after Listen.
func (r *Relay) Addr() net.Addr {
	return r.ln.Addr()
}

// AttachConsumer hands an externally accepted connection (e.g. a WebSocket
// adapter) to the relay loop. Safe from any goroutine; the attach itself
// happens on the owner goroutine.
func (r *Relay) AttachConsumer(conn net.Conn) error {
	select {
	case r.accepts <- conn:
		return nil
	case <-r.done:
		conn.Close()
		return fmt.Errorf("%s stream: relay stopped", r.name)
	}
}

// Run accepts and relays until ctx is cancelled. It owns the consumer set,
// all rings, and the producer slot for this stream.
func (r *Relay) Run(ctx context.Context) {
	go r.acceptLoop()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case conn := <-r.accepts:
			r.handleAccept(conn)
			r.set.Drain()

		case ev := <-r.events:
			r.handleEvent(ev)
			r.set.Drain()

		case <-ticker.C:
			r.set.Drain()

		case <-ctx.Done():
			r.shutdown()
			return
		}
	}
}

func (r *Relay) acceptLoop() {
	for {
		conn, err := r.ln.Accept()
		if err != nil {
			return // Listener closed
		}
		select {
		case r.accepts <- conn:
		case <-r.done:
			conn.Close()
			return
		}
	}
}

func (r *Relay) handleAccept(conn net.Conn) {
	c, err := r.set.Attach(conn)
	if err != nil {
		log.Printf("[CLIENT] %s: refusing %s: %v", r.name, conn.RemoteAddr(), err)
		conn.Close()
		return
	}

	r.nextID++
	id := r.nextID
	c.id = id
	r.conns[id] = conn
	r.byID[id] = c
	go r.readLoop(id, conn)
}

// readLoop posts everything conn yields to the owner loop. It exits on the
// first read error; the owner decides what the error means.
func (r *Relay) readLoop(id uint64, conn net.Conn) {
	for {
		bufp := readBufPool.Get().(*[]byte)
		n, err := conn.Read(*bufp)

		ev := readEvent{id: id, n: n, err: err}
		if n > 0 {
			ev.buf = bufp
		} else {
			readBufPool.Put(bufp)
		}

		select {
		case r.events <- ev:
		case <-r.done:
			if ev.buf != nil {
				readBufPool.Put(ev.buf)
			}
			return
		}
		if err != nil {
			return
		}
	}
}

func (r *Relay) handleEvent(ev readEvent) {
	defer func() {
		if ev.buf != nil {
			readBufPool.Put(ev.buf)
		}
	}()

	conn, known := r.conns[ev.id]
	if !known {
		return // Already evicted or displaced; reader raced the teardown
	}

	if ev.n > 0 {
		if ev.id != r.producerID {
			r.promote(ev.id, conn)
		}
		r.set.Broadcast((*ev.buf)[:ev.n])
	}

	if ev.err != nil {
		if ev.id == r.producerID {
			r.dropProducer(conn, ev.err)
		} else if c := r.byID[ev.id]; c != nil {
			r.set.Evict(c, ev.err)
			delete(r.byID, ev.id)
			delete(r.conns, ev.id)
		}
	}
}

// promote adopts a transmitting connection as the stream's producer,
// displacing any previous one.
func (r *Relay) promote(id uint64, conn net.Conn) {
	if old, ok := r.conns[r.producerID]; ok && r.producerID != 0 {
		log.Printf("[SOURCE-%s] Replacing connection, new producer %s", r.name, conn.RemoteAddr())
		old.Close()
		delete(r.conns, r.producerID)
	} else {
		log.Printf("[SOURCE-%s] New connection from %s", r.name, conn.RemoteAddr())
	}

	if c := r.byID[id]; c != nil {
		r.set.Release(c) // Producer is not a consumer; free its ring
		delete(r.byID, id)
	}
	r.producerID = id
	r.producerUp.Store(true)
}

func (r *Relay) dropProducer(conn net.Conn, err error) {
	log.Printf("[SOURCE-%s] Connection lost: %v", r.name, err)
	conn.Close()
	delete(r.conns, r.producerID)
	r.producerID = 0
	r.producerUp.Store(false)
	// Consumers persist; their rings drain to empty and they sit idle.
}

func (r *Relay) shutdown() {
	close(r.done)
	r.ln.Close()
	if conn, ok := r.conns[r.producerID]; ok && r.producerID != 0 {
		conn.Close()
	}
	r.set.CloseAll()
}

// Status is a point-in-time view for the status reporter and the API.
type Status struct {
	Name       string
	SampleRate uint32
	ProducerUp bool
	Stats      Stats
}

// Status returns current counters; safe from any goroutine.
func (r *Relay) Status() Status {
	return Status{
		Name:       r.name,
		SampleRate: r.sampleRate,
		ProducerUp: r.producerUp.Load(),
		Stats:      r.set.Stats(),
	}
}
